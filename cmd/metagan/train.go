package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	metagan "github.com/LdDl/metagan-go"
)

type trainConfig struct {
	netConfig
	steps      int
	numSamples int
	learnRate  float64
	evalPrint  int
	outDir     string
}

func newTrainCmd() *cobra.Command {
	cfg := trainConfig{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train GAN on synthetic figures (disc, square, cross) and plot losses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(cfg)
		},
	}
	cmd.Flags().IntVar(&cfg.dataSize, "size", 64, "Side of images: 64, 128 or 256")
	cmd.Flags().IntVar(&cfg.zLength, "z-length", 100, "Length of latent code")
	cmd.Flags().IntVar(&cfg.batchSize, "batch", 4, "Batch size")
	cmd.Flags().Int64Var(&cfg.seed, "seed", 1337, "Seed for random numbers")
	cmd.Flags().IntVar(&cfg.steps, "steps", 200, "Number of training steps")
	cmd.Flags().IntVar(&cfg.numSamples, "samples", 256, "Number of synthetic samples")
	cmd.Flags().Float64Var(&cfg.learnRate, "lr", 0.0002, "Learning rate")
	cmd.Flags().IntVar(&cfg.evalPrint, "eval-print", 10, "Log mean losses every N steps")
	cmd.Flags().StringVar(&cfg.outDir, "out", "train_output", "Directory for loss plot and samples")
	return cmd
}

func (cfg *trainConfig) validate() error {
	if err := cfg.netConfig.validate(); err != nil {
		return err
	}
	if cfg.steps <= 0 {
		return errors.Wrapf(metagan.ErrInvalidLength, "flag --steps must be positive, got %d", cfg.steps)
	}
	if cfg.evalPrint <= 0 {
		return errors.Wrapf(metagan.ErrInvalidLength, "flag --eval-print must be positive, got %d", cfg.evalPrint)
	}
	return nil
}

func train(cfg trainConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	rng := cfg.rng()
	trainSet, err := metagan.GenerateFiguresSet(rng, cfg.numSamples, cfg.dataSize)
	if err != nil {
		return errors.Wrap(err, "Can't prepare synthetic data")
	}
	// Figure kind is the metadata, relative figure size is the only auxiliary target
	cfg.metaLength = trainSet.Meta.Shape()[1]
	cfg.lambdaLength = trainSet.Lambda.Shape()[1]
	if cfg.batchSize > trainSet.DataLength {
		return fmt.Errorf("Batch size %d is bigger than number of samples %d", cfg.batchSize, trainSet.DataLength)
	}
	if err := os.MkdirAll(cfg.outDir, 0755); err != nil {
		return errors.Wrap(err, "Can't create output directory")
	}

	gen, err := metagan.NewGenerator(cfg.dataSize, cfg.metaLength, cfg.zLength, cfg.options("generator")...)
	if err != nil {
		return err
	}
	defer gen.Close()
	dis, err := metagan.NewDiscriminator(cfg.dataSize, cfg.metaLength, cfg.lambdaLength, cfg.options("discriminator")...)
	if err != nil {
		return err
	}
	defer dis.Close()
	gan, err := metagan.NewGAN(gen, dis, cfg.batchSize, metagan.WithLearnRate(cfg.learnRate))
	if err != nil {
		return err
	}
	defer gan.Close()

	klog.Infof("Training on %d samples of classes %v: %d steps, batch size %d", trainSet.DataLength, trainSet.Classes, cfg.steps, cfg.batchSize)
	batches := trainSet.DataLength / cfg.batchSize
	lossesD := make([]float64, 0, cfg.steps)
	lossesG := make([]float64, 0, cfg.steps)
	st := time.Now()
	for step := 0; step < cfg.steps; step++ {
		start := (step % batches) * cfg.batchSize
		realImages, meta, lambda, err := trainSet.Batch(start, start+cfg.batchSize)
		if err != nil {
			return errors.Wrapf(err, "Can't prepare batch at step %d", step)
		}
		z, err := metagan.LatentNoise(rng, tensor.Float64, cfg.batchSize, cfg.zLength)
		if err != nil {
			return err
		}
		result, err := gan.Step(realImages, meta, lambda, z)
		if err != nil {
			return errors.Wrapf(err, "Can't do step %d", step)
		}
		lossesD = append(lossesD, result.DiscriminatorLoss)
		lossesG = append(lossesG, result.GeneratorLoss)
		if step%cfg.evalPrint == 0 || step == cfg.steps-1 {
			// Mean over the last evalPrint steps
			from := len(lossesD) - cfg.evalPrint
			if from < 0 {
				from = 0
			}
			klog.Infof("Step #%d: discriminator loss = %.6f, generator loss = %.6f, elapsed %v", step, stat.Mean(lossesD[from:], nil), stat.Mean(lossesG[from:], nil), time.Since(st))
		}
	}

	lossesPath := filepath.Join(cfg.outDir, "losses.png")
	err = metagan.PlotLosses(lossesPath, metagan.LossSeries{Name: "discriminator", Values: lossesD}, metagan.LossSeries{Name: "generator", Values: lossesG})
	if err != nil {
		return errors.Wrap(err, "Can't plot losses")
	}
	klog.Infof("Losses have been saved to '%s'", lossesPath)

	// One sample per class
	for class, name := range trainSet.Classes {
		z, err := metagan.LatentNoise(rng, tensor.Float64, 1, cfg.zLength)
		if err != nil {
			return err
		}
		meta := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, cfg.metaLength, 1, 1))
		if err := meta.SetAt(1.0, 0, class, 0, 0); err != nil {
			return errors.Wrap(err, "Can't set class")
		}
		images, err := gen.Generate(z, meta)
		if err != nil {
			return err
		}
		fname := filepath.Join(cfg.outDir, fmt.Sprintf("sample_%s.png", name))
		if err := metagan.SaveImageHeatmap(images, 0, fname); err != nil {
			return err
		}
		klog.Infof("Sample of '%s' has been saved to '%s'", name, fname)
	}
	return nil
}
