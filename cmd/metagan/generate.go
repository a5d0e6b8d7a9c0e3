package main

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	metagan "github.com/LdDl/metagan-go"
)

func newGenerateCmd() *cobra.Command {
	cfg := netConfig{}
	outDir := ""
	class := -1
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample images from untrained Generator and draw them as heatmaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			rng := cfg.rng()
			gen, err := metagan.NewGenerator(cfg.dataSize, cfg.metaLength, cfg.zLength, cfg.options("generator")...)
			if err != nil {
				return err
			}
			defer gen.Close()
			z, err := metagan.LatentNoise(rng, cfg.dtype(), cfg.batchSize, cfg.zLength)
			if err != nil {
				return err
			}
			meta, err := columnMeta(cfg, class)
			if err != nil {
				return err
			}
			images, err := gen.Generate(z, meta)
			if err != nil {
				return err
			}
			klog.Infof("Generated %v images", images.Shape())
			return saveHeatmaps(images, outDir)
		},
	}
	cfg.bind(cmd, true, false)
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for heatmaps")
	cmd.Flags().IntVar(&class, "class", -1, "Index of hot metadata component (-1 means all zeros)")
	return cmd
}

// columnMeta Returns [batch, metaLength, 1, 1] metadata with single hot component (or zeros)
func columnMeta(cfg netConfig, class int) (*tensor.Dense, error) {
	if class >= cfg.metaLength {
		return nil, fmt.Errorf("Class %d is out of range [0; %d)", class, cfg.metaLength)
	}
	meta := tensor.New(tensor.Of(cfg.dtype()), tensor.WithShape(cfg.batchSize, cfg.metaLength, 1, 1))
	if class < 0 {
		return meta, nil
	}
	one := interface{}(1.0)
	if cfg.float32 {
		one = float32(1.0)
	}
	for b := 0; b < cfg.batchSize; b++ {
		if err := meta.SetAt(one, b, class, 0, 0); err != nil {
			return nil, errors.Wrap(err, "Can't set hot component")
		}
	}
	return meta, nil
}

func saveHeatmaps(images *tensor.Dense, outDir string) error {
	for i := 0; i < images.Shape()[0]; i++ {
		fname := filepath.Join(outDir, fmt.Sprintf("sample_%d.png", i))
		if err := metagan.SaveImageHeatmap(images, i, fname); err != nil {
			return errors.Wrapf(err, "Can't save sample #%d", i)
		}
		klog.Infof("Sample #%d has been saved to '%s'", i, fname)
	}
	return nil
}
