package main

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorgonia.org/tensor"

	metagan "github.com/LdDl/metagan-go"
)

// netConfig Flags shared by subcommands
type netConfig struct {
	dataSize     int
	metaLength   int
	zLength      int
	lambdaLength int
	batchSize    int
	seed         int64
	float32      bool
}

func (cfg *netConfig) bind(cmd *cobra.Command, withZ, withLambda bool) {
	cmd.Flags().IntVar(&cfg.dataSize, "size", 64, "Side of images: 64, 128 or 256")
	cmd.Flags().IntVar(&cfg.metaLength, "meta-length", 10, "Length of metadata vector")
	cmd.Flags().IntVar(&cfg.batchSize, "batch", 1, "Batch size")
	cmd.Flags().Int64Var(&cfg.seed, "seed", 1337, "Seed for random numbers")
	cmd.Flags().BoolVar(&cfg.float32, "float32", false, "Use float32 parameters instead of float64")
	if withZ {
		cmd.Flags().IntVar(&cfg.zLength, "z-length", 100, "Length of latent code")
	}
	if withLambda {
		cmd.Flags().IntVar(&cfg.lambdaLength, "lambda-length", 5, "Number of auxiliary outputs of discriminator")
	}
}

// validate Rejects flag values the library can't reject before allocating tensors
func (cfg *netConfig) validate() error {
	if cfg.batchSize <= 0 {
		return errors.Wrapf(metagan.ErrInvalidLength, "flag --batch must be positive, got %d", cfg.batchSize)
	}
	return nil
}

func (cfg *netConfig) dtype() tensor.Dtype {
	if cfg.float32 {
		return tensor.Float32
	}
	return tensor.Float64
}

func (cfg *netConfig) options(name string) []metagan.Option {
	return []metagan.Option{
		metagan.WithDtype(cfg.dtype()),
		metagan.WithName(name),
	}
}

func (cfg *netConfig) rng() *rand.Rand {
	return rand.New(rand.NewSource(cfg.seed))
}
