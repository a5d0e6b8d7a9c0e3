package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorgonia.org/tensor"

	metagan "github.com/LdDl/metagan-go"
)

func newDiscriminateCmd() *cobra.Command {
	cfg := netConfig{}
	cmd := &cobra.Command{
		Use:   "discriminate",
		Short: "Score random images with untrained Discriminator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			rng := cfg.rng()
			dis, err := metagan.NewDiscriminator(cfg.dataSize, cfg.metaLength, cfg.lambdaLength, cfg.options("discriminator")...)
			if err != nil {
				return err
			}
			defer dis.Close()
			images, err := metagan.UniformRandDense(rng, cfg.dtype(), cfg.batchSize, 1, cfg.dataSize, cfg.dataSize)
			if err != nil {
				return err
			}
			// [0; 1) -> [-1; 1)
			if _, err := images.MulScalar(castTo(cfg, 2.0), true, tensor.UseUnsafe()); err != nil {
				return err
			}
			if _, err := images.SubScalar(castTo(cfg, 1.0), true, tensor.UseUnsafe()); err != nil {
				return err
			}
			meta, err := metagan.UniformRandDense(rng, cfg.dtype(), cfg.batchSize, cfg.metaLength)
			if err != nil {
				return err
			}
			scores, err := dis.Discriminate(images, meta)
			if err != nil {
				return err
			}
			fmt.Printf("Scores [real/fake, %d auxiliary]:\n%v\n", cfg.lambdaLength, scores)
			return nil
		},
	}
	cfg.bind(cmd, false, true)
	return cmd
}

func castTo(cfg netConfig, v float64) interface{} {
	if cfg.float32 {
		return float32(v)
	}
	return v
}
