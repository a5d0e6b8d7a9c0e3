package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	metagan "github.com/LdDl/metagan-go"
)

func newTopologyCmd() *cobra.Command {
	cfg := netConfig{}
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print geometry of every stage of both networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			genStages, err := metagan.GeneratorTopology(cfg.dataSize, cfg.metaLength, cfg.zLength)
			if err != nil {
				return err
			}
			disStages, err := metagan.DiscriminatorTopology(cfg.dataSize, cfg.metaLength, cfg.lambdaLength)
			if err != nil {
				return err
			}
			fmt.Printf("Generator (%s):\n", metagan.DataSize(cfg.dataSize))
			renderStages(genStages)
			fmt.Printf("Discriminator (%s):\n", metagan.DataSize(cfg.dataSize))
			renderStages(disStages)
			return nil
		},
	}
	cfg.bind(cmd, true, true)
	return cmd
}

func renderStages(stages []metagan.Stage) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Stage", "Kind", "In", "Out", "Kernel", "Stride", "Padding", "In side", "Out side"})
	for _, st := range stages {
		table.Append([]string{
			st.Name,
			st.Kind.String(),
			strconv.Itoa(st.InChannels),
			strconv.Itoa(st.OutChannels),
			strconv.Itoa(st.Kernel),
			strconv.Itoa(st.Stride),
			strconv.Itoa(st.Padding),
			strconv.Itoa(st.InSide),
			strconv.Itoa(st.OutSide),
		})
	}
	table.Render()
}
