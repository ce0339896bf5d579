package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/errs"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		n, dim, clusters int
		seed             uint64
		format           string
	)
	cmd := &cobra.Command{
		Use:   "generate <output>",
		Short: "Write a seeded random dataset as raw float32 or Arrow IPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.config(cmd, nil); err != nil {
				return err
			}
			if n < 0 {
				return errs.Configuration("cli.generate", "n", "must not be negative, got %d", n)
			}
			if dim <= 0 {
				return errs.Configuration("cli.generate", "dim", "must be positive, got %d", dim)
			}

			var ds *dataset.Dataset
			if clusters > 0 {
				ds = dataset.Clustered(n, dim, clusters, seed)
			} else {
				ds = dataset.Random(n, dim, seed)
			}
			if err := writeDataset(args[0], format, ds); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %d vectors of dimension %d to %s\n", ds.Len(), ds.Dim(), args[0])
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 1000, "number of vectors")
	cmd.Flags().IntVarP(&dim, "dim", "d", 128, "vector dimension")
	cmd.Flags().IntVar(&clusters, "clusters", 0, "draw vectors around this many centers (0 for uniform)")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&format, "format", "auto", "output format (auto, raw, arrow)")
	return cmd
}
