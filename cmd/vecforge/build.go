package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge"
	"github.com/hupe1980/vecforge/internal/config"
	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/persistence"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		dim    int
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "build <dataset>",
		Short: "Build a graph index from a dataset and save it",
		Long:  "Build a graph index on the configured device. Accelerator builds are converted to the portable layout before they are written.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(cmd, map[string]string{
				"device.type":             "device",
				"build.metric":            "metric",
				"build.graph_degree":      "graph-degree",
				"persistence.compression": "compression",
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.Log)

			ds, err := loadDataset(args[0], format, dim)
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + persistence.Extension
			}

			var collector metrics.BasicCollector
			p, err := newPipeline(cfg, func(o *vecforge.Options) {
				o.Logger = log
				o.Metrics = &collector
			})
			if err != nil {
				return err
			}

			m, timings, err := p.Build(cmd.Context(), ds)
			if err != nil {
				return err
			}
			compression, err := cfg.Compression()
			if err != nil {
				return err
			}
			start := time.Now()
			if err := persistence.Save(out, m, func(o *persistence.Options) {
				o.Compression = compression
				o.Logger = log
				o.Metrics = &collector
			}); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "built %d vectors of dimension %d on %s\n", m.Len(), m.Dim(), p.Device())
			_, _ = fmt.Fprintf(w, "build: %s  transfer: %s  write: %s\n",
				timings.Build.Round(time.Millisecond), timings.Transfer.Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
			_, err = fmt.Fprintf(w, "wrote %s (%d bytes, %s)\n", out, collector.Stats().SaveBytes, compression)
			return err
		},
	}
	cmd.Flags().IntVarP(&dim, "dim", "d", 0, "vector dimension of a raw dataset")
	cmd.Flags().StringVar(&format, "format", "auto", "dataset format (auto, raw, arrow)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "index path (default <dataset>"+persistence.Extension+")")
	cmd.Flags().String("device", "", "build device (cpu or gpu)")
	cmd.Flags().String("metric", "", "distance metric (l2 or ip)")
	cmd.Flags().Int("graph-degree", 0, "out-degree of the final graph")
	cmd.Flags().String("compression", "", "block compression (none, lz4, zstd)")
	return cmd
}

// newPipeline creates a build pipeline from cfg. optFns run last.
func newPipeline(cfg *config.Config, optFns ...func(o *vecforge.Options)) (*vecforge.Pipeline, error) {
	dev, err := cfg.BuildDevice()
	if err != nil {
		return nil, err
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	metric, err := cfg.Metric()
	if err != nil {
		return nil, err
	}
	return vecforge.New(append([]func(o *vecforge.Options){func(o *vecforge.Options) {
		o.Device = dev
		o.Metric = metric
		o.Params = params
		o.IVFPQ = cfg.IVFPQ()
	}}, optFns...)...)
}
