package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge"
	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/query"
)

// Benchmark defaults.
const (
	benchK  = 100
	benchEF = 100
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		n, dim, clusters, queries, k, ef int
		seed                             uint64
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure build time, query throughput and recall@k against exact search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config(cmd, map[string]string{"device.type": "device"})
			if err != nil {
				return err
			}
			const op = "cli.bench"
			switch {
			case n <= 0:
				return errs.Configuration(op, "n", "must be positive, got %d", n)
			case dim <= 0:
				return errs.Configuration(op, "dim", "must be positive, got %d", dim)
			case queries <= 0:
				return errs.Configuration(op, "queries", "must be positive, got %d", queries)
			case k <= 0:
				return errs.Configuration(op, "k", "must be positive, got %d", k)
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.Log)

			// Queries are held-out draws from the same clusters.
			all := dataset.Clustered(n+queries, dim, clusters, seed)
			ds, qs := all.Slice(0, n), all.Slice(n, n+queries)

			p, err := newPipeline(cfg, vecforge.WithLogger(log))
			if err != nil {
				return err
			}
			m, timings, err := p.Build(cmd.Context(), ds)
			if err != nil {
				return err
			}

			rows := make([][]float32, qs.Len())
			for i := range rows {
				rows[i] = qs.Row(i)
			}
			engine := query.New(func(o *query.Options) { o.EFSearch = ef })
			start := time.Now()
			got, err := engine.SearchBatch(cmd.Context(), m, rows, k)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			var recall float64
			for i, q := range rows {
				truth, err := query.BruteForce(m, q, k)
				if err != nil {
					return err
				}
				recall += query.Recall(got[i], truth)
			}
			recall /= float64(len(rows))

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "device:     %s\n", p.Device())
			_, _ = fmt.Fprintf(w, "dataset:    %d x %d (%d clusters, seed %d)\n", n, dim, clusters, seed)
			_, _ = fmt.Fprintf(w, "build:      %s (transfer %s)\n", timings.Build.Round(time.Millisecond), timings.Transfer.Round(time.Millisecond))
			_, _ = fmt.Fprintf(w, "queries:    %d in %s (%.0f qps)\n", len(rows), elapsed.Round(time.Millisecond), float64(len(rows))/max(elapsed.Seconds(), 1e-9))
			_, err = fmt.Fprintf(w, "recall@%d: %.4f (ef %d)\n", k, recall, max(ef, k))
			return err
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10000, "number of indexed vectors")
	cmd.Flags().IntVarP(&dim, "dim", "d", 64, "vector dimension")
	cmd.Flags().IntVar(&clusters, "clusters", 16, "number of Gaussian clusters")
	cmd.Flags().IntVar(&queries, "queries", 100, "number of queries")
	cmd.Flags().IntVarP(&k, "k", "k", benchK, "neighbors per query")
	cmd.Flags().IntVar(&ef, "ef", benchEF, "search beam width")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().String("device", "", "build device (cpu or gpu)")
	return cmd
}
