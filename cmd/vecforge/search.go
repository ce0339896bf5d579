package main

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/persistence"
	"github.com/hupe1980/vecforge/query"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		dim, queries, offset int
		format               string
		allow                []int64
	)
	cmd := &cobra.Command{
		Use:   "search <index> <queries>",
		Short: "Query a saved index with rows of a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(cmd, map[string]string{
				"search.k":  "k",
				"search.ef": "ef",
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.Log)

			m, err := persistence.Load(args[0], func(o *persistence.Options) { o.Logger = log })
			if err != nil {
				return err
			}
			if dim == 0 {
				dim = m.Dim()
			}
			qs, err := loadDataset(args[1], format, dim)
			if err != nil {
				return err
			}
			if offset < 0 || offset > qs.Len() {
				return errs.Configuration("cli.search", "offset", "offset %d outside %d query rows", offset, qs.Len())
			}
			end := qs.Len()
			if queries > 0 {
				end = min(offset+queries, end)
			}

			rows := make([][]float32, 0, end-offset)
			for i := offset; i < end; i++ {
				rows = append(rows, qs.Row(i))
			}
			var opts []query.Option
			if len(allow) > 0 {
				bm := roaring64.New()
				for _, id := range allow {
					bm.Add(uint64(id))
				}
				opts = append(opts, query.WithFilter(bm))
			}

			engine := query.New(func(o *query.Options) {
				o.EFSearch = cfg.Search.EF
				o.Logger = log
			})
			results, err := engine.SearchBatch(cmd.Context(), m, rows, cfg.Search.K, opts...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for i, res := range results {
				_, _ = fmt.Fprintf(w, "query %d:\n", offset+i)
				for rank, r := range res {
					_, _ = fmt.Fprintf(w, "  %3d  id=%d  distance=%g\n", rank+1, r.ID, r.Distance)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&dim, "dim", "d", 0, "vector dimension of a raw query file (default: index dimension)")
	cmd.Flags().StringVar(&format, "format", "auto", "query file format (auto, raw, arrow)")
	cmd.Flags().IntVar(&queries, "queries", 1, "number of query rows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "first query row")
	cmd.Flags().Int64SliceVar(&allow, "allow", nil, "restrict results to these ids")
	cmd.Flags().IntP("k", "k", 0, "neighbors per query")
	cmd.Flags().Int("ef", 0, "search beam width")
	return cmd
}
