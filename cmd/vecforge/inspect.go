package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge/persistence"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <index>",
		Short: "Print the header and build parameters of a saved index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.config(cmd, nil); err != nil {
				return err
			}
			info, err := persistence.Inspect(args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			rows := []struct {
				key   string
				value any
			}{
				{"file", args[0]},
				{"size", info.Size},
				{"version", info.Version},
				{"compression", info.Compression},
				{"metric", info.Metric},
				{"vectors", info.Len},
				{"dimension", info.Dim},
				{"graph_degree", info.Params.GraphDegree},
				{"intermediate_graph_degree", info.Params.IntermediateGraphDegree},
				{"build_algo", info.Params.BuildAlgo},
				{"store_dataset", info.Params.StoreDataset},
				{"seed", info.Params.Seed},
				{"entry", info.Entry},
				{"raw_vectors", info.HasVectors()},
				{"pq_codes", info.HasCodes()},
			}
			for _, r := range rows {
				_, _ = fmt.Fprintf(tw, "%s\t%v\n", r.key, r.value)
			}
			return tw.Flush()
		},
	}
}
