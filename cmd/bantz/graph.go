package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bantzhq/bantz/internal/config"
	"github.com/bantzhq/bantz/internal/graph"
)

// buildGraphCmd creates the "graph" command group for the entity
// graph.
func buildGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect and maintain the entity graph",
	}
	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.AddCommand(
		buildGraphStatsCmd(),
		buildGraphSearchCmd(),
		buildGraphNeighborsCmd(),
		buildGraphDecayCmd(),
	)
	return cmd
}

func openGraph(cmd *cobra.Command) (*graph.Graph, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return graph.Open(cfg.GraphDB)
}

func buildGraphStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entity and link counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			stats, err := g.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entities: %d\n", stats.Entities)
			fmt.Fprintf(out, "Links:    %d\n", stats.Links)
			fmt.Fprintf(out, "Avg link: %.2f\n", stats.AvgLink)
			return nil
		},
	}
}

func buildGraphSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search entities by name",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			entities, err := g.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entities) == 0 {
				fmt.Fprintln(out, "No entities found.")
				return nil
			}
			for _, entity := range entities {
				kind := entity.Kind
				if kind == "" {
					kind = "-"
				}
				fmt.Fprintf(out, "%-30s %-10s %.2f\n", entity.Name, kind, entity.Weight)
			}
			return nil
		},
	}
}

func buildGraphNeighborsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "neighbors [name]",
		Short: "Show entities linked to a name",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			neighbors, err := g.Neighbors(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(neighbors) == 0 {
				fmt.Fprintln(out, "No neighbors.")
				return nil
			}
			for _, neighbor := range neighbors {
				fmt.Fprintf(out, "%-30s %.2f\n", neighbor.Name, neighbor.Weight)
			}
			return nil
		},
	}
}

func buildGraphDecayCmd() *cobra.Command {
	var factor float64
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Decay link weights and prune weak links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !(factor > 0 && factor < 1) {
				return usageErrorf("--factor must be in (0, 1), got %v", factor)
			}
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			pruned, err := g.Decay(cmd.Context(), factor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d link(s).\n", pruned)
			return nil
		},
	}
	cmd.Flags().Float64Var(&factor, "factor", 0.9, "Multiplier applied to every link weight")
	return cmd
}
