package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablecraft/braind/internal/aggregate"
	"github.com/fablecraft/braind/internal/config"
	"github.com/fablecraft/braind/internal/embeddings"
)

var (
	aggSources     []string
	aggDescription string
	aggPerSource   int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <target-group>",
	Short: "Aggregate relevant context for a group from other groups",
	Long: `Aggregate collects each source group's nodes, ranks them against the
target group's focus, and merges the most relevant into one context,
optionally with LLM-extracted themes and a summary.

Examples:
  braind aggregate -p my-project audio --from visual --from writing
  braind aggregate -p my-project audio --from visual \
    --description "score and sound design for the chase sequence"`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringSliceVar(&aggSources, "from", nil, "source group to aggregate from (repeatable)")
	aggregateCmd.Flags().StringVar(&aggDescription, "description", "", "target focus description")
	aggregateCmd.Flags().IntVar(&aggPerSource, "per-source", 0, "nodes fetched per source group (default from config)")
	_ = aggregateCmd.MarkFlagRequired("from")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	if err := requirePartition(); err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.registry.Aggregate().AggregateContext(cmd.Context(), aggregate.Request{
		PartitionID:       partition,
		TargetGroup:       args[0],
		TargetDescription: aggDescription,
		SourceGroups:      aggSources,
		PerSourceLimit:    aggPerSource,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Prepare the config directory and download the ONNX runtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.EnsureConfigDir()
		if err != nil {
			return err
		}
		fmt.Printf("config directory ready at %s\n", dir)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		path, err := embeddings.EnsureONNXRuntime(ctx)
		if err != nil {
			return fmt.Errorf("installing ONNX runtime: %w", err)
		}
		fmt.Printf("ONNX runtime ready at %s\n", path)
		return nil
	},
}
