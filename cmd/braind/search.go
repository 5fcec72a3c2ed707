package main

import (
	"github.com/spf13/cobra"

	"github.com/fablecraft/braind/internal/search"
)

var (
	searchTopK      int
	searchThreshold float32
	searchFilters   map[string]string

	dupThreshold float32
	dupLimit     int
	dupExclude   []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search within a partition",
	Long: `Search embeds the query text and returns the most similar nodes in
the partition, relevance descending.

Examples:
  braind search -p my-project "villain's motivation in act two"
  braind search -p my-project --filter node_type=scene --top-k 5 "opening shot"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <content>",
	Short: "Find near-duplicate nodes for a piece of content",
	Long: `Duplicates embeds the content and returns nodes whose similarity is at
or above the duplicate threshold, ordered by similarity.

Examples:
  braind duplicates -p my-project "The hero loses the amulet at the docks."
  braind duplicates -p my-project --exclude node-123 "..."`,
	Args: cobra.ExactArgs(1),
	RunE: runDuplicates,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum results (default from config)")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum similarity score")
	searchCmd.Flags().StringToStringVar(&searchFilters, "filter", nil, "property filters, key=value")

	duplicatesCmd.Flags().Float32Var(&dupThreshold, "threshold", 0, "duplicate similarity threshold (default from config)")
	duplicatesCmd.Flags().IntVar(&dupLimit, "limit", 0, "maximum results (default from config)")
	duplicatesCmd.Flags().StringSliceVar(&dupExclude, "exclude", nil, "node IDs to exclude")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requirePartition(); err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.registry.Search().Search(cmd.Context(), search.Request{
		PartitionID: partition,
		Query:       args[0],
		TopK:        searchTopK,
		Threshold:   searchThreshold,
		Filters:     searchFilters,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	if err := requirePartition(); err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.registry.Search().FindDuplicates(cmd.Context(), search.DuplicateRequest{
		PartitionID: partition,
		Content:     args[0],
		ExcludeIDs:  dupExclude,
		Threshold:   dupThreshold,
		Limit:       dupLimit,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}
