package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fablecraft/braind/internal/knowledge"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Create a batch of knowledge nodes from a JSON file or stdin",
	Long: `Ingest reads a JSON array of node inputs and creates them as a batch.
The whole batch is validated before any node is embedded or stored.

Examples:
  # Ingest from a file
  braind ingest -p my-project nodes.json

  # Ingest from stdin
  cat nodes.json | braind ingest -p my-project -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requirePartition(); err != nil {
		return err
	}

	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
	}

	var items []knowledge.NodeInput
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parsing node inputs: %w", err)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.registry.Ingest().CreateBatch(cmd.Context(), partition, items)
	if err != nil {
		return err
	}
	return printJSON(result)
}

var deleteCmd = &cobra.Command{
	Use:   "delete <node-id>",
	Short: "Delete a knowledge node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePartition(); err != nil {
			return err
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.registry.Ingest().DeleteNode(cmd.Context(), partition, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}
