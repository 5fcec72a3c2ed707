// Package main implements the braind CLI for ingesting, searching, and
// aggregating knowledge nodes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fablecraft/braind/internal/config"
	"github.com/fablecraft/braind/internal/logging"
	"github.com/fablecraft/braind/internal/services"
	"github.com/fablecraft/braind/internal/telemetry"
)

var (
	configPath string
	partition  string
	logLevel   string

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "braind",
	Short: "Knowledge ingestion and retrieval engine",
	Long: `braind stores project-partitioned knowledge nodes with embeddings and
relationships, and retrieves them through semantic search, duplicate
detection, and cross-group context aggregation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/braind/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&partition, "partition", "p", "", "partition (project) ID")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(setupCmd)
}

// runtime bundles what every command needs after bootstrap.
type runtime struct {
	registry services.Registry
	logger   *zap.Logger
	close    func() error
}

func newRuntime() (*runtime, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(context.Background(), cfg.Telemetry, version)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	registry, closeFn, err := services.Build(cfg, logger)
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	closeAll := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(closeFn(), tel.Shutdown(ctx))
	}
	return &runtime{registry: registry, logger: logger, close: closeAll}, nil
}

func requirePartition() error {
	if partition == "" {
		return fmt.Errorf("--partition is required")
	}
	return nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
