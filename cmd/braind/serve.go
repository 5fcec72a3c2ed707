package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run braind as a long-lived daemon",
	Long: `Serve builds the full service graph (store backend, embedding provider,
synthesis) and keeps it running until SIGINT or SIGTERM. Transport
frontends attach to the running services out of process.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.close(); err != nil {
			rt.logger.Error("shutdown error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt.logger.Info("braind started",
		zap.String("version", version),
		zap.String("embedding_model", rt.registry.Embedder().Model()),
		zap.Int("embedding_dimension", rt.registry.Embedder().Dimension()),
	)

	<-ctx.Done()
	rt.logger.Info("shutting down")
	return nil
}
