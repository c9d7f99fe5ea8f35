package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/shammah/internal/daemon"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var (
		bind     string
		override modelOverride
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Shammah daemon",
		Long: `Start the Shammah daemon: binds an HTTP server exposing /v1/messages and
/v1/chat/completions, routes each query between the local generator and
the remote provider chain, and runs the tool loop and training channel in
the background.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, bind, override)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "127.0.0.1:8731", "Bind address for the daemon's HTTP server")
	cmd.Flags().StringVar(&override.family, "model-family", "", "Local model family override (e.g. qwen, llama)")
	cmd.Flags().StringVar(&override.size, "model-size", "", "Local model size override (e.g. 1.5b, 7b)")
	cmd.Flags().StringVar(&override.provider, "model-provider", "", "Local model catalog provider override")
	return cmd
}

func runServe(cmd *cobra.Command, bind string, override modelOverride) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := slog.Default()
	core, err := buildCore(ctx, log, override)
	if err != nil {
		return err
	}
	defer core.close()

	server := daemon.NewServer(daemon.Config{Addr: bind}, core.orchestrator, core.orchestrator.Metrics, log)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	log.Info("shammah daemon started", "addr", bind)
	<-ctx.Done()
	log.Info("shutting down")
	server.Stop(ctx)
	return nil
}
