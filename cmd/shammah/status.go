package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func buildStatusCmd() *cobra.Command {
	var override modelOverride

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print generator and routing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, override)
		},
	}
	cmd.Flags().StringVar(&override.family, "model-family", "", "Local model family override")
	cmd.Flags().StringVar(&override.size, "model-size", "", "Local model size override")
	cmd.Flags().StringVar(&override.provider, "model-provider", "", "Local model catalog provider override")
	return cmd
}

func runStatus(cmd *cobra.Command, override modelOverride) error {
	ctx := cmd.Context()
	log := slog.Default()

	core, err := buildCore(ctx, log, override)
	if err != nil {
		return err
	}
	defer core.close()

	// The bootstrap loader runs its state machine in the background; give
	// it a moment to move past Initializing before snapshotting.
	time.Sleep(200 * time.Millisecond)

	gen := core.loader.Snapshot()
	stats := core.routerState.Stats()

	fmt.Printf("generator: %s\n", gen.String())
	fmt.Printf("routing threshold: %.3f\n", core.routerState.Threshold())
	fmt.Printf("routing stats: queries=%d local_attempts=%d successes=%d forwards=%d\n",
		stats.TotalQueries, stats.TotalLocalAttempts, stats.TotalSuccesses, stats.TotalForwards)
	fmt.Printf("training queue depth: %d\n", core.trainingCh.QueueDepth())
	return nil
}
