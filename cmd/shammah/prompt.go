package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/haasonsaas/shammah/internal/convo"
	"github.com/haasonsaas/shammah/pkg/models"
	"github.com/spf13/cobra"
)

func buildPromptCmd() *cobra.Command {
	var (
		override modelOverride
		restore  string
		localOnly bool
	)

	cmd := &cobra.Command{
		Use:   "prompt [text]",
		Short: "Ask a single question without starting the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, args[0], override, restore, localOnly)
		},
	}

	cmd.Flags().StringVar(&override.family, "model-family", "", "Local model family override")
	cmd.Flags().StringVar(&override.size, "model-size", "", "Local model size override")
	cmd.Flags().StringVar(&override.provider, "model-provider", "", "Local model catalog provider override")
	cmd.Flags().StringVar(&restore, "restore", "", "Path to a prior conversation to restore and append to")
	cmd.Flags().BoolVar(&localOnly, "local-only", false, "Require local generation; fail rather than forwarding")
	return cmd
}

func sessionFilePath(restore string) string {
	if restore != "" {
		return restore
	}
	if p := os.Getenv("SHAMMAH_SESSION_FILE"); p != "" {
		return p
	}
	return ""
}

func runPrompt(cmd *cobra.Command, text string, override modelOverride, restore string, localOnly bool) error {
	ctx := cmd.Context()
	log := slog.Default()

	core, err := buildCore(ctx, log, override)
	if err != nil {
		return err
	}
	defer core.close()

	store := convo.New("one-shot")
	if path := sessionFilePath(restore); path != "" {
		if err := store.Load(path); err != nil {
			log.Warn("conversation restore failed, starting fresh", "error", err)
		}
		defer func() {
			if err := store.Save(path); err != nil {
				log.Warn("conversation save failed", "error", err)
			}
		}()
	}

	result, err := core.orchestrator.HandleQuery(ctx, store, text, "", localOnly)
	if err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}

	for _, b := range result.Content {
		if b.Type == models.BlockText {
			fmt.Println(b.Text)
		}
	}
	return nil
}
