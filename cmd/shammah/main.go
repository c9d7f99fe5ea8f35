// Package main provides the CLI entry point for Shammah, a local-first
// inference daemon that routes queries between a local generator and
// remote providers, executes tools, and trains a local adapter from
// remote-provider examples.
//
// # Basic Usage
//
// Start the daemon:
//
//	shammah serve --bind 127.0.0.1:8731
//
// Ask a single question without starting the daemon:
//
//	shammah prompt "what does this repo do"
//
// Check generator and routing status:
//
//	shammah status
//
// # Environment Variables
//
//   - SHAMMAH_SESSION_FILE: override the session dump path
//   - HF_TOKEN: passed through to the model download collaborator
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY: remote provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps errors to the spec's exit codes: 0 normal, 1
// configuration error, 2 unrecoverable runtime error (spec §6).
func exitCodeFor(err error) int {
	var ce *configError
	if ok := asConfigError(err, &ce); ok {
		return 1
	}
	return 2
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func newConfigError(format string, args ...any) error {
	return &configError{err: fmt.Errorf(format, args...)}
}

func asConfigError(err error, target **configError) bool {
	for err != nil {
		if ce, ok := err.(*configError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shammah",
		Short: "Shammah - local-first inference daemon with remote fallback",
		Long: `Shammah routes queries between a local generator and remote LLM providers,
executes tool calls against an approval-gated registry, and trains a local
adapter from remote-provider examples it collects along the way.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildPromptCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
