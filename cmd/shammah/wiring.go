package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/haasonsaas/shammah/internal/bootstrap"
	"github.com/haasonsaas/shammah/internal/daemon"
	"github.com/haasonsaas/shammah/internal/fallback"
	"github.com/haasonsaas/shammah/internal/generator"
	"github.com/haasonsaas/shammah/internal/providers"
	"github.com/haasonsaas/shammah/internal/router"
	"github.com/haasonsaas/shammah/internal/tools"
	"github.com/haasonsaas/shammah/internal/training"
)

// modelOverride is the CLI's {family, size, provider} flag group (spec
// §6's CLI surface).
type modelOverride struct {
	family   string
	size     string
	provider string
}

func defaultShammahHome() string {
	if home := os.Getenv("SHAMMAH_HOME"); home != "" {
		return home
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".shammah"
	}
	return filepath.Join(dir, ".shammah")
}

// buildProviderChain wires every remote provider whose API key is present
// in the environment, front to back in a fixed preference order (spec
// §4.3). A missing key simply omits that provider rather than failing
// startup — the chain degrades gracefully as long as at least one remains.
func buildProviderChain(log *slog.Logger) (*fallback.Chain, error) {
	var provs []providers.Provider

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		provs = append(provs, p)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		provs = append(provs, p)
	}
	if len(provs) == 0 {
		log.Warn("no remote provider API keys found; fallback chain will fail on every forward")
	}
	return fallback.New(provs, log), nil
}

// coreServices bundles everything buildCore constructs, so callers
// can shut it down cleanly.
type coreServices struct {
	orchestrator *daemon.Orchestrator
	loader       *bootstrap.Loader
	routerState  *router.Router
	trainingCh   *training.Channel
	home         string
}

func (c *coreServices) routerStatePath() string {
	return filepath.Join(c.home, "router_state.yaml")
}

func (c *coreServices) close() {
	c.routerState.Save(c.routerStatePath())
	c.trainingCh.Close()
	c.loader.Close()
}

// buildCore wires the non-HTTP half of the system: router, bootstrap
// loader, generator, provider chain, tool executor, and training channel
// (spec §4.9's component ownership list).
func buildCore(ctx context.Context, log *slog.Logger, override modelOverride) (*coreServices, error) {
	home := defaultShammahHome()
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, newConfigError("create shammah home %s: %w", home, err)
	}

	chain, err := buildProviderChain(log)
	if err != nil {
		return nil, newConfigError("%w", err)
	}

	r := router.New()
	if err := r.Load(filepath.Join(home, "router_state.yaml")); err != nil {
		log.Warn("router state load failed, starting fresh", "error", err)
	}

	catalog := bootstrap.DefaultCatalog()
	adaptersDir := filepath.Join(home, "adapters")
	if err := os.MkdirAll(adaptersDir, 0o755); err != nil {
		return nil, newConfigError("create adapters dir: %w", err)
	}
	downloader := newHuggingFaceDownloader(filepath.Join(home, "models"), []string{"config.json", "tokenizer.json", "weights.safetensors"})
	modelLoader := &unavailableModelLoader{log: log}
	loader := bootstrap.NewLoader(catalog, downloader, modelLoader, adaptersDir, log)

	family, size, provider := override.family, override.size, override.provider
	if family == "" {
		family, size, provider = "qwen", "1.5b", "huggingface"
	}
	go loader.Run(ctx, family, size, provider)

	gen := generator.New(unavailableDecoder{}, fmt.Sprintf("%s/%s", family, size))

	registry := tools.NewRegistry()
	cache := tools.NewApprovalCache(filepath.Join(home, "tool_patterns.json"))
	if err := cache.Load(); err != nil {
		log.Warn("approval cache load failed, starting fresh", "error", err)
	}
	executor := tools.NewExecutor(registry, cache, newStdinApprover(), home, log)

	trainingCh := training.New(training.Config{
		QueuePath:      filepath.Join(home, "training_queue.jsonl"),
		AdapterOutPath: filepath.Join(adaptersDir, "latest"),
		TrainerBin:     os.Getenv("SHAMMAH_TRAINER_BIN"),
	}, log)

	metrics := daemon.NewMetrics()
	orch := &daemon.Orchestrator{
		Router:   r,
		Loader:   loader,
		Gen:      gen,
		Chain:    chain,
		Executor: executor,
		Training: trainingCh,
		Tools:    registry.Definitions(),
		Metrics:  metrics,
		Log:      log,
		CWD:      home,
	}

	return &coreServices{orchestrator: orch, loader: loader, routerState: r, trainingCh: trainingCh, home: home}, nil
}
