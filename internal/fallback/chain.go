// Package fallback implements the ordered-provider retry chain (spec §4.3):
// try each configured provider in turn, substituting its default model,
// and return the first success.
package fallback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/shammah/internal/providers"
	"github.com/haasonsaas/shammah/pkg/models"
)

// Chain holds an ordered list of providers to try in sequence.
type Chain struct {
	providers []providers.Provider
	log       *slog.Logger
}

// New builds a Chain. Order matters: providers are tried front to back.
func New(provs []providers.Provider, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{providers: provs, log: log}
}

// SendMessage substitutes each provider's default model into the request
// and tries providers in order, returning the first successful response
// tagged with its originating provider. On exhaustion it returns the last
// error wrapped with context (spec §4.3).
func (c *Chain) SendMessage(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error) {
	if len(c.providers) == 0 {
		return models.ProviderResponse{}, fmt.Errorf("fallback: no providers configured")
	}
	var lastErr error
	for _, p := range c.providers {
		attempt := req
		attempt.Model = p.DefaultModel()
		resp, err := p.Send(ctx, attempt)
		if err == nil {
			resp.ProviderName = p.Name()
			return resp, nil
		}
		c.log.Warn("provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}
	return models.ProviderResponse{}, fmt.Errorf("fallback: all providers exhausted: %w", lastErr)
}

// Stream tries providers in order until one hands back a channel. Once a
// channel is returned to the caller, a mid-stream error is propagated on
// that channel rather than triggering another provider attempt (spec
// §4.3: "Once streaming begins, a mid-stream error is propagated, not
// retried").
func (c *Chain) Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, string, error) {
	if len(c.providers) == 0 {
		return nil, "", fmt.Errorf("fallback: no providers configured")
	}
	var lastErr error
	for _, p := range c.providers {
		attempt := req
		attempt.Model = p.DefaultModel()
		ch, err := p.Stream(ctx, attempt)
		if err == nil {
			return ch, p.Name(), nil
		}
		c.log.Warn("provider stream failed before handoff, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}
	return nil, "", fmt.Errorf("fallback: all providers exhausted: %w", lastErr)
}
