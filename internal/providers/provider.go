package providers

import (
	"context"

	"github.com/haasonsaas/shammah/pkg/models"
)

// Provider is a remote LLM backend: a single non-streaming call and a
// streaming call, both taking the neutral request/response shapes
// (spec §4.2).
type Provider interface {
	Name() string
	DefaultModel() string
	Send(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error)
	Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, error)
}
