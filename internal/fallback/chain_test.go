package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/shammah/internal/providers"
	"github.com/haasonsaas/shammah/pkg/models"
)

type fakeProvider struct {
	name  string
	model string
	err   error
	text  string
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) DefaultModel() string { return p.model }
func (p *fakeProvider) Send(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error) {
	if p.err != nil {
		return models.ProviderResponse{}, p.err
	}
	return models.ProviderResponse{Model: req.Model, Content: []models.Block{models.TextBlock(p.text)}}, nil
}
func (p *fakeProvider) Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan models.StreamChunk, 1)
	ch <- models.StreamChunk{Kind: models.ChunkTextDelta, Text: p.text}
	close(ch)
	return ch, nil
}

func TestChain_SendMessage_FirstSucceeds(t *testing.T) {
	c := New([]providers.Provider{
		&fakeProvider{name: "a", model: "model-a", text: "from a"},
		&fakeProvider{name: "b", model: "model-b", text: "from b"},
	}, nil)

	resp, err := c.SendMessage(context.Background(), models.ProviderRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderName != "a" || resp.Text() != "from a" {
		t.Fatalf("expected first provider's response, got %+v", resp)
	}
}

func TestChain_SendMessage_FailsOverToSecond(t *testing.T) {
	c := New([]providers.Provider{
		&fakeProvider{name: "a", model: "model-a", err: errors.New("rate limited")},
		&fakeProvider{name: "b", model: "model-b", text: "from b"},
	}, nil)

	resp, err := c.SendMessage(context.Background(), models.ProviderRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProviderName != "b" || resp.Text() != "from b" {
		t.Fatalf("expected fallback to second provider, got %+v", resp)
	}
}

func TestChain_SendMessage_AllExhausted(t *testing.T) {
	c := New([]providers.Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("also down")},
	}, nil)

	_, err := c.SendMessage(context.Background(), models.ProviderRequest{})
	if err == nil {
		t.Fatal("expected an error when every provider fails")
	}
}

func TestChain_SendMessage_NoProviders(t *testing.T) {
	c := New(nil, nil)
	_, err := c.SendMessage(context.Background(), models.ProviderRequest{})
	if err == nil {
		t.Fatal("expected an error with no providers configured")
	}
}

func TestChain_SendMessage_DefaultModelSubstitution(t *testing.T) {
	var seenModel string
	c := New([]providers.Provider{
		&recordingProvider{name: "a", model: "model-a", onSend: func(req models.ProviderRequest) { seenModel = req.Model }},
	}, nil)

	_, err := c.SendMessage(context.Background(), models.ProviderRequest{Model: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenModel != "model-a" {
		t.Fatalf("expected default model to be substituted, got %q", seenModel)
	}
}

func TestChain_SendMessage_DefaultModelSubstitutionOverwritesCaller(t *testing.T) {
	// The neutral /v1/messages API always carries a client-supplied model
	// (the local one, or a prior provider's), so substitution must happen
	// on every attempt, not just when the field is empty.
	var seenModel string
	c := New([]providers.Provider{
		&recordingProvider{name: "a", model: "model-a", onSend: func(req models.ProviderRequest) { seenModel = req.Model }},
	}, nil)

	_, err := c.SendMessage(context.Background(), models.ProviderRequest{Model: "caller-supplied-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenModel != "model-a" {
		t.Fatalf("expected provider's own default model to replace the caller-supplied one, got %q", seenModel)
	}
}

func TestChain_SendMessage_FailoverSubstitutesSecondProvidersModel(t *testing.T) {
	var seenModel string
	c := New([]providers.Provider{
		&fakeProvider{name: "a", model: "model-a", err: errors.New("rate limited")},
		&recordingProvider{name: "b", model: "model-b", onSend: func(req models.ProviderRequest) { seenModel = req.Model }},
	}, nil)

	_, err := c.SendMessage(context.Background(), models.ProviderRequest{Model: "model-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenModel != "model-b" {
		t.Fatalf("expected fallback attempt to carry provider b's default model, not provider a's, got %q", seenModel)
	}
}

type recordingProvider struct {
	name   string
	model  string
	onSend func(models.ProviderRequest)
}

func (p *recordingProvider) Name() string         { return p.name }
func (p *recordingProvider) DefaultModel() string { return p.model }
func (p *recordingProvider) Send(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error) {
	p.onSend(req)
	return models.ProviderResponse{Model: req.Model}, nil
}
func (p *recordingProvider) Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, error) {
	ch := make(chan models.StreamChunk)
	close(ch)
	return ch, nil
}

func TestChain_Stream_FailsOverBeforeStreamingBegins(t *testing.T) {
	c := New([]providers.Provider{
		&fakeProvider{name: "a", err: errors.New("unavailable")},
		&fakeProvider{name: "b", model: "model-b", text: "streamed"},
	}, nil)

	ch, providerName, err := c.Stream(context.Background(), models.ProviderRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providerName != "b" {
		t.Fatalf("expected fallback to provider b, got %q", providerName)
	}
	chunk, ok := <-ch
	if !ok || chunk.Text != "streamed" {
		t.Fatalf("expected to read the streamed chunk, got %+v ok=%v", chunk, ok)
	}
}
