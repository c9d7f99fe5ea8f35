package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/shammah/pkg/models"
)

// AnthropicProvider sends ProviderRequests through the official Anthropic
// SDK, translating Shammah's neutral Message/Block shapes to and from
// anthropic.MessageParam/ContentBlock (spec §4.2).
type AnthropicProvider struct {
	base
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey        string
	BaseURL       string
	MaxRetries    int
	DefaultModel  string
	RatePerSecond float64
	Burst         int
}

// NewAnthropicProvider builds a client-backed provider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		base:         newBase("anthropic", cfg.MaxRetries, cfg.RatePerSecond, cfg.Burst),
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) model(req models.ProviderRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// Send issues a non-streaming completion request with retry.
func (p *AnthropicProvider) Send(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return models.ProviderResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}

	var msg *anthropic.Message
	err = p.retry(ctx, p.model(req), func() error {
		var sendErr error
		msg, sendErr = p.client.Messages.New(ctx, params)
		return sendErr
	})
	if err != nil {
		return models.ProviderResponse{}, err
	}
	return p.convertResponse(msg, p.model(req)), nil
}

// Stream issues a streaming completion request (spec §4.3). Opening the
// stream passes through the retry wrapper, but the wrapped call never
// returns an error, so a failed stream is not retried: its error reaches
// the caller as a ChunkError on the returned channel.
func (p *AnthropicProvider) Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}

	var stream *anthropic.MessageStream
	err = p.retry(ctx, p.model(req), func() error {
		s := p.client.Messages.NewStreaming(ctx, params)
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go p.pump(stream, out)
	return out, nil
}

func (p *AnthropicProvider) pump(stream *anthropic.MessageStream, out chan<- models.StreamChunk) {
	defer close(out)

	var toolUse *models.ToolUse
	var toolInput []byte
	idx := 0

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				toolUse = &models.ToolUse{ID: tu.ID, Name: tu.Name}
				toolInput = nil
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- models.StreamChunk{Kind: models.ChunkTextDelta, Index: idx, Text: delta.Text}
				}
			case "input_json_delta":
				toolInput = append(toolInput, delta.PartialJSON...)
			}
		case "content_block_stop":
			if toolUse != nil {
				toolUse.Input = json.RawMessage(toolInput)
				block := models.ToolUseBlock(*toolUse)
				out <- models.StreamChunk{Kind: models.ChunkContentBlockComplete, Index: idx, Block: &block}
				toolUse = nil
			}
			idx++
		}
	}
	if err := stream.Err(); err != nil {
		out <- models.StreamChunk{Kind: models.ChunkError, Err: NewProviderError("anthropic", "", err)}
	}
}

func (p *AnthropicProvider) buildParams(req models.ProviderRequest) (anthropic.MessageNewParams, error) {
	messages, system, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToolsToAnthropic(req.Tools)
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

func convertMessagesToAnthropic(msgs []models.Message) ([]anthropic.MessageParam, string, error) {
	var system string
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			system += m.Text()
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Content {
			switch b.Type {
			case models.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case models.BlockToolUse:
				var input any
				if err := json.Unmarshal(b.ToolUse.Input, &input); err != nil {
					return nil, "", fmt.Errorf("unmarshal tool_use input for %s: %w", b.ToolUse.Name, err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUse.ID, input, b.ToolUse.Name))
			case models.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, b.ToolResult.Content, b.ToolResult.IsError))
			}
		}
		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, system, nil
}

func convertToolsToAnthropic(tools []models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]any, len(t.InputSchema))
		for k, v := range t.InputSchema {
			props[k] = map[string]string{"type": v}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: props},
			},
		})
	}
	return out
}

func (p *AnthropicProvider) convertResponse(msg *anthropic.Message, model string) models.ProviderResponse {
	resp := models.ProviderResponse{
		ID:           msg.ID,
		Model:        model,
		Role:         models.RoleAssistant,
		StopReason:   string(msg.StopReason),
		ProviderName: "anthropic",
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, models.TextBlock(block.Text))
		case "tool_use":
			inputJSON, _ := json.Marshal(block.Input)
			resp.Content = append(resp.Content, models.ToolUseBlock(models.ToolUse{
				ID:    block.ID,
				Name:  block.Name,
				Input: inputJSON,
			}))
		}
	}
	return resp
}
