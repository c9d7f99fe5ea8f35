package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/haasonsaas/shammah/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider sends ProviderRequests through an OpenAI-compatible chat
// completions API. The thinking passthrough fields (EnableThinking,
// ThinkingBudgetTokens) are silently ignored, per SPEC_FULL.md's
// supplemented-feature note.
type OpenAIProvider struct {
	base
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	MaxRetries    int
	DefaultModel  string
	RatePerSecond float64
	Burst         int
}

// NewOpenAIProvider builds a client-backed provider. APIKey is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{
		base:         newBase("openai", cfg.MaxRetries, cfg.RatePerSecond, cfg.Burst),
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) model(req models.ProviderRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// Send issues a non-streaming chat completion request with retry.
func (p *OpenAIProvider) Send(ctx context.Context, req models.ProviderRequest) (models.ProviderResponse, error) {
	chatReq := p.buildRequest(req)
	var resp openai.ChatCompletionResponse
	err := p.retry(ctx, p.model(req), func() error {
		var sendErr error
		resp, sendErr = p.client.CreateChatCompletion(ctx, chatReq)
		return sendErr
	})
	if err != nil {
		return models.ProviderResponse{}, err
	}
	return convertOpenAIResponse(resp, p.model(req)), nil
}

// Stream issues a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, req models.ProviderRequest) (<-chan models.StreamChunk, error) {
	chatReq := p.buildRequest(req)
	chatReq.Stream = true

	var stream *openai.ChatCompletionStream
	err := p.retry(ctx, p.model(req), func() error {
		var sendErr error
		stream, sendErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return sendErr
	})
	if err != nil {
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go pumpOpenAIStream(stream, out)
	return out, nil
}

func pumpOpenAIStream(stream *openai.ChatCompletionStream, out chan<- models.StreamChunk) {
	defer close(out)
	defer stream.Close()

	type building struct {
		tu    models.ToolUse
		input []byte
	}
	calls := make(map[int]*building)
	idx := 0

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			for i := 0; i < len(calls); i++ {
				if b, ok := calls[i]; ok {
					b.tu.Input = json.RawMessage(b.input)
					block := models.ToolUseBlock(b.tu)
					out <- models.StreamChunk{Kind: models.ChunkContentBlockComplete, Index: i, Block: &block}
				}
			}
			return
		}
		if err != nil {
			out <- models.StreamChunk{Kind: models.ChunkError, Err: NewProviderError("openai", "", err)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- models.StreamChunk{Kind: models.ChunkTextDelta, Index: idx, Text: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			i := 0
			if tc.Index != nil {
				i = *tc.Index
			}
			b, ok := calls[i]
			if !ok {
				b = &building{}
				calls[i] = b
			}
			if tc.ID != "" {
				b.tu.ID = tc.ID
			}
			if tc.Function.Name != "" {
				b.tu.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				b.input = append(b.input, tc.Function.Arguments...)
			}
		}
	}
}

func (p *OpenAIProvider) buildRequest(req models.ProviderRequest) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:     p.model(req),
		Messages:  convertMessagesToOpenAI(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	return chatReq
}

func convertMessagesToOpenAI(msgs []models.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Text()})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
			for _, tu := range m.ToolUses() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tu.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tu.Name,
						Arguments: string(tu.Input),
					},
				})
			}
			out = append(out, msg)
		default:
			if m.IsToolResultOnly() {
				for _, b := range m.Content {
					if b.Type == models.BlockToolResult {
						out = append(out, openai.ChatCompletionMessage{
							Role:       openai.ChatMessageRoleTool,
							Content:    b.ToolResult.Content,
							ToolCallID: b.ToolResult.ToolUseID,
						})
					}
				}
				continue
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text()})
		}
	}
	return out
}

func convertToolsToOpenAI(tools []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]any, len(t.InputSchema))
		for k, v := range t.InputSchema {
			props[k] = map[string]string{"type": v}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
				},
			},
		})
	}
	return out
}

func convertOpenAIResponse(resp openai.ChatCompletionResponse, model string) models.ProviderResponse {
	out := models.ProviderResponse{
		ID:           resp.ID,
		Model:        model,
		Role:         models.RoleAssistant,
		ProviderName: "openai",
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.StopReason = string(choice.FinishReason)
	if choice.Message.Content != "" {
		out.Content = append(out.Content, models.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Content = append(out.Content, models.ToolUseBlock(models.ToolUse{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		}))
	}
	return out
}
