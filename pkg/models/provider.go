package models

// ToolDefinition describes a tool the model may request, in enough detail
// for a provider to instruct its model. Strict input validation is left to
// the tool implementation (spec §3).
type ToolDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSchema map[string]string `json:"input_schema"`
}

// ProviderRequest is the neutral shape every provider translates to and from
// its own wire format.
type ProviderRequest struct {
	Messages    []Message        `json:"messages"`
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`

	// EnableThinking and ThinkingBudgetTokens are passed through to
	// providers that support extended reasoning (Anthropic); providers
	// that don't support it silently ignore both fields.
	EnableThinking       bool `json:"enable_thinking,omitempty"`
	ThinkingBudgetTokens int  `json:"thinking_budget_tokens,omitempty"`
}

// ProviderResponse is the neutral shape returned by a completed (non-stream)
// provider call.
type ProviderResponse struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Content      []Block `json:"content"`
	StopReason   string  `json:"stop_reason,omitempty"`
	Role         Role    `json:"role"`
	ProviderName string  `json:"provider_name"`
}

// Text concatenates the response's text blocks.
func (r ProviderResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the response's tool-use blocks, in order.
func (r ProviderResponse) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range r.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// StreamChunkKind discriminates a StreamChunk's payload.
type StreamChunkKind string

const (
	ChunkTextDelta            StreamChunkKind = "text_delta"
	ChunkContentBlockComplete StreamChunkKind = "content_block_complete"
	ChunkError                StreamChunkKind = "error"
)

// StreamChunk is one event on a provider's streaming channel.
type StreamChunk struct {
	Kind  StreamChunkKind `json:"kind"`
	Index int             `json:"index"`
	Text  string          `json:"text,omitempty"`
	Block *Block          `json:"block,omitempty"`
	Err   error           `json:"-"`
}
