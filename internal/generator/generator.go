// Package generator implements the local generator (C5): builds a
// chat-template prompt, drives autoregressive decode over an opaque model
// handle, and extracts tool-use blocks from the free-text output (spec
// §4.5).
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/shammah/pkg/models"
)

// Decoder wraps an opaque, loaded model handle plus tokenizer. The
// generator treats prompt formatting as the only contract; tokenization
// and decode internals are the implementation's business (spec §4.5).
type Decoder interface {
	// Decode runs autoregressive generation over prompt up to maxNewTokens,
	// invoking tokenCB (if non-nil) once per decoded token, and returns the
	// final decoded text plus token-in/out counts.
	Decode(ctx context.Context, prompt string, maxNewTokens int, tokenCB func(token string)) (text string, tokensIn, tokensOut int, err error)
}

// Response is the generator's result (spec §4.5, "GeneratorResponse").
type Response struct {
	Text       string
	Blocks     []models.Block
	ToolUses   []models.ToolUse
	ModelName  string
	TokensIn   int
	TokensOut  int
	LatencyMS  int64
	Confidence float64
}

const (
	defaultMaxNewTokens = 1024
	lowConfidence       = 0.2
	highConfidence      = 0.85
)

var toolUseBlockRE = regexp.MustCompile(`(?s)<tool_use><name>(.*?)</name><parameters>(.*?)</parameters></tool_use>`)

// Generator builds prompts and parses Decoder output into Response values.
type Generator struct {
	decoder   Decoder
	modelName string
}

// New binds a Generator to a decoder and the currently loaded model's
// display name (for Response.ModelName).
func New(decoder Decoder, modelName string) *Generator {
	return &Generator{decoder: decoder, modelName: modelName}
}

// TryGenerate builds the chat-template prompt, decodes, and parses the
// result. tokenCB, if non-nil, receives each decoded token as it streams
// (spec §4.5).
func (g *Generator) TryGenerate(ctx context.Context, messages []models.Message, tools []models.ToolDefinition, tokenCB func(token string)) (*Response, error) {
	prompt := buildPrompt(messages, tools)
	start := time.Now()

	text, tokensIn, tokensOut, err := g.decoder.Decode(ctx, prompt, defaultMaxNewTokens, tokenCB)
	if err != nil {
		return nil, fmt.Errorf("generator: decode: %w", err)
	}

	cleanText, toolUses, err := extractToolUses(text)
	if err != nil {
		return nil, fmt.Errorf("generator: malformed tool_use block: %w", err)
	}

	resp := &Response{
		Text:      cleanText,
		ToolUses:  toolUses,
		ModelName: g.modelName,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if cleanText != "" {
		resp.Blocks = append(resp.Blocks, models.TextBlock(cleanText))
	}
	for _, tu := range toolUses {
		resp.Blocks = append(resp.Blocks, models.ToolUseBlock(tu))
	}
	resp.Confidence = confidence(cleanText, text)
	return resp, nil
}

// buildPrompt renders the opaque chat-template the spec describes: a
// system/constitution segment, alternating user/assistant turns, and an
// optional tool catalog, ending with an open assistant turn for the model
// to continue.
func buildPrompt(messages []models.Message, tools []models.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("<|sys_start|>")
	b.WriteString(systemPreamble(tools))
	b.WriteString("<|sys_end|>")

	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleAssistant:
			b.WriteString("<|asst_start|>")
			b.WriteString(renderTurn(m))
			b.WriteString("<|asst_end|>")
		default:
			b.WriteString("<|user_start|>")
			b.WriteString(renderTurn(m))
			b.WriteString("<|user_end|>")
		}
	}
	b.WriteString("<|asst_start|>")
	return b.String()
}

func renderTurn(m models.Message) string {
	var b strings.Builder
	b.WriteString(m.Text())
	for _, tu := range m.ToolUses() {
		fmt.Fprintf(&b, "<tool_use><name>%s</name><parameters>%s</parameters></tool_use>", tu.Name, string(tu.Input))
	}
	for _, blk := range m.Content {
		if blk.Type == models.BlockToolResult && blk.ToolResult != nil {
			b.WriteString(blk.ToolResult.Content)
		}
	}
	return b.String()
}

func systemPreamble(tools []models.ToolDefinition) string {
	if len(tools) == 0 {
		return "constitution"
	}
	var b strings.Builder
	b.WriteString("constitution\nAvailable Tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString("To call a tool, emit <tool_use><name>T</name><parameters>JSON</parameters></tool_use>.")
	return b.String()
}

// extractToolUses scans text for tool_use blocks, synthesizes fresh ids,
// and strips them from the returned clean text. Malformed JSON in any
// block fails the whole response (spec §4.5).
func extractToolUses(text string) (string, []models.ToolUse, error) {
	matches := toolUseBlockRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil, nil
	}

	var toolUses []models.ToolUse
	var clean strings.Builder
	last := 0
	for _, m := range matches {
		clean.WriteString(text[last:m[0]])
		last = m[1]

		name := text[m[2]:m[3]]
		paramsJSON := text[m[4]:m[5]]
		var v any
		if err := json.Unmarshal([]byte(paramsJSON), &v); err != nil {
			return "", nil, fmt.Errorf("tool %q: %w", name, err)
		}
		toolUses = append(toolUses, models.ToolUse{
			ID:    uuid.NewString(),
			Name:  name,
			Input: json.RawMessage(paramsJSON),
		})
	}
	clean.WriteString(text[last:])
	return strings.TrimSpace(clean.String()), toolUses, nil
}

// confidence implements spec §4.5's rule: no text, or only a
// truncated/error marker, scores low; anything else scores high. Used
// purely as a fallback trigger by the caller, never for routing.
func confidence(cleanText, rawText string) float64 {
	trimmed := strings.TrimSpace(cleanText)
	if trimmed == "" {
		return lowConfidence - 0.1
	}
	lower := strings.ToLower(rawText)
	if strings.Contains(lower, "[truncated]") || strings.Contains(lower, "[error:") || strings.Contains(lower, "[error]") {
		return lowConfidence
	}
	return highConfidence
}
