package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/shammah/pkg/models"
	"github.com/sashabaranov/go-openai"
)

func TestConvertMessagesToOpenAI_Roles(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Content: []models.Block{models.TextBlock("be helpful")}},
		{Role: models.RoleUser, Content: []models.Block{models.TextBlock("hi")}},
	}
	out := convertMessagesToOpenAI(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be helpful" {
		t.Fatalf("unexpected system message: %+v", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleUser || out[1].Content != "hi" {
		t.Fatalf("unexpected user message: %+v", out[1])
	}
}

func TestConvertMessagesToOpenAI_AssistantToolCalls(t *testing.T) {
	tu := models.ToolUse{ID: "call_1", Name: "search", Input: json.RawMessage(`{"q":"go"}`)}
	msgs := []models.Message{
		{Role: models.RoleAssistant, Content: []models.Block{models.TextBlock("let me check"), models.ToolUseBlock(tu)}},
	}
	out := convertMessagesToOpenAI(msgs)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if len(out[0].ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(out[0].ToolCalls))
	}
	call := out[0].ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "search" || call.Function.Arguments != `{"q":"go"}` {
		t.Fatalf("unexpected tool call: %+v", call)
	}
}

func TestConvertMessagesToOpenAI_ToolResultOnly(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: []models.Block{models.ToolResultBlock(models.ToolResultData{
			ToolUseID: "call_1", Content: "42", IsError: false,
		})}},
	}
	out := convertMessagesToOpenAI(msgs)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleTool || out[0].ToolCallID != "call_1" || out[0].Content != "42" {
		t.Fatalf("unexpected tool-result message: %+v", out[0])
	}
}

func TestConvertToolsToOpenAI(t *testing.T) {
	defs := []models.ToolDefinition{
		{Name: "search", Description: "web search", InputSchema: map[string]string{"q": "string"}},
	}
	out := convertToolsToOpenAI(defs)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Function.Name != "search" || out[0].Type != openai.ToolTypeFunction {
		t.Fatalf("unexpected tool: %+v", out[0])
	}
}

func TestConvertOpenAIResponse_TextOnly(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		ID: "resp_1",
		Choices: []openai.ChatCompletionChoice{
			{FinishReason: openai.FinishReasonStop, Message: openai.ChatCompletionMessage{Content: "hello"}},
		},
	}
	out := convertOpenAIResponse(resp, "gpt-4o")
	if out.ID != "resp_1" || out.Model != "gpt-4o" || out.ProviderName != "openai" {
		t.Fatalf("unexpected response metadata: %+v", out)
	}
	if out.Text() != "hello" {
		t.Fatalf("expected text 'hello', got %q", out.Text())
	}
}

func TestConvertOpenAIResponse_ToolCalls(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		ID: "resp_2",
		Choices: []openai.ChatCompletionChoice{
			{
				FinishReason: openai.FinishReasonToolCalls,
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{
						{ID: "call_1", Function: openai.FunctionCall{Name: "search", Arguments: `{"q":"go"}`}},
					},
				},
			},
		},
	}
	out := convertOpenAIResponse(resp, "gpt-4o")
	uses := out.ToolUses()
	if len(uses) != 1 || uses[0].Name != "search" || uses[0].ID != "call_1" {
		t.Fatalf("unexpected tool uses: %+v", uses)
	}
}

func TestConvertOpenAIResponse_NoChoices(t *testing.T) {
	out := convertOpenAIResponse(openai.ChatCompletionResponse{ID: "resp_3"}, "gpt-4o")
	if out.ID != "resp_3" || len(out.Content) != 0 {
		t.Fatalf("expected empty content for a response with no choices, got %+v", out)
	}
}
