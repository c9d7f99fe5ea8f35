// Package models holds the data types shared across Shammah's components:
// conversation messages, tool calls, provider requests/responses, and the
// generator/router state enums. Types here carry JSON tags because they
// cross process boundaries (the HTTP surface, the JSONL training queue, the
// on-disk conversation and approval stores).
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// BlockType discriminates the kind of content a Block carries.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one atomic element of a Message's content. Exactly one of Text,
// ToolUse, or ToolResult is populated, selected by Type.
type Block struct {
	Type       BlockType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolUse    *ToolUse        `json:"tool_use,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(tu ToolUse) Block {
	return Block{Type: BlockToolUse, ToolUse: &tu}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(tr ToolResultData) Block {
	return Block{Type: BlockToolResult, ToolResult: &tr}
}

// CharLen returns the rune count of text content contributed by this block,
// used by the conversation trimmer's char budget.
func (b Block) CharLen() int {
	switch b.Type {
	case BlockText:
		return len([]rune(b.Text))
	case BlockToolResult:
		if b.ToolResult != nil {
			return len([]rune(b.ToolResult.Content))
		}
	}
	return 0
}

// ToolUse is a model's request to invoke a tool.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultData is the outcome of executing a ToolUse.
type ToolResultData struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is one turn in a Conversation. A single assistant message may hold
// both text and one or more tool-use blocks; a single user message may hold
// only tool-result blocks (synthesized by the core, not typed by a human).
type Message struct {
	Role      Role      `json:"role"`
	Content   []Block   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Text concatenates every text block in the message, in order.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool-use block's payload, in order.
func (m Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// IsToolResultOnly reports whether every block is a tool-result block (such
// a message counts as "user" for alternation purposes even though the human
// never typed it).
func (m Message) IsToolResultOnly() bool {
	if len(m.Content) == 0 {
		return false
	}
	for _, b := range m.Content {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}

// CharLen is the total text-character contribution of the message toward a
// conversation's char budget.
func (m Message) CharLen() int {
	total := 0
	for _, b := range m.Content {
		total += b.CharLen()
	}
	return total
}
