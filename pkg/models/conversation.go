package models

import "time"

// Conversation is the ordered message history for one session, bounded by
// both a message-count and a character budget (spec §3, "Conversation";
// §8 invariants 1-2).
type Conversation struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	Messages      []Message `json:"messages"`
	MaxMessages   int       `json:"max_messages"`
	MaxCharBudget int       `json:"max_char_budget"`
}

// CurrentSchemaVersion is written to every persisted Conversation. Load
// refuses any file with a newer version, treating it the same as a corrupt
// file per §7's State-kind error policy.
const CurrentSchemaVersion = 1

// CharTotal returns the sum of CharLen across every message.
func (c *Conversation) CharTotal() int {
	total := 0
	for _, m := range c.Messages {
		total += m.CharLen()
	}
	return total
}

// Trim drops the oldest messages until both the message-count and
// char-budget limits are satisfied. A message is never split; trimming
// always removes whole messages from the front.
func (c *Conversation) Trim() {
	for len(c.Messages) > c.MaxMessages || c.CharTotal() > c.MaxCharBudget {
		if len(c.Messages) == 0 {
			break
		}
		c.Messages = c.Messages[1:]
	}
}

// Append adds a message and then trims, preserving the invariant that the
// conversation never exceeds its budgets after a call returns.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
	c.Trim()
}

// EstimatedTokens approximates token count as char_count/4, the heuristic
// spec §3 prescribes in place of a real tokenizer for routing/budget
// decisions outside the provider call itself.
func (c *Conversation) EstimatedTokens() int {
	return c.CharTotal() / 4
}

// Session is a daemon-level conversation handle tracked for idle eviction.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Idle reports whether the session has been untouched for at least d.
func (s Session) Idle(d time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) >= d
}
