// Package convo implements the conversation store (C1): an append/trim/
// persist log of messages bounded by both a message count and a
// character budget (spec §4.1).
package convo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/shammah/pkg/models"
)

const (
	defaultMaxMessages   = 200
	defaultMaxCharBudget = 400_000
)

// Store is a thread-safe wrapper around a models.Conversation, so the
// daemon can append from a tool-execution goroutine while an unrelated
// status endpoint reads a snapshot.
type Store struct {
	mu   sync.RWMutex
	conv models.Conversation
}

// New returns an empty Store bound to sessionID with default budgets.
func New(sessionID string) *Store {
	return &Store{conv: models.Conversation{
		SchemaVersion: models.CurrentSchemaVersion,
		SessionID:     sessionID,
		MaxMessages:   defaultMaxMessages,
		MaxCharBudget: defaultMaxCharBudget,
	}}
}

// Append adds a message, then runs the trimmer: drop oldest messages
// until both budgets are satisfied. A message is never split; this may
// drop a user message whose assistant reply hasn't arrived yet (spec
// §4.1).
func (s *Store) Append(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Append(m)
}

// Snapshot returns an immutable copy of the current message list.
func (s *Store) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.conv.Messages))
	copy(out, s.conv.Messages)
	return out
}

// Clear empties the conversation, keeping its budgets and session id.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Messages = nil
}

// EstimatedTokens returns char_count/4 across the whole conversation.
func (s *Store) EstimatedTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv.EstimatedTokens()
}

// onDiskConversation is the persisted shape. Extra fields a newer writer
// might add are simply dropped on decode into this struct, satisfying
// "unknown/future fields are ignored on load" (spec §4.1) — but a
// SchemaVersion newer than CurrentSchemaVersion is refused outright
// rather than partially trusted, per the original's versioning behavior
// (SPEC_FULL.md supplemented feature).
type onDiskConversation struct {
	SchemaVersion int              `json:"schema_version"`
	SessionID     string           `json:"session_id"`
	Messages      []models.Message `json:"messages"`
	MaxMessages   int              `json:"max_messages"`
	MaxCharBudget int              `json:"max_char_budget"`
}

// Save writes the conversation to path as indented JSON via a
// temp-file-then-rename so a crash mid-write never truncates the file.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	doc := onDiskConversation{
		SchemaVersion: models.CurrentSchemaVersion,
		SessionID:     s.conv.SessionID,
		Messages:      s.conv.Messages,
		MaxMessages:   s.conv.MaxMessages,
		MaxCharBudget: s.conv.MaxCharBudget,
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("convo: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".conversation-*.json.tmp")
	if err != nil {
		return fmt.Errorf("convo: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("convo: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("convo: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("convo: rename into place: %w", err)
	}
	return nil
}

// ErrCorrupt signals a conversation file that could not be loaded —
// either malformed JSON or a schema_version newer than this binary
// understands. Per spec §7's State-kind error policy, callers should
// treat this the same as a missing file: start from empty and warn.
type ErrCorrupt struct {
	Path string
	Err  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("convo: %s is corrupt or unreadable: %v", e.Path, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Load reads path into the store. A missing file is not an error (fresh
// session). A corrupt file, or one with a newer schema_version than this
// binary knows, is reported as *ErrCorrupt so the caller can log a
// warning and continue with an empty conversation, per §7.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &ErrCorrupt{Path: path, Err: err}
	}

	var doc onDiskConversation
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ErrCorrupt{Path: path, Err: err}
	}
	if doc.SchemaVersion > models.CurrentSchemaVersion {
		return &ErrCorrupt{Path: path, Err: fmt.Errorf("schema_version %d newer than supported %d", doc.SchemaVersion, models.CurrentSchemaVersion)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.SessionID = doc.SessionID
	s.conv.Messages = doc.Messages
	if doc.MaxMessages > 0 {
		s.conv.MaxMessages = doc.MaxMessages
	}
	if doc.MaxCharBudget > 0 {
		s.conv.MaxCharBudget = doc.MaxCharBudget
	}
	return nil
}
