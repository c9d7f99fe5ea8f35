package convo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/shammah/pkg/models"
)

func userMsg(text string) models.Message {
	return models.Message{Role: models.RoleUser, Content: []models.Block{models.TextBlock(text)}}
}

func TestAppend_TrimsByMessageCount(t *testing.T) {
	s := New("sess")
	s.conv.MaxMessages = 3
	s.conv.MaxCharBudget = 1_000_000
	for i := 0; i < 5; i++ {
		s.Append(userMsg("hello"))
	}
	if got := len(s.Snapshot()); got != 3 {
		t.Fatalf("expected 3 messages after trim, got %d", got)
	}
}

func TestAppend_TrimsByCharBudget(t *testing.T) {
	s := New("sess")
	s.conv.MaxMessages = 1000
	s.conv.MaxCharBudget = 10
	s.Append(userMsg("01234567890123456789"))
	s.Append(userMsg("short"))
	total := 0
	for _, m := range s.Snapshot() {
		total += m.CharLen()
	}
	if total > s.conv.MaxCharBudget && len(s.Snapshot()) > 1 {
		t.Fatalf("expected trimmer to drop oldest message, total=%d", total)
	}
}

func TestAppend_NeverSplitsAMessage(t *testing.T) {
	s := New("sess")
	s.conv.MaxMessages = 1000
	s.conv.MaxCharBudget = 5
	s.Append(userMsg("this message alone exceeds the budget"))
	snap := s.Snapshot()
	if len(snap) != 0 {
		t.Fatalf("a single over-budget message must be dropped whole, never split to fit: got %d messages", len(snap))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := New("sess-1")
	s.Append(userMsg("hello there"))
	path := filepath.Join(t.TempDir(), "conversation.json")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	s2 := New("")
	if err := s2.Load(path); err != nil {
		t.Fatal(err)
	}
	snap := s2.Snapshot()
	if len(snap) != 1 || snap[0].Text() != "hello there" {
		t.Fatalf("round trip mismatch: %+v", snap)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	s := New("sess")
	if err := s.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestLoad_CorruptFileReturnsErrCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New("sess")
	err := s.Load(path)
	if err == nil {
		t.Fatal("expected ErrCorrupt")
	}
	var ec *ErrCorrupt
	if !errors.As(err, &ec) {
		t.Fatalf("expected *ErrCorrupt, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "corrupt") {
		t.Fatalf("expected corrupt error message, got %v", err)
	}
}

func TestLoad_RefusesNewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.json")
	data := `{"schema_version": 999, "session_id": "x", "messages": []}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New("sess")
	if err := s.Load(path); err == nil {
		t.Fatal("expected refusal of newer schema_version")
	}
}

func TestClear(t *testing.T) {
	s := New("sess")
	s.Append(userMsg("hi"))
	s.Clear()
	if len(s.Snapshot()) != 0 {
		t.Fatal("expected empty conversation after Clear")
	}
}
