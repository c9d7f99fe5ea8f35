package training

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/shammah/pkg/models"
)

func TestSend_FlushesAtBatchThreshold(t *testing.T) {
	dir := t.TempDir()
	queue := filepath.Join(dir, "training_queue.jsonl")
	c := New(Config{QueuePath: queue, BatchThreshold: 2, BatchTimeout: time.Hour}, nil)
	defer c.Close()

	c.Send(models.WeightedExample{Query: "q1", Response: "r1", Weight: 1})
	c.Send(models.WeightedExample{Query: "q2", Response: "r2", Weight: 1})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lineCount(t, queue) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := lineCount(t, queue); got != 2 {
		t.Fatalf("expected 2 lines flushed, got %d", got)
	}
}

func TestSend_ClampsWeight(t *testing.T) {
	dir := t.TempDir()
	queue := filepath.Join(dir, "training_queue.jsonl")
	c := New(Config{QueuePath: queue, BatchThreshold: 1, BatchTimeout: time.Hour}, nil)
	defer c.Close()

	c.Send(models.WeightedExample{Query: "q", Response: "r", Weight: 1000})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lineCount(t, queue) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, err := os.ReadFile(queue)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(string(data), `"weight":50`) {
		t.Fatalf("expected weight clamped to %v, got %s", WeightMax, data)
	}
}

func TestClose_FlushesPendingBatch(t *testing.T) {
	dir := t.TempDir()
	queue := filepath.Join(dir, "training_queue.jsonl")
	c := New(Config{QueuePath: queue, BatchThreshold: 100, BatchTimeout: time.Hour}, nil)
	c.Send(models.WeightedExample{Query: "q", Response: "r", Weight: 1})
	c.Close()

	if got := lineCount(t, queue); got != 1 {
		t.Fatalf("expected pending batch flushed on Close, got %d lines", got)
	}
}

func lineCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		if scanner.Text() != "" {
			n++
		}
	}
	return n
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
