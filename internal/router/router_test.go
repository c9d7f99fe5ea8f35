package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/shammah/pkg/models"
)

func TestShouldTryLocal_ColdStartAlwaysForwards(t *testing.T) {
	r := New()
	for i := 0; i < coldStartEnd; i++ {
		if r.ShouldTryLocal("what is the capital of france") {
			t.Fatalf("cold start phase must never try local (query %d)", i)
		}
		r.LearnForwarded()
	}
}

func TestShouldTryLocal_WarmupRequiresMargin(t *testing.T) {
	r := New()
	r.threshold = 0.5
	r.stats.TotalQueries = coldStartEnd + 1
	if r.ShouldTryLocal("think through why this tradeoff matters and analyze it") {
		t.Fatalf("low-score query should not pass warmup margin")
	}
}

func TestLearnLocalAttempt_SuccessLoosensThreshold(t *testing.T) {
	r := New()
	before := r.Threshold()
	r.LearnLocalAttempt(true)
	if r.Threshold() >= before {
		t.Fatalf("success should lower threshold: before=%f after=%f", before, r.Threshold())
	}
}

func TestLearnLocalAttempt_FailureTightensThreshold(t *testing.T) {
	r := New()
	before := r.Threshold()
	r.LearnLocalAttempt(false)
	if r.Threshold() <= before {
		t.Fatalf("failure should raise threshold: before=%f after=%f", before, r.Threshold())
	}
}

func TestLearnLocalAttempt_ThresholdClamped(t *testing.T) {
	r := New()
	for i := 0; i < 1000; i++ {
		r.LearnLocalAttempt(true)
	}
	if r.Threshold() < thresholdMin {
		t.Fatalf("threshold must clamp at %f, got %f", thresholdMin, r.Threshold())
	}
	r2 := New()
	for i := 0; i < 1000; i++ {
		r2.LearnLocalAttempt(false)
	}
	if r2.Threshold() > thresholdMax {
		t.Fatalf("threshold must clamp at %f, got %f", thresholdMax, r2.Threshold())
	}
}

func TestRouteWithGeneratorCheck_NotReady(t *testing.T) {
	r := New()
	d := r.RouteWithGeneratorCheck("hello", false)
	if d.Local || d.Reason != models.ReasonModelNotReady {
		t.Fatalf("expected ModelNotReady forward, got %+v", d)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	r := New()
	r.LearnLocalAttempt(true)
	r.LearnForwarded()
	path := filepath.Join(t.TempDir(), "router.yaml")
	if err := r.Save(path); err != nil {
		t.Fatal(err)
	}

	r2 := New()
	if err := r2.Load(path); err != nil {
		t.Fatal(err)
	}
	if r2.Threshold() != r.Threshold() {
		t.Fatalf("threshold mismatch after round trip: %f != %f", r2.Threshold(), r.Threshold())
	}
	if r2.Stats().TotalQueries != r.Stats().TotalQueries {
		t.Fatalf("stats mismatch after round trip")
	}
}

func TestLoad_MissingFileLeavesDefault(t *testing.T) {
	r := New()
	if err := r.Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatal(err)
	}
	if r.Threshold() != 0.5 {
		t.Fatalf("expected default threshold, got %f", r.Threshold())
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New()
	if err := r.Load(path); err == nil {
		t.Fatalf("expected parse error surfaced to caller")
	}
}
