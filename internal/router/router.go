// Package router implements the threshold router (C7): a confidence-gated
// binary classifier deciding whether a query should attempt local
// generation or forward to a remote provider, with online-learning
// threshold adjustment (spec §4.7).
package router

import (
	"fmt"
	"os"
	"sync"

	"github.com/haasonsaas/shammah/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	// warmupMargin is recovered from original_source/src/models/router.rs;
	// the distilled spec names the Warmup phase's "margin" without a value.
	warmupMargin = 0.15

	learningRate  = 0.01
	thresholdMin  = 0.2
	thresholdMax  = 0.95
	coldStartEnd  = 50
	warmupEnd     = 200
)

// Router is the threshold router's mutable state: current threshold plus
// running statistics, guarded by a mutex since daemon requests are
// concurrent (spec §4.9's per-query suspension points).
type Router struct {
	mu        sync.Mutex
	threshold float64
	stats     models.RoutingStats
}

// New returns a router with the default starting threshold.
func New() *Router {
	return &Router{threshold: 0.5}
}

// ShouldTryLocal applies the phase logic in spec §4.7 to decide whether
// query is worth attempting locally, independent of whether the generator
// is actually ready — that check is layered on by RouteWithGeneratorCheck.
func (r *Router) ShouldTryLocal(query string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shouldTryLocalLocked(query)
}

func (r *Router) shouldTryLocalLocked(query string) bool {
	score := heuristicScore(query)
	switch {
	case r.stats.TotalQueries <= coldStartEnd:
		return false
	case r.stats.TotalQueries <= warmupEnd:
		return score > r.threshold+warmupMargin
	default:
		return score >= r.threshold
	}
}

// RouteWithGeneratorCheck short-circuits to Forward{ModelNotReady} when the
// generator is not ready; otherwise it applies the normal phase logic and
// returns either a Local or Forward decision (spec §4.7).
func (r *Router) RouteWithGeneratorCheck(query string, generatorReady bool) models.RouteDecision {
	if !generatorReady {
		return models.RouteDecision{Reason: models.ReasonModelNotReady}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	score := heuristicScore(query)
	if r.shouldTryLocalLocked(query) {
		return models.RouteDecision{Local: true, Confidence: score}
	}
	if score < r.threshold {
		return models.RouteDecision{Reason: models.ReasonLowConfidence, Confidence: score}
	}
	return models.RouteDecision{Reason: models.ReasonNoMatch, Confidence: score}
}

// LearnLocalAttempt records the outcome of a local generation attempt and
// self-adjusts the threshold: loosen on success, tighten on failure (spec
// §4.7).
func (r *Router) LearnLocalAttempt(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalQueries++
	r.stats.TotalLocalAttempts++
	if success {
		r.stats.TotalSuccesses++
		r.threshold -= learningRate
		if r.threshold < thresholdMin {
			r.threshold = thresholdMin
		}
	} else {
		r.threshold += learningRate
		if r.threshold > thresholdMax {
			r.threshold = thresholdMax
		}
	}
}

// LearnForwarded records a query that was forwarded without a local
// attempt; the threshold is left untouched (spec §4.7).
func (r *Router) LearnForwarded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalQueries++
	r.stats.TotalForwards++
}

// Stats returns a copy of the current statistics snapshot.
func (r *Router) Stats() models.RoutingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Threshold returns the current confidence threshold.
func (r *Router) Threshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}

// snapshot is the YAML envelope persisted to disk by Save/Load.
type snapshot struct {
	Threshold float64            `yaml:"confidence_threshold"`
	Stats     models.RoutingStats `yaml:"stats"`
}

// Save serializes the router's full state to path as YAML.
func (r *Router) Save(path string) error {
	r.mu.Lock()
	snap := snapshot{Threshold: r.threshold, Stats: r.stats}
	r.mu.Unlock()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("router: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("router: write snapshot %s: %w", path, err)
	}
	return nil
}

// Load restores state from path. A missing file leaves the router at its
// default; absent fields within an existing file default to zero values
// per spec §4.7 ("on load, absent fields default").
func (r *Router) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("router: read snapshot %s: %w", path, err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("router: parse snapshot %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.Threshold == 0 {
		snap.Threshold = 0.5
	}
	r.threshold = snap.Threshold
	r.stats = snap.Stats
	return nil
}
