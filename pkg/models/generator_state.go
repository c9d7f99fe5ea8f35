package models

import "fmt"

// GeneratorPhase enumerates the local generator's lifecycle position.
// Transitions are monotonic except Ready -> Ready on adapter reload
// (spec §3, "Generator state").
type GeneratorPhase string

const (
	PhaseInitializing GeneratorPhase = "initializing"
	PhaseDownloading  GeneratorPhase = "downloading"
	PhaseLoading      GeneratorPhase = "loading"
	PhaseReady        GeneratorPhase = "ready"
	PhaseFailed       GeneratorPhase = "failed"
	PhaseNotAvailable GeneratorPhase = "not_available"
)

// GeneratorState is a snapshot of the bootstrap loader's single global state.
// Callers never block on it; they read an immutable copy (spec §4.6).
type GeneratorState struct {
	Phase GeneratorPhase `json:"phase"`

	// Downloading fields.
	DownloadName string `json:"download_name,omitempty"`
	DownloadFile string `json:"download_file,omitempty"`
	DownloadI    int    `json:"download_i,omitempty"`
	DownloadN    int    `json:"download_n,omitempty"`

	// Loading/Ready fields.
	ModelName string `json:"model_name,omitempty"`

	// Failed field.
	Error string `json:"error,omitempty"`
}

// Ready reports whether the generator may be used for local inference.
func (s GeneratorState) Ready() bool {
	return s.Phase == PhaseReady
}

func (s GeneratorState) String() string {
	switch s.Phase {
	case PhaseDownloading:
		return fmt.Sprintf("downloading %s (%d/%d)", s.DownloadFile, s.DownloadI, s.DownloadN)
	case PhaseLoading:
		return fmt.Sprintf("loading %s", s.ModelName)
	case PhaseReady:
		return fmt.Sprintf("ready (%s)", s.ModelName)
	case PhaseFailed:
		return fmt.Sprintf("failed: %s", s.Error)
	default:
		return string(s.Phase)
	}
}

// ForwardReason explains why the router chose to forward a query remotely.
type ForwardReason string

const (
	ReasonNoMatch        ForwardReason = "no_match"
	ReasonLowConfidence  ForwardReason = "low_confidence"
	ReasonModelNotReady  ForwardReason = "model_not_ready"
	ReasonCrisis         ForwardReason = "crisis"
	ReasonOther          ForwardReason = "other"
)

// RouteDecision is the threshold router's verdict for one query.
type RouteDecision struct {
	Local      bool
	PatternID  string
	Confidence float64
	Reason     ForwardReason
}

// RoutingStats is the threshold router's persisted online-learning state
// (spec §3, "Routing statistics").
type RoutingStats struct {
	TotalQueries       int64              `json:"total_queries"`
	TotalLocalAttempts int64              `json:"total_local_attempts"`
	TotalSuccesses     int64              `json:"total_successes"`
	TotalForwards      int64              `json:"total_forwards"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	PerCategory        map[string]int64   `json:"per_category,omitempty"`
}

// WeightedExample is a supervised example produced after a completed query,
// queued for the external trainer (spec §3, "Weighted training example").
type WeightedExample struct {
	Query    string  `json:"query"`
	Response string  `json:"response"`
	Weight   float64 `json:"weight"`
	Feedback string  `json:"feedback,omitempty"`
}
