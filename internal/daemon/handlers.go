package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/haasonsaas/shammah/internal/convo"
	"github.com/haasonsaas/shammah/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// messagesRequest is the neutral shape's body (spec §6).
type messagesRequest struct {
	Model     string           `json:"model"`
	Messages  []models.Message `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	System    string           `json:"system,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	LocalOnly bool             `json:"local_only,omitempty"`
}

// handleMessages implements POST /v1/messages (spec §6, neutral shape).
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		writeErr(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	store := s.sessions.GetOrCreate(sessionID)

	userText := req.Messages[len(req.Messages)-1].Text()
	result, err := s.orchestrator.HandleQuery(r.Context(), store, userText, req.Model, req.LocalOnly)
	if err != nil {
		writeErr(w, StatusCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          result.ID,
		"type":        "message",
		"role":        "assistant",
		"content":     result.Content,
		"model":       result.Model,
		"stop_reason": result.StopReason,
		"session_id":  sessionID,
	})
}

// chatCompletionMessage is one entry of the compat shape's messages array.
type chatCompletionMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type chatCompletionsRequest struct {
	Model     string                  `json:"model"`
	Messages  []chatCompletionMessage `json:"messages"`
	Stream    bool                    `json:"stream,omitempty"`
	Tools     []models.ToolDefinition `json:"tools,omitempty"`
	LocalOnly bool                    `json:"local_only,omitempty"`
	SessionID string                  `json:"session_id,omitempty"`
}

// handleChatCompletions implements POST /v1/chat/completions (spec §6,
// compatibility shape), both the single-shot and SSE-streamed responses.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req chatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		writeErr(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	store := s.sessions.GetOrCreate(sessionID)
	userText := req.Messages[len(req.Messages)-1].Content

	if req.Stream {
		s.streamChatCompletion(w, r, store, userText, req)
		return
	}

	result, err := s.orchestrator.HandleQuery(r.Context(), store, userText, req.Model, req.LocalOnly)
	if err != nil {
		writeErr(w, StatusCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     result.ID,
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": lastText(result.Content),
				},
				"finish_reason": finishReason(result),
			},
		},
	})
}

func finishReason(r QueryResult) string {
	if r.StopReason != "" {
		return r.StopReason
	}
	return "stop"
}

// streamChatCompletion holds the connection open and forwards TextDeltas as
// an SSE stream (spec §4.9 "Streaming"). Tool-use blocks are not streamed;
// the orchestrator only emits the final content once the turn settles, so
// this issues one query and replays its text as a single delta followed by
// the terminator — consistent with spec §4.9's rule that tool-result
// content is never streamed back to the client.
func (s *Server) streamChatCompletion(w http.ResponseWriter, r *http.Request, store *convo.Store, userText string, req chatCompletionsRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	result, err := s.orchestrator.HandleQuery(r.Context(), store, userText, req.Model, req.LocalOnly)
	if err != nil {
		writeErr(w, StatusCode(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	text := lastText(result.Content)
	chunk := map[string]any{
		"id": result.ID,
		"choices": []map[string]any{
			{"delta": map[string]any{"content": text}},
		},
	}
	writeSSEEvent(bw, chunk)
	flusher.Flush()

	final := map[string]any{
		"id": result.ID,
		"choices": []map[string]any{
			{"delta": map[string]any{}, "finish_reason": finishReason(result)},
		},
	}
	writeSSEEvent(bw, final)
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	flusher.Flush()
}

func writeSSEEvent(w *bufio.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// handleSession implements GET/DELETE /v1/session/{id} (spec §6).
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/session/")
	if id == "" {
		writeErr(w, http.StatusBadRequest, "session id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		store, ok := s.sessions.Get(id)
		if !ok {
			writeErr(w, http.StatusNotFound, "no such session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":        id,
			"messages":          store.Snapshot(),
			"estimated_tokens":  store.EstimatedTokens(),
		})
	case http.MethodDelete:
		if !s.sessions.Delete(id) {
			writeErr(w, http.StatusNotFound, "no such session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeErr(w, http.StatusMethodNotAllowed, "GET or DELETE only")
	}
}

// handleStatus implements GET /v1/status: generator state + active-session
// count (spec §6).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	gen := s.orchestrator.Loader.Snapshot()
	if s.metrics != nil {
		s.metrics.observeGeneratorPhase(string(gen.Phase))
		s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generator":      gen,
		"active_sessions": s.sessions.Count(),
	})
}

// feedbackRequest is POST /v1/feedback's body (spec §6, §4.8).
type feedbackRequest struct {
	Query    string  `json:"query"`
	Response string  `json:"response"`
	Weight   float64 `json:"weight"`
	Feedback string  `json:"feedback,omitempty"`
}

// handleFeedback implements POST /v1/feedback: enqueue a training example
// with an operator-supplied weight (spec §4.8's "Weights" note).
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.orchestrator.Training.Send(models.WeightedExample{
		Query:    req.Query,
		Response: req.Response,
		Weight:   req.Weight,
		Feedback: req.Feedback,
	})
	writeJSON(w, http.StatusOK, map[string]any{"enqueued": true})
}

// handleTrainingStatus implements GET /v1/training/status: queue depth
// (spec §6). The channel only exposes an approximate depth via its buffer
// occupancy; exact on-disk queue length is the trainer subprocess's
// concern, not the daemon's.
func (s *Server) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	depth := s.orchestrator.Training.QueueDepth()
	if s.metrics != nil {
		s.metrics.TrainingQueueDepth.Set(float64(depth))
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_depth": depth})
}
