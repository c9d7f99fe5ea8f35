package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/shammah/internal/bootstrap"
	"github.com/haasonsaas/shammah/internal/convo"
	"github.com/haasonsaas/shammah/internal/fallback"
	"github.com/haasonsaas/shammah/internal/generator"
	"github.com/haasonsaas/shammah/internal/router"
	"github.com/haasonsaas/shammah/internal/tools"
	"github.com/haasonsaas/shammah/internal/training"
	"github.com/haasonsaas/shammah/pkg/models"
)

// localConfidenceFloor is below generator.Response.Confidence's "high" tier; a local
// response under this is treated as a miss and falls back to the remote
// chain rather than being returned to the client (spec §4.9 step 3: "on
// low-confidence result or failure, fall back to C3"). Not otherwise
// specified by spec.md; decided and recorded in DESIGN.md.
const localConfidenceFloor = 0.5

// maxToolLoopIterations bounds the tool loop (spec §4.9 step 4).
const maxToolLoopIterations = 5

// Orchestrator drives one query end to end: routing, generation, the tool
// loop, and training-example emission (spec §4.9).
type Orchestrator struct {
	Router   *router.Router
	Loader   *bootstrap.Loader
	Gen      *generator.Generator
	Chain    *fallback.Chain
	Executor *tools.Executor
	Training *training.Channel
	Tools    []models.ToolDefinition
	Metrics  *Metrics
	Log      *slog.Logger
	CWD      string
}

// QueryResult is the orchestrator's neutral outcome, used to render either
// HTTP surface shape.
type QueryResult struct {
	ID           string
	Model        string
	ProviderName string
	Content      []models.Block
	StopReason   string
	Local        bool
}

// queryError distinguishes the HTTP status an orchestration failure maps
// to, per spec §6's status table.
type queryError struct {
	status int
	err    error
}

func (e *queryError) Error() string { return e.err.Error() }
func (e *queryError) Unwrap() error { return e.err }

func statusErr(status int, format string, args ...any) error {
	return &queryError{status: status, err: fmt.Errorf(format, args...)}
}

// StatusCode extracts the HTTP status an orchestration error should map to,
// defaulting to 500 for anything not explicitly classified.
func StatusCode(err error) int {
	if err == nil {
		return 200
	}
	var qe *queryError
	if ok := asQueryError(err, &qe); ok {
		return qe.status
	}
	return 500
}

func asQueryError(err error, target **queryError) bool {
	for err != nil {
		if qe, ok := err.(*queryError); ok {
			*target = qe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HandleQuery appends userText to the session, routes and generates a
// response (running the tool loop as needed), appends the final assistant
// message, and enqueues a training example (spec §4.9 steps 1-5).
func (o *Orchestrator) HandleQuery(ctx context.Context, store *convo.Store, userText string, requestedModel string, localOnly bool) (QueryResult, error) {
	store.Append(models.Message{
		Role:      models.RoleUser,
		Content:   []models.Block{models.TextBlock(userText)},
		CreatedAt: time.Now(),
	})

	guard := tools.NewLoopGuard(3)
	result, err := o.runToLoopEnd(ctx, store, requestedModel, localOnly, guard)
	if err != nil {
		return QueryResult{}, err
	}

	o.Training.Send(models.WeightedExample{
		Query:    userText,
		Response: lastText(result.Content),
		Weight:   1.0,
	})
	return result, nil
}

// runToLoopEnd performs the initial generation and, while the source keeps
// returning tool-use blocks, executes them and re-issues the extended
// conversation (spec §4.9 step 4).
func (o *Orchestrator) runToLoopEnd(ctx context.Context, store *convo.Store, requestedModel string, localOnly bool, guard *tools.LoopGuard) (QueryResult, error) {
	local, route := o.decideSource(store, localOnly)
	if localOnly && !o.Loader.Snapshot().Ready() {
		return QueryResult{}, statusErr(503, "local_only requested but generator not ready")
	}

	for iter := 0; ; iter++ {
		resp, err := o.generateOnce(ctx, store, requestedModel, local, localOnly)
		if err != nil {
			return QueryResult{}, err
		}

		toolUses := resp.ToolUses()
		if len(toolUses) == 0 {
			store.Append(models.Message{Role: models.RoleAssistant, Content: resp.Content, CreatedAt: time.Now()})
			o.recordRouteOutcome(route, local, true)
			return QueryResult{
				ID:           uuid.NewString(),
				Model:        resp.Model,
				ProviderName: resp.ProviderName,
				Content:      resp.Content,
				StopReason:   resp.StopReason,
				Local:        local,
			}, nil
		}

		if iter >= maxToolLoopIterations-1 {
			text := resp.Text()
			if text == "" {
				text = "[Tool loop iteration cap reached]"
			}
			store.Append(models.Message{Role: models.RoleAssistant, Content: []models.Block{models.TextBlock(text)}, CreatedAt: time.Now()})
			return QueryResult{ID: uuid.NewString(), Model: resp.Model, Content: []models.Block{models.TextBlock(text)}, Local: local}, nil
		}

		assistantBlocks := resp.Content
		if resp.Text() == "" {
			assistantBlocks = append([]models.Block{models.TextBlock("[Tool request]")}, assistantBlocks...)
		}
		store.Append(models.Message{Role: models.RoleAssistant, Content: assistantBlocks, CreatedAt: time.Now()})

		if aborted, abortMsg := o.checkLoopGuard(guard, toolUses); aborted {
			store.Append(models.Message{Role: models.RoleAssistant, Content: []models.Block{models.TextBlock(abortMsg)}, CreatedAt: time.Now()})
			return QueryResult{ID: uuid.NewString(), Content: []models.Block{models.TextBlock(abortMsg)}, Local: local}, nil
		}

		results := o.executeToolsConcurrently(ctx, toolUses)
		var resultBlocks []models.Block
		for _, r := range results {
			resultBlocks = append(resultBlocks, models.ToolResultBlock(r))
		}
		store.Append(models.Message{Role: models.RoleUser, Content: resultBlocks, CreatedAt: time.Now()})
	}
}

// decideSource applies C7's routing decision once per query; the tool loop
// re-issues to the same source on every iteration (spec §4.9 step 3).
func (o *Orchestrator) decideSource(store *convo.Store, localOnly bool) (local bool, route models.RouteDecision) {
	if localOnly {
		return true, models.RouteDecision{Local: true}
	}
	msgs := store.Snapshot()
	query := ""
	if len(msgs) > 0 {
		query = msgs[len(msgs)-1].Text()
	}
	route = o.Router.RouteWithGeneratorCheck(query, o.Loader.Snapshot().Ready())
	return route.Local, route
}

func (o *Orchestrator) recordRouteOutcome(route models.RouteDecision, attemptedLocal, succeeded bool) {
	if o.Metrics != nil {
		outcome := "forward"
		if route.Local {
			outcome = "local"
		}
		o.Metrics.RouteDecisions.WithLabelValues(outcome, string(route.Reason)).Inc()
		o.Metrics.RouteConfidence.WithLabelValues(outcome).Observe(route.Confidence)
	}
	if attemptedLocal {
		o.Router.LearnLocalAttempt(succeeded)
	} else {
		o.Router.LearnForwarded()
	}
}

// unifiedResponse lets the generator and the fallback chain feed the same
// downstream tool-loop code.
type unifiedResponse struct {
	Model        string
	ProviderName string
	StopReason   string
	Content      []models.Block
}

func (u unifiedResponse) Text() string {
	var out string
	for _, b := range u.Content {
		if b.Type == models.BlockText {
			out += b.Text
		}
	}
	return out
}

func (u unifiedResponse) ToolUses() []models.ToolUse {
	var out []models.ToolUse
	for _, b := range u.Content {
		if b.Type == models.BlockToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// generateOnce produces one response. A local miss falls back to the remote
// chain, except under localOnly: there a local error is returned as a 500
// and a low-confidence local response is returned as is.
func (o *Orchestrator) generateOnce(ctx context.Context, store *convo.Store, requestedModel string, local, localOnly bool) (unifiedResponse, error) {
	messages := store.Snapshot()
	if local {
		genResp, err := o.Gen.TryGenerate(ctx, messages, o.Tools, nil)
		if err == nil && (localOnly || genResp.Confidence >= localConfidenceFloor) {
			return unifiedResponse{Model: genResp.ModelName, Content: genResp.Blocks}, nil
		}
		if localOnly {
			return unifiedResponse{}, statusErr(500, "local generation failed: %w", err)
		}
		o.Log.Warn("local generation missed, falling back to remote", "error", err)
		return o.generateRemote(ctx, messages, requestedModel)
	}
	return o.generateRemote(ctx, messages, requestedModel)
}

func (o *Orchestrator) generateRemote(ctx context.Context, messages []models.Message, requestedModel string) (unifiedResponse, error) {
	resp, err := o.Chain.SendMessage(ctx, models.ProviderRequest{Messages: messages, Model: requestedModel, MaxTokens: 4096, Tools: o.Tools})
	if err != nil {
		return unifiedResponse{}, statusErr(500, "generation failed: %w", err)
	}
	return unifiedResponse{Model: resp.Model, ProviderName: resp.ProviderName, StopReason: resp.StopReason, Content: resp.Content}, nil
}

// checkLoopGuard observes every requested tool call and reports whether any
// (tool_name, input) pair has now recurred past the limit (spec §4.4's
// infinite-loop guard, owned by the orchestrator per its own commentary).
func (o *Orchestrator) checkLoopGuard(guard *tools.LoopGuard, toolUses []models.ToolUse) (bool, string) {
	for _, tu := range toolUses {
		sig, err := tools.CanonicalSignature(tu.Name, tu.Input, o.CWD)
		if err != nil {
			continue
		}
		if guard.Observe(tu.Name, sig) {
			return true, fmt.Sprintf("[Halted: tool %q repeated too many times with the same input]", tu.Name)
		}
	}
	return false, ""
}

func lastText(blocks []models.Block) string {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == models.BlockText {
			return blocks[i].Text
		}
	}
	return ""
}

// executeToolsConcurrently runs every requested tool in parallel but
// collects results in request order (spec §4.9 step 4, §5's ordering
// guarantee).
func (o *Orchestrator) executeToolsConcurrently(ctx context.Context, toolUses []models.ToolUse) []models.ToolResultData {
	results := make([]models.ToolResultData, len(toolUses))
	done := make(chan struct{}, len(toolUses))
	for i, tu := range toolUses {
		go func(i int, tu models.ToolUse) {
			defer func() { done <- struct{}{} }()
			start := time.Now()
			r := o.Executor.Execute(ctx, tu)
			results[i] = r
			if o.Metrics != nil {
				status := "success"
				if r.IsError {
					status = "error"
				}
				o.Metrics.ToolExecutionTotal.WithLabelValues(tu.Name, status).Inc()
				o.Metrics.ToolExecutionDuration.WithLabelValues(tu.Name).Observe(time.Since(start).Seconds())
			}
		}(i, tu)
	}
	for range toolUses {
		<-done
	}
	return results
}
