package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/shammah/pkg/models"
)

// DefaultTimeout is the wall-clock budget given to a single tool
// invocation (spec §4.4).
const DefaultTimeout = 30 * time.Second

// Approver is the UI collaborator consulted when no cache entry covers a
// tool call. It returns the human's decision and, for the two
// pattern-scoped decisions, the pattern to install.
type Approver interface {
	RequestApproval(ctx context.Context, toolUse models.ToolUse, sig Signature) (Decision, *Pattern, error)
}

// Executor runs tool_use blocks against a Registry, gated by an
// ApprovalCache and a wall-clock timeout per call.
type Executor struct {
	registry *Registry
	cache    *ApprovalCache
	approver Approver
	cwd      string
	timeout  time.Duration
	log      *slog.Logger
}

// NewExecutor builds an Executor. cwd is the working directory folded
// into every tool's canonical signature.
func NewExecutor(registry *Registry, cache *ApprovalCache, approver Approver, cwd string, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		registry: registry,
		cache:    cache,
		approver: approver,
		cwd:      cwd,
		timeout:  DefaultTimeout,
		log:      log,
	}
}

// Execute runs one tool_use and returns a ToolResult, never an error —
// every failure mode (missing tool, denial, timeout, panic-free runtime
// error) is represented as ToolResult.IsError so the conversation loop
// can feed it back to the model uniformly.
func (e *Executor) Execute(ctx context.Context, tu models.ToolUse) models.ToolResultData {
	tool, ok := e.registry.Get(tu.Name)
	if !ok {
		return errResult(tu.ID, (&ErrToolNotFound{Name: tu.Name}).Error())
	}

	sig, err := CanonicalSignature(tu.Name, tu.Input, e.cwd)
	if err != nil {
		return errResult(tu.ID, fmt.Sprintf("compute signature: %v", err))
	}

	hit := e.cache.Check(sig)
	switch hit {
	case HitSessionExact:
		e.log.Debug("tool approved", "tool", tu.Name, "source", "session_exact")
	case HitPersistentExact:
		e.log.Info("tool approved", "tool", tu.Name, "source", "persistent_exact")
	case HitSessionPattern, HitPersistentPattern:
		e.log.Debug("tool approved", "tool", tu.Name, "source", string(hit))
	case HitNone:
		if e.approver == nil {
			return errResult(tu.ID, "denied: no approval collaborator available")
		}
		decision, pat, err := e.approver.RequestApproval(ctx, tu, sig)
		if err != nil {
			return errResult(tu.ID, fmt.Sprintf("approval request failed: %v", err))
		}
		if decision == Deny {
			return errResult(tu.ID, "denied by user")
		}
		if pat != nil && pat.ID == "" {
			pat.ID = uuid.NewString()
		}
		if err := e.cache.Apply(decision, sig, pat); err != nil {
			e.log.Warn("persist approval decision failed", "error", err)
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := tool.Execute(toolCtx, tu.Input)
	if err != nil {
		if toolCtx.Err() == context.DeadlineExceeded {
			return errResult(tu.ID, fmt.Sprintf("tool %q timed out after %s", tu.Name, e.timeout))
		}
		return errResult(tu.ID, err.Error())
	}
	return models.ToolResultData{ToolUseID: tu.ID, Content: text}
}

func errResult(toolUseID, msg string) models.ToolResultData {
	return models.ToolResultData{ToolUseID: toolUseID, Content: msg, IsError: true}
}

// LoopGuard tracks (tool_name, signature) occurrences within a single
// query and signals when the same pair has recurred too many times,
// matching §4.4's infinite-loop guard. Ownership lives with the calling
// orchestrator (C9), not the executor, since only the orchestrator knows
// a query's boundaries.
type LoopGuard struct {
	counts map[string]int
	limit  int
}

// NewLoopGuard returns a guard that aborts at limit occurrences (spec: 3).
func NewLoopGuard(limit int) *LoopGuard {
	if limit <= 0 {
		limit = 3
	}
	return &LoopGuard{counts: make(map[string]int), limit: limit}
}

// Observe records one occurrence of (toolName, sig) and reports whether
// the limit has now been reached.
func (g *LoopGuard) Observe(toolName string, sig Signature) bool {
	key := toolName + "\x00" + string(sig)
	g.counts[key]++
	return g.counts[key] >= g.limit
}
