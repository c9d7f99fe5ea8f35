package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/shammah/internal/tools"
	"github.com/haasonsaas/shammah/pkg/models"
)

// stdinApprover is a minimal stand-in for the interactive terminal UI
// collaborator (line editing, dialog rendering — out of scope per the
// spec's Non-goals). It prompts on stdin/stdout, which is sufficient for
// one-shot and daemon-with-attached-terminal use; a real UI would replace
// this wholesale without touching internal/tools.
type stdinApprover struct {
	in  *bufio.Reader
	out *os.File
}

func newStdinApprover() *stdinApprover {
	return &stdinApprover{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

func (a *stdinApprover) RequestApproval(ctx context.Context, tu models.ToolUse, sig tools.Signature) (tools.Decision, *tools.Pattern, error) {
	fmt.Fprintf(a.out, "\nTool call: %s(%s)\n", tu.Name, string(tu.Input))
	fmt.Fprint(a.out, "Approve [o]nce, [s]ession, [p]ersistent, [d]eny? ")

	line, err := a.in.ReadString('\n')
	if err != nil {
		return tools.Deny, nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "o", "once":
		return tools.ApproveOnce, nil, nil
	case "s", "session":
		return tools.ApproveExactSession, nil, nil
	case "p", "persistent":
		return tools.ApproveExactPersistent, nil, nil
	default:
		return tools.Deny, nil, nil
	}
}
