package agent

import (
	"context"
	"sync"

	"pilot/internal/config"
	errs "pilot/internal/errors"
	"pilot/internal/tool"
)

// ApprovalDecision is the per-run approval state. sessionAutoApprove may flip
// to true on a confirmed operation when the mode is not default;
// globalAutoApprove is sticky for the process once yolo mode is set.
type ApprovalDecision struct {
	Mode               config.ApprovalMode
	SessionAutoApprove bool
	GlobalAutoApprove  bool
}

// ApprovalRequest carries everything an approver needs to present a decision.
type ApprovalRequest struct {
	Tool      string
	Operation string
	FilePath  string
	Summary   string
	Diff      string
	Arguments map[string]any
}

// ApprovalResponse is the external confirmation outcome.
type ApprovalResponse struct {
	Approved bool
	Message  string
}

// Approver is the injected capability that performs the actual confirmation
// side effect (console prompt, IDE diff, ...).
type Approver interface {
	RequestApproval(ctx context.Context, req *ApprovalRequest) (*ApprovalResponse, error)
}

// ApprovalGate decides when a tool invocation needs external confirmation.
// The policy itself is pure; the approver capability is injected.
type ApprovalGate struct {
	mu             sync.Mutex
	decision       ApprovalDecision
	approver       Approver
	nonInteractive bool
}

// NewApprovalGate builds a gate for one run. A nil approver combined with a
// confirmation-needing operation denies by default.
func NewApprovalGate(mode config.ApprovalMode, approver Approver, nonInteractive bool) *ApprovalGate {
	gate := &ApprovalGate{
		decision:       ApprovalDecision{Mode: mode},
		approver:       approver,
		nonInteractive: nonInteractive,
	}
	if mode == config.ApprovalYolo {
		gate.decision.GlobalAutoApprove = true
	}
	return gate
}

// Decision returns a copy of the current approval state.
func (g *ApprovalGate) Decision() ApprovalDecision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// NeedsConfirmation applies the policy to one prospective invocation.
// Returns nil when the call may proceed without asking.
func (g *ApprovalGate) NeedsConfirmation(t tool.Tool, args map[string]any) *tool.ConfirmationDetails {
	g.mu.Lock()
	auto := g.decision.GlobalAutoApprove || g.decision.SessionAutoApprove
	g.mu.Unlock()
	if auto {
		return nil
	}
	confirmer, ok := t.(tool.Confirmer)
	if !ok {
		return nil
	}
	return confirmer.ShouldConfirm(args)
}

// Confirm runs the external confirmation for one invocation. On approval in a
// non-default mode the session flips to auto-approve.
func (g *ApprovalGate) Confirm(ctx context.Context, toolName string, details *tool.ConfirmationDetails, args map[string]any) error {
	if details == nil {
		return nil
	}
	if g.nonInteractive {
		return errs.New(errs.KindApprovalDenied, "%s requires confirmation in non-interactive mode", toolName)
	}
	if g.approver == nil {
		return errs.New(errs.KindApprovalDenied, "%s requires confirmation but no approver is attached", toolName)
	}

	resp, err := g.approver.RequestApproval(ctx, &ApprovalRequest{
		Tool:      toolName,
		Operation: details.Operation,
		FilePath:  details.Path,
		Summary:   details.Summary,
		Diff:      details.Diff,
		Arguments: args,
	})
	if err != nil {
		return errs.Wrap(errs.KindApprovalDenied, err)
	}
	if !resp.Approved {
		return errs.New(errs.KindApprovalDenied, "%s: %s", toolName, orDefault(resp.Message, "rejected"))
	}

	g.mu.Lock()
	if g.decision.Mode != config.ApprovalDefault {
		g.decision.SessionAutoApprove = true
	}
	if g.decision.Mode == config.ApprovalYolo {
		g.decision.GlobalAutoApprove = true
	}
	g.mu.Unlock()
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
