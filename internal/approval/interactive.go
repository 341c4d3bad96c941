// Package approval provides console approvers for tool confirmations.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"pilot/internal/agent"
)

// ConsoleApprover prompts on the terminal for each confirmation. A missing
// answer within the timeout rejects the operation.
type ConsoleApprover struct {
	timeout      time.Duration
	colorEnabled bool
	in           *bufio.Reader
}

// NewConsoleApprover builds an approver reading from stdin.
func NewConsoleApprover(timeout time.Duration, colorEnabled bool) *ConsoleApprover {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ConsoleApprover{
		timeout:      timeout,
		colorEnabled: colorEnabled,
		in:           bufio.NewReader(os.Stdin),
	}
}

// RequestApproval shows the pending operation and waits for a y/n answer.
func (a *ConsoleApprover) RequestApproval(ctx context.Context, req *agent.ApprovalRequest) (*agent.ApprovalResponse, error) {
	a.display(req)

	responseCh := make(chan *agent.ApprovalResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := a.readAnswer()
		if err != nil {
			errCh <- err
			return
		}
		responseCh <- resp
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	select {
	case resp := <-responseCh:
		return resp, nil
	case err := <-errCh:
		return nil, err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fmt.Println()
		fmt.Println(a.colorize("No answer, operation rejected", color.FgRed))
		return &agent.ApprovalResponse{Approved: false, Message: "approval timeout"}, nil
	}
}

func (a *ConsoleApprover) display(req *agent.ApprovalRequest) {
	separator := strings.Repeat("=", 80)

	fmt.Println()
	fmt.Println(a.colorize(separator, color.FgCyan))
	fmt.Println(a.colorize(fmt.Sprintf("%s wants to run: %s", req.Tool, req.Operation), color.FgYellow, color.Bold))
	if req.FilePath != "" {
		fmt.Println(a.colorize("Path: "+req.FilePath, color.FgWhite))
	}
	fmt.Println(a.colorize(separator, color.FgCyan))

	if req.Summary != "" {
		fmt.Println(a.colorize("Summary:", color.FgCyan))
		fmt.Println(req.Summary)
	}
	if req.Diff != "" {
		fmt.Println(a.colorize("Changes:", color.FgCyan))
		fmt.Println(req.Diff)
	}
}

func (a *ConsoleApprover) readAnswer() (*agent.ApprovalResponse, error) {
	fmt.Println()
	fmt.Println(a.colorize("Proceed?", color.FgYellow, color.Bold))
	fmt.Println("  [y] yes")
	fmt.Println("  [n] no")
	fmt.Print(a.colorize("Choice: ", color.FgCyan))

	input, err := a.in.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read approval input: %w", err)
	}

	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		return &agent.ApprovalResponse{Approved: true, Message: "approved by user"}, nil
	case "n", "no", "":
		return &agent.ApprovalResponse{Approved: false, Message: "rejected by user"}, nil
	default:
		fmt.Println(a.colorize("Please answer y or n.", color.FgRed))
		return a.readAnswer()
	}
}

func (a *ConsoleApprover) colorize(text string, attributes ...color.Attribute) string {
	if !a.colorEnabled {
		return text
	}
	return color.New(attributes...).Sprint(text)
}

// AutoApprover approves everything. Used by yolo mode and tests.
type AutoApprover struct{}

func (AutoApprover) RequestApproval(ctx context.Context, req *agent.ApprovalRequest) (*agent.ApprovalResponse, error) {
	return &agent.ApprovalResponse{Approved: true, Message: "auto-approved"}, nil
}
