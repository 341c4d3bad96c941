// Command pilot is the interactive agent CLI: it plans a prompt into tasks,
// executes them through the registered tools, and reports the outcome.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pilot/internal/agent"
	"pilot/internal/approval"
	"pilot/internal/config"
	"pilot/internal/event"
	"pilot/internal/llm"
	"pilot/internal/observability"
	"pilot/internal/shared/logging"
	"pilot/internal/tool"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

type cliFlags struct {
	prompt         string
	nonInteractive bool
	approvalMode   string
	withMonitoring bool
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:           "pilot",
		Short:         "Autonomous task agent",
		Long:          "pilot plans a natural-language request into tool-backed tasks and executes them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "", "run a single prompt and exit")
	cmd.Flags().BoolVar(&flags.nonInteractive, "non-interactive", false, "never prompt for confirmation; deny instead")
	cmd.Flags().StringVar(&flags.approvalMode, "approval-mode", "", "approval policy: default, auto_edit or yolo")
	cmd.Flags().BoolVar(&flags.withMonitoring, "with-monitoring", false, "start the metrics endpoint")
	return cmd
}

func run(ctx context.Context, flags *cliFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.approvalMode != "" {
		mode, err := config.ParseApprovalMode(flags.approvalMode)
		if err != nil {
			return err
		}
		cfg.ApprovalMode = mode
	}
	if flags.nonInteractive {
		cfg.NonInteractive = true
	}
	if flags.withMonitoring {
		cfg.EnableMonitoring = true
	}

	logger := logging.NewComponentLogger("cli")
	bus := event.NewBus()

	registry := tool.NewRegistry(logging.NewComponentLogger("tools"))
	registry.SetDefaultTimeout(cfg.ToolTimeout)
	executorSurface := tool.NewCachedExecutor(registry, tool.DefaultCacheConfig())

	client := llm.NewClient(cfg, bus, logging.NewComponentLogger("llm"))

	var approver agent.Approver
	if cfg.ApprovalMode == config.ApprovalYolo {
		approver = approval.AutoApprover{}
	} else if !cfg.NonInteractive {
		approver = approval.NewConsoleApprover(60*time.Second, true)
	}
	gate := agent.NewApprovalGate(cfg.ApprovalMode, approver, cfg.NonInteractive)

	monitor := observability.NewServer(cfg.MonitoringPort, logging.NewComponentLogger("metrics"))
	if cfg.EnableMonitoring {
		if err := monitor.Enable(); err != nil {
			return err
		}
		defer monitor.Disable()
	}

	planner := agent.NewPlanner(client, registry, nil, bus, logging.NewComponentLogger("planner"))
	executor := agent.NewExecutor(executorSurface, registry, gate, client, bus, logging.NewComponentLogger("executor"))
	orchestrator := agent.NewOrchestrator(planner, executor, registry, nil, monitor, bus, logging.NewComponentLogger("orchestrator"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		executor.AbortAll()
	}()

	events := bus.Subscribe(256)
	defer bus.Unsubscribe(events)
	go renderEvents(events)

	if flags.prompt != "" {
		return runOnce(ctx, orchestrator, flags.prompt)
	}
	return runInteractive(ctx, orchestrator, logger)
}

func runOnce(ctx context.Context, orchestrator *agent.Orchestrator, prompt string) error {
	result := orchestrator.Execute(ctx, prompt)
	if result.Err != nil {
		return result.Err
	}
	fmt.Println(result.Response)
	if !result.Success {
		return fmt.Errorf("run did not complete")
	}
	return nil
}

func runInteractive(ctx context.Context, orchestrator *agent.Orchestrator, logger logging.Logger) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          color.CyanString("pilot> "),
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("pilot " + version + ". Type /help for commands.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		result := orchestrator.Execute(ctx, line)
		switch {
		case result.Err != nil:
			fmt.Println(color.RedString("Error: %v", result.Err))
		case result.Success:
			fmt.Println(result.Response)
		default:
			fmt.Println(color.YellowString(result.Response))
		}
		if result.Exit {
			return nil
		}
		if ctx.Err() != nil {
			logger.Info("session interrupted")
			return nil
		}
	}
}

// renderEvents prints progress lines as the run advances. Final responses go
// through the main loop; this surface is purely informational.
func renderEvents(events <-chan event.Event) {
	dim := color.New(color.Faint)
	for ev := range events {
		switch e := ev.(type) {
		case *event.Status:
			dim.Printf("  %s\n", e.Message)
		case *event.Retry:
			dim.Printf("  retrying %s (%d/%d)\n", e.Component, e.Attempt, e.MaxRetries)
		case *event.ToolFailure:
			dim.Printf("  %s failed: %s\n", e.Tool, e.Err)
		case *event.TaskAborted:
			dim.Printf("  task %s aborted\n", e.TaskID)
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.pilot_history"
}
