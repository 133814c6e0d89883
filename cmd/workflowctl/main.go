// Command workflowctl runs one workflow document to completion and exits
// 0 for COMPLETED, 1 for FAILED, 2 for PARTIALLY_COMPLETED, 64 for an
// invalid configuration, and 130 when cancelled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/praneethchandra/workflowforge/agent"
	"github.com/praneethchandra/workflowforge/config"
	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/scheduler"
	"github.com/praneethchandra/workflowforge/telemetry"
	"github.com/praneethchandra/workflowforge/workflow"
)

const (
	exitCompleted         = 0
	exitFailed            = 1
	exitPartiallyComplete = 2
	exitConfigInvalid     = 64
	exitCancelled         = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("workflowctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a workflow document (YAML or JSON)")
	jsonOutput := fs.Bool("json", false, "print the final workflow record as JSON")
	if err := fs.Parse(args); err != nil {
		return exitConfigInvalid
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "workflowctl: -config is required")
		return exitConfigInvalid
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflowctl: reading config: %v\n", err)
		return exitConfigInvalid
	}

	wf, err := config.LoadWorkflow(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflowctl: %v\n", err)
		return exitConfigInvalid
	}

	logger := core.NewProductionLogger("workflowctl", false, false)
	factory := agent.NewFactory(logger)

	if err := config.Validate(wf, factory.Known); err != nil {
		fmt.Fprintf(os.Stderr, "workflowctl: %v\n", err)
		return exitConfigInvalid
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProviderFromEnv(ctx, "workflowctl")
	if err != nil {
		logger.Warn("failed to initialize trace exporter, traces will not be exported", map[string]interface{}{"error": err.Error()})
		tp = telemetry.NewTracerProvider()
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bus := scheduler.NewEventBus(logger)
	defer bus.Close()
	bus.Subscribe(func(ev scheduler.Event) {
		logger.Info("event", map[string]interface{}{"type": ev.Type, "task": ev.TaskName})
	})

	sched := scheduler.NewScheduler(logger, bus, factory)
	rec, err := sched.Run(ctx, wf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflowctl: %v\n", err)
		return exitConfigInvalid
	}

	if *jsonOutput {
		out, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(out))
	}

	return exitCodeFor(ctx, rec)
}

func exitCodeFor(ctx context.Context, rec *workflow.WorkflowExecutionRecord) int {
	if rec.State == workflow.WorkflowCancelled || ctx.Err() != nil {
		return exitCancelled
	}
	switch rec.State {
	case workflow.WorkflowCompleted:
		return exitCompleted
	case workflow.WorkflowPartiallyCompleted:
		return exitPartiallyComplete
	default:
		return exitFailed
	}
}
