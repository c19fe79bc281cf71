package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
	"github.com/odvcencio/portalflow/pkg/ndjson"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <workflow.json | id>",
		Short: "Execute one workflow and stream its run log as NDJSON",
		Long: `Execute a workflow from a JSON file, a saved workflow id or a template id.
Each run log entry is written to stdout as one JSON line. The command exits
non-zero when the run ends in error. Interrupt stops the run at the next
step boundary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			wf, err := a.loadWorkflow(ctx, args[0])
			if err != nil {
				return err
			}
			return a.runWorkflow(ctx, wf)
		},
	}
}

func (a *app) runWorkflow(ctx context.Context, wf workflow.Workflow) error {
	runtime, err := a.newRuntime(a.cfg)
	if err != nil {
		return err
	}
	browsers := browser.NewManager(runtime)
	defer browsers.Close()

	opts := a.executionOptions(nil)
	opts.Listeners = append(opts.Listeners, runLogLines(ndjson.New(a.stdout)))
	runs := execution.NewManager(execution.ManagerConfig{
		Browsers: browsers,
		Session:  a.sessionConfig(),
		Options:  opts,
	})
	defer runs.Close()

	run, err := runs.Run(ctx, wf)
	if err != nil {
		return err
	}
	a.printRunSummary(run)
	if run.Status == execution.StatusError {
		return withExitCode(pferrors.New(pferrors.ErrCodeInternal, run.Message).WithContext("run_id", run.ID), exitFailure)
	}
	return nil
}

// runLogLines writes each run log entry as an NDJSON line.
func runLogLines(em *ndjson.Emitter) execution.Listener {
	return func(runID string, e execution.LogEntry) {
		payload := map[string]any{"runId": runID}
		set := func(k, v string) {
			if v != "" {
				payload[k] = v
			}
		}
		set("label", e.Label)
		set("message", e.Message)
		set("stepId", e.StepID)
		set("stepType", e.StepType)
		set("preview", e.Preview)
		set("code", e.Code)
		set("artifact", e.Artifact)
		if e.Step > 0 {
			payload["step"] = e.Step
		}
		if e.Depth > 0 {
			payload["depth"] = e.Depth
		}
		if e.Iteration > 0 {
			payload["iteration"] = e.Iteration
		}
		_ = em.Emit(string(e.Type), payload)
	}
}

func (a *app) printRunSummary(run execution.Run) {
	style := okStyle
	switch run.Status {
	case execution.StatusError:
		style = warnStyle
	case execution.StatusIdle:
		style = mutedStyle
	}
	head := paint(a.stderr, style, string(run.Status))
	fmt.Fprintf(a.stderr, "%s %s: %s (%d/%d steps)\n", head, run.WorkflowName, run.Message, run.CurrentStep, run.TotalSteps)
}
