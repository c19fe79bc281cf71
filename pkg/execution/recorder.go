package execution

import (
	"time"

	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/telemetry"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// Listener receives every log entry as it is appended.
type Listener func(runID string, entry LogEntry)

// recorder is the only writer of a run's state. Each method is one atomic
// snapshot update, so pollers always see a consistent Run.
type recorder struct {
	runID      string
	workflowID string
	snap       *telemetry.Snapshot[Run]
	hub        *telemetry.Hub
	logger     *logging.Logger
	listeners  []Listener
	now        func() time.Time
}

func startingRun(runID string, wf workflow.Workflow, at time.Time) Run {
	return Run{
		ID:           runID,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       StatusRunning,
		TotalSteps:   len(wf.Steps),
		Log:          []LogEntry{},
		StartedAt:    at,
	}
}

// start publishes the running state. A state already published for this
// run id by the manager is kept as is.
func (r *recorder) start(wf workflow.Workflow) {
	r.snap.Update(func(cur Run) Run {
		if cur.ID == r.runID && cur.Status == StatusRunning {
			return cur
		}
		return startingRun(r.runID, wf, r.now())
	})
	r.publish(telemetry.EventRunStarted, map[string]any{"name": wf.Name, "totalSteps": len(wf.Steps)})
	_ = r.logger.Info(logging.CategoryRun, "started", wf.Name, map[string]any{"run_id": r.runID, "workflow_id": wf.ID})
}

func (r *recorder) append(entry LogEntry) {
	entry.Timestamp = r.now()
	r.snap.Update(func(run Run) Run {
		run = run.Clone()
		if entry.Type == LogStepStart && entry.Depth == 0 && entry.Step > run.CurrentStep {
			run.CurrentStep = entry.Step
		}
		run.Log = append(run.Log, entry)
		return run
	})

	switch entry.Type {
	case LogStepStart:
		r.publish(telemetry.EventRunStepStarted, entryData(entry))
	case LogStepDone:
		r.publish(telemetry.EventRunStepCompleted, entryData(entry))
	case LogStepError:
		r.publish(telemetry.EventRunStepFailed, entryData(entry))
		_ = r.logger.Error(logging.CategoryRun, "step_failed", entry.Message, entryData(entry))
	}
	for _, l := range r.listeners {
		l(r.runID, entry)
	}
}

func (r *recorder) done(message string) {
	r.append(LogEntry{Type: LogDone, Message: message})
	r.finish(StatusDone, message)
	r.publish(telemetry.EventRunCompleted, map[string]any{"message": message})
	_ = r.logger.Info(logging.CategoryRun, "done", message, map[string]any{"run_id": r.runID})
	observeRun(StatusDone)
}

func (r *recorder) fail(message, code, artifact string) {
	r.append(LogEntry{Type: LogError, Message: message, Code: code, Artifact: artifact})
	r.finish(StatusError, message)
	r.publish(telemetry.EventRunFailed, map[string]any{"message": message, "code": code})
	_ = r.logger.Error(logging.CategoryRun, "failed", message, map[string]any{"run_id": r.runID, "code": code})
	observeRun(StatusError)
}

// stopped returns the run to idle. No log entry is added, so the log ends at
// the last step that actually ran.
func (r *recorder) stopped() {
	r.finish(StatusIdle, StoppedMessage)
	r.publish(telemetry.EventRunStopped, nil)
	_ = r.logger.Info(logging.CategoryRun, "stopped", StoppedMessage, map[string]any{"run_id": r.runID})
	observeRun(StatusIdle)
}

func (r *recorder) finish(status Status, message string) {
	now := r.now()
	r.snap.Update(func(run Run) Run {
		run = run.Clone()
		run.Status = status
		run.Message = message
		run.FinishedAt = now
		return run
	})
}

func (r *recorder) current() Run {
	run, _ := r.snap.Load()
	return run
}

func (r *recorder) publish(t telemetry.EventType, data map[string]any) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(telemetry.Event{
		Type:       t,
		Timestamp:  r.now(),
		RunID:      r.runID,
		WorkflowID: r.workflowID,
		Data:       data,
	})
}

func entryData(e LogEntry) map[string]any {
	data := map[string]any{
		"type":   string(e.Type),
		"step":   e.Step,
		"stepId": e.StepID,
		"label":  e.Label,
	}
	if e.Iteration > 0 {
		data["iteration"] = e.Iteration
	}
	if e.Preview != "" {
		data["preview"] = e.Preview
	}
	if e.Message != "" {
		data["message"] = e.Message
	}
	if e.Code != "" {
		data["code"] = e.Code
	}
	return data
}

var nowFunc = time.Now
