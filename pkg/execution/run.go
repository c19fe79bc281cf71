// Package execution runs workflows against a live browser session.
//
// The package is built from three pieces:
//   - Interpreter: walks a workflow's steps and dispatches them to a browser.Driver
//   - recorder: the single writer of Run state, published through a telemetry.Snapshot
//   - Manager: owns the one-active-run lease, browser sessions and stop requests
package execution

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// LogType tags a run log entry.
type LogType string

const (
	LogStepStart LogType = "step_start"
	LogStepDone  LogType = "step_done"
	LogStepError LogType = "step_error"
	LogDone      LogType = "done"
	LogError     LogType = "error"
)

// StoppedMessage is the run message after a stop request is observed.
const StoppedMessage = "Stopped"

// LogEntry is one line of a run log.
type LogEntry struct {
	Type LogType `json:"type"`

	// Label is set on step entries, Message on done/error entries and step errors.
	Label   string `json:"label,omitempty"`
	Message string `json:"message,omitempty"`

	StepID   string `json:"stepId,omitempty"`
	StepType string `json:"stepType,omitempty"`

	// Step is the 1-based top-level step this entry belongs to.
	Step int `json:"step,omitempty"`

	// Depth is 0 for top-level steps and grows inside loop/conditional blocks.
	Depth int `json:"depth,omitempty"`

	// Iteration is the 1-based loop iteration, 0 outside loops.
	Iteration int `json:"iteration,omitempty"`

	// Preview is a short result summary on step_done.
	Preview string `json:"preview,omitempty"`

	// Code is the structured error code on step_error/error.
	Code string `json:"code,omitempty"`

	// Artifact is the diagnostic screenshot saved with a terminal error.
	Artifact string `json:"artifact,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Run is the state of one workflow execution.
type Run struct {
	ID           string     `json:"runId,omitempty"`
	WorkflowID   string     `json:"workflowId,omitempty"`
	WorkflowName string     `json:"workflowName,omitempty"`
	Status       Status     `json:"status"`
	Message      string     `json:"message"`
	CurrentStep  int        `json:"currentStep"`
	TotalSteps   int        `json:"totalSteps"`
	Log          []LogEntry `json:"log"`
	StartedAt    time.Time  `json:"startedAt,omitzero"`
	FinishedAt   time.Time  `json:"finishedAt,omitzero"`
}

// IdleRun is the state before any run has started.
func IdleRun() Run {
	return Run{Status: StatusIdle, Log: []LogEntry{}}
}

// Clone returns a copy whose log can be modified independently.
func (r Run) Clone() Run {
	r.Log = slices.Clone(r.Log)
	if r.Log == nil {
		r.Log = []LogEntry{}
	}
	return r
}

// Active reports whether the run is still executing.
func (r Run) Active() bool {
	return r.Status == StatusRunning
}

// EntryTypes lists the log entry types in order.
func (r Run) EntryTypes() []LogType {
	out := make([]LogType, len(r.Log))
	for i, e := range r.Log {
		out[i] = e.Type
	}
	return out
}
