package workflow

import (
	"context"
	"time"
)

// Store persists named workflows.
type Store interface {
	// List returns summaries of persisted workflows ordered by name.
	List(ctx context.Context) ([]Summary, error)
	// Get loads a workflow by id; missing ids yield a NOT_FOUND error.
	Get(ctx context.Context, id string) (Workflow, error)
	// Save validates wf and persists it, assigning an id when wf has none.
	Save(ctx context.Context, wf Workflow) (Workflow, error)
	// Delete removes a workflow; missing ids yield a NOT_FOUND error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChangeKind distinguishes store mutations for observers.
type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes one store mutation.
type Change struct {
	Kind ChangeKind
	ID   string
	Name string
	At   time.Time
}

// Observer is notified after a store mutation commits.
type Observer interface {
	OnWorkflowChange(Change)
}

// Observable is implemented by stores that report mutations.
type Observable interface {
	AddWorkflowObserver(Observer)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

// OnWorkflowChange calls f.
func (f ObserverFunc) OnWorkflowChange(c Change) { f(c) }

// prepareSave validates wf and fills in its id. It returns a deep copy.
func prepareSave(wf Workflow) (Workflow, error) {
	if err := ValidateForSave(wf); err != nil {
		return Workflow{}, err
	}
	out := wf.Clone()
	if out.ID == "" {
		out.ID = NewID()
	}
	if out.Steps == nil {
		out.Steps = []Step{}
	}
	return out, nil
}
