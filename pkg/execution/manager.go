package execution

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/lease"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/telemetry"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	// Browsers opens one session per run.
	Browsers *browser.Manager
	// Session is the base session config; the workflow's browser settings
	// and the run id are layered on top.
	Session browser.SessionConfig
	Options Options
	// Slot is the one-active-run lease. A fresh slot is used when nil.
	Slot *lease.Slot
}

// Manager starts, stops and reports runs. At most one run is active.
type Manager struct {
	cfg  ManagerConfig
	slot *lease.Slot
	snap *telemetry.Snapshot[Run]

	mu     sync.Mutex
	active *activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	id     string
	token  lease.Token
	ctl    *Control
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a run manager.
func NewManager(cfg ManagerConfig) *Manager {
	slot := cfg.Slot
	if slot == nil {
		slot = lease.NewSlot("run")
	}
	return &Manager{
		cfg:  cfg,
		slot: slot,
		snap: telemetry.NewSnapshot(IdleRun()),
	}
}

// Start validates wf and begins executing it in the background. It returns
// the run id, or SESSION_BUSY if a run is already active. The run outlives
// ctx's cancellation; use Stop to end it.
func (m *Manager) Start(ctx context.Context, wf workflow.Workflow) (string, error) {
	ar, err := m.begin(wf)
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(runCtx, ar, wf)
	}()
	return ar.id, nil
}

// Run executes wf synchronously and returns the final state. Cancelling ctx
// stops the run at the next step boundary.
func (m *Manager) Run(ctx context.Context, wf workflow.Workflow) (Run, error) {
	ar, err := m.begin(wf)
	if err != nil {
		return Run{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	ar.cancel = cancel
	m.execute(runCtx, ar, wf)
	return m.Current(), nil
}

func (m *Manager) begin(wf workflow.Workflow) (*activeRun, error) {
	if err := workflow.ValidateSteps(wf.Steps); err != nil {
		return nil, err
	}
	id := ulid.Make().String()
	tok, err := m.slot.Acquire("run")
	if err != nil {
		return nil, err
	}
	ar := &activeRun{id: id, token: tok, ctl: &Control{}, done: make(chan struct{})}
	m.mu.Lock()
	m.active = ar
	m.mu.Unlock()
	// Pollers see the new run while its browser is still launching.
	m.snap.Store(startingRun(id, wf, nowFunc()))
	return ar, nil
}

func (m *Manager) execute(ctx context.Context, ar *activeRun, wf workflow.Workflow) {
	metricActiveRuns.Inc()
	defer func() {
		ar.cancel()
		m.mu.Lock()
		if m.active == ar {
			m.active = nil
		}
		m.mu.Unlock()
		m.slot.Release(ar.token)
		metricActiveRuns.Dec()
		close(ar.done)
	}()

	opts := m.cfg.Options.withDefaults()
	sess := m.cfg.Session
	sess.SessionID = ar.id
	sess.Headless = wf.Browser.Headless
	sess.PersistentContext = wf.Browser.PersistentContext
	if sess.ActionTimeout <= 0 {
		sess.ActionTimeout = opts.ActionTimeout
	}
	if sess.NavigationTimeout <= 0 {
		sess.NavigationTimeout = opts.NavigationTimeout
	}

	driver, err := m.cfg.Browsers.CreateSession(ctx, sess)
	if err != nil {
		m.launchFailed(ar.id, wf, opts, err)
		return
	}
	defer func() {
		if cerr := m.cfg.Browsers.CloseSession(ar.id); cerr != nil {
			_ = opts.Logger.Warn(logging.CategoryBrowser, "close_failed", cerr.Error(), map[string]any{"run_id": ar.id})
		}
	}()

	NewInterpreter(driver, opts).Execute(ctx, ar.id, wf, m.snap, ar.ctl)
}

// launchFailed records a run that never got a browser.
func (m *Manager) launchFailed(runID string, wf workflow.Workflow, opts Options, err error) {
	rec := &recorder{
		runID:      runID,
		workflowID: wf.ID,
		snap:       m.snap,
		hub:        opts.Hub,
		logger:     opts.Logger,
		listeners:  opts.Listeners,
		now:        nowFunc,
	}
	rec.start(wf)
	rec.fail("browser launch failed: "+describe(err), string(pferrors.GetCode(err)), "")
}

// Stop requests the active run halt at its next step boundary. It reports
// whether a run was active.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	ar := m.active
	m.mu.Unlock()
	if ar == nil {
		return false
	}
	ar.ctl.Stop()
	return true
}

// Wait blocks until the run with id finishes or ctx is done. Unknown or
// already finished ids return immediately.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	ar := m.active
	m.mu.Unlock()
	if ar == nil || ar.id != id {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the latest run state. After a run ends its terminal state
// stays visible until the next run starts.
func (m *Manager) Current() Run {
	run, _ := m.snap.Load()
	return run.Clone()
}

// Watch blocks until the run state changes past version after.
func (m *Manager) Watch(ctx context.Context, after uint64) (Run, uint64, error) {
	run, v, err := m.snap.Watch(ctx, after)
	return run.Clone(), v, err
}

// Active reports the id of the running run, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.id, true
}

// Close stops any active run and waits for background runs to exit.
func (m *Manager) Close() {
	m.Stop()
	m.wg.Wait()
}
