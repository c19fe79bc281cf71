package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/telemetry"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// CompletedMessage is the run message after every step succeeded.
const CompletedMessage = "Workflow complete"

const diagnosticTimeout = 10 * time.Second

// Options configures step dispatch.
type Options struct {
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	// OutputDir receives screenshots and downloads without an explicit dir.
	OutputDir string
	// DiagnosticsDir receives run-<id>-error.png on a terminal failure.
	DiagnosticsDir string
	Credentials    CredentialsFunc
	Authenticators Authenticators
	Logger         *logging.Logger
	Hub            *telemetry.Hub
	Listeners      []Listener
}

func (o Options) withDefaults() Options {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = browser.DefaultActionTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.DiagnosticsDir == "" {
		o.DiagnosticsDir = o.OutputDir
	}
	if o.Authenticators == nil {
		o.Authenticators = DefaultAuthenticators()
	}
	return o
}

// Control carries a cooperative stop request into a running interpreter.
type Control struct {
	stop atomic.Bool
}

// Stop asks the run to halt at the next step boundary.
func (c *Control) Stop() { c.stop.Store(true) }

// Stopping reports whether Stop was called.
func (c *Control) Stopping() bool { return c.stop.Load() }

// Interpreter executes workflows on one browser session, one step at a time.
type Interpreter struct {
	driver browser.Driver
	opts   Options
	now    func() time.Time
}

// NewInterpreter binds an interpreter to d.
func NewInterpreter(d browser.Driver, opts Options) *Interpreter {
	return &Interpreter{driver: d, opts: opts.withDefaults(), now: time.Now}
}

// errStopped unwinds the step walk when a stop is observed at a boundary.
var errStopped = errors.New("run stopped")

// stepFailed marks an error that already produced its step_error entry.
type stepFailed struct{ err error }

func (e *stepFailed) Error() string { return e.err.Error() }
func (e *stepFailed) Unwrap() error { return e.err }

type runState struct {
	rec   *recorder
	ctl   *Control
	vars  map[string]string
	shots int
}

// Execute runs wf until it finishes, fails or observes a stop, publishing
// every transition to snap. It never panics on browser failures; the
// returned Run is the final state.
func (in *Interpreter) Execute(ctx context.Context, runID string, wf workflow.Workflow, snap *telemetry.Snapshot[Run], ctl *Control) Run {
	if snap == nil {
		snap = telemetry.NewSnapshot(IdleRun())
	}
	if ctl == nil {
		ctl = &Control{}
	}
	rec := &recorder{
		runID:      runID,
		workflowID: wf.ID,
		snap:       snap,
		hub:        in.opts.Hub,
		logger:     in.opts.Logger,
		listeners:  in.opts.Listeners,
		now:        in.now,
	}
	st := &runState{rec: rec, ctl: ctl, vars: make(map[string]string)}

	ctx, span := telemetry.StartSpan(ctx, "portalflow.run",
		telemetry.AttrRunID.String(runID),
		telemetry.AttrWorkflowID.String(wf.ID),
	)

	rec.start(wf)
	err := in.execSteps(ctx, st, wf.Steps, 0, 0, 0)

	var failed *stepFailed
	switch {
	case err == nil:
		rec.done(CompletedMessage)
	case errors.Is(err, errStopped):
		rec.stopped()
		err = nil
	case errors.As(err, &failed):
		artifact := in.captureDiagnostics(ctx, runID)
		rec.fail(describe(failed.err), string(pferrors.GetCode(failed.err)), artifact)
	default:
		rec.fail(describe(err), string(pferrors.GetCode(err)), "")
	}
	telemetry.EndSpan(span, err)
	return rec.current()
}

func (in *Interpreter) boundary(ctx context.Context, st *runState) error {
	if st.ctl.Stopping() || ctx.Err() != nil {
		return errStopped
	}
	return nil
}

// execSteps runs a sibling list. top is the enclosing top-level step number
// (ignored at depth 0, where it is the position in the list).
func (in *Interpreter) execSteps(ctx context.Context, st *runState, steps []workflow.Step, top, depth, iteration int) error {
	for i, s := range steps {
		if err := in.boundary(ctx, st); err != nil {
			return err
		}
		stepNo := top
		if depth == 0 {
			stepNo = i + 1
		}
		if err := in.execStep(ctx, st, s, stepNo, depth, iteration); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) execStep(ctx context.Context, st *runState, s workflow.Step, stepNo, depth, iteration int) error {
	base := LogEntry{
		Label:     s.DisplayLabel(),
		StepID:    s.ID,
		StepType:  string(s.Type),
		Step:      stepNo,
		Depth:     depth,
		Iteration: iteration,
	}

	ctx, span := telemetry.StartSpan(ctx, "portalflow.step",
		telemetry.AttrStepID.String(s.ID),
		telemetry.AttrStepType.String(string(s.Type)),
		telemetry.AttrStepIndex.Int(stepNo),
		attribute.Int("portalflow.step.depth", depth),
	)
	started := in.now()

	start := base
	start.Type = LogStepStart
	st.rec.append(start)

	var (
		preview string
		err     error
	)
	if verr := workflow.ValidateStep(s); verr != nil {
		err = verr
	} else {
		switch s.Type {
		case workflow.StepLoop:
			preview, err = in.execLoop(ctx, st, s, base)
		case workflow.StepConditional:
			preview, err = in.execConditional(ctx, st, s, base)
		default:
			params := interpolateParams(s.Params, st.vars)
			err = browser.Guard(browser.Op(s.Type), func() error {
				var derr error
				preview, derr = in.dispatch(ctx, st, s, params, iteration)
				return derr
			})
		}
	}

	observeStep(string(s.Type), started, err)
	telemetry.EndSpan(span, err)

	if err != nil {
		var already *stepFailed
		if errors.Is(err, errStopped) || errors.As(err, &already) {
			return err
		}
		if ctx.Err() != nil {
			// The process is shutting down; the in-flight action was interrupted, not failed.
			return errStopped
		}
		failure := base
		failure.Type = LogStepError
		failure.Message = describe(err)
		failure.Code = string(pferrors.GetCode(err))
		st.rec.append(failure)
		return &stepFailed{err: err}
	}

	done := base
	done.Type = LogStepDone
	done.Preview = preview
	st.rec.append(done)
	return nil
}

func (in *Interpreter) execLoop(ctx context.Context, st *runState, s workflow.Step, base LogEntry) (string, error) {
	count, _ := s.Params.Int("count")
	for it := 1; it <= count; it++ {
		if err := in.boundary(ctx, st); err != nil {
			return "", err
		}
		iter := base
		iter.Iteration = it
		iter.Label = fmt.Sprintf("%s (iteration %d/%d)", base.Label, it, count)
		iter.Type = LogStepStart
		st.rec.append(iter)

		if err := in.execSteps(ctx, st, s.Steps, base.Step, base.Depth+1, it); err != nil {
			return "", err
		}

		iter.Type = LogStepDone
		st.rec.append(iter)
	}
	return fmt.Sprintf("%d iteration(s)", count), nil
}

func (in *Interpreter) execConditional(ctx context.Context, st *runState, s workflow.Step, base LogEntry) (string, error) {
	params := interpolateParams(s.Params, st.vars)
	selector := params.String("selector")
	var (
		visible bool
		err     error
	)
	if timeout := params.Millis("timeout"); timeout > 0 {
		err = in.driver.WaitVisible(ctx, selector, timeout)
		visible = err == nil
		if pferrors.IsCode(err, pferrors.ErrCodeSelectorNotFound) {
			err = nil
		}
	} else {
		visible, err = in.driver.Visible(ctx, selector)
	}
	if err != nil {
		return "", err
	}

	guard := visible
	if params.Bool("negate") {
		guard = !guard
	}
	if !guard {
		return fmt.Sprintf("condition false, skipped %d step(s)", workflow.CountSteps(s.Steps)), nil
	}
	if err := in.execSteps(ctx, st, s.Steps, base.Step, base.Depth+1, base.Iteration); err != nil {
		return "", err
	}
	return "condition true", nil
}

func (in *Interpreter) dispatch(ctx context.Context, st *runState, s workflow.Step, p workflow.Params, iteration int) (string, error) {
	d := in.driver
	timeout := in.timeout(p, in.opts.ActionTimeout)

	switch s.Type {
	case workflow.StepNavigate:
		url := p.String("url")
		if err := d.Navigate(ctx, url, in.timeout(p, in.opts.NavigationTimeout)); err != nil {
			return "", err
		}
		return url, nil

	case workflow.StepClick:
		return "", d.Click(ctx, p.String("selector"), timeout)

	case workflow.StepFill:
		return "", d.Fill(ctx, p.String("selector"), p.String("value"), timeout)

	case workflow.StepSelect:
		value := p.String("value")
		if err := d.Select(ctx, p.String("selector"), value, timeout); err != nil {
			return "", err
		}
		return value, nil

	case workflow.StepWait:
		if p.Has("selector") {
			sel := p.String("selector")
			if err := d.WaitVisible(ctx, sel, timeout); err != nil {
				return "", err
			}
			return sel + " visible", nil
		}
		delay := p.Millis("duration")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		return "waited " + delay.String(), nil

	case workflow.StepScreenshot:
		st.shots++
		return in.screenshot(ctx, p, st.shots, iteration)

	case workflow.StepExtractText:
		text, err := d.Text(ctx, p.String("selector"), timeout)
		if err != nil {
			return "", err
		}
		name := p.String("variable")
		if name == "" {
			name = "text"
		}
		st.vars[name] = text
		return fmt.Sprintf("%s = %q", name, truncate(text, 60)), nil

	case workflow.StepDownload:
		dir := p.String("dir")
		if dir == "" {
			dir = in.opts.OutputDir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", pferrors.Wrap(err, pferrors.ErrCodeExport, "create download directory").WithContext("dir", dir)
		}
		path, err := d.Download(ctx, p.String("selector"), dir, timeout)
		if err != nil {
			return "", err
		}
		st.vars["download"] = path
		return path, nil

	case workflow.StepKeyboard:
		if p.Has("key") {
			key, _ := browser.CanonicalKey(p.String("key"))
			if err := d.PressKey(ctx, key); err != nil {
				return "", err
			}
			return key, nil
		}
		text := p.String("text")
		if err := d.TypeText(ctx, text); err != nil {
			return "", err
		}
		return fmt.Sprintf("typed %d character(s)", len([]rune(text))), nil

	case workflow.StepLogin:
		return in.login(ctx, p, timeout)
	}
	return "", pferrors.Validation(fmt.Sprintf("unknown step type %q", s.Type))
}

func (in *Interpreter) login(ctx context.Context, p workflow.Params, timeout time.Duration) (string, error) {
	portal := p.String("portal")
	if portal == "" {
		portal = PortalForm
	}
	auth, err := in.opts.Authenticators.lookup(portal)
	if err != nil {
		return "", err
	}

	creds := Credentials{Username: p.String("username"), Password: p.String("password")}
	if (creds.Username == "" || creds.Password == "") && in.opts.Credentials != nil {
		stored, err := in.opts.Credentials()
		if err != nil {
			return "", pferrors.Authentication("load stored credentials", err)
		}
		if creds.Username == "" {
			creds.Username = stored.Username
		}
		if creds.Password == "" {
			creds.Password = stored.Password
		}
	}

	req := LoginRequest{
		Portal:            portal,
		URL:               p.String("url"),
		Credentials:       creds,
		Params:            p,
		Timeout:           timeout,
		NavigationTimeout: in.opts.NavigationTimeout,
	}
	if err := auth.Authenticate(ctx, in.driver, req); err != nil {
		return "", err
	}
	return "signed in via " + portal, nil
}

func (in *Interpreter) screenshot(ctx context.Context, p workflow.Params, index, iteration int) (string, error) {
	name := p.String("filename")
	if name == "" {
		name = "screenshot-{index}.png"
	}
	name = strings.NewReplacer(
		"{index}", strconv.Itoa(index),
		"{iteration}", strconv.Itoa(iteration),
	).Replace(name)

	path := name
	if !filepath.IsAbs(path) {
		dir := p.String("dir")
		if dir == "" {
			dir = in.opts.OutputDir
		}
		path = filepath.Join(dir, name)
	}

	data, err := in.driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeInternal, "create screenshot directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeInternal, "write screenshot").WithContext("path", path)
	}
	return path, nil
}

// captureDiagnostics saves a best-effort screenshot after a terminal step
// error and returns its path, or "" if none could be taken.
func (in *Interpreter) captureDiagnostics(ctx context.Context, runID string) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticTimeout)
	defer cancel()

	data, err := in.driver.Screenshot(ctx)
	if err != nil {
		_ = in.opts.Logger.Warn(logging.CategoryRun, "diagnostics", "screenshot failed", map[string]any{"run_id": runID, "error": err.Error()})
		return ""
	}
	path := filepath.Join(in.opts.DiagnosticsDir, "run-"+runID+"-error.png")
	if err := os.MkdirAll(in.opts.DiagnosticsDir, 0o755); err != nil {
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = in.opts.Logger.Warn(logging.CategoryRun, "diagnostics", "write failed", map[string]any{"run_id": runID, "path": path})
		return ""
	}
	return path
}

func (in *Interpreter) timeout(p workflow.Params, fallback time.Duration) time.Duration {
	if d := p.Millis("timeout"); d > 0 {
		return d
	}
	return fallback
}

var varPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// interpolate expands {{name}} references. Unknown names are left as written.
func interpolate(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

func interpolateParams(p workflow.Params, vars map[string]string) workflow.Params {
	out := p.Clone()
	if out == nil {
		out = workflow.Params{}
	}
	for k, v := range out {
		if s, ok := v.(string); ok {
			out[k] = interpolate(s, vars)
		}
	}
	return out
}

func describe(err error) string {
	if pf, ok := pferrors.As(err); ok {
		msg := pf.Display()
		if pf.Underlying != nil && pf.UserMessage == "" {
			msg += ": " + pf.Underlying.Error()
		}
		return msg
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
