package picker

import (
	"context"
	_ "embed"
	"time"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/ndjson"
	"github.com/odvcencio/portalflow/pkg/telemetry"
)

//go:embed overlay.js
var overlayScript string

// drainScript empties the page-side pick buffer in one evaluation.
const drainScript = `(() => {
  const picks = window.__portalflowPicks || [];
  window.__portalflowPicks = [];
  return {
    installed: !!window.__portalflowPicker,
    done: !!window.__portalflowPickerDone,
    picks: picks,
  };
})()`

// DefaultPollInterval is how often the pick buffer is drained.
const DefaultPollInterval = 300 * time.Millisecond

// Protocol event types.
const (
	EventStarted        = "picker_started"
	EventSelectorPicked = "selector_picked"
	EventDone           = "done"
)

// Reasons a picker session ends, reported in the done message.
const (
	DoneEscape       = "Picker closed"
	DoneDisconnected = "Browser disconnected"
	DoneStopped      = "Picker stopped"
)

const maxPickText = 80

// Event is one picker protocol message.
type Event struct {
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	URL       string    `json:"url,omitempty"`
	Selector  string    `json:"selector,omitempty"`
	Text      string    `json:"text,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Options configures a picker Service.
type Options struct {
	PollInterval time.Duration
	// Emitter receives every event as an NDJSON line.
	Emitter *ndjson.Emitter
	Hub     *telemetry.Hub
	Logger  *logging.Logger
	// OnEvent is called synchronously for every event.
	OnEvent func(Event)
}

// Service runs one picker session on a page.
type Service struct {
	driver    browser.Driver
	sessionID string
	opts      Options
	seq       int
	now       func() time.Time
}

type drainResult struct {
	Installed bool   `json:"installed"`
	Done      bool   `json:"done"`
	Picks     []Pick `json:"picks"`
}

// NewService binds a picker to d.
func NewService(d browser.Driver, sessionID string, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Service{driver: d, sessionID: sessionID, opts: opts, now: time.Now}
}

// Run loads url, installs the overlay and polls for picks until the operator
// presses Escape, the browser goes away or ctx is cancelled. Only the initial
// page load and overlay install return errors.
func (s *Service) Run(ctx context.Context, url string) error {
	if url == "" {
		url = "about:blank"
	}
	if err := s.driver.Navigate(ctx, url, 0); err != nil {
		s.finish("navigation failed: "+err.Error(), "error")
		return err
	}
	if err := s.install(ctx); err != nil {
		s.finish("overlay failed: "+err.Error(), "error")
		return err
	}
	s.emit(Event{Type: EventStarted, URL: url})

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.finish(DoneStopped, "stopped")
			return nil
		case <-ticker.C:
		}

		res, err := s.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(DoneStopped, "stopped")
				return nil
			}
			if browser.IsConnectionError(err) {
				s.finish(DoneDisconnected, "disconnected")
				return nil
			}
			// Evaluation fails while the page is mid-navigation; retry next tick.
			_ = s.opts.Logger.Debug(logging.CategoryPicker, "poll_failed", err.Error(), map[string]any{"session_id": s.sessionID})
			continue
		}
		for _, p := range res.Picks {
			s.picked(p)
		}
		if res.Done {
			s.finish(DoneEscape, "escape")
			return nil
		}
		if !res.Installed {
			if err := s.install(ctx); err != nil {
				_ = s.opts.Logger.Debug(logging.CategoryPicker, "reinstall_failed", err.Error(), map[string]any{"session_id": s.sessionID})
			}
		}
	}
}

func (s *Service) install(ctx context.Context) error {
	var ok bool
	return s.driver.Evaluate(ctx, overlayScript, &ok)
}

func (s *Service) drain(ctx context.Context) (drainResult, error) {
	var res drainResult
	err := s.driver.Evaluate(ctx, drainScript, &res)
	return res, err
}

func (s *Service) picked(p Pick) {
	el, err := ParseElement(p)
	if err != nil {
		_ = s.opts.Logger.Warn(logging.CategoryPicker, "bad_pick", err.Error(), map[string]any{"session_id": s.sessionID})
		return
	}
	metricPicks.Inc()
	s.emit(Event{
		Type:     EventSelectorPicked,
		Selector: Synthesize(el),
		Text:     truncate(el.Text, maxPickText),
		Tag:      el.Tag,
	})
}

func (s *Service) finish(message, reason string) {
	metricSessions.WithLabelValues(reason).Inc()
	s.emit(Event{Type: EventDone, Message: message})
}

func (s *Service) emit(ev Event) {
	s.seq++
	ev.Seq = s.seq
	ev.Timestamp = s.now()

	var payload map[string]any
	hubType := telemetry.EventPickerDone
	switch ev.Type {
	case EventStarted:
		payload = map[string]any{"url": ev.URL}
		hubType = telemetry.EventPickerStarted
	case EventSelectorPicked:
		payload = map[string]any{"selector": ev.Selector, "text": ev.Text, "tag": ev.Tag}
		hubType = telemetry.EventPickerSelector
	default:
		payload = map[string]any{"message": ev.Message}
	}

	if err := s.opts.Emitter.Emit(ev.Type, payload); err != nil {
		_ = s.opts.Logger.Warn(logging.CategoryPicker, "emit_failed", err.Error(), nil)
	}
	if s.opts.Hub != nil {
		s.opts.Hub.Publish(telemetry.Event{Type: hubType, Timestamp: ev.Timestamp, SessionID: s.sessionID, Data: payload})
	}
	_ = s.opts.Logger.Info(logging.CategoryPicker, ev.Type, ev.Message, payload)
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
