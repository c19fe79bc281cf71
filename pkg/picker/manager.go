package picker

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/lease"
	"github.com/odvcencio/portalflow/pkg/logging"
)

const defaultMaxEvents = 1000

// ManagerConfig wires a picker Manager.
type ManagerConfig struct {
	Browsers *browser.Manager
	// Session is the base session config. Picker sessions are always headed.
	Session browser.SessionConfig
	Options Options
	// Slot is shared with the run manager when runs and pickers must not
	// overlap. A fresh slot is used when nil.
	Slot *lease.Slot
	// MaxEvents bounds the retained event log; the oldest events are dropped.
	MaxEvents int
}

// Status is the polled view of the picker.
type Status struct {
	Active    bool    `json:"active"`
	SessionID string  `json:"sessionId"`
	Events    []Event `json:"events"`
	// Next is the seq to pass as since on the next poll.
	Next int `json:"next"`
}

// Manager owns at most one picker session at a time and keeps its event log
// for polling clients.
type Manager struct {
	cfg  ManagerConfig
	slot *lease.Slot

	mu        sync.Mutex
	active    *pickerSession
	sessionID string
	events    []Event
	wg        sync.WaitGroup
}

type pickerSession struct {
	id     string
	token  lease.Token
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewManager builds a picker manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	slot := cfg.Slot
	if slot == nil {
		slot = lease.NewSlot("picker")
	}
	return &Manager{cfg: cfg, slot: slot}
}

// Start opens a headed browser on url and begins picking in the background.
// It fails with SESSION_BUSY while another session holds the slot.
func (m *Manager) Start(ctx context.Context, url string) (string, error) {
	tok, err := m.slot.Acquire("picker")
	if err != nil {
		return "", err
	}
	ps := &pickerSession{id: ulid.Make().String(), token: tok, done: make(chan struct{})}

	sess := m.cfg.Session
	sess.SessionID = ps.id
	sess.Headless = false
	sess.InitialURL = url

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ps.cancel = cancel
	driver, err := m.cfg.Browsers.CreateSession(runCtx, sess)
	if err != nil {
		cancel()
		m.slot.Release(tok)
		return "", err
	}

	m.mu.Lock()
	m.active = ps
	m.sessionID = ps.id
	m.events = nil
	m.mu.Unlock()

	opts := m.cfg.Options
	user := opts.OnEvent
	opts.OnEvent = func(ev Event) {
		m.record(ps.id, ev)
		if user != nil {
			user(ev)
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.finish(ps)
		ps.err = NewService(driver, ps.id, opts).Run(runCtx, url)
	}()
	return ps.id, nil
}

func (m *Manager) finish(ps *pickerSession) {
	ps.cancel()
	if err := m.cfg.Browsers.CloseSession(ps.id); err != nil {
		_ = m.cfg.Options.Logger.Warn(logging.CategoryBrowser, "close_failed", err.Error(), map[string]any{"session_id": ps.id})
	}
	m.mu.Lock()
	if m.active == ps {
		m.active = nil
	}
	m.mu.Unlock()
	m.slot.Release(ps.token)
	close(ps.done)
}

func (m *Manager) record(id string, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID != id {
		return
	}
	m.events = append(m.events, ev)
	if over := len(m.events) - m.cfg.MaxEvents; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
}

// Stop ends the active session. It reports whether one was active.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	ps := m.active
	m.mu.Unlock()
	if ps == nil {
		return false
	}
	ps.cancel()
	return true
}

// Status returns the events with seq greater than since for the current or
// most recent session.
func (m *Manager) Status(since int) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Active: m.active != nil, SessionID: m.sessionID, Events: []Event{}, Next: since}
	for _, ev := range m.events {
		if ev.Seq > since {
			st.Events = append(st.Events, ev)
		}
	}
	if n := len(m.events); n > 0 && m.events[n-1].Seq > st.Next {
		st.Next = m.events[n-1].Seq
	}
	return st
}

// Wait blocks until the session with id finishes and returns its error.
// Unknown or finished ids return nil immediately.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	ps := m.active
	m.mu.Unlock()
	if ps == nil || ps.id != id {
		return nil
	}
	select {
	case <-ps.done:
		return ps.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the active session and waits for it to exit.
func (m *Manager) Close() {
	m.Stop()
	m.wg.Wait()
}
