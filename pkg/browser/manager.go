package browser

import (
	"context"
	"errors"
	"sync"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// Manager owns the sessions opened on one Runtime. Session ids are unique
// for the life of a session; an id is reserved before the browser launches
// so two callers racing on the same id cannot both start one.
type Manager struct {
	runtime Runtime
	mu      sync.Mutex
	open    map[string]Driver
}

func NewManager(runtime Runtime) *Manager {
	return &Manager{runtime: runtime, open: make(map[string]Driver)}
}

// CreateSession launches a browser for cfg and returns it instrumented.
// Launch failures are reported as navigation errors against the initial URL.
func (m *Manager) CreateSession(ctx context.Context, cfg SessionConfig) (Driver, error) {
	if m == nil || m.runtime == nil {
		return nil, ErrUnavailable
	}
	if cfg.SessionID == "" {
		return nil, pferrors.Validation("browser session id is required")
	}

	m.mu.Lock()
	if _, taken := m.open[cfg.SessionID]; taken {
		m.mu.Unlock()
		return nil, pferrors.New(pferrors.ErrCodeSessionBusy, "browser session already open").
			WithContext("session", cfg.SessionID)
	}
	m.open[cfg.SessionID] = nil
	m.mu.Unlock()

	cfg = cfg.Normalize()
	drv, err := m.runtime.NewSession(ctx, cfg)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.open, cfg.SessionID)
		return nil, Classify(OpNavigate, cfg.InitialURL, cfg.NavigationTimeout, err)
	}
	drv = Instrument(drv)
	m.open[cfg.SessionID] = drv
	recordSessionOpened()
	return drv, nil
}

// GetSession returns a launched session. Reserved ids still launching are
// not returned.
func (m *Manager) GetSession(id string) (Driver, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	drv := m.open[id]
	return drv, drv != nil
}

// CloseSession closes the browser for id. Closing an unknown or already
// closed id returns ErrSessionClosed.
func (m *Manager) CloseSession(id string) error {
	if m == nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	drv := m.open[id]
	if drv != nil {
		delete(m.open, id)
	}
	m.mu.Unlock()
	if drv == nil {
		return ErrSessionClosed
	}
	recordSessionClosed()
	return drv.Close()
}

// Len counts launched sessions.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, drv := range m.open {
		if drv != nil {
			n++
		}
	}
	return n
}

// Close closes every session, then the runtime.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	open := m.open
	m.open = make(map[string]Driver)
	m.mu.Unlock()

	var errs []error
	for _, drv := range open {
		if drv == nil {
			continue
		}
		recordSessionClosed()
		errs = append(errs, drv.Close())
	}
	if m.runtime != nil {
		errs = append(errs, m.runtime.Close())
	}
	return errors.Join(errs...)
}
