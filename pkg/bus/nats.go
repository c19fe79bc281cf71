package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/odvcencio/portalflow/pkg/logging"
)

// NATSBus publishes portalflow events to a NATS server.
type NATSBus struct {
	conn   *nats.Conn
	owned  bool
	closed atomic.Bool
}

// NewNATSBus connects to cfg.URL and keeps reconnecting for the life of
// the process. Connection state changes are logged to cfg.Logger.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	log := cfg.Logger
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				_ = log.Warn(logging.CategoryServer, "bus_disconnected", err.Error(), map[string]any{"url": cfg.URL})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			_ = log.Info(logging.CategoryServer, "bus_reconnected", "reconnected to NATS", map[string]any{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return &NATSBus{conn: conn, owned: true}, nil
}

// NewNATSBusFromConn wraps a connection the caller keeps ownership of.
func NewNATSBusFromConn(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

// Publish hands data to the client's outbound buffer.
func (b *NATSBus) Publish(_ context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.conn.Publish(subject, data)
}

// Subscribe runs handler on the NATS client's delivery goroutine.
func (b *NATSBus) Subscribe(_ context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(&Message{Subject: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return natsSubscription{sub}, nil
}

// Close flushes queued events and closes the connection when the bus
// opened it.
func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	if !b.owned {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

// Conn exposes the connection for health checks.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }

func (s natsSubscription) Subject() string { return s.sub.Subject }
