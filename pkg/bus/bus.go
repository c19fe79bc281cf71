// Package bus forwards portalflow events to external observers over a
// publish/subscribe message bus. The NATS implementation is used when a
// server URL is configured; the in-memory bus serves tests and single
// process setups.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/odvcencio/portalflow/pkg/logging"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// MessageBus publishes and delivers messages by subject.
// Implementations must be safe for concurrent use.
type MessageBus interface {
	// Publish sends data to every subscriber of subject. It does not wait
	// for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. Wildcards follow NATS:
	// "portalflow.run.*" matches one token, "portalflow.>" any suffix.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes one incoming message.
type MessageHandler func(msg *Message)

// Message is an incoming message.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL. Empty selects the in-memory bus.
	URL string

	// Name is a client identifier for server-side monitoring.
	Name string

	// Timeout bounds the initial connect.
	Timeout time.Duration

	// Logger receives connection state changes. It may be nil.
	Logger *logging.Logger
}

// DefaultConfig names the client and bounds the connect at 10s.
func DefaultConfig() Config {
	return Config{
		Name:    "portalflow",
		Timeout: 10 * time.Second,
	}
}

// Open returns a NATS bus when cfg.URL is set and an in-memory bus
// otherwise.
func Open(cfg Config) (MessageBus, error) {
	if cfg.URL == "" {
		return NewMemoryBus(), nil
	}
	return NewNATSBus(cfg)
}
