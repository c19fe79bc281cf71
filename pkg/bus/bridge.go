package bus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/odvcencio/portalflow/pkg/logging"
	"github.com/odvcencio/portalflow/pkg/telemetry"
)

// DefaultSubjectPrefix prefixes every forwarded subject.
const DefaultSubjectPrefix = "portalflow"

// Bridge forwards telemetry hub events onto a MessageBus. An event of type
// "run.step_completed" is published on "<prefix>.run.step_completed" as
// the JSON encoded event.
type Bridge struct {
	hub    *telemetry.Hub
	bus    MessageBus
	prefix string
	logger *logging.Logger

	// Families restricts forwarding to these event families. Set before Run.
	Families []string
}

// NewBridge creates a bridge. An empty prefix uses DefaultSubjectPrefix.
func NewBridge(hub *telemetry.Hub, b MessageBus, prefix string, logger *logging.Logger) *Bridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Bridge{hub: hub, bus: b, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (br *Bridge) Subject(t telemetry.EventType) string {
	return br.prefix + "." + string(t)
}

// Run forwards events until ctx is cancelled or the hub closes. Publish
// failures are logged and do not stop the bridge.
func (br *Bridge) Run(ctx context.Context) error {
	events, unsubscribe := br.hub.Subscribe(br.Families...)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			br.forward(ctx, ev)
		}
	}
}

func (br *Bridge) forward(ctx context.Context, ev telemetry.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		_ = br.logger.Warn(logging.CategoryServer, "bridge_encode_failed", err.Error(), map[string]any{"type": string(ev.Type)})
		return
	}
	if err := br.bus.Publish(ctx, br.Subject(ev.Type), data); err != nil {
		_ = br.logger.Warn(logging.CategoryServer, "bridge_publish_failed", err.Error(), map[string]any{"type": string(ev.Type)})
	}
}
