package telemetry

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventRunStepStarted   EventType = "run.step_started"
	EventRunStepCompleted EventType = "run.step_completed"
	EventRunStepFailed    EventType = "run.step_failed"
	EventRunCompleted     EventType = "run.completed"
	EventRunFailed        EventType = "run.failed"
	EventRunStopped       EventType = "run.stopped"

	EventPickerStarted  EventType = "picker.started"
	EventPickerSelector EventType = "picker.selector"
	EventPickerDone     EventType = "picker.done"

	EventRosterStage   EventType = "roster.stage"
	EventRosterWarning EventType = "roster.warning"

	EventWorkflowSaved   EventType = "workflow.saved"
	EventWorkflowDeleted EventType = "workflow.deleted"
)

// Event describes activity that UIs and bus clients can consume.
type Event struct {
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"sessionId,omitempty"`
	RunID      string         `json:"runId,omitempty"`
	WorkflowID string         `json:"workflowId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// DefaultSubscriberChannelSize is the per-subscriber buffer used by NewHub.
const DefaultSubscriberChannelSize = 64

// Family returns the part of t before the first dot, e.g. "run".
func (t EventType) Family() string {
	family, _, _ := strings.Cut(string(t), ".")
	return family
}

type subscriber struct {
	ch       chan Event
	families []string
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.families) == 0 || slices.Contains(s.families, t.Family())
}

// Hub fans events out to subscribers. Publishing never blocks: a full
// subscriber misses the event and the miss is counted.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	bufferSize int
	nextID     atomic.Uint64
	dropped    atomic.Uint64
	closed     bool
}

func NewHub() *Hub {
	return NewHubWithBuffer(DefaultSubscriberChannelSize)
}

// NewHubWithBuffer constructs a hub whose subscriber channels hold size events.
func NewHubWithBuffer(size int) *Hub {
	if size <= 0 {
		size = DefaultSubscriberChannelSize
	}
	return &Hub{subs: make(map[string]*subscriber), bufferSize: size}
}

// Publish stamps event and offers it to every interested subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribe returns a channel of future events and a func that releases it.
// With families set, only events of those families ("run", "picker", ...)
// are delivered.
func (h *Hub) Subscribe(families ...string) (<-chan Event, func()) {
	ch, id := h.SubscribeWithID(families...)
	return ch, func() { h.Unsubscribe(id) }
}

// SubscribeWithID is Subscribe for callers that track subscribers by id.
// After Close it returns an already closed channel and an empty id.
func (h *Hub) SubscribeWithID(families ...string) (<-chan Event, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Event)
		close(ch)
		return ch, ""
	}
	id := "sub-" + strconv.FormatUint(h.nextID.Add(1), 10)
	h.subs[id] = &subscriber{ch: make(chan Event, h.bufferSize), families: families}
	return h.subs[id].ch, id
}

// Unsubscribe closes the channel registered under id. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Close releases every subscriber and stops future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
