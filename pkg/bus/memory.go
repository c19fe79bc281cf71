package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// subscriberBuffer bounds each subscriber's backlog. Publishing never
// blocks; a subscriber that falls this far behind misses messages.
const subscriberBuffer = 256

// MemoryBus is an in-process MessageBus with NATS-style wildcards. It
// keeps no history.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]*memorySub
	closed bool
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]*memorySub)}
}

// Publish queues data for every subscriber whose pattern matches subject.
func (b *MemoryBus) Publish(_ context.Context, subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := &Message{Subject: subject, Data: data}
	for _, s := range b.subs {
		if !matchSubject(s.pattern, subject) {
			continue
		}
		select {
		case s.inbox <- msg:
		default:
		}
	}
	return nil
}

// Subscribe delivers matching messages to handler on a dedicated goroutine
// until the subscription, the bus or ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, handler MessageHandler) (Subscription, error) {
	s := &memorySub{
		id:      ulid.Make().String(),
		pattern: pattern,
		inbox:   make(chan *Message, subscriberBuffer),
		quit:    make(chan struct{}),
		bus:     b,
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.deliver(ctx, handler)
	return s, nil
}

// Close ends every subscription. Closing twice returns ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	for id, s := range b.subs {
		s.once.Do(func() { close(s.quit) })
		delete(b.subs, id)
	}
	return nil
}

type memorySub struct {
	id      string
	pattern string
	inbox   chan *Message
	quit    chan struct{}
	once    sync.Once
	bus     *MemoryBus
}

func (s *memorySub) Subject() string { return s.pattern }

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.once.Do(func() { close(s.quit) })
	return nil
}

func (s *memorySub) deliver(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case msg := <-s.inbox:
			handler(msg)
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// matchSubject reports whether subject matches pattern. "*" matches one
// token and a trailing ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	want := strings.Split(pattern, ".")
	got := strings.Split(subject, ".")
	for i, tok := range want {
		if tok == ">" {
			return i == len(want)-1 && len(got) > i
		}
		if i >= len(got) {
			return false
		}
		if tok != "*" && tok != got[i] {
			return false
		}
	}
	return len(want) == len(got)
}
