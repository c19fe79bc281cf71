package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, b *MemoryBus, pattern string) <-chan *Message {
	t.Helper()
	out := make(chan *Message, 16)
	sub, err := b.Subscribe(context.Background(), pattern, func(msg *Message) { out <- msg })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return out
}

func next(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func quiet(t *testing.T, ch <-chan *Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Errorf("unexpected delivery on %s", msg.Subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_RoutesBySubject(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	steps := collect(t, b, "portalflow.run.*")
	picker := collect(t, b, "portalflow.picker.selector")

	require.NoError(t, b.Publish(ctx, "portalflow.run.step_started", []byte(`{"step":1}`)))
	require.NoError(t, b.Publish(ctx, "portalflow.picker.selector", []byte(`#email`)))
	require.NoError(t, b.Publish(ctx, "portalflow.roster.stage", nil))

	msg := next(t, steps)
	assert.Equal(t, "portalflow.run.step_started", msg.Subject)
	assert.JSONEq(t, `{"step":1}`, string(msg.Data))
	assert.Equal(t, "#email", string(next(t, picker).Data))
	quiet(t, steps)
	quiet(t, picker)
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var count atomic.Int32
	done := make(chan struct{}, 3)
	for range 3 {
		_, err := b.Subscribe(context.Background(), "portalflow.>", func(*Message) {
			count.Add(1)
			done <- struct{}{}
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(context.Background(), "portalflow.run.completed", nil))
	for range 3 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("subscriber not reached")
		}
	}
	assert.EqualValues(t, 3, count.Load())
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	got := make(chan *Message, 1)
	sub, err := b.Subscribe(context.Background(), "portalflow.run.started", func(m *Message) { got <- m })
	require.NoError(t, err)
	assert.Equal(t, "portalflow.run.started", sub.Subject())

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe(), "second unsubscribe is a no-op")

	require.NoError(t, b.Publish(context.Background(), "portalflow.run.started", []byte("x")))
	quiet(t, got)
}

func TestMemoryBus_ContextEndsSubscription(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *Message, 1)
	_, err := b.Subscribe(ctx, "portalflow.>", func(m *Message) { got <- m })
	require.NoError(t, err)
	cancel()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "portalflow.run.started", nil))
	quiet(t, got)
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"portalflow.run.started", "portalflow.run.started", true},
		{"portalflow.run.started", "portalflow.run.failed", false},
		{"portalflow.run.*", "portalflow.run.step_started", true},
		{"portalflow.run.*", "portalflow.run", false},
		{"portalflow.run.*", "portalflow.run.a.b", false},
		{"*.workflow.saved", "pf.workflow.saved", true},
		{"portalflow.>", "portalflow.roster.stage", true},
		{"portalflow.>", "portalflow", false},
		{"portalflow.>.stage", "portalflow.roster.stage", false},
		{">", "anything.at.all", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject), "%s ~ %s", tt.pattern, tt.subject)
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	ctx := context.Background()
	assert.ErrorIs(t, b.Publish(ctx, "portalflow.run.started", nil), ErrClosed)
	_, err := b.Subscribe(ctx, "portalflow.>", func(*Message) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Close(), ErrClosed)
}

func TestOpen_EmptyURLIsMemory(t *testing.T) {
	b, err := Open(Config{})
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &MemoryBus{}, b)
}
