package telemetry

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.subs)
	assert.False(t, hub.isClosed())
	assert.Equal(t, DefaultSubscriberChannelSize, hub.bufferSize)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, unsub := hub.Subscribe()
	defer unsub()

	hub.Publish(Event{Type: EventRunStarted, RunID: "r1", Data: map[string]any{"workflow": "w"}})

	select {
	case received := <-ch:
		assert.Equal(t, EventRunStarted, received.Type)
		assert.Equal(t, "r1", received.RunID)
		assert.False(t, received.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch1, unsub1 := hub.Subscribe()
	defer unsub1()
	ch2, unsub2 := hub.Subscribe()
	defer unsub2()

	hub.Publish(Event{Type: EventPickerSelector})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventPickerSelector, ev.Type)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}

func TestHub_FamilyFilter(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	runs, unsub := hub.Subscribe("run")
	defer unsub()

	hub.Publish(Event{Type: EventPickerSelector})
	hub.Publish(Event{Type: EventRunCompleted, RunID: "r2"})

	select {
	case ev := <-runs:
		assert.Equal(t, EventRunCompleted, ev.Type)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("run subscriber missed run event")
	}
	assert.Empty(t, runs, "picker event should be filtered")
	assert.Equal(t, "workflow", EventWorkflowSaved.Family())
}

func TestHub_NilPublish(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventRunStarted}) })
}

func TestHub_UnsubscribeByID(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, id := hub.SubscribeWithID()
	require.NotEmpty(t, id)

	hub.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	assert.NotPanics(t, func() { hub.Unsubscribe(id) })
}

func TestHub_DropsWhenSubscriberFull(t *testing.T) {
	hub := NewHubWithBuffer(1)
	defer hub.Close()

	_, unsub := hub.Subscribe()
	defer unsub()

	hub.Publish(Event{Type: EventRunStepStarted})
	hub.Publish(Event{Type: EventRunStepStarted})
	hub.Publish(Event{Type: EventRunStepStarted})

	assert.Equal(t, uint64(2), hub.Dropped())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe()

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		hub.Publish(Event{Type: EventRunFailed})
		hub.Close()
	})

	late, unsub := hub.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")
	unsub()
}

func TestSnapshot_LoadStore(t *testing.T) {
	s := NewSnapshot("idle")
	v, ver := s.Load()
	assert.Equal(t, "idle", v)
	assert.Equal(t, uint64(0), ver)

	assert.Equal(t, uint64(1), s.Store("running"))
	v, ver = s.Load()
	assert.Equal(t, "running", v)
	assert.Equal(t, uint64(1), ver)

	assert.Equal(t, uint64(2), s.Update(func(cur string) string { return cur + "!" }))
	v, _ = s.Load()
	assert.Equal(t, "running!", v)
}

func TestSnapshot_WatchWakesOnStore(t *testing.T) {
	s := NewSnapshot(0)

	var wg sync.WaitGroup
	results := make([]int, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, ver, err := s.Watch(context.Background(), 0)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1), ver)
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	s.Store(42)
	wg.Wait()

	assert.Equal(t, []int{42, 42, 42}, results)
}

func TestSnapshot_WatchReturnsImmediatelyWhenBehind(t *testing.T) {
	s := NewSnapshot(1)
	s.Store(2)
	s.Store(3)

	v, ver, err := s.Watch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, uint64(2), ver)
}

func TestSnapshot_WatchHonorsContext(t *testing.T) {
	s := NewSnapshot("x")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ver, err := s.Watch(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), ver)
}

func TestTracerProvider_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider("portalflow-test", "test", &buf)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "portalflow.step", AttrStepType.String("click"))
	EndSpan(span, errors.New("boom"))

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "portalflow.step")
	assert.Contains(t, buf.String(), "boom")
}

func TestTracerProvider_NilShutdown(t *testing.T) {
	var tp *TracerProvider
	assert.NoError(t, tp.Shutdown(context.Background()))
}
