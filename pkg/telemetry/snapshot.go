package telemetry

import (
	"context"
	"sync"
)

// Snapshot holds the latest value published by a single producer. Readers
// never block the producer; they either Load the current value or Watch for
// a version newer than the one they already have.
type Snapshot[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	changed chan struct{}
}

// NewSnapshot creates a snapshot seeded with initial at version 0.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	return &Snapshot[T]{value: initial, changed: make(chan struct{})}
}

// Store replaces the value and wakes every watcher.
func (s *Snapshot[T]) Store(v T) uint64 {
	s.mu.Lock()
	s.value = v
	s.version++
	ver := s.version
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	return ver
}

// Update applies fn to the current value under the write lock.
func (s *Snapshot[T]) Update(fn func(T) T) uint64 {
	s.mu.Lock()
	s.value = fn(s.value)
	s.version++
	ver := s.version
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	return ver
}

// Load returns the current value and its version.
func (s *Snapshot[T]) Load() (T, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.version
}

// Watch blocks until the version exceeds after, then returns the value.
func (s *Snapshot[T]) Watch(ctx context.Context, after uint64) (T, uint64, error) {
	for {
		s.mu.RLock()
		if s.version > after {
			v, ver := s.value, s.version
			s.mu.RUnlock()
			return v, ver, nil
		}
		wait := s.changed
		s.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, after, ctx.Err()
		}
	}
}
