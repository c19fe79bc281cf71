// Package filewatch reports changes to files in a directory. Changes come
// either from fsnotify or from writers that announce their own edits, and
// are dispatched to glob-scoped handlers.
package filewatch

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
)

// ChangeType describes the kind of file change observed.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// SourceDisk marks changes observed by fsnotify.
const SourceDisk = "fsnotify"

// DefaultDebounce coalesces the burst of events one atomic save produces.
const DefaultDebounce = 50 * time.Millisecond

// FileChange records one change to a file.
type FileChange struct {
	Path    string
	Type    ChangeType
	Size    int64
	ModTime time.Time
	// Source is SourceDisk or the label the announcing writer chose.
	Source string
}

// Handler receives file changes.
type Handler func(FileChange)

type subscription struct {
	pattern string
	handler Handler
}

// Watcher dispatches file changes and remembers the most recent ones.
type Watcher struct {
	// Debounce is the quiet period before a disk change is dispatched.
	// Only the last event for a path within the window is delivered.
	Debounce time.Duration

	mu      sync.Mutex
	subs    map[string]subscription
	history []FileChange
	limit   int
	pending map[string]*time.Timer
}

// New creates a watcher that keeps the last history changes.
func New(history int) *Watcher {
	if history <= 0 {
		history = 100
	}
	return &Watcher{
		Debounce: DefaultDebounce,
		subs:     make(map[string]subscription),
		limit:    history,
		pending:  make(map[string]*time.Timer),
	}
}

// Subscribe registers h for paths matching pattern and returns an id for
// Unsubscribe. A pattern without "/" is matched against the base name.
func (w *Watcher) Subscribe(pattern string, h Handler) string {
	if w == nil || h == nil {
		return ""
	}
	id := ulid.Make().String()
	w.mu.Lock()
	w.subs[id] = subscription{pattern: strings.TrimSpace(pattern), handler: h}
	w.mu.Unlock()
	return id
}

// Unsubscribe removes a handler.
func (w *Watcher) Unsubscribe(id string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	delete(w.subs, id)
	w.mu.Unlock()
}

// Notify records c and calls every matching handler synchronously.
func (w *Watcher) Notify(c FileChange) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.history = append(w.history, c)
	if over := len(w.history) - w.limit; over > 0 {
		w.history = append([]FileChange(nil), w.history[over:]...)
	}
	var handlers []Handler
	for _, s := range w.subs {
		if match(s.pattern, c.Path) {
			handlers = append(handlers, s.handler)
		}
	}
	w.mu.Unlock()

	for _, h := range handlers {
		h(c)
	}
}

// RecentChanges returns up to limit changes, newest first. limit <= 0
// returns all of them.
func (w *Watcher) RecentChanges(limit int) []FileChange {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]FileChange, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, w.history[i])
	}
	return out
}

// WatchDir starts observing dir and returns once the watch is in place.
// The returned channel closes after ctx is done and the loop has exited.
func (w *Watcher) WatchDir(ctx context.Context, dir string) (<-chan struct{}, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer fsw.Close()
		defer w.cancelPending()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				w.schedule(ev)
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return done, nil
}

// schedule delivers ev after the debounce window unless a newer event for
// the same path replaces it.
func (w *Watcher) schedule(ev fsnotify.Event) {
	if w.Debounce <= 0 {
		w.Notify(diskChange(ev))
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[ev.Name]; ok {
		t.Stop()
	}
	w.pending[ev.Name] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
		w.Notify(diskChange(ev))
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}

func diskChange(ev fsnotify.Event) FileChange {
	c := FileChange{Path: ev.Name, Source: SourceDisk, Type: ChangeModified}
	switch {
	case ev.Has(fsnotify.Remove):
		c.Type = ChangeDeleted
	case ev.Has(fsnotify.Rename):
		c.Type = ChangeRenamed
	case ev.Has(fsnotify.Create):
		c.Type = ChangeCreated
	}
	if info, err := os.Stat(ev.Name); err == nil {
		c.Size = info.Size()
		c.ModTime = info.ModTime()
	}
	return c
}

func match(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	name = filepath.ToSlash(name)
	pattern = filepath.ToSlash(pattern)
	if !strings.Contains(pattern, "/") {
		name = path.Base(name)
	}
	ok, _ := path.Match(pattern, name)
	return ok
}
