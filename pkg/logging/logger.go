// Package logging writes structured JSON-lines events. A file logger keeps
// one log per CLI session plus a shared errors.jsonl; a stream logger writes
// to any io.Writer. A nil *Logger discards everything.
package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is an event severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

// Category names the subsystem an event came from.
type Category string

const (
	CategoryBrowser  Category = "browser"
	CategoryWorkflow Category = "workflow"
	CategoryRun      Category = "run"
	CategoryPicker   Category = "picker"
	CategoryRoster   Category = "roster"
	CategoryStorage  Category = "storage"
	CategoryServer   Category = "server"
	CategoryConfig   Category = "config"
)

// Event is one log line.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Category  Category          `json:"category"`
	EventType string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// sink is one destination; events below floor are not written to it.
type sink struct {
	name  string
	w     io.Writer
	floor Level
}

// Logger fans events out to its sinks.
type Logger struct {
	mu        sync.Mutex
	sessionID string
	runID     string
	minLevel  Level
	sinks     []sink
	closers   []io.Closer
}

// NewLogger opens <baseDir>/sessions/<sessionID>.jsonl for every event and
// <baseDir>/errors.jsonl for error events. An empty sessionID logs to
// "default".
func NewLogger(baseDir, sessionID string) (*Logger, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	name := sessionID
	if name == "" {
		name = "default"
	}

	l := &Logger{sessionID: sessionID, minLevel: LevelInfo}
	for _, target := range []struct {
		name, path string
		floor      Level
	}{
		{"session", filepath.Join(sessionsDir, name+".jsonl"), LevelDebug},
		{"errors", filepath.Join(baseDir, "errors.jsonl"), LevelError},
	} {
		f, err := os.OpenFile(target.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("open %s log: %w", target.name, err)
		}
		l.sinks = append(l.sinks, sink{name: target.name, w: f, floor: target.floor})
		l.closers = append(l.closers, f)
	}
	return l, nil
}

// NewStreamLogger writes every accepted event to w.
func NewStreamLogger(w io.Writer, sessionID string) *Logger {
	return &Logger{
		sessionID: sessionID,
		minLevel:  LevelInfo,
		sinks:     []sink{{name: "stream", w: w, floor: LevelDebug}},
	}
}

// Nop returns a logger with no sinks.
func Nop() *Logger {
	return &Logger{minLevel: LevelError}
}

// Tee adds w as another destination for every accepted event.
func (l *Logger) Tee(w io.Writer) {
	if l == nil || w == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, sink{name: "tee", w: w, floor: LevelDebug})
	l.mu.Unlock()
}

// SetMinLevel drops events below level.
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// SetRunID stamps subsequent events that carry no run id of their own.
func (l *Logger) SetRunID(runID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.runID = runID
	l.mu.Unlock()
}

// Log writes ev to every sink whose floor it clears.
func (l *Logger) Log(ev Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Level.rank() < l.minLevel.rank() || len(l.sinks) == 0 {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.SessionID == "" {
		ev.SessionID = l.sessionID
	}
	if ev.RunID == "" {
		ev.RunID = l.runID
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}
	line = append(line, '\n')

	var errs []error
	for _, s := range l.sinks {
		if ev.Level.rank() < s.floor.rank() {
			continue
		}
		if _, err := s.w.Write(line); err != nil {
			errs = append(errs, fmt.Errorf("write %s log: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Logger) emit(level Level, category Category, eventType, message string, details map[string]any) error {
	return l.Log(Event{Level: level, Category: category, EventType: eventType, Message: message, Details: details})
}

func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) error {
	return l.emit(LevelDebug, category, eventType, message, details)
}

func (l *Logger) Info(category Category, eventType, message string, details map[string]any) error {
	return l.emit(LevelInfo, category, eventType, message, details)
}

func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) error {
	return l.emit(LevelWarn, category, eventType, message, details)
}

func (l *Logger) Error(category Category, eventType, message string, details map[string]any) error {
	return l.emit(LevelError, category, eventType, message, details)
}

// Close closes the log files. Stream sinks are left open.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	l.sinks = nil
	return errors.Join(errs...)
}

// ReadRecentEvents returns the last count events in a JSON-lines log. A
// truncated final line ends the read.
func ReadRecentEvents(logPath string, count int) ([]Event, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
		if count > 0 && len(events) > count {
			events = events[1:]
		}
	}
	return events, nil
}
