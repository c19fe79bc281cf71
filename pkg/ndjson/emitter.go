// Package ndjson writes machine-readable progress events as one JSON object
// per line. Each object carries "type" and "ts" followed by the payload keys.
package ndjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Emitter serializes events to a writer. Safe for concurrent use.
type Emitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// New returns an emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w, now: time.Now}
}

// Discard returns an emitter that drops everything.
func Discard() *Emitter {
	return New(io.Discard)
}

// Emit writes {"type":eventType,"ts":...,<payload>} followed by a newline.
// Payload keys named "type" or "ts" are ignored.
func (e *Emitter) Emit(eventType string, payload map[string]any) error {
	if e == nil || e.w == nil {
		return nil
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if err := writeJSON(&buf, eventType); err != nil {
		return err
	}
	buf.WriteString(`,"ts":`)
	if err := writeJSON(&buf, e.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "type" || k == "ts" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		if err := writeJSON(&buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, payload[k]); err != nil {
			return fmt.Errorf("ndjson: encode %q: %w", k, err)
		}
	}
	buf.WriteString("}\n")

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.w.Write(buf.Bytes())
	return err
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
