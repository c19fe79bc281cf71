package ndjson

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEmitter(buf *bytes.Buffer) *Emitter {
	e := New(buf)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

func TestEmit_FieldOrder(t *testing.T) {
	var buf bytes.Buffer
	e := fixedEmitter(&buf)

	require.NoError(t, e.Emit("stage", map[string]any{"stage": "login", "attempt": 1}))

	assert.Equal(t,
		`{"type":"stage","ts":"2026-01-02T03:04:05Z","attempt":1,"stage":"login"}`+"\n",
		buf.String())
}

func TestEmit_ReservedKeysIgnored(t *testing.T) {
	var buf bytes.Buffer
	e := fixedEmitter(&buf)

	require.NoError(t, e.Emit("done", map[string]any{"type": "hijack", "ts": "never", "ok": true}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "done", got["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["ts"])
	assert.Equal(t, true, got["ok"])
}

func TestEmit_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = e.Emit("tick", map[string]any{"i": i})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var m map[string]any
		assert.NoError(t, json.Unmarshal([]byte(line), &m), line)
	}
}

func TestEmit_UnencodablePayload(t *testing.T) {
	var buf bytes.Buffer
	err := New(&buf).Emit("bad", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestEmit_NilEmitter(t *testing.T) {
	var e *Emitter
	assert.NoError(t, e.Emit("x", nil))
	assert.NoError(t, Discard().Emit("x", nil))
}
