package picker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/browser/browsermock"
	"github.com/odvcencio/portalflow/pkg/ndjson"
)

// scriptedPage answers overlay installs and drains from a fixed script.
type scriptedPage struct {
	drains   []drainResult
	installs int
	err      error
}

func (p *scriptedPage) evaluate(_ context.Context, script string, out any) error {
	if script == overlayScript {
		p.installs++
		*out.(*bool) = true
		return nil
	}
	if len(p.drains) == 0 {
		if p.err != nil {
			return p.err
		}
		*out.(*drainResult) = drainResult{Installed: true}
		return nil
	}
	*out.(*drainResult) = p.drains[0]
	p.drains = p.drains[1:]
	return nil
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestService_PicksUntilEscape(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	page := &scriptedPage{drains: []drainResult{
		{Installed: true, Picks: []Pick{
			{HTML: `<button id="export"></button>`, Tag: "button", Text: "Export"},
			{HTML: `<span class="label"></span>`, Tag: "span", Text: "Class Roster", TextMatches: 1},
		}},
		{Installed: false},
		{Installed: true, Done: true},
	}}
	drv.EXPECT().Navigate(gomock.Any(), "https://portal.example", time.Duration(0)).Return(nil)
	drv.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(page.evaluate).AnyTimes()

	var buf bytes.Buffer
	var seen []Event
	before := testutil.ToFloat64(PicksCounter())
	svc := NewService(drv, "p1", Options{
		PollInterval: time.Millisecond,
		Emitter:      ndjson.New(&buf),
		OnEvent:      func(ev Event) { seen = append(seen, ev) },
	})
	require.NoError(t, svc.Run(context.Background(), "https://portal.example"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "picker_started", lines[0]["type"])
	assert.Equal(t, "https://portal.example", lines[0]["url"])
	assert.Equal(t, "selector_picked", lines[1]["type"])
	assert.Equal(t, "#export", lines[1]["selector"])
	assert.Equal(t, "button", lines[1]["tag"])
	assert.Equal(t, "Export", lines[1]["text"])
	assert.Equal(t, `text="Class Roster"`, lines[2]["selector"])
	assert.Equal(t, "done", lines[3]["type"])
	assert.Equal(t, DoneEscape, lines[3]["message"])
	assert.NotEmpty(t, lines[0]["ts"])

	assert.Equal(t, 2, page.installs, "overlay reinstalled after the page lost it")
	assert.Equal(t, before+2, testutil.ToFloat64(PicksCounter()))
	require.Len(t, seen, 4)
	for i, ev := range seen {
		assert.Equal(t, i+1, ev.Seq)
	}
}

func TestService_StopsOnDisconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	page := &scriptedPage{
		drains: []drainResult{{Installed: true}},
		err:    browser.ErrSessionClosed,
	}
	drv.EXPECT().Navigate(gomock.Any(), "about:blank", gomock.Any()).Return(nil)
	drv.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(page.evaluate).AnyTimes()

	var buf bytes.Buffer
	svc := NewService(drv, "p", Options{PollInterval: time.Millisecond, Emitter: ndjson.New(&buf)})
	require.NoError(t, svc.Run(context.Background(), ""))

	lines := decodeLines(t, &buf)
	last := lines[len(lines)-1]
	assert.Equal(t, "done", last["type"])
	assert.Equal(t, DoneDisconnected, last["message"])
}

func TestService_TransientPollErrorsAreRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	drv.EXPECT().Navigate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	calls := 0
	drv.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, script string, out any) error {
			if script == overlayScript {
				return nil
			}
			calls++
			if calls == 1 {
				return errors.New("Execution context was destroyed")
			}
			*out.(*drainResult) = drainResult{Installed: true, Done: true}
			return nil
		}).AnyTimes()

	var seen []Event
	svc := NewService(drv, "p", Options{PollInterval: time.Millisecond, OnEvent: func(ev Event) { seen = append(seen, ev) }})
	require.NoError(t, svc.Run(context.Background(), "about:blank"))
	assert.Equal(t, 2, calls)
	assert.Equal(t, DoneEscape, seen[len(seen)-1].Message)
}

func TestService_CancelEmitsDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	page := &scriptedPage{}
	drv.EXPECT().Navigate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	drv.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(page.evaluate).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var seen []Event
	svc := NewService(drv, "p", Options{PollInterval: time.Millisecond, OnEvent: func(ev Event) { seen = append(seen, ev) }})
	require.NoError(t, svc.Run(ctx, "about:blank"))
	require.NotEmpty(t, seen)
	assert.Equal(t, EventDone, seen[len(seen)-1].Type)
	assert.Equal(t, DoneStopped, seen[len(seen)-1].Message)
}

func TestService_NavigationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	drv.EXPECT().Navigate(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))

	var buf bytes.Buffer
	err := NewService(drv, "p", Options{Emitter: ndjson.New(&buf)}).Run(context.Background(), "https://nope.invalid")
	require.Error(t, err)
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "done", lines[0]["type"])
	assert.Contains(t, lines[0]["message"], "navigation failed")
}
