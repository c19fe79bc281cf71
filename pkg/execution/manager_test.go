package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/browser/browsermock"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/lease"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func newTestManager(t *testing.T, runtime browser.Runtime, slot *lease.Slot) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		Browsers: browser.NewManager(runtime),
		Options:  testOptions(t),
		Slot:     slot,
	})
	t.Cleanup(m.Close)
	return m
}

func TestManager_StartRejectsSecondRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)

	release := make(chan struct{})
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cfg browser.SessionConfig) (browser.Driver, error) {
			assert.True(t, cfg.Headless)
			return drv, nil
		})
	drv.EXPECT().Click(gomock.Any(), "#a", gomock.Any()).DoAndReturn(
		func(context.Context, string, time.Duration) error {
			<-release
			return nil
		})
	drv.EXPECT().Close().Return(nil)

	m := newTestManager(t, runtime, nil)
	wf := workflow.Workflow{ID: "w", Name: "one", Browser: workflow.BrowserConfig{Headless: true}, Steps: []workflow.Step{click("a")}}

	id, err := m.Start(context.Background(), wf)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	active, ok := m.Active()
	assert.True(t, ok)
	assert.Equal(t, id, active)

	_, err = m.Start(context.Background(), wf)
	require.Error(t, err)
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeSessionBusy))

	close(release)
	require.NoError(t, m.Wait(context.Background(), id))

	run := m.Current()
	assert.Equal(t, id, run.ID)
	assert.Equal(t, StatusDone, run.Status)
	_, ok = m.Active()
	assert.False(t, ok)
}

func TestManager_StopEndsRunIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(drv, nil)
	drv.EXPECT().Click(gomock.Any(), "#a", gomock.Any()).DoAndReturn(
		func(context.Context, string, time.Duration) error {
			close(entered)
			<-release
			return nil
		})
	drv.EXPECT().Close().Return(nil)

	m := newTestManager(t, runtime, nil)
	id, err := m.Start(context.Background(), workflow.Workflow{Name: "stop", Steps: []workflow.Step{click("a"), click("b")}})
	require.NoError(t, err)

	<-entered
	assert.True(t, m.Stop())
	close(release)
	require.NoError(t, m.Wait(context.Background(), id))

	run := m.Current()
	assert.Equal(t, StatusIdle, run.Status)
	assert.Equal(t, StoppedMessage, run.Message)
	assert.Equal(t, 1, run.CurrentStep)
	assert.False(t, m.Stop(), "nothing left to stop")
}

func TestManager_LaunchFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(nil, errors.New("chrome not found"))

	slot := lease.NewSlot("run")
	m := newTestManager(t, runtime, slot)
	run, err := m.Run(context.Background(), workflow.Workflow{Name: "nobrowser", Steps: []workflow.Step{click("a")}})
	require.NoError(t, err)

	assert.Equal(t, StatusError, run.Status)
	assert.Contains(t, run.Message, "browser launch failed")
	assert.Contains(t, run.Message, "chrome not found")
	_, held := slot.Current()
	assert.False(t, held, "lease is released after a failed launch")
}

func TestManager_RejectsInvalidWorkflow(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := newTestManager(t, browsermock.NewMockRuntime(ctrl), nil)

	_, err := m.Start(context.Background(), workflow.Workflow{Name: "dup", Steps: []workflow.Step{click("a"), click("a")}})
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeValidation))
	assert.Equal(t, StatusIdle, m.Current().Status)
}

func TestManager_WatchSeesProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(drv, nil)
	drv.EXPECT().Click(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	drv.EXPECT().Close().Return(nil)

	m := newTestManager(t, runtime, nil)
	_, v0 := m.snap.Load()

	_, err := m.Run(context.Background(), workflow.Workflow{Name: "w", Steps: []workflow.Step{click("a")}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	run, v, err := m.Watch(ctx, v0)
	require.NoError(t, err)
	assert.Greater(t, v, v0)
	assert.Equal(t, StatusDone, run.Status)
}

func TestManager_CurrentShowsNewRunWhileBrowserLaunches(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	first := browsermock.NewMockDriver(ctrl)
	second := browsermock.NewMockDriver(ctrl)

	launching := make(chan struct{})
	launch := make(chan struct{})
	gomock.InOrder(
		runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(first, nil),
		runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, browser.SessionConfig) (browser.Driver, error) {
				close(launching)
				<-launch
				return second, nil
			}),
	)
	first.EXPECT().Click(gomock.Any(), "#a", gomock.Any()).Return(nil)
	first.EXPECT().Close().Return(nil)
	second.EXPECT().Click(gomock.Any(), "#a", gomock.Any()).Return(nil)
	second.EXPECT().Close().Return(nil)

	m := newTestManager(t, runtime, nil)
	wf := workflow.Workflow{ID: "w", Name: "twice", Steps: []workflow.Step{click("a")}}

	prev, err := m.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, StatusDone, prev.Status)

	id, err := m.Start(context.Background(), wf)
	require.NoError(t, err)
	<-launching

	run := m.Current()
	assert.Equal(t, id, run.ID)
	assert.NotEqual(t, prev.ID, run.ID)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, 1, run.TotalSteps)
	assert.Equal(t, 0, run.CurrentStep)
	assert.Empty(t, run.Log)
	started := run.StartedAt

	close(launch)
	require.NoError(t, m.Wait(context.Background(), id))
	run = m.Current()
	assert.Equal(t, StatusDone, run.Status)
	assert.Equal(t, started, run.StartedAt, "start time is kept from Start")
}
