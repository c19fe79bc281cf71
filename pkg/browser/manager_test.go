package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/portalflow/pkg/browser"
	"github.com/odvcencio/portalflow/pkg/browser/browsermock"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

func TestManager_CreateAndClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)

	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cfg browser.SessionConfig) (browser.Driver, error) {
			assert.Equal(t, "run-1", cfg.SessionID)
			assert.Equal(t, browser.DefaultActionTimeout, cfg.ActionTimeout, "config should be normalized")
			return drv, nil
		})
	drv.EXPECT().Close().Return(nil)
	runtime.EXPECT().Close().Return(nil)

	m := browser.NewManager(runtime)
	sess, err := m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	got, ok := m.GetSession("run-1")
	require.True(t, ok)
	assert.Equal(t, sess, got)

	_, err = m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "run-1"})
	assert.Error(t, err, "duplicate session ids are rejected")

	require.NoError(t, m.CloseSession("run-1"))
	assert.ErrorIs(t, m.CloseSession("run-1"), browser.ErrSessionClosed)
	require.NoError(t, m.Close())
}

func TestManager_RequiresSessionID(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := browser.NewManager(browsermock.NewMockRuntime(ctrl))
	_, err := m.CreateSession(context.Background(), browser.SessionConfig{})
	assert.Error(t, err)
}

func TestManager_NilRuntime(t *testing.T) {
	var m *browser.Manager
	_, err := m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "x"})
	assert.ErrorIs(t, err, browser.ErrUnavailable)
	assert.NoError(t, m.Close())
}

func TestManager_LaunchFailureIsCoded(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(nil, errors.New("chrome not found"))

	m := browser.NewManager(runtime)
	_, err := m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "s"})
	require.Error(t, err)
	assert.Equal(t, pferrors.ErrCodeNavigation, pferrors.GetCode(err))
}

func TestInstrument_CountsActions(t *testing.T) {
	ctrl := gomock.NewController(t)
	drv := browsermock.NewMockDriver(ctrl)
	ctx := context.Background()

	drv.EXPECT().Click(ctx, "#ok", gomock.Any()).Return(nil)
	drv.EXPECT().Click(ctx, "#missing", gomock.Any()).
		Return(pferrors.SelectorNotFound("#missing", 0, context.DeadlineExceeded))
	drv.EXPECT().ID().Return("s1")

	inst := browser.Instrument(drv)
	assert.Same(t, inst, browser.Instrument(inst), "instrumenting twice is a no-op")

	counter := func(outcome string) float64 {
		return testutil.ToFloat64(browser.ActionsCounter().WithLabelValues("click", outcome))
	}
	okBefore, missBefore := counter("ok"), counter("selector_not_found")

	require.NoError(t, inst.Click(ctx, "#ok", 0))
	require.Error(t, inst.Click(ctx, "#missing", 0))
	assert.Equal(t, "s1", inst.ID(), "unwrapped methods delegate")

	assert.Equal(t, okBefore+1, counter("ok"))
	assert.Equal(t, missBefore+1, counter("selector_not_found"))
}

func TestManager_DuplicateIDIsSessionBusy(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)
	runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(drv, nil).Times(1)

	m := browser.NewManager(runtime)
	_, err := m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "busy"})
	require.NoError(t, err)

	_, err = m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "busy"})
	assert.Equal(t, pferrors.ErrCodeSessionBusy, pferrors.GetCode(err))
}

func TestManager_FailedLaunchReleasesID(t *testing.T) {
	ctrl := gomock.NewController(t)
	runtime := browsermock.NewMockRuntime(ctrl)
	drv := browsermock.NewMockDriver(ctrl)
	gomock.InOrder(
		runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(nil, errors.New("crashed")),
		runtime.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(drv, nil),
	)

	m := browser.NewManager(runtime)
	_, err := m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "retry"})
	require.Error(t, err)
	_, ok := m.GetSession("retry")
	assert.False(t, ok)

	_, err = m.CreateSession(context.Background(), browser.SessionConfig{SessionID: "retry"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}
