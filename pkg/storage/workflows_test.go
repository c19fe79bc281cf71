package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "portalflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func loopWorkflow(name string) workflow.Workflow {
	return workflow.Workflow{
		Name: name,
		Steps: []workflow.Step{
			{ID: "nav", Type: workflow.StepNavigate, Params: workflow.Params{"url": "https://example.com"}},
			{ID: "loop", Type: workflow.StepLoop, Params: workflow.Params{"count": 2}, Steps: []workflow.Step{
				{ID: "shot", Type: workflow.StepScreenshot, Params: workflow.Params{}},
			}},
		},
		Browser: workflow.BrowserConfig{Headless: true, PersistentContext: true},
	}
}

func TestWorkflowStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	saved, err := store.Save(ctx, loopWorkflow("Roster pull"))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Name, got.Name)
	assert.True(t, got.Browser.PersistentContext)
	require.Len(t, got.Steps, 2)
	require.Len(t, got.Steps[1].Steps, 1)
	count, ok := got.Steps[1].Params.Int("count")
	assert.True(t, ok)
	assert.Equal(t, 2, count)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].StepCount)
	assert.False(t, list[0].UpdatedAt.IsZero())
}

func TestWorkflowStore_UpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	saved, err := store.Save(ctx, loopWorkflow("One"))
	require.NoError(t, err)
	saved.Name = "Renamed"
	saved.Steps = nil
	again, err := store.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Name)
	assert.Equal(t, 0, list[0].StepCount)
}

func TestWorkflowStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Save(ctx, workflow.Workflow{})
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeValidation))

	_, err = store.Get(ctx, "missing")
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeNotFound))
	assert.True(t, pferrors.IsCode(store.Delete(ctx, "missing"), pferrors.ErrCodeNotFound))
}

func TestWorkflowStore_DeleteNotifiesObservers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var mu sync.Mutex
	var changes []workflow.Change
	store.AddWorkflowObserver(workflow.ObserverFunc(func(c workflow.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	}))

	saved, err := store.Save(ctx, loopWorkflow("Temp"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, saved.ID))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	kinds := map[workflow.ChangeKind]string{}
	for _, c := range changes {
		kinds[c.Kind] = c.Name
	}
	mu.Unlock()
	assert.Equal(t, "Temp", kinds[workflow.ChangeSaved])
	assert.Equal(t, "Temp", kinds[workflow.ChangeDeleted])

	_, err = store.Get(ctx, saved.ID)
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeNotFound))
}

func TestWorkflowStore_InMemoryAndPing(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	_, err = store.Save(context.Background(), loopWorkflow("mem"))
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.Error(t, store.Ping(context.Background()))
}

func TestWorkflowStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "portalflow.db")
	first, err := New(path)
	require.NoError(t, err)
	saved, err := first.Save(context.Background(), loopWorkflow("Durable"))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Durable", got.Name)

	version, err := second.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}
