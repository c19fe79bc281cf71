package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

func TestNew_DatabaseFileIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits are not stable on Windows")
	}
	path := filepath.Join(t.TempDir(), "nested", "portalflow.db")
	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dir, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dir.Mode().Perm())
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		dsn    string
		want   string
		onDisk bool
	}{
		{"", "", false},
		{":memory:", "", false},
		{"/var/lib/pf.db", "/var/lib/pf.db", true},
		{"file:/tmp/pf.db?_pragma=busy_timeout(5000)", "/tmp/pf.db", true},
		{"file::memory:", "", false},
		{"postgres://host/db", "", false},
		{"relative/pf.db", "relative/pf.db", true},
	}
	for _, tt := range tests {
		got, onDisk := filePath(tt.dsn)
		assert.Equal(t, tt.want, got, tt.dsn)
		assert.Equal(t, tt.onDisk, onDisk, tt.dsn)
	}
}

func TestMigrations_AppliedOnceInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portalflow.db")
	for range 2 {
		store, err := New(path)
		require.NoError(t, err)

		version, err := store.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, len(migrations), version)

		history, err := store.Migrations()
		require.NoError(t, err)
		require.Len(t, history, len(migrations))
		for i, h := range history {
			assert.Equal(t, migrations[i].version, h.Version)
			assert.Equal(t, migrations[i].name, h.Name)
			assert.NotEmpty(t, h.AppliedAt)
		}
		require.NoError(t, store.Close())
	}
}

func TestMigrations_UpgradeDatabaseWithoutStepCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
		`CREATE TABLE workflows (id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT NOT NULL DEFAULT '', document TEXT NOT NULL, created_at TIMESTAMP NOT NULL, updated_at TIMESTAMP NOT NULL)`,
		`INSERT INTO workflows VALUES ('old', 'Old', '', '{"id":"old","name":"Old","steps":[]}', '2025-01-01 00:00:00', '2025-01-01 00:00:00')`,
		`INSERT INTO schema_migrations (version, name) VALUES (1, 'workflows')`,
	} {
		_, err := legacy.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, legacy.Close())

	store, err := New(path)
	require.NoError(t, err)
	defer store.Close()

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Old", list[0].Name)
	assert.Zero(t, list[0].StepCount)
}

func TestPing_ClosedStore(t *testing.T) {
	store, err := New(MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeStorageRead))
}
