// Package storage persists workflows in SQLite. A Store implements
// workflow.Store and reports committed mutations to workflow observers.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

//go:embed schema.sql
var schemaSQL string

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store is a SQLite-backed workflow store.
type Store struct {
	db *sql.DB

	mu        sync.RWMutex
	observers []workflow.Observer
}

var (
	_ workflow.Store      = (*Store)(nil)
	_ workflow.Pinger     = (*Store)(nil)
	_ workflow.Observable = (*Store)(nil)
)

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	// Wait instead of immediately returning SQLITE_BUSY.
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// New opens (creating if needed) the database at dsn and migrates it to
// the latest schema. dsn is a file path, a file: URI or MemoryDSN.
func New(dsn string) (*Store, error) {
	if path, onDisk := filePath(dsn); onDisk {
		if err := createPrivate(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "open database").WithContext("dsn", dsn)
	}
	if dsn == MemoryDSN {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "configure database").WithContext("pragma", p)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "migrate database").WithContext("dsn", dsn)
	}
	return &Store{db: db}, nil
}

// filePath extracts the on-disk path from dsn.
func filePath(dsn string) (string, bool) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || dsn == MemoryDSN {
		return "", false
	}
	if !strings.HasPrefix(dsn, "file:") {
		if strings.Contains(dsn, "://") {
			return "", false
		}
		return dsn, true
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", false
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" || path == MemoryDSN {
		return "", false
	}
	return path, true
}

// createPrivate creates the database file 0600 in a 0700 directory. Saved
// login steps can carry portal credentials.
func createPrivate(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "create database directory").WithContext("dir", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	switch {
	case err == nil:
		return f.Close()
	case os.IsExist(err):
		return nil
	default:
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "create database file").WithContext("path", path)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "database unavailable")
	}
	return nil
}

// AddWorkflowObserver registers o for saved and deleted workflows. Each
// notification is delivered on its own goroutine so writers never block.
func (s *Store) AddWorkflowObserver(o workflow.Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Store) notify(kind workflow.ChangeKind, id, name string) {
	s.mu.RLock()
	observers := append([]workflow.Observer(nil), s.observers...)
	s.mu.RUnlock()

	c := workflow.Change{Kind: kind, ID: id, Name: name, At: time.Now().UTC()}
	for _, o := range observers {
		go o.OnWorkflowChange(c)
	}
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_BUSY || se.Code() == sqlite3.SQLITE_LOCKED
}

// exec retries SQLITE_BUSY/LOCKED with exponential backoff.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	const attempts = 4
	delay := 100 * time.Millisecond
	for i := 1; ; i++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil || !isBusy(err) || i == attempts {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
