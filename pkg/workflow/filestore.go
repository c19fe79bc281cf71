package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/filewatch"
)

// FileStore keeps one JSON document per workflow in a directory. Reads are
// served from an in-memory index that Watch keeps in sync with edits made
// outside the process.
type FileStore struct {
	dir     string
	watcher *filewatch.Watcher
	subID   string

	mu        sync.RWMutex
	index     map[string]entry
	observers []Observer
}

type entry struct {
	wf      Workflow
	updated time.Time
}

// NewFileStore opens (creating if needed) a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "create workflow directory").
			WithContext("dir", dir)
	}
	s := &FileStore{
		dir:     dir,
		watcher: filewatch.New(50),
		index:   make(map[string]entry),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	s.subID = s.watcher.Subscribe("*.json", func(c filewatch.FileChange) {
		if c.Source == filewatch.SourceDisk {
			_ = s.reload()
		}
	})
	return s, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

// AddWorkflowObserver registers o for save/delete notifications.
func (s *FileStore) AddWorkflowObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Watch reloads the index whenever a workflow file changes on disk, until
// ctx is done.
func (s *FileStore) Watch(ctx context.Context) error {
	done, err := s.watcher.WatchDir(ctx, s.dir)
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "watch workflow directory").
			WithContext("dir", s.dir)
	}
	<-done
	return nil
}

// Changes returns the most recent file changes seen by the store.
func (s *FileStore) Changes(limit int) []filewatch.FileChange {
	return s.watcher.RecentChanges(limit)
}

func (s *FileStore) reload() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "scan workflow directory")
	}
	index := make(map[string]entry, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		wf, err := Decode(data)
		if err != nil || wf.ID == "" {
			// Half-written or foreign files are skipped rather than failing the whole store.
			continue
		}
		var mod time.Time
		if info, err := os.Stat(path); err == nil {
			mod = info.ModTime()
		}
		index[wf.ID] = entry{wf: wf, updated: mod}
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Summary, 0, len(s.index))
	for _, e := range s.index {
		sum := Summarize(e.wf, false)
		sum.UpdatedAt = e.updated
		out = append(out, sum)
	}
	s.mu.RUnlock()
	sortSummaries(out)
	return out, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Workflow, error) {
	if err := ctx.Err(); err != nil {
		return Workflow{}, err
	}
	s.mu.RLock()
	e, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return Workflow{}, workflowNotFound(id)
	}
	return e.wf.Clone(), nil
}

func (s *FileStore) Save(ctx context.Context, wf Workflow) (Workflow, error) {
	if err := ctx.Err(); err != nil {
		return Workflow{}, err
	}
	out, err := prepareSave(wf)
	if err != nil {
		return Workflow{}, err
	}
	if !safeID(out.ID) {
		return Workflow{}, pferrors.Validation(fmt.Sprintf("workflow id %q is not a valid file name", out.ID))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "encode workflow")
	}
	path := s.path(out.ID)
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "write workflow").
			WithContext("path", path)
	}

	now := time.Now()
	s.mu.Lock()
	s.index[out.ID] = entry{wf: out.Clone(), updated: now}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.watcher.Notify(filewatch.FileChange{Path: path, Type: filewatch.ChangeModified, ModTime: now, Source: "store"})
	notify(observers, Change{Kind: ChangeSaved, ID: out.ID, Name: out.Name, At: now})
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	e, ok := s.index[id]
	s.mu.RUnlock()
	if !ok || !safeID(id) {
		return workflowNotFound(id)
	}
	path := s.path(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "delete workflow").WithContext("path", path)
	}

	now := time.Now()
	s.mu.Lock()
	delete(s.index, id)
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.watcher.Notify(filewatch.FileChange{Path: path, Type: filewatch.ChangeDeleted, ModTime: now, Source: "store"})
	notify(observers, Change{Kind: ChangeDeleted, ID: id, Name: e.wf.Name, At: now})
	return nil
}

// Ping checks the directory is still readable.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "workflow directory unavailable")
	}
	return ctx.Err()
}

func (s *FileStore) Close() error {
	s.watcher.Unsubscribe(s.subID)
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func safeID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wf-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func workflowNotFound(id string) *pferrors.Error {
	return pferrors.New(pferrors.ErrCodeNotFound, fmt.Sprintf("workflow %q not found", id)).
		WithContext("workflow", id).
		WithUserMessage("That workflow no longer exists.")
}

// NotFound builds the error stores return for a missing workflow id.
func NotFound(id string) error { return workflowNotFound(id) }

func notify(observers []Observer, c Change) {
	for _, o := range observers {
		o.OnWorkflowChange(c)
	}
}

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
}
