package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/workflow"
)

// List returns summaries of persisted workflows ordered by name.
func (s *Store) List(ctx context.Context) ([]workflow.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, step_count, updated_at
		FROM workflows ORDER BY name, id
	`)
	if err != nil {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "list workflows")
	}
	defer rows.Close()

	out := []workflow.Summary{}
	for rows.Next() {
		var sum workflow.Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.StepCount, &sum.UpdatedAt); err != nil {
			return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "scan workflow row")
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "list workflows")
	}
	return out, nil
}

// Get loads a workflow by id.
func (s *Store) Get(ctx context.Context, id string) (workflow.Workflow, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM workflows WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Workflow{}, workflow.NotFound(id)
	}
	if err != nil {
		return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "load workflow").
			WithContext("workflow", id)
	}
	wf, err := workflow.Decode([]byte(doc))
	if err != nil {
		return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "decode workflow").
			WithContext("workflow", id)
	}
	return wf, nil
}

// Save validates wf and upserts it, assigning an id when wf has none.
func (s *Store) Save(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	if err := workflow.ValidateForSave(wf); err != nil {
		return workflow.Workflow{}, err
	}
	out := wf.Clone()
	if out.ID == "" {
		out.ID = workflow.NewID()
	}
	if out.Steps == nil {
		out.Steps = []workflow.Step{}
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "encode workflow")
	}

	now := time.Now().UTC()
	_, err = s.exec(ctx, `
		INSERT INTO workflows (id, name, description, document, step_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			document = excluded.document,
			step_count = excluded.step_count,
			updated_at = excluded.updated_at
	`, out.ID, out.Name, out.Description, string(doc), workflow.CountSteps(out.Steps), now, now)
	if err != nil {
		return workflow.Workflow{}, pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "save workflow").
			WithContext("workflow", out.ID)
	}

	s.notify(workflow.ChangeSaved, out.ID, out.Name)
	return out, nil
}

// Delete removes a workflow by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM workflows WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.NotFound(id)
	}
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageRead, "load workflow").WithContext("workflow", id)
	}
	if _, err := s.exec(ctx, `DELETE FROM workflows WHERE id = ?`, id); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeStorageWrite, "delete workflow").WithContext("workflow", id)
	}
	s.notify(workflow.ChangeDeleted, id, name)
	return nil
}
