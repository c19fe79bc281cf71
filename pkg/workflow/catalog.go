package workflow

import (
	"context"
	"fmt"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// Catalog layers the built-in templates over a persistent Store. Templates
// are listed and loadable but can never be saved over or deleted.
type Catalog struct {
	store Store
}

// NewCatalog wraps store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// Store returns the underlying persistent store.
func (c *Catalog) Store() Store { return c.store }

// List returns persisted workflows followed by templates.
func (c *Catalog) List(ctx context.Context) ([]Summary, error) {
	persisted, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(persisted)+len(templates))
	out = append(out, persisted...)
	for _, t := range Templates() {
		out = append(out, Summarize(t, true))
	}
	return out, nil
}

// Templates lists the built-in templates.
func (c *Catalog) Templates() []Summary {
	tpls := Templates()
	out := make([]Summary, len(tpls))
	for i, t := range tpls {
		out[i] = Summarize(t, true)
	}
	return out
}

// Get loads a persisted workflow or a copy of a template.
func (c *Catalog) Get(ctx context.Context, id string) (Workflow, error) {
	if tpl, ok := Template(id); ok {
		return tpl, nil
	}
	return c.store.Get(ctx, id)
}

// Save persists wf. Template ids are rejected.
func (c *Catalog) Save(ctx context.Context, wf Workflow) (Workflow, error) {
	if IsTemplate(wf.ID) {
		return Workflow{}, readOnly(wf.ID)
	}
	return c.store.Save(ctx, wf)
}

// Delete removes a persisted workflow. Template ids are rejected.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if IsTemplate(id) {
		return readOnly(id)
	}
	return c.store.Delete(ctx, id)
}

// Draft starts a new draft from the template with id.
func (c *Catalog) Draft(id string) (*Draft, error) {
	tpl, ok := Template(id)
	if !ok {
		return nil, pferrors.New(pferrors.ErrCodeNotFound, fmt.Sprintf("template %q not found", id)).
			WithContext("template", id)
	}
	return FromTemplate(tpl), nil
}

func readOnly(id string) *pferrors.Error {
	return pferrors.Validation(fmt.Sprintf("template %q is read-only", id)).
		WithContext("workflow", id).
		WithRemediation("create a draft from the template and save that instead")
}
