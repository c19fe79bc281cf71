package workflow

import (
	"fmt"

	"github.com/google/uuid"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// NewID returns a fresh workflow or step id.
func NewID() string {
	return uuid.NewString()
}

// Draft is an in-memory workflow being authored. Edits go through explicit
// add/remove/move operations; nothing is persisted until a Store saves it.
type Draft struct {
	wf Workflow
}

// NewDraft starts an empty draft with headless browser defaults.
func NewDraft(name string) *Draft {
	return &Draft{wf: Workflow{
		Name:    name,
		Steps:   []Step{},
		Browser: BrowserConfig{Headless: true},
	}}
}

// FromWorkflow starts a draft editing a copy of wf.
func FromWorkflow(wf Workflow) *Draft {
	return &Draft{wf: wf.Clone()}
}

// FromTemplate copies a template into a new draft. The copy gets a blank
// workflow id and fresh step ids so saving it never collides with the source.
func FromTemplate(tpl Workflow) *Draft {
	wf := tpl.Clone()
	wf.ID = ""
	reassignIDs(wf.Steps)
	return &Draft{wf: wf}
}

func reassignIDs(steps []Step) {
	for i := range steps {
		steps[i].ID = NewID()
		reassignIDs(steps[i].Steps)
	}
}

// Workflow returns a copy of the current draft.
func (d *Draft) Workflow() Workflow {
	return d.wf.Clone()
}

// SetName renames the draft.
func (d *Draft) SetName(name string) { d.wf.Name = name }

// SetDescription sets the description.
func (d *Draft) SetDescription(desc string) { d.wf.Description = desc }

// SetBrowser sets the browser launch configuration.
func (d *Draft) SetBrowser(cfg BrowserConfig) { d.wf.Browser = cfg }

// Add appends step to the top level, or to the children of parentID when set.
// A step without an id gets one. The assigned id is returned.
func (d *Draft) Add(step Step, parentID string) (string, error) {
	if step.ID == "" {
		step.ID = NewID()
	}
	if d.find(step.ID) != nil {
		return "", pferrors.Validation(fmt.Sprintf("duplicate step id %q", step.ID))
	}
	if step.Params == nil {
		step.Params = Params{}
	}
	if parentID == "" {
		d.wf.Steps = append(d.wf.Steps, step)
		return step.ID, nil
	}
	parent := d.find(parentID)
	if parent == nil {
		return "", notFound(parentID)
	}
	if !parent.Type.IsBlock() {
		return "", pferrors.Validation(fmt.Sprintf("%s steps cannot contain nested steps", parent.Type)).
			WithContext("step", parentID)
	}
	parent.Steps = append(parent.Steps, step)
	return step.ID, nil
}

// Remove deletes the step with id, wherever it sits in the tree.
func (d *Draft) Remove(id string) error {
	if !removeFrom(&d.wf.Steps, id) {
		return notFound(id)
	}
	return nil
}

func removeFrom(steps *[]Step, id string) bool {
	for i := range *steps {
		if (*steps)[i].ID == id {
			*steps = append((*steps)[:i], (*steps)[i+1:]...)
			return true
		}
		if removeFrom(&(*steps)[i].Steps, id) {
			return true
		}
	}
	return false
}

// Move repositions the step with id to index within its current sibling
// list. index is clamped to the list bounds.
func (d *Draft) Move(id string, index int) error {
	siblings := d.siblingsOf(&d.wf.Steps, id)
	if siblings == nil {
		return notFound(id)
	}
	list := *siblings
	from := -1
	for i := range list {
		if list[i].ID == id {
			from = i
			break
		}
	}
	step := list[from]
	list = append(list[:from], list[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(list) {
		index = len(list)
	}
	list = append(list, Step{})
	copy(list[index+1:], list[index:])
	list[index] = step
	*siblings = list
	return nil
}

func (d *Draft) siblingsOf(steps *[]Step, id string) *[]Step {
	for i := range *steps {
		if (*steps)[i].ID == id {
			return steps
		}
		if s := d.siblingsOf(&(*steps)[i].Steps, id); s != nil {
			return s
		}
	}
	return nil
}

// Update replaces the label and params of the step with id. Children and
// type are left alone.
func (d *Draft) Update(id, label string, params Params) error {
	s := d.find(id)
	if s == nil {
		return notFound(id)
	}
	s.Label = label
	s.Params = params.Clone()
	if s.Params == nil {
		s.Params = Params{}
	}
	return nil
}

// Step returns a copy of the step with id.
func (d *Draft) Step(id string) (Step, bool) {
	s := d.find(id)
	if s == nil {
		return Step{}, false
	}
	return cloneSteps([]Step{*s})[0], true
}

func (d *Draft) find(id string) *Step {
	return findIn(d.wf.Steps, id)
}

func findIn(steps []Step, id string) *Step {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
		if s := findIn(steps[i].Steps, id); s != nil {
			return s
		}
	}
	return nil
}

func notFound(id string) *pferrors.Error {
	return pferrors.New(pferrors.ErrCodeNotFound, fmt.Sprintf("step %q not found", id)).
		WithContext("step", id)
}
