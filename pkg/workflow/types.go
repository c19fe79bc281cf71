// Package workflow defines the declarative browser workflow model: a named,
// ordered list of typed steps plus browser launch settings.
package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StepType tags the browser action a Step performs.
type StepType string

const (
	StepLogin       StepType = "login"
	StepNavigate    StepType = "navigate"
	StepClick       StepType = "click"
	StepFill        StepType = "fill"
	StepSelect      StepType = "select"
	StepWait        StepType = "wait"
	StepScreenshot  StepType = "screenshot"
	StepExtractText StepType = "extract_text"
	StepDownload    StepType = "download"
	StepKeyboard    StepType = "keyboard"
	StepLoop        StepType = "loop"
	StepConditional StepType = "conditional"
)

// StepTypes lists every supported type in display order.
var StepTypes = []StepType{
	StepLogin, StepNavigate, StepClick, StepFill, StepSelect, StepWait,
	StepScreenshot, StepExtractText, StepDownload, StepKeyboard, StepLoop, StepConditional,
}

// IsBlock reports whether steps of this type carry nested child steps.
func (t StepType) IsBlock() bool {
	return t == StepLoop || t == StepConditional
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// Step is one browser action. Loop and conditional steps wrap Steps.
type Step struct {
	ID     string   `json:"id"`
	Type   StepType `json:"type"`
	Label  string   `json:"label"`
	Params Params   `json:"params"`
	Steps  []Step   `json:"steps,omitempty"`
}

// DisplayLabel returns the label, or the type when no label was set.
func (s Step) DisplayLabel() string {
	if strings.TrimSpace(s.Label) != "" {
		return s.Label
	}
	return string(s.Type)
}

// BrowserConfig is the per-workflow browser launch configuration.
type BrowserConfig struct {
	Headless          bool `json:"headless"`
	PersistentContext bool `json:"persistentContext"`
}

// Workflow is a named, ordered sequence of steps.
type Workflow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Steps       []Step        `json:"steps"`
	Browser     BrowserConfig `json:"browser"`
}

// Summary is the list view of a workflow.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StepCount   int       `json:"stepCount"`
	Template    bool      `json:"template"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Summarize builds the list view of wf.
func Summarize(wf Workflow, template bool) Summary {
	return Summary{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		StepCount:   CountSteps(wf.Steps),
		Template:    template,
	}
}

// CountSteps counts steps in the tree, including nested ones.
func CountSteps(steps []Step) int {
	n := 0
	Walk(steps, func(Step, int) bool { n++; return true })
	return n
}

// Walk visits steps depth-first in order. depth is 0 for top-level steps.
// Returning false from fn stops the walk.
func Walk(steps []Step, fn func(step Step, depth int) bool) {
	walk(steps, 0, fn)
}

func walk(steps []Step, depth int, fn func(Step, int) bool) bool {
	for _, s := range steps {
		if !fn(s, depth) {
			return false
		}
		if !walk(s.Steps, depth+1, fn) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of wf.
func (wf Workflow) Clone() Workflow {
	out := wf
	out.Steps = cloneSteps(wf.Steps)
	return out
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		out[i].Params = s.Params.Clone()
		out[i].Steps = cloneSteps(s.Steps)
	}
	return out
}

// Decode parses a workflow document.
func Decode(data []byte) (Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

// Params holds a step's parameters as decoded from JSON.
type Params map[string]any

// Clone deep-copies nested maps and slices.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Params:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Has reports whether key is present with a non-empty value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value at key as a string.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value at key as an int. Numeric strings are accepted.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value at key as a bool; "true"/"1" strings count.
func (p Params) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}

// Millis returns a millisecond param as a duration, or 0 if absent.
func (p Params) Millis(key string) time.Duration {
	n, ok := p.Int(key)
	if !ok || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
