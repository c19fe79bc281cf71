package workflow

import (
	"fmt"
	"strings"

	"github.com/odvcencio/portalflow/pkg/browser"
	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

// ParamKind is the expected JSON type of a parameter.
type ParamKind string

const (
	KindString ParamKind = "string"
	KindInt    ParamKind = "int"
	KindBool   ParamKind = "bool"
)

// ParamSpec describes one parameter of a step type.
type ParamSpec struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description"`
}

// StepSchema lists the params of a step type. OneOf names params of which
// exactly one must be supplied.
type StepSchema struct {
	Type   StepType    `json:"type"`
	Params []ParamSpec `json:"params"`
	OneOf  []string    `json:"oneOf,omitempty"`
	Block  bool        `json:"block"`
}

func timeoutParam() ParamSpec {
	return ParamSpec{Name: "timeout", Kind: KindInt, Description: "milliseconds; defaults to the configured action timeout"}
}

var schemas = map[StepType]StepSchema{
	StepLogin: {Type: StepLogin, Params: []ParamSpec{
		{Name: "portal", Kind: KindString, Default: "form", Enum: []string{"form", "sso"}, Description: "authentication sequence to run"},
		{Name: "url", Kind: KindString, Description: "portal URL to open before authenticating"},
		{Name: "username", Kind: KindString, Description: "defaults to the stored credentials"},
		{Name: "password", Kind: KindString, Description: "defaults to the stored credentials"},
		{Name: "username_selector", Kind: KindString, Description: "form portal: username field"},
		{Name: "password_selector", Kind: KindString, Description: "form portal: password field"},
		{Name: "submit_selector", Kind: KindString, Description: "form portal: submit control"},
	}},
	StepNavigate: {Type: StepNavigate, Params: []ParamSpec{
		{Name: "url", Kind: KindString, Required: true, Description: "page to load"},
		{Name: "timeout", Kind: KindInt, Description: "milliseconds; defaults to the navigation timeout"},
	}},
	StepClick: {Type: StepClick, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "element to click"},
		timeoutParam(),
	}},
	StepFill: {Type: StepFill, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "input to fill"},
		{Name: "value", Kind: KindString, Required: true, Description: "text to enter; supports {{variable}}"},
		timeoutParam(),
	}},
	StepSelect: {Type: StepSelect, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "select element"},
		{Name: "value", Kind: KindString, Required: true, Description: "option value"},
		timeoutParam(),
	}},
	StepWait: {Type: StepWait, OneOf: []string{"duration", "selector"}, Params: []ParamSpec{
		{Name: "duration", Kind: KindInt, Description: "fixed delay in milliseconds"},
		{Name: "selector", Kind: KindString, Description: "wait until this element appears"},
		timeoutParam(),
	}},
	StepScreenshot: {Type: StepScreenshot, Params: []ParamSpec{
		{Name: "filename", Kind: KindString, Default: "screenshot-{index}.png", Description: "supports {index} and {iteration}"},
		{Name: "dir", Kind: KindString, Description: "defaults to the configured output directory"},
	}},
	StepExtractText: {Type: StepExtractText, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "element whose text is read"},
		{Name: "variable", Kind: KindString, Default: "text", Description: "run variable receiving the text"},
		timeoutParam(),
	}},
	StepDownload: {Type: StepDownload, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "control that starts the download"},
		{Name: "dir", Kind: KindString, Description: "defaults to the configured output directory"},
		timeoutParam(),
	}},
	StepKeyboard: {Type: StepKeyboard, OneOf: []string{"key", "text"}, Params: []ParamSpec{
		{Name: "key", Kind: KindString, Description: "named key: Enter, Tab, Escape, ..."},
		{Name: "text", Kind: KindString, Description: "literal text typed character by character"},
	}},
	StepLoop: {Type: StepLoop, Block: true, Params: []ParamSpec{
		{Name: "count", Kind: KindInt, Required: true, Description: "iterations, at least 1"},
	}},
	StepConditional: {Type: StepConditional, Block: true, Params: []ParamSpec{
		{Name: "selector", Kind: KindString, Required: true, Description: "guard element"},
		{Name: "negate", Kind: KindBool, Description: "run the block when the element is absent"},
		{Name: "timeout", Kind: KindInt, Default: 0, Description: "milliseconds to wait for the guard; 0 checks once"},
	}},
}

// Schema returns the parameter schema for a step type.
func Schema(t StepType) (StepSchema, bool) {
	s, ok := schemas[t]
	return s, ok
}

// Schemas returns every step schema in StepTypes order.
func Schemas() []StepSchema {
	out := make([]StepSchema, 0, len(StepTypes))
	for _, t := range StepTypes {
		out = append(out, schemas[t])
	}
	return out
}

// ValidateStep checks one step (not its children) against its schema.
func ValidateStep(s Step) error {
	schema, ok := schemas[s.Type]
	if !ok {
		return stepError(s, fmt.Sprintf("unknown step type %q", s.Type))
	}
	if len(s.Steps) > 0 && !schema.Block {
		return stepError(s, fmt.Sprintf("%s steps cannot contain nested steps", s.Type))
	}

	for _, spec := range schema.Params {
		if spec.Required && !s.Params.Has(spec.Name) {
			return stepError(s, fmt.Sprintf("%s requires param %q", s.Type, spec.Name))
		}
		if !s.Params.Has(spec.Name) {
			continue
		}
		if err := checkKind(s, spec); err != nil {
			return err
		}
	}

	if len(schema.OneOf) > 0 {
		supplied := 0
		for _, name := range schema.OneOf {
			if s.Params.Has(name) {
				supplied++
			}
		}
		if supplied != 1 {
			return stepError(s, fmt.Sprintf("%s requires exactly one of %s", s.Type, strings.Join(schema.OneOf, ", ")))
		}
	}

	switch s.Type {
	case StepLoop:
		if n, _ := s.Params.Int("count"); n < 1 {
			return stepError(s, "loop count must be at least 1")
		}
	case StepKeyboard:
		if s.Params.Has("key") {
			if _, ok := browser.CanonicalKey(s.Params.String("key")); !ok {
				return stepError(s, fmt.Sprintf("unknown key %q", s.Params.String("key")))
			}
		}
	}
	return nil
}

func checkKind(s Step, spec ParamSpec) error {
	switch spec.Kind {
	case KindInt:
		n, ok := s.Params.Int(spec.Name)
		if !ok || n < 0 {
			return stepError(s, fmt.Sprintf("param %q must be a non-negative integer", spec.Name))
		}
	case KindBool:
		switch s.Params[spec.Name].(type) {
		case bool, string:
		default:
			return stepError(s, fmt.Sprintf("param %q must be a boolean", spec.Name))
		}
	case KindString:
		if len(spec.Enum) > 0 {
			v := s.Params.String(spec.Name)
			for _, allowed := range spec.Enum {
				if v == allowed {
					return nil
				}
			}
			return stepError(s, fmt.Sprintf("param %q must be one of %s", spec.Name, strings.Join(spec.Enum, ", ")))
		}
	}
	return nil
}

// ValidateSteps checks every step in the tree and id uniqueness across it.
func ValidateSteps(steps []Step) error {
	seen := make(map[string]bool)
	var firstErr error
	Walk(steps, func(s Step, _ int) bool {
		if strings.TrimSpace(s.ID) == "" {
			firstErr = stepError(s, "step id is required")
			return false
		}
		if seen[s.ID] {
			firstErr = stepError(s, fmt.Sprintf("duplicate step id %q", s.ID))
			return false
		}
		seen[s.ID] = true
		if err := ValidateStep(s); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

// ValidateForSave checks everything a store requires before persisting.
// An empty step list is allowed.
func ValidateForSave(wf Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return pferrors.Validation("workflow name is required").WithContext("workflow", wf.ID)
	}
	return ValidateSteps(wf.Steps)
}

func stepError(s Step, msg string) *pferrors.Error {
	return pferrors.Validation(msg).
		WithContext("step", s.ID).
		WithContext("type", string(s.Type))
}
