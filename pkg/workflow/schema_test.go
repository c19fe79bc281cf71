package workflow

import (
	"testing"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"navigate ok", Step{ID: "a", Type: StepNavigate, Params: Params{"url": "https://x"}}, false},
		{"navigate missing url", Step{ID: "a", Type: StepNavigate, Params: Params{}}, true},
		{"navigate blank url", Step{ID: "a", Type: StepNavigate, Params: Params{"url": "  "}}, true},
		{"fill needs value", Step{ID: "a", Type: StepFill, Params: Params{"selector": "#q"}}, true},
		{"fill ok", Step{ID: "a", Type: StepFill, Params: Params{"selector": "#q", "value": "x"}}, false},
		{"timeout must be integer", Step{ID: "a", Type: StepClick, Params: Params{"selector": "#q", "timeout": "soon"}}, true},
		{"wait duration", Step{ID: "a", Type: StepWait, Params: Params{"duration": float64(500)}}, false},
		{"wait selector", Step{ID: "a", Type: StepWait, Params: Params{"selector": "#done"}}, false},
		{"wait neither", Step{ID: "a", Type: StepWait, Params: Params{}}, true},
		{"wait both", Step{ID: "a", Type: StepWait, Params: Params{"duration": 1, "selector": "#x"}}, true},
		{"keyboard key", Step{ID: "a", Type: StepKeyboard, Params: Params{"key": "enter"}}, false},
		{"keyboard unknown key", Step{ID: "a", Type: StepKeyboard, Params: Params{"key": "Hyper"}}, true},
		{"keyboard text", Step{ID: "a", Type: StepKeyboard, Params: Params{"text": "hello"}}, false},
		{"loop zero", Step{ID: "a", Type: StepLoop, Params: Params{"count": 0}}, true},
		{"loop ok", Step{ID: "a", Type: StepLoop, Params: Params{"count": 2}}, false},
		{"login bad portal", Step{ID: "a", Type: StepLogin, Params: Params{"portal": "saml"}}, true},
		{"login default portal", Step{ID: "a", Type: StepLogin, Params: Params{}}, false},
		{"children on click", Step{ID: "a", Type: StepClick, Params: Params{"selector": "#x"}, Steps: []Step{{ID: "b", Type: StepClick}}}, true},
		{"unknown type", Step{ID: "a", Type: "hover"}, true},
		{"conditional negate string", Step{ID: "a", Type: StepConditional, Params: Params{"selector": "#x", "negate": "true"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStep() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !pferrors.IsCode(err, pferrors.ErrCodeValidation) {
				t.Errorf("error code = %v, want VALIDATION", pferrors.GetCode(err))
			}
		})
	}
}

func TestValidateSteps_DuplicateIDsAcrossTree(t *testing.T) {
	steps := []Step{
		{ID: "x", Type: StepLoop, Params: Params{"count": 1}, Steps: []Step{
			{ID: "x", Type: StepClick, Params: Params{"selector": "#a"}},
		}},
	}
	err := ValidateSteps(steps)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	pf, _ := pferrors.As(err)
	if pf.Context["step"] != "x" {
		t.Errorf("context step = %v", pf.Context["step"])
	}
}

func TestValidateSteps_NestedFailureReported(t *testing.T) {
	steps := []Step{
		{ID: "c", Type: StepConditional, Params: Params{"selector": "#a"}, Steps: []Step{
			{ID: "inner", Type: StepNavigate, Params: Params{}},
		}},
	}
	err := ValidateSteps(steps)
	pf, ok := pferrors.As(err)
	if !ok || pf.Context["step"] != "inner" {
		t.Fatalf("expected nested step error, got %v", err)
	}
}

func TestValidateForSave(t *testing.T) {
	if err := ValidateForSave(Workflow{Name: ""}); !pferrors.IsCode(err, pferrors.ErrCodeValidation) {
		t.Errorf("empty name: got %v", err)
	}
	if err := ValidateForSave(Workflow{Name: "empty ok"}); err != nil {
		t.Errorf("empty step list should be allowed: %v", err)
	}
}

func TestSchemasCoverEveryType(t *testing.T) {
	all := Schemas()
	if len(all) != len(StepTypes) {
		t.Fatalf("Schemas() = %d entries, want %d", len(all), len(StepTypes))
	}
	for i, s := range all {
		if s.Type != StepTypes[i] {
			t.Errorf("schema %d type = %s, want %s", i, s.Type, StepTypes[i])
		}
		if s.Block != s.Type.IsBlock() {
			t.Errorf("%s: Block = %v, IsBlock = %v", s.Type, s.Block, s.Type.IsBlock())
		}
	}
	if _, ok := Schema("hover"); ok {
		t.Error("Schema should not know hover")
	}
	if !StepExtractText.Valid() || StepType("hover").Valid() {
		t.Error("Valid() mismatch")
	}
}

func TestTemplatesAreValid(t *testing.T) {
	for _, tpl := range Templates() {
		if err := ValidateForSave(tpl); err != nil {
			t.Errorf("template %s invalid: %v", tpl.ID, err)
		}
	}
}
