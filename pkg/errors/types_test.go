package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "workflow abc not found")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}
	if err.Message != "workflow abc not found" {
		t.Errorf("Message = %v, want 'workflow abc not found'", err.Message)
	}
	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}
	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("disk full")
	err := Wrap(underlying, ErrCodeStorageWrite, "failed to save workflow")

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Error("Error string should include underlying error")
	}
	if !strings.Contains(err.Error(), "STORAGE_WRITE") {
		t.Error("Error string should include error code")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestError_ContextIsSorted(t *testing.T) {
	err := New(ErrCodeBrowser, "click failed").
		WithContext("step", "s-2").
		WithContext("action", "click")

	got := err.Error()
	if !strings.Contains(got, "{action: click, step: s-2}") {
		t.Errorf("Error() = %q, want sorted context", got)
	}
}

func TestIsCode_FollowsWrapChain(t *testing.T) {
	inner := SelectorNotFound("#login", 10*time.Second, nil)
	wrapped := fmt.Errorf("step login: %w", inner)

	if !IsCode(wrapped, ErrCodeSelectorNotFound) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(wrapped, ErrCodeNavigation) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeSelectorNotFound) {
		t.Error("IsCode should return false for nil error")
	}
	if IsCode(errors.New("plain"), ErrCodeInternal) {
		t.Error("IsCode should return false for plain errors")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(Parse("empty export", nil)); got != ErrCodeParse {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeParse)
	}
	if GetCode(nil) != "" {
		t.Error("GetCode should return empty string for nil")
	}
	if GetCode(errors.New("standard")) != ErrCodeInternal {
		t.Error("GetCode should return ErrCodeInternal for plain errors")
	}
}

func TestIsRetryable_Function(t *testing.T) {
	if !IsRetryable(Navigation("https://portal.example", errors.New("timeout"))) {
		t.Error("navigation errors should be retryable")
	}
	if IsRetryable(Validation("name is required")) {
		t.Error("validation errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable should return false for nil")
	}
}

func TestSelectorNotFound(t *testing.T) {
	err := SelectorNotFound("#submit", 5*time.Second, errors.New("context deadline exceeded"))

	if err.Context["selector"] != "#submit" {
		t.Errorf("selector context = %v", err.Context["selector"])
	}
	if !strings.Contains(err.Message, "5s") {
		t.Errorf("message should name the timeout: %q", err.Message)
	}
}

func TestReconciliationWarning(t *testing.T) {
	err := ReconciliationWarning("Smith", []string{"Jones", "Lee"})

	if err.Code != ErrCodeReconciliationWarning {
		t.Fatalf("Code = %v", err.Code)
	}
	found, ok := err.Context["teachers_found"].([]string)
	if !ok || len(found) != 2 {
		t.Fatalf("teachers_found = %#v", err.Context["teachers_found"])
	}
	if len(err.Remediation) != 1 || !strings.Contains(err.Remediation[0], "Jones, Lee") {
		t.Errorf("Remediation = %v", err.Remediation)
	}
}

func TestDisplay(t *testing.T) {
	err := Authentication("2FA not completed", nil)
	if err.Display() != "2FA not completed" {
		t.Errorf("Display() = %q", err.Display())
	}
	err.WithUserMessage("Approve the sign-in on your phone and retry.")
	if err.Display() != "Approve the sign-in on your phone and retry." {
		t.Errorf("Display() = %q", err.Display())
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "test error")

	trace := err.StackTrace()
	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should contain header")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should have frames")
	}
}

func TestCaptureStack(t *testing.T) {
	frames := captureStack(0)
	if len(frames) == 0 {
		t.Fatal("captureStack should return at least one frame")
	}

	found := false
	for _, frame := range frames {
		if strings.Contains(frame.Function, "Test") || strings.Contains(frame.Function, "errors") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Stack should contain test or errors package frames")
	}
}

func TestChaining(t *testing.T) {
	err := New(ErrCodeExport, "export button missing").
		WithContext("report", "Class Roster").
		WithRetryable(true).
		WithRemediation("open the report manually once to confirm its name")

	if err.Code != ErrCodeExport {
		t.Error("Chaining should preserve code")
	}
	if len(err.Context) != 1 {
		t.Error("Chaining should add all context")
	}
	if !err.Retryable {
		t.Error("Chaining should set retryable")
	}
	if len(err.Remediation) != 1 {
		t.Error("Chaining should set remediation")
	}
}
