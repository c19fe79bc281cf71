package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Workflow and step errors
	ErrCodeValidation ErrorCode = "VALIDATION"
	ErrCodeStopped    ErrorCode = "STOPPED"

	// Browser errors
	ErrCodeSelectorNotFound ErrorCode = "SELECTOR_NOT_FOUND"
	ErrCodeNavigation       ErrorCode = "NAVIGATION"
	ErrCodeBrowser          ErrorCode = "BROWSER"
	ErrCodeSessionBusy      ErrorCode = "SESSION_BUSY"

	// Portal pipeline errors
	ErrCodeAuthentication        ErrorCode = "AUTHENTICATION"
	ErrCodeExport                ErrorCode = "EXPORT"
	ErrCodeParse                 ErrorCode = "PARSE"
	ErrCodeReconciliationWarning ErrorCode = "RECONCILIATION_WARNING"

	// Storage errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Generic errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error represents a structured portalflow error
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Stack       []Frame
	Retryable   bool
	UserMessage string
	Remediation []string
}

// Frame represents a stack frame
type Frame struct {
	Function string
	File     string
	Line     int
}

// build is shared by every constructor; skip counts the frames between the
// caller of interest and build itself.
func build(skip int, code ErrorCode, message string, err error, retryable bool) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
		Stack:      captureStack(skip + 1),
		Retryable:  retryable,
	}
}

// New creates an error with a stack captured at the caller.
func New(code ErrorCode, message string) *Error {
	return build(2, code, message, nil, false)
}

func Newf(code ErrorCode, format string, args ...any) *Error {
	return build(2, code, fmt.Sprintf(format, args...), nil, false)
}

// Wrap attaches a code to err. Wrap(nil, ...) is nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return build(2, code, message, err, false)
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the human-friendly message returned to users.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// WithRemediation appends actionable remediation tips for the error.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) == 0 {
		return e
	}
	e.Remediation = append([]string{}, tips...)
	return e
}

// Error implements the error interface. Context keys are rendered in sorted
// order so messages are stable across runs.
func (e *Error) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := slices.Sorted(maps.Keys(e.Context))
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error is retryable
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Display returns the user-facing message, falling back to Message.
func (e *Error) Display() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// StackTrace returns a formatted stack trace
func (e *Error) StackTrace() string {
	var sb strings.Builder

	sb.WriteString("Stack trace:\n")
	for i, frame := range e.Stack {
		fmt.Fprintf(&sb, "  %d. %s\n     %s:%d\n", i+1, frame, frame.File, frame.Line)
	}

	return sb.String()
}

// String formats a stack frame
func (f Frame) String() string {
	return f.Function
}

// captureStack captures the current call stack
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr

	n := runtime.Callers(skip+1, pcs[:])
	frames := make([]Frame, 0, n)

	for i := 0; i < n; i++ {
		pc := pcs[i]
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		file, line := fn.FileLine(pc)

		frames = append(frames, Frame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}

// As finds the first structured error in err's chain.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var pfErr *Error
	if stderrors.As(err, &pfErr) {
		return pfErr, true
	}
	return nil, false
}

// IsCode checks if an error (or anything it wraps) has a specific error code
func IsCode(err error, code ErrorCode) bool {
	pfErr, ok := As(err)
	if !ok {
		return false
	}
	return pfErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	pfErr, ok := As(err)
	if !ok {
		return ErrCodeInternal
	}
	return pfErr.Code
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	pfErr, ok := As(err)
	if !ok {
		return false
	}
	return pfErr.Retryable
}

// Validation reports missing or malformed step params, or an unnamed workflow.
func Validation(message string) *Error {
	return build(2, ErrCodeValidation, message, nil, false)
}

// SelectorNotFound reports an element that did not appear within timeout.
func SelectorNotFound(selector string, timeout time.Duration, err error) *Error {
	e := build(2, ErrCodeSelectorNotFound, fmt.Sprintf("selector %q not found within %s", selector, timeout), err, true)
	e.Context["selector"] = selector
	return e
}

// Navigation reports a page load failure or timeout.
func Navigation(url string, err error) *Error {
	e := build(2, ErrCodeNavigation, "navigation to "+url+" failed", err, true)
	e.Context["url"] = url
	return e
}

// Authentication reports a login or 2FA flow that did not complete.
func Authentication(message string, err error) *Error {
	return build(2, ErrCodeAuthentication, message, err, false)
}

// Export reports a missing report or export control, or a download that never fired.
func Export(message string, err error) *Error {
	return build(2, ErrCodeExport, message, err, false)
}

func Parse(message string, err error) *Error {
	return build(2, ErrCodeParse, message, err, false)
}

// ReconciliationWarning reports that no rows matched the configured teacher.
// It is diagnostic only; found lists the teacher names present in the data.
func ReconciliationWarning(teacher string, found []string) *Error {
	e := build(2, ErrCodeReconciliationWarning, fmt.Sprintf("no rows matched teacher %q", teacher), nil, false)
	e.Context["teacher"] = teacher
	e.Context["teachers_found"] = append([]string(nil), found...)
	if len(found) > 0 {
		e.Remediation = []string{"check the configured teacher name against: " + strings.Join(found, ", ")}
	}
	return e
}
