package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

var (
	ErrUnavailable   = errors.New("browser runtime unavailable")
	ErrSessionClosed = errors.New("browser session closed")
	ErrNoDownload    = errors.New("no download started")
)

// Classify converts a raw adapter error into the coded taxonomy. Errors that
// already carry a code pass through untouched.
func Classify(op Op, target string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := pferrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return pferrors.Wrap(err, pferrors.ErrCodeStopped, fmt.Sprintf("%s cancelled", op)).
			WithContext("op", string(op))
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout")
	switch op {
	case OpNavigate:
		return pferrors.Navigation(target, err)
	case OpClick, OpFill, OpSelect, OpWaitVisible, OpText:
		if timedOut {
			return pferrors.SelectorNotFound(target, timeout, err).WithContext("op", string(op))
		}
	case OpDownload:
		if errors.Is(err, ErrNoDownload) {
			return pferrors.Export("no download event fired", err).WithContext("selector", target)
		}
		if timedOut {
			return pferrors.SelectorNotFound(target, timeout, err).WithContext("op", string(op))
		}
	}

	e := pferrors.Wrap(err, pferrors.ErrCodeBrowser, fmt.Sprintf("%s failed", op)).
		WithContext("op", string(op))
	if target != "" {
		e.WithContext("target", target)
	}
	return e
}

// Guard runs fn and converts a panic into a BROWSER error so page-level
// failures never unwind past the adapter.
func Guard(op Op, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pferrors.New(pferrors.ErrCodeBrowser, fmt.Sprintf("%s panicked: %v", op, r)).
				WithContext("op", string(op))
		}
	}()
	return fn()
}

// IsConnectionError returns true if the error indicates the browser went away.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") || strings.Contains(msg, "websocket")
}
