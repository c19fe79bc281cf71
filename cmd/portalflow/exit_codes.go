package main

import (
	"errors"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

const (
	exitOK      = 0
	exitFailure = 1
	// exitWarning marks a completed command whose result needs attention,
	// such as an import that matched no rows.
	exitWarning = 2
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return exitOK
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	if pferrors.IsCode(err, pferrors.ErrCodeReconciliationWarning) {
		return exitWarning
	}
	return exitFailure
}
