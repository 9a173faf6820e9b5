// Package pipelineerr defines the typed error taxonomy clients of the
// pipeline engine discriminate on (spec.md §7). Errors are plain wrapped
// stdlib errors — the teacher never reaches for a third-party error
// taxonomy library anywhere in its own service layer, so this follows suit.
package pipelineerr

import (
	"errors"
	"fmt"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
)

// Kind discriminates the taxonomy of spec.md §7.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindStageFailure    Kind = "StageFailure"
	KindStateCorrupt    Kind = "StateCorrupt"
	KindLockLost        Kind = "LockLost"
	KindCannotResume    Kind = "CannotResume"
	KindAlreadyRunning  Kind = "AlreadyRunning"
	KindCancelled       Kind = "Cancelled"
	KindScoringItem     Kind = "ScoringItemError"
	KindCircuitOpen     Kind = "CircuitOpen"
)

// Error is the concrete error type carried through the pipeline. Stage is
// optional — set when the failure is attributable to one stage.
type Error struct {
	Kind  Kind
	Stage report.StageName
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, pipelineerr.ErrAlreadyRunning)-style sentinel
// comparisons to match on Kind regardless of message/wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, stage report.StageName, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, "", nil, format, args...)
}

func StageFailure(stage report.StageName, err error, format string, args ...interface{}) *Error {
	return newf(KindStageFailure, stage, err, format, args...)
}

func StateCorrupt(stage report.StageName, err error, format string, args ...interface{}) *Error {
	return newf(KindStateCorrupt, stage, err, format, args...)
}

func LockLost(format string, args ...interface{}) *Error {
	return newf(KindLockLost, "", nil, format, args...)
}

func CannotResume(format string, args ...interface{}) *Error {
	return newf(KindCannotResume, "", nil, format, args...)
}

func AlreadyRunning(reportID string) *Error {
	return newf(KindAlreadyRunning, "", nil, "report %s is already running", reportID)
}

func Cancelled(format string, args ...interface{}) *Error {
	return newf(KindCancelled, "", nil, format, args...)
}

func ScoringItem(itemID string, err error) *Error {
	return newf(KindScoringItem, "", err, "scoring item %s: %v", itemID, err)
}

func CircuitOpen(format string, args ...interface{}) *Error {
	return newf(KindCircuitOpen, "", nil, format, args...)
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
