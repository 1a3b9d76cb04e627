package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy. Handlers map these
// to HTTP statuses; "not authorized" is a normal decision outcome and
// never an error.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("transient error")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// transientf wraps storage/network failures so callers know to retry
// with backoff instead of treating them as terminal.
func transientf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}
