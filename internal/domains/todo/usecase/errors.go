package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("record not found")
)

// Error is a business failure. Error() returns the human-readable message only;
// Unwrap exposes the kind so callers classify with errors.Is.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(id string) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("Record with ID %s not found", id)}
}

// IsBusinessFailure reports whether err is a validation or not-found failure.
func IsBusinessFailure(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
