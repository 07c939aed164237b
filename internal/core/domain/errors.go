package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")

	// ErrNotification marks a committed operation whose follow-up email could not be queued.
	ErrNotification = errors.New("notification failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// Errorf builds a typed error from a message without an underlying cause.
func Errorf(kind error, operation, format string, args ...any) error {
	return WrapError(kind, operation, fmt.Errorf(format, args...))
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
