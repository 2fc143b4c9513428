package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
	ErrNotDraft     = errors.New("notification is not a draft")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

func NewInternal(format string, a ...interface{}) error {
	return fmt.Errorf("INTERNAL: "+format, a...)
}

func NewNotFound(format string, a ...interface{}) error {
	return fmt.Errorf("NOT FOUND: %s: %w", fmt.Sprintf(format, a...), ErrNotFound)
}

func NewConflict(format string, a ...interface{}) error {
	return fmt.Errorf("CONFLICT: %s: %w", fmt.Sprintf(format, a...), ErrConflict)
}

func NewInvalid(format string, a ...interface{}) error {
	return fmt.Errorf("INVALID: %s: %w", fmt.Sprintf(format, a...), ErrInvalid)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid) || errors.Is(err, ErrNotDraft)
}

func IsInternal(err error) bool {
	return err != nil && !IsNotFound(err) && !IsConflict(err) && !IsInvalid(err) &&
		!errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrForbidden)
}
