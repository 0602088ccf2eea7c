// Package apperr classifies domain failures so callers can map them to a
// user-facing response without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindAuthorization Kind = "authorization_error"
	KindStateConflict Kind = "state_conflict"
	KindExternal      Kind = "external_api_error"
)

type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

func Validation(err error) error { return wrap(KindValidation, err) }

func Validationf(format string, args ...any) error {
	return wrap(KindValidation, fmt.Errorf(format, args...))
}

func Authorization(err error) error { return wrap(KindAuthorization, err) }

func StateConflict(err error) error { return wrap(KindStateConflict, err) }

func StateConflictf(format string, args ...any) error {
	return wrap(KindStateConflict, fmt.Errorf(format, args...))
}

func External(err error) error { return wrap(KindExternal, err) }

// KindOf reports the kind attached to err, or an empty kind when err was never
// classified.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
