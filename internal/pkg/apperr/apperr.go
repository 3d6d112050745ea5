// Package apperr carries the error taxonomy shared by the reservation core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react.
type Kind string

const (
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindUpstream     Kind = "upstream_failure"
	KindInconsistent Kind = "inconsistent"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrInconsistent = &Error{Kind: KindInconsistent}
)

// Error is a classified error. Code is a short machine readable reason that is
// safe to show to guests; Message is operator detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		if msg == "" {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	if msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// for every conflict regardless of code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func Conflict(code, msg string) *Error   { return newErr(KindConflict, code, msg, nil) }
func NotFound(code, msg string) *Error   { return newErr(KindNotFound, code, msg, nil) }
func Validation(code, msg string) *Error { return newErr(KindValidation, code, msg, nil) }
func Inconsistent(code, msg string) *Error {
	return newErr(KindInconsistent, code, msg, nil)
}

// Upstream wraps a provider or store failure that the system may retry.
func Upstream(code string, cause error) *Error {
	return newErr(KindUpstream, code, "", cause)
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
