// Package apperr defines the error taxonomy shared by all Muninn components.
//
// Every failure surfaced to a caller carries a machine-readable Kind so the
// caller can distinguish "fix the input" from "retry later" from "not
// authorized". Packages match on the sentinel values with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure class.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindDuplicateContent Kind = "duplicate_content"
	KindPermissionDenied Kind = "permission_denied"
	KindNoChanges        Kind = "no_changes"
	KindAuthentication   Kind = "authentication_failure"
	KindStore            Kind = "store_error"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is makes every *Error of the same Kind match, so
// errors.Is(err, apperr.ErrNotFound) works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateContent = &Error{Kind: KindDuplicateContent}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrNoChanges        = &Error{Kind: KindNoChanges}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrStore            = &Error{Kind: KindStore}
)

// New returns a classified error with a human-readable message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error while preserving the chain.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// KindOf extracts the Kind from err, defaulting to KindStore for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}
