// Package errs defines the domain error taxonomy for the EasySave service.
//
// Every failure surfaced to a caller carries a stable [Kind] tag and a
// human-readable message. Infrastructure errors are wrapped as [StoreFailure]
// with the original cause preserved for diagnostics but never exposed verbatim.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the stable tag identifying a class of domain failure.
type Kind string

const (
	InvalidIdentifier     Kind = "invalid_identifier"
	InvalidEmail          Kind = "invalid_email"
	InvalidUpdateField    Kind = "invalid_update_field"
	NonuniqueUsername     Kind = "nonunique_username"
	DuplicateEmail        Kind = "duplicate_email"
	DuplicateAccessKey    Kind = "duplicate_access_key"
	DuplicateIdentifier   Kind = "duplicate_identifier"
	AuthenticationFailure Kind = "authentication_failure"
	NotFound              Kind = "not_found"
	StoreFailure          Kind = "store_failure"
)

// Error is a tagged domain error. The zero value is not valid; construct
// through New or Wrap.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates a domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that preserves cause for diagnostics.
// The cause is reachable through errors.Unwrap but is not part of the
// caller-visible message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the kind of err if it is (or wraps) a domain error,
// or the empty Kind otherwise.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
