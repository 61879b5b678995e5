package shared

import "errors"

// Error categories. Every domain error wraps exactly one of these so callers and the
// HTTP layer can branch on the category with errors.Is.
var (
	// ErrValidation indicates malformed or empty input, rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown document, request or other entity.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the caller lacks the role, ownership or eligibility required.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict indicates a uniqueness or one-way state conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvariant indicates the call would break a registry invariant.
	ErrInvariant = errors.New("invariant violation")
	// ErrUnavailable signals that the storage collaborator cannot serve the call.
	ErrUnavailable = errors.New("persistence unavailable")
)

// Error is a typed domain error carrying a stable code next to its category.
type Error struct {
	Kind    error
	Code    string
	Message string
}

// NewError builds a domain error of the given category.
func NewError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Unwrap exposes the category so errors.Is(err, ErrConflict) matches.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in the chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
