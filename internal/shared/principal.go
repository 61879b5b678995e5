package shared

import "strings"

// Principal is an opaque, already-authenticated caller identity.
type Principal string

// ParsePrincipal trims surrounding whitespace from a raw identity handle.
func ParsePrincipal(raw string) Principal {
	return Principal(strings.TrimSpace(raw))
}

// IsZero reports whether the principal is the null/empty handle.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(string(p)) == ""
}

func (p Principal) String() string {
	return string(p)
}

// ErrInvalidPrincipal rejects the null principal where a real identity is required.
var ErrInvalidPrincipal = NewError(ErrValidation, "invalid_principal", "principal must not be empty")
