// Package documents owns document records: fingerprint and locator
// uniqueness, ownership and the one-way revocation lifecycle.
package documents

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

// FingerprintSize is the width of a content fingerprint in bytes.
const FingerprintSize = 32

// Fingerprint is a content hash. The zero value is never a valid fingerprint.
type Fingerprint [FingerprintSize]byte

// ParseFingerprint decodes 64 hex digits, with or without a 0x prefix.
func ParseFingerprint(raw string) (Fingerprint, error) {
	var fp Fingerprint
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(raw) != hex.EncodedLen(FingerprintSize) {
		return fp, errInvalidFingerprint
	}
	if _, err := hex.Decode(fp[:], []byte(raw)); err != nil {
		return fp, errInvalidFingerprint
	}
	return fp, nil
}

// FingerprintFromBytes copies b into a Fingerprint.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(b) != FingerprintSize {
		return fp, errInvalidFingerprint
	}
	copy(fp[:], b)
	return fp, nil
}

// IsZero reports whether every byte is zero.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

func (f Fingerprint) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

// MarshalText encodes the fingerprint as 0x-prefixed hex.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts the MarshalText form.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	fp, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}

// Document is a registered record. Revoked only ever moves from false to true.
type Document struct {
	ID           int64            `json:"id"`
	Owner        shared.Principal `json:"owner"`
	Fingerprint  Fingerprint      `json:"fingerprint"`
	Locator      string           `json:"locator"`
	DisplayName  string           `json:"display_name"`
	DocumentType string           `json:"document_type"`
	CreatedAt    time.Time        `json:"created_at"`
	Revoked      bool             `json:"revoked"`
	RevokedAt    *time.Time       `json:"revoked_at,omitempty"`
}

// RegisterInput carries the caller-supplied fields of a registration.
type RegisterInput struct {
	Fingerprint  Fingerprint
	Locator      string
	DisplayName  string
	DocumentType string
}

// ListResult is one page of an owner's documents in registration order.
type ListResult struct {
	Documents []Document        `json:"documents"`
	Paging    shared.Pagination `json:"paging"`
}

var (
	ErrInvalidInput         = shared.NewError(shared.ErrValidation, "invalid_input", "fingerprint must be non-zero, locator and display name non-empty")
	ErrDuplicateFingerprint = shared.NewError(shared.ErrConflict, "duplicate_fingerprint", "fingerprint already registered")
	ErrDuplicateLocator     = shared.NewError(shared.ErrConflict, "duplicate_locator", "locator already registered")
	ErrNotFound             = shared.NewError(shared.ErrNotFound, "document_not_found", "document not found")
	ErrNotOwner             = shared.NewError(shared.ErrUnauthorized, "not_owner", "caller does not own the document")
	ErrAlreadyRevoked       = shared.NewError(shared.ErrConflict, "already_revoked", "document already revoked")
	ErrRegistrationDenied   = shared.NewError(shared.ErrUnauthorized, "registration_denied", "registration requires the DocumentManager or Admin role")

	errInvalidFingerprint = shared.NewError(shared.ErrValidation, "invalid_fingerprint", "fingerprint must be 32 bytes of hex")
)

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
