// Package signers maintains the principals eligible to approve verification
// requests and the threshold a request needs to complete.
package signers

import (
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Snapshot is the signer set as seen by one read.
type Snapshot struct {
	Signers   []shared.Principal `json:"signers"`
	Threshold int                `json:"threshold"`
}

var (
	ErrDuplicateSigner       = shared.NewError(shared.ErrConflict, "duplicate_signer", "principal is already a signer")
	ErrNotASigner            = shared.NewError(shared.ErrNotFound, "not_a_signer", "principal is not a signer")
	ErrThresholdUnreachable  = shared.NewError(shared.ErrInvariant, "threshold_unreachable", "removal would leave fewer signers than the threshold")
	ErrInvalidConfiguration  = shared.NewError(shared.ErrValidation, "invalid_configuration", "threshold must be between 1 and the number of signers")
	ErrUnauthorized          = shared.NewError(shared.ErrUnauthorized, "signer_change_unauthorized", "caller must be a signer or hold the Admin role")
	ErrThresholdUnauthorized = shared.NewError(shared.ErrUnauthorized, "threshold_unauthorized", "caller does not hold the Admin role")
	ErrNotInitialized        = shared.NewError(shared.ErrInvariant, "signers_not_initialized", "signer set not initialised")
)

func validConfig(count, threshold int) bool {
	return threshold >= 1 && threshold <= count
}
