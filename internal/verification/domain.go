// Package verification runs the N-of-M approval workflow for documents.
package verification

import (
	"strconv"
	"time"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Status of a verification request. Pending moves to Approved once and never back.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
)

// Request is a verification request against one document.
type Request struct {
	ID            int64            `json:"id"`
	DocumentID    int64            `json:"document_id"`
	RequestedBy   shared.Principal `json:"requested_by"`
	CreatedAt     time.Time        `json:"created_at"`
	Status        Status           `json:"status"`
	ApprovalCount int              `json:"approval_count"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty"`
}

// Approval is one signer's vote. Position is 1 for the first vote on a request.
type Approval struct {
	RequestID  int64            `json:"request_id"`
	Signer     shared.Principal `json:"signer"`
	Position   int              `json:"position"`
	ApprovedAt time.Time        `json:"approved_at"`
}

// ApproveResult reports the request state right after a vote. Completed is
// true only for the vote that moved the request to Approved.
type ApproveResult struct {
	Request   Request `json:"request"`
	Threshold int     `json:"threshold"`
	Completed bool    `json:"completed"`
}

// RequestList is one page of a document's requests, oldest first.
type RequestList struct {
	Requests []Request         `json:"requests"`
	Paging   shared.Pagination `json:"paging"`
}

// ApprovalList is one page of a request's votes in casting order.
type ApprovalList struct {
	Approvals []Approval        `json:"approvals"`
	Paging    shared.Pagination `json:"paging"`
}

var (
	ErrRequestNotFound   = shared.NewError(shared.ErrNotFound, "request_not_found", "verification request not found")
	ErrDocumentNotFound  = shared.NewError(shared.ErrNotFound, "document_not_found", "document not found")
	ErrDocumentRevoked   = shared.NewError(shared.ErrConflict, "document_revoked", "document is revoked")
	ErrNotEligibleSigner = shared.NewError(shared.ErrUnauthorized, "not_eligible_signer", "caller is not in the signer set")
	ErrAlreadyApproved   = shared.NewError(shared.ErrConflict, "already_approved", "caller already approved this request")
)

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
