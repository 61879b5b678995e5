package audit

import (
	"time"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Kind names the state change an entry records.
type Kind string

const (
	KindDocumentRegistered   Kind = "DOCUMENT_REGISTERED"
	KindDocumentRevoked      Kind = "DOCUMENT_REVOKED"
	KindRequestCreated       Kind = "VERIFICATION_REQUESTED"
	KindApprovalRecorded     Kind = "APPROVAL_RECORDED"
	KindRequestApproved      Kind = "VERIFICATION_APPROVED"
	KindRoleGranted          Kind = "ROLE_GRANTED"
	KindRoleRevoked          Kind = "ROLE_REVOKED"
	KindAdminInitialized     Kind = "ADMIN_INITIALIZED"
	KindAdminTransferred     Kind = "ADMIN_TRANSFERRED"
	KindSignerSetInitialized Kind = "SIGNER_SET_INITIALIZED"
	KindSignerAdded          Kind = "SIGNER_ADDED"
	KindSignerRemoved        Kind = "SIGNER_REMOVED"
	KindThresholdChanged     Kind = "THRESHOLD_CHANGED"
)

// Entity types referenced by entries.
const (
	EntityDocument  = "document"
	EntityRequest   = "verification_request"
	EntityRole      = "role"
	EntityAdmin     = "admin"
	EntitySigner    = "signer"
	EntitySignerSet = "signer_set"
)

// Entry is one committed state change. Seq is the commit order.
type Entry struct {
	Seq      int64            `json:"seq"`
	Kind     Kind             `json:"kind"`
	Entity   string           `json:"entity"`
	EntityID string           `json:"entity_id"`
	Actor    shared.Principal `json:"actor"`
	Meta     map[string]any   `json:"meta,omitempty"`
	At       time.Time        `json:"at"`
}

// Filters narrows a history query. Zero values match everything.
type Filters struct {
	Entity   string
	EntityID string
	Actor    shared.Principal
	Kind     Kind
	AfterSeq int64
	Page     shared.Page
}

// Result wraps one page of history.
type Result struct {
	Entries []Entry           `json:"entries"`
	Paging  shared.Pagination `json:"paging"`
}

func (f Filters) matches(e Entry) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !f.Actor.IsZero() && e.Actor != f.Actor {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return e.Seq > f.AfterSeq
}
