package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trustledger/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditDeliver posts one committed audit entry to one webhook.
	TaskAuditDeliver = "audit:deliver"
	// TaskLedgerIntegrity checks audit contiguity and sequence counters.
	TaskLedgerIntegrity = "ledger:integrity"
)

// deliveryNamespace scopes delivery ids so they never collide with other uuids.
var deliveryNamespace = uuid.MustParse("8f0e6a52-3c1d-4c59-9a7e-2b4d6f1e0c3a")

// AuditDeliveryPayload is the body of an audit:deliver task.
type AuditDeliveryPayload struct {
	DeliveryID string      `json:"delivery_id"`
	URL        string      `json:"url"`
	Entry      audit.Entry `json:"entry"`
}

// DeliveryID derives a stable id from the webhook and the entry sequence, so
// a re-enqueue of the same entry is rejected by asynq as a duplicate.
func DeliveryID(url string, seq int64) string {
	return uuid.NewSHA1(deliveryNamespace, []byte(url+"#"+strconv.FormatInt(seq, 10))).String()
}

// NewAuditDeliveryTask constructs an Asynq task for one webhook delivery.
func NewAuditDeliveryTask(url string, entry audit.Entry) (*asynq.Task, error) {
	if url == "" {
		return nil, fmt.Errorf("jobs: webhook url required")
	}
	if entry.Seq <= 0 {
		return nil, fmt.Errorf("jobs: entry has no sequence")
	}
	id := DeliveryID(url, entry.Seq)
	data, err := json.Marshal(AuditDeliveryPayload{DeliveryID: id, URL: url, Entry: entry})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDeliver, data, asynq.TaskID(id), asynq.MaxRetry(8), asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs the payload-less integrity task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil, asynq.MaxRetry(1), asynq.Queue(QueueDefault))
}
