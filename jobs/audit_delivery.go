package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trustledger/internal/audit"
	jobmetrics "github.com/odyssey-erp/trustledger/internal/jobs"
)

// Enqueuer is the subset of *asynq.Client used to schedule deliveries.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// WebhookPublisher turns every committed audit entry into one audit:deliver
// task per configured webhook.
type WebhookPublisher struct {
	client Enqueuer
	urls   []string
}

// NewWebhookPublisher constructs a publisher. It returns nil when no urls are set.
func NewWebhookPublisher(client Enqueuer, urls []string) *WebhookPublisher {
	if client == nil || len(urls) == 0 {
		return nil
	}
	return &WebhookPublisher{client: client, urls: urls}
}

// Publish enqueues the deliveries. A duplicate task id means the entry was
// already scheduled for that url and is not an error.
func (p *WebhookPublisher) Publish(ctx context.Context, entry audit.Entry) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, url := range p.urls {
		task, err := NewAuditDeliveryTask(url, entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := p.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, fmt.Errorf("jobs: enqueue delivery %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// AuditDeliveryJob posts entries to webhooks.
type AuditDeliveryJob struct {
	Client  *http.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditDeliveryJob wires dependencies for the delivery handler.
func NewAuditDeliveryJob(client *http.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditDeliveryJob {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditDeliveryJob{Client: client, Logger: logger, Metrics: metrics}
}

// Handle processes audit:deliver tasks. Client errors other than 429 are not
// retried; everything else is returned so asynq retries with backoff.
func (j *AuditDeliveryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("audit delivery: handler not configured")
	}
	var payload AuditDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.URL == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskAuditDeliver)
	err := j.deliver(ctx, payload)
	return tracker.End(err)
}

func (j *AuditDeliveryJob) deliver(ctx context.Context, payload AuditDeliveryPayload) error {
	logger := j.Logger.With(
		slog.String("delivery_id", payload.DeliveryID),
		slog.Int64("seq", payload.Entry.Seq),
	)
	body, err := json.Marshal(payload.Entry)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(body))
	if err != nil {
		j.Metrics.ObserveDelivery("rejected")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trustledger-Delivery", payload.DeliveryID)
	req.Header.Set("X-Trustledger-Seq", strconv.FormatInt(payload.Entry.Seq, 10))

	resp, err := j.Client.Do(req)
	if err != nil {
		j.Metrics.ObserveDelivery("error")
		logger.Warn("audit delivery", slog.Any("error", err))
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		j.Metrics.ObserveDelivery("ok")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		j.Metrics.ObserveDelivery("rejected")
		logger.Warn("audit delivery rejected", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: webhook status %d", asynq.SkipRetry, resp.StatusCode)
	default:
		j.Metrics.ObserveDelivery("error")
		return fmt.Errorf("audit delivery: webhook status %d", resp.StatusCode)
	}
}
