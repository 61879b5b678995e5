package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel committed entries are published on.
const DefaultChannel = "trustledger.audit"

// Publisher delivers a committed entry to external listeners.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry Entry) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// Fanout publishes to every listener and joins their errors; one failing
// listener does not starve the rest.
type Fanout []Publisher

// Publish delivers entry to each publisher.
func (f Fanout) Publish(ctx context.Context, entry Entry) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisPublisher broadcasts entries over Redis pub/sub for dashboards.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a RedisPublisher on channel (DefaultChannel when empty).
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish serialises entry as JSON onto the channel.
func (p *RedisPublisher) Publish(ctx context.Context, entry Entry) error {
	if p == nil || p.client == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("audit: redis publish: %w", err)
	}
	return nil
}

// Subscribe streams entries from the channel to fn until ctx is done.
// Malformed payloads are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(Entry)) error {
	if p == nil || p.client == nil {
		return nil
	}
	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("audit: redis subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var entry Entry
				if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
					continue
				}
				fn(entry)
			}
		}
	}()
	return nil
}
