package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/proofline-hq/proofline/pkg/logger"
	"github.com/proofline-hq/proofline/pkg/metrics"
)

// envelope is the wire format of one published event
type envelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

// RedisBus publishes events as JSON on a Redis pub/sub channel
type RedisBus struct {
	rdb *redis.Client
	log logger.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a bus on an existing Redis client
func NewRedisBus(rdb *redis.Client, log logger.Logger) *RedisBus {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &RedisBus{rdb: rdb, log: log}
}

// Publish sends the event to all current subscribers of the channel
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(envelope{Event: event.Name(), Data: event})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Name(), err)
	}

	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		metrics.EventPublishErrors.WithLabelValues(event.Name()).Inc()
		return fmt.Errorf("failed to publish %s event: %w", event.Name(), err)
	}

	metrics.EventsPublished.WithLabelValues(event.Name()).Inc()
	b.log.Debug("Published %s event", event.Name())
	return nil
}
