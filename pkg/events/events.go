// Package events carries order lifecycle notifications to external
// consumers. Delivery is best effort: store state is the source of truth and
// a missed event is recoverable by polling order status.
package events

import (
	"context"

	"github.com/proofline-hq/proofline/pkg/models"
)

// Channel is the pub/sub channel status events are published on
const Channel = "orders:events"

// Event names
const (
	NameProgress  = "order:progress"
	NameCompleted = "order:completed"
	NameCancelled = "order:cancelled"
)

// Event is a typed order lifecycle notification
type Event interface {
	// Name returns the event name used on the wire
	Name() string
}

// ProgressEvent reports a status change of an order
type ProgressEvent struct {
	OrderID string             `json:"orderId"`
	Status  models.OrderStatus `json:"status"`
}

func (ProgressEvent) Name() string { return NameProgress }

// CompletedEvent carries full settlement details so consumers can act
// without re-querying
type CompletedEvent struct {
	OrderID   string `json:"orderId"`
	ERC20     string `json:"erc20"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	ChainID   int    `json:"chainId"`
	TxHash    string `json:"txHash"`
	Signature string `json:"signature"`
}

func (CompletedEvent) Name() string { return NameCompleted }

// CancelledEvent reports a cancelled order and the queryable reason
type CancelledEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func (CancelledEvent) Name() string { return NameCancelled }

// Bus publishes order lifecycle events to downstream consumers
type Bus interface {
	Publish(ctx context.Context, event Event) error
}

// NopBus discards all events
type NopBus struct{}

var _ Bus = (*NopBus)(nil)

func (NopBus) Publish(_ context.Context, _ Event) error { return nil }
