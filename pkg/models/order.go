package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	// StatusPending is the initial state of a registered order
	StatusPending OrderStatus = "PENDING"
	// StatusVerifying means a transfer matched the order and the signature check is in progress
	StatusVerifying OrderStatus = "VERIFYING"
	// StatusCompleted means the signature was valid and the settlement hash is attached
	StatusCompleted OrderStatus = "COMPLETED"
	// StatusCancelled means the signature was invalid or the order was explicitly failed
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status is one of the two final states
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// FailReason identifies why an order was cancelled
type FailReason string

const (
	// ReasonInvalidSignature is set when the recomputed signature does not match the stored one
	ReasonInvalidSignature FailReason = "INVALID_SIGNATURE"
)

// Order is the durable record of a registered transfer intent
type Order struct {
	ID        string      `json:"id" gorm:"primaryKey;size:64"`
	ERC20     string      `json:"erc20" gorm:"size:42;not null;index:orders_payload_idx,priority:3"`
	From      string      `json:"from" gorm:"column:from_address;size:42;not null;index:orders_payload_idx,priority:2"`
	To        string      `json:"to" gorm:"column:to_address;size:42;not null;index:orders_payload_idx,priority:1"`
	Amount    string      `json:"amount" gorm:"size:78;not null;index:orders_payload_idx,priority:4"`
	ChainID   int         `json:"chainId" gorm:"not null"`
	TxHash    string      `json:"txHash" gorm:"size:66;index"`
	Signature string      `json:"signature" gorm:"size:512;not null;uniqueIndex"`
	Timestamp int64       `json:"timestamp" gorm:"not null"`
	Error     string      `json:"error" gorm:"size:255"`
	Status    OrderStatus `json:"status" gorm:"size:16;not null;default:PENDING;index:orders_status_idx,priority:1"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BeforeCreate assigns an order ID if the caller did not set one
func (o *Order) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = NewOrderID()
	}
	return nil
}

// orderIDPrefix distinguishes order identifiers from other opaque IDs in logs
const orderIDPrefix = "ORD_"

// NewOrderID generates an opaque order identifier
func NewOrderID() string {
	return orderIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
