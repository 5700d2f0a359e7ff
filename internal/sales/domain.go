// Package sales records sales and refund events and serves the
// revenue breakdown consumed by the dashboard. Events follow the same
// sign-safety rule as the ledger: clients send a type and a positive
// amount, the sign is derived server side.
package sales

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates sales event kinds.
type EventType string

const (
	EventSale   EventType = "SALE"
	EventRefund EventType = "REFUND"
)

// Event is one immutable sales record. AmountYen is stored signed:
// negative for refunds.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	AmountYen  int64
	ProductID  *uuid.UUID
	Note       string
	RequestID  *uuid.UUID
	OccurredAt time.Time
}

// CreateInput describes a new sales event. AmountYen is the positive
// magnitude; the sign is derived from Type.
type CreateInput struct {
	Type       EventType
	AmountYen  int64
	ProductID  *uuid.UUID
	Note       string
	RequestID  *uuid.UUID
	OccurredAt *time.Time
}

// PieSlice is one group of the revenue breakdown.
type PieSlice struct {
	Key       string
	Label     string
	AmountYen int64
}

// PieResult aggregates revenue for a date range.
type PieResult struct {
	TotalYen       int64
	RefundTotalYen int64
	Breakdown      []PieSlice
}

var (
	// ErrInvalidEvent flags a malformed create input.
	ErrInvalidEvent = errors.New("sales: invalid event")
	// ErrProductNotFound indicates an unknown product reference.
	ErrProductNotFound = errors.New("sales: product not found")
	// ErrDuplicateRequest signals a replayed request id.
	ErrDuplicateRequest = errors.New("sales: request id already processed")
)
