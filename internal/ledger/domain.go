// Package ledger implements the inventory ledger engine. Stock levels
// are never stored; they are derived by summing an append-only log of
// signed quantity movements per product. Entries are immutable: the
// package exposes no update or delete capability at all.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates supported inventory movements.
type Kind string

const (
	// KindIn represents an inbound movement (receiving).
	KindIn Kind = "IN"
	// KindOut represents an outbound movement (shipping, scrap).
	KindOut Kind = "OUT"
	// KindAdjust indicates a manual stocktake correction.
	KindAdjust Kind = "ADJUST"
	// KindReserve locks quantity against a pending order or inspection.
	KindReserve Kind = "RESERVE"
	// KindUnreserve releases a previously reserved quantity.
	KindUnreserve Kind = "UNRESERVE"
)

// Direction disambiguates ADJUST movements.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

// Bucket is the stock partition a ledger entry affects.
type Bucket string

const (
	BucketOnHand   Bucket = "ON_HAND"
	BucketReserved Bucket = "RESERVED"
)

// Entry is one immutable signed quantity movement. Delta sign and
// Bucket are derived from Kind by the operation mapper, never set by
// clients.
type Entry struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Kind      Kind
	Bucket    Bucket
	Delta     int64
	Note      string
	RequestID *uuid.UUID
	CreatedAt time.Time
}

// StockLevel is the derived aggregate for one product. It is a view
// over the ledger, recomputed on demand, never persisted.
type StockLevel struct {
	OnHand   int64
	Reserved int64
}

// Available is the quantity free for new allocation.
func (s StockLevel) Available() int64 {
	return s.OnHand - s.Reserved
}

// HistoryFilter narrows and pages the entry history query.
type HistoryFilter struct {
	ProductID uuid.UUID
	Kind      Kind
	Bucket    Bucket
	Page      int
	PerPage   int
}

// Validation errors, rejected before any aggregate is read.
var (
	// ErrInvalidCombination flags a direction supplied for a non-ADJUST
	// operation, or omitted for ADJUST.
	ErrInvalidCombination = errors.New("ledger: invalid operation and direction combination")
	// ErrInvalidMagnitude flags a quantity below 1.
	ErrInvalidMagnitude = errors.New("ledger: quantity must be at least 1")
	// ErrBatchSize flags a batch outside the 1..10 descriptor range.
	ErrBatchSize = errors.New("ledger: batch must contain between 1 and 10 operations")
)

// Invariant errors, business-rule rejections that leave the ledger untouched.
var (
	ErrProductNotFound       = errors.New("ledger: product not found")
	ErrProductInactive       = errors.New("ledger: product is inactive")
	ErrInsufficientOnHand    = errors.New("ledger: insufficient on-hand stock")
	ErrInsufficientReserved  = errors.New("ledger: insufficient reserved stock")
	ErrInsufficientAvailable = errors.New("ledger: insufficient available stock")
)

// Conflict and transient errors.
var (
	// ErrDuplicateRequest signals a detected retry; the original commit
	// already applied and nothing was re-executed.
	ErrDuplicateRequest = errors.New("ledger: request id already processed")
	// ErrCommitContention surfaces after bounded retries on transaction
	// contention. It is retryable and never masks an invariant error.
	ErrCommitContention = errors.New("ledger: commit aborted after contention retries")
	// ErrStockHeadMissing indicates the product's lock row is absent.
	ErrStockHeadMissing = errors.New("ledger: stock head not found")
)

// ShortfallError wraps an ErrInsufficient* sentinel with the quantities
// a caller needs for diagnostics: the current level and the level the
// rejected request would have produced.
type ShortfallError struct {
	Reason    error
	Current   int64
	Resulting int64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%v: current=%d, after=%d", e.Reason, e.Current, e.Resulting)
}

func (e *ShortfallError) Unwrap() error {
	return e.Reason
}
