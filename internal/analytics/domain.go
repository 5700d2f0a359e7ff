// Package analytics serves the read-only stock and revenue views
// derived from the ledger. Nothing in here is a source of truth: every
// quantity is recomputed from ledger entries, and the commit path never
// consults these views or their cache.
package analytics

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// StockSort enumerates the orderings accepted by the stock list.
type StockSort string

const (
	SortQtyDesc     StockSort = "qty_desc"
	SortQtyAsc      StockSort = "qty_asc"
	SortValueDesc   StockSort = "value_desc"
	SortValueAsc    StockSort = "value_asc"
	SortUpdatedDesc StockSort = "updated_desc"
)

// ValidSort reports whether s is a known stock ordering.
func ValidSort(s StockSort) bool {
	switch s {
	case SortQtyDesc, SortQtyAsc, SortValueDesc, SortValueAsc, SortUpdatedDesc:
		return true
	}
	return false
}

// TopMetric selects the ranking dimension of the stock top view.
type TopMetric string

const (
	MetricQty   TopMetric = "qty"
	MetricValue TopMetric = "value"
)

// Reservation reasons broken out by the stock list. They live in the
// ledger entry note column; anything else counts only toward the
// reserved total.
const (
	ReasonReturnPending = "RETURN_PENDING"
	ReasonOrderPending  = "ORDER_PENDING_SHIPMENT"
)

// StockFilter narrows and orders the stock list.
type StockFilter struct {
	Query           string
	Sort            StockSort
	IncludeInactive bool
	Page            int
	PerPage         int
}

// StockItem is one product row of the stock list, with aggregates
// summed from the ledger and derived figures filled in by the service.
type StockItem struct {
	ProductID             uuid.UUID `json:"product_id"`
	Code                  string    `json:"code"`
	Name                  string    `json:"name"`
	Spec                  *string   `json:"spec,omitempty"`
	Unit                  string    `json:"unit"`
	UnitPrice             float64   `json:"unit_price"`
	ReorderPoint          int       `json:"reorder_point"`
	Active                bool      `json:"active"`
	OnHand                int64     `json:"on_hand"`
	ReservedTotal         int64     `json:"reserved_total"`
	ReservedPendingReturn int64     `json:"reserved_pending_return"`
	ReservedPendingOrder  int64     `json:"reserved_pending_order"`
	Available             int64     `json:"available"`
	StockValue            float64   `json:"stock_value"`
	StockValueLabel       string    `json:"stock_value_label"`
	NeedsReorder          bool      `json:"needs_reorder"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TopItem is one ranked row of the stock top dashboard.
type TopItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Qty        int64     `json:"qty"`
	Value      float64   `json:"value"`
	ValueLabel string    `json:"value_label"`
}

// TopResult ranks products by the chosen metric and folds the
// remainder into a single others bucket.
type TopResult struct {
	Metric      TopMetric `json:"metric"`
	Items       []TopItem `json:"items"`
	OthersQty   int64     `json:"others_qty"`
	OthersValue float64   `json:"others_value"`
}

// PieRange selects the date window of the sales pie: either a preset
// or an explicit start/end pair (YYYY-MM-DD, end defaults to today).
type PieRange struct {
	Preset string
	Start  string
	End    string
	Limit  int
}

// Presets accepted by the sales pie.
const (
	PresetMonth       = "month"
	PresetThreeMonths = "3months"
	PresetYear        = "year"
)

// ErrInvalidRange flags an unparsable or inverted pie date range.
var ErrInvalidRange = errors.New("analytics: invalid date range")
