package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/x-run/PipeStock/internal/platform/httpx"
	"github.com/x-run/PipeStock/internal/shared"
)

// Handler wires the transaction endpoints under /api/v1/products.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transaction routes on the products subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{productID}/transactions", h.handleCreate)
	r.Post("/{productID}/transactions/batch", h.handleCreateBatch)
	r.Get("/{productID}/transactions", h.handleList)
	r.Get("/{productID}/stock", h.handleStock)
}

type txCreateRequest struct {
	Type      string     `json:"type" validate:"required,oneof=IN OUT ADJUST RESERVE UNRESERVE"`
	Qty       int64      `json:"qty" validate:"required,min=1"`
	Direction string     `json:"direction,omitempty" validate:"omitempty,oneof=INCREASE DECREASE"`
	Reason    string     `json:"reason,omitempty" validate:"omitempty,max=500"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
}

type txBatchRequest struct {
	Transactions []txCreateRequest `json:"transactions" validate:"required,min=1,max=10,dive"`
}

type txResponse struct {
	ID        uuid.UUID  `json:"id"`
	ProductID uuid.UUID  `json:"product_id"`
	Type      string     `json:"type"`
	Bucket    string     `json:"bucket"`
	QtyDelta  int64      `json:"qty_delta"`
	Reason    *string    `json:"reason"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type stockSummary struct {
	Available int64 `json:"available"`
	OnHand    int64 `json:"on_hand"`
	Reserved  int64 `json:"reserved"`
}

type txCreateEnvelope struct {
	Data  txResponse   `json:"data"`
	Stock stockSummary `json:"stock"`
}

type txBatchEnvelope struct {
	Data  []txResponse `json:"data"`
	Stock stockSummary `json:"stock"`
}

type txListEnvelope struct {
	Data       []txResponse      `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type stockEnvelope struct {
	Data stockSummary `json:"data"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req txCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	entries, level, err := h.service.Commit(r.Context(), productID, []Operation{req.toOperation()})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txCreateEnvelope{
		Data:  toTxResponse(entries[0]),
		Stock: toStockSummary(level),
	})
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req txBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	ops := make([]Operation, len(req.Transactions))
	for i, tx := range req.Transactions {
		ops[i] = tx.toOperation()
	}
	entries, level, err := h.service.Commit(r.Context(), productID, ops)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	data := make([]txResponse, len(entries))
	for i, e := range entries {
		data[i] = toTxResponse(e)
	}
	httpx.JSON(w, http.StatusCreated, txBatchEnvelope{Data: data, Stock: toStockSummary(level)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := HistoryFilter{
		ProductID: productID,
		Kind:      Kind(q.Get("type")),
		Bucket:    Bucket(q.Get("bucket")),
	}
	filter.Page, filter.PerPage = shared.ParsePageParams(q.Get("page"), q.Get("per_page"))

	entries, total, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	data := make([]txResponse, len(entries))
	for i, e := range entries {
		data[i] = toTxResponse(e)
	}
	httpx.JSON(w, http.StatusOK, txListEnvelope{
		Data:       data,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	level, err := h.service.Aggregate(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockEnvelope{Data: toStockSummary(level)})
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var shortfall *ShortfallError
	switch {
	case errors.Is(err, ErrInvalidCombination), errors.Is(err, ErrInvalidMagnitude), errors.Is(err, ErrBatchSize):
		httpx.BadRequest(w, err.Error())
	case errors.Is(err, ErrProductNotFound):
		httpx.NotFound(w, httpx.CodeProductNotFound, "product not found")
	case errors.Is(err, ErrProductInactive):
		httpx.Error(w, http.StatusBadRequest, httpx.CodeProductInactive, "operations on an inactive product are not allowed")
	case errors.As(err, &shortfall):
		httpx.Conflict(w, shortfallCode(shortfall), fmt.Sprintf("current=%d, after=%d", shortfall.Current, shortfall.Resulting))
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Conflict(w, httpx.CodeDuplicateRequest, "request_id already processed")
	case errors.Is(err, ErrCommitContention), errors.Is(err, ErrStockHeadMissing):
		httpx.Conflict(w, httpx.CodeConflict, "stock commit conflict, please retry")
	default:
		h.logger.Error("ledger request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Internal(w)
	}
}

func shortfallCode(e *ShortfallError) string {
	switch {
	case errors.Is(e.Reason, ErrInsufficientOnHand):
		return httpx.CodeInsufficientOnHand
	case errors.Is(e.Reason, ErrInsufficientReserved):
		return httpx.CodeInsufficientReserved
	default:
		return httpx.CodeInsufficientAvailable
	}
}

func (req txCreateRequest) toOperation() Operation {
	return Operation{
		Kind:      Kind(req.Type),
		Qty:       req.Qty,
		Direction: Direction(req.Direction),
		Note:      req.Reason,
		RequestID: req.RequestID,
	}
}

func toTxResponse(e Entry) txResponse {
	resp := txResponse{
		ID:        e.ID,
		ProductID: e.ProductID,
		Type:      string(e.Kind),
		Bucket:    string(e.Bucket),
		QtyDelta:  e.Delta,
		RequestID: e.RequestID,
		CreatedAt: e.CreatedAt,
	}
	if e.Note != "" {
		note := e.Note
		resp.Reason = &note
	}
	return resp
}

func toStockSummary(level StockLevel) stockSummary {
	return stockSummary{
		Available: level.Available(),
		OnHand:    level.OnHand,
		Reserved:  level.Reserved,
	}
}
