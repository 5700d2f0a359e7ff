package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/x-run/PipeStock/internal/platform/httpx"
)

// Handler wires the sales endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
}

type createRequest struct {
	Type       string     `json:"type" validate:"required,oneof=SALE REFUND"`
	AmountYen  int64      `json:"amount_yen" validate:"required,min=1"`
	ProductID  *uuid.UUID `json:"product_id,omitempty"`
	Note       string     `json:"note,omitempty" validate:"omitempty,max=500"`
	RequestID  *uuid.UUID `json:"request_id,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

type eventResponse struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	AmountYen  int64      `json:"amount_yen"`
	ProductID  *uuid.UUID `json:"product_id"`
	Note       *string    `json:"note"`
	RequestID  *uuid.UUID `json:"request_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

type singleEnvelope struct {
	Data eventResponse `json:"data"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	event, err := h.service.Create(r.Context(), CreateInput{
		Type:       EventType(req.Type),
		AmountYen:  req.AmountYen,
		ProductID:  req.ProductID,
		Note:       req.Note,
		RequestID:  req.RequestID,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, singleEnvelope{Data: toEventResponse(event)})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		httpx.BadRequest(w, err.Error())
	case errors.Is(err, ErrProductNotFound):
		httpx.NotFound(w, httpx.CodeProductNotFound, "product not found")
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Conflict(w, httpx.CodeDuplicateRequest, "request_id already processed")
	default:
		h.logger.Error("sales request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Internal(w)
	}
}

func toEventResponse(e Event) eventResponse {
	resp := eventResponse{
		ID:         e.ID,
		Type:       string(e.Type),
		AmountYen:  e.AmountYen,
		ProductID:  e.ProductID,
		RequestID:  e.RequestID,
		OccurredAt: e.OccurredAt,
	}
	if e.Note != "" {
		note := e.Note
		resp.Note = &note
	}
	return resp
}
