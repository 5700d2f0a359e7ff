package products

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/x-run/PipeStock/internal/platform/httpx"
	"github.com/x-run/PipeStock/internal/shared"
)

// Handler wires the catalog endpoints under /api/v1/products.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the products handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{productID}", h.handleGet)
	r.Patch("/{productID}", h.handleUpdate)
	r.Delete("/{productID}", h.handleDelete)
}

type createRequest struct {
	Code         string   `json:"code" validate:"required,min=1,max=50"`
	Name         string   `json:"name" validate:"required,min=1,max=200"`
	Spec         *string  `json:"spec,omitempty" validate:"omitempty,max=500"`
	Unit         string   `json:"unit" validate:"required,min=1,max=20"`
	UnitPrice    *float64 `json:"unit_price" validate:"required,gte=0"`
	UnitWeight   *float64 `json:"unit_weight,omitempty" validate:"omitempty,gte=0"`
	ReorderPoint *int     `json:"reorder_point" validate:"required,gte=0"`
}

type updateRequest struct {
	Code         *string  `json:"code,omitempty" validate:"omitempty,min=1,max=50"`
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Spec         *string  `json:"spec,omitempty" validate:"omitempty,max=500"`
	Unit         *string  `json:"unit,omitempty" validate:"omitempty,min=1,max=20"`
	UnitPrice    *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	UnitWeight   *float64 `json:"unit_weight,omitempty" validate:"omitempty,gte=0"`
	ReorderPoint *int     `json:"reorder_point,omitempty" validate:"omitempty,gte=0"`
	Version      *int64   `json:"version" validate:"required"`
}

type productResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Spec         *string   `json:"spec"`
	Unit         string    `json:"unit"`
	UnitPrice    float64   `json:"unit_price"`
	UnitWeight   *float64  `json:"unit_weight"`
	ReorderPoint int       `json:"reorder_point"`
	Active       bool      `json:"active"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type singleEnvelope struct {
	Data productResponse `json:"data"`
}

type listEnvelope struct {
	Data       []productResponse `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type deleteEnvelope struct {
	Data struct {
		ID     uuid.UUID `json:"id"`
		Active bool      `json:"active"`
	} `json:"data"`
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
	product, err := h.service.Create(r.Context(), CreateInput{
		Code:         req.Code,
		Name:         req.Name,
		Spec:         req.Spec,
		Unit:         req.Unit,
		UnitPrice:    *req.UnitPrice,
		UnitWeight:   req.UnitWeight,
		ReorderPoint: *req.ReorderPoint,
	})
	if err != nil {
		h.respondError(w, r, err, req.Code)
		return
	}
	httpx.JSON(w, http.StatusCreated, singleEnvelope{Data: toProductResponse(product)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Q: q.Get("q")}
	if activeStr := q.Get("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			httpx.BadRequest(w, "invalid active filter")
			return
		}
		filter.Active = &active
	}
	filter.Page, filter.PerPage = shared.ParsePageParams(q.Get("page"), q.Get("per_page"))

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err, "")
		return
	}
	data := make([]productResponse, len(items))
	for i, p := range items {
		data[i] = toProductResponse(p)
	}
	httpx.JSON(w, http.StatusOK, listEnvelope{
		Data:       data,
		Pagination: shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, "")
		return
	}
	httpx.JSON(w, http.StatusOK, singleEnvelope{Data: toProductResponse(product)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	input := UpdateInput{
		Code:         req.Code,
		Name:         req.Name,
		Spec:         req.Spec,
		Unit:         req.Unit,
		UnitPrice:    req.UnitPrice,
		UnitWeight:   req.UnitWeight,
		ReorderPoint: req.ReorderPoint,
		Version:      *req.Version,
	}
	product, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		code := ""
		if req.Code != nil {
			code = *req.Code
		}
		h.respondError(w, r, err, code)
		return
	}
	httpx.JSON(w, http.StatusOK, singleEnvelope{Data: toProductResponse(product)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err, "")
		return
	}
	var env deleteEnvelope
	env.Data.ID = id
	env.Data.Active = false
	httpx.JSON(w, http.StatusOK, env)
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, code string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, httpx.CodeProductNotFound, "product not found")
	case errors.Is(err, ErrCodeTaken):
		httpx.BadRequest(w, fmt.Sprintf("product code %q is already in use", code))
	case errors.Is(err, ErrVersionConflict):
		httpx.Conflict(w, httpx.CodeConflict, "product was modified by another request, re-read and retry")
	case errors.Is(err, ErrInvalidInput):
		httpx.BadRequest(w, err.Error())
	default:
		h.logger.Error("products request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Internal(w)
	}
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Spec:         p.Spec,
		Unit:         p.Unit,
		UnitPrice:    p.UnitPrice,
		UnitWeight:   p.UnitWeight,
		ReorderPoint: p.ReorderPoint,
		Active:       p.Active,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
