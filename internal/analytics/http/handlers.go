// Package analytichttp exposes the stock list and dashboard views
// over HTTP.
package analytichttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/x-run/PipeStock/internal/analytics"
	"github.com/x-run/PipeStock/internal/platform/httpx"
	"github.com/x-run/PipeStock/internal/sales"
	"github.com/x-run/PipeStock/internal/shared"
)

// Handler wires the analytics endpoints.
type Handler struct {
	logger  *slog.Logger
	service *analytics.Service
}

// NewHandler constructs the analytics handler.
func NewHandler(logger *slog.Logger, service *analytics.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountStock registers the stock list route.
func (h *Handler) MountStock(r chi.Router) {
	r.Get("/", h.handleStockList)
}

// MountDashboard registers the dashboard routes.
func (h *Handler) MountDashboard(r chi.Router) {
	r.Get("/stock/top", h.handleStockTop)
	r.Get("/sales/pie", h.handleSalesPie)
}

type stockListEnvelope struct {
	Data       []analytics.StockItem `json:"data"`
	Pagination shared.Pagination     `json:"pagination"`
}

func (h *Handler) handleStockList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort := analytics.StockSort(q.Get("sort"))
	if s := q.Get("sort"); s != "" && !analytics.ValidSort(sort) {
		httpx.BadRequest(w, "unknown sort")
		return
	}
	page, perPage := shared.ParsePageParams(q.Get("page"), q.Get("per_page"))
	filter := analytics.StockFilter{
		Query:           q.Get("q"),
		Sort:            sort,
		IncludeInactive: q.Get("include_inactive") == "true",
		Page:            page,
		PerPage:         perPage,
	}

	items, pagination, err := h.service.StockList(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []analytics.StockItem{}
	}
	httpx.JSON(w, http.StatusOK, stockListEnvelope{Data: items, Pagination: pagination})
}

type topEnvelope struct {
	Data analytics.TopResult `json:"data"`
}

func (h *Handler) handleStockTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := analytics.TopMetric(q.Get("metric"))
	if m := q.Get("metric"); m != "" && metric != analytics.MetricQty && metric != analytics.MetricValue {
		httpx.BadRequest(w, "metric must be qty or value")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.service.StockTop(r.Context(), metric, limit, q.Get("include_inactive") == "true")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.Items == nil {
		result.Items = []analytics.TopItem{}
	}
	httpx.JSON(w, http.StatusOK, topEnvelope{Data: result})
}

type pieEnvelope struct {
	Data pieResponse `json:"data"`
}

type pieResponse struct {
	TotalYen       int64           `json:"total_yen"`
	RefundTotalYen int64           `json:"refund_total_yen"`
	Breakdown      []pieSliceEntry `json:"breakdown"`
}

type pieSliceEntry struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	AmountYen int64  `json:"amount_yen"`
}

func (h *Handler) handleSalesPie(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	pr := analytics.PieRange{
		Preset: q.Get("preset"),
		Start:  q.Get("start"),
		End:    q.Get("end"),
		Limit:  limit,
	}

	result, err := h.service.SalesPie(r.Context(), pr)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pieEnvelope{Data: toPieResponse(result)})
}

func toPieResponse(result sales.PieResult) pieResponse {
	resp := pieResponse{
		TotalYen:       result.TotalYen,
		RefundTotalYen: result.RefundTotalYen,
		Breakdown:      []pieSliceEntry{},
	}
	for _, s := range result.Breakdown {
		resp.Breakdown = append(resp.Breakdown, pieSliceEntry{Key: s.Key, Label: s.Label, AmountYen: s.AmountYen})
	}
	return resp
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidRange):
		httpx.BadRequest(w, "invalid date range")
	default:
		h.logger.Error("analytics request failed", "path", r.URL.Path, "error", err)
		httpx.Internal(w)
	}
}
