package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/x-run/PipeStock/internal/sales"
	"github.com/x-run/PipeStock/internal/shared"
)

// StockPort abstracts the aggregate queries for the service.
type StockPort interface {
	StockRows(ctx context.Context, filter StockFilter) ([]StockItem, int, error)
	AllStock(ctx context.Context, includeInactive bool, sort StockSort) ([]StockItem, error)
}

// PiePort provides the revenue breakdown for a resolved date range.
type PiePort interface {
	Pie(ctx context.Context, start, end time.Time, limit int) (sales.PieResult, error)
}

// Service assembles the cached read views. Concurrent cache misses for
// the same key collapse into a single repository load.
type Service struct {
	repo  StockPort
	pies  PiePort
	cache *Cache
	group singleflight.Group
	yen   *message.Printer
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo StockPort, pies PiePort, cache *Cache) *Service {
	return &Service{
		repo:  repo,
		pies:  pies,
		cache: cache,
		yen:   message.NewPrinter(language.Japanese),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

const (
	defaultTopLimit = 5
	maxTopLimit     = 20
	defaultPieLimit = 10
)

type stockListPayload struct {
	Items []StockItem `json:"items"`
	Total int         `json:"total"`
}

// StockList returns the per-product stock breakdown with derived
// figures filled in.
func (s *Service) StockList(ctx context.Context, filter StockFilter) ([]StockItem, shared.Pagination, error) {
	if !ValidSort(filter.Sort) {
		filter.Sort = SortUpdatedDesc
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}

	key, err := s.cache.BuildKey(ctx, keyStockList(filter))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	var payload stockListPayload
	err = s.cache.FetchJSON(ctx, key, &payload, func(ctx context.Context) (interface{}, error) {
		return s.loadShared(ctx, key, func(ctx context.Context) (interface{}, error) {
			items, total, err := s.repo.StockRows(ctx, filter)
			if err != nil {
				return nil, err
			}
			for i := range items {
				s.finish(&items[i])
			}
			return stockListPayload{Items: items, Total: total}, nil
		})
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return payload.Items, shared.NewPagination(filter.Page, filter.PerPage, payload.Total), nil
}

// StockTop ranks products by quantity or stock value and folds the
// rest into a single others bucket.
func (s *Service) StockTop(ctx context.Context, metric TopMetric, limit int, includeInactive bool) (TopResult, error) {
	if metric != MetricValue {
		metric = MetricQty
	}
	if limit < 1 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	key, err := s.cache.BuildKey(ctx, keyStockTop(metric, limit, includeInactive))
	if err != nil {
		return TopResult{}, err
	}
	var result TopResult
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		return s.loadShared(ctx, key, func(ctx context.Context) (interface{}, error) {
			sort := SortQtyDesc
			if metric == MetricValue {
				sort = SortValueDesc
			}
			rows, err := s.repo.AllStock(ctx, includeInactive, sort)
			if err != nil {
				return nil, err
			}
			return s.buildTop(metric, limit, rows), nil
		})
	})
	if err != nil {
		return TopResult{}, err
	}
	return result, nil
}

// SalesPie resolves the requested date range and returns the cached
// revenue breakdown.
func (s *Service) SalesPie(ctx context.Context, r PieRange) (sales.PieResult, error) {
	start, end, err := s.resolveRange(r)
	if err != nil {
		return sales.PieResult{}, err
	}
	limit := r.Limit
	if limit < 1 {
		limit = defaultPieLimit
	}

	key, err := s.cache.BuildKey(ctx, keySalesPie(start, end, limit))
	if err != nil {
		return sales.PieResult{}, err
	}
	var result sales.PieResult
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		return s.loadShared(ctx, key, func(ctx context.Context) (interface{}, error) {
			return s.pies.Pie(ctx, start, end, limit)
		})
	})
	if err != nil {
		return sales.PieResult{}, err
	}
	return result, nil
}

// ReorderCandidates returns active products whose available stock sits
// at or below their reorder point. Served uncached; the scan runs on a
// schedule, not per request.
func (s *Service) ReorderCandidates(ctx context.Context) ([]StockItem, error) {
	rows, err := s.repo.AllStock(ctx, false, SortQtyAsc)
	if err != nil {
		return nil, err
	}
	var candidates []StockItem
	for i := range rows {
		s.finish(&rows[i])
		if rows[i].NeedsReorder {
			candidates = append(candidates, rows[i])
		}
	}
	return candidates, nil
}

func (s *Service) buildTop(metric TopMetric, limit int, rows []StockItem) TopResult {
	result := TopResult{Metric: metric}
	for i := range rows {
		s.finish(&rows[i])
		if i < limit {
			result.Items = append(result.Items, TopItem{
				ProductID:  rows[i].ProductID,
				Code:       rows[i].Code,
				Name:       rows[i].Name,
				Qty:        rows[i].OnHand,
				Value:      rows[i].StockValue,
				ValueLabel: rows[i].StockValueLabel,
			})
			continue
		}
		result.OthersQty += rows[i].OnHand
		result.OthersValue += rows[i].StockValue
	}
	return result
}

// finish computes the derived columns on a repository row: available
// stock, value at unit price, and the reorder flag.
func (s *Service) finish(it *StockItem) {
	it.Available = it.OnHand - it.ReservedTotal
	it.StockValue = float64(it.OnHand) * it.UnitPrice
	it.NeedsReorder = it.Available <= int64(it.ReorderPoint)
	it.StockValueLabel = s.yen.Sprintf("¥%d", int64(it.StockValue))
}

func (s *Service) resolveRange(r PieRange) (time.Time, time.Time, error) {
	today := s.now().Truncate(24 * time.Hour)
	switch r.Preset {
	case PresetMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), today, nil
	case PresetThreeMonths:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
		return start, today, nil
	case PresetYear:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
		return start, today, nil
	case "":
	default:
		return time.Time{}, time.Time{}, ErrInvalidRange
	}

	if r.Start == "" {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	start, err := time.ParseInLocation("2006-01-02", r.Start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	end := today
	if r.End != "" {
		end, err = time.ParseInLocation("2006-01-02", r.End, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidRange
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, end, nil
}

// loadShared funnels concurrent builds of the same key through one
// loader call while still honouring the caller's context.
func (s *Service) loadShared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		return res.Val, res.Err
	}
}
