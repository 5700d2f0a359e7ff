package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, e Event) error
	PieTotals(ctx context.Context, start, end time.Time) (total, refunds int64, err error)
	PieGroups(ctx context.Context, start, end time.Time) ([]groupRow, error)
}

// CatalogPort answers whether a referenced product exists.
type CatalogPort interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service coordinates sales event recording and aggregation.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort) *Service {
	return &Service{repo: repo, catalog: catalog, now: func() time.Time { return time.Now().UTC() }}
}

// Create records one sales event. The stored amount sign is derived
// from the event type: refunds are negative.
func (s *Service) Create(ctx context.Context, input CreateInput) (Event, error) {
	if input.Type != EventSale && input.Type != EventRefund {
		return Event{}, ErrInvalidEvent
	}
	if input.AmountYen < 1 {
		return Event{}, ErrInvalidEvent
	}
	if input.ProductID != nil {
		exists, err := s.catalog.Exists(ctx, *input.ProductID)
		if err != nil {
			return Event{}, err
		}
		if !exists {
			return Event{}, ErrProductNotFound
		}
	}
	amount := input.AmountYen
	if input.Type == EventRefund {
		amount = -amount
	}
	occurredAt := s.now()
	if input.OccurredAt != nil {
		occurredAt = input.OccurredAt.UTC()
	}
	event := Event{
		ID:         uuid.New(),
		Type:       input.Type,
		AmountYen:  amount,
		ProductID:  input.ProductID,
		Note:       input.Note,
		RequestID:  input.RequestID,
		OccurredAt: occurredAt,
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Pie aggregates revenue by product for [start, end] dates inclusive,
// keeping the top limit groups and folding the rest into OTHER.
func (s *Service) Pie(ctx context.Context, start, end time.Time, limit int) (PieResult, error) {
	if limit < 1 {
		limit = 10
	}
	startDT := start.Truncate(24 * time.Hour)
	endDT := end.Truncate(24 * time.Hour).Add(24 * time.Hour)

	total, refunds, err := s.repo.PieTotals(ctx, startDT, endDT)
	if err != nil {
		return PieResult{}, err
	}
	groups, err := s.repo.PieGroups(ctx, startDT, endDT)
	if err != nil {
		return PieResult{}, err
	}

	result := PieResult{TotalYen: total, RefundTotalYen: refunds}
	for i, g := range groups {
		if i >= limit {
			break
		}
		result.Breakdown = append(result.Breakdown, toSlice(g))
	}
	if len(groups) > limit {
		var otherSum int64
		for _, g := range groups[limit:] {
			otherSum += g.AmountYen
		}
		result.Breakdown = append(result.Breakdown, PieSlice{Key: "OTHER", Label: "その他", AmountYen: otherSum})
	}
	return result, nil
}

func toSlice(g groupRow) PieSlice {
	if g.ProductID == nil {
		return PieSlice{Key: "UNKNOWN", Label: "不明な商品", AmountYen: g.AmountYen}
	}
	return PieSlice{
		Key:       g.ProductID.String(),
		Label:     fmt.Sprintf("%s %s", g.Code, g.Name),
		AmountYen: g.AmountYen,
	}
}
