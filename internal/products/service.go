package products

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/x-run/PipeStock/internal/ledger"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Update(ctx context.Context, p Product, expectedVersion int64) (Product, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Service implements catalog business rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a new product and its stock head.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	if err := validateCreate(input); err != nil {
		return Product{}, err
	}
	p := Product{
		ID:           uuid.New(),
		Code:         strings.TrimSpace(input.Code),
		Name:         strings.TrimSpace(input.Name),
		Spec:         input.Spec,
		Unit:         strings.TrimSpace(input.Unit),
		UnitPrice:    input.UnitPrice,
		UnitWeight:   input.UnitWeight,
		ReorderPoint: input.ReorderPoint,
		Active:       true,
		Version:      1,
	}
	return s.repo.Create(ctx, p)
}

// Get fetches one product.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.Get(ctx, id)
}

// List pages the catalog.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	return s.repo.List(ctx, filter)
}

// Update applies a partial update under optimistic locking. The
// caller must send the version it last read; a mismatch means another
// writer won the race and the caller should re-read and retry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Product, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if current.Version != input.Version {
		return Product{}, ErrVersionConflict
	}
	next := current
	if input.Code != nil {
		next.Code = strings.TrimSpace(*input.Code)
	}
	if input.Name != nil {
		next.Name = strings.TrimSpace(*input.Name)
	}
	if input.Spec != nil {
		next.Spec = input.Spec
	}
	if input.Unit != nil {
		next.Unit = strings.TrimSpace(*input.Unit)
	}
	if input.UnitPrice != nil {
		next.UnitPrice = *input.UnitPrice
	}
	if input.UnitWeight != nil {
		next.UnitWeight = input.UnitWeight
	}
	if input.ReorderPoint != nil {
		next.ReorderPoint = *input.ReorderPoint
	}
	if err := validateFields(next); err != nil {
		return Product{}, err
	}
	return s.repo.Update(ctx, next, input.Version)
}

// Delete soft-deletes: the product stays for history but refuses new
// ledger operations.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// ErrInvalidInput flags create/update field violations.
var ErrInvalidInput = errors.New("products: invalid input")

func validateCreate(input CreateInput) error {
	return validateFields(Product{
		Code:         input.Code,
		Name:         input.Name,
		Unit:         input.Unit,
		UnitPrice:    input.UnitPrice,
		UnitWeight:   input.UnitWeight,
		ReorderPoint: input.ReorderPoint,
	})
}

func validateFields(p Product) error {
	if strings.TrimSpace(p.Code) == "" || strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Unit) == "" {
		return ErrInvalidInput
	}
	if p.UnitPrice < 0 || p.ReorderPoint < 0 {
		return ErrInvalidInput
	}
	if p.UnitWeight != nil && *p.UnitWeight < 0 {
		return ErrInvalidInput
	}
	return nil
}

// Gate adapts the catalog for the ledger engine's activity lookup.
type Gate struct {
	repo RepositoryPort
}

// NewGate builds the ledger-facing product gate.
func NewGate(repo RepositoryPort) Gate {
	return Gate{repo: repo}
}

// Exists reports whether a product id is known to the catalog.
func (g Gate) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	state, err := g.ProductState(ctx, id)
	if err != nil {
		return false, err
	}
	return state.Exists, nil
}

// ProductState reports existence and activity for one product id.
func (g Gate) ProductState(ctx context.Context, id uuid.UUID) (ledger.ProductState, error) {
	p, err := g.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ledger.ProductState{}, nil
		}
		return ledger.ProductState{}, err
	}
	return ledger.ProductState{Exists: true, Active: p.Active}, nil
}
