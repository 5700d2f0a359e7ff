package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/x-run/PipeStock/internal/shared"
)

const (
	maxBatchSize         = 10
	defaultRetryAttempts = 3
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error)
	List(ctx context.Context, filter HistoryFilter) ([]Entry, int, error)
}

// ProductState is what the engine needs to know about a product. The
// catalog owns products; the engine only queries them.
type ProductState struct {
	Exists bool
	Active bool
}

// ProductPort supplies product identity and activity from the catalog.
type ProductPort interface {
	ProductState(ctx context.Context, id uuid.UUID) (ProductState, error)
}

// IdempotencyPort remembers processed request identifiers.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// CommitObserver is notified of commit outcomes, for metrics.
type CommitObserver interface {
	ObserveCommit(result string)
}

// ViewInvalidator drops derived read views after a successful commit,
// so cached stock aggregates never outlive the entries behind them.
type ViewInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// RetryAttempts bounds internal retries on transaction contention.
	RetryAttempts int
	// Invalidator, when set, is bumped after every committed batch.
	Invalidator ViewInvalidator
}

// Service is the atomic commit coordinator: the only way ledger
// entries come into existence. It serialises commits per product and
// applies each request's operations as one all-or-nothing unit.
type Service struct {
	repo        RepositoryPort
	products    ProductPort
	idempotency IdempotencyPort
	locks       *shared.KeyedMutex
	logger      *slog.Logger
	observer    CommitObserver
	invalidator ViewInvalidator
	attempts    int
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, products ProductPort, idem IdempotencyPort, logger *slog.Logger, observer CommitObserver, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return &Service{
		repo:        repo,
		products:    products,
		idempotency: idem,
		locks:       shared.NewKeyedMutex(0),
		logger:      logger,
		observer:    observer,
		invalidator: cfg.Invalidator,
		attempts:    attempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Commit applies 1..10 operations for one product as a single unit.
// It returns the created entries and the post-commit stock level, or
// an error with nothing written.
func (s *Service) Commit(ctx context.Context, productID uuid.UUID, ops []Operation) ([]Entry, StockLevel, error) {
	if len(ops) < 1 || len(ops) > maxBatchSize {
		return nil, StockLevel{}, ErrBatchSize
	}

	// Shape validation happens before any aggregate is read.
	effects := make([]Effect, len(ops))
	for i, op := range ops {
		eff, err := op.Effect()
		if err != nil {
			return nil, StockLevel{}, err
		}
		effects[i] = eff
	}

	state, err := s.products.ProductState(ctx, productID)
	if err != nil {
		return nil, StockLevel{}, err
	}
	if !state.Exists {
		return nil, StockLevel{}, ErrProductNotFound
	}

	// Duplicate request ids are rejected before touching the ledger.
	insertedKeys, err := s.claimRequestIDs(ctx, ops)
	if err != nil {
		s.observe(err)
		return nil, StockLevel{}, err
	}

	entries, level, err := s.commitSerialized(ctx, productID, ops, effects)
	if err != nil {
		s.releaseRequestIDs(ctx, insertedKeys)
		s.observe(err)
		return nil, StockLevel{}, err
	}
	s.observe(nil)
	s.bumpViews(ctx)
	return entries, level, nil
}

// Aggregate recomputes {on_hand, reserved, available} from the ledger.
func (s *Service) Aggregate(ctx context.Context, productID uuid.UUID) (StockLevel, error) {
	state, err := s.products.ProductState(ctx, productID)
	if err != nil {
		return StockLevel{}, err
	}
	if !state.Exists {
		return StockLevel{}, ErrProductNotFound
	}
	return s.repo.SumByBucket(ctx, productID)
}

// History lists committed entries newest-first, filterable by kind and
// bucket.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Entry, int, error) {
	state, err := s.products.ProductState(ctx, filter.ProductID)
	if err != nil {
		return nil, 0, err
	}
	if !state.Exists {
		return nil, 0, ErrProductNotFound
	}
	return s.repo.List(ctx, filter)
}

// commitSerialized holds the product's exclusive section across the
// read-aggregate, validate and append sequence. Commits for different
// products proceed in parallel.
func (s *Service) commitSerialized(ctx context.Context, productID uuid.UUID, ops []Operation, effects []Effect) ([]Entry, StockLevel, error) {
	key := productID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var (
		entries []Entry
		level   StockLevel
	)
	for attempt := 1; ; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			version, err := tx.LockStockHead(ctx, productID)
			if err != nil {
				return err
			}
			// The activity flag is re-read inside the exclusive
			// section: a soft delete racing this commit must not
			// gain an entry on the deactivated product.
			state, err := s.products.ProductState(ctx, productID)
			if err != nil {
				return err
			}
			if !state.Exists {
				return ErrProductNotFound
			}
			current, err := tx.SumByBucket(ctx, productID)
			if err != nil {
				return err
			}
			next, err := Validate(state.Active, current, effects)
			if err != nil {
				return err
			}
			now := s.now()
			entries = make([]Entry, len(ops))
			for i, op := range ops {
				entries[i] = Entry{
					ID:        uuid.New(),
					ProductID: productID,
					Kind:      op.Kind,
					Bucket:    effects[i].Bucket,
					Delta:     effects[i].Delta,
					Note:      op.Note,
					RequestID: op.RequestID,
					CreatedAt: now,
				}
			}
			if err := tx.InsertEntries(ctx, entries); err != nil {
				return err
			}
			if err := tx.BumpStockHead(ctx, productID, version); err != nil {
				return err
			}
			level = next
			return nil
		})
		if err == nil {
			return entries, level, nil
		}
		if !s.retryable(err) {
			return nil, StockLevel{}, err
		}
		if attempt >= s.attempts {
			s.logger.Warn("ledger commit contention exhausted",
				slog.String("product_id", productID.String()),
				slog.Int("attempts", attempt))
			return nil, StockLevel{}, ErrCommitContention
		}
	}
}

func (s *Service) retryable(err error) bool {
	return isSerializationFailure(err) || errors.Is(err, ErrCommitContention)
}

// claimRequestIDs inserts every request id of the batch into the
// idempotency store, undoing partial claims when one is a duplicate so
// a rejected batch consumes nothing.
func (s *Service) claimRequestIDs(ctx context.Context, ops []Operation) ([]string, error) {
	if s.idempotency == nil {
		return nil, nil
	}
	inserted := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.RequestID == nil {
			continue
		}
		key := op.RequestID.String()
		if err := s.idempotency.CheckAndInsert(ctx, key); err != nil {
			s.releaseRequestIDs(ctx, inserted)
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrDuplicateRequest
			}
			return nil, err
		}
		inserted = append(inserted, key)
	}
	return inserted, nil
}

func (s *Service) releaseRequestIDs(ctx context.Context, keys []string) {
	if s.idempotency == nil {
		return
	}
	for _, key := range keys {
		if err := s.idempotency.Delete(ctx, key); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (s *Service) bumpViews(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("bump stock views", slog.Any("error", err))
	}
}

func (s *Service) observe(err error) {
	if s.observer == nil {
		return
	}
	switch {
	case err == nil:
		s.observer.ObserveCommit("committed")
	case errors.Is(err, ErrDuplicateRequest):
		s.observer.ObserveCommit("duplicate")
	case errors.Is(err, ErrCommitContention):
		s.observer.ObserveCommit("contention")
	default:
		s.observer.ObserveCommit("rejected")
	}
}
