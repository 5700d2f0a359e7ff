package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/x-run/PipeStock/internal/shared"
)

// memoryRepo is an in-memory RepositoryPort with the same transaction
// discipline as the SQL repository: inserts stage inside WithTx and
// apply only when the callback succeeds.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]Entry
	heads   map[uuid.UUID]int64
}

func newMemoryRepo(productIDs ...uuid.UUID) *memoryRepo {
	repo := &memoryRepo{
		entries: make(map[uuid.UUID][]Entry),
		heads:   make(map[uuid.UUID]int64),
	}
	for _, id := range productIDs {
		repo.heads[id] = 1
	}
	return repo
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{repo: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, e := range tx.staged {
		m.entries[e.ProductID] = append(m.entries[e.ProductID], e)
	}
	if tx.bumped != uuid.Nil {
		m.heads[tx.bumped]++
	}
	return nil
}

func (m *memoryRepo) SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Sum(m.entries[productID]), nil
}

func (m *memoryRepo) List(ctx context.Context, filter HistoryFilter) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	all := m.entries[filter.ProductID]
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Bucket != "" && e.Bucket != filter.Bucket {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memoryRepo) entryCount(productID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[productID])
}

type memoryTx struct {
	repo   *memoryRepo
	staged []Entry
	bumped uuid.UUID
}

func (t *memoryTx) LockStockHead(ctx context.Context, productID uuid.UUID) (int64, error) {
	version, ok := t.repo.heads[productID]
	if !ok {
		return 0, ErrStockHeadMissing
	}
	return version, nil
}

func (t *memoryTx) BumpStockHead(ctx context.Context, productID uuid.UUID, expectedVersion int64) error {
	if t.repo.heads[productID] != expectedVersion {
		return ErrCommitContention
	}
	t.bumped = productID
	return nil
}

func (t *memoryTx) SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error) {
	return Sum(append(t.repo.entries[productID], t.staged...)), nil
}

func (t *memoryTx) InsertEntries(ctx context.Context, entries []Entry) error {
	t.staged = append(t.staged, entries...)
	return nil
}

// flakyRepo fails WithTx with a retryable error a fixed number of
// times before delegating.
type flakyRepo struct {
	*memoryRepo
	mu       sync.Mutex
	failures int
}

func (f *flakyRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return ErrCommitContention
	}
	f.mu.Unlock()
	return f.memoryRepo.WithTx(ctx, fn)
}

type stubProducts struct {
	states map[uuid.UUID]ProductState
}

func (s *stubProducts) ProductState(ctx context.Context, id uuid.UUID) (ProductState, error) {
	return s.states[id], nil
}

type memoryIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	idem      *memoryIdem
	productID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	productID := uuid.New()
	repo := newMemoryRepo(productID)
	idem := newMemoryIdem()
	products := &stubProducts{states: map[uuid.UUID]ProductState{
		productID: {Exists: true, Active: true},
	}}
	svc := NewService(repo, products, idem, nil, nil, ServiceConfig{})
	return &fixture{svc: svc, repo: repo, idem: idem, productID: productID}
}

func (f *fixture) mustCommit(t *testing.T, ops ...Operation) StockLevel {
	t.Helper()
	_, level, err := f.svc.Commit(context.Background(), f.productID, ops)
	require.NoError(t, err)
	return level
}

func TestCommitSingleOperation(t *testing.T) {
	f := newFixture(t)

	entries, level, err := f.svc.Commit(context.Background(), f.productID, []Operation{
		{Kind: KindIn, Qty: 10, Note: "receiving"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, BucketOnHand, entries[0].Bucket)
	require.Equal(t, int64(10), entries[0].Delta)
	require.Equal(t, StockLevel{OnHand: 10}, level)
	require.Equal(t, int64(10), level.Available())
}

func TestCommitBatchSizeBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Commit(ctx, f.productID, nil)
	require.ErrorIs(t, err, ErrBatchSize)

	ops := make([]Operation, 11)
	for i := range ops {
		ops[i] = Operation{Kind: KindIn, Qty: 1}
	}
	_, _, err = f.svc.Commit(ctx, f.productID, ops)
	require.ErrorIs(t, err, ErrBatchSize)
	require.Zero(t, f.repo.entryCount(f.productID))
}

func TestCommitShapeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Commit(ctx, f.productID, []Operation{{Kind: KindAdjust, Qty: 1}})
	require.ErrorIs(t, err, ErrInvalidCombination)

	_, _, err = f.svc.Commit(ctx, f.productID, []Operation{{Kind: KindOut, Qty: 0}})
	require.ErrorIs(t, err, ErrInvalidMagnitude)
	require.Zero(t, f.repo.entryCount(f.productID))
}

func TestCommitUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Commit(context.Background(), uuid.New(), []Operation{{Kind: KindIn, Qty: 1}})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCommitInactiveProduct(t *testing.T) {
	productID := uuid.New()
	repo := newMemoryRepo(productID)
	products := &stubProducts{states: map[uuid.UUID]ProductState{
		productID: {Exists: true, Active: false},
	}}
	svc := NewService(repo, products, newMemoryIdem(), nil, nil, ServiceConfig{})

	// Even inbound movements are rejected on an inactive product.
	_, _, err := svc.Commit(context.Background(), productID, []Operation{{Kind: KindIn, Qty: 1}})
	require.ErrorIs(t, err, ErrProductInactive)
	require.Zero(t, repo.entryCount(productID))
}

func TestCommitExactBoundary(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 5})

	// Consuming exactly the on-hand quantity succeeds.
	level := f.mustCommit(t, Operation{Kind: KindOut, Qty: 5})
	require.Equal(t, StockLevel{}, level)

	// One more unit fails and leaves the ledger untouched.
	before := f.repo.entryCount(f.productID)
	_, _, err := f.svc.Commit(context.Background(), f.productID, []Operation{{Kind: KindOut, Qty: 1}})
	require.ErrorIs(t, err, ErrInsufficientOnHand)
	require.Equal(t, before, f.repo.entryCount(f.productID))
}

func TestCommitReserveUpToAvailable(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 10})

	level := f.mustCommit(t, Operation{Kind: KindReserve, Qty: 10})
	require.Equal(t, int64(0), level.Available())

	_, _, err := f.svc.Commit(context.Background(), f.productID, []Operation{{Kind: KindReserve, Qty: 1}})
	require.ErrorIs(t, err, ErrInsufficientAvailable)
}

func TestCommitBatchValidatedOnCombinedState(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 10}, Operation{Kind: KindReserve, Qty: 10})

	// Reserve-then-in would fail on the intermediate state; combined it
	// nets out and must commit.
	level := f.mustCommit(t,
		Operation{Kind: KindReserve, Qty: 5},
		Operation{Kind: KindIn, Qty: 5},
	)
	require.Equal(t, StockLevel{OnHand: 15, Reserved: 15}, level)
}

func TestCommitBatchAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 100})
	before := f.repo.entryCount(f.productID)

	_, _, err := f.svc.Commit(context.Background(), f.productID, []Operation{
		{Kind: KindIn, Qty: 10},
		{Kind: KindOut, Qty: 1000},
	})
	require.ErrorIs(t, err, ErrInsufficientOnHand)
	// The valid first descriptor must not have been persisted either.
	require.Equal(t, before, f.repo.entryCount(f.productID))

	level, err := f.svc.Aggregate(context.Background(), f.productID)
	require.NoError(t, err)
	require.Equal(t, StockLevel{OnHand: 100}, level)
}

func TestCommitCompositeFlows(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 100})

	// Return arrival: goods come in but stay locked until inspection.
	level := f.mustCommit(t,
		Operation{Kind: KindIn, Qty: 10, Note: "RETURN_PENDING"},
		Operation{Kind: KindReserve, Qty: 10, Note: "RETURN_PENDING"},
	)
	require.Equal(t, StockLevel{OnHand: 110, Reserved: 10}, level)

	// Inspection passes 7 units back into free stock.
	level = f.mustCommit(t, Operation{Kind: KindUnreserve, Qty: 7})
	require.Equal(t, StockLevel{OnHand: 110, Reserved: 3}, level)

	// The remaining 3 fail inspection and are scrapped in one unit.
	level = f.mustCommit(t,
		Operation{Kind: KindUnreserve, Qty: 3},
		Operation{Kind: KindOut, Qty: 3, Note: "scrap"},
	)
	require.Equal(t, StockLevel{OnHand: 107, Reserved: 0}, level)
	require.Equal(t, int64(107), level.Available())
}

func TestCommitIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reqID := uuid.New()

	f.mustCommit(t, Operation{Kind: KindIn, Qty: 10, RequestID: &reqID})

	_, _, err := f.svc.Commit(ctx, f.productID, []Operation{{Kind: KindIn, Qty: 10, RequestID: &reqID}})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	level, err := f.svc.Aggregate(ctx, f.productID)
	require.NoError(t, err)
	require.Equal(t, StockLevel{OnHand: 10}, level, "replay must not re-apply the movement")
}

func TestCommitRejectionReleasesRequestIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reqID := uuid.New()

	// The first attempt fails an invariant; its request id must be
	// reclaimable once stock arrives.
	_, _, err := f.svc.Commit(ctx, f.productID, []Operation{{Kind: KindOut, Qty: 5, RequestID: &reqID}})
	require.ErrorIs(t, err, ErrInsufficientOnHand)

	f.mustCommit(t, Operation{Kind: KindIn, Qty: 5})
	f.mustCommit(t, Operation{Kind: KindOut, Qty: 5, RequestID: &reqID})
}

func TestCommitDuplicateInBatchClaimsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 10})

	used := uuid.New()
	f.mustCommit(t, Operation{Kind: KindOut, Qty: 1, RequestID: &used})

	fresh := uuid.New()
	_, _, err := f.svc.Commit(ctx, f.productID, []Operation{
		{Kind: KindOut, Qty: 1, RequestID: &fresh},
		{Kind: KindOut, Qty: 1, RequestID: &used},
	})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// The fresh id was rolled back with the rejected batch.
	f.mustCommit(t, Operation{Kind: KindOut, Qty: 1, RequestID: &fresh})
}

func TestCommitRetriesContention(t *testing.T) {
	productID := uuid.New()
	flaky := &flakyRepo{memoryRepo: newMemoryRepo(productID), failures: 2}
	products := &stubProducts{states: map[uuid.UUID]ProductState{
		productID: {Exists: true, Active: true},
	}}
	svc := NewService(flaky, products, newMemoryIdem(), nil, nil, ServiceConfig{RetryAttempts: 3})

	_, level, err := svc.Commit(context.Background(), productID, []Operation{{Kind: KindIn, Qty: 1}})
	require.NoError(t, err)
	require.Equal(t, StockLevel{OnHand: 1}, level)
}

func TestCommitContentionExhaustion(t *testing.T) {
	productID := uuid.New()
	flaky := &flakyRepo{memoryRepo: newMemoryRepo(productID), failures: 10}
	products := &stubProducts{states: map[uuid.UUID]ProductState{
		productID: {Exists: true, Active: true},
	}}
	svc := NewService(flaky, products, newMemoryIdem(), nil, nil, ServiceConfig{RetryAttempts: 2})

	_, _, err := svc.Commit(context.Background(), productID, []Operation{{Kind: KindIn, Qty: 1}})
	require.ErrorIs(t, err, ErrCommitContention)
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 30})

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Commit(context.Background(), f.productID, []Operation{{Kind: KindOut, Qty: 1}})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var committed, rejected int
	for err := range results {
		switch {
		case err == nil:
			committed++
		default:
			require.ErrorIs(t, err, ErrInsufficientOnHand)
			rejected++
		}
	}
	require.Equal(t, 30, committed)
	require.Equal(t, 20, rejected)

	level, err := f.svc.Aggregate(context.Background(), f.productID)
	require.NoError(t, err)
	require.Equal(t, StockLevel{}, level)
}

func TestHistoryFiltersAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 10})
	f.mustCommit(t, Operation{Kind: KindReserve, Qty: 4})
	f.mustCommit(t, Operation{Kind: KindOut, Qty: 2})

	entries, total, err := f.svc.History(ctx, HistoryFilter{ProductID: f.productID})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, KindOut, entries[0].Kind, "newest first")

	entries, total, err = f.svc.History(ctx, HistoryFilter{ProductID: f.productID, Bucket: BucketReserved})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, KindReserve, entries[0].Kind)

	_, _, err = f.svc.History(ctx, HistoryFilter{ProductID: uuid.New()})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestEntriesAreAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Commit(ctx, f.productID, []Operation{{Kind: KindIn, Qty: 10}})
	require.NoError(t, err)
	f.mustCommit(t, Operation{Kind: KindOut, Qty: 4})

	// Entries returned earlier are still present and unmodified after
	// later commits.
	entries, total, err := f.svc.History(ctx, HistoryFilter{ProductID: f.productID})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, first[0], entries[len(entries)-1])
}

func TestAggregateMatchesLedgerFold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustCommit(t, Operation{Kind: KindIn, Qty: 42})
	f.mustCommit(t, Operation{Kind: KindAdjust, Qty: 2, Direction: DirectionDecrease})
	f.mustCommit(t, Operation{Kind: KindReserve, Qty: 7})

	level, err := f.svc.Aggregate(ctx, f.productID)
	require.NoError(t, err)

	entries, _, err := f.svc.History(ctx, HistoryFilter{ProductID: f.productID})
	require.NoError(t, err)
	require.Equal(t, Sum(entries), level)
	require.Equal(t, level.OnHand-level.Reserved, level.Available())
}

// flippingProducts reports the product active on the first read and
// inactive on every later one.
type flippingProducts struct {
	calls int
}

func (s *flippingProducts) ProductState(ctx context.Context, id uuid.UUID) (ProductState, error) {
	s.calls++
	return ProductState{Exists: true, Active: s.calls == 1}, nil
}

func TestCommitRechecksActivityInsideCriticalSection(t *testing.T) {
	productID := uuid.New()
	repo := newMemoryRepo(productID)
	svc := NewService(repo, &flippingProducts{}, newMemoryIdem(), nil, nil, ServiceConfig{})

	// The pre-flight read sees an active product; the re-read inside
	// the exclusive section sees the soft delete and rejects.
	_, _, err := svc.Commit(context.Background(), productID, []Operation{{Kind: KindIn, Qty: 1}})
	require.ErrorIs(t, err, ErrProductInactive)
	require.Zero(t, repo.entryCount(productID))
}

type recordingInvalidator struct {
	mu    sync.Mutex
	bumps int
}

func (r *recordingInvalidator) Bump(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumps++
	return nil
}

func TestCommitBumpsViewsOnSuccessOnly(t *testing.T) {
	productID := uuid.New()
	repo := newMemoryRepo(productID)
	products := &stubProducts{states: map[uuid.UUID]ProductState{
		productID: {Exists: true, Active: true},
	}}
	inv := &recordingInvalidator{}
	svc := NewService(repo, products, newMemoryIdem(), nil, nil, ServiceConfig{Invalidator: inv})

	_, _, err := svc.Commit(context.Background(), productID, []Operation{{Kind: KindIn, Qty: 3}})
	require.NoError(t, err)
	require.Equal(t, 1, inv.bumps)

	// A rejected batch leaves the cached views as they are.
	_, _, err = svc.Commit(context.Background(), productID, []Operation{{Kind: KindOut, Qty: 5}})
	require.ErrorIs(t, err, ErrInsufficientOnHand)
	require.Equal(t, 1, inv.bumps)
}
