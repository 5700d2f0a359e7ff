package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates the request id was already claimed.
var ErrIdempotencyConflict = errors.New("shared: request id already processed")

// IdempotencyStore records claimed request identifiers for one owning
// module. Uniqueness comes from the idempotency_keys primary key, so a
// duplicate claim fails regardless of which process raced first.
type IdempotencyStore struct {
	pool   *pgxpool.Pool
	module string
}

// NewIdempotencyStore constructs the store for the given module name.
func NewIdempotencyStore(pool *pgxpool.Pool, module string) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, module: module}
}

// CheckAndInsert claims key, returning ErrIdempotencyConflict when it
// was claimed before.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key string) error {
	if s == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	if key == "" {
		return errors.New("shared: idempotency key required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, s.module, time.Now().UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIdempotencyConflict
	}
	return err
}

// Delete releases a claimed key so a rejected request consumes nothing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("shared: idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// Cleanup removes keys older than the retention window, across all
// modules.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
