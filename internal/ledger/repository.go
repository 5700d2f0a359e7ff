package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one commit
// transaction. There is intentionally no update or delete on entries.
type TxRepository interface {
	LockStockHead(ctx context.Context, productID uuid.UUID) (int64, error)
	BumpStockHead(ctx context.Context, productID uuid.UUID, expectedVersion int64) error
	SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error)
	InsertEntries(ctx context.Context, entries []Entry) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// SumByBucket aggregates the product's ledger outside a commit, for
// read-only stock queries.
func (r *Repository) SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error) {
	return sumByBucket(ctx, r.pool, productID)
}

// List returns entries newest-first with optional kind/bucket filters.
func (r *Repository) List(ctx context.Context, filter HistoryFilter) ([]Entry, int, error) {
	where := `WHERE product_id=$1`
	args := []any{filter.ProductID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where += ` AND kind=$2`
	}
	if filter.Bucket != "" {
		args = append(args, string(filter.Bucket))
		if filter.Kind != "" {
			where += ` AND bucket=$3`
		} else {
			where += ` AND bucket=$2`
		}
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limitArgs := append(args, perPage, (page-1)*perPage)
	n := len(args)
	query := `SELECT id, product_id, kind, bucket, qty_delta, note, request_id, occurred_at
FROM ledger_entries ` + where + ` ORDER BY occurred_at DESC, seq DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)

	rows, err := r.pool.Query(ctx, query, limitArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var note *string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Kind, &e.Bucket, &e.Delta, &note, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if note != nil {
			e.Note = *note
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *txRepository) LockStockHead(ctx context.Context, productID uuid.UUID) (int64, error) {
	var version int64
	err := r.tx.QueryRow(ctx, `SELECT version FROM stock_heads WHERE product_id=$1 FOR UPDATE`, productID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrStockHeadMissing
		}
		return 0, err
	}
	return version, nil
}

func (r *txRepository) BumpStockHead(ctx context.Context, productID uuid.UUID, expectedVersion int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_heads SET version=version+1 WHERE product_id=$1 AND version=$2`, productID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommitContention
	}
	return nil
}

func (r *txRepository) SumByBucket(ctx context.Context, productID uuid.UUID) (StockLevel, error) {
	return sumByBucket(ctx, r.tx, productID)
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (id, product_id, kind, bucket, qty_delta, note, request_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.ID, e.ProductID, string(e.Kind), string(e.Bucket), e.Delta, nullString(e.Note), e.RequestID, e.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateRequest
			}
			return err
		}
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func sumByBucket(ctx context.Context, q queryer, productID uuid.UUID) (StockLevel, error) {
	rows, err := q.Query(ctx, `SELECT bucket, COALESCE(SUM(qty_delta), 0)
FROM ledger_entries WHERE product_id=$1 GROUP BY bucket`, productID)
	if err != nil {
		return StockLevel{}, err
	}
	defer rows.Close()

	var level StockLevel
	for rows.Next() {
		var bucket string
		var total int64
		if err := rows.Scan(&bucket, &total); err != nil {
			return StockLevel{}, err
		}
		switch Bucket(bucket) {
		case BucketOnHand:
			level.OnHand = total
		case BucketReserved:
			level.Reserved = total
		}
	}
	if err := rows.Err(); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure reports whether the transaction aborted on a
// concurrency conflict worth retrying (serialization failure or deadlock).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
