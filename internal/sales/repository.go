package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sales events in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one event. Duplicate request ids are refused by the
// unique index.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sales_events (id, type, amount_yen, product_id, note, request_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, string(e.Type), e.AmountYen, e.ProductID, nullString(e.Note), e.RequestID, e.OccurredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// groupRow is one per-product revenue group.
type groupRow struct {
	ProductID *uuid.UUID
	Code      string
	Name      string
	AmountYen int64
}

// PieTotals sums revenue and refunds within [start, end).
func (r *Repository) PieTotals(ctx context.Context, start, end time.Time) (total, refunds int64, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(amount_yen), 0),
COALESCE(SUM(CASE WHEN type='REFUND' THEN amount_yen ELSE 0 END), 0)
FROM sales_events WHERE occurred_at >= $1 AND occurred_at < $2`, start, end).Scan(&total, &refunds)
	return total, refunds, err
}

// PieGroups returns per-product revenue within [start, end), largest
// first, with product labels resolved.
func (r *Repository) PieGroups(ctx context.Context, start, end time.Time) ([]groupRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.product_id, COALESCE(p.code, ''), COALESCE(p.name, ''), SUM(s.amount_yen)
FROM sales_events s
LEFT JOIN products p ON p.id = s.product_id
WHERE s.occurred_at >= $1 AND s.occurred_at < $2
GROUP BY s.product_id, p.code, p.name
ORDER BY SUM(s.amount_yen) DESC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []groupRow{}
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.ProductID, &g.Code, &g.Name, &g.AmountYen); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
