package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/x-run/PipeStock/internal/platform/db"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, spec, unit, unit_price, unit_weight, reorder_point, active, version, created_at, updated_at`

// Create inserts the product together with its ledger stock head in
// one transaction, so the ledger can always lock the head row.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO products (id, code, name, spec, unit, unit_price, unit_weight, reorder_point, active, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			p.ID, p.Code, p.Name, p.Spec, p.Unit, p.UnitPrice, p.UnitWeight, p.ReorderPoint, p.Active, p.Version, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO stock_heads (product_id, version) VALUES ($1, 1)`, p.ID)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// Get fetches one product by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

// List pages the catalog, optionally filtered by activity and a
// code/name search term.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where += ` AND active=$` + strconv.Itoa(len(args))
	}
	if filter.Q != "" {
		args = append(args, "%"+filter.Q+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (code ILIKE $` + n + ` OR name ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total); err != nil {
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
	args = append(args, perPage, (page-1)*perPage)
	n := len(args)
	query := `SELECT ` + productColumns + ` FROM products ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n-1) + ` OFFSET $` + strconv.Itoa(n)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update writes the product guarded by its optimistic version.
func (r *Repository) Update(ctx context.Context, p Product, expectedVersion int64) (Product, error) {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `UPDATE products
SET code=$1, name=$2, spec=$3, unit=$4, unit_price=$5, unit_weight=$6, reorder_point=$7, version=version+1, updated_at=$8
WHERE id=$9 AND version=$10`,
		p.Code, p.Name, p.Spec, p.Unit, p.UnitPrice, p.UnitWeight, p.ReorderPoint, p.UpdatedAt, p.ID, expectedVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, ErrCodeTaken
		}
		return Product{}, err
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	return p, nil
}

// SoftDelete flips the active flag and bumps the version. History
// stays readable; only new ledger operations are refused.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET active=false, version=version+1, updated_at=$1 WHERE id=$2`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Spec, &p.Unit, &p.UnitPrice, &p.UnitWeight, &p.ReorderPoint, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
