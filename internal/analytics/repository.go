package analytics

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads stock aggregates from PostgreSQL. All quantities
// come from summing ledger entries at query time; no materialised
// stock column exists anywhere in the schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// onHandExpr is the aggregate behind the on_hand output column. Sort
// expressions must repeat it: PostgreSQL resolves an output alias in
// ORDER BY only as a bare name, never inside an expression.
const onHandExpr = `COALESCE(SUM(l.qty_delta) FILTER (WHERE l.bucket = 'ON_HAND'), 0)`

const stockSelect = `
SELECT p.id, p.code, p.name, p.spec, p.unit, p.unit_price, p.reorder_point, p.active, p.updated_at,
       ` + onHandExpr + ` AS on_hand,
       COALESCE(SUM(l.qty_delta) FILTER (WHERE l.bucket = 'RESERVED'), 0)  AS reserved_total,
       COALESCE(SUM(l.qty_delta) FILTER (WHERE l.bucket = 'RESERVED' AND l.note = '` + ReasonReturnPending + `'), 0) AS reserved_pending_return,
       COALESCE(SUM(l.qty_delta) FILTER (WHERE l.bucket = 'RESERVED' AND l.note = '` + ReasonOrderPending + `'), 0)  AS reserved_pending_order
FROM products p
LEFT JOIN ledger_entries l ON l.product_id = p.id`

// StockRows returns one aggregated row per product matching the
// filter, plus the total match count for pagination.
func (r *Repository) StockRows(ctx context.Context, filter StockFilter) ([]StockItem, int, error) {
	where, args := stockConditions(filter.Query, filter.IncludeInactive)

	var total int
	countQuery := `SELECT COUNT(*) FROM products p` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := stockSelect + where + `
GROUP BY p.id
ORDER BY ` + sortExpr(filter.Sort) + `
LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	items, err := r.queryStock(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AllStock returns every matching product ordered by the given sort,
// without pagination. The top dashboard and the reorder scan fold or
// filter the full set themselves.
func (r *Repository) AllStock(ctx context.Context, includeInactive bool, sort StockSort) ([]StockItem, error) {
	where, args := stockConditions("", includeInactive)
	query := stockSelect + where + `
GROUP BY p.id
ORDER BY ` + sortExpr(sort)
	return r.queryStock(ctx, query, args)
}

func (r *Repository) queryStock(ctx context.Context, query string, args []any) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		var it StockItem
		if err := rows.Scan(
			&it.ProductID, &it.Code, &it.Name, &it.Spec, &it.Unit,
			&it.UnitPrice, &it.ReorderPoint, &it.Active, &it.UpdatedAt,
			&it.OnHand, &it.ReservedTotal, &it.ReservedPendingReturn, &it.ReservedPendingOrder,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func stockConditions(query string, includeInactive bool) (string, []any) {
	var conds []string
	var args []any
	if !includeInactive {
		conds = append(conds, "p.active")
	}
	if query != "" {
		args = append(args, "%"+query+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(p.code ILIKE $"+n+" OR p.name ILIKE $"+n+")")
	}
	if len(conds) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func sortExpr(sort StockSort) string {
	switch sort {
	case SortQtyDesc:
		return onHandExpr + " DESC, p.code"
	case SortQtyAsc:
		return onHandExpr + " ASC, p.code"
	case SortValueDesc:
		return onHandExpr + " * p.unit_price DESC, p.code"
	case SortValueAsc:
		return onHandExpr + " * p.unit_price ASC, p.code"
	default:
		return "p.updated_at DESC, p.code"
	}
}
