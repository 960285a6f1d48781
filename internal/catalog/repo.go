package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tealwick/storefront/internal/store"
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, slug, name, description, price, image, category, in_stock, stock_quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.Image,
		&p.Category, &p.InStock, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.New(store.KindNotFound, "product not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.Image,
			&p.Category, &p.InStock, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByIDs returns the subset of ids that resolve; missing ids are simply
// absent from the map, callers decide what an unresolvable reference means.
func (r *Repo) GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	if len(ids) == 0 {
		return map[string]*Product{}, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.Image,
			&p.Category, &p.InStock, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}

// Restock adds units and re-opens the in_stock gate.
func (r *Repo) Restock(ctx context.Context, id string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, store.New(store.KindBadRequest, "restock quantity must be positive")
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, in_stock = TRUE, updated_at = now()
		WHERE id=$1
		RETURNING `+productCols, id, qty))
}

// DecrementStock applies one conditional decrement per line inside the
// caller's transaction. The WHERE guard is the authoritative check: a line
// that no longer fits reports a conflict and the caller rolls back, so a
// concurrent order that won the race leaves this one with zero effect.
func DecrementStock(ctx context.Context, tx pgx.Tx, lines []Line) ([]StockConflict, error) {
	var conflicts []StockConflict
	for _, l := range lines {
		ct, err := tx.Exec(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2,
			    in_stock = (stock_quantity - $2 > 0),
			    updated_at = now()
			WHERE id=$1 AND in_stock AND stock_quantity >= $2`,
			l.ProductID, l.Quantity)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			var available int
			var inStock bool
			err := tx.QueryRow(ctx, `SELECT stock_quantity, in_stock FROM products WHERE id=$1`,
				l.ProductID).Scan(&available, &inStock)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			if !inStock {
				available = 0
			}
			conflicts = append(conflicts, StockConflict{
				ProductID: l.ProductID, Requested: l.Quantity, Available: available,
			})
		}
	}
	return conflicts, nil
}
