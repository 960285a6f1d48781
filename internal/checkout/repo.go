package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/store"
)

type Repo struct{ DB *pgxpool.Pool }

var _ OrderStore = (*Repo)(nil)

// Create reserves stock and inserts the order in one transaction. Any line
// the conditional decrement cannot cover rolls everything back; there are
// no partial orders and no lost stock.
func (r *Repo) Create(ctx context.Context, o *Order, lines []catalog.Line) ([]catalog.StockConflict, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conflicts, err := catalog.DecrementStock(ctx, tx, lines)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, nil // rollback via defer
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return nil, err
	}
	billingJSON, err := json.Marshal(o.Billing)
	if err != nil {
		return nil, err
	}
	paymentJSON, err := json.Marshal(o.Payment)
	if err != nil {
		return nil, err
	}
	totalsJSON, err := json.Marshal(o.Totals)
	if err != nil {
		return nil, err
	}

	var userID *string
	if o.UserID != "" {
		userID = &o.UserID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, status, items, shipping, billing, payment, totals, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.OrderNumber, userID, o.Status, itemsJSON, shippingJSON, billingJSON, paymentJSON, totalsJSON, o.Notes)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

const orderCols = `id, order_number, COALESCE(user_id,''), status, items, shipping, billing, payment, totals,
	COALESCE(notes,''), created_at, updated_at, shipped_at, delivered_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var itemsJSON, shippingJSON, billingJSON, paymentJSON, totalsJSON []byte
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &itemsJSON, &shippingJSON,
		&billingJSON, &paymentJSON, &totalsJSON, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
		&o.ShippedAt, &o.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.New(store.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		b   []byte
		dst any
	}{
		{itemsJSON, &o.Items},
		{shippingJSON, &o.Shipping},
		{billingJSON, &o.Billing},
		{paymentJSON, &o.Payment},
		{totalsJSON, &o.Totals},
	} {
		if err := json.Unmarshal(pair.b, pair.dst); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *Repo) ListAll(ctx context.Context, page, limit int) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		ORDER BY created_at DESC OFFSET $1 LIMIT $2`, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectOrders(rows)
	return out, total, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// UpdateStatus persists a status transition and shipment metadata. The
// transition itself is validated by the service; everything else on the
// order stays immutable.
func (r *Repo) UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string, shippedAt, deliveredAt *time.Time) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders
		SET status=$2,
		    shipping = CASE WHEN $3 <> '' THEN jsonb_set(shipping, '{trackingNumber}', to_jsonb($3::text)) ELSE shipping END,
		    shipped_at = COALESCE($4, shipped_at),
		    delivered_at = COALESCE($5, delivered_at),
		    updated_at = now()
		WHERE id=$1
		RETURNING `+orderCols, id, status, trackingNumber, shippedAt, deliveredAt))
}
