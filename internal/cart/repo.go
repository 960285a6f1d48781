package cart

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tealwick/storefront/internal/store"
)

// Repo keeps one row per identity; partial unique indexes on user_id and
// session_id enforce it, not application-level locking.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) get(ctx context.Context, id Identity) (*Cart, error) {
	q := `SELECT id, COALESCE(user_id,''), COALESCE(session_id,''), items, total_price, total_items,
	             last_synced_at, created_at, updated_at
	      FROM carts WHERE `
	var arg string
	if id.UserID != "" {
		q += `user_id=$1`
		arg = id.UserID
	} else {
		q += `session_id=$1`
		arg = id.SessionID
	}

	var c Cart
	var itemsJSON []byte
	err := r.DB.QueryRow(ctx, q, arg).Scan(&c.ID, &c.UserID, &c.SessionID, &itemsJSON,
		&c.TotalPrice, &c.TotalItems, &c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, err
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

// GetOrCreate returns the identity's cart, lazily creating an empty one on
// first access. The insert races are settled by ON CONFLICT DO NOTHING plus
// a re-read, so concurrent first accesses converge on the same row.
func (r *Repo) GetOrCreate(ctx context.Context, id Identity) (*Cart, error) {
	if !id.Valid() {
		return nil, store.New(store.KindBadRequest, "either userId or sessionId required")
	}
	c, err := r.get(ctx, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var userID, sessionID *string
	if id.UserID != "" {
		userID = &id.UserID
	} else {
		sessionID = &id.SessionID
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO carts(id, user_id, session_id, items, total_price, total_items)
		VALUES ($1,$2,$3,'[]'::jsonb,0,0)
		ON CONFLICT DO NOTHING`,
		uuid.NewString(), userID, sessionID)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, id)
}

func (r *Repo) Save(ctx context.Context, c *Cart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE carts
		SET items=$2, total_price=$3, total_items=$4, last_synced_at=$5, updated_at=now()
		WHERE id=$1`,
		c.ID, itemsJSON, c.TotalPrice, c.TotalItems, c.LastSyncedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.New(store.KindNotFound, "cart not found")
	}
	return nil
}

// DeleteBySession discards a guest cart after its items were absorbed into a
// user cart, so the session identifier can never reach a duplicate cart.
func (r *Repo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE session_id=$1`, sessionID)
	return err
}
