package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tealwick/storefront/internal/store"
)

type UserRepo struct{ DB *pgxpool.Pool }

var _ UserStore = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *User) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(id, email, password_hash, first_name, last_name, phone, role, newsletter)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Role, u.Newsletter)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.New(store.KindConflict, "email already registered")
		}
		return err
	}
	return nil
}

const userCols = `id, email, password_hash, first_name, last_name, phone, role, newsletter, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Phone, &u.Role, &u.Newsletter, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.New(store.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE users SET password_hash=$2, reset_token_hash=NULL, reset_expires_at=NULL, updated_at=now()
		WHERE id=$1`, id, passwordHash)
	return err
}

func (r *UserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE users SET reset_token_hash=$2, reset_expires_at=$3, updated_at=now()
		WHERE id=$1`, id, tokenHash, expiresAt)
	return err
}

func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	return scanUser(r.DB.QueryRow(ctx, `
		SELECT `+userCols+` FROM users
		WHERE reset_token_hash=$1 AND reset_expires_at > $2`, tokenHash, now))
}

type TokenRepo struct{ DB *pgxpool.Pool }

var _ TokenStore = (*TokenRepo)(nil)

func (r *TokenRepo) Create(ctx context.Context, t RefreshToken) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO refresh_tokens(id, user_id, token_hash, expires_at)
		VALUES ($1,$2,$3,$4)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt)
	return err
}

// Rotate is one conditional UPDATE: the guard on revoked_at and expires_at
// means only the first of two concurrent rotations gets a row back.
func (r *TokenRepo) Rotate(ctx context.Context, tokenHash, replacedByHash string, now time.Time) (*RefreshToken, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked_at=$3, replaced_by_hash=$2
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > $3
		RETURNING id, user_id, token_hash, expires_at, revoked_at, replaced_by_hash, created_at`,
		tokenHash, replacedByHash, now)

	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedByHash, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at=$2
		WHERE token_hash=$1 AND revoked_at IS NULL`, tokenHash, now)
	return err
}
