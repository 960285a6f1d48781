package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tealwick/storefront/internal/store"
)

// UserStore is the identity store: credential and role persistence.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
}

// TokenStore persists refresh-token chain records. Rotate and Revoke are
// conditional single-record writes; that conditionality is the only
// concurrency primitive the rotation model relies on.
type TokenStore interface {
	Create(ctx context.Context, t RefreshToken) error
	// Rotate revokes the usable (unrevoked, unexpired) record matching
	// tokenHash and links its replacement. Returns nil when no usable record
	// matched; of two concurrent rotations only one gets the record.
	Rotate(ctx context.Context, tokenHash, replacedByHash string, now time.Time) (*RefreshToken, error)
	// Revoke marks any unrevoked record matching tokenHash revoked. A miss is
	// a no-op so callers cannot probe chain state.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error
}

// TokenPair is what login/registration/rotation hand back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Service struct {
	Users      UserStore
	Tokens     TokenStore
	Signer     *AccessSigner
	RefreshTTL time.Duration
	BcryptCost int
}

type RegisterInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Newsletter bool
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	u := &User{
		ID:         uuid.NewString(),
		Email:      email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Phone:      in.Phone,
		Role:       RoleCustomer,
		Newsletter: in.Newsletter,
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.BcryptCost)
	if err != nil {
		return nil, nil, err
	}
	u.PasswordHash = string(hash)
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, nil, err
	}
	pair, err := s.Issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	u, err := s.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if store.IsKind(err, store.KindNotFound) {
			return nil, nil, store.New(store.KindUnauthorized, "invalid email or password")
		}
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, store.New(store.KindUnauthorized, "invalid email or password")
	}
	pair, err := s.Issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Issue starts a fresh refresh chain for the user and signs an access token.
// Existing chains are untouched; each login gets its own chain.
func (s *Service) Issue(ctx context.Context, u *User) (*TokenPair, error) {
	access, err := s.Signer.Sign(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	secret := newSecret()
	rec := RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSecret(secret),
		ExpiresAt: time.Now().UTC().Add(s.RefreshTTL),
	}
	if err := s.Tokens.Create(ctx, rec); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: secret}, nil
}

// Rotate is single-use: it retires the presented secret's record and issues
// the next link in the chain. A second presentation of the same secret finds
// the record already revoked and fails closed.
func (s *Service) Rotate(ctx context.Context, presentedSecret string) (*User, *TokenPair, error) {
	now := time.Now().UTC()
	newSecretVal := newSecret()
	newHash := hashSecret(newSecretVal)

	old, err := s.Tokens.Rotate(ctx, hashSecret(presentedSecret), newHash, now)
	if err != nil {
		return nil, nil, err
	}
	if old == nil {
		return nil, nil, store.New(store.KindInvalidToken, "invalid refresh token")
	}

	u, err := s.Users.GetByID(ctx, old.UserID)
	if err != nil {
		if store.IsKind(err, store.KindNotFound) {
			return nil, nil, store.New(store.KindInvalidToken, "invalid refresh token")
		}
		return nil, nil, err
	}

	if err := s.Tokens.Create(ctx, RefreshToken{
		ID:        uuid.NewString(),
		UserID:    old.UserID,
		TokenHash: newHash,
		ExpiresAt: now.Add(s.RefreshTTL),
	}); err != nil {
		return nil, nil, err
	}

	access, err := s.Signer.Sign(u.ID, u.Role)
	if err != nil {
		return nil, nil, err
	}
	return u, &TokenPair{AccessToken: access, RefreshToken: newSecretVal}, nil
}

// RevokeSecret ends the chain at the presented link. Always succeeds.
func (s *Service) RevokeSecret(ctx context.Context, presentedSecret string) error {
	return s.Tokens.Revoke(ctx, hashSecret(presentedSecret), time.Now().UTC())
}

// ForgotPassword stores a hashed reset token valid for one hour and returns
// the secret for delivery. The caller responds identically whether or not
// the email exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	u, err := s.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if store.IsKind(err, store.KindNotFound) {
			return "", nil
		}
		return "", err
	}
	secret := newSecret()
	expires := time.Now().UTC().Add(time.Hour)
	if err := s.Users.SetResetToken(ctx, u.ID, hashSecret(secret), expires); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	u, err := s.Users.GetByResetToken(ctx, hashSecret(token), time.Now().UTC())
	if err != nil {
		if store.IsKind(err, store.KindNotFound) {
			return store.New(store.KindBadRequest, "invalid or expired reset token")
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.BcryptCost)
	if err != nil {
		return err
	}
	return s.Users.UpdatePassword(ctx, u.ID, string(hash))
}

func newSecret() string {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
