package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealwick/storefront/internal/store"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*User // by id
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*User{}} }

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.New(store.KindConflict, "email already registered")
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.New(store.KindNotFound, "user not found")
}

func (m *memUsers) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.New(store.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (m *memUsers) SetResetToken(context.Context, string, string, time.Time) error { return nil }

func (m *memUsers) GetByResetToken(context.Context, string, time.Time) (*User, error) {
	return nil, store.New(store.KindNotFound, "user not found")
}

// memTokens mirrors the conditional-update semantics of the SQL repo: Rotate
// only claims a record that is unrevoked and unexpired, under one lock.
type memTokens struct {
	mu   sync.Mutex
	recs map[string]*RefreshToken // by token hash
}

func newMemTokens() *memTokens { return &memTokens{recs: map[string]*RefreshToken{}} }

func (m *memTokens) Create(_ context.Context, t RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[t.TokenHash] = &t
	return nil
}

func (m *memTokens) Rotate(_ context.Context, tokenHash, replacedByHash string, now time.Time) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[tokenHash]
	if !ok || !rec.Usable(now) {
		return nil, nil
	}
	rec.RevokedAt = &now
	rec.ReplacedByHash = replacedByHash
	cp := *rec
	return &cp, nil
}

func (m *memTokens) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[tokenHash]; ok && rec.RevokedAt == nil {
		rec.RevokedAt = &now
	}
	return nil
}

func newAuthService(refreshTTL time.Duration) (*Service, *memUsers, *memTokens) {
	users := newMemUsers()
	tokens := newMemTokens()
	svc := &Service{
		Users:      users,
		Tokens:     tokens,
		Signer:     NewAccessSigner("test-secret", time.Minute),
		RefreshTTL: refreshTTL,
		BcryptCost: 4, // keep tests fast
	}
	return svc, users, tokens
}

func register(t *testing.T, svc *Service) (*User, *TokenPair) {
	t.Helper()
	u, pair, err := svc.Register(context.Background(), RegisterInput{
		Email: "a@b.co", Password: "password123", FirstName: "A", LastName: "B",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return u, pair
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newAuthService(time.Hour)
	u, _ := register(t, svc)
	assert.Equal(t, RoleCustomer, u.Role)

	_, pair, err := svc.Login(context.Background(), "a@b.co", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	_, _, err = svc.Login(context.Background(), "a@b.co", "wrong-password")
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindUnauthorized))

	_, _, err = svc.Login(context.Background(), "nobody@b.co", "password123")
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindUnauthorized), "unknown email must look like a bad password")
}

func TestRotateIsSingleUse(t *testing.T) {
	svc, _, _ := newAuthService(time.Hour)
	_, pair := register(t, svc)

	_, next, err := svc.Rotate(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// the retired secret must fail on its second presentation
	_, _, err = svc.Rotate(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindInvalidToken))

	// the replacement still works
	_, _, err = svc.Rotate(context.Background(), next.RefreshToken)
	require.NoError(t, err)
}

func TestRotateExpiredSecretFails(t *testing.T) {
	svc, _, _ := newAuthService(-time.Minute) // already expired at issue time
	_, pair := register(t, svc)

	_, _, err := svc.Rotate(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindInvalidToken), "expiry is enforced lazily at rotation")
}

func TestRotateUnknownSecretFails(t *testing.T) {
	svc, _, _ := newAuthService(time.Hour)
	_, _, err := svc.Rotate(context.Background(), "never-issued")
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindInvalidToken))
}

func TestConcurrentRotationOnlyOneWins(t *testing.T) {
	svc, _, _ := newAuthService(time.Hour)
	_, pair := register(t, svc)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Rotate(context.Background(), pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, store.IsKind(err, store.KindInvalidToken))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent rotation may claim the record")
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _, tokens := newAuthService(time.Hour)
	_, pair := register(t, svc)

	require.NoError(t, svc.RevokeSecret(context.Background(), pair.RefreshToken))
	// revoking again, or revoking garbage, is a silent no-op
	require.NoError(t, svc.RevokeSecret(context.Background(), pair.RefreshToken))
	require.NoError(t, svc.RevokeSecret(context.Background(), "unknown-secret"))

	// and the revoked secret cannot rotate anymore
	_, _, err := svc.Rotate(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindInvalidToken))

	// the chain linkage stays intact: revoked, no replacement recorded
	tokens.mu.Lock()
	rec := tokens.recs[hashSecret(pair.RefreshToken)]
	tokens.mu.Unlock()
	require.NotNil(t, rec.RevokedAt)
	assert.Empty(t, rec.ReplacedByHash)
}

func TestRotationLinksChain(t *testing.T) {
	svc, _, tokens := newAuthService(time.Hour)
	_, pair := register(t, svc)

	_, next, err := svc.Rotate(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	tokens.mu.Lock()
	old := tokens.recs[hashSecret(pair.RefreshToken)]
	fresh := tokens.recs[hashSecret(next.RefreshToken)]
	tokens.mu.Unlock()

	require.NotNil(t, old)
	require.NotNil(t, fresh)
	assert.Equal(t, hashSecret(next.RefreshToken), old.ReplacedByHash, "old record points at its replacement")
	assert.Nil(t, fresh.RevokedAt)
	assert.Equal(t, old.UserID, fresh.UserID)
}
