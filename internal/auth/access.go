package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tealwick/storefront/internal/store"
)

// Claims are the access-token claims: subject is the user id, Role gates
// admin routes.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// AccessSigner signs and verifies short-lived HS256 access tokens.
type AccessSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewAccessSigner(secret string, ttl time.Duration) *AccessSigner {
	return &AccessSigner{secret: []byte(secret), ttl: ttl}
}

func (s *AccessSigner) Sign(userID string, role Role) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AccessSigner) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, store.Wrap(store.KindUnauthorized, "invalid or expired token", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, store.New(store.KindUnauthorized, "invalid or expired token")
	}
	return claims, nil
}
