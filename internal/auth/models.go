package auth

import "time"

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// CanManage reports whether the role may use admin surfaces.
func (r Role) CanManage() bool { return r == RoleAdmin || r == RoleModerator }

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Role         Role      `json:"role"`
	Newsletter   bool      `json:"newsletter"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefreshToken is one link in a per-user refresh chain. Only the sha256 of
// the secret is ever stored; the secret itself goes back to the client once.
type RefreshToken struct {
	ID             string
	UserID         string
	TokenHash      string
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash string
	CreatedAt      time.Time
}

// Usable reports whether the record may still be rotated: unrevoked and
// unexpired. Expiry is enforced lazily here, there is no background sweep.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
