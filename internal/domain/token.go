package domain

import "time"

// Token persists one access/refresh pair issuance. Both values are stored
// as digests; a revoked record is never reactivated.
type Token struct {
	ID               int64
	AppID            int64
	UserID           int64
	Scopes           []string
	AccessTokenHash  string
	RefreshTokenHash string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// IsRevoked reports whether the pair has been revoked, explicitly or by
// refresh rotation.
func (t Token) IsRevoked() bool {
	return t.RevokedAt != nil
}

// Grant is the per-(app, user) consent view surfaced to end users: which
// app holds live tokens, under which scopes, and since when.
type Grant struct {
	App          App
	Scopes       []string
	AuthorizedAt time.Time
}
