package domain

import "time"

// AuthorizationCode models a short-lived, single-use authorization code.
// The code value itself is never stored, only its digest.
type AuthorizationCode struct {
	ID                  int64
	AppID               int64
	UserID              int64
	CodeHash            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

// IsExpired reports whether the code's TTL has elapsed.
func (c AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsUsed reports whether the code has already been consumed.
func (c AuthorizationCode) IsUsed() bool {
	return c.UsedAt != nil
}
