package domain

import "time"

// App is a client application registered by an end user. The plaintext
// client secret is returned exactly once at creation or rotation time;
// only its digest is stored.
type App struct {
	ID               int64
	OwnerUserID      int64
	Name             string
	ClientID         string
	ClientSecretHash string
	RedirectURI      string
	IsActive         bool
	CreatedAt        time.Time
}
