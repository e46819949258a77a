package repository

import (
	"context"

	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
)

// AppRepository persists registered client applications.
type AppRepository interface {
	Create(ctx context.Context, app domain.App) (domain.App, error)
	GetByID(ctx context.Context, id int64) (domain.App, error)
	GetByClientID(ctx context.Context, clientID string) (domain.App, error)
	ListByOwner(ctx context.Context, ownerUserID int64) ([]domain.App, error)
	UpdateSecretHash(ctx context.Context, id int64, secretHash string) error
	Delete(ctx context.Context, id int64) error
}

// CodeRepository manages authorization codes. MarkUsed is the
// concurrency-critical write: it must be a single conditional update that
// only succeeds while used_at is still null, so racing exchanges resolve
// to exactly one winner.
type CodeRepository interface {
	Create(ctx context.Context, code domain.AuthorizationCode) error
	GetByHash(ctx context.Context, appID int64, codeHash string) (domain.AuthorizationCode, error)
	MarkUsed(ctx context.Context, id int64) error
	DeleteByApp(ctx context.Context, appID int64) error
	DeleteByGrant(ctx context.Context, appID, userID int64) error
}

// TokenRepository persists access/refresh token pairs. Revoke carries the
// same conditional-update contract as CodeRepository.MarkUsed.
type TokenRepository interface {
	Create(ctx context.Context, token domain.Token) (domain.Token, error)
	GetByAccessHash(ctx context.Context, accessHash string) (domain.Token, error)
	GetByRefreshHash(ctx context.Context, refreshHash string) (domain.Token, error)
	Revoke(ctx context.Context, id int64) error
	RevokeByApp(ctx context.Context, appID int64) error
	RevokeByGrant(ctx context.Context, appID, userID int64) error
	ListActiveByUser(ctx context.Context, userID int64) ([]domain.Token, error)
}

// UserRepository exposes persistence for end users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// KeyRepository stores claims-token signing keys.
type KeyRepository interface {
	GetActiveKey(ctx context.Context) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}
