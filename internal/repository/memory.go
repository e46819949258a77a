package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
)

// In-memory repositories with the same conditional-update semantics as the
// Postgres implementations. The protocol services are exercised against
// these in tests; they are safe for concurrent use.

var (
	_ AppRepository   = (*MemoryAppRepo)(nil)
	_ CodeRepository  = (*MemoryCodeRepo)(nil)
	_ TokenRepository = (*MemoryTokenRepo)(nil)
	_ UserRepository  = (*MemoryUserRepo)(nil)
	_ KeyRepository   = (*MemoryKeyRepo)(nil)
)

// MemoryAppRepo is an in-memory AppRepository.
type MemoryAppRepo struct {
	mu   sync.RWMutex
	apps map[int64]domain.App
}

func NewMemoryAppRepo() *MemoryAppRepo {
	return &MemoryAppRepo{apps: make(map[int64]domain.App)}
}

func (r *MemoryAppRepo) Create(ctx context.Context, app domain.App) (domain.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now()
	}
	r.apps[app.ID] = app
	return app, nil
}

func (r *MemoryAppRepo) GetByID(ctx context.Context, id int64) (domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[id]
	if !ok {
		return domain.App{}, domain.ErrNotFound
	}
	return app, nil
}

func (r *MemoryAppRepo) GetByClientID(ctx context.Context, clientID string) (domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, app := range r.apps {
		if app.ClientID == clientID {
			return app, nil
		}
	}
	return domain.App{}, domain.ErrNotFound
}

func (r *MemoryAppRepo) ListByOwner(ctx context.Context, ownerUserID int64) ([]domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var apps []domain.App
	for _, app := range r.apps {
		if app.OwnerUserID == ownerUserID {
			apps = append(apps, app)
		}
	}
	return apps, nil
}

func (r *MemoryAppRepo) UpdateSecretHash(ctx context.Context, id int64, secretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return domain.ErrNotFound
	}
	app.ClientSecretHash = secretHash
	r.apps[id] = app
	return nil
}

func (r *MemoryAppRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.apps, id)
	return nil
}

// MemoryCodeRepo is an in-memory CodeRepository.
type MemoryCodeRepo struct {
	mu    sync.Mutex
	codes map[int64]*domain.AuthorizationCode
}

func NewMemoryCodeRepo() *MemoryCodeRepo {
	return &MemoryCodeRepo{codes: make(map[int64]*domain.AuthorizationCode)}
}

func (r *MemoryCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	stored := code
	r.codes[code.ID] = &stored
	return nil
}

func (r *MemoryCodeRepo) GetByHash(ctx context.Context, appID int64, codeHash string) (domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.AppID == appID && code.CodeHash == codeHash {
			return *code, nil
		}
	}
	return domain.AuthorizationCode{}, domain.ErrNotFound
}

func (r *MemoryCodeRepo) MarkUsed(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[id]
	if !ok || code.UsedAt != nil {
		return domain.ErrNotFound
	}
	now := time.Now()
	code.UsedAt = &now
	return nil
}

func (r *MemoryCodeRepo) DeleteByApp(ctx context.Context, appID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, code := range r.codes {
		if code.AppID == appID {
			delete(r.codes, id)
		}
	}
	return nil
}

func (r *MemoryCodeRepo) DeleteByGrant(ctx context.Context, appID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, code := range r.codes {
		if code.AppID == appID && code.UserID == userID {
			delete(r.codes, id)
		}
	}
	return nil
}

// MemoryTokenRepo is an in-memory TokenRepository.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[int64]*domain.Token
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[int64]*domain.Token)}
}

func (r *MemoryTokenRepo) Create(ctx context.Context, token domain.Token) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	stored := token
	r.tokens[token.ID] = &stored
	return stored, nil
}

func (r *MemoryTokenRepo) GetByAccessHash(ctx context.Context, accessHash string) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.AccessTokenHash == accessHash {
			return *token, nil
		}
	}
	return domain.Token{}, domain.ErrNotFound
}

func (r *MemoryTokenRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.RefreshTokenHash == refreshHash {
			return *token, nil
		}
	}
	return domain.Token{}, domain.ErrNotFound
}

func (r *MemoryTokenRepo) Revoke(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.RevokedAt != nil {
		return domain.ErrNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	return nil
}

func (r *MemoryTokenRepo) RevokeByApp(ctx context.Context, appID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, token := range r.tokens {
		if token.AppID == appID && token.RevokedAt == nil {
			token.RevokedAt = &now
		}
	}
	return nil
}

func (r *MemoryTokenRepo) RevokeByGrant(ctx context.Context, appID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, token := range r.tokens {
		if token.AppID == appID && token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
		}
	}
	return nil
}

func (r *MemoryTokenRepo) ListActiveByUser(ctx context.Context, userID int64) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var tokens []domain.Token
	for _, token := range r.tokens {
		if token.UserID == userID && token.RevokedAt == nil && token.RefreshExpiresAt.After(now) {
			tokens = append(tokens, *token)
		}
	}
	return tokens, nil
}

// MemoryUserRepo is an in-memory UserRepository.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[int64]domain.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[int64]domain.User)}
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	r.users[user.ID] = user
	return user, nil
}

// MemoryKeyRepo is an in-memory KeyRepository.
type MemoryKeyRepo struct {
	mu  sync.Mutex
	key *domain.SigningKey
}

func NewMemoryKeyRepo() *MemoryKeyRepo {
	return &MemoryKeyRepo{}
}

func (r *MemoryKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.key == nil {
		return domain.SigningKey{}, domain.ErrNotFound
	}
	return *r.key, nil
}

func (r *MemoryKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key.ID = 1
	key.CreatedAt = time.Now()
	r.key = &key
	return key, nil
}
