package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AppRepository   = (*PostgresAppRepo)(nil)
	_ CodeRepository  = (*PostgresCodeRepo)(nil)
	_ TokenRepository = (*PostgresTokenRepo)(nil)
	_ UserRepository  = (*PostgresUserRepo)(nil)
	_ KeyRepository   = (*PostgresKeyRepo)(nil)
)

// PostgresAppRepo implements AppRepository on pgx.
type PostgresAppRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAppRepo(db *pgxpool.Pool) *PostgresAppRepo {
	return &PostgresAppRepo{db: db}
}

const appColumns = `id, owner_user_id, name, client_id, client_secret_hash, redirect_uri, is_active, created_at`

func (r *PostgresAppRepo) Create(ctx context.Context, app domain.App) (domain.App, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO oauth_apps (id, owner_user_id, name, client_id, client_secret_hash, redirect_uri, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+appColumns,
		app.ID, app.OwnerUserID, app.Name, app.ClientID, app.ClientSecretHash, app.RedirectURI, app.IsActive,
	)
	created, err := scanApp(row)
	if err != nil {
		return domain.App{}, fmt.Errorf("create app: %w", err)
	}
	return created, nil
}

func (r *PostgresAppRepo) GetByID(ctx context.Context, id int64) (domain.App, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appColumns+` FROM oauth_apps WHERE id = $1`, id)
	app, err := scanApp(row)
	if err != nil {
		return domain.App{}, mapErr("get app", err)
	}
	return app, nil
}

func (r *PostgresAppRepo) GetByClientID(ctx context.Context, clientID string) (domain.App, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appColumns+` FROM oauth_apps WHERE client_id = $1`, clientID)
	app, err := scanApp(row)
	if err != nil {
		return domain.App{}, mapErr("get app by client id", err)
	}
	return app, nil
}

func (r *PostgresAppRepo) ListByOwner(ctx context.Context, ownerUserID int64) ([]domain.App, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+appColumns+` FROM oauth_apps WHERE owner_user_id = $1 ORDER BY created_at DESC`,
		ownerUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []domain.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("list apps: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (r *PostgresAppRepo) UpdateSecretHash(ctx context.Context, id int64, secretHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE oauth_apps SET client_secret_hash = $2 WHERE id = $1`, id, secretHash)
	if err != nil {
		return fmt.Errorf("update app secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresAppRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM oauth_apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PostgresCodeRepo implements CodeRepository.
type PostgresCodeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCodeRepo(db *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: db}
}

const codeColumns = `id, app_id, user_id, code_hash, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at, used_at, created_at`

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO oauth_codes (id, app_id, user_id, code_hash, redirect_uri, scopes, code_challenge, code_challenge_method, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		code.ID, code.AppID, code.UserID, code.CodeHash, code.RedirectURI, code.Scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

func (r *PostgresCodeRepo) GetByHash(ctx context.Context, appID int64, codeHash string) (domain.AuthorizationCode, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM oauth_codes WHERE app_id = $1 AND code_hash = $2`,
		appID, codeHash,
	)
	var c domain.AuthorizationCode
	if err := row.Scan(&c.ID, &c.AppID, &c.UserID, &c.CodeHash, &c.RedirectURI, &c.Scopes,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt); err != nil {
		return domain.AuthorizationCode{}, mapErr("get code", err)
	}
	return c, nil
}

// MarkUsed consumes the code. The WHERE clause makes this a compare-and-set:
// when two exchanges race, one sees zero rows and gets ErrNotFound.
func (r *PostgresCodeRepo) MarkUsed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE oauth_codes SET used_at = now() WHERE id = $1 AND used_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresCodeRepo) DeleteByApp(ctx context.Context, appID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_codes WHERE app_id = $1`, appID); err != nil {
		return fmt.Errorf("delete codes by app: %w", err)
	}
	return nil
}

func (r *PostgresCodeRepo) DeleteByGrant(ctx context.Context, appID, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_codes WHERE app_id = $1 AND user_id = $2`, appID, userID); err != nil {
		return fmt.Errorf("delete codes by grant: %w", err)
	}
	return nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(db *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

const tokenColumns = `id, app_id, user_id, scopes, access_token_hash, refresh_token_hash, expires_at, refresh_expires_at, revoked_at, created_at`

func (r *PostgresTokenRepo) Create(ctx context.Context, token domain.Token) (domain.Token, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO oauth_tokens (id, app_id, user_id, scopes, access_token_hash, refresh_token_hash, expires_at, refresh_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+tokenColumns,
		token.ID, token.AppID, token.UserID, token.Scopes,
		token.AccessTokenHash, token.RefreshTokenHash, token.ExpiresAt, token.RefreshExpiresAt,
	)
	created, err := scanToken(row)
	if err != nil {
		return domain.Token{}, fmt.Errorf("insert token: %w", err)
	}
	return created, nil
}

func (r *PostgresTokenRepo) GetByAccessHash(ctx context.Context, accessHash string) (domain.Token, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM oauth_tokens WHERE access_token_hash = $1`, accessHash)
	token, err := scanToken(row)
	if err != nil {
		return domain.Token{}, mapErr("get token by access hash", err)
	}
	return token, nil
}

func (r *PostgresTokenRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (domain.Token, error) {
	row := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM oauth_tokens WHERE refresh_token_hash = $1`, refreshHash)
	token, err := scanToken(row)
	if err != nil {
		return domain.Token{}, mapErr("get token by refresh hash", err)
	}
	return token, nil
}

// Revoke is conditional for the same reason as MarkUsed: refresh rotation
// must revoke the old record exactly once even under concurrent replays.
func (r *PostgresTokenRepo) Revoke(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE oauth_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeByApp(ctx context.Context, appID int64) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE oauth_tokens SET revoked_at = now() WHERE app_id = $1 AND revoked_at IS NULL`,
		appID,
	); err != nil {
		return fmt.Errorf("revoke tokens by app: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeByGrant(ctx context.Context, appID, userID int64) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE oauth_tokens SET revoked_at = now() WHERE app_id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		appID, userID,
	); err != nil {
		return fmt.Errorf("revoke tokens by grant: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) ListActiveByUser(ctx context.Context, userID int64) ([]domain.Token, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+tokenColumns+` FROM oauth_tokens
		 WHERE user_id = $1 AND revoked_at IS NULL AND refresh_expires_at > now()
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("list active tokens: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(db *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, password_hash, name, created_at`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		return domain.User{}, mapErr("get user by email", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		return domain.User{}, mapErr("get user by id", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, name) VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.Name,
	)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// PostgresKeyRepo implements KeyRepository.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(db *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: db}
}

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, kid, secret, algorithm, is_active, created_at, rotated_at
		 FROM oauth_keys WHERE is_active ORDER BY created_at DESC LIMIT 1`,
	)
	var k domain.SigningKey
	if err := row.Scan(&k.ID, &k.KID, &k.Secret, &k.Algorithm, &k.IsActive, &k.CreatedAt, &k.RotatedAt); err != nil {
		return domain.SigningKey{}, mapErr("get active key", err)
	}
	return k, nil
}

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO oauth_keys (kid, secret, algorithm, is_active) VALUES ($1, $2, $3, $4)
		 RETURNING id, kid, secret, algorithm, is_active, created_at, rotated_at`,
		key.KID, key.Secret, key.Algorithm, key.IsActive,
	)
	var k domain.SigningKey
	if err := row.Scan(&k.ID, &k.KID, &k.Secret, &k.Algorithm, &k.IsActive, &k.CreatedAt, &k.RotatedAt); err != nil {
		return domain.SigningKey{}, fmt.Errorf("create key: %w", err)
	}
	return k, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(row rowScanner) (domain.App, error) {
	var a domain.App
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Name, &a.ClientID, &a.ClientSecretHash, &a.RedirectURI, &a.IsActive, &a.CreatedAt)
	return a, err
}

func scanToken(row rowScanner) (domain.Token, error) {
	var t domain.Token
	err := row.Scan(&t.ID, &t.AppID, &t.UserID, &t.Scopes, &t.AccessTokenHash, &t.RefreshTokenHash,
		&t.ExpiresAt, &t.RefreshExpiresAt, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
