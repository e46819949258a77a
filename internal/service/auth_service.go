package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faizanmal/SyncQuote-sub003/internal/config"
	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
	"github.com/Faizanmal/SyncQuote-sub003/internal/jwt"
	"github.com/Faizanmal/SyncQuote-sub003/internal/password"
	"github.com/Faizanmal/SyncQuote-sub003/internal/repository"
	"github.com/Faizanmal/SyncQuote-sub003/internal/secret"
)

// TokenResponse is the OAuth token endpoint success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// SessionResponse is returned by the first-party login endpoint.
type SessionResponse struct {
	SessionToken string `json:"session_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Identity is the result of validating an access token.
type Identity struct {
	UserID   int64    `json:"user_id"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// AuthorizeRequest carries the parameters of the authorize operation. The
// caller must already be an authenticated end user.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest carries the parameters of the token exchange operation.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
}

// AuthService sequences the authorization-code protocol: code issuance,
// token exchange, refresh rotation, validation, and revocation.
type AuthService struct {
	apps      repository.AppRepository
	codes     repository.CodeRepository
	tokens    repository.TokenRepository
	users     repository.UserRepository
	snowflake *snowflake.Node
	jwt       *jwt.Generator
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(apps repository.AppRepository, codes repository.CodeRepository, tokens repository.TokenRepository, users repository.UserRepository, node *snowflake.Node, generator *jwt.Generator, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		apps:      apps,
		codes:     codes,
		tokens:    tokens,
		users:     users,
		snowflake: node,
		jwt:       generator,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/Faizanmal/SyncQuote-sub003/internal/service"),
	}
}

// Login authenticates an end user with email and password and issues a
// first-party session token.
func (s *AuthService) Login(ctx context.Context, email, pass string) (*SessionResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, newOAuthError("invalid_grant", "Wrong email or password.", 400)
	}

	valid, err := password.Verify(pass, user.PasswordHash)
	if err != nil || !valid {
		return nil, newOAuthError("invalid_grant", "Wrong email or password.", 400)
	}

	token, err := s.jwt.Issue(ctx, user.ID, "", "", jwt.TokenTypeSession, s.cfg.SessionTTL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.audit("session.login", zap.Int64("user_id", user.ID))
	return &SessionResponse{
		SessionToken: token,
		ExpiresIn:    int(s.cfg.SessionTTL.Seconds()),
	}, nil
}

// ValidateSession verifies a first-party session token and returns the user
// ID it was issued to. OAuth access tokens are rejected here by the token
// type discriminator.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (int64, error) {
	std, _, err := s.jwt.Verify(ctx, token, jwt.TokenTypeSession)
	if err != nil {
		return 0, errUnauthorized()
	}
	return jwt.Subject(std)
}

// Authorize issues an authorization code for an authenticated end user and
// returns the redirect URL carrying it. Requested scopes are granted
// verbatim.
func (s *AuthService) Authorize(ctx context.Context, userID int64, req AuthorizeRequest) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Authorize")
	defer span.End()

	app, err := s.apps.GetByClientID(ctx, strings.TrimSpace(req.ClientID))
	if err != nil || !app.IsActive {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			return "", fmt.Errorf("load app: %w", err)
		}
		return "", errInvalidClient()
	}

	redirect := strings.TrimSpace(req.RedirectURI)
	if redirect != app.RedirectURI {
		return "", errInvalidRequest("redirect_uri does not match the registered URI.")
	}
	if req.ResponseType != "code" {
		return "", newOAuthError("unsupported_response_type", "Only response_type=code is supported.", 400)
	}

	challenge := strings.TrimSpace(req.CodeChallenge)
	method := strings.TrimSpace(req.CodeChallengeMethod)
	if challenge != "" && method == "" {
		method = "plain"
	}
	if challenge != "" && method != "S256" && method != "plain" {
		return "", errInvalidRequest("code_challenge_method must be S256 or plain.")
	}
	if challenge == "" {
		method = ""
	}

	codeValue := secret.NewToken(32)
	record := domain.AuthorizationCode{
		ID:                  s.snowflake.Generate().Int64(),
		AppID:               app.ID,
		UserID:              userID,
		CodeHash:            secret.Hash(codeValue),
		RedirectURI:         redirect,
		Scopes:              strings.Fields(req.Scope),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().Add(s.cfg.AuthCodeTTL),
	}

	if err := s.codes.Create(ctx, record); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("persist authorization code: %w", err)
	}

	s.audit("authorization_code.issued", zap.Int64("app_id", app.ID), zap.Int64("user_id", userID), zap.String("client_id", app.ClientID))
	return buildRedirectURL(redirect, codeValue, req.State)
}

// Exchange dispatches the token endpoint by grant type.
func (s *AuthService) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Exchange")
	defer span.End()

	switch req.GrantType {
	case "authorization_code":
		return s.exchangeAuthorizationCode(ctx, req)
	case "refresh_token":
		return s.exchangeRefreshToken(ctx, req)
	default:
		return nil, newOAuthError("unsupported_grant_type", "Unsupported grant type.", 400)
	}
}

func (s *AuthService) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	app, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.GetByHash(ctx, app.ID, secret.Hash(req.Code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidGrant()
		}
		return nil, fmt.Errorf("load code: %w", err)
	}
	if code.IsUsed() || code.IsExpired(time.Now()) {
		return nil, errInvalidGrant()
	}
	if req.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, errInvalidGrant()
	}
	if err := verifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, err
	}

	// Single-use enforcement: a conditional write, not a read-then-write.
	// If a concurrent exchange won the race, this observes ErrNotFound.
	if err := s.codes.MarkUsed(ctx, code.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidGrant()
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}

	resp, err := s.issueTokenPair(ctx, app, code.UserID, code.Scopes)
	if err != nil {
		return nil, err
	}
	s.audit("authorization_code.exchanged", zap.Int64("app_id", app.ID), zap.Int64("user_id", code.UserID))
	return resp, nil
}

func (s *AuthService) exchangeRefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	app, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GetByRefreshHash(ctx, secret.Hash(req.RefreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidGrant()
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if token.AppID != app.ID || token.IsRevoked() || time.Now().After(token.RefreshExpiresAt) {
		return nil, errInvalidGrant()
	}

	// Rotation revokes the consumed record before the new pair exists.
	// If issuance below fails the old refresh token stays revoked:
	// fail-closed, no replay window.
	if err := s.tokens.Revoke(ctx, token.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidGrant()
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	resp, err := s.issueTokenPair(ctx, app, token.UserID, token.Scopes)
	if err != nil {
		return nil, err
	}
	s.audit("refresh_token.rotated", zap.Int64("app_id", app.ID), zap.Int64("user_id", token.UserID))
	return resp, nil
}

// Validate checks an access token: signature, expiry, and token type first,
// then the backing record. A cryptographically valid token whose record is
// revoked or missing is rejected.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Validate")
	defer span.End()

	std, custom, err := s.jwt.Verify(ctx, accessToken, jwt.TokenTypeAccess)
	if err != nil {
		return nil, errUnauthorized()
	}

	record, err := s.tokens.GetByAccessHash(ctx, secret.Hash(accessToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errUnauthorized()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load token record: %w", err)
	}
	if record.IsRevoked() || time.Now().After(record.ExpiresAt) {
		return nil, errUnauthorized()
	}

	userID, err := jwt.Subject(std)
	if err != nil {
		return nil, errUnauthorized()
	}

	return &Identity{
		UserID:   userID,
		ClientID: custom.ClientID,
		Scopes:   strings.Fields(custom.Scope),
	}, nil
}

// Revoke marks a token pair revoked. Unknown and already-revoked tokens are
// treated as already in the desired end state, so the operation always
// succeeds unless storage itself fails.
func (s *AuthService) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Revoke")
	defer span.End()

	hash := secret.Hash(token)
	var (
		record domain.Token
		err    error
	)
	if tokenTypeHint == "refresh_token" {
		record, err = s.tokens.GetByRefreshHash(ctx, hash)
	} else {
		record, err = s.tokens.GetByAccessHash(ctx, hash)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("load token for revocation: %w", err)
	}

	if err := s.tokens.Revoke(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		return fmt.Errorf("revoke token: %w", err)
	}

	s.audit("token.revoked", zap.Int64("token_id", record.ID), zap.Int64("app_id", record.AppID))
	return nil
}

// ListAuthorizedApps returns the apps holding live tokens for the user,
// with the granted scopes and the time of the earliest live issuance.
func (s *AuthService) ListAuthorizedApps(ctx context.Context, userID int64) ([]domain.Grant, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ListAuthorizedApps")
	defer span.End()

	tokens, err := s.tokens.ListActiveByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list active tokens: %w", err)
	}

	type grantAgg struct {
		scopes       []string
		authorizedAt time.Time
		latest       time.Time
	}
	byApp := make(map[int64]*grantAgg)
	for _, token := range tokens {
		agg, ok := byApp[token.AppID]
		if !ok {
			byApp[token.AppID] = &grantAgg{scopes: token.Scopes, authorizedAt: token.CreatedAt, latest: token.CreatedAt}
			continue
		}
		if token.CreatedAt.Before(agg.authorizedAt) {
			agg.authorizedAt = token.CreatedAt
		}
		if token.CreatedAt.After(agg.latest) {
			agg.latest = token.CreatedAt
			agg.scopes = token.Scopes
		}
	}

	grants := make([]domain.Grant, 0, len(byApp))
	for appID, agg := range byApp {
		app, err := s.apps.GetByID(ctx, appID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load granted app: %w", err)
		}
		grants = append(grants, domain.Grant{App: app, Scopes: agg.scopes, AuthorizedAt: agg.authorizedAt})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].AuthorizedAt.Before(grants[j].AuthorizedAt) })
	return grants, nil
}

// RevokeAppAuthorization withdraws the user's consent for one app: all live
// tokens for the (app, user) pair are revoked and outstanding codes
// discarded. Idempotent.
func (s *AuthService) RevokeAppAuthorization(ctx context.Context, userID, appID int64) error {
	ctx, span := s.startSpan(ctx, "AuthService.RevokeAppAuthorization")
	defer span.End()

	if err := s.tokens.RevokeByGrant(ctx, appID, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke grant tokens: %w", err)
	}
	if err := s.codes.DeleteByGrant(ctx, appID, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("discard grant codes: %w", err)
	}

	s.audit("authorization.withdrawn", zap.Int64("app_id", appID), zap.Int64("user_id", userID))
	return nil
}

func (s *AuthService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.App, error) {
	app, err := s.apps.GetByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.App{}, errInvalidClient()
		}
		return domain.App{}, fmt.Errorf("load app: %w", err)
	}
	if !app.IsActive || !secret.Verify(clientSecret, app.ClientSecretHash) {
		return domain.App{}, errInvalidClient()
	}
	return app, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, app domain.App, userID int64, scopes []string) (*TokenResponse, error) {
	scope := strings.Join(scopes, " ")
	access, err := s.jwt.Issue(ctx, userID, app.ClientID, scope, jwt.TokenTypeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh := secret.NewToken(s.cfg.RefreshTokenBytes)

	now := time.Now()
	record := domain.Token{
		ID:               s.snowflake.Generate().Int64(),
		AppID:            app.ID,
		UserID:           userID,
		Scopes:           scopes,
		AccessTokenHash:  secret.Hash(access),
		RefreshTokenHash: secret.Hash(refresh),
		ExpiresAt:        now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if _, err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist token pair: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

func verifyPKCE(code domain.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return errInvalidGrant()
	}

	var computed string
	switch code.CodeChallengeMethod {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	default: // plain
		computed = verifier
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(code.CodeChallenge)) != 1 {
		return errInvalidGrant()
	}
	return nil
}

func buildRedirectURL(redirect, code, state string) (string, error) {
	parsed, err := url.Parse(redirect)
	if err != nil {
		return "", errInvalidRequest("redirect_uri is not a valid URL.")
	}
	query := parsed.Query()
	query.Set("code", code)
	if state != "" {
		query.Set("state", state)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("audit", append([]zap.Field{zap.String("event", event)}, fields...)...)
}
