package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faizanmal/SyncQuote-sub003/internal/config"
	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
	"github.com/Faizanmal/SyncQuote-sub003/internal/jwt"
	"github.com/Faizanmal/SyncQuote-sub003/internal/password"
	"github.com/Faizanmal/SyncQuote-sub003/internal/repository"
	"github.com/Faizanmal/SyncQuote-sub003/internal/secret"
	"github.com/Faizanmal/SyncQuote-sub003/internal/service"
)

const testUserPassword = "correct horse battery staple"

var (
	testPasswordHashOnce sync.Once
	testPasswordHash     string
)

// userPasswordHash hashes the shared test password once; argon2id is too
// expensive to rerun per fixture.
func userPasswordHash(t *testing.T) string {
	t.Helper()
	testPasswordHashOnce.Do(func() {
		hash, err := password.Hash(testUserPassword)
		if err != nil {
			t.Fatalf("hash test password: %v", err)
		}
		testPasswordHash = hash
	})
	return testPasswordHash
}

type authFixture struct {
	svc    *service.AuthService
	apps   *repository.MemoryAppRepo
	codes  *repository.MemoryCodeRepo
	tokens *repository.MemoryTokenRepo
	users  *repository.MemoryUserRepo
	node   *snowflake.Node
	cfg    config.Config

	app       domain.App
	appSecret string
	user      domain.User
}

func newAuthFixture(t *testing.T, mutate ...func(*config.Config)) *authFixture {
	t.Helper()

	cfg := config.Config{
		Issuer:            "https://auth.test",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		AuthCodeTTL:       10 * time.Minute,
		SessionTTL:        24 * time.Hour,
		RefreshTokenBytes: 32,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &authFixture{
		apps:   repository.NewMemoryAppRepo(),
		codes:  repository.NewMemoryCodeRepo(),
		tokens: repository.NewMemoryTokenRepo(),
		users:  repository.NewMemoryUserRepo(),
		node:   node,
		cfg:    cfg,
	}

	generator := jwt.NewGenerator(jwt.NewKeyManager(repository.NewMemoryKeyRepo()), cfg.Issuer)
	f.svc = service.NewAuthService(f.apps, f.codes, f.tokens, f.users, node, generator, cfg, zap.NewNop())

	ctx := context.Background()

	f.appSecret = secret.NewToken(32)
	f.app, err = f.apps.Create(ctx, domain.App{
		ID:               node.Generate().Int64(),
		OwnerUserID:      node.Generate().Int64(),
		Name:             "Proposal Sync",
		ClientID:         "client-proposal-sync",
		ClientSecretHash: secret.Hash(f.appSecret),
		RedirectURI:      "https://proposalsync.example/callback",
		IsActive:         true,
	})
	require.NoError(t, err)

	f.user, err = f.users.Create(ctx, domain.User{
		ID:           node.Generate().Int64(),
		Email:        "maker@syncquote.test",
		PasswordHash: userPasswordHash(t),
		Name:         "Maker",
	})
	require.NoError(t, err)

	return f
}

// authorize runs the authorize operation and extracts the code from the
// returned redirect URL.
func (f *authFixture) authorize(t *testing.T, req service.AuthorizeRequest) string {
	t.Helper()
	if req.ClientID == "" {
		req.ClientID = f.app.ClientID
	}
	if req.RedirectURI == "" {
		req.RedirectURI = f.app.RedirectURI
	}
	if req.ResponseType == "" {
		req.ResponseType = "code"
	}

	redirectURL, err := f.svc.Authorize(context.Background(), f.user.ID, req)
	require.NoError(t, err)

	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *authFixture) exchangeCode(code string, extra ...func(*service.TokenRequest)) (*service.TokenResponse, error) {
	req := service.TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
		Code:         code,
		RedirectURI:  f.app.RedirectURI,
	}
	for _, e := range extra {
		e(&req)
	}
	return f.svc.Exchange(context.Background(), req)
}

func requireOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *service.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code)
}

func TestAuthorizeAndExchange(t *testing.T) {
	f := newAuthFixture(t)

	redirectURL, err := f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:     f.app.ClientID,
		RedirectURI:  f.app.RedirectURI,
		ResponseType: "code",
		State:        "xyzzy",
		Scope:        "quotes:read proposals:write",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)
	require.Equal(t, "proposalsync.example", parsed.Host)
	require.Equal(t, "xyzzy", parsed.Query().Get("state"))
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)

	resp, err := f.exchangeCode(code)
	require.NoError(t, err)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "quotes:read proposals:write", resp.Scope)

	identity, err := f.svc.Validate(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, identity.UserID)
	require.Equal(t, f.app.ClientID, identity.ClientID)
	require.Equal(t, []string{"quotes:read", "proposals:write"}, identity.Scopes)
}

func TestAuthorizeRejectsUnknownClient(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:     "no-such-client",
		RedirectURI:  f.app.RedirectURI,
		ResponseType: "code",
	})
	requireOAuthError(t, err, "invalid_client")
}

func TestAuthorizeRejectsInactiveApp(t *testing.T) {
	f := newAuthFixture(t)

	inactive := f.app
	inactive.ID = f.node.Generate().Int64()
	inactive.ClientID = "client-disabled"
	inactive.IsActive = false
	_, err := f.apps.Create(context.Background(), inactive)
	require.NoError(t, err)

	_, err = f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:     "client-disabled",
		RedirectURI:  inactive.RedirectURI,
		ResponseType: "code",
	})
	requireOAuthError(t, err, "invalid_client")
}

func TestAuthorizeRejectsRedirectMismatch(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:     f.app.ClientID,
		RedirectURI:  "https://attacker.example/callback",
		ResponseType: "code",
	})
	requireOAuthError(t, err, "invalid_request")
}

func TestAuthorizeRejectsUnsupportedResponseType(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:     f.app.ClientID,
		RedirectURI:  f.app.RedirectURI,
		ResponseType: "token",
	})
	requireOAuthError(t, err, "unsupported_response_type")
}

func TestAuthorizeRejectsUnknownChallengeMethod(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authorize(context.Background(), f.user.ID, service.AuthorizeRequest{
		ClientID:            f.app.ClientID,
		RedirectURI:         f.app.RedirectURI,
		ResponseType:        "code",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S512",
	})
	requireOAuthError(t, err, "invalid_request")
}

func TestExchangeRejectsWrongClientSecret(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	_, err := f.exchangeCode(code, func(req *service.TokenRequest) {
		req.ClientSecret = "wrong-secret"
	})
	requireOAuthError(t, err, "invalid_client")
}

func TestExchangeRejectsUnknownCode(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.exchangeCode("never-issued")
	requireOAuthError(t, err, "invalid_grant")
}

func TestExchangeRejectsExpiredCode(t *testing.T) {
	f := newAuthFixture(t, func(cfg *config.Config) {
		cfg.AuthCodeTTL = -time.Minute
	})
	code := f.authorize(t, service.AuthorizeRequest{})

	_, err := f.exchangeCode(code)
	requireOAuthError(t, err, "invalid_grant")
}

func TestExchangeCodeIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	_, err := f.exchangeCode(code)
	require.NoError(t, err)

	_, err = f.exchangeCode(code)
	requireOAuthError(t, err, "invalid_grant")
}

func TestExchangeRejectsRedirectMismatch(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	_, err := f.exchangeCode(code, func(req *service.TokenRequest) {
		req.RedirectURI = "https://attacker.example/callback"
	})
	requireOAuthError(t, err, "invalid_grant")

	// The failed attempt ran before the code was consumed, so a correct
	// retry still succeeds.
	_, err = f.exchangeCode(code)
	require.NoError(t, err)
}

func TestExchangeCodeIsBoundToApp(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	otherSecret := secret.NewToken(32)
	other, err := f.apps.Create(context.Background(), domain.App{
		ID:               f.node.Generate().Int64(),
		OwnerUserID:      f.node.Generate().Int64(),
		Name:             "Other App",
		ClientID:         "client-other",
		ClientSecretHash: secret.Hash(otherSecret),
		RedirectURI:      f.app.RedirectURI,
		IsActive:         true,
	})
	require.NoError(t, err)

	_, err = f.exchangeCode(code, func(req *service.TokenRequest) {
		req.ClientID = other.ClientID
		req.ClientSecret = otherSecret
	})
	requireOAuthError(t, err, "invalid_grant")
}

func TestPKCES256(t *testing.T) {
	f := newAuthFixture(t)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	code := f.authorize(t, service.AuthorizeRequest{
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})

	_, err := f.exchangeCode(code, func(req *service.TokenRequest) {
		req.CodeVerifier = "not-the-verifier"
	})
	requireOAuthError(t, err, "invalid_grant")

	_, err = f.exchangeCode(code)
	requireOAuthError(t, err, "invalid_grant")

	_, err = f.exchangeCode(code, func(req *service.TokenRequest) {
		req.CodeVerifier = verifier
	})
	require.NoError(t, err)
}

func TestPKCEPlainIsDefaultMethod(t *testing.T) {
	f := newAuthFixture(t)

	code := f.authorize(t, service.AuthorizeRequest{
		CodeChallenge: "plain-challenge-value",
	})

	_, err := f.exchangeCode(code, func(req *service.TokenRequest) {
		req.CodeVerifier = "plain-challenge-value"
	})
	require.NoError(t, err)
}

func TestRefreshRotation(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{Scope: "quotes:read"})

	first, err := f.exchangeCode(code)
	require.NoError(t, err)

	second, err := f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.Equal(t, "quotes:read", second.Scope)

	// Rotation revoked the consumed pair: its refresh token cannot be
	// replayed and its access token no longer validates.
	_, err = f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
		RefreshToken: first.RefreshToken,
	})
	requireOAuthError(t, err, "invalid_grant")

	_, err = f.svc.Validate(context.Background(), first.AccessToken)
	requireOAuthError(t, err, "invalid_token")

	_, err = f.svc.Validate(context.Background(), second.AccessToken)
	require.NoError(t, err)
}

func TestRefreshTokenIsBoundToApp(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	pair, err := f.exchangeCode(code)
	require.NoError(t, err)

	otherSecret := secret.NewToken(32)
	other, err := f.apps.Create(context.Background(), domain.App{
		ID:               f.node.Generate().Int64(),
		OwnerUserID:      f.node.Generate().Int64(),
		Name:             "Other App",
		ClientID:         "client-other",
		ClientSecretHash: secret.Hash(otherSecret),
		RedirectURI:      "https://other.example/cb",
		IsActive:         true,
	})
	require.NoError(t, err)

	_, err = f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     other.ClientID,
		ClientSecret: otherSecret,
		RefreshToken: pair.RefreshToken,
	})
	requireOAuthError(t, err, "invalid_grant")
}

func TestRefreshRejectsExpired(t *testing.T) {
	f := newAuthFixture(t, func(cfg *config.Config) {
		cfg.RefreshTokenTTL = -time.Minute
	})
	code := f.authorize(t, service.AuthorizeRequest{})

	pair, err := f.exchangeCode(code)
	require.NoError(t, err)

	_, err = f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
		RefreshToken: pair.RefreshToken,
	})
	requireOAuthError(t, err, "invalid_grant")
}

func TestExchangeRejectsUnsupportedGrantType(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
	})
	requireOAuthError(t, err, "unsupported_grant_type")
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	pair, err := f.exchangeCode(code)
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(context.Background(), pair.AccessToken, ""))

	_, err = f.svc.Validate(context.Background(), pair.AccessToken)
	requireOAuthError(t, err, "invalid_token")

	// Revoking the same token again, or one that never existed, still
	// succeeds.
	require.NoError(t, f.svc.Revoke(context.Background(), pair.AccessToken, ""))
	require.NoError(t, f.svc.Revoke(context.Background(), "never-issued", ""))
}

func TestRevokeByRefreshTokenHint(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	pair, err := f.exchangeCode(code)
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(context.Background(), pair.RefreshToken, "refresh_token"))

	_, err = f.svc.Exchange(context.Background(), service.TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     f.app.ClientID,
		ClientSecret: f.appSecret,
		RefreshToken: pair.RefreshToken,
	})
	requireOAuthError(t, err, "invalid_grant")

	_, err = f.svc.Validate(context.Background(), pair.AccessToken)
	requireOAuthError(t, err, "invalid_token")
}

func TestLoginAndSessionValidation(t *testing.T) {
	f := newAuthFixture(t)

	resp, err := f.svc.Login(context.Background(), "Maker@SyncQuote.test", testUserPassword)
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionToken)

	userID, err := f.svc.ValidateSession(context.Background(), resp.SessionToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, userID)

	_, err = f.svc.Login(context.Background(), f.user.Email, "wrong-password")
	requireOAuthError(t, err, "invalid_grant")

	_, err = f.svc.Login(context.Background(), "nobody@syncquote.test", testUserPassword)
	requireOAuthError(t, err, "invalid_grant")
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	f := newAuthFixture(t)

	session, err := f.svc.Login(context.Background(), f.user.Email, testUserPassword)
	require.NoError(t, err)

	code := f.authorize(t, service.AuthorizeRequest{})
	pair, err := f.exchangeCode(code)
	require.NoError(t, err)

	// A session token is not an access token and vice versa.
	_, err = f.svc.Validate(context.Background(), session.SessionToken)
	requireOAuthError(t, err, "invalid_token")

	_, err = f.svc.ValidateSession(context.Background(), pair.AccessToken)
	requireOAuthError(t, err, "invalid_token")
}

func TestListAuthorizedAppsAndWithdraw(t *testing.T) {
	f := newAuthFixture(t)

	grants, err := f.svc.ListAuthorizedApps(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Empty(t, grants)

	code := f.authorize(t, service.AuthorizeRequest{Scope: "quotes:read"})
	_, err = f.exchangeCode(code)
	require.NoError(t, err)

	grants, err = f.svc.ListAuthorizedApps(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, f.app.ID, grants[0].App.ID)
	require.Equal(t, []string{"quotes:read"}, grants[0].Scopes)

	require.NoError(t, f.svc.RevokeAppAuthorization(context.Background(), f.user.ID, f.app.ID))

	grants, err = f.svc.ListAuthorizedApps(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Empty(t, grants)

	// Withdrawing an authorization that no longer exists is a no-op.
	require.NoError(t, f.svc.RevokeAppAuthorization(context.Background(), f.user.ID, f.app.ID))
}

func TestConcurrentExchangeHasOneWinner(t *testing.T) {
	f := newAuthFixture(t)
	code := f.authorize(t, service.AuthorizeRequest{})

	const attempts = 8
	results := make(chan error, attempts)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := f.exchangeCode(code)
			results <- err
		}()
	}
	start.Done()

	var wins, losses int
	for i := 0; i < attempts; i++ {
		err := <-results
		if err == nil {
			wins++
			continue
		}
		requireOAuthError(t, err, "invalid_grant")
		losses++
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, losses)
}
