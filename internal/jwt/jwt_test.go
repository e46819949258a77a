package jwt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Faizanmal/SyncQuote-sub003/internal/jwt"
	"github.com/Faizanmal/SyncQuote-sub003/internal/repository"
)

func newGenerator(t *testing.T) *jwt.Generator {
	t.Helper()
	return jwt.NewGenerator(jwt.NewKeyManager(repository.NewMemoryKeyRepo()), "https://auth.test")
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	token, err := gen.Issue(ctx, 42, "client-abc", "quotes:read quotes:write", jwt.TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	std, custom, err := gen.Verify(ctx, token, jwt.TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, "client-abc", custom.ClientID)
	require.Equal(t, "quotes:read quotes:write", custom.Scope)
	require.Equal(t, jwt.TokenTypeAccess, custom.TokenType)

	subject, err := jwt.Subject(std)
	require.NoError(t, err)
	require.Equal(t, int64(42), subject)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	session, err := gen.Issue(ctx, 7, "", "", jwt.TokenTypeSession, time.Hour)
	require.NoError(t, err)

	_, _, err = gen.Verify(ctx, session, jwt.TokenTypeAccess)
	require.ErrorIs(t, err, jwt.ErrInvalid)

	access, err := gen.Issue(ctx, 7, "client", "scope", jwt.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	_, _, err = gen.Verify(ctx, access, jwt.TokenTypeSession)
	require.ErrorIs(t, err, jwt.ErrInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	token, err := gen.Issue(ctx, 1, "client", "", jwt.TokenTypeAccess, -time.Minute)
	require.NoError(t, err)

	_, _, err = gen.Verify(ctx, token, jwt.TokenTypeAccess)
	require.ErrorIs(t, err, jwt.ErrInvalid)
}

func TestVerifyRejectsTampered(t *testing.T) {
	ctx := context.Background()
	gen := newGenerator(t)

	token, err := gen.Issue(ctx, 1, "client", "", jwt.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, _, err = gen.Verify(ctx, tampered, jwt.TokenTypeAccess)
	require.ErrorIs(t, err, jwt.ErrInvalid)
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	ctx := context.Background()

	keys := repository.NewMemoryKeyRepo()
	manager := jwt.NewKeyManager(keys)
	gen := jwt.NewGenerator(manager, "https://auth.test")
	other := jwt.NewGenerator(manager, "https://other.test")

	token, err := other.Issue(ctx, 1, "client", "", jwt.TokenTypeAccess, time.Hour)
	require.NoError(t, err)

	_, _, err = gen.Verify(ctx, token, jwt.TokenTypeAccess)
	require.ErrorIs(t, err, jwt.ErrInvalid)
}
