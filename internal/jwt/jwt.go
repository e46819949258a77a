package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Token type discriminators. A token minted for one purpose must never be
// accepted for another, so Verify requires the caller to name the type it
// expects.
const (
	TokenTypeAccess  = "oauth_access"
	TokenTypeSession = "session"
)

// ErrInvalid is returned for any verification failure: bad signature,
// elapsed expiry, wrong issuer, or mismatched token type. Callers treat it
// as a single opaque outcome.
var ErrInvalid = errors.New("jwt: invalid token")

// Claims is the custom payload carried alongside the standard JWT claims.
type Claims struct {
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type"`
}

// Generator signs and verifies claims tokens with the persisted HMAC key.
type Generator struct {
	keys   *KeyManager
	issuer string
}

// NewGenerator constructs a token generator.
func NewGenerator(manager *KeyManager, issuer string) *Generator {
	return &Generator{keys: manager, issuer: issuer}
}

// Issue produces a signed compact token for the given subject.
func (g *Generator) Issue(ctx context.Context, subject int64, clientID, scope, tokenType string, ttl time.Duration) (string, error) {
	key, err := g.keys.EnsureSigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(subject, 10),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := Claims{
		ClientID:  clientID,
		Scope:     scope,
		TokenType: tokenType,
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry, issuer, and the token type discriminator.
// Every failure mode collapses into ErrInvalid.
func (g *Generator) Verify(ctx context.Context, token, wantType string) (*gojwt.Claims, *Claims, error) {
	key, err := g.keys.ActiveKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}

	allowed := []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(key.Algorithm)}
	parsed, err := gojwt.ParseSigned(token, allowed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse", ErrInvalid)
	}

	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("%w: signature", ErrInvalid)
	}

	if err := std.Validate(gojwt.Expected{Issuer: g.issuer, Time: time.Now().UTC()}); err != nil {
		return nil, nil, fmt.Errorf("%w: claims", ErrInvalid)
	}

	if custom.TokenType != wantType {
		return nil, nil, fmt.Errorf("%w: token type", ErrInvalid)
	}

	return &std, &custom, nil
}

// Subject parses the numeric subject claim.
func Subject(std *gojwt.Claims) (int64, error) {
	id, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject", ErrInvalid)
	}
	return id, nil
}
