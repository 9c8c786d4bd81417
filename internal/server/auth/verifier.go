package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingSub   = errors.New("token missing sub")
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// Verifier validates identity provider JWTs against a JWKS endpoint.
type Verifier struct {
	keyfunc keyfunc.Keyfunc
	parser  *jwt.Parser
}

var _ TokenVerifier = (*Verifier)(nil)

// NewVerifier builds a verifier. When jwksURL is empty it is derived from the
// issuer's well-known path. The JWKS is refreshed in the background until ctx
// is done.
func NewVerifier(ctx context.Context, issuer, audience, jwksURL string) (*Verifier, error) {
	normalizedIssuer := normalizeIssuer(issuer)
	if normalizedIssuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = normalizedIssuer + ".well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(normalizedIssuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name}),
	)

	return &Verifier{keyfunc: keyProvider, parser: parser}, nil
}

// Verify parses and validates a JWT.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	token, err := v.parser.ParseWithClaims(tokenString, &rc, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(rc.Subject) == "" {
		return nil, ErrMissingSub
	}

	claims := &Claims{
		Subject:  rc.Subject,
		Issuer:   rc.Issuer,
		Audience: rc.Audience,
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}
