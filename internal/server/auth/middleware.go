package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderUserID carries the identity key when bearer tokens are not in use.
const HeaderUserID = "X-User-Id"

// Middleware resolves the caller's identity key.
//
// With a verifier, a valid "Authorization: Bearer" token is required when the
// header is present, and the token subject becomes the identity key. Without
// one, the X-User-Id header set by the trusted front end is used. A request
// with no identity passes through with an empty key; handlers that need one
// reject it.
func Middleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				setIdentityKey(c, strings.TrimSpace(c.Request().Header.Get(HeaderUserID)))
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return next(c)
			}

			token, ok := extractBearerToken(authHeader)
			if !ok {
				slog.Info("auth failure: malformed Authorization header", "path", c.Path())
				return respondUnauthorized(c, "invalid authorization header")
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				slog.Info("auth failure: token invalid", "path", c.Path(), "error", err)
				return respondUnauthorized(c, "invalid token")
			}

			setIdentityKey(c, claims.Subject)
			return next(c)
		}
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":  message,
		"reason": "Unauthorized",
	})
}
