// Package auth resolves the caller's identity key from incoming requests.
package auth

import (
	"time"

	"github.com/labstack/echo/v4"
)

// identityContextKey is the echo context key holding the resolved identity.
const identityContextKey = "identity_key"

// Claims contains the verified token details we care about.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
}

// IdentityKey returns the identity key resolved by Middleware, or "" when the
// request carried none.
func IdentityKey(c echo.Context) string {
	key, _ := c.Get(identityContextKey).(string)
	return key
}

func setIdentityKey(c echo.Context, key string) {
	c.Set(identityContextKey, key)
}
