package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource produces a bearer token for mirror requests. Implementations
// typically exchange stored credentials for a short-lived JWT.
type TokenSource func(ctx context.Context) (string, error)

// expirySkew is how long before the JWT exp claim a cached token is
// considered stale, so requests never go out with a token about to die.
const expirySkew = 30 * time.Second

// tokenCache memoizes the token from a TokenSource until near expiry.
type tokenCache struct {
	source TokenSource

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenCache(source TokenSource) *tokenCache {
	return &tokenCache{source: source}
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.expires.IsZero() || time.Now().Before(c.expires.Add(-expirySkew))) {
		return c.token, nil
	}

	token, err := c.source(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expires = tokenExpiry(token)
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only schedules refreshes with it, the server still verifies.
// A token that does not parse as a JWT gets a zero expiry (never refreshed
// proactively).
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
