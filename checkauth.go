package authkit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finovia/authkit/api"
)

// CheckAuth revalidates the stored session. It never returns an error, so
// callers can treat it as a safe probe:
//
//   - no stored token: false, with zero network calls
//   - token locally expired (decoded without a round-trip): session cleared,
//     false, zero network calls
//   - backend confirms: token rotated, user rehydrated, true
//   - backend 401: session cleared, false
//   - anything else (network, 5xx): session left untouched, false
//
// Concurrent callers are coalesced into a single in-flight check and observe
// its result.
func (c *Client) CheckAuth(ctx context.Context) bool {
	if c == nil || c.api == nil {
		return false
	}

	result, _, _ := c.checkGroup.Do("check-auth", func() (any, error) {
		ok := c.checkAuthOnce(ctx)
		if c.events != nil {
			c.events.emit(SessionEvent{Kind: EventCheck, Success: ok})
		}
		return ok, nil
	})
	ok, _ := result.(bool)
	return ok
}

func (c *Client) checkAuthOnce(ctx context.Context) bool {
	token := c.accessTokenSnapshot()
	if token == "" {
		return false
	}

	if tokenExpiredLocally(token, c.config.Session.ExpiryLeeway, time.Now()) {
		c.clearSession(ctx)
		return false
	}

	resp, err := c.api.Check(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.clearSession(ctx)
			return false
		}
		// Transport and server-side failures must not log the user out.
		log.Print("authkit: auth check inconclusive, keeping session")
		return false
	}

	rotated := resp.SessionToken()
	if rotated == "" {
		rotated = token
	}

	c.mu.Lock()
	c.state.authenticated = true
	c.state.accessToken = rotated
	if resp.RefreshToken != "" {
		c.state.refreshToken = resp.RefreshToken
	}
	if resp.User != nil {
		c.state.user = userFromAPI(resp.User)
	}
	c.api.SetBearer(rotated)
	c.persistLocked(ctx)
	c.mu.Unlock()
	return true
}

// tokenExpiredLocally decodes the token payload without verifying the
// signature; the client holds no keys and only needs the exp claim. A token
// that cannot be decoded at all is treated as expired, since the backend
// would reject it anyway and clearing locally avoids the round-trip.
func tokenExpiredLocally(token string, leeway time.Duration, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.Add(leeway).After(exp.Time)
}
