package billing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultTokenSafetyMargin = 60 * time.Second

// TokenSource performs the actual credential exchange against the gateway.
type TokenSource interface {
	FetchAccessToken(ctx context.Context) (*AccessTokenResponse, error)
}

// TokenCache hands out the cached gateway access token, refreshing it lazily
// once it gets within the safety margin of expiry. Concurrent refreshes are
// coalesced through singleflight so an expired token under load triggers one
// exchange, not one per caller. A failed exchange leaves the previous cache
// entry untouched.
type TokenCache struct {
	source TokenSource
	margin time.Duration

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func NewTokenCache(source TokenSource, margin time.Duration) *TokenCache {
	if margin <= 0 {
		margin = defaultTokenSafetyMargin
	}
	return &TokenCache{source: source, margin: margin}
}

func (tc *TokenCache) GetToken(ctx context.Context) (string, error) {
	if token, ok := tc.cached(); ok {
		return token, nil
	}

	v, err, _ := tc.group.Do("token", func() (interface{}, error) {
		// Another caller may have refreshed while we waited for the flight.
		if token, ok := tc.cached(); ok {
			return token, nil
		}

		resp, err := tc.source.FetchAccessToken(ctx)
		if err != nil {
			return "", err
		}

		tc.mu.Lock()
		tc.token = resp.AccessToken
		tc.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		tc.mu.Unlock()

		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (tc *TokenCache) cached() (string, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.token == "" {
		return "", false
	}
	if time.Now().After(tc.expiresAt.Add(-tc.margin)) {
		return "", false
	}
	return tc.token, true
}
