package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct {
	calls     int64
	expiresIn int
	err       error
}

func (f *fakeTokenSource) FetchAccessToken(ctx context.Context) (*AccessTokenResponse, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &AccessTokenResponse{
		AccessToken: "token-" + string(rune('a'+n-1)),
		TokenType:   "Bearer",
		ExpiresIn:   f.expiresIn,
	}, nil
}

func TestTokenCacheCoalescesConcurrentRefreshes(t *testing.T) {
	source := &fakeTokenSource{expiresIn: 3600}
	cache := NewTokenCache(source, time.Minute)

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := cache.GetToken(context.Background())
			require.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&source.calls), "expected one exchange for concurrent callers")
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestTokenCacheServesCachedToken(t *testing.T) {
	source := &fakeTokenSource{expiresIn: 3600}
	cache := NewTokenCache(source, time.Minute)

	first, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	second, err := cache.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, source.calls)
}

func TestTokenCacheRefreshesInsideSafetyMargin(t *testing.T) {
	// Tokens expiring within the margin are treated as stale.
	source := &fakeTokenSource{expiresIn: 30}
	cache := NewTokenCache(source, time.Minute)

	_, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	_, err = cache.GetToken(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, source.calls)
}

func TestTokenCacheFailedExchangeReturnsError(t *testing.T) {
	source := &fakeTokenSource{err: errors.New("gateway down")}
	cache := NewTokenCache(source, time.Minute)

	_, err := cache.GetToken(context.Background())
	assert.Error(t, err)
}
