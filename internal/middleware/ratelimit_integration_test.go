//go:build integration

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/testutil/containers"
)

func TestRateLimiter_Redis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	opts := RateLimitOptions{Limit: 3, Window: time.Minute, BlockDuration: 2 * time.Minute, KeyPrefix: "rl"}
	h := RateLimiter(rc.Client, opts, nil, discardLogger())(okHandler())

	for i := range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, limitedRequest("10.0.0.1"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	blocked, err := rc.Client.Get(ctx, "rl:ip:10.0.0.1:blocked").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", blocked)

	ttl, err := rc.Client.TTL(ctx, "rl:ip:10.0.0.1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0), "window counter expires")

	require.NoError(t, rc.FlushAll(ctx))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, limitedRequest("10.0.0.1"))
	assert.Equal(t, http.StatusOK, rec.Code, "flushing state lifts the block")
}
