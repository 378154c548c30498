package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"contactlink/internal/metrics"
)

// Counter is the subset of Redis commands the rate limiter needs.
// *redis.Client satisfies it.
type Counter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RateLimitOptions configures RateLimiter.
type RateLimitOptions struct {
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
	KeyPrefix     string
}

// RateLimiter allows Limit requests per client IP in each fixed Window.
// A client over the limit is rejected for BlockDuration. Redis failures
// let the request through. A nil rdb disables limiting.
func RateLimiter(rdb Counter, opts RateLimitOptions, m *metrics.Metrics, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if rdb == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := opts.KeyPrefix + ":ip:" + clientIP(r)
			blockKey := key + ":blocked"

			if blocked, _ := rdb.Get(ctx, blockKey).Result(); blocked == "1" {
				ttl, _ := rdb.TTL(ctx, blockKey).Result()
				m.IncrementRateLimited()
				reject(w, ttl)
				return
			}

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(ctx, key, opts.Window)
			}

			if count > int64(opts.Limit) {
				if opts.BlockDuration > 0 {
					rdb.Set(ctx, blockKey, "1", opts.BlockDuration)
				}
				m.IncrementRateLimited()
				ttl := opts.BlockDuration
				if ttl <= 0 {
					ttl, _ = rdb.TTL(ctx, key).Result()
				}
				reject(w, ttl)
				return
			}

			ttl, _ := rdb.TTL(ctx, key).Result()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(opts.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(opts.Limit-int(count)))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
