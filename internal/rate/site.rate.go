package rate

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"site-service/internal/clientip"
	"site-service/pkg/response"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var rateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limited_total",
		Help: "Requests rejected by the rate limiter, by scope",
	},
	[]string{"scope"},
)

// Limit is one fixed-window policy: at most Max requests per Window, then
// blocked for Block.
type Limit struct {
	Max    int
	Window time.Duration
	Block  time.Duration
}

// Limiter is a Redis fixed-window limiter. Redis being down fails open so
// an unavailable cache never takes the site's forms with it.
type Limiter struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewLimiter(rdb *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger}
}

// Allow counts one hit for key under scope. It returns whether the request
// may proceed and, when it may not, the seconds the client should wait.
func (l *Limiter) Allow(ctx context.Context, scope, key string, lim Limit) (bool, int) {
	if l == nil || l.rdb == nil || key == "" || lim.Max <= 0 {
		return true, 0
	}

	countKey := "rl:" + scope + ":" + key
	blockKey := countKey + ":blocked"

	// Already blocked from a previous overflow.
	if blocked, err := l.rdb.Get(ctx, blockKey).Result(); err == nil && blocked == "1" {
		ttl, _ := l.rdb.TTL(ctx, blockKey).Result()
		rateLimitedTotal.WithLabelValues(scope).Inc()
		return false, retryAfterSeconds(ttl, lim.Block)
	}

	count, err := l.rdb.Incr(ctx, countKey).Result()
	if err != nil {
		// Fail open: don't block traffic when Redis is unavailable.
		l.logger.Warn("rate limiter unavailable, failing open",
			zap.String("scope", scope),
			zap.Error(err))
		return true, 0
	}
	if count == 1 {
		l.rdb.Expire(ctx, countKey, lim.Window)
	}

	if count > int64(lim.Max) {
		l.rdb.Set(ctx, blockKey, "1", lim.Block)
		rateLimitedTotal.WithLabelValues(scope).Inc()
		l.logger.Info("rate limit exceeded",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("max", lim.Max))
		return false, retryAfterSeconds(lim.Block, lim.Block)
	}

	return true, 0
}

// retryAfterSeconds rounds a TTL up to whole seconds, falling back to the
// block duration when Redis reports no expiry.
func retryAfterSeconds(ttl, fallback time.Duration) int {
	if ttl <= 0 {
		ttl = fallback
	}
	s := int(math.Ceil(ttl.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Middleware enforces lim per client IP (resolved by clientip.Middleware)
// for every request passing through it.
func (l *Limiter) Middleware(scope string, lim Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientip.FromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			allowed, retryAfter := l.Allow(r.Context(), scope, key, lim)
			if !allowed {
				response.TooManyRequests(w, retryAfter, "too many requests, please try again later")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(lim.Max))
			next.ServeHTTP(w, r)
		})
	}
}
