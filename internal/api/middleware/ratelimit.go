package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgevision/inference-api/internal/api/response"
)

const defaultRequestsPerMinute = 60

// RateLimit provides sliding-window rate limiting via Redis, keyed by the
// owner id resolved by the Owner middleware.
type RateLimit struct {
	client         *redis.Client
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(client *redis.Client, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{client: client, requestsPerMin: requestsPerMin}
}

// Limit applies rate limiting based on the owner id in the request context.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := GetOwnerID(r)
		if !ok {
			// Owner middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.incrWithExpiry(r, "ratelimit:"+owner, 60*time.Second)
		if err != nil {
			// On Redis error, allow the request (fail open)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(60 * time.Second).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) incrWithExpiry(r *http.Request, key string, expiry time.Duration) (int64, error) {
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(r.Context(), key)
	pipe.Expire(r.Context(), key, expiry)
	if _, err := pipe.Exec(r.Context()); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
