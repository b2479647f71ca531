package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/ratelimit"
)

// RateLimit counts hits per client IP inside a fixed window and rejects with
// 429 once max is exceeded. A store failure rejects the request outright: the
// limiter never fails open.
func RateLimit(limiter *ratelimit.Limiter, purpose string, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := purpose + ":" + clientIP(r)

			count, ttl, err := limiter.Hit(r.Context(), key, window)
			if err != nil {
				logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			remaining := int64(max) - count
			if remaining < 0 {
				remaining = 0
			}
			reset := time.Now().Add(ttl).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

			if count > int64(max) {
				retryAfter := int(ttl.Seconds())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"status":"error","message":"Too many attempts, please try again in %d seconds"}`, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
