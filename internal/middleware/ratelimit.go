package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/partner-gateway-service/internal/ratelimit"
)

// RateLimit returns middleware that charges each authenticated request to the
// caller's quota and rejects it once either window is exhausted. It must run
// after APIKeyAuth.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			limits := principal.Limits()
			if limits.PerMinute <= 0 || limits.PerDay <= 0 {
				respondError(w, http.StatusInternalServerError, "invalid_rate_limit", "Rate limit configuration is invalid")
				return
			}

			allowed, info := l.CheckAndIncrement(r.Context(), principal.Identity(), limits)
			info.SetHeaders(w.Header())
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(info.RetryAfter(time.Now())))
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
