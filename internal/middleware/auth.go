package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/httputil"
	"github.com/partner-gateway-service/internal/service"
)

// APIKeyHeader carries the partner credential on API requests.
const APIKeyHeader = "X-API-Key"

type principalKey struct{}

// GetPrincipal extracts the authenticated API caller from the request context.
func GetPrincipal(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(principalKey{}).(*service.Principal)
	return p
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticator resolves a presented API credential.
type Authenticator interface {
	Authenticate(ctx context.Context, presented, clientIP string) (*service.Principal, error)
}

// APIKeyAuth returns middleware that authenticates partner API requests via
// the X-API-Key header.
func APIKeyAuth(auth Authenticator, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts := limiter.guard(r, "api_key")
			if !attempts.admit(w) {
				return
			}

			presented := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if presented == "" {
				attempts.failed()
				respondError(w, http.StatusUnauthorized, "missing_api_key", "API key required")
				return
			}

			principal, err := auth.Authenticate(r.Context(), presented, httputil.ClientIP(r))
			if err != nil {
				var authErr *service.AuthError
				switch {
				case errors.As(err, &authErr) && errors.Is(err, service.ErrCredentialInactive):
					attempts.failed()
					respondError(w, http.StatusForbidden, "key_disabled", authErr.Reason)
				case errors.As(err, &authErr):
					attempts.failed()
					respondError(w, http.StatusUnauthorized, "invalid_api_key", authErr.Reason)
				default:
					log.Error().Err(err).Msg("API key authentication failed")
					respondError(w, http.StatusServiceUnavailable, "auth_unavailable", "Authentication is temporarily unavailable")
				}
				return
			}

			attempts.succeeded()
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
