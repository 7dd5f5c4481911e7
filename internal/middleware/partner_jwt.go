package middleware

import (
	"context"
	"net/http"

	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
)

type partnerKey struct{}

// GetPartner extracts the partner signed in to the dashboard.
func GetPartner(ctx context.Context) *model.Partner {
	p, _ := ctx.Value(partnerKey{}).(*model.Partner)
	return p
}

func WithPartner(ctx context.Context, p *model.Partner) context.Context {
	return context.WithValue(ctx, partnerKey{}, p)
}

// PartnerAuthorizer resolves a dashboard access token.
type PartnerAuthorizer interface {
	Authorize(ctx context.Context, accessToken string) (*model.Partner, error)
}

// PartnerJWT authenticates dashboard requests carrying a Bearer access token.
func PartnerJWT(authz PartnerAuthorizer, limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts := limiter.guard(r, "dashboard")
			if !attempts.admit(w) {
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				attempts.failed()
				respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization token")
				return
			}

			partner, err := authz.Authorize(r.Context(), token)
			if err != nil {
				attempts.failed()
				service.RespondError(w, err)
				return
			}

			attempts.succeeded()
			next.ServeHTTP(w, r.WithContext(WithPartner(r.Context(), partner)))
		})
	}
}
