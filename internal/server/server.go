// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/partner-gateway-service/internal/handler"
	"github.com/partner-gateway-service/internal/handler/admin"
	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/ratelimit"
	"github.com/partner-gateway-service/internal/service"
	"github.com/partner-gateway-service/internal/webhook"
)

// Deps are the components the routes are built from.
type Deps struct {
	Partners   *service.PartnerService
	Registry   *service.Registry
	Limiter    *ratelimit.Limiter
	Dispatcher *webhook.Dispatcher
	Queue      *webhook.Queue
	AdminAuth  *middleware.GoogleAuth
	Metrics    *metrics.Metrics
	Health     *handler.HealthHandler

	// AuthAttempts throttles repeated authentication failures per client.
	AuthAttempts *middleware.AuthAttemptLimiter
	CORSOrigins  []string
	TrustProxy   bool
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestMetrics(d.Metrics))
	r.Use(middleware.SecurityHeaders)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.APIKeyHeader},
			ExposedHeaders: []string{
				"X-RateLimit-Limit-Minute", "X-RateLimit-Remaining-Minute", "X-RateLimit-Reset-Minute",
				"X-RateLimit-Limit-Day", "X-RateLimit-Remaining-Day", "X-RateLimit-Reset-Day",
				"Retry-After",
			},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Method(http.MethodGet, "/health", d.Health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireJSON)

		r.Route("/partners/auth", func(r chi.Router) {
			r.Method(http.MethodPost, "/register", handler.NewRegisterHandler(d.Partners))
			r.Method(http.MethodGet, "/verify-email", handler.NewVerifyEmailHandler(d.Partners))
			r.Method(http.MethodPost, "/login", handler.NewLoginHandler(d.Partners, d.AuthAttempts))
			r.Method(http.MethodPost, "/refresh", handler.NewRefreshHandler(d.Partners))
			r.Method(http.MethodPost, "/forgot-password", handler.NewForgotPasswordHandler(d.Partners))
			r.Method(http.MethodPost, "/reset-password", handler.NewResetPasswordHandler(d.Partners))
			r.With(middleware.PartnerJWT(d.Partners, d.AuthAttempts)).
				Method(http.MethodPut, "/change-password", handler.NewChangePasswordHandler(d.Partners))
		})

		r.Route("/partner", func(r chi.Router) {
			r.Use(middleware.PartnerJWT(d.Partners, d.AuthAttempts))

			r.Method(http.MethodGet, "/me", handler.NewMeHandler())
			r.Method(http.MethodPut, "/me", handler.NewUpdateProfileHandler(d.Partners))

			r.Method(http.MethodGet, "/api-keys", handler.NewListAPIKeysHandler(d.Registry))
			r.Method(http.MethodPost, "/api-keys", handler.NewCreateAPIKeyHandler(d.Registry))
			r.Method(http.MethodDelete, "/api-keys/{keyID}", handler.NewRevokeAPIKeyHandler(d.Registry))
			r.Method(http.MethodPost, "/api-keys/{keyID}/rotate", handler.NewRotateAPIKeyHandler(d.Registry))

			r.Method(http.MethodGet, "/webhooks", handler.NewGetWebhookConfigHandler())
			r.Method(http.MethodPut, "/webhooks", handler.NewUpdateWebhookConfigHandler(d.Partners))
			r.Method(http.MethodPost, "/webhooks/test", handler.NewTestWebhookHandler(d.Dispatcher))
		})

		// Partner API, authenticated by API key and charged against the quota.
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(d.Registry, d.AuthAttempts))
			r.Use(middleware.RateLimit(d.Limiter))

			r.Method(http.MethodGet, "/usage", handler.NewUsageHandler(d.Limiter))
			r.Method(http.MethodGet, "/whoami", handler.NewWhoAmIHandler())
			r.With(middleware.RequireScope(model.ScopeBooking)).
				Method(http.MethodGet, "/webhook-events", handler.NewWebhookEventsHandler())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(d.AdminAuth.Middleware(d.AuthAttempts))

			r.Method(http.MethodPost, "/partners", admin.NewCreatePartnerHandler(d.Registry))
			r.Method(http.MethodGet, "/partners", admin.NewListPartnersHandler(d.Partners))
			r.Route("/partners/{id}", func(r chi.Router) {
				r.Method(http.MethodGet, "/", admin.NewGetPartnerHandler(d.Partners))
				r.Method(http.MethodPost, "/approve", admin.NewReviewPartnerHandler(d.Partners))
				r.Method(http.MethodPost, "/suspend", admin.NewSuspendPartnerHandler(d.Partners))
				r.Method(http.MethodPost, "/activate", admin.NewActivatePartnerHandler(d.Partners))
				r.Method(http.MethodPost, "/deactivate", admin.NewDeactivatePartnerHandler(d.Partners))
				r.Method(http.MethodGet, "/api-keys", admin.NewListAPIKeysHandler(d.Partners, d.Registry))
				r.Method(http.MethodDelete, "/api-keys/{keyID}", admin.NewRevokeAPIKeyHandler(d.Partners, d.Registry))
				r.Method(http.MethodPost, "/events", admin.NewPublishEventHandler(d.Partners, d.Queue))
			})
		})
	})

	return r
}
