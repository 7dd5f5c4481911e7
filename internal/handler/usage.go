package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/ratelimit"
)

type UsageHandler struct {
	limiter *ratelimit.Limiter
}

func NewUsageHandler(l *ratelimit.Limiter) *UsageHandler {
	return &UsageHandler{limiter: l}
}

type UsageResponse struct {
	PartnerCode   string        `json:"partner_code"`
	TotalRequests int64         `json:"total_requests"`
	LastRequestAt *time.Time    `json:"last_request_at,omitempty"`
	KeyID         string        `json:"key_id,omitempty"`
	KeyRequests   *int64        `json:"key_requests,omitempty"`
	RateLimit     RateLimitInfo `json:"rate_limit"`
}

type RateLimitInfo struct {
	PerMinute       int   `json:"per_minute"`
	PerDay          int   `json:"per_day"`
	RemainingMinute int   `json:"remaining_minute"`
	RemainingDay    int   `json:"remaining_day"`
	ResetMinute     int64 `json:"reset_minute"`
	ResetDay        int64 `json:"reset_day"`
}

func (h *UsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		RespondError(w, http.StatusUnauthorized, "missing_api_key", "API key required")
		return
	}

	limits := principal.Limits()
	// Read-only; the request itself was already charged by the rate limit middleware.
	info, err := h.limiter.Peek(r.Context(), principal.Identity(), limits)
	if err != nil {
		// info still carries full quota and real reset times.
		log.Warn().Err(err).Str("partner_code", principal.Partner.PartnerCode).Msg("failed to read rate limit counters")
	}

	resp := UsageResponse{
		PartnerCode:   principal.Partner.PartnerCode,
		TotalRequests: principal.Partner.TotalRequests,
		LastRequestAt: principal.Partner.LastRequestAt,
		RateLimit: RateLimitInfo{
			PerMinute:       limits.PerMinute,
			PerDay:          limits.PerDay,
			RemainingMinute: info.RemainingMinute,
			RemainingDay:    info.RemainingDay,
			ResetMinute:     info.ResetMinute,
			ResetDay:        info.ResetDay,
		},
	}
	if principal.Key != nil {
		n := principal.Key.TotalRequests
		resp.KeyID = principal.Key.KeyID
		resp.KeyRequests = &n
	}
	RespondJSON(w, http.StatusOK, resp)
}
