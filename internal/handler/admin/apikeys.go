package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/handler"
	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
)

// --- List Partner API Keys ---

type ListAPIKeysHandler struct {
	partners *service.PartnerService
	registry *service.Registry
}

func NewListAPIKeysHandler(ps *service.PartnerService, reg *service.Registry) *ListAPIKeysHandler {
	return &ListAPIKeysHandler{partners: ps, registry: reg}
}

type listAPIKeysResponse struct {
	PartnerCode string          `json:"partner_code"`
	APIKeys     []*model.APIKey `json:"api_keys"`
	Total       int             `json:"total"`
}

func (h *ListAPIKeysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.partners.Get(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	keys, err := h.registry.ListKeys(r.Context(), partner)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, listAPIKeysResponse{
		PartnerCode: partner.PartnerCode,
		APIKeys:     keys,
		Total:       len(keys),
	})
}

// --- Revoke Partner API Key ---

type RevokeAPIKeyHandler struct {
	partners *service.PartnerService
	registry *service.Registry
}

func NewRevokeAPIKeyHandler(ps *service.PartnerService, reg *service.Registry) *RevokeAPIKeyHandler {
	return &RevokeAPIKeyHandler{partners: ps, registry: reg}
}

func (h *RevokeAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.partners.Get(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	keyID := chi.URLParam(r, "keyID")
	if err := h.registry.RevokeKey(r.Context(), partner, keyID); err != nil {
		service.RespondError(w, err)
		return
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("key_id", keyID).
		Str("admin", middleware.GetAdminEmail(r.Context())).
		Msg("API key revoked by admin")
	handler.RespondJSON(w, http.StatusOK, handler.RevokeResponse{KeyID: keyID, Status: model.KeyStatusRevoked})
}
