package handler

import (
	"net/http"

	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
)

// WhoAmIHandler describes the credential a partner API request came in on.
type WhoAmIHandler struct{}

func NewWhoAmIHandler() *WhoAmIHandler { return &WhoAmIHandler{} }

type WhoAmIResponse struct {
	PartnerCode string              `json:"partner_code"`
	Name        string              `json:"name"`
	CompanyName string              `json:"company_name"`
	Status      model.PartnerStatus `json:"status"`
	AuthMethod  string              `json:"auth_method"`
	KeyID       string              `json:"key_id,omitempty"`
	Scopes      []string            `json:"scopes"`
}

func (h *WhoAmIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		RespondError(w, http.StatusUnauthorized, "missing_api_key", "API key required")
		return
	}

	resp := WhoAmIResponse{
		PartnerCode: principal.Partner.PartnerCode,
		Name:        principal.Partner.Name,
		CompanyName: principal.Partner.CompanyName,
		Status:      principal.Partner.Status,
		AuthMethod:  "legacy",
		Scopes:      model.AllScopes(),
	}
	if principal.Key != nil {
		resp.AuthMethod = "api_key"
		resp.KeyID = principal.Key.KeyID
		resp.Scopes = principal.Key.Scopes
	}
	RespondJSON(w, http.StatusOK, resp)
}

// WebhookEventsHandler lists the booking events the caller receives and the
// ones it could subscribe to.
type WebhookEventsHandler struct{}

func NewWebhookEventsHandler() *WebhookEventsHandler { return &WebhookEventsHandler{} }

type WebhookEventsResponse struct {
	Subscribed []model.WebhookEvent `json:"subscribed"`
	Available  []model.WebhookEvent `json:"available"`
	Configured bool                 `json:"is_configured"`
}

func (h *WebhookEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		RespondError(w, http.StatusUnauthorized, "missing_api_key", "API key required")
		return
	}

	subscribed := principal.Partner.WebhookEvents
	if subscribed == nil {
		subscribed = []model.WebhookEvent{}
	}
	RespondJSON(w, http.StatusOK, WebhookEventsResponse{
		Subscribed: subscribed,
		Available:  model.WebhookEvents(),
		Configured: principal.Partner.WebhookURL != "",
	})
}
