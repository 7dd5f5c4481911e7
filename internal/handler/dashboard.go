package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partner-gateway-service/internal/credential"
	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
	"github.com/partner-gateway-service/internal/webhook"
)

const (
	secretTailLen   = 4
	keySecretNotice = "Send api_secret in the X-API-Key header. Store it securely; it will not be shown again."
)

// dashboardPartner returns the partner attached by PartnerJWT, writing a 401
// when the route was mounted without it.
func dashboardPartner(w http.ResponseWriter, r *http.Request) *model.Partner {
	partner := middleware.GetPartner(r.Context())
	if partner == nil {
		RespondError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization token")
	}
	return partner
}

// --- Profile ---

type MeHandler struct{}

func NewMeHandler() *MeHandler { return &MeHandler{} }

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if partner := dashboardPartner(w, r); partner != nil {
		RespondJSON(w, http.StatusOK, partner)
	}
}

type UpdateProfileHandler struct {
	partners *service.PartnerService
}

func NewUpdateProfileHandler(ps *service.PartnerService) *UpdateProfileHandler {
	return &UpdateProfileHandler{partners: ps}
}

func (h *UpdateProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	var req service.ProfileUpdate
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	updated, err := h.partners.UpdateProfile(r.Context(), partner, req)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

// --- API keys ---

type ListAPIKeysHandler struct {
	registry *service.Registry
}

func NewListAPIKeysHandler(reg *service.Registry) *ListAPIKeysHandler {
	return &ListAPIKeysHandler{registry: reg}
}

type APIKeyListResponse struct {
	APIKeys []*model.APIKey `json:"api_keys"`
	Total   int             `json:"total"`
}

func (h *ListAPIKeysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	keys, err := h.registry.ListKeys(r.Context(), partner)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, APIKeyListResponse{APIKeys: keys, Total: len(keys)})
}

type CreateAPIKeyHandler struct {
	registry *service.Registry
}

func NewCreateAPIKeyHandler(reg *service.Registry) *CreateAPIKeyHandler {
	return &CreateAPIKeyHandler{registry: reg}
}

// CreatedKeyResponse is the only response that ever carries a key's secret.
type CreatedKeyResponse struct {
	Key       *model.APIKey `json:"key"`
	APISecret string        `json:"api_secret"`
	Message   string        `json:"message"`
}

func newCreatedKeyResponse(c *service.CreatedKey) CreatedKeyResponse {
	return CreatedKeyResponse{
		Key:       c.Key,
		APISecret: c.APISecret,
		Message:   keySecretNotice,
	}
}

func (h *CreateAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	var req service.KeyOptions
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	created, err := h.registry.CreateKey(r.Context(), partner, req)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, newCreatedKeyResponse(created))
}

type RevokeAPIKeyHandler struct {
	registry *service.Registry
}

func NewRevokeAPIKeyHandler(reg *service.Registry) *RevokeAPIKeyHandler {
	return &RevokeAPIKeyHandler{registry: reg}
}

type RevokeResponse struct {
	KeyID  string             `json:"key_id"`
	Status model.APIKeyStatus `json:"status"`
}

func (h *RevokeAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	keyID := chi.URLParam(r, "keyID")
	if err := h.registry.RevokeKey(r.Context(), partner, keyID); err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, RevokeResponse{KeyID: keyID, Status: model.KeyStatusRevoked})
}

type RotateAPIKeyHandler struct {
	registry *service.Registry
}

func NewRotateAPIKeyHandler(reg *service.Registry) *RotateAPIKeyHandler {
	return &RotateAPIKeyHandler{registry: reg}
}

// RotateResponse carries Error only when the replacement was issued but the
// old key is still active.
type RotateResponse struct {
	OldKeyID string `json:"old_key_id"`
	Error    string `json:"error,omitempty"`
	CreatedKeyResponse
}

func (h *RotateAPIKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	rotated, err := h.registry.RotateKey(r.Context(), partner, chi.URLParam(r, "keyID"))
	if rotated == nil {
		service.RespondError(w, err)
		return
	}

	resp := RotateResponse{
		OldKeyID:           rotated.OldKeyID,
		CreatedKeyResponse: newCreatedKeyResponse(rotated.New),
	}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		resp.Error = svcErr.Code
		resp.Message = svcErr.Message
		RespondJSON(w, svcErr.Kind.HTTPStatus(), resp)
		return
	}
	RespondJSON(w, http.StatusOK, resp)
}

// --- Webhooks ---

type WebhookConfigResponse struct {
	WebhookURL      string               `json:"webhook_url"`
	WebhookEvents   []model.WebhookEvent `json:"webhook_events"`
	SecretPreview   string               `json:"webhook_secret_preview,omitempty"`
	IsConfigured    bool                 `json:"is_configured"`
	AvailableEvents []model.WebhookEvent `json:"available_events"`
}

func newWebhookConfigResponse(p *model.Partner) WebhookConfigResponse {
	resp := WebhookConfigResponse{
		WebhookURL:      p.WebhookURL,
		WebhookEvents:   p.WebhookEvents,
		IsConfigured:    p.WebhookURL != "",
		AvailableEvents: model.WebhookEvents(),
	}
	if resp.WebhookEvents == nil {
		resp.WebhookEvents = []model.WebhookEvent{}
	}
	if p.WebhookSecret != "" {
		resp.SecretPreview = credential.Tail(p.WebhookSecret, secretTailLen)
	}
	return resp
}

type GetWebhookConfigHandler struct{}

func NewGetWebhookConfigHandler() *GetWebhookConfigHandler { return &GetWebhookConfigHandler{} }

func (h *GetWebhookConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if partner := dashboardPartner(w, r); partner != nil {
		RespondJSON(w, http.StatusOK, newWebhookConfigResponse(partner))
	}
}

type UpdateWebhookConfigHandler struct {
	partners *service.PartnerService
}

func NewUpdateWebhookConfigHandler(ps *service.PartnerService) *UpdateWebhookConfigHandler {
	return &UpdateWebhookConfigHandler{partners: ps}
}

func (h *UpdateWebhookConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	var req service.WebhookConfigInput
	if !DecodeJSON(w, r, &req, false) {
		return
	}

	updated, err := h.partners.UpdateWebhookConfig(r.Context(), partner, req)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, newWebhookConfigResponse(updated))
}

// TestWebhookHandler sends a single sample delivery to the partner's
// configured URL and reports the outcome.
type TestWebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

func NewTestWebhookHandler(d *webhook.Dispatcher) *TestWebhookHandler {
	return &TestWebhookHandler{dispatcher: d}
}

type TestWebhookRequest struct {
	EventType model.WebhookEvent `json:"event_type"`
}

type TestWebhookResponse struct {
	Success        bool    `json:"success"`
	StatusCode     int     `json:"status_code,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

func (h *TestWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := dashboardPartner(w, r)
	if partner == nil {
		return
	}

	var req TestWebhookRequest
	if !DecodeJSON(w, r, &req, true) {
		return
	}
	if req.EventType == "" {
		req.EventType = model.EventBookingCreated
	}
	if !req.EventType.Valid() {
		service.RespondError(w, service.NewValidation(map[string]string{
			"event_type": "unknown webhook event",
		}))
		return
	}
	if partner.WebhookURL == "" {
		RespondError(w, http.StatusBadRequest, "webhook_not_configured", "No webhook URL configured")
		return
	}

	result := h.dispatcher.Test(r.Context(), partner, req.EventType)
	RespondJSON(w, http.StatusOK, TestWebhookResponse{
		Success:        result.Success,
		StatusCode:     result.StatusCode,
		ResponseTimeMS: result.ElapsedMS(),
		Error:          result.Error,
	})
}
