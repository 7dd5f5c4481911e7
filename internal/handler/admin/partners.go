package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partner-gateway-service/internal/handler"
	"github.com/partner-gateway-service/internal/httputil"
	"github.com/partner-gateway-service/internal/middleware"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
	"github.com/partner-gateway-service/internal/store"
)

func partnerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid partner ID")
		return uuid.Nil, false
	}
	return id, true
}

// --- Create Partner ---

type CreatePartnerHandler struct {
	registry *service.Registry
}

func NewCreatePartnerHandler(reg *service.Registry) *CreatePartnerHandler {
	return &CreatePartnerHandler{registry: reg}
}

type createPartnerResponse struct {
	Partner   *model.Partner `json:"partner"`
	APIKey    string         `json:"api_key"`
	APISecret string         `json:"api_secret"`
	KeyID     string         `json:"key_id"`
	Message   string         `json:"message"`
}

func (h *CreatePartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req service.DirectPartnerInput
	if !handler.DecodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.registry.CreatePartnerDirect(r.Context(), middleware.GetAdminEmail(r.Context()), req)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	handler.RespondJSON(w, http.StatusCreated, createPartnerResponse{
		Partner:   result.Partner,
		APIKey:    result.APIKey,
		APISecret: result.APISecret,
		KeyID:     result.KeyID,
		Message:   "Partner created. Store these credentials securely. The secret will not be shown again.",
	})
}

// --- List Partners ---

type ListPartnersHandler struct {
	partners *service.PartnerService
}

func NewListPartnersHandler(ps *service.PartnerService) *ListPartnersHandler {
	return &ListPartnersHandler{partners: ps}
}

type listPartnersResponse struct {
	Partners []*model.Partner `json:"partners"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
}

func (h *ListPartnersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := httputil.ParsePage(q)
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filters := store.PartnerFilters{Page: page.Number, PerPage: page.Size}
	if s := q.Get("status"); s != "" {
		status := model.PartnerStatus(s)
		filters.Status = &status
	}

	partners, total, err := h.partners.List(r.Context(), filters)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	if partners == nil {
		partners = []*model.Partner{}
	}

	handler.RespondJSON(w, http.StatusOK, listPartnersResponse{
		Partners: partners,
		Total:    total,
		Page:     page.Number,
		PerPage:  page.Size,
	})
}

// --- Get Partner ---

type GetPartnerHandler struct {
	partners *service.PartnerService
}

func NewGetPartnerHandler(ps *service.PartnerService) *GetPartnerHandler {
	return &GetPartnerHandler{partners: ps}
}

func (h *GetPartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.partners.Get(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, partner)
}

// --- Review Partner ---

// ReviewPartnerHandler approves or rejects a partner awaiting approval.
type ReviewPartnerHandler struct {
	partners *service.PartnerService
}

func NewReviewPartnerHandler(ps *service.PartnerService) *ReviewPartnerHandler {
	return &ReviewPartnerHandler{partners: ps}
}

type reviewRequest struct {
	Action string `json:"action"`
	service.ApprovalInput
	Reason string `json:"reason"`
}

type reviewResponse struct {
	Partner   *model.Partner `json:"partner"`
	APIKey    string         `json:"api_key,omitempty"`
	APISecret string         `json:"api_secret,omitempty"`
	Message   string         `json:"message"`
}

func (h *ReviewPartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !handler.DecodeJSON(w, r, &req, false) {
		return
	}
	admin := middleware.GetAdminEmail(r.Context())

	switch req.Action {
	case "approve":
		result, err := h.partners.Approve(r.Context(), id, admin, req.ApprovalInput)
		if err != nil {
			service.RespondError(w, err)
			return
		}
		handler.RespondJSON(w, http.StatusOK, reviewResponse{
			Partner:   result.Partner,
			APIKey:    result.APIKey,
			APISecret: result.APISecret,
			Message:   "Partner approved",
		})
	case "reject":
		partner, err := h.partners.Reject(r.Context(), id, admin, service.RejectInput{Reason: req.Reason})
		if err != nil {
			service.RespondError(w, err)
			return
		}
		handler.RespondJSON(w, http.StatusOK, reviewResponse{Partner: partner, Message: "Partner rejected"})
	default:
		service.RespondError(w, service.NewValidation(map[string]string{
			"action": "must be one of: approve, reject",
		}))
	}
}

// --- Suspend / Activate / Deactivate ---

type SuspendPartnerHandler struct {
	partners *service.PartnerService
}

func NewSuspendPartnerHandler(ps *service.PartnerService) *SuspendPartnerHandler {
	return &SuspendPartnerHandler{partners: ps}
}

func (h *SuspendPartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	var req service.SuspendInput
	if !handler.DecodeJSON(w, r, &req, false) {
		return
	}

	partner, err := h.partners.Suspend(r.Context(), id, middleware.GetAdminEmail(r.Context()), req)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, partner)
}

type ActivatePartnerHandler struct {
	partners *service.PartnerService
}

func NewActivatePartnerHandler(ps *service.PartnerService) *ActivatePartnerHandler {
	return &ActivatePartnerHandler{partners: ps}
}

func (h *ActivatePartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.partners.Activate(r.Context(), id, middleware.GetAdminEmail(r.Context()))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, partner)
}

type DeactivatePartnerHandler struct {
	partners *service.PartnerService
}

func NewDeactivatePartnerHandler(ps *service.PartnerService) *DeactivatePartnerHandler {
	return &DeactivatePartnerHandler{partners: ps}
}

func (h *DeactivatePartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	partner, err := h.partners.Deactivate(r.Context(), id, middleware.GetAdminEmail(r.Context()))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, partner)
}
