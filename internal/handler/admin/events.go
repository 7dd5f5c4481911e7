package admin

import (
	"encoding/json"
	"net/http"

	"github.com/partner-gateway-service/internal/handler"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
	"github.com/partner-gateway-service/internal/webhook"
)

// PublishEventHandler queues a webhook event for a partner. Booking flows
// publish through the same queue; this endpoint lets operators replay or
// inject events by hand.
type PublishEventHandler struct {
	partners *service.PartnerService
	queue    *webhook.Queue
}

func NewPublishEventHandler(ps *service.PartnerService, q *webhook.Queue) *PublishEventHandler {
	return &PublishEventHandler{partners: ps, queue: q}
}

type publishEventRequest struct {
	Event model.WebhookEvent `json:"event"`
	Data  json.RawMessage    `json:"data"`
}

type publishEventResponse struct {
	Queued bool               `json:"queued"`
	Event  model.WebhookEvent `json:"event"`
}

func (h *PublishEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := partnerID(w, r)
	if !ok {
		return
	}

	var req publishEventRequest
	if !handler.DecodeJSON(w, r, &req, false) {
		return
	}
	if !req.Event.Valid() {
		service.RespondError(w, service.NewValidation(map[string]string{"event": "unknown webhook event"}))
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("{}")
	}

	partner, err := h.partners.Get(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	if !h.queue.Publish(partner, req.Event, req.Data) {
		handler.RespondError(w, http.StatusServiceUnavailable, "queue_full", "Webhook queue is full, try again later")
		return
	}
	handler.RespondJSON(w, http.StatusAccepted, publishEventResponse{Queued: true, Event: req.Event})
}
