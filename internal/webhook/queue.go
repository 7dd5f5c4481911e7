package webhook

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/worker"
)

// Sender delivers one event. *Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, partner *model.Partner, event model.WebhookEvent, payload any, maxRetries int) Result
}

// Queue hands deliveries to the background worker pool so the request that
// produced an event never waits on, or fails because of, the partner's
// endpoint.
type Queue struct {
	sender     Sender
	pool       *worker.Pool
	maxRetries int
	metrics    *metrics.Metrics
}

func NewQueue(sender Sender, pool *worker.Pool, maxRetries int, m *metrics.Metrics) *Queue {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{sender: sender, pool: pool, maxRetries: maxRetries, metrics: m}
}

// Publish schedules delivery and reports whether it was accepted. A full
// queue drops the event.
func (q *Queue) Publish(partner *model.Partner, event model.WebhookEvent, payload any) bool {
	snapshot := *partner
	snapshot.WebhookEvents = append([]model.WebhookEvent(nil), partner.WebhookEvents...)

	ok := q.pool.Submit("webhook:"+string(event), func(ctx context.Context) {
		q.sender.Send(ctx, &snapshot, event, payload, q.maxRetries)
	})
	if !ok {
		log.Warn().
			Str("partner_code", partner.PartnerCode).
			Str("event", string(event)).
			Msg("webhook dropped, worker queue unavailable")
		q.metrics.WebhookDeliveries.WithLabelValues(string(event), metrics.DeliveryDropped).Inc()
	}
	return ok
}
