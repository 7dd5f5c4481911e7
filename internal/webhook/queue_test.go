package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/worker"
)

type recordingSender struct {
	mu    sync.Mutex
	calls []model.WebhookEvent
	codes []string
	tries []int
}

func (s *recordingSender) Send(_ context.Context, p *model.Partner, event model.WebhookEvent, _ any, maxRetries int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, event)
	s.codes = append(s.codes, p.PartnerCode)
	s.tries = append(s.tries, maxRetries)
	return Result{Success: true}
}

func TestQueuePublish(t *testing.T) {
	m := metrics.NewUnregistered()
	pool := worker.NewPool(2, 8, m)
	sender := &recordingSender{}
	q := NewQueue(sender, pool, 0, m)

	p := subscribedPartner("https://hooks.example")
	require.True(t, q.Publish(p, model.EventBookingCreated, map[string]any{"ref": "BK-1"}))
	p.PartnerCode = "CHANGED"
	require.True(t, q.Publish(subscribedPartner("https://hooks.example"), model.EventPaymentSuccess, nil))

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.ElementsMatch(t, []model.WebhookEvent{model.EventBookingCreated, model.EventPaymentSuccess}, sender.calls)
	assert.NotContains(t, sender.codes, "CHANGED", "publish must snapshot the partner")
	assert.Equal(t, []int{DefaultMaxRetries, DefaultMaxRetries}, sender.tries)
}

func TestQueueDropsWhenClosed(t *testing.T) {
	m := metrics.NewUnregistered()
	pool := worker.NewPool(1, 1, m)
	require.NoError(t, pool.Shutdown(context.Background()))

	q := NewQueue(&recordingSender{}, pool, 3, m)
	assert.False(t, q.Publish(subscribedPartner("https://hooks.example"), model.EventBookingCreated, nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("booking.created", metrics.DeliveryDropped)))
}
