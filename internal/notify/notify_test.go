package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/worker"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestAsyncDeliversInBackground(t *testing.T) {
	pool := worker.NewPool(1, 4, metrics.NewUnregistered())
	rec := &recordingNotifier{err: errors.New("smtp down")}
	n := NewAsync(rec, pool)

	err := n.Notify(context.Background(), Message{Kind: KindApproved, To: "ops@acme.example"})
	require.NoError(t, err, "delivery failures must not reach the caller")

	require.NoError(t, pool.Shutdown(context.Background()))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, KindApproved, rec.msgs[0].Kind)
}

func TestLogNotifier(t *testing.T) {
	err := LogNotifier{}.Notify(context.Background(), Message{
		Kind: KindPasswordReset,
		To:   "ops@acme.example",
		Data: map[string]string{"token": "secret"},
	})
	assert.NoError(t, err)
}
