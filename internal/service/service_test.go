package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/partner-gateway-service/internal/credential"
	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/notify"
	"github.com/partner-gateway-service/internal/store"
	"github.com/partner-gateway-service/internal/token"
)

var testNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func (n *recordingNotifier) last(kind notify.Kind) (notify.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Kind == kind {
			return n.msgs[i], true
		}
	}
	return notify.Message{}, false
}

type testEnv struct {
	store    *store.Memory
	registry *Registry
	partners *PartnerService
	notes    *recordingNotifier
	clock    *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	gen := credential.NewGenerator(credential.EnvTest)
	clock := testNow
	now := func() time.Time { return clock }

	registry := NewRegistry(mem, gen, metrics.NewUnregistered())
	registry.now = now

	notes := &recordingNotifier{}
	partners := NewPartnerService(mem, registry, gen, token.NewIssuer("test-signing-secret-0123456789abcdef", 15*time.Minute, 24*time.Hour), notes)
	partners.now = now
	partners.bcryptCost = bcrypt.MinCost

	return &testEnv{store: mem, registry: registry, partners: partners, notes: notes, clock: &clock}
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func requireKind(t *testing.T, err error, kind ErrorKind, code string) *Error {
	t.Helper()
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr), "expected *service.Error, got %v", err)
	require.Equal(t, kind, svcErr.Kind)
	if code != "" {
		require.Equal(t, code, svcErr.Code)
	}
	return svcErr
}

func intPtr(v int) *int { return &v }
