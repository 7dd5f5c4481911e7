// Package notify delivers partner-facing notifications (verification links,
// approval decisions, password resets). Delivery is best effort.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/worker"
)

type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindRegistered        Kind = "registration_received"
	KindApproved          Kind = "partner_approved"
	KindRejected          Kind = "partner_rejected"
	KindSuspended         Kind = "partner_suspended"
	KindActivated         Kind = "partner_activated"
	KindDeactivated       Kind = "partner_deactivated"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
)

type Message struct {
	Kind    Kind
	To      string
	Subject string
	Data    map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier records notifications in the service log instead of sending
// them. Sensitive data values are not logged.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, msg Message) error {
	keys := make([]string, 0, len(msg.Data))
	for k := range msg.Data {
		keys = append(keys, k)
	}
	log.Info().
		Str("kind", string(msg.Kind)).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Strs("data_keys", keys).
		Msg("notification sent")
	return nil
}

// Async hands notifications to a worker pool so callers never wait on, or
// fail because of, delivery.
type Async struct {
	next Notifier
	pool *worker.Pool
}

func NewAsync(next Notifier, pool *worker.Pool) *Async {
	return &Async{next: next, pool: pool}
}

func (a *Async) Notify(_ context.Context, msg Message) error {
	a.pool.Submit("notify:"+string(msg.Kind), func(ctx context.Context) {
		if err := a.next.Notify(ctx, msg); err != nil {
			log.Warn().Err(err).Str("kind", string(msg.Kind)).Str("to", msg.To).Msg("notification failed")
		}
	})
	return nil
}
