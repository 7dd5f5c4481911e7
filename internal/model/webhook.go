package model

type WebhookEvent string

const (
	EventBookingCreated   WebhookEvent = "booking.created"
	EventBookingConfirmed WebhookEvent = "booking.confirmed"
	EventBookingCancelled WebhookEvent = "booking.cancelled"
	EventPaymentSuccess   WebhookEvent = "payment.success"
	EventPaymentFailed    WebhookEvent = "payment.failed"
	EventTicketGenerated  WebhookEvent = "ticket.generated"
)

// WebhookEvents returns every event type a partner can subscribe to.
func WebhookEvents() []WebhookEvent {
	return []WebhookEvent{
		EventBookingCreated,
		EventBookingConfirmed,
		EventBookingCancelled,
		EventPaymentSuccess,
		EventPaymentFailed,
		EventTicketGenerated,
	}
}

func (e WebhookEvent) Valid() bool {
	for _, known := range WebhookEvents() {
		if e == known {
			return true
		}
	}
	return false
}
