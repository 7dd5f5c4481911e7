// Package webhook delivers signed event notifications to partner endpoints.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/model"
)

const (
	SignatureHeader = "X-Ovu-Signature"
	UserAgent       = "Ovu-Webhook/1.0"

	DefaultMaxRetries = 3

	reasonNoURL         = "No webhook URL configured"
	reasonNotSubscribed = "Event not subscribed"
	reasonTimeout       = "timeout"

	errorBodyLimit = 200
)

// Result is the outcome of one Send or Test call.
type Result struct {
	Success    bool
	StatusCode int
	Error      string
	Attempts   int
	Elapsed    time.Duration
}

// ElapsedMS is the wall-clock duration of the call in milliseconds.
func (r Result) ElapsedMS() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

type Envelope struct {
	Event       model.WebhookEvent `json:"event"`
	Timestamp   string             `json:"timestamp"`
	PartnerCode string             `json:"partner_code"`
	Data        any                `json:"data"`
}

type Config struct {
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration
	// Backoff is the wait after the first failed attempt; it doubles after each
	// further failure.
	Backoff time.Duration
}

type Dispatcher struct {
	httpClient *http.Client
	backoff    time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewDispatcher(cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	return &Dispatcher{
		httpClient: httpClient,
		backoff:    cfg.Backoff,
		metrics:    m,
		now:        time.Now,
	}
}

// Send delivers event to the partner's endpoint, making up to maxRetries
// attempts. A partner without a URL, or not subscribed to event, is skipped
// without any network I/O.
func (d *Dispatcher) Send(ctx context.Context, partner *model.Partner, event model.WebhookEvent, payload any, maxRetries int) Result {
	if partner.WebhookURL == "" {
		log.Warn().Str("partner_code", partner.PartnerCode).Msg("partner has no webhook URL configured")
		d.metrics.WebhookDeliveries.WithLabelValues(string(event), metrics.DeliverySkipped).Inc()
		return Result{Error: reasonNoURL}
	}
	if !partner.Subscribed(event) {
		log.Debug().Str("partner_code", partner.PartnerCode).Str("event", string(event)).Msg("event not subscribed")
		d.metrics.WebhookDeliveries.WithLabelValues(string(event), metrics.DeliverySkipped).Inc()
		return Result{Error: reasonNotSubscribed}
	}
	return d.deliver(ctx, partner, event, payload, maxRetries)
}

var testPayload = map[string]any{
	"test":              true,
	"message":           "This is a test webhook from Ovu Transport Aggregator",
	"booking_reference": "TEST-WEBHOOK-001",
	"status":            "confirmed",
}

// Test makes a single delivery attempt with a fixed payload. Unlike Send it
// does not require the partner to be subscribed to event.
func (d *Dispatcher) Test(ctx context.Context, partner *model.Partner, event model.WebhookEvent) Result {
	if partner.WebhookURL == "" {
		return Result{Error: reasonNoURL}
	}
	return d.deliver(ctx, partner, event, testPayload, 1)
}

type attemptsKey struct{}

func (d *Dispatcher) deliver(ctx context.Context, partner *model.Partner, event model.WebhookEvent, payload any, maxRetries int) Result {
	if maxRetries < 1 {
		maxRetries = 1
	}
	start := time.Now()

	// Serialized once so every attempt carries identical bytes and signature.
	body, err := json.Marshal(Envelope{
		Event:       event,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
		PartnerCode: partner.PartnerCode,
		Data:        payload,
	})
	if err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to encode webhook envelope")
		return Result{Error: fmt.Sprintf("encode envelope: %v", err)}
	}

	var attempts int32
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, partner.WebhookURL, body)
	if err != nil {
		return Result{Error: err.Error(), Elapsed: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if partner.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(body, partner.WebhookSecret))
	}

	resp, err := d.client(partner, event, maxRetries).Do(req)
	res := Result{Attempts: int(atomic.LoadInt32(&attempts)), Elapsed: time.Since(start)}
	d.metrics.WebhookAttempts.WithLabelValues(string(event)).Add(float64(res.Attempts))

	switch {
	case err != nil:
		res.Error = describeError(err)
	case successStatus(resp.StatusCode):
		drain(resp.Body)
		res.Success = true
		res.StatusCode = resp.StatusCode
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		drain(resp.Body)
		res.StatusCode = resp.StatusCode
		res.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet)
	}

	if res.Success {
		log.Info().
			Str("partner_code", partner.PartnerCode).
			Str("event", string(event)).
			Int("status", res.StatusCode).
			Int("attempts", res.Attempts).
			Msg("webhook delivered")
		d.metrics.WebhookDeliveries.WithLabelValues(string(event), metrics.DeliveryDelivered).Inc()
		return res
	}

	log.Error().
		Str("partner_code", partner.PartnerCode).
		Str("event", string(event)).
		Int("attempts", res.Attempts).
		Str("last_error", res.Error).
		Msg("webhook delivery failed")
	d.metrics.WebhookDeliveries.WithLabelValues(string(event), metrics.DeliveryExhausted).Inc()
	return res
}

// client builds a retrying client for one delivery. All clients share the
// pooled transport.
func (d *Dispatcher) client(partner *model.Partner, event model.WebhookEvent, maxRetries int) *retryablehttp.Client {
	base := d.backoff
	return &retryablehttp.Client{
		HTTPClient: d.httpClient,
		Logger:     leveledLogger{partnerCode: partner.PartnerCode, event: string(event)},
		RetryMax:   maxRetries - 1,
		CheckRetry: retryPolicy,
		Backoff: func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
			return base << uint(attemptNum)
		},
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RequestLogHook: func(_ retryablehttp.Logger, r *http.Request, _ int) {
			if n, ok := r.Context().Value(attemptsKey{}).(*int32); ok {
				atomic.AddInt32(n, 1)
			}
		},
	}
}

// retryPolicy retries every transport error and every non-success status
// until the caller's context ends.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return !successStatus(resp.StatusCode), nil
}

func successStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

func describeError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return reasonTimeout
	}
	return err.Error()
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

// Sign returns the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the valid signature of body
// for secret. Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// leveledLogger routes retryablehttp's internal logging through zerolog.
type leveledLogger struct {
	partnerCode string
	event       string
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.write(log.Warn(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.write(log.Warn(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.write(log.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.write(log.Debug(), msg, kv) }

func (l leveledLogger) write(e *zerolog.Event, msg string, kv []interface{}) {
	e = e.Str("partner_code", l.partnerCode).Str("event", l.event)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg("webhook: " + msg)
}
