// Package ratelimit enforces per-minute and per-day request quotas against a
// shared counter service so every gateway replica sees the same counts.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/metrics"
)

type Scope string

const (
	ScopePartner Scope = "partner"
	ScopeAPIKey  Scope = "api_key"
)

const (
	minuteTTL = 120 * time.Second
	dayTTL    = 24*time.Hour + time.Hour

	DefaultTimeout = 250 * time.Millisecond
)

// Identity is whose quota is being consumed.
type Identity struct {
	Scope Scope
	ID    string
}

type Limits struct {
	PerMinute int
	PerDay    int
}

// Info describes the quota state after a check. Reset values are unix seconds.
type Info struct {
	LimitMinute     int
	RemainingMinute int
	LimitDay        int
	RemainingDay    int
	ResetMinute     int64
	ResetDay        int64
}

// SetHeaders writes the X-RateLimit-* headers.
func (i Info) SetHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit-Minute", strconv.Itoa(i.LimitMinute))
	h.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(i.RemainingMinute))
	h.Set("X-RateLimit-Reset-Minute", strconv.FormatInt(i.ResetMinute, 10))
	h.Set("X-RateLimit-Limit-Day", strconv.Itoa(i.LimitDay))
	h.Set("X-RateLimit-Remaining-Day", strconv.Itoa(i.RemainingDay))
	h.Set("X-RateLimit-Reset-Day", strconv.FormatInt(i.ResetDay, 10))
}

// RetryAfter is the number of seconds until the minute window resets, at least 1.
func (i Info) RetryAfter(now time.Time) int {
	secs := int(i.ResetMinute - now.Unix())
	if secs < 1 {
		return 1
	}
	return secs
}

// Counter is an atomic two-window counter. CheckAndIncrement increments both
// keys only when neither count has reached its limit; the returned counts are
// the post-increment values when allowed and the current values otherwise.
type Counter interface {
	CheckAndIncrement(ctx context.Context, minuteKey, dayKey string, limits Limits, minuteTTL, dayTTL time.Duration) (allowed bool, minute, day int64, err error)
	Counts(ctx context.Context, minuteKey, dayKey string) (minute, day int64, err error)
}

type Limiter struct {
	counter Counter
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewLimiter(counter Counter, timeout time.Duration, m *metrics.Metrics) *Limiter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Limiter{
		counter: counter,
		timeout: timeout,
		metrics: m,
		now:     time.Now,
	}
}

// CheckAndIncrement consumes one request from the identity's quota. If the
// counter service fails or does not answer within the timeout the request is
// allowed and full quota is reported.
func (l *Limiter) CheckAndIncrement(ctx context.Context, id Identity, limits Limits) (bool, Info) {
	now := l.now()
	minuteKey, dayKey := windowKeys(id, now)
	info := fullQuota(limits, now)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	allowed, minute, day, err := l.counter.CheckAndIncrement(ctx, minuteKey, dayKey, limits, minuteTTL, dayTTL)
	if err != nil {
		log.Warn().Err(err).
			Str("scope", string(id.Scope)).
			Str("identity", id.ID).
			Msg("rate limit store unavailable, allowing request")
		l.metrics.RateLimitDecisions.WithLabelValues(string(id.Scope), metrics.DecisionFailOpen).Inc()
		return true, info
	}

	info.RemainingMinute = remaining(limits.PerMinute, minute)
	info.RemainingDay = remaining(limits.PerDay, day)

	decision := metrics.DecisionAllowed
	if !allowed {
		decision = metrics.DecisionRejected
	}
	l.metrics.RateLimitDecisions.WithLabelValues(string(id.Scope), decision).Inc()
	return allowed, info
}

// Peek reports the identity's quota state without consuming a request. When
// the counters cannot be read it returns the error together with full quota,
// matching what CheckAndIncrement reports when it fails open.
func (l *Limiter) Peek(ctx context.Context, id Identity, limits Limits) (Info, error) {
	now := l.now()
	minuteKey, dayKey := windowKeys(id, now)
	info := fullQuota(limits, now)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	minute, day, err := l.counter.Counts(ctx, minuteKey, dayKey)
	if err != nil {
		return info, fmt.Errorf("reading rate limit counters: %w", err)
	}
	info.RemainingMinute = remaining(limits.PerMinute, minute)
	info.RemainingDay = remaining(limits.PerDay, day)
	return info, nil
}

func fullQuota(limits Limits, now time.Time) Info {
	return Info{
		LimitMinute:     limits.PerMinute,
		RemainingMinute: limits.PerMinute,
		LimitDay:        limits.PerDay,
		RemainingDay:    limits.PerDay,
		ResetMinute:     minuteReset(now),
		ResetDay:        now.Unix() + 86400,
	}
}

func windowKeys(id Identity, now time.Time) (string, string) {
	bucket := now.Unix() / 60
	minuteKey := fmt.Sprintf("rl:%s:%s:m:%d", id.Scope, id.ID, bucket)
	dayKey := fmt.Sprintf("rl:%s:%s:d:%s", id.Scope, id.ID, now.UTC().Format("2006-01-02"))
	return minuteKey, dayKey
}

func minuteReset(now time.Time) int64 {
	return (now.Unix()/60 + 1) * 60
}

func remaining(limit int, used int64) int {
	r := int64(limit) - used
	if r < 0 {
		return 0
	}
	return int(r)
}
