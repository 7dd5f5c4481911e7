package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/partner-gateway-service/internal/httputil"
)

const (
	attemptSweepInterval = 5 * time.Minute
	attemptStaleAfter    = 24 * time.Hour
)

// AuthAttemptLimiter throttles authentication per key (a client IP, or an IP
// plus account). maxFailures within window blocks the key for blockFor; a
// success clears its history.
type AuthAttemptLimiter struct {
	maxFailures int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time

	mu        sync.Mutex
	entries   map[string]attemptState
	nextSweep time.Time
}

type attemptState struct {
	failures     int
	since        time.Time
	blockedUntil time.Time
	touched      time.Time
}

func NewAuthAttemptLimiter(maxFailures int, window, blockFor time.Duration) *AuthAttemptLimiter {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	if blockFor <= 0 {
		blockFor = 15 * time.Minute
	}
	return &AuthAttemptLimiter{
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
		entries:     make(map[string]attemptState),
	}
}

// Check reports whether key may attempt authentication and, if not, how
// long it stays blocked.
func (l *AuthAttemptLimiter) Check(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	st, ok := l.entries[key]
	if !ok {
		return true, 0
	}
	st.touched = now
	l.entries[key] = st
	if wait := st.blockedUntil.Sub(now); wait > 0 {
		return false, wait
	}
	return true, 0
}

func (l *AuthAttemptLimiter) Allow(key string) bool {
	ok, _ := l.Check(key)
	return ok
}

// Failure records a failed attempt for key.
func (l *AuthAttemptLimiter) Failure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	st := l.entries[key]
	if st.since.IsZero() || now.Sub(st.since) > l.window {
		st.failures = 0
		st.since = now
	}
	st.failures++
	st.touched = now
	if st.failures >= l.maxFailures {
		st.blockedUntil = now.Add(l.blockFor)
		st.failures = 0
		st.since = now
	}
	l.entries[key] = st
}

// Success clears the failure history of key.
func (l *AuthAttemptLimiter) Success(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Key builds the limiter key for r under prefix.
func (l *AuthAttemptLimiter) Key(r *http.Request, prefix string) string {
	return clientIPKey(r, prefix)
}

func (l *AuthAttemptLimiter) sweepLocked(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, st := range l.entries {
		if now.Sub(st.touched) > attemptStaleAfter && !now.Before(st.blockedUntil) {
			delete(l.entries, key)
		}
	}
	l.nextSweep = now.Add(attemptSweepInterval)
}

// attemptGuard binds a limiter to one request. A nil limiter admits
// everything.
type attemptGuard struct {
	l   *AuthAttemptLimiter
	key string
}

func (l *AuthAttemptLimiter) guard(r *http.Request, prefix string) attemptGuard {
	return attemptGuard{l: l, key: clientIPKey(r, prefix)}
}

// admit writes a 429 with Retry-After and returns false while the client is
// blocked.
func (g attemptGuard) admit(w http.ResponseWriter) bool {
	if g.l == nil {
		return true
	}
	ok, wait := g.l.Check(g.key)
	if !ok {
		WriteRetryAfter(w, wait)
		respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many authentication failures")
	}
	return ok
}

func (g attemptGuard) failed() {
	if g.l != nil {
		g.l.Failure(g.key)
	}
}

func (g attemptGuard) succeeded() {
	if g.l != nil {
		g.l.Success(g.key)
	}
}

// WriteRetryAfter sets the Retry-After header, rounding up to whole seconds.
func WriteRetryAfter(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
}

func clientIPKey(r *http.Request, prefix string) string {
	host := httputil.ClientIP(r)
	if host == "" {
		host = "unknown"
	}
	return prefix + ":" + host
}
