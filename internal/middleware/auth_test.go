package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/service"
)

type fakeAuthenticator struct {
	principal *service.Principal
	err       error
	gotKey    string
	gotIP     string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, presented, clientIP string) (*service.Principal, error) {
	f.gotKey = presented
	f.gotIP = clientIP
	return f.principal, f.err
}

func principalHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(p.Partner.PartnerCode))
	})
}

func apiRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	return req
}

func TestAPIKeyAuth(t *testing.T) {
	partner := &model.Partner{ID: uuid.New(), PartnerCode: "ACMETR-1A2B3C", Status: model.PartnerActive}

	t.Run("valid key", func(t *testing.T) {
		auth := &fakeAuthenticator{principal: &service.Principal{Partner: partner}}
		rec := httptest.NewRecorder()
		APIKeyAuth(auth, nil)(principalHandler()).ServeHTTP(rec, apiRequest("ovu_live_abc"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ACMETR-1A2B3C", rec.Body.String())
		assert.Equal(t, "ovu_live_abc", auth.gotKey)
		assert.Equal(t, "203.0.113.7", auth.gotIP)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		APIKeyAuth(&fakeAuthenticator{}, nil)(principalHandler()).ServeHTTP(rec, apiRequest(""))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		code, msg := parseErrorResponse(t, rec)
		assert.Equal(t, "missing_api_key", code)
		assert.Equal(t, "API key required", msg)
	})

	t.Run("unknown key", func(t *testing.T) {
		auth := &fakeAuthenticator{err: &service.AuthError{Err: service.ErrCredentialNotFound, Reason: "Invalid API key"}}
		rec := httptest.NewRecorder()
		APIKeyAuth(auth, nil)(principalHandler()).ServeHTTP(rec, apiRequest("nope"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		code, msg := parseErrorResponse(t, rec)
		assert.Equal(t, "invalid_api_key", code)
		assert.Equal(t, "Invalid API key", msg)
	})

	t.Run("inactive credential", func(t *testing.T) {
		auth := &fakeAuthenticator{err: &service.AuthError{Err: service.ErrCredentialInactive, Reason: "IP address not allowed"}}
		rec := httptest.NewRecorder()
		APIKeyAuth(auth, nil)(principalHandler()).ServeHTTP(rec, apiRequest("ovu_live_abc"))
		require.Equal(t, http.StatusForbidden, rec.Code)
		_, msg := parseErrorResponse(t, rec)
		assert.Equal(t, "IP address not allowed", msg)
	})

	t.Run("store failure", func(t *testing.T) {
		auth := &fakeAuthenticator{err: errors.New("connection refused")}
		rec := httptest.NewRecorder()
		APIKeyAuth(auth, nil)(principalHandler()).ServeHTTP(rec, apiRequest("ovu_live_abc"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("repeated failures are blocked", func(t *testing.T) {
		auth := &fakeAuthenticator{err: &service.AuthError{Err: service.ErrCredentialNotFound, Reason: "Invalid API key"}}
		limiter := NewAuthAttemptLimiter(2, time.Minute, time.Minute)
		h := APIKeyAuth(auth, limiter)(principalHandler())

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, apiRequest("nope"))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, apiRequest("nope"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestRequireScope(t *testing.T) {
	partner := &model.Partner{ID: uuid.New(), PartnerCode: "ACMETR-1A2B3C"}
	h := RequireScope(model.ScopePayment)(principalHandler())

	serve := func(p *service.Principal) int {
		req := apiRequest("")
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(&service.Principal{Partner: partner}), "legacy credential holds every scope")
	assert.Equal(t, http.StatusOK, serve(&service.Principal{Partner: partner, Key: &model.APIKey{Scopes: []string{"payment"}}}))
	assert.Equal(t, http.StatusForbidden, serve(&service.Principal{Partner: partner, Key: &model.APIKey{Scopes: []string{"search"}}}))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

type fakeAuthorizer struct {
	partner *model.Partner
	err     error
}

func (f *fakeAuthorizer) Authorize(_ context.Context, token string) (*model.Partner, error) {
	if token != "good" {
		return nil, service.NewUnauthorized("invalid_token", "Invalid or expired token")
	}
	return f.partner, f.err
}

func TestPartnerJWT(t *testing.T) {
	partner := &model.Partner{ID: uuid.New(), PartnerCode: "ACMETR-1A2B3C"}
	h := PartnerJWT(&fakeAuthorizer{partner: partner}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetPartner(r.Context()).PartnerCode))
	}))

	serve := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/partner/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	ok := serve("Bearer good")
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "ACMETR-1A2B3C", ok.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	bad := serve("Bearer bad")
	require.Equal(t, http.StatusUnauthorized, bad.Code)
	code, _ := parseErrorResponse(t, bad)
	assert.Equal(t, "invalid_token", code)
}
