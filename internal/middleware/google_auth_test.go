package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenVerifier struct {
	claims *IDClaims
	err    error
}

func (f *fakeTokenVerifier) VerifyClaims(_ context.Context, _ string) (*IDClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"email":%q}`, GetAdminEmail(r.Context()))
	})
}

func parseErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error, resp.Message
}

func adminRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/partners", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestGoogleAuth(t *testing.T) {
	verified := func(email, hd string) *fakeTokenVerifier {
		return &fakeTokenVerifier{claims: &IDClaims{Email: email, EmailVerified: true, HD: hd}}
	}

	cases := []struct {
		name      string
		verifier  *fakeTokenVerifier
		domain    string
		allowed   []string
		token     string
		wantCode  int
		wantError string
		wantMsg   string
		wantEmail string
	}{
		{
			name:      "allowlisted operator",
			verifier:  verified("ops@gateway.example", "gateway.example"),
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			token:     "valid",
			wantCode:  http.StatusOK,
			wantEmail: "ops@gateway.example",
		},
		{
			name:      "missing token",
			verifier:  &fakeTokenVerifier{},
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			wantCode:  http.StatusUnauthorized,
			wantError: "unauthorized",
			wantMsg:   "Missing authorization token",
		},
		{
			name:      "invalid token",
			verifier:  &fakeTokenVerifier{err: errors.New("invalid token signature")},
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			token:     "forged",
			wantCode:  http.StatusUnauthorized,
			wantError: "unauthorized",
			wantMsg:   "Invalid ID token",
		},
		{
			name:      "unverified email",
			verifier:  &fakeTokenVerifier{claims: &IDClaims{Email: "ops@gateway.example", HD: "gateway.example"}},
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			token:     "valid",
			wantCode:  http.StatusForbidden,
			wantError: "forbidden",
			wantMsg:   "Email not verified",
		},
		{
			name:      "wrong workspace domain",
			verifier:  verified("ops@gateway.example", "elsewhere.example"),
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			token:     "valid",
			wantCode:  http.StatusForbidden,
			wantError: "forbidden",
			wantMsg:   "Domain not allowed",
		},
		{
			name:      "not on allowlist",
			verifier:  verified("intern@gateway.example", "gateway.example"),
			domain:    "gateway.example",
			allowed:   []string{"ops@gateway.example"},
			token:     "valid",
			wantCode:  http.StatusForbidden,
			wantError: "forbidden",
			wantMsg:   "User not authorized",
		},
		{
			name:      "email and domain match case-insensitively",
			verifier:  verified("Ops@Gateway.example", "Gateway.Example"),
			domain:    "gateway.example",
			allowed:   []string{" OPS@gateway.example "},
			token:     "valid",
			wantCode:  http.StatusOK,
			wantEmail: "ops@gateway.example",
		},
		{
			name:      "no domain restriction",
			verifier:  verified("oncall@gmail.com", ""),
			allowed:   []string{"oncall@gmail.com"},
			token:     "valid",
			wantCode:  http.StatusOK,
			wantEmail: "oncall@gmail.com",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ga := NewGoogleAuthWithVerifier(tc.verifier, tc.domain, tc.allowed)
			rec := httptest.NewRecorder()
			ga.Middleware(nil)(okHandler()).ServeHTTP(rec, adminRequest(tc.token))

			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if tc.wantCode == http.StatusOK {
				var body struct {
					Email string `json:"email"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tc.wantEmail, body.Email)
				return
			}
			code, msg := parseErrorResponse(t, rec)
			assert.Equal(t, tc.wantError, code)
			assert.Equal(t, tc.wantMsg, msg)
		})
	}
}

func TestGoogleAuthBlocksRepeatedFailures(t *testing.T) {
	limiter := NewAuthAttemptLimiter(3, 5*time.Minute, 15*time.Minute)
	ga := NewGoogleAuthWithVerifier(&fakeTokenVerifier{err: errors.New("invalid token")}, "gateway.example", []string{"ops@gateway.example"})
	h := ga.Middleware(limiter)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, adminRequest("bad"))
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adminRequest("bad"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
}
