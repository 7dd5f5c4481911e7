package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
)

const googleIssuer = "https://accounts.google.com"

type adminEmailKey struct{}

// GetAdminEmail returns the operator signed in to the admin API.
func GetAdminEmail(ctx context.Context) string {
	email, _ := ctx.Value(adminEmailKey{}).(string)
	return email
}

func WithAdminEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, adminEmailKey{}, email)
}

// IDClaims are the verified Google ID token claims the admin check uses.
type IDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	HD            string `json:"hd"`
}

type TokenVerifier interface {
	VerifyClaims(ctx context.Context, rawToken string) (*IDClaims, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *oidcVerifier) VerifyClaims(ctx context.Context, rawToken string) (*IDClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	var claims IDClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}

// GoogleAuth admits operators to the admin API by Google ID token. The email
// allowlist is always enforced; the Workspace domain only when configured.
type GoogleAuth struct {
	verifier      TokenVerifier
	allowedDomain string
	allowedEmails map[string]struct{}
}

// NewGoogleAuth fetches Google's discovery document, so it is called once at
// startup.
func NewGoogleAuth(clientID, allowedDomain string, allowedEmails []string) (*GoogleAuth, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("create Google OIDC provider: %w", err)
	}
	verifier := &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}
	return NewGoogleAuthWithVerifier(verifier, allowedDomain, allowedEmails), nil
}

func NewGoogleAuthWithVerifier(verifier TokenVerifier, allowedDomain string, allowedEmails []string) *GoogleAuth {
	emails := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		if e = normalizeEmail(e); e != "" {
			emails[e] = struct{}{}
		}
	}
	return &GoogleAuth{
		verifier:      verifier,
		allowedDomain: strings.ToLower(strings.TrimSpace(allowedDomain)),
		allowedEmails: emails,
	}
}

// authorize returns the normalized operator email, or the reason the claims
// are refused.
func (g *GoogleAuth) authorize(claims *IDClaims) (string, string) {
	switch {
	case !claims.EmailVerified:
		return "", "Email not verified"
	case g.allowedDomain != "" && strings.ToLower(claims.HD) != g.allowedDomain:
		return "", "Domain not allowed"
	}
	email := normalizeEmail(claims.Email)
	if _, ok := g.allowedEmails[email]; !ok {
		return "", "User not authorized"
	}
	return email, ""
}

func (g *GoogleAuth) Middleware(limiter *AuthAttemptLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts := limiter.guard(r, "admin")
			if !attempts.admit(w) {
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				attempts.failed()
				respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization token")
				return
			}

			claims, err := g.verifier.VerifyClaims(r.Context(), token)
			if err != nil {
				attempts.failed()
				respondError(w, http.StatusUnauthorized, "unauthorized", "Invalid ID token")
				return
			}

			email, denied := g.authorize(claims)
			if denied != "" {
				attempts.failed()
				log.Warn().Str("email", claims.Email).Str("reason", denied).Msg("admin access denied")
				respondError(w, http.StatusForbidden, "forbidden", denied)
				return
			}

			attempts.succeeded()
			next.ServeHTTP(w, r.WithContext(WithAdminEmail(r.Context(), email)))
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
