package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partner-gateway-service/internal/credential"
	"github.com/partner-gateway-service/internal/metrics"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/ratelimit"
	"github.com/partner-gateway-service/internal/store"
	"github.com/partner-gateway-service/internal/validation"
)

const (
	maxCreateAttempts = 5
	keyPreviewLen     = 8
	defaultKeyName    = "Default API Key"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialInactive = errors.New("credential not active")
)

// AuthError is returned by Authenticate. It wraps ErrCredentialNotFound or
// ErrCredentialInactive and carries the message shown to the client.
type AuthError struct {
	Err    error
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }
func (e *AuthError) Unwrap() error { return e.Err }

func notFoundCredential() *AuthError {
	return &AuthError{Err: ErrCredentialNotFound, Reason: "Invalid API key"}
}

func inactiveCredential(reason string) *AuthError {
	return &AuthError{Err: ErrCredentialInactive, Reason: reason}
}

// Principal is an authenticated API caller. Key is nil when the partner's
// legacy credential was presented.
type Principal struct {
	Partner *model.Partner
	Key     *model.APIKey
}

func (p *Principal) Legacy() bool { return p.Key == nil }

// HasScope reports whether the caller may use scope. The legacy credential
// holds every scope.
func (p *Principal) HasScope(scope string) bool {
	if p.Key == nil {
		return true
	}
	return p.Key.HasScope(scope)
}

// Limits returns the effective quota: a key's per-minute override when the
// request came in on that key, otherwise the partner defaults.
func (p *Principal) Limits() ratelimit.Limits {
	limits := ratelimit.Limits{
		PerMinute: p.Partner.RateLimitPerMinute,
		PerDay:    p.Partner.RateLimitPerDay,
	}
	if p.Key != nil && p.Key.RateLimitPerMinute != nil {
		limits.PerMinute = *p.Key.RateLimitPerMinute
	}
	return limits
}

// Identity is the counter identity the quota is charged to.
func (p *Principal) Identity() ratelimit.Identity {
	if p.Key != nil {
		return ratelimit.Identity{Scope: ratelimit.ScopeAPIKey, ID: p.Key.KeyID}
	}
	return ratelimit.Identity{Scope: ratelimit.ScopePartner, ID: p.Partner.ID.String()}
}

// KeyOptions describes a key to create.
type KeyOptions struct {
	Name               string   `json:"name" validate:"required,min=2,max=100"`
	Scopes             []string `json:"scopes" validate:"omitempty,dive,scope"`
	RateLimitPerMinute *int     `json:"rate_limit_per_minute" validate:"omitempty,gte=1,lte=1000"`
	ExpiresInDays      *int     `json:"expires_in_days" validate:"omitempty,gte=1,lte=365"`
	AllowedIPs         []string `json:"allowed_ips" validate:"omitempty,dive,ip|cidr"`
}

// CreatedKey holds a new key and its secret. The secret is the value sent in
// X-API-Key and is never retrievable again.
type CreatedKey struct {
	Key       *model.APIKey
	APISecret string
}

type RotatedKey struct {
	OldKeyID string
	New      *CreatedKey
}

// Registry manages partner API keys and resolves presented credentials.
type Registry struct {
	store   store.Store
	gen     *credential.Generator
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRegistry(s store.Store, gen *credential.Generator, m *metrics.Metrics) *Registry {
	return &Registry{store: s, gen: gen, metrics: m, now: time.Now}
}

func (r *Registry) CreateKey(ctx context.Context, partner *model.Partner, opts KeyOptions) (*CreatedKey, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if fields := validation.Struct(opts); fields != nil {
		return nil, NewValidation(fields)
	}

	created, err := r.createKey(ctx, partner.ID, opts)
	if err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to create API key")
		return nil, NewInternal("internal_error", "Failed to create API key")
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("key_id", created.Key.KeyID).
		Strs("scopes", created.Key.Scopes).
		Msg("API key created")
	return created, nil
}

func (r *Registry) createKey(ctx context.Context, partnerID uuid.UUID, opts KeyOptions) (*CreatedKey, error) {
	scopes := dedupe(opts.Scopes)
	if len(scopes) == 0 {
		scopes = model.AllScopes()
	}
	allowedIPs := opts.AllowedIPs
	if allowedIPs == nil {
		allowedIPs = []string{}
	}

	var expiresAt *time.Time
	if opts.ExpiresInDays != nil {
		t := r.now().UTC().AddDate(0, 0, *opts.ExpiresInDays)
		expiresAt = &t
	}

	for attempt := 1; ; attempt++ {
		secret, err := r.gen.Secret()
		if err != nil {
			return nil, err
		}
		keyID, err := credential.KeyID()
		if err != nil {
			return nil, err
		}

		key := &model.APIKey{
			KeyID:              keyID,
			KeyHash:            credential.Hash(secret),
			KeyPrefix:          credential.Preview(keyID, keyPreviewLen),
			Name:               opts.Name,
			PartnerID:          partnerID,
			Status:             model.KeyStatusActive,
			Scopes:             scopes,
			RateLimitPerMinute: opts.RateLimitPerMinute,
			AllowedIPs:         allowedIPs,
			ExpiresAt:          expiresAt,
		}
		err = r.store.CreateAPIKey(ctx, key)
		if errors.Is(err, store.ErrDuplicate) && attempt < maxCreateAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &CreatedKey{Key: key, APISecret: secret}, nil
	}
}

// ListKeys returns the partner's keys. Secrets are not recoverable; each key
// carries only its id and a short preview.
func (r *Registry) ListKeys(ctx context.Context, partner *model.Partner) ([]*model.APIKey, error) {
	keys, err := r.store.ListAPIKeysByPartner(ctx, partner.ID)
	if err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to list API keys")
		return nil, NewInternal("internal_error", "Failed to list API keys")
	}
	now := r.now()
	for _, k := range keys {
		if k.Status == model.KeyStatusActive && k.ExpiredAt(now) {
			k.Status = model.KeyStatusExpired
		}
	}
	return keys, nil
}

// RevokeKey revokes one of the partner's keys. Revoking a key that is
// already revoked or expired succeeds without changing it.
func (r *Registry) RevokeKey(ctx context.Context, partner *model.Partner, keyID string) error {
	key, err := r.ownedKey(ctx, partner, keyID)
	if err != nil {
		return err
	}
	if key.Status.Terminal() {
		return nil
	}

	if err := r.store.UpdateAPIKeyStatus(ctx, key.ID, model.KeyStatusRevoked, r.now().UTC()); err != nil {
		log.Error().Err(err).Str("key_id", keyID).Msg("failed to revoke API key")
		return NewInternal("internal_error", "Failed to revoke API key")
	}

	log.Info().Str("partner_code", partner.PartnerCode).Str("key_id", keyID).Msg("API key revoked")
	return nil
}

// RotateKey issues a replacement with the same name, scopes, rate limit and
// IP allowlist, then revokes the old key. The new key is created first so
// the partner is never left without a working credential. If the revoke
// fails both keys stay valid: the replacement is returned together with a
// rotation_incomplete error so its secret is not lost.
func (r *Registry) RotateKey(ctx context.Context, partner *model.Partner, keyID string) (*RotatedKey, error) {
	old, err := r.ownedKey(ctx, partner, keyID)
	if err != nil {
		return nil, err
	}
	if old.Status != model.KeyStatusActive || old.ExpiredAt(r.now()) {
		return nil, NewBadRequest("invalid_status", "Cannot rotate a revoked or expired API key")
	}

	created, err := r.createKey(ctx, partner.ID, KeyOptions{
		Name:               old.Name,
		Scopes:             old.Scopes,
		RateLimitPerMinute: old.RateLimitPerMinute,
		AllowedIPs:         old.AllowedIPs,
	})
	if err != nil {
		log.Error().Err(err).Str("key_id", keyID).Msg("failed to create replacement API key")
		return nil, NewInternal("internal_error", "Failed to rotate API key")
	}

	if err := r.store.UpdateAPIKeyStatus(ctx, old.ID, model.KeyStatusRevoked, r.now().UTC()); err != nil {
		log.Error().Err(err).
			Str("partner_code", partner.PartnerCode).
			Str("old_key_id", keyID).
			Str("new_key_id", created.Key.KeyID).
			Msg("rotation created new key but failed to revoke old key")
		return &RotatedKey{OldKeyID: keyID, New: created},
			NewInternal("rotation_incomplete", "Replacement key was created but the old key could not be revoked; revoke it manually")
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("old_key_id", keyID).
		Str("new_key_id", created.Key.KeyID).
		Msg("API key rotated")
	return &RotatedKey{OldKeyID: keyID, New: created}, nil
}

func (r *Registry) ownedKey(ctx context.Context, partner *model.Partner, keyID string) (*model.APIKey, error) {
	key, err := r.store.GetAPIKeyByKeyID(ctx, keyID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && key.PartnerID != partner.ID) {
		return nil, NewNotFound("not_found", "API key not found")
	}
	if err != nil {
		log.Error().Err(err).Str("key_id", keyID).Msg("failed to load API key")
		return nil, NewInternal("internal_error", "Failed to load API key")
	}
	return key, nil
}

// Authenticate resolves a presented credential to a principal.
//
// The legacy partner key is checked by equality, then API key records by the
// digest of the presented value. When both match, the API key record wins so
// its scopes, rate limit and IP allowlist apply.
func (r *Registry) Authenticate(ctx context.Context, presented, clientIP string) (*Principal, error) {
	if presented == "" {
		return nil, notFoundCredential()
	}
	now := r.now().UTC()

	legacy, err := r.store.GetPartnerByAPIKey(ctx, presented)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("legacy credential lookup: %w", err)
	}

	key, err := r.store.GetAPIKeyByHash(ctx, credential.Hash(presented))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("api key lookup: %w", err)
	}

	if key != nil {
		principal, err := r.authenticateKey(ctx, key, clientIP, now)
		r.recordOutcome("api_key", err)
		return principal, err
	}
	if legacy != nil {
		if legacy.Status != model.PartnerActive {
			err := inactiveCredential("Partner account is not active")
			r.recordOutcome("legacy", err)
			return nil, err
		}
		r.recordUsage(ctx, legacy, nil, now)
		r.recordOutcome("legacy", nil)
		return &Principal{Partner: legacy}, nil
	}

	err = notFoundCredential()
	r.recordOutcome("unknown", err)
	return nil, err
}

func (r *Registry) authenticateKey(ctx context.Context, key *model.APIKey, clientIP string, now time.Time) (*Principal, error) {
	if key.Status != model.KeyStatusActive {
		return nil, inactiveCredential("API key is not active")
	}
	if key.ExpiredAt(now) {
		if err := r.store.UpdateAPIKeyStatus(ctx, key.ID, model.KeyStatusExpired, now); err != nil {
			log.Warn().Err(err).Str("key_id", key.KeyID).Msg("failed to mark API key expired")
		}
		return nil, inactiveCredential("API key has expired")
	}

	partner, err := r.store.GetPartnerByID(ctx, key.PartnerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundCredential()
	}
	if err != nil {
		return nil, fmt.Errorf("load key owner: %w", err)
	}
	if partner.Status != model.PartnerActive {
		return nil, inactiveCredential("Partner account is not active")
	}
	if len(key.AllowedIPs) > 0 && !ipAllowed(clientIP, key.AllowedIPs) {
		log.Warn().Str("key_id", key.KeyID).Str("client_ip", clientIP).Msg("API key used from disallowed IP")
		return nil, inactiveCredential("IP address not allowed")
	}

	r.recordUsage(ctx, partner, key, now)
	return &Principal{Partner: partner, Key: key}, nil
}

// recordUsage updates request counters, in the store and on the loaded
// records, so the principal includes the current request. Failures are
// logged and ignored.
func (r *Registry) recordUsage(ctx context.Context, partner *model.Partner, key *model.APIKey, now time.Time) {
	if err := r.store.RecordPartnerUsage(ctx, partner.ID, now); err != nil {
		log.Warn().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to record partner usage")
	} else {
		partner.TotalRequests++
		partner.LastRequestAt = &now
	}
	if key == nil {
		return
	}
	if err := r.store.RecordAPIKeyUsage(ctx, key.ID, now); err != nil {
		log.Warn().Err(err).Str("key_id", key.KeyID).Msg("failed to record API key usage")
	} else {
		key.TotalRequests++
		key.LastUsedAt = &now
	}
}

func (r *Registry) recordOutcome(method string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrCredentialInactive):
		outcome = "inactive"
	case err != nil:
		outcome = "error"
	}
	r.metrics.AuthOutcomes.WithLabelValues(method, outcome).Inc()
}

// RevokeAllForPartner revokes every active key the partner holds.
func (r *Registry) RevokeAllForPartner(ctx context.Context, partnerID uuid.UUID) (int64, error) {
	n, err := r.store.RevokeAPIKeysByPartner(ctx, partnerID, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoking partner keys: %w", err)
	}
	return n, nil
}

// ExpireDueKeys marks active keys whose expiry has passed as expired.
func (r *Registry) ExpireDueKeys(ctx context.Context) (int64, error) {
	n, err := r.store.ExpireAPIKeys(ctx, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expiring keys: %w", err)
	}
	return n, nil
}

// DirectPartnerInput is an admin request to onboard a partner without the
// self-service registration flow.
type DirectPartnerInput struct {
	Name               string `json:"name" validate:"required,min=2,max=100"`
	Email              string `json:"email" validate:"required,email"`
	Phone              string `json:"phone" validate:"required,phone"`
	Website            string `json:"website" validate:"omitempty,http_url"`
	CompanyName        string `json:"company_name" validate:"required,min=2,max=200"`
	BusinessType       string `json:"business_type" validate:"required,business_type"`
	TaxID              string `json:"tax_id" validate:"omitempty,max=50"`
	RateLimitPerMinute *int   `json:"rate_limit_per_minute" validate:"omitempty,gte=1,lte=1000"`
	RateLimitPerDay    *int   `json:"rate_limit_per_day" validate:"omitempty,gte=1,lte=1000000"`
}

type DirectPartnerResult struct {
	Partner   *model.Partner
	APIKey    string
	APISecret string
	KeyID     string
}

// CreatePartnerDirect creates an active partner with legacy credentials and a
// matching default API key record.
func (r *Registry) CreatePartnerDirect(ctx context.Context, admin string, in DirectPartnerInput) (*DirectPartnerResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}
	if _, err := r.store.GetPartnerByEmail(ctx, in.Email); err == nil {
		return nil, NewConflict("email_taken", "Email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Msg("failed to check partner email")
		return nil, NewInternal("internal_error", "Failed to create partner")
	}

	now := r.now().UTC()
	partner := &model.Partner{
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		Website:            in.Website,
		CompanyName:        in.CompanyName,
		BusinessType:       in.BusinessType,
		TaxID:              in.TaxID,
		Status:             model.PartnerActive,
		RateLimitPerMinute: intOr(in.RateLimitPerMinute, model.DefaultRateLimitPerMinute),
		RateLimitPerDay:    intOr(in.RateLimitPerDay, model.DefaultRateLimitPerDay),
		WebhookEvents:      []model.WebhookEvent{},
		ApprovedBy:         admin,
		ApprovedAt:         &now,
	}

	apiKey, secret, err := insertPartner(ctx, r.store, r.gen, partner)
	if err != nil {
		return nil, err
	}

	keyID, err := credential.KeyID()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate key id")
		return nil, NewInternal("internal_error", "Failed to create partner")
	}
	key := &model.APIKey{
		KeyID:      keyID,
		KeyHash:    partner.APISecretHash,
		KeyPrefix:  credential.Preview(keyID, keyPreviewLen),
		Name:       defaultKeyName,
		PartnerID:  partner.ID,
		Status:     model.KeyStatusActive,
		Scopes:     model.AllScopes(),
		AllowedIPs: []string{},
	}
	if err := r.store.CreateAPIKey(ctx, key); err != nil {
		// The partner is usable through its legacy credential without this record.
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to create default API key")
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("admin", admin).
		Str("api_key_prefix", credential.Preview(apiKey, 12)).
		Msg("partner created directly")
	return &DirectPartnerResult{Partner: partner, APIKey: apiKey, APISecret: secret, KeyID: key.KeyID}, nil
}

// insertPartner assigns a partner code and legacy credentials, retrying with
// fresh values when a generated code or key collides with an existing one.
func insertPartner(ctx context.Context, s store.PartnerStore, gen *credential.Generator, p *model.Partner) (string, string, error) {
	for attempt := 1; ; attempt++ {
		code, err := credential.PartnerCode(p.CompanyName)
		if err != nil {
			log.Error().Err(err).Msg("failed to generate partner code")
			return "", "", NewInternal("internal_error", "Failed to create partner")
		}
		apiKey, secret, err := gen.Credentials()
		if err != nil {
			log.Error().Err(err).Msg("failed to generate partner credentials")
			return "", "", NewInternal("internal_error", "Failed to create partner")
		}
		p.PartnerCode = code
		p.APIKey = apiKey
		p.APISecretHash = credential.Hash(secret)

		err = s.CreatePartner(ctx, p)
		if err == nil {
			return apiKey, secret, nil
		}
		if errors.Is(err, store.ErrDuplicate) {
			if _, lookupErr := s.GetPartnerByEmail(ctx, p.Email); lookupErr == nil {
				return "", "", NewConflict("email_taken", "Email already registered")
			}
			if attempt < maxCreateAttempts {
				log.Warn().Str("partner_code", code).Int("attempt", attempt).Msg("partner code collision, retrying")
				continue
			}
		}
		log.Error().Err(err).Str("email", p.Email).Msg("failed to insert partner")
		return "", "", NewInternal("internal_error", "Failed to create partner")
	}
}

func ipAllowed(clientIP string, allowed []string) bool {
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil && a.Unmap() == addr {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
