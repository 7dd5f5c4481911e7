package model

import (
	"time"

	"github.com/google/uuid"
)

type APIKeyStatus string

const (
	KeyStatusActive  APIKeyStatus = "active"
	KeyStatusRevoked APIKeyStatus = "revoked"
	KeyStatusExpired APIKeyStatus = "expired"
)

// Terminal reports whether no further status change is allowed.
func (s APIKeyStatus) Terminal() bool {
	switch s {
	case KeyStatusRevoked, KeyStatusExpired:
		return true
	case KeyStatusActive:
		return false
	default:
		return true
	}
}

const (
	ScopeSearch  = "search"
	ScopeBooking = "booking"
	ScopePayment = "payment"
)

// AllScopes returns every scope a key may hold. It is also the default scope set.
func AllScopes() []string {
	return []string{ScopeSearch, ScopeBooking, ScopePayment}
}

type APIKey struct {
	ID                 uuid.UUID    `json:"id"`
	KeyID              string       `json:"key_id"`
	KeyHash            string       `json:"-"`
	KeyPrefix          string       `json:"key_preview"`
	Name               string       `json:"name"`
	PartnerID          uuid.UUID    `json:"partner_id"`
	Status             APIKeyStatus `json:"status"`
	Scopes             []string     `json:"scopes"`
	RateLimitPerMinute *int         `json:"rate_limit_per_minute,omitempty"`
	AllowedIPs         []string     `json:"allowed_ips"`
	TotalRequests      int64        `json:"total_requests"`
	LastUsedAt         *time.Time   `json:"last_used_at,omitempty"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	RevokedAt          *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// ExpiredAt reports whether the key's expiry has passed at the given instant.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
