package model

import (
	"time"

	"github.com/google/uuid"
)

type PartnerStatus string

const (
	PartnerPendingVerification PartnerStatus = "pending_verification"
	PartnerPendingApproval     PartnerStatus = "pending_approval"
	PartnerActive              PartnerStatus = "active"
	PartnerSuspended           PartnerStatus = "suspended"
	PartnerRejected            PartnerStatus = "rejected"
	PartnerInactive            PartnerStatus = "inactive"
)

// partnerTransitions lists every allowed status change. Inactive is reachable
// from any state and is handled separately in CanTransition.
var partnerTransitions = map[PartnerStatus][]PartnerStatus{
	PartnerPendingVerification: {PartnerPendingApproval},
	PartnerPendingApproval:     {PartnerActive, PartnerRejected},
	PartnerActive:              {PartnerSuspended},
	PartnerSuspended:           {PartnerActive},
	PartnerRejected:            nil,
	PartnerInactive:            nil,
}

// Valid reports whether s is one of the known partner statuses.
func (s PartnerStatus) Valid() bool {
	_, ok := partnerTransitions[s]
	return ok
}

// CanTransition reports whether a partner in status s may move to status to.
func (s PartnerStatus) CanTransition(to PartnerStatus) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if to == PartnerInactive {
		return s != PartnerInactive
	}
	for _, next := range partnerTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InactiveMessage is the message shown to a partner that cannot sign in.
func (s PartnerStatus) InactiveMessage() string {
	switch s {
	case PartnerPendingVerification:
		return "Please verify your email address"
	case PartnerPendingApproval:
		return "Your application is pending admin approval"
	case PartnerRejected:
		return "Your application has been rejected"
	case PartnerSuspended:
		return "Your account has been suspended"
	case PartnerInactive:
		return "Your account is inactive"
	default:
		return "Account is not active"
	}
}

const (
	DefaultRateLimitPerMinute = 60
	DefaultRateLimitPerDay    = 10000
)

const (
	BusinessTravelAgency = "travel_agency"
	BusinessCorporate    = "corporate"
	BusinessReseller     = "reseller"
	BusinessPlatform     = "platform"
	BusinessOther        = "other"
)

type Partner struct {
	ID                    uuid.UUID     `json:"id"`
	PartnerCode           string        `json:"partner_code"`
	Name                  string        `json:"name"`
	Email                 string        `json:"email"`
	Phone                 string        `json:"phone"`
	Website               string        `json:"website,omitempty"`
	CompanyName           string        `json:"company_name"`
	BusinessType          string        `json:"business_type"`
	TaxID                 string        `json:"tax_id,omitempty"`
	BusinessDescription   string        `json:"business_description,omitempty"`
	ExpectedMonthlyVolume *int          `json:"expected_monthly_volume,omitempty"`
	Status                PartnerStatus `json:"status"`

	// Legacy single credential. APIKey is matched by equality; only the
	// secret's digest is stored.
	APIKey        string `json:"-"`
	APISecretHash string `json:"-"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerDay    int `json:"rate_limit_per_day"`

	WebhookURL    string         `json:"webhook_url,omitempty"`
	WebhookEvents []WebhookEvent `json:"webhook_events"`
	WebhookSecret string         `json:"-"`

	TotalRequests int64      `json:"total_requests"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`

	PasswordHash             string     `json:"-"`
	EmailVerified            bool       `json:"email_verified"`
	EmailVerificationToken   string     `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	ResetToken               string     `json:"-"`
	ResetTokenExpires        *time.Time `json:"-"`

	ApprovedBy     string     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ApprovalNotes  string     `json:"approval_notes,omitempty"`
	RejectedReason string     `json:"rejected_reason,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribed reports whether the partner receives webhooks for the event.
func (p *Partner) Subscribed(event WebhookEvent) bool {
	for _, e := range p.WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

func (p *Partner) SetMetadata(key, value string) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	p.Metadata[key] = value
}
