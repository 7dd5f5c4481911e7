package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/partner-gateway-service/internal/credential"
	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/notify"
	"github.com/partner-gateway-service/internal/store"
	"github.com/partner-gateway-service/internal/token"
	"github.com/partner-gateway-service/internal/validation"
)

const (
	verificationTTL  = 24 * time.Hour
	resetTTL         = time.Hour
	minWebhookSecret = 32
)

// PartnerService drives the partner lifecycle: registration, email
// verification, admin review, suspension and dashboard sign-in.
type PartnerService struct {
	store      store.Store
	registry   *Registry
	gen        *credential.Generator
	tokens     *token.Issuer
	notifier   notify.Notifier
	now        func() time.Time
	bcryptCost int
}

func NewPartnerService(s store.Store, registry *Registry, gen *credential.Generator, tokens *token.Issuer, notifier notify.Notifier) *PartnerService {
	return &PartnerService{
		store:      s,
		registry:   registry,
		gen:        gen,
		tokens:     tokens,
		notifier:   notifier,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

type RegisterInput struct {
	Name                  string `json:"name" validate:"required,min=2,max=100"`
	Email                 string `json:"email" validate:"required,email"`
	Password              string `json:"password" validate:"required,password"`
	Phone                 string `json:"phone" validate:"required,phone"`
	Website               string `json:"website" validate:"omitempty,http_url"`
	CompanyName           string `json:"company_name" validate:"required,min=2,max=200"`
	BusinessType          string `json:"business_type" validate:"required,business_type"`
	TaxID                 string `json:"tax_id" validate:"omitempty,max=50"`
	BusinessDescription   string `json:"business_description" validate:"omitempty,max=1000"`
	ExpectedMonthlyVolume *int   `json:"expected_monthly_volume" validate:"omitempty,gte=0"`
}

type RegisterResult struct {
	Partner           *model.Partner
	VerificationToken string
}

// Register creates a partner in pending_verification with temporary legacy
// credentials and sends the verification link.
func (s *PartnerService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}

	if _, err := s.store.GetPartnerByEmail(ctx, in.Email); err == nil {
		return nil, NewConflict("email_taken", "Email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Msg("failed to check partner email")
		return nil, NewInternal("internal_error", "Registration failed")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		return nil, NewInternal("internal_error", "Registration failed")
	}
	verifyToken, err := credential.Token()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate verification token")
		return nil, NewInternal("internal_error", "Registration failed")
	}
	expires := s.now().UTC().Add(verificationTTL)

	partner := &model.Partner{
		Name:                     in.Name,
		Email:                    in.Email,
		Phone:                    in.Phone,
		Website:                  in.Website,
		CompanyName:              in.CompanyName,
		BusinessType:             in.BusinessType,
		TaxID:                    in.TaxID,
		BusinessDescription:      in.BusinessDescription,
		ExpectedMonthlyVolume:    in.ExpectedMonthlyVolume,
		Status:                   model.PartnerPendingVerification,
		RateLimitPerMinute:       model.DefaultRateLimitPerMinute,
		RateLimitPerDay:          model.DefaultRateLimitPerDay,
		WebhookEvents:            []model.WebhookEvent{},
		PasswordHash:             string(passwordHash),
		EmailVerificationToken:   verifyToken,
		EmailVerificationExpires: &expires,
	}

	// The temporary credentials are never returned; they are replaced on approval.
	if _, _, err := insertPartner(ctx, s.store, s.gen, partner); err != nil {
		return nil, err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Str("email", partner.Email).Msg("partner registered")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindEmailVerification,
		To:      partner.Email,
		Subject: "Verify your email address",
		Data:    map[string]string{"name": partner.Name, "token": verifyToken},
	})
	return &RegisterResult{Partner: partner, VerificationToken: verifyToken}, nil
}

// VerifyEmail consumes a verification token and moves the partner to
// pending_approval.
func (s *PartnerService) VerifyEmail(ctx context.Context, tok string) (*model.Partner, error) {
	if tok == "" {
		return nil, NewBadRequest("invalid_token", "Invalid verification token")
	}
	partner, err := s.store.GetPartnerByVerificationToken(ctx, tok)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewBadRequest("invalid_token", "Invalid verification token")
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to look up verification token")
		return nil, NewInternal("internal_error", "Email verification failed")
	}

	if partner.EmailVerificationExpires == nil || !s.now().Before(*partner.EmailVerificationExpires) {
		return nil, NewBadRequest("token_expired", "Verification token expired")
	}
	if err := requireTransition(partner, model.PartnerPendingVerification, model.PartnerPendingApproval); err != nil {
		return nil, err
	}

	partner.Status = model.PartnerPendingApproval
	partner.EmailVerified = true
	partner.EmailVerificationToken = ""
	partner.EmailVerificationExpires = nil
	if err := s.save(ctx, partner, "Email verification failed"); err != nil {
		return nil, err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Msg("partner email verified")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindRegistered,
		To:      partner.Email,
		Subject: "Your application is under review",
		Data:    map[string]string{"name": partner.Name, "partner_code": partner.PartnerCode},
	})
	return partner, nil
}

type ApprovalInput struct {
	RateLimitPerMinute *int   `json:"rate_limit_per_minute" validate:"omitempty,gte=1,lte=10000"`
	RateLimitPerDay    *int   `json:"rate_limit_per_day" validate:"omitempty,gte=100,lte=1000000"`
	Notes              string `json:"notes" validate:"max=500"`
}

type ApprovalResult struct {
	Partner   *model.Partner
	APIKey    string
	APISecret string
}

// Approve activates a partner awaiting review and issues fresh legacy
// credentials, replacing the temporary pair from registration.
func (s *PartnerService) Approve(ctx context.Context, id uuid.UUID, admin string, in ApprovalInput) (*ApprovalResult, error) {
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(partner, model.PartnerPendingApproval, model.PartnerActive); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	partner.Status = model.PartnerActive
	partner.ApprovedBy = admin
	partner.ApprovedAt = &now
	partner.ApprovalNotes = in.Notes
	if in.RateLimitPerMinute != nil {
		partner.RateLimitPerMinute = *in.RateLimitPerMinute
	}
	if in.RateLimitPerDay != nil {
		partner.RateLimitPerDay = *in.RateLimitPerDay
	}

	apiKey, secret, err := s.reissueLegacyCredentials(ctx, partner)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("admin", admin).
		Str("api_key_prefix", credential.Preview(apiKey, 12)).
		Msg("partner approved")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindApproved,
		To:      partner.Email,
		Subject: "Your partner account has been approved",
		Data:    map[string]string{"name": partner.Name, "partner_code": partner.PartnerCode},
	})
	return &ApprovalResult{Partner: partner, APIKey: apiKey, APISecret: secret}, nil
}

func (s *PartnerService) reissueLegacyCredentials(ctx context.Context, partner *model.Partner) (string, string, error) {
	for attempt := 1; ; attempt++ {
		apiKey, secret, err := s.gen.Credentials()
		if err != nil {
			log.Error().Err(err).Msg("failed to generate partner credentials")
			return "", "", NewInternal("internal_error", "Failed to issue credentials")
		}
		partner.APIKey = apiKey
		partner.APISecretHash = credential.Hash(secret)

		err = s.store.UpdatePartner(ctx, partner)
		if errors.Is(err, store.ErrDuplicate) && attempt < maxCreateAttempts {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to save partner")
			return "", "", NewInternal("internal_error", "Failed to issue credentials")
		}
		return apiKey, secret, nil
	}
}

type RejectInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *PartnerService) Reject(ctx context.Context, id uuid.UUID, admin string, in RejectInput) (*model.Partner, error) {
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(partner, model.PartnerPendingApproval, model.PartnerRejected); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	partner.Status = model.PartnerRejected
	partner.RejectedReason = in.Reason
	partner.RejectedAt = &now
	if err := s.save(ctx, partner, "Failed to reject partner"); err != nil {
		return nil, err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Str("admin", admin).Msg("partner rejected")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindRejected,
		To:      partner.Email,
		Subject: "Your partner application",
		Data:    map[string]string{"name": partner.Name, "reason": in.Reason},
	})
	return partner, nil
}

type SuspendInput struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

func (s *PartnerService) Suspend(ctx context.Context, id uuid.UUID, admin string, in SuspendInput) (*model.Partner, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(partner, model.PartnerActive, model.PartnerSuspended); err != nil {
		return nil, err
	}

	partner.Status = model.PartnerSuspended
	partner.SetMetadata("suspension_reason", in.Reason)
	partner.SetMetadata("suspended_by", admin)
	partner.SetMetadata("suspended_at", s.now().UTC().Format(time.RFC3339))
	if err := s.save(ctx, partner, "Failed to suspend partner"); err != nil {
		return nil, err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Str("admin", admin).Msg("partner suspended")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindSuspended,
		To:      partner.Email,
		Subject: "Your partner account has been suspended",
		Data:    map[string]string{"name": partner.Name, "reason": in.Reason},
	})
	return partner, nil
}

func (s *PartnerService) Activate(ctx context.Context, id uuid.UUID, admin string) (*model.Partner, error) {
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(partner, model.PartnerSuspended, model.PartnerActive); err != nil {
		return nil, err
	}

	partner.Status = model.PartnerActive
	partner.SetMetadata("reactivated_by", admin)
	partner.SetMetadata("reactivated_at", s.now().UTC().Format(time.RFC3339))
	if err := s.save(ctx, partner, "Failed to activate partner"); err != nil {
		return nil, err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Str("admin", admin).Msg("partner reactivated")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindActivated,
		To:      partner.Email,
		Subject: "Your partner account has been reactivated",
		Data:    map[string]string{"name": partner.Name},
	})
	return partner, nil
}

// Deactivate moves a partner to inactive from any other status and revokes
// all of its API keys.
func (s *PartnerService) Deactivate(ctx context.Context, id uuid.UUID, admin string) (*model.Partner, error) {
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !partner.Status.CanTransition(model.PartnerInactive) {
		return nil, NewTransitionConflict(fmt.Sprintf("Partner status is %s and cannot be deactivated", partner.Status))
	}

	partner.Status = model.PartnerInactive
	partner.SetMetadata("deactivated_by", admin)
	partner.SetMetadata("deactivated_at", s.now().UTC().Format(time.RFC3339))
	if err := s.save(ctx, partner, "Failed to deactivate partner"); err != nil {
		return nil, err
	}

	revoked, err := s.registry.RevokeAllForPartner(ctx, partner.ID)
	if err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("partner deactivated but key revocation failed")
		return nil, NewInternal("internal_error", "Partner deactivated but API keys could not be revoked")
	}

	log.Info().
		Str("partner_code", partner.PartnerCode).
		Str("admin", admin).
		Int64("keys_revoked", revoked).
		Msg("partner deactivated")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindDeactivated,
		To:      partner.Email,
		Subject: "Your partner account has been deactivated",
		Data:    map[string]string{"name": partner.Name},
	})
	return partner, nil
}

func (s *PartnerService) Get(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	return s.load(ctx, id)
}

func (s *PartnerService) List(ctx context.Context, filters store.PartnerFilters) ([]*model.Partner, int, error) {
	if filters.Status != nil && !filters.Status.Valid() {
		return nil, 0, NewValidation(map[string]string{"status": "unknown partner status"})
	}
	partners, total, err := s.store.ListPartners(ctx, filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to list partners")
		return nil, 0, NewInternal("internal_error", "Failed to list partners")
	}
	return partners, total, nil
}

type LoginResult struct {
	Tokens  *token.Pair
	Partner *model.Partner
}

// Login checks dashboard credentials. Only active partners may sign in.
func (s *PartnerService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	partner, err := s.store.GetPartnerByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Msg("failed to look up partner for login")
		return nil, NewInternal("internal_error", "Login failed")
	}
	if partner == nil || partner.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(partner.PasswordHash), []byte(password)) != nil {
		return nil, NewUnauthorized("invalid_credentials", "Invalid email or password")
	}
	if partner.Status != model.PartnerActive {
		return nil, NewForbidden("account_inactive", partner.Status.InactiveMessage())
	}

	pair, err := s.tokens.Issue(partner.ID, partner.PartnerCode)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue tokens")
		return nil, NewInternal("internal_error", "Login failed")
	}
	log.Info().Str("partner_code", partner.PartnerCode).Msg("partner signed in")
	return &LoginResult{Tokens: pair, Partner: partner}, nil
}

func (s *PartnerService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	partner, err := s.partnerFromToken(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(partner.ID, partner.PartnerCode)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue tokens")
		return nil, NewInternal("internal_error", "Token refresh failed")
	}
	return pair, nil
}

// Authorize resolves a dashboard access token to an active partner.
func (s *PartnerService) Authorize(ctx context.Context, accessToken string) (*model.Partner, error) {
	return s.partnerFromToken(ctx, accessToken, token.TypeAccess)
}

func (s *PartnerService) partnerFromToken(ctx context.Context, raw, typ string) (*model.Partner, error) {
	claims, err := s.tokens.Parse(raw, typ)
	if err != nil {
		return nil, NewUnauthorized("invalid_token", "Invalid or expired token")
	}
	id, err := claims.PartnerID()
	if err != nil {
		return nil, NewUnauthorized("invalid_token", "Invalid or expired token")
	}
	partner, err := s.store.GetPartnerByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewUnauthorized("invalid_token", "Invalid or expired token")
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load token subject")
		return nil, NewInternal("internal_error", "Authentication failed")
	}
	if partner.Status != model.PartnerActive {
		return nil, NewUnauthorized("invalid_token", "Invalid or expired token")
	}
	return partner, nil
}

// ForgotPassword issues a reset token when the email is registered. The
// outcome is the same either way so callers cannot discover which accounts exist.
func (s *PartnerService) ForgotPassword(ctx context.Context, email string) error {
	partner, err := s.store.GetPartnerByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to look up partner for password reset")
		return nil
	}

	resetToken, err := credential.Token()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate reset token")
		return nil
	}
	expires := s.now().UTC().Add(resetTTL)
	partner.ResetToken = resetToken
	partner.ResetTokenExpires = &expires
	if err := s.store.UpdatePartner(ctx, partner); err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to store reset token")
		return nil
	}

	log.Info().Str("partner_code", partner.PartnerCode).Msg("password reset requested")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindPasswordReset,
		To:      partner.Email,
		Subject: "Reset your password",
		Data:    map[string]string{"name": partner.Name, "token": resetToken},
	})
	return nil
}

type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

func (s *PartnerService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if fields := validation.Struct(in); fields != nil {
		return NewValidation(fields)
	}
	partner, err := s.store.GetPartnerByResetToken(ctx, in.Token)
	if errors.Is(err, store.ErrNotFound) {
		return NewBadRequest("invalid_token", "Invalid reset token")
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to look up reset token")
		return NewInternal("internal_error", "Password reset failed")
	}
	if partner.ResetTokenExpires == nil || !s.now().Before(*partner.ResetTokenExpires) {
		return NewBadRequest("token_expired", "Reset token expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		return NewInternal("internal_error", "Password reset failed")
	}
	partner.PasswordHash = string(hash)
	partner.ResetToken = ""
	partner.ResetTokenExpires = nil
	if err := s.save(ctx, partner, "Password reset failed"); err != nil {
		return err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Msg("password reset")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindPasswordChanged,
		To:      partner.Email,
		Subject: "Your password was reset",
		Data:    map[string]string{"name": partner.Name},
	})
	return nil
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

func (s *PartnerService) ChangePassword(ctx context.Context, partner *model.Partner, in ChangePasswordInput) error {
	if fields := validation.Struct(in); fields != nil {
		return NewValidation(fields)
	}
	if partner.PasswordHash == "" {
		return NewBadRequest("no_password", "No password set for this account")
	}
	if bcrypt.CompareHashAndPassword([]byte(partner.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return NewBadRequest("invalid_password", "Current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		return NewInternal("internal_error", "Password change failed")
	}
	partner.PasswordHash = string(hash)
	if err := s.save(ctx, partner, "Password change failed"); err != nil {
		return err
	}

	log.Info().Str("partner_code", partner.PartnerCode).Msg("password changed")
	s.notify(ctx, notify.Message{
		Kind:    notify.KindPasswordChanged,
		To:      partner.Email,
		Subject: "Your password was changed",
		Data:    map[string]string{"name": partner.Name},
	})
	return nil
}

type ProfileUpdate struct {
	Name                *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone               *string `json:"phone" validate:"omitempty,phone"`
	Website             *string `json:"website" validate:"omitempty,http_url"`
	BusinessDescription *string `json:"business_description" validate:"omitempty,max=1000"`
}

func (s *PartnerService) UpdateProfile(ctx context.Context, partner *model.Partner, in ProfileUpdate) (*model.Partner, error) {
	if fields := validation.Struct(in); fields != nil {
		return nil, NewValidation(fields)
	}
	if in.Name != nil {
		partner.Name = *in.Name
	}
	if in.Phone != nil {
		partner.Phone = *in.Phone
	}
	if in.Website != nil {
		partner.Website = *in.Website
	}
	if in.BusinessDescription != nil {
		partner.BusinessDescription = *in.BusinessDescription
	}
	if err := s.save(ctx, partner, "Failed to update profile"); err != nil {
		return nil, err
	}
	return partner, nil
}

type WebhookConfigInput struct {
	URL    *string  `json:"webhook_url" validate:"omitempty,http_url"`
	Events []string `json:"webhook_events" validate:"omitempty,dive,webhook_event"`
	Secret *string  `json:"webhook_secret"`
}

// UpdateWebhookConfig replaces the partner's webhook URL and subscriptions.
// An empty URL disables delivery. The secret is kept when not supplied.
func (s *PartnerService) UpdateWebhookConfig(ctx context.Context, partner *model.Partner, in WebhookConfigInput) (*model.Partner, error) {
	fields := validation.Struct(in)
	if in.Secret != nil && *in.Secret != "" && len(*in.Secret) < minWebhookSecret {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["webhook_secret"] = fmt.Sprintf("must be at least %d characters", minWebhookSecret)
	}
	if fields != nil {
		return nil, NewValidation(fields)
	}

	partner.WebhookURL = ""
	if in.URL != nil {
		partner.WebhookURL = *in.URL
	}
	events := make([]model.WebhookEvent, 0, len(in.Events))
	for _, e := range dedupe(in.Events) {
		events = append(events, model.WebhookEvent(e))
	}
	partner.WebhookEvents = events
	if in.Secret != nil {
		partner.WebhookSecret = *in.Secret
	}

	if err := s.save(ctx, partner, "Failed to update webhook configuration"); err != nil {
		return nil, err
	}
	log.Info().
		Str("partner_code", partner.PartnerCode).
		Bool("configured", partner.WebhookURL != "").
		Int("events", len(partner.WebhookEvents)).
		Msg("webhook configuration updated")
	return partner, nil
}

func (s *PartnerService) load(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	partner, err := s.store.GetPartnerByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewNotFound("not_found", "Partner not found")
	}
	if err != nil {
		log.Error().Err(err).Str("id", id.String()).Msg("failed to load partner")
		return nil, NewInternal("internal_error", "Failed to load partner")
	}
	return partner, nil
}

func (s *PartnerService) save(ctx context.Context, partner *model.Partner, failure string) error {
	if err := s.store.UpdatePartner(ctx, partner); err != nil {
		log.Error().Err(err).Str("partner_code", partner.PartnerCode).Msg("failed to save partner")
		return NewInternal("internal_error", failure)
	}
	return nil
}

// notify hands msg to the notifier. Delivery problems never fail the
// lifecycle operation that triggered them.
func (s *PartnerService) notify(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		log.Warn().Err(err).Str("kind", string(msg.Kind)).Msg("failed to queue notification")
	}
}

func requireTransition(p *model.Partner, from, to model.PartnerStatus) error {
	if p.Status != from || !p.Status.CanTransition(to) {
		return NewTransitionConflict(fmt.Sprintf("Partner status is %s, expected %s", p.Status, from))
	}
	return nil
}
