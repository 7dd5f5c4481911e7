package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partner-gateway-service/internal/model"
	"github.com/partner-gateway-service/internal/notify"
	"github.com/partner-gateway-service/internal/store"
)

const testPassword = "Secur3!Pass"

func acmeRegistration() RegisterInput {
	return RegisterInput{
		Name:         "Jane Doe",
		Email:        "Ops@AcmeTravel.example",
		Password:     testPassword,
		Phone:        "+14155550100",
		Website:      "https://acmetravel.example",
		CompanyName:  "Acme Travel Ltd",
		BusinessType: model.BusinessTravelAgency,
	}
}

// activePartner walks a partner through registration, verification and approval.
func activePartner(t *testing.T, env *testEnv) (*model.Partner, *ApprovalResult) {
	t.Helper()
	ctx := context.Background()
	reg, err := env.partners.Register(ctx, acmeRegistration())
	require.NoError(t, err)
	_, err = env.partners.VerifyEmail(ctx, reg.VerificationToken)
	require.NoError(t, err)
	approved, err := env.partners.Approve(ctx, reg.Partner.ID, "admin@example.com", ApprovalInput{})
	require.NoError(t, err)
	return approved.Partner, approved
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending partner", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)

		p := res.Partner
		assert.Equal(t, model.PartnerPendingVerification, p.Status)
		assert.Equal(t, "ops@acmetravel.example", p.Email)
		assert.Regexp(t, `^ACMETR-[0-9A-F]{6}$`, p.PartnerCode)
		assert.False(t, p.EmailVerified)
		assert.NotEqual(t, testPassword, p.PasswordHash)
		assert.NotEmpty(t, res.VerificationToken)
		require.NotNil(t, p.EmailVerificationExpires)
		assert.Equal(t, testNow.Add(24*time.Hour), *p.EmailVerificationExpires)
		assert.Equal(t, model.DefaultRateLimitPerMinute, p.RateLimitPerMinute)

		msg, ok := env.notes.last(notify.KindEmailVerification)
		require.True(t, ok)
		assert.Equal(t, res.VerificationToken, msg.Data["token"])
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)

		in := acmeRegistration()
		in.Email = "OPS@acmetravel.example"
		_, err = env.partners.Register(ctx, in)
		requireKind(t, err, ErrConflict, "email_taken")
	})

	t.Run("invalid input reports fields", func(t *testing.T) {
		env := newTestEnv(t)
		in := acmeRegistration()
		in.Password = "password"
		in.Phone = "0123"
		in.BusinessType = "airline"
		_, err := env.partners.Register(ctx, in)
		svcErr := requireKind(t, err, ErrBadRequest, "validation_failed")
		assert.Contains(t, svcErr.Fields, "password")
		assert.Contains(t, svcErr.Fields, "phone")
		assert.Contains(t, svcErr.Fields, "business_type")
	})
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to pending approval and is single use", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)

		p, err := env.partners.VerifyEmail(ctx, reg.VerificationToken)
		require.NoError(t, err)
		assert.Equal(t, model.PartnerPendingApproval, p.Status)
		assert.True(t, p.EmailVerified)

		_, err = env.partners.VerifyEmail(ctx, reg.VerificationToken)
		requireKind(t, err, ErrBadRequest, "invalid_token")
	})

	t.Run("expired token", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)

		env.advance(24*time.Hour + time.Second)
		_, err = env.partners.VerifyEmail(ctx, reg.VerificationToken)
		requireKind(t, err, ErrBadRequest, "token_expired")

		stored, err := env.store.GetPartnerByID(ctx, reg.Partner.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PartnerPendingVerification, stored.Status)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.VerifyEmail(ctx, "nope")
		requireKind(t, err, ErrBadRequest, "invalid_token")
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("before verification is a transition conflict", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)

		_, err = env.partners.Approve(ctx, reg.Partner.ID, "admin", ApprovalInput{})
		svcErr := requireKind(t, err, ErrBadRequest, "invalid_status_transition")
		assert.Equal(t, "Partner status is pending_verification, expected pending_approval", svcErr.Message)
	})

	t.Run("issues new legacy credentials", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)
		temporaryKey := reg.Partner.APIKey
		_, err = env.partners.VerifyEmail(ctx, reg.VerificationToken)
		require.NoError(t, err)

		res, err := env.partners.Approve(ctx, reg.Partner.ID, "admin@example.com", ApprovalInput{
			RateLimitPerMinute: intPtr(120),
			RateLimitPerDay:    intPtr(50000),
			Notes:              "verified agency",
		})
		require.NoError(t, err)

		assert.Equal(t, model.PartnerActive, res.Partner.Status)
		assert.Equal(t, "admin@example.com", res.Partner.ApprovedBy)
		assert.Equal(t, 120, res.Partner.RateLimitPerMinute)
		assert.Equal(t, 50000, res.Partner.RateLimitPerDay)
		assert.Regexp(t, `^ovu_test_`, res.APIKey)
		assert.Regexp(t, `^sk_test_`, res.APISecret)
		assert.NotEqual(t, temporaryKey, res.APIKey)

		_, err = env.store.GetPartnerByAPIKey(ctx, temporaryKey)
		assert.ErrorIs(t, err, store.ErrNotFound)

		principal, err := env.registry.Authenticate(ctx, res.APIKey, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, principal.Legacy())
		assert.Equal(t, reg.Partner.ID, principal.Partner.ID)
	})

	t.Run("approving twice conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		p, _ := activePartner(t, env)
		_, err := env.partners.Approve(ctx, p.ID, "admin", ApprovalInput{})
		requireKind(t, err, ErrBadRequest, "invalid_status_transition")
	})

	t.Run("rate limits are bounded", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Approve(ctx, uuid.New(), "admin", ApprovalInput{RateLimitPerDay: intPtr(10)})
		svcErr := requireKind(t, err, ErrBadRequest, "validation_failed")
		assert.Contains(t, svcErr.Fields, "rate_limit_per_day")
	})
}

func TestRejectSuspendActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("reject pending partner", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)
		_, err = env.partners.VerifyEmail(ctx, reg.VerificationToken)
		require.NoError(t, err)

		p, err := env.partners.Reject(ctx, reg.Partner.ID, "admin", RejectInput{Reason: "incomplete documents"})
		require.NoError(t, err)
		assert.Equal(t, model.PartnerRejected, p.Status)
		assert.Equal(t, "incomplete documents", p.RejectedReason)

		_, err = env.partners.Approve(ctx, reg.Partner.ID, "admin", ApprovalInput{})
		requireKind(t, err, ErrBadRequest, "invalid_status_transition")
	})

	t.Run("suspend and reactivate", func(t *testing.T) {
		env := newTestEnv(t)
		p, creds := activePartner(t, env)

		_, err := env.partners.Suspend(ctx, p.ID, "admin", SuspendInput{Reason: "short"})
		requireKind(t, err, ErrBadRequest, "validation_failed")

		suspended, err := env.partners.Suspend(ctx, p.ID, "admin", SuspendInput{Reason: "chargeback investigation"})
		require.NoError(t, err)
		assert.Equal(t, model.PartnerSuspended, suspended.Status)
		assert.Equal(t, "chargeback investigation", suspended.Metadata["suspension_reason"])
		assert.Equal(t, "admin", suspended.Metadata["suspended_by"])

		_, err = env.registry.Authenticate(ctx, creds.APIKey, "")
		assert.ErrorIs(t, err, ErrCredentialInactive)

		_, err = env.partners.Suspend(ctx, p.ID, "admin", SuspendInput{Reason: "chargeback investigation"})
		requireKind(t, err, ErrBadRequest, "invalid_status_transition")

		active, err := env.partners.Activate(ctx, p.ID, "admin")
		require.NoError(t, err)
		assert.Equal(t, model.PartnerActive, active.Status)
		assert.Equal(t, "admin", active.Metadata["reactivated_by"])

		_, err = env.registry.Authenticate(ctx, creds.APIKey, "")
		assert.NoError(t, err)
	})

	t.Run("activate requires suspension", func(t *testing.T) {
		env := newTestEnv(t)
		reg, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)
		_, err = env.partners.Activate(ctx, reg.Partner.ID, "admin")
		requireKind(t, err, ErrBadRequest, "invalid_status_transition")
	})

	t.Run("unknown partner", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Suspend(ctx, uuid.New(), "admin", SuspendInput{Reason: "chargeback investigation"})
		requireKind(t, err, ErrNotFound, "not_found")
	})
}

func TestDeactivateRevokesKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, _ := activePartner(t, env)

	created, err := env.registry.CreateKey(ctx, p, KeyOptions{Name: "Production"})
	require.NoError(t, err)

	deactivated, err := env.partners.Deactivate(ctx, p.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.PartnerInactive, deactivated.Status)

	key, err := env.store.GetAPIKeyByKeyID(ctx, created.Key.KeyID)
	require.NoError(t, err)
	assert.Equal(t, model.KeyStatusRevoked, key.Status)

	_, err = env.partners.Deactivate(ctx, p.ID, "admin")
	requireKind(t, err, ErrBadRequest, "invalid_status_transition")
	assert.Contains(t, env.notes.kinds(), notify.KindDeactivated)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("active partner receives tokens", func(t *testing.T) {
		env := newTestEnv(t)
		p, _ := activePartner(t, env)

		res, err := env.partners.Login(ctx, "OPS@acmetravel.example", testPassword)
		require.NoError(t, err)
		assert.Equal(t, "bearer", res.Tokens.TokenType)
		assert.Equal(t, p.ID, res.Partner.ID)

		authed, err := env.partners.Authorize(ctx, res.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, p.ID, authed.ID)

		_, err = env.partners.Authorize(ctx, res.Tokens.RefreshToken)
		requireKind(t, err, ErrUnauthorized, "invalid_token")

		pair, err := env.partners.Refresh(ctx, res.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		activePartner(t, env)
		_, err := env.partners.Login(ctx, "ops@acmetravel.example", "Wr0ng!pass")
		svcErr := requireKind(t, err, ErrUnauthorized, "invalid_credentials")
		assert.Equal(t, "Invalid email or password", svcErr.Message)
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Login(ctx, "nobody@example.com", testPassword)
		requireKind(t, err, ErrUnauthorized, "invalid_credentials")
	})

	t.Run("pending partner is told why", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Register(ctx, acmeRegistration())
		require.NoError(t, err)
		_, err = env.partners.Login(ctx, "ops@acmetravel.example", testPassword)
		svcErr := requireKind(t, err, ErrForbidden, "account_inactive")
		assert.Equal(t, "Please verify your email address", svcErr.Message)
	})

	t.Run("suspended partner loses dashboard access", func(t *testing.T) {
		env := newTestEnv(t)
		p, _ := activePartner(t, env)
		res, err := env.partners.Login(ctx, "ops@acmetravel.example", testPassword)
		require.NoError(t, err)

		_, err = env.partners.Suspend(ctx, p.ID, "admin", SuspendInput{Reason: "chargeback investigation"})
		require.NoError(t, err)

		_, err = env.partners.Refresh(ctx, res.Tokens.RefreshToken)
		requireKind(t, err, ErrUnauthorized, "invalid_token")
	})

	t.Run("refresh rejects garbage", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.partners.Refresh(ctx, "not-a-jwt")
		requireKind(t, err, ErrUnauthorized, "invalid_token")
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email is silent", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.partners.ForgotPassword(ctx, "nobody@example.com"))
		_, ok := env.notes.last(notify.KindPasswordReset)
		assert.False(t, ok)
	})

	t.Run("token resets password once", func(t *testing.T) {
		env := newTestEnv(t)
		activePartner(t, env)
		require.NoError(t, env.partners.ForgotPassword(ctx, "ops@acmetravel.example"))
		msg, ok := env.notes.last(notify.KindPasswordReset)
		require.True(t, ok)
		tok := msg.Data["token"]

		in := ResetPasswordInput{Token: tok, NewPassword: "N3w!Password"}
		require.NoError(t, env.partners.ResetPassword(ctx, in))

		_, err := env.partners.Login(ctx, "ops@acmetravel.example", testPassword)
		requireKind(t, err, ErrUnauthorized, "invalid_credentials")
		_, err = env.partners.Login(ctx, "ops@acmetravel.example", "N3w!Password")
		require.NoError(t, err)

		err = env.partners.ResetPassword(ctx, in)
		requireKind(t, err, ErrBadRequest, "invalid_token")
	})

	t.Run("token expires after an hour", func(t *testing.T) {
		env := newTestEnv(t)
		activePartner(t, env)
		require.NoError(t, env.partners.ForgotPassword(ctx, "ops@acmetravel.example"))
		msg, _ := env.notes.last(notify.KindPasswordReset)

		env.advance(time.Hour)
		err := env.partners.ResetPassword(ctx, ResetPasswordInput{Token: msg.Data["token"], NewPassword: "N3w!Password"})
		requireKind(t, err, ErrBadRequest, "token_expired")
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, _ := activePartner(t, env)

	err := env.partners.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: "Wr0ng!pass", NewPassword: "N3w!Password"})
	svcErr := requireKind(t, err, ErrBadRequest, "invalid_password")
	assert.Equal(t, "Current password is incorrect", svcErr.Message)

	err = env.partners.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "weak"})
	requireKind(t, err, ErrBadRequest, "validation_failed")

	require.NoError(t, env.partners.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: testPassword, NewPassword: "N3w!Password"}))
	_, err = env.partners.Login(ctx, "ops@acmetravel.example", "N3w!Password")
	require.NoError(t, err)
}

func TestUpdateProfileAndWebhookConfig(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p, _ := activePartner(t, env)

	name := "Jane Q. Doe"
	updated, err := env.partners.UpdateProfile(ctx, p, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "+14155550100", updated.Phone)

	url := "https://hooks.acmetravel.example/ovu"
	short := "too-short"
	_, err = env.partners.UpdateWebhookConfig(ctx, p, WebhookConfigInput{URL: &url, Secret: &short})
	svcErr := requireKind(t, err, ErrBadRequest, "validation_failed")
	assert.Contains(t, svcErr.Fields, "webhook_secret")

	_, err = env.partners.UpdateWebhookConfig(ctx, p, WebhookConfigInput{URL: &url, Events: []string{"booking.exploded"}})
	requireKind(t, err, ErrBadRequest, "validation_failed")

	secret := "whsec_0123456789abcdef0123456789abcdef"
	updated, err = env.partners.UpdateWebhookConfig(ctx, p, WebhookConfigInput{
		URL:    &url,
		Events: []string{"booking.created", "payment.success", "booking.created"},
		Secret: &secret,
	})
	require.NoError(t, err)
	assert.Equal(t, url, updated.WebhookURL)
	assert.Equal(t, []model.WebhookEvent{model.EventBookingCreated, model.EventPaymentSuccess}, updated.WebhookEvents)

	stored, err := env.store.GetPartnerByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, secret, stored.WebhookSecret)
	assert.True(t, stored.Subscribed(model.EventPaymentSuccess))
}

func TestListPartners(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	activePartner(t, env)

	other := acmeRegistration()
	other.Email = "ops@globex.example"
	other.CompanyName = "Globex"
	_, err := env.partners.Register(ctx, other)
	require.NoError(t, err)

	status := model.PartnerActive
	list, total, err := env.partners.List(ctx, store.PartnerFilters{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "ops@acmetravel.example", list[0].Email)

	bogus := model.PartnerStatus("bogus")
	_, _, err = env.partners.List(ctx, store.PartnerFilters{Status: &bogus})
	requireKind(t, err, ErrBadRequest, "validation_failed")
}
