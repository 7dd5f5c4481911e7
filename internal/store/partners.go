package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/partner-gateway-service/internal/model"
)

const partnerColumns = `id, partner_code, name, email, phone, website, company_name,
	business_type, tax_id, business_description, expected_monthly_volume, status,
	api_key, api_secret_hash, rate_limit_per_minute, rate_limit_per_day,
	webhook_url, webhook_events, webhook_secret, total_requests, last_request_at,
	password_hash, email_verified, email_verification_token, email_verification_expires,
	reset_token, reset_token_expires, approved_by, approved_at, approval_notes,
	rejected_reason, rejected_at, metadata, created_at, updated_at`

func (p *Postgres) CreatePartner(ctx context.Context, partner *model.Partner) error {
	meta, err := json.Marshal(metadataOrEmpty(partner.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = p.pool.QueryRow(ctx, `
		INSERT INTO partners (
			partner_code, name, email, phone, website, company_name,
			business_type, tax_id, business_description, expected_monthly_volume, status,
			api_key, api_secret_hash, rate_limit_per_minute, rate_limit_per_day,
			webhook_url, webhook_events, webhook_secret,
			password_hash, email_verified, email_verification_token, email_verification_expires,
			metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id, created_at, updated_at
	`,
		partner.PartnerCode, partner.Name, partner.Email, partner.Phone, nullString(partner.Website),
		partner.CompanyName, partner.BusinessType, nullString(partner.TaxID),
		nullString(partner.BusinessDescription), partner.ExpectedMonthlyVolume, partner.Status,
		partner.APIKey, partner.APISecretHash, partner.RateLimitPerMinute, partner.RateLimitPerDay,
		nullString(partner.WebhookURL), eventStrings(partner.WebhookEvents), nullString(partner.WebhookSecret),
		partner.PasswordHash, partner.EmailVerified, nullString(partner.EmailVerificationToken),
		partner.EmailVerificationExpires, meta,
	).Scan(&partner.ID, &partner.CreatedAt, &partner.UpdatedAt)
	if err != nil {
		return wrapErr("insert partner", err)
	}
	return nil
}

func (p *Postgres) GetPartnerByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	return p.getPartner(ctx, "get partner", `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id)
}

func (p *Postgres) GetPartnerByEmail(ctx context.Context, email string) (*model.Partner, error) {
	return p.getPartner(ctx, "get partner by email", `SELECT `+partnerColumns+` FROM partners WHERE email = $1`, email)
}

func (p *Postgres) GetPartnerByAPIKey(ctx context.Context, apiKey string) (*model.Partner, error) {
	return p.getPartner(ctx, "get partner by api key", `SELECT `+partnerColumns+` FROM partners WHERE api_key = $1`, apiKey)
}

func (p *Postgres) GetPartnerByVerificationToken(ctx context.Context, token string) (*model.Partner, error) {
	return p.getPartner(ctx, "get partner by verification token",
		`SELECT `+partnerColumns+` FROM partners WHERE email_verification_token = $1`, token)
}

func (p *Postgres) GetPartnerByResetToken(ctx context.Context, token string) (*model.Partner, error) {
	return p.getPartner(ctx, "get partner by reset token",
		`SELECT `+partnerColumns+` FROM partners WHERE reset_token = $1`, token)
}

func (p *Postgres) ListPartners(ctx context.Context, filters PartnerFilters) ([]*model.Partner, int, error) {
	filters = filters.normalize()

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1
	if filters.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM partners "+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count partners", err)
	}

	offset := (filters.Page - 1) * filters.PerPage
	args = append(args, filters.PerPage, offset)
	query := fmt.Sprintf(`SELECT %s FROM partners %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		partnerColumns, where, argIdx, argIdx+1)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapErr("list partners", err)
	}
	defer rows.Close()

	var partners []*model.Partner
	for rows.Next() {
		partner, err := scanPartner(rows)
		if err != nil {
			return nil, 0, err
		}
		partners = append(partners, partner)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr("list partners", err)
	}
	return partners, total, nil
}

func (p *Postgres) UpdatePartner(ctx context.Context, partner *model.Partner) error {
	meta, err := json.Marshal(metadataOrEmpty(partner.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = p.pool.QueryRow(ctx, `
		UPDATE partners SET
			name = $1, phone = $2, website = $3, company_name = $4, business_type = $5,
			tax_id = $6, business_description = $7, expected_monthly_volume = $8, status = $9,
			api_key = $10, api_secret_hash = $11, rate_limit_per_minute = $12, rate_limit_per_day = $13,
			webhook_url = $14, webhook_events = $15, webhook_secret = $16,
			password_hash = $17, email_verified = $18,
			email_verification_token = $19, email_verification_expires = $20,
			reset_token = $21, reset_token_expires = $22,
			approved_by = $23, approved_at = $24, approval_notes = $25,
			rejected_reason = $26, rejected_at = $27, metadata = $28,
			updated_at = NOW()
		WHERE id = $29
		RETURNING updated_at
	`,
		partner.Name, partner.Phone, nullString(partner.Website), partner.CompanyName, partner.BusinessType,
		nullString(partner.TaxID), nullString(partner.BusinessDescription), partner.ExpectedMonthlyVolume,
		partner.Status, partner.APIKey, partner.APISecretHash, partner.RateLimitPerMinute, partner.RateLimitPerDay,
		nullString(partner.WebhookURL), eventStrings(partner.WebhookEvents), nullString(partner.WebhookSecret),
		partner.PasswordHash, partner.EmailVerified,
		nullString(partner.EmailVerificationToken), partner.EmailVerificationExpires,
		nullString(partner.ResetToken), partner.ResetTokenExpires,
		nullString(partner.ApprovedBy), partner.ApprovedAt, nullString(partner.ApprovalNotes),
		nullString(partner.RejectedReason), partner.RejectedAt, meta,
		partner.ID,
	).Scan(&partner.UpdatedAt)
	if err != nil {
		return wrapErr("update partner", err)
	}
	return nil
}

func (p *Postgres) RecordPartnerUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE partners SET total_requests = total_requests + 1, last_request_at = $1 WHERE id = $2
	`, at, id)
	if err != nil {
		return wrapErr("record partner usage", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record partner usage: %w", ErrNotFound)
	}
	return nil
}

func (p *Postgres) getPartner(ctx context.Context, op, query string, args ...interface{}) (*model.Partner, error) {
	partner, err := scanPartner(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return partner, nil
}

func scanPartner(row pgx.Row) (*model.Partner, error) {
	var partner model.Partner
	var website, taxID, description, hookURL, hookSecret *string
	var verifyToken, resetToken, approvedBy, approvalNotes, rejectedReason *string
	var events []string
	var meta []byte

	err := row.Scan(
		&partner.ID, &partner.PartnerCode, &partner.Name, &partner.Email, &partner.Phone, &website,
		&partner.CompanyName, &partner.BusinessType, &taxID, &description,
		&partner.ExpectedMonthlyVolume, &partner.Status,
		&partner.APIKey, &partner.APISecretHash, &partner.RateLimitPerMinute, &partner.RateLimitPerDay,
		&hookURL, &events, &hookSecret, &partner.TotalRequests, &partner.LastRequestAt,
		&partner.PasswordHash, &partner.EmailVerified, &verifyToken, &partner.EmailVerificationExpires,
		&resetToken, &partner.ResetTokenExpires, &approvedBy, &partner.ApprovedAt, &approvalNotes,
		&rejectedReason, &partner.RejectedAt, &meta, &partner.CreatedAt, &partner.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	partner.Website = derefString(website)
	partner.TaxID = derefString(taxID)
	partner.BusinessDescription = derefString(description)
	partner.WebhookURL = derefString(hookURL)
	partner.WebhookSecret = derefString(hookSecret)
	partner.EmailVerificationToken = derefString(verifyToken)
	partner.ResetToken = derefString(resetToken)
	partner.ApprovedBy = derefString(approvedBy)
	partner.ApprovalNotes = derefString(approvalNotes)
	partner.RejectedReason = derefString(rejectedReason)

	partner.WebhookEvents = make([]model.WebhookEvent, 0, len(events))
	for _, e := range events {
		partner.WebhookEvents = append(partner.WebhookEvents, model.WebhookEvent(e))
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &partner.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &partner, nil
}

func eventStrings(events []model.WebhookEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e))
	}
	return out
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
