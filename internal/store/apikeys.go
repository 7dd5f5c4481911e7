package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/partner-gateway-service/internal/model"
)

const apiKeyColumns = `id, key_id, key_hash, key_prefix, name, partner_id, status,
	scopes, rate_limit_per_minute, allowed_ips, total_requests,
	last_used_at, expires_at, revoked_at, created_at`

func (p *Postgres) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO api_keys (
			key_id, key_hash, key_prefix, name, partner_id, status,
			scopes, rate_limit_per_minute, allowed_ips, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		key.KeyID, key.KeyHash, key.KeyPrefix, key.Name, key.PartnerID, key.Status,
		nonNil(key.Scopes), key.RateLimitPerMinute, nonNil(key.AllowedIPs), key.ExpiresAt,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return wrapErr("insert api_key", err)
	}
	return nil
}

func (p *Postgres) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	return p.getAPIKey(ctx, "get api_key by hash", `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
}

func (p *Postgres) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*model.APIKey, error) {
	return p.getAPIKey(ctx, "get api_key", `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_id = $1`, keyID)
}

func (p *Postgres) ListAPIKeysByPartner(ctx context.Context, partnerID uuid.UUID) ([]*model.APIKey, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE partner_id = $1 ORDER BY created_at DESC
	`, partnerID)
	if err != nil {
		return nil, wrapErr("list api_keys", err)
	}
	defer rows.Close()

	keys := []*model.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api_key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list api_keys", err)
	}
	return keys, nil
}

// UpdateAPIKeyStatus moves a key to status. revoked_at is set only on the
// first transition to revoked.
func (p *Postgres) UpdateAPIKeyStatus(ctx context.Context, id uuid.UUID, status model.APIKeyStatus, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys
		SET status = $1,
		    revoked_at = CASE WHEN $1 = 'revoked' THEN COALESCE(revoked_at, $2) ELSE revoked_at END
		WHERE id = $3
	`, status, at, id)
	if err != nil {
		return wrapErr("update api_key status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update api_key status: %w", ErrNotFound)
	}
	return nil
}

func (p *Postgres) RevokeAPIKeysByPartner(ctx context.Context, partnerID uuid.UUID, at time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET status = 'revoked', revoked_at = $1
		WHERE partner_id = $2 AND status = 'active'
	`, at, partnerID)
	if err != nil {
		return 0, wrapErr("revoke partner api_keys", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) ExpireAPIKeys(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, wrapErr("expire api_keys", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) RecordAPIKeyUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE api_keys SET total_requests = total_requests + 1, last_used_at = $1 WHERE id = $2
	`, at, id)
	if err != nil {
		return wrapErr("record api_key usage", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record api_key usage: %w", ErrNotFound)
	}
	return nil
}

func (p *Postgres) getAPIKey(ctx context.Context, op, query string, args ...interface{}) (*model.APIKey, error) {
	key, err := scanAPIKey(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return key, nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	err := row.Scan(
		&key.ID, &key.KeyID, &key.KeyHash, &key.KeyPrefix, &key.Name, &key.PartnerID, &key.Status,
		&key.Scopes, &key.RateLimitPerMinute, &key.AllowedIPs, &key.TotalRequests,
		&key.LastUsedAt, &key.ExpiresAt, &key.RevokedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
