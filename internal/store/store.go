package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/partner-gateway-service/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// PartnerStore defines operations for partner documents. Updates are whole
// document saves; the last writer wins.
type PartnerStore interface {
	CreatePartner(ctx context.Context, p *model.Partner) error
	GetPartnerByID(ctx context.Context, id uuid.UUID) (*model.Partner, error)
	GetPartnerByEmail(ctx context.Context, email string) (*model.Partner, error)
	GetPartnerByAPIKey(ctx context.Context, apiKey string) (*model.Partner, error)
	GetPartnerByVerificationToken(ctx context.Context, token string) (*model.Partner, error)
	GetPartnerByResetToken(ctx context.Context, token string) (*model.Partner, error)
	ListPartners(ctx context.Context, filters PartnerFilters) ([]*model.Partner, int, error)
	UpdatePartner(ctx context.Context, p *model.Partner) error
	RecordPartnerUsage(ctx context.Context, id uuid.UUID, at time.Time) error
}

// APIKeyStore defines operations for partner API key records.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	GetAPIKeyByKeyID(ctx context.Context, keyID string) (*model.APIKey, error)
	ListAPIKeysByPartner(ctx context.Context, partnerID uuid.UUID) ([]*model.APIKey, error)
	UpdateAPIKeyStatus(ctx context.Context, id uuid.UUID, status model.APIKeyStatus, at time.Time) error
	RevokeAPIKeysByPartner(ctx context.Context, partnerID uuid.UUID, at time.Time) (int64, error)
	ExpireAPIKeys(ctx context.Context, now time.Time) (int64, error)
	RecordAPIKeyUsage(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Store combines PartnerStore and APIKeyStore.
type Store interface {
	PartnerStore
	APIKeyStore
	Ping(ctx context.Context) error
}

type PartnerFilters struct {
	Status  *model.PartnerStatus
	Page    int
	PerPage int
}

func (f PartnerFilters) normalize() PartnerFilters {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
	return f
}
