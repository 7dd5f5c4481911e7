package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/partner-gateway-service/internal/model"
)

// Memory is an in-process Store used by tests and STORE_DRIVER=memory. Records
// are copied on the way in and out so callers never share state with it.
type Memory struct {
	mu       sync.RWMutex
	partners map[uuid.UUID]*model.Partner
	keys     map[uuid.UUID]*model.APIKey
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		partners: make(map[uuid.UUID]*model.Partner),
		keys:     make(map[uuid.UUID]*model.APIKey),
		now:      time.Now,
	}
}

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreatePartner(_ context.Context, p *model.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.partners {
		switch {
		case existing.Email == p.Email:
			return fmt.Errorf("insert partner: email: %w", ErrDuplicate)
		case existing.PartnerCode == p.PartnerCode:
			return fmt.Errorf("insert partner: partner_code: %w", ErrDuplicate)
		case existing.APIKey == p.APIKey:
			return fmt.Errorf("insert partner: api_key: %w", ErrDuplicate)
		}
	}

	now := m.now().UTC()
	p.ID = uuid.New()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.partners[p.ID] = clonePartner(p)
	return nil
}

func (m *Memory) GetPartnerByID(_ context.Context, id uuid.UUID) (*model.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partners[id]
	if !ok {
		return nil, fmt.Errorf("get partner: %w", ErrNotFound)
	}
	return clonePartner(p), nil
}

func (m *Memory) GetPartnerByEmail(_ context.Context, email string) (*model.Partner, error) {
	return m.findPartner("get partner by email", func(p *model.Partner) bool { return p.Email == email })
}

func (m *Memory) GetPartnerByAPIKey(_ context.Context, apiKey string) (*model.Partner, error) {
	return m.findPartner("get partner by api key", func(p *model.Partner) bool { return p.APIKey == apiKey })
}

func (m *Memory) GetPartnerByVerificationToken(_ context.Context, token string) (*model.Partner, error) {
	return m.findPartner("get partner by verification token", func(p *model.Partner) bool {
		return token != "" && p.EmailVerificationToken == token
	})
}

func (m *Memory) GetPartnerByResetToken(_ context.Context, token string) (*model.Partner, error) {
	return m.findPartner("get partner by reset token", func(p *model.Partner) bool {
		return token != "" && p.ResetToken == token
	})
}

func (m *Memory) ListPartners(_ context.Context, filters PartnerFilters) ([]*model.Partner, int, error) {
	filters = filters.normalize()

	m.mu.RLock()
	var matched []*model.Partner
	for _, p := range m.partners {
		if filters.Status != nil && p.Status != *filters.Status {
			continue
		}
		matched = append(matched, clonePartner(p))
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filters.Page - 1) * filters.PerPage
	if start >= total {
		return []*model.Partner{}, total, nil
	}
	end := start + filters.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Memory) UpdatePartner(_ context.Context, p *model.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.partners[p.ID]
	if !ok {
		return fmt.Errorf("update partner: %w", ErrNotFound)
	}
	for id, other := range m.partners {
		if id != p.ID && other.APIKey == p.APIKey {
			return fmt.Errorf("update partner: api_key: %w", ErrDuplicate)
		}
	}

	updated := clonePartner(p)
	updated.Email = existing.Email
	updated.PartnerCode = existing.PartnerCode
	updated.CreatedAt = existing.CreatedAt
	updated.TotalRequests = existing.TotalRequests
	updated.LastRequestAt = existing.LastRequestAt
	updated.UpdatedAt = m.now().UTC()
	m.partners[p.ID] = updated
	p.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *Memory) RecordPartnerUsage(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partners[id]
	if !ok {
		return fmt.Errorf("record partner usage: %w", ErrNotFound)
	}
	p.TotalRequests++
	t := at
	p.LastRequestAt = &t
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.keys {
		if existing.KeyID == key.KeyID {
			return fmt.Errorf("insert api_key: key_id: %w", ErrDuplicate)
		}
		if existing.KeyHash == key.KeyHash {
			return fmt.Errorf("insert api_key: key_hash: %w", ErrDuplicate)
		}
	}

	key.ID = uuid.New()
	key.CreatedAt = m.now().UTC()
	m.keys[key.ID] = cloneAPIKey(key)
	return nil
}

func (m *Memory) GetAPIKeyByHash(_ context.Context, keyHash string) (*model.APIKey, error) {
	return m.findAPIKey("get api_key by hash", func(k *model.APIKey) bool { return k.KeyHash == keyHash })
}

func (m *Memory) GetAPIKeyByKeyID(_ context.Context, keyID string) (*model.APIKey, error) {
	return m.findAPIKey("get api_key", func(k *model.APIKey) bool { return k.KeyID == keyID })
}

func (m *Memory) ListAPIKeysByPartner(_ context.Context, partnerID uuid.UUID) ([]*model.APIKey, error) {
	m.mu.RLock()
	keys := []*model.APIKey{}
	for _, k := range m.keys {
		if k.PartnerID == partnerID {
			keys = append(keys, cloneAPIKey(k))
		}
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (m *Memory) UpdateAPIKeyStatus(_ context.Context, id uuid.UUID, status model.APIKeyStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return fmt.Errorf("update api_key status: %w", ErrNotFound)
	}
	k.Status = status
	if status == model.KeyStatusRevoked && k.RevokedAt == nil {
		t := at
		k.RevokedAt = &t
	}
	return nil
}

func (m *Memory) RevokeAPIKeysByPartner(_ context.Context, partnerID uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, k := range m.keys {
		if k.PartnerID == partnerID && k.Status == model.KeyStatusActive {
			k.Status = model.KeyStatusRevoked
			t := at
			k.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (m *Memory) ExpireAPIKeys(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, k := range m.keys {
		if k.Status == model.KeyStatusActive && k.ExpiredAt(now) {
			k.Status = model.KeyStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecordAPIKeyUsage(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return fmt.Errorf("record api_key usage: %w", ErrNotFound)
	}
	k.TotalRequests++
	t := at
	k.LastUsedAt = &t
	return nil
}

func (m *Memory) findPartner(op string, match func(*model.Partner) bool) (*model.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.partners {
		if match(p) {
			return clonePartner(p), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
}

func (m *Memory) findAPIKey(op string, match func(*model.APIKey) bool) (*model.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.keys {
		if match(k) {
			return cloneAPIKey(k), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
}

func clonePartner(p *model.Partner) *model.Partner {
	c := *p
	c.WebhookEvents = append([]model.WebhookEvent(nil), p.WebhookEvents...)
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneAPIKey(k *model.APIKey) *model.APIKey {
	c := *k
	c.Scopes = append([]string(nil), k.Scopes...)
	c.AllowedIPs = append([]string(nil), k.AllowedIPs...)
	return &c
}
