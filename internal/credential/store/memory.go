package store

import (
	"context"
	"sort"
	"sync"

	"certledger/internal/credential/models"
	"certledger/pkg/platform/sentinel"
)

// InMemory is a Store for tests and local runs. Records are copied in and out.
type InMemory struct {
	mu      sync.RWMutex
	byCode  map[string]*models.Credential
	byAsset map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		byCode:  make(map[string]*models.Credential),
		byAsset: make(map[string]string),
	}
}

func (s *InMemory) Create(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[c.Code]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if c.AssetID != "" {
		if _, ok := s.byAsset[c.AssetID]; ok {
			return sentinel.ErrAlreadyUsed
		}
		s.byAsset[c.AssetID] = c.Code
	}
	cp := *c
	s.byCode[c.Code] = &cp
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, code string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindByAssetID(_ context.Context, assetID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.byAsset[assetID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byCode[code]
	return &cp, nil
}

// List returns records newest first.
func (s *InMemory) List(_ context.Context, filter ListFilter) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.Credential, 0, len(s.byCode))
	for _, c := range s.byCode {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Code < all[j].Code
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if filter.Offset >= len(all) {
		return []*models.Credential{}, nil
	}
	all = all[filter.Offset:]
	if n := filter.limit(); len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *InMemory) Execute(_ context.Context, code string, validate func(*models.Credential) error, mutate func(*models.Credential)) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *current
	if err := validate(&c); err != nil {
		return nil, err
	}
	mutate(&c)

	if c.AssetID != current.AssetID && c.AssetID != "" {
		if owner, taken := s.byAsset[c.AssetID]; taken && owner != code {
			return nil, sentinel.ErrAlreadyUsed
		}
		delete(s.byAsset, current.AssetID)
		s.byAsset[c.AssetID] = code
	}
	s.byCode[code] = &c
	out := c
	return &out, nil
}
