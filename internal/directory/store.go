package directory

import (
	"context"
	"slices"
	"sync"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/sentinel"
)

// Store persists directory reference data. Save methods upsert.
type Store interface {
	Officer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
	Company(ctx context.Context, companyID id.CompanyID) (*domain.Company, error)
	// ListOfficers returns officers ordered by ID, optionally limited to one company.
	ListOfficers(ctx context.Context, companyID *id.CompanyID) ([]*domain.Officer, error)
	SaveOfficer(ctx context.Context, officer *domain.Officer) error
	SaveCompany(ctx context.Context, company *domain.Company) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	officers  map[id.OfficerID]*domain.Officer
	companies map[id.CompanyID]*domain.Company
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		officers:  make(map[id.OfficerID]*domain.Officer),
		companies: make(map[id.CompanyID]*domain.Company),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Officer(_ context.Context, officerID id.OfficerID) (*domain.Officer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.officers[officerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneOfficer(o), nil
}

func (s *MemoryStore) Company(_ context.Context, companyID id.CompanyID) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	cp.Categories = slices.Clone(c.Categories)
	return &cp, nil
}

func (s *MemoryStore) ListOfficers(_ context.Context, companyID *id.CompanyID) ([]*domain.Officer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Officer
	for _, o := range s.officers {
		if companyID != nil && o.CompanyID != *companyID {
			continue
		}
		out = append(out, cloneOfficer(o))
	}
	slices.SortFunc(out, func(a, b *domain.Officer) int {
		return compareIDs(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *MemoryStore) SaveOfficer(_ context.Context, officer *domain.Officer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[officer.CompanyID]; !ok {
		return sentinel.ErrReferenceMissing
	}
	s.officers[officer.ID] = cloneOfficer(officer)
	return nil
}

func (s *MemoryStore) SaveCompany(_ context.Context, company *domain.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *company
	cp.Categories = slices.Clone(company.Categories)
	s.companies[company.ID] = &cp
	return nil
}

func cloneOfficer(o *domain.Officer) *domain.Officer {
	cp := *o
	cp.Specializations = slices.Clone(o.Specializations)
	return &cp
}

func compareIDs(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
