// Package directory serves officer and company reference data to the task
// and escalation engines for routing and authority checks.
package directory

import (
	"context"
	"errors"
	"log/slog"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/sentinel"
)

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Officer loads an officer, active or not.
func (s *Service) Officer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error) {
	o, err := s.store.Officer(ctx, officerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "officer not found").
				WithDetails(officerID.String(), "", "lookup")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load officer")
	}
	return o, nil
}

// ActiveOfficer loads an officer that may act. Deactivated officers are
// rejected as forbidden.
func (s *Service) ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error) {
	o, err := s.Officer(ctx, officerID)
	if err != nil {
		return nil, err
	}
	if !o.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "officer is not active").
			WithDetails(officerID.String(), "inactive", "act")
	}
	return o, nil
}

func (s *Service) Company(ctx context.Context, companyID id.CompanyID) (*domain.Company, error) {
	c, err := s.store.Company(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "company not found").
				WithDetails(companyID.String(), "", "lookup")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company")
	}
	return c, nil
}

// Officers lists officers, optionally for one company.
func (s *Service) Officers(ctx context.Context, companyID *id.CompanyID) ([]*domain.Officer, error) {
	list, err := s.store.ListOfficers(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list officers")
	}
	return list, nil
}

// Qualified checks that the officer may own the task: active, specialised in
// the task type and cleared to at least the task's minimum clearance.
func Qualified(officer *domain.Officer, task *domain.Task) error {
	unqualified := func(msg string) error {
		return dErrors.New(dErrors.CodeUnqualifiedOfficer, msg).
			WithDetails(task.ID.String(), string(task.Status), "assign:"+officer.ID.String())
	}
	if !officer.Active {
		return unqualified("officer is not active")
	}
	if !officer.HasSpecialization(task.Type) {
		return unqualified("officer lacks the " + string(task.Type) + " specialization")
	}
	if officer.Clearance < task.MinClearance {
		return unqualified("officer clearance " + officer.Clearance.String() +
			" is below required " + task.MinClearance.String())
	}
	return nil
}

// Candidates returns the qualified officers for a task, ordered by ID. When
// companyID is set only that company's officers are considered.
func (s *Service) Candidates(ctx context.Context, companyID *id.CompanyID, task *domain.Task) ([]*domain.Officer, error) {
	all, err := s.Officers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Officer
	for _, o := range all {
		if Qualified(o, task) == nil {
			out = append(out, o)
		}
	}
	return out, nil
}

// Seed loads reference data into the store.
func (s *Service) Seed(ctx context.Context, seed *Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	if err := seed.Apply(ctx, s.store); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed directory")
	}
	s.logger.InfoContext(ctx, "directory seeded",
		"companies", len(seed.Companies),
		"officers", len(seed.Officers),
	)
	return nil
}
