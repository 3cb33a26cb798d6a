package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

type ApplicationSuite struct {
	suite.Suite
	now time.Time
}

func TestApplicationSuite(t *testing.T) {
	suite.Run(t, new(ApplicationSuite))
}

func (s *ApplicationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ApplicationSuite) newApp() *domain.Application {
	app, err := domain.NewApplication(id.NewApplicationID(), "a@example.com", domain.CategoryClient, "standard",
		domain.TierBasic, domain.PriorityStandard, nil, []byte(`{}`), s.now.Add(72*time.Hour), s.now)
	s.Require().NoError(err)
	return app
}

func (s *ApplicationSuite) TestConstruction() {
	s.Run("starts submitted at version 1", func() {
		app := s.newApp()
		s.Equal(domain.ApplicationSubmitted, app.Status)
		s.Equal(int64(1), app.Version)
		s.Nil(app.CompletedAt)
	})

	s.Run("rejects empty email", func() {
		_, err := domain.NewApplication(id.NewApplicationID(), "", domain.CategoryClient, "standard",
			domain.TierBasic, domain.PriorityStandard, nil, nil, s.now, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects unknown tier", func() {
		_, err := domain.NewApplication(id.NewApplicationID(), "a@example.com", domain.CategoryClient, "standard",
			domain.VettingTier("platinum"), domain.PriorityStandard, nil, nil, s.now, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ApplicationSuite) TestStateMachine() {
	s.Run("path from submitted to approved passes through in_review", func() {
		path := domain.ApplicationSubmitted.PathTo(domain.ApplicationApproved)
		s.Equal([]domain.ApplicationStatus{domain.ApplicationInReview, domain.ApplicationApproved}, path)
	})

	s.Run("path from additional info to rejected passes through in_review", func() {
		path := domain.ApplicationAdditionalInfoRequired.PathTo(domain.ApplicationRejected)
		s.Equal([]domain.ApplicationStatus{domain.ApplicationInReview, domain.ApplicationRejected}, path)
	})

	s.Run("terminal statuses have no path", func() {
		s.Nil(domain.ApplicationApproved.PathTo(domain.ApplicationInReview))
		s.Nil(domain.ApplicationRejected.PathTo(domain.ApplicationSuspended))
	})

	s.Run("suspended resumes only to in_review", func() {
		s.True(domain.ApplicationSuspended.CanTransitionTo(domain.ApplicationInReview))
		s.False(domain.ApplicationSuspended.CanTransitionTo(domain.ApplicationApproved))
		s.False(domain.ApplicationSuspended.CanTransitionTo(domain.ApplicationSubmitted))
	})

	s.Run("terminal transition stamps completion", func() {
		app := s.newApp()
		s.Require().NoError(app.CanTransition(domain.ApplicationInReview))
		app.ApplyTransition(domain.ApplicationInReview, s.now)
		s.Require().NoError(app.CanTransition(domain.ApplicationApproved))
		app.ApplyTransition(domain.ApplicationApproved, s.now.Add(time.Hour))
		s.Require().NotNil(app.CompletedAt)
		s.Equal(s.now.Add(time.Hour), *app.CompletedAt)

		err := app.CanTransition(domain.ApplicationSuspended)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("skipping in_review is rejected", func() {
		app := s.newApp()
		err := app.CanTransition(domain.ApplicationApproved)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(app.ID.String(), de.EntityID)
		s.Equal(string(domain.ApplicationSubmitted), de.State)
	})
}

func (s *ApplicationSuite) TestResumeAndReviewers() {
	s.Run("archived applications cannot resume", func() {
		app := s.newApp()
		app.ApplyTransition(domain.ApplicationSuspended, s.now)
		app.Archived = true
		s.True(dErrors.HasCode(app.CanResume(), dErrors.CodeInvalidState))
	})

	s.Run("primary and secondary must differ", func() {
		app := s.newApp()
		officer := id.NewOfficerID()
		err := app.CanAssignReviewers(officer, &officer)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("secondary officer is recognised", func() {
		app := s.newApp()
		primary, secondary := id.NewOfficerID(), id.NewOfficerID()
		app.ApplyReviewers(primary, &secondary, s.now)
		s.True(app.IsSecondaryOfficer(secondary))
		s.False(app.IsSecondaryOfficer(primary))
	})
}
