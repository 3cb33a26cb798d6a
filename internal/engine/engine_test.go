package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"vetting/internal/application"
	"vetting/internal/audit"
	"vetting/internal/comment"
	"vetting/internal/document"
	"vetting/internal/domain"
	"vetting/internal/escalation"
	"vetting/internal/storage/memory"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/testutil/fixture"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type EngineSuite struct {
	suite.Suite
	env    *fixture.Env
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.build()
}

func (s *EngineSuite) build(opts ...memory.Option) {
	s.env = fixture.New(s.T(), opts...)
	s.engine = New(Deps{
		Backend:   s.env.Store,
		Directory: s.env.Directory,
		Clock:     s.env.Clock,
		Locker:    s.env.Locker,
		Publisher: s.env.Events,
		Metrics:   s.env.Metrics,
	}, Settings{})
}

func (s *EngineSuite) submit() *domain.Application {
	companyID := s.env.Company.ID
	app, err := s.engine.Applications.Submit(s.env.Ctx, application.SubmitRequest{
		ApplicantEmail: "subject@example.com",
		Category:       domain.CategoryClient,
		SubType:        "standard",
		CompanyID:      &companyID,
		Payload:        json.RawMessage(`{"full_name":"Ada Lovelace","date_of_birth":"1990-01-01"}`),
	})
	s.Require().NoError(err)
	return app
}

// provide uploads and verifies every document the task requires.
func (s *EngineSuite) provide(t *domain.Task) {
	applicant := domain.ApplicantActor("subject@example.com")
	for _, docType := range t.RequiredDocuments {
		taskID := t.ID
		doc, err := s.engine.Documents.Upload(s.env.Ctx, document.UploadRequest{
			ApplicationID: t.ApplicationID,
			TaskID:        &taskID,
			Type:          docType,
			Filename:      string(docType) + ".pdf",
			SizeBytes:     4096,
			ContentHash:   testHash,
		}, applicant)
		s.Require().NoError(err)
		_, err = s.engine.Documents.Verify(s.env.Ctx, doc.ID, s.env.OfficerID(fixture.Junior), true, "")
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) tasks(app *domain.Application) []*domain.Task {
	tasks, err := s.engine.Tasks.ListByApplication(s.env.Ctx, app.ID)
	s.Require().NoError(err)
	return tasks
}

func (s *EngineSuite) status(app *domain.Application) domain.ApplicationStatus {
	got, err := s.engine.Applications.Get(s.env.Ctx, app.ID)
	s.Require().NoError(err)
	return got.Status
}

func (s *EngineSuite) TestApplicationRunsToApproval() {
	app := s.submit()
	officer := s.env.OfficerID(fixture.Junior)
	actor := s.env.Actor(fixture.Junior)

	for _, t := range s.tasks(app) {
		s.provide(t)
		_, err := s.engine.Tasks.Assign(s.env.Ctx, t.ID, officer, actor)
		s.Require().NoError(err)
		s.Equal(domain.ApplicationInReview, s.status(app))
	}

	_, err := s.engine.Comments.Add(s.env.Ctx, comment.AddRequest{
		ApplicationID: app.ID,
		Text:          "references confirmed by phone",
	}, actor)
	s.Require().NoError(err)

	for _, t := range s.tasks(app) {
		_, err := s.engine.Tasks.RecordResult(s.env.Ctx, t.ID, officer, domain.ResultPass, json.RawMessage(`{"notes":"ok"}`))
		s.Require().NoError(err)
	}
	s.Equal(domain.ApplicationApproved, s.status(app))

	s.Equal([]string{
		audit.ActionApplicationSubmitted,
		audit.ActionApplicationTransition,
		audit.ActionApplicationTransition,
	}, s.env.Actions(s.T(), app.ID.String()))
	s.NoError(s.engine.Audit.Verify(s.env.Ctx, app.ID.String()))

	var replayed domain.Application
	s.Require().NoError(s.engine.Audit.Replay(s.env.Ctx, app.ID.String(), &replayed))
	current, err := s.engine.Applications.Get(s.env.Ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(current.Status, replayed.Status)
	s.Equal(current.Version, replayed.Version)
	s.NotNil(replayed.CompletedAt)

	var statuses []string
	for _, evt := range s.env.Events.OfType(audit.ActionApplicationTransition) {
		statuses = append(statuses, evt.Status)
	}
	s.Equal([]string{"in_review", "approved"}, statuses)
}

func (s *EngineSuite) TestEscalatedFailureIsOverturned() {
	app := s.submit()
	junior := s.env.OfficerID(fixture.Junior)
	tasks := s.tasks(app)
	identity := tasks[0]

	for _, t := range tasks {
		s.provide(t)
		_, err := s.engine.Tasks.Assign(s.env.Ctx, t.ID, junior, s.env.Actor(fixture.Junior))
		s.Require().NoError(err)
	}
	_, err := s.engine.Tasks.RecordResult(s.env.Ctx, identity.ID, junior, domain.ResultFail, nil)
	s.Require().NoError(err)

	esc, err := s.engine.Escalations.Escalate(s.env.Ctx, escalation.Request{
		SourceType:    domain.SourceTask,
		SourceID:      identity.ID.String(),
		FromOfficerID: junior,
		ToOfficerID:   s.env.OfficerID(fixture.Senior),
		Reason:        "document looks genuine on second look",
		Urgency:       domain.UrgencyHigh,
	})
	s.Require().NoError(err)

	_, err = s.engine.Tasks.RecordResult(s.env.Ctx, tasks[1].ID, junior, domain.ResultPass, nil)
	s.Require().NoError(err)
	s.Equal(domain.ApplicationInReview, s.status(app), "pending escalation holds the rejection")

	_, err = s.engine.Escalations.Resolve(s.env.Ctx, esc.ID, s.env.OfficerID(fixture.Senior), escalation.Resolution{
		Outcome: domain.OutcomeReissue,
		Text:    "redo the identity check",
	})
	s.Require().NoError(err)

	var replacement *domain.Task
	for _, t := range s.tasks(app) {
		if t.Type == domain.TaskIdentity && t.SupersededBy == nil {
			replacement = t
		}
	}
	s.Require().NotNil(replacement)
	s.NotEqual(identity.ID, replacement.ID)

	s.provide(replacement)
	_, err = s.engine.Tasks.Assign(s.env.Ctx, replacement.ID, junior, s.env.Actor(fixture.Junior))
	s.Require().NoError(err)
	_, err = s.engine.Tasks.RecordResult(s.env.Ctx, replacement.ID, junior, domain.ResultPass, nil)
	s.Require().NoError(err)

	s.Equal(domain.ApplicationApproved, s.status(app))
}

func (s *EngineSuite) TestConcurrentAssignHasOneWinner() {
	app := s.submit()
	t := s.tasks(app)[0]

	officers := []string{fixture.Junior, fixture.Analyst, fixture.Senior, fixture.Chief}
	errs := make([]error, len(officers))
	var wg sync.WaitGroup
	for i, name := range officers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.engine.Tasks.Assign(s.env.Ctx, t.ID, s.env.OfficerID(name), s.env.Actor(name))
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAssigned) || dErrors.HasCode(err, dErrors.CodeConcurrentModification),
			"unexpected error %v", err)
	}
	s.Equal(1, winners)

	actions := s.env.Actions(s.T(), t.ID.String())
	s.Equal([]string{audit.ActionTaskCreated, audit.ActionTaskAssigned}, actions)
}

func (s *EngineSuite) TestAuditFailureRollsBackMutation() {
	s.build(memory.WithAuditHook(func(e *audit.Entry) error {
		if e.Action == audit.ActionTaskAssigned {
			return errors.New("disk full")
		}
		return nil
	}))
	app := s.submit()
	t := s.tasks(app)[0]

	_, err := s.engine.Tasks.Assign(s.env.Ctx, t.ID, s.env.OfficerID(fixture.Junior), s.env.Actor(fixture.Junior))
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrityFailure), "got %v", err)

	got, err := s.engine.Tasks.Get(s.env.Ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(domain.TaskPending, got.Status)
	s.Nil(got.AssignedOfficerID)
	s.Equal(domain.ApplicationSubmitted, s.status(app))
	s.Empty(s.env.Events.OfType(audit.ActionTaskAssigned))
}

func (s *EngineSuite) TestAuditLogPagesInCommitOrder() {
	s.submit()
	s.submit()

	first, err := s.engine.Audit.ReadLog(s.env.Ctx, 0, 3)
	s.Require().NoError(err)
	s.Require().Len(first, 3)
	rest, err := s.engine.Audit.ReadLog(s.env.Ctx, first[2].Seq, 0)
	s.Require().NoError(err)

	all := append(first, rest...)
	for i := 1; i < len(all); i++ {
		s.Less(all[i-1].Seq, all[i].Seq)
	}
	s.Len(all, 6, "two submissions with two tasks each")
}
