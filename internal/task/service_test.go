package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/testutil/fixture"
)

type reevaluations struct {
	mu    sync.Mutex
	calls []id.ApplicationID
}

func (r *reevaluations) Reevaluate(_ context.Context, appID id.ApplicationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, appID)
	return nil
}

func (r *reevaluations) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type ServiceSuite struct {
	suite.Suite
	env     *fixture.Env
	reeval  *reevaluations
	service *Service
	app     *domain.Application
	tasks   []*domain.Task
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.env = fixture.New(s.T())
	s.reeval = &reevaluations{}
	s.service = NewService(s.env.Runner, s.env.Directory,
		WithClock(s.env.Clock),
		WithMetrics(s.env.Metrics),
		WithReevaluator(s.reeval),
	)
	s.app, s.tasks = s.seed(domain.TierComprehensive, domain.CategoryPersonnel)
}

func (s *ServiceSuite) seed(tier domain.VettingTier, category domain.SubjectCategory) (*domain.Application, []*domain.Task) {
	app := s.env.NewApplication(s.T(), tier, category)
	tasks := Decompose(app.ID, tier, category, app.Priority, app.EstimatedCompletionAt, app.CreatedAt)
	s.env.Persist(s.T(), app, tasks...)
	return app, tasks
}

func (s *ServiceSuite) taskOf(t domain.TaskType) *domain.Task {
	for _, task := range s.tasks {
		if task.Type == t {
			return task
		}
	}
	s.FailNow("no task of type " + string(t))
	return nil
}

func (s *ServiceSuite) assign(taskType domain.TaskType, officer string) *domain.Task {
	got, err := s.service.Assign(s.env.Ctx, s.taskOf(taskType).ID, s.env.OfficerID(officer), s.env.Actor(fixture.Senior))
	s.Require().NoError(err)
	return got
}

func (s *ServiceSuite) TestAssign() {
	s.Run("starts the task and records ownership", func() {
		got := s.assign(domain.TaskIdentity, fixture.Junior)
		s.Equal(domain.TaskInProgress, got.Status)
		s.True(got.IsOwnedBy(s.env.OfficerID(fixture.Junior)))
		s.NotNil(got.StartedAt)
		s.Equal(int64(2), got.Version)
		s.Equal([]string{audit.ActionTaskCreated, audit.ActionTaskAssigned}, s.env.Actions(s.T(), got.ID.String()))
		s.Equal(1, s.reeval.count())
		s.Len(s.env.Events.OfType(audit.ActionTaskAssigned), 1)
	})

	s.Run("assigning the same owner again is a no-op", func() {
		got := s.assign(domain.TaskIdentity, fixture.Junior)
		s.Equal(int64(2), got.Version)
		s.Len(s.env.Entries(s.T(), got.ID.String()), 2)
	})

	s.Run("a different officer is rejected while owned", func() {
		_, err := s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskIdentity).ID, s.env.OfficerID(fixture.Senior), s.env.Actor(fixture.Senior))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAssigned))
	})

	s.Run("missing specialization is unqualified", func() {
		_, err := s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskInterview).ID, s.env.OfficerID(fixture.Analyst), s.env.Actor(fixture.Senior))
		s.True(dErrors.HasCode(err, dErrors.CodeUnqualifiedOfficer))
	})

	s.Run("insufficient clearance is unqualified", func() {
		_, err := s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskReference).ID, s.env.OfficerID(fixture.Analyst), s.env.Actor(fixture.Senior))
		s.True(dErrors.HasCode(err, dErrors.CodeUnqualifiedOfficer))
		s.Equal(domain.TaskPending, s.env.Task(s.T(), s.taskOf(domain.TaskReference).ID).Status)
	})

	s.Run("inactive officers cannot take work", func() {
		_, err := s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskReference).ID, s.env.OfficerID(fixture.Inactive), s.env.Actor(fixture.Senior))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("applicants cannot assign", func() {
		_, err := s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskReference).ID, s.env.OfficerID(fixture.Junior),
			domain.ApplicantActor("subject@example.com"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown task is not found", func() {
		_, err := s.service.Assign(s.env.Ctx, id.NewTaskID(), s.env.OfficerID(fixture.Junior), s.env.Actor(fixture.Senior))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAssignClosedTask() {
	s.assign(domain.TaskBackground, fixture.Junior)
	_, err := s.service.RecordResult(s.env.Ctx, s.taskOf(domain.TaskBackground).ID, s.env.OfficerID(fixture.Junior), domain.ResultFail, nil)
	s.Require().NoError(err)

	_, err = s.service.Assign(s.env.Ctx, s.taskOf(domain.TaskBackground).ID, s.env.OfficerID(fixture.Senior), s.env.Actor(fixture.Senior))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestConcurrentAssignHasOneWinner() {
	taskID := s.taskOf(domain.TaskIdentity).ID
	contenders := []string{fixture.Junior, fixture.Senior}

	var wg sync.WaitGroup
	errs := make([]error, len(contenders))
	for i, name := range contenders {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = s.service.Assign(s.env.Ctx, taskID, s.env.OfficerID(name), s.env.Actor(name))
		}(i, name)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAssigned) || dErrors.HasCode(err, dErrors.CodeConcurrentModification),
			"unexpected error: %v", err)
	}
	s.Equal(1, successes)
	s.Len(s.env.Entries(s.T(), taskID.String()), 2)
}

func (s *ServiceSuite) TestRecordResult() {
	identity := s.taskOf(domain.TaskIdentity)
	s.assign(domain.TaskIdentity, fixture.Junior)

	s.Run("only the owner may record", func() {
		_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Senior), domain.ResultPass, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotOwner))
	})

	s.Run("pass needs every required document verified", func() {
		s.env.PendingDocuments(s.T(), identity)
		_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeDocumentsIncomplete))
		s.Equal(domain.TaskInProgress, s.env.Task(s.T(), identity.ID).Status)
	})

	s.Run("findings must be JSON", func() {
		_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass,
			json.RawMessage(`{not json`))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown result is a validation error", func() {
		_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), "maybe", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("pass completes the task once documents are verified", func() {
		s.env.VerifyDocuments(s.T(), identity)
		got, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass,
			json.RawMessage(`{"match":"exact"}`))
		s.Require().NoError(err)
		s.Equal(domain.TaskCompleted, got.Status)
		s.Equal(domain.ResultPass, *got.Result)
		s.NotNil(got.CompletedAt)
		s.JSONEq(`{"match":"exact"}`, string(got.Findings))
	})

	s.Run("a closed task accepts no further result", func() {
		_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultFail, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestLapsedDocumentsDoNotSatisfyPass() {
	identity := s.taskOf(domain.TaskIdentity)
	s.assign(domain.TaskIdentity, fixture.Junior)
	s.env.ExpiringDocuments(s.T(), identity, s.env.Clock.Now().Add(time.Hour))

	s.env.Clock.Advance(time.Hour)
	_, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeDocumentsIncomplete), "got %v", err)
	s.Equal(domain.TaskInProgress, s.env.Task(s.T(), identity.ID).Status)
}

func (s *ServiceSuite) TestFailNeedsNoDocuments() {
	s.assign(domain.TaskBackground, fixture.Junior)
	got, err := s.service.RecordResult(s.env.Ctx, s.taskOf(domain.TaskBackground).ID, s.env.OfficerID(fixture.Junior), domain.ResultFail,
		json.RawMessage(`{"record":"found"}`))
	s.Require().NoError(err)
	s.Equal(domain.TaskFailed, got.Status)
}

func (s *ServiceSuite) TestSecondaryOfficerIsAdvisory() {
	interview := s.taskOf(domain.TaskInterview)
	s.assign(domain.TaskInterview, fixture.Junior)
	// The secondary reviewer on the application still cannot close a task
	// owned by someone else.
	_, err := s.service.RecordResult(s.env.Ctx, interview.ID, s.env.OfficerID(fixture.Senior), domain.ResultPass, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotOwner))

	got, err := s.service.RecordResult(s.env.Ctx, interview.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass, nil)
	s.Require().NoError(err)
	s.Equal(domain.TaskCompleted, got.Status)
}

func (s *ServiceSuite) TestSkip() {
	reference := s.taskOf(domain.TaskReference)

	s.Run("low access officers cannot skip", func() {
		_, err := s.service.Skip(s.env.Ctx, reference.ID, s.env.Actor(fixture.Junior), "not needed")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("a reason is required", func() {
		_, err := s.service.Skip(s.env.Ctx, reference.ID, s.env.Actor(fixture.Senior), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("elevated officers skip with a logged reason", func() {
		got, err := s.service.Skip(s.env.Ctx, reference.ID, s.env.Actor(fixture.Senior), "references waived by policy")
		s.Require().NoError(err)
		s.Equal(domain.TaskSkipped, got.Status)
		entries := s.env.Entries(s.T(), reference.ID.String())
		last := entries[len(entries)-1]
		s.Equal(audit.ActionTaskSkipped, last.Action)
		s.Equal("references waived by policy", last.Reason)
		s.Equal(domain.ActorOfficer, last.ActorType)
	})

	s.Run("the system actor may skip", func() {
		got, err := s.service.Skip(s.env.Ctx, s.taskOf(domain.TaskInterview).ID, domain.SystemActor(), "interview not required")
		s.Require().NoError(err)
		s.Equal(domain.TaskSkipped, got.Status)
	})
}

func (s *ServiceSuite) TestReassign() {
	identity := s.taskOf(domain.TaskIdentity)
	s.assign(domain.TaskIdentity, fixture.Junior)

	s.Run("requires a reason", func() {
		_, err := s.service.Reassign(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Senior), s.env.Actor(fixture.Junior), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("other low access officers cannot take over", func() {
		_, err := s.service.Reassign(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Analyst), s.env.Actor(fixture.Analyst), "mine now")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("the owner hands over, releasing first", func() {
		got, err := s.service.Reassign(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Senior), s.env.Actor(fixture.Junior), "leave")
		s.Require().NoError(err)
		s.True(got.IsOwnedBy(s.env.OfficerID(fixture.Senior)))
		s.Equal(domain.TaskInProgress, got.Status)
		s.Equal([]string{
			audit.ActionTaskCreated,
			audit.ActionTaskAssigned,
			audit.ActionTaskReleased,
			audit.ActionTaskAssigned,
		}, s.env.Actions(s.T(), identity.ID.String()))
	})
}

func (s *ServiceSuite) TestAutoAssignPicksLeastLoaded() {
	// Junior, Senior and Chief all qualify for identity work at secret clearance.
	s.assign(domain.TaskBackground, fixture.Junior)
	s.assign(domain.TaskReference, fixture.Chief)

	got, err := s.service.AutoAssign(s.env.Ctx, s.taskOf(domain.TaskIdentity).ID, domain.SystemActor())
	s.Require().NoError(err)
	s.True(got.IsOwnedBy(s.env.OfficerID(fixture.Senior)))

	_, err = s.service.AutoAssign(s.env.Ctx, s.taskOf(domain.TaskIdentity).ID, domain.SystemActor())
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAssigned))
}

func (s *ServiceSuite) TestAutoAssignRespectsSpecialization() {
	app, tasks := s.seed(domain.TierExecutive, domain.CategoryServiceProvider)
	s.Require().NotNil(app)
	var skills *domain.Task
	for _, t := range tasks {
		if t.Type == domain.TaskSkillsAssessment {
			skills = t
		}
	}
	s.Require().NotNil(skills)
	// Only the chief holds the skills specialization at top secret clearance.
	got, err := s.service.AutoAssign(s.env.Ctx, skills.ID, domain.SystemActor())
	s.Require().NoError(err)
	s.True(got.IsOwnedBy(s.env.OfficerID(fixture.Chief)))

	_, tasks = s.seed(domain.TierExecutive, domain.CategoryServiceProvider)
	for _, t := range tasks {
		if t.Type == domain.TaskSkillsAssessment {
			skills = t
		}
	}
	_, err = s.service.Assign(s.env.Ctx, skills.ID, s.env.OfficerID(fixture.Senior), domain.SystemActor())
	s.True(dErrors.HasCode(err, dErrors.CodeUnqualifiedOfficer))
}

func (s *ServiceSuite) TestAutoAssignWithoutCandidates() {
	app := s.env.NewApplication(s.T(), domain.TierBasic, domain.CategoryClient)
	elsewhere := id.NewCompanyID()
	app.CompanyID = &elsewhere
	tasks := Decompose(app.ID, app.VettingTier, app.Category, app.Priority, app.EstimatedCompletionAt, app.CreatedAt)
	s.env.Persist(s.T(), app, tasks...)

	_, err := s.service.AutoAssign(s.env.Ctx, tasks[0].ID, domain.SystemActor())
	s.True(dErrors.HasCode(err, dErrors.CodeUnqualifiedOfficer))
	s.Nil(s.env.Task(s.T(), tasks[0].ID).AssignedOfficerID)
}

func (s *ServiceSuite) TestHoldBlocksOwner() {
	identity := s.taskOf(domain.TaskIdentity)
	s.assign(domain.TaskIdentity, fixture.Junior)
	s.env.VerifyDocuments(s.T(), identity)
	escID := id.NewEscalationID()
	actor := s.env.Actor(fixture.Junior)

	err := s.env.Runner.Run(s.env.Ctx, "test.hold", nil, func(ctx context.Context, tx *workflow.Tx) error {
		t, err := tx.Tasks().Get(ctx, identity.ID)
		if err != nil {
			return err
		}
		return s.service.HoldTx(ctx, tx, t, escID, actor, "unclear match", s.env.Clock.Now())
	})
	s.Require().NoError(err)

	_, err = s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.service.Skip(s.env.Ctx, identity.ID, domain.SystemActor(), "skip while held")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	err = s.env.Runner.Run(s.env.Ctx, "test.release", nil, func(ctx context.Context, tx *workflow.Tx) error {
		t, err := tx.Tasks().Get(ctx, identity.ID)
		if err != nil {
			return err
		}
		return s.service.ReleaseHoldTx(ctx, tx, t, escID, actor, "cleared", s.env.Clock.Now())
	})
	s.Require().NoError(err)

	got, err := s.service.RecordResult(s.env.Ctx, identity.ID, s.env.OfficerID(fixture.Junior), domain.ResultPass, nil)
	s.Require().NoError(err)
	s.Equal(domain.TaskCompleted, got.Status)
}

func (s *ServiceSuite) TestReissueReplacesFailedTask() {
	background := s.taskOf(domain.TaskBackground)
	s.assign(domain.TaskBackground, fixture.Junior)
	_, err := s.service.RecordResult(s.env.Ctx, background.ID, s.env.OfficerID(fixture.Junior), domain.ResultFail, nil)
	s.Require().NoError(err)

	var next *domain.Task
	err = s.env.Runner.Run(s.env.Ctx, "test.reissue", nil, func(ctx context.Context, tx *workflow.Tx) error {
		t, err := tx.Tasks().Get(ctx, background.ID)
		if err != nil {
			return err
		}
		next, err = s.service.ReissueTx(ctx, tx, t, s.env.Actor(fixture.Chief), "records were mismatched", s.env.Clock.Now())
		return err
	})
	s.Require().NoError(err)

	old := s.env.Task(s.T(), background.ID)
	s.Require().NotNil(old.SupersededBy)
	s.Equal(next.ID, *old.SupersededBy)
	s.False(old.Counts())

	fresh := s.env.Task(s.T(), next.ID)
	s.Equal(domain.TaskPending, fresh.Status)
	s.True(fresh.Counts())
	s.Equal(background.RequiredDocuments, fresh.RequiredDocuments)

	tasks, err := s.service.ListByApplication(s.env.Ctx, s.app.ID)
	s.Require().NoError(err)
	s.Len(tasks, len(s.tasks)+1)
}
