package document

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"vetting/internal/application"
	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/task"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/testutil/fixture"
)

// sha256("test")
const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

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
	s.app = s.env.NewApplication(s.T(), domain.TierBasic, domain.CategoryClient)
	s.tasks = task.Decompose(s.app.ID, s.app.VettingTier, s.app.Category, s.app.Priority, s.app.EstimatedCompletionAt, s.app.CreatedAt)
	s.env.Persist(s.T(), s.app, s.tasks...)
}

func (s *ServiceSuite) request() UploadRequest {
	taskID := s.tasks[0].ID
	return UploadRequest{
		ApplicationID: s.app.ID,
		TaskID:        &taskID,
		Type:          domain.DocGovernmentID,
		Filename:      "passport.pdf",
		SizeBytes:     2048,
		ContentHash:   strings.ToUpper(testHash),
	}
}

func (s *ServiceSuite) applicant() domain.Actor {
	return domain.ApplicantActor(s.app.ApplicantEmail)
}

func (s *ServiceSuite) upload(req UploadRequest) *domain.Document {
	doc, err := s.service.Upload(s.env.Ctx, req, s.applicant())
	s.Require().NoError(err)
	return doc
}

func (s *ServiceSuite) TestUpload() {
	doc := s.upload(s.request())

	s.Equal(domain.DocumentPending, doc.Status)
	s.Equal(domain.UploaderApplicant, doc.UploaderRole)
	s.Equal(testHash, doc.ContentHash, "hash is normalized to lower case")

	entries := s.env.Entries(s.T(), doc.ID.String())
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionDocumentUploaded, entries[0].Action)
	s.Equal(domain.ActorApplicant, entries[0].ActorType)
	s.Equal(s.tasks[0].ID.String(), entries[0].Metadata["task_id"])

	s.Equal(1, s.reeval.count())
	s.Equal(float64(1), testutil.ToFloat64(s.env.Metrics.DocumentsUploaded))

	docs, err := s.service.ListByApplication(s.env.Ctx, s.app.ID)
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func (s *ServiceSuite) TestUploadValidation() {
	tests := []struct {
		name   string
		mutate func(r *UploadRequest)
	}{
		{name: "type", mutate: func(r *UploadRequest) { r.Type = "selfie" }},
		{name: "filename", mutate: func(r *UploadRequest) { r.Filename = " " }},
		{name: "path in filename", mutate: func(r *UploadRequest) { r.Filename = "../etc/passwd" }},
		{name: "windows path", mutate: func(r *UploadRequest) { r.Filename = `C:\scan.pdf` }},
		{name: "empty file", mutate: func(r *UploadRequest) { r.SizeBytes = 0 }},
		{name: "too large", mutate: func(r *UploadRequest) { r.SizeBytes = MaxSizeBytes + 1 }},
		{name: "hash", mutate: func(r *UploadRequest) { r.ContentHash = "abc123" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := s.request()
			tt.mutate(&req)
			_, err := s.service.Upload(s.env.Ctx, req, s.applicant())
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	s.Equal(0, s.reeval.count())
}

func (s *ServiceSuite) TestUploadChecksOwnership() {
	s.Run("task of another application", func() {
		other := s.env.NewApplication(s.T(), domain.TierBasic, domain.CategoryClient)
		otherTasks := task.Decompose(other.ID, other.VettingTier, other.Category, other.Priority, other.EstimatedCompletionAt, other.CreatedAt)
		s.env.Persist(s.T(), other, otherTasks...)

		req := s.request()
		req.TaskID = &otherTasks[0].ID
		_, err := s.service.Upload(s.env.Ctx, req, s.applicant())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("another applicant", func() {
		_, err := s.service.Upload(s.env.Ctx, s.request(), domain.ApplicantActor("someone@example.com"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown application", func() {
		req := s.request()
		req.ApplicationID = id.NewApplicationID()
		req.TaskID = nil
		_, err := s.service.Upload(s.env.Ctx, req, s.applicant())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("officers may upload on behalf of the subject", func() {
		doc, err := s.service.Upload(s.env.Ctx, s.request(), s.env.Actor(fixture.Junior))
		s.Require().NoError(err)
		s.Equal(domain.UploaderOfficer, doc.UploaderRole)
	})
}

func (s *ServiceSuite) TestVerify() {
	doc := s.upload(s.request())
	officer := s.env.OfficerID(fixture.Junior)

	_, err := s.service.Verify(s.env.Ctx, doc.ID, s.env.OfficerID(fixture.Inactive), true, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.Verify(s.env.Ctx, doc.ID, officer, false, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "rejection needs notes")

	got, err := s.service.Verify(s.env.Ctx, doc.ID, officer, true, "matches registry")
	s.Require().NoError(err)
	s.Equal(domain.DocumentVerified, got.Status)
	s.Equal(officer, *got.VerifiedBy)
	s.Equal(fixture.Start, *got.VerifiedAt)

	_, err = s.service.Verify(s.env.Ctx, doc.ID, officer, false, "changed my mind")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))

	s.Equal([]string{audit.ActionDocumentUploaded, audit.ActionDocumentVerified}, s.env.Actions(s.T(), doc.ID.String()))
}

func (s *ServiceSuite) TestReject() {
	doc := s.upload(s.request())
	got, err := s.service.Verify(s.env.Ctx, doc.ID, s.env.OfficerID(fixture.Junior), false, "photo illegible")
	s.Require().NoError(err)
	s.Equal(domain.DocumentRejected, got.Status)
	s.Equal("photo illegible", got.Notes)

	entries := s.env.Entries(s.T(), doc.ID.String())
	s.Equal(audit.ActionDocumentRejected, entries[1].Action)
	s.Equal("photo illegible", entries[1].Reason)
}

func (s *ServiceSuite) TestUploadLeasesTheApplication() {
	release, err := s.env.Locker.Acquire(s.env.Ctx, application.LockKey(s.app.ID), time.Minute)
	s.Require().NoError(err)
	_, err = s.service.Upload(s.env.Ctx, s.request(), s.applicant())
	s.True(dErrors.HasCode(err, dErrors.CodeConcurrentModification), "got %v", err)
	s.Equal(0, s.reeval.count())

	s.Require().NoError(release(s.env.Ctx))
	s.upload(s.request())
}

func (s *ServiceSuite) TestUploadRejectsPastExpiry() {
	req := s.request()
	expired := s.env.Clock.Now()
	req.ExpiresAt = &expired
	_, err := s.service.Upload(s.env.Ctx, req, s.applicant())
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

func (s *ServiceSuite) TestLapsedDocumentCannotBeApproved() {
	req := s.request()
	expires := s.env.Clock.Now().Add(time.Hour)
	req.ExpiresAt = &expires
	doc := s.upload(req)
	officer := s.env.OfficerID(fixture.Junior)

	s.env.Clock.Advance(time.Hour)
	_, err := s.service.Verify(s.env.Ctx, doc.ID, officer, true, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "got %v", err)

	got, err := s.service.Verify(s.env.Ctx, doc.ID, officer, false, "expired before review")
	s.Require().NoError(err)
	s.Equal(domain.DocumentRejected, got.Status)
}

func (s *ServiceSuite) TestMatchesContent() {
	doc := s.upload(s.request())

	ok, err := s.service.MatchesContent(s.env.Ctx, doc.ID, []byte("test"))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.MatchesContent(s.env.Ctx, doc.ID, []byte("tampered"))
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.MatchesContent(s.env.Ctx, id.NewDocumentID(), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUploadToClosedApplication() {
	closed := s.env.NewApplication(s.T(), domain.TierBasic, domain.CategoryClient)
	closed.ApplyTransition(domain.ApplicationInReview, fixture.Start)
	closed.ApplyTransition(domain.ApplicationRejected, fixture.Start)
	s.env.Persist(s.T(), closed)

	req := s.request()
	req.ApplicationID = closed.ID
	req.TaskID = nil
	_, err := s.service.Upload(s.env.Ctx, req, s.applicant())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) verified(expiresIn time.Duration) *domain.Document {
	req := s.request()
	expires := s.env.Clock.Now().Add(expiresIn)
	req.ExpiresAt = &expires
	doc := s.upload(req)
	got, err := s.service.Verify(s.env.Ctx, doc.ID, s.env.OfficerID(fixture.Junior), true, "")
	s.Require().NoError(err)
	return got
}
