package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/events"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage/memory"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/retry"
	"vetting/pkg/platform/sentinel"
)

type RunnerSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	locker   *lock.Memory
	recorder *events.Recorder
	metrics  *metrics.Metrics
	runner   *Runner
	now      time.Time
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.store = memory.New()
	s.locker = lock.NewMemory(nil)
	s.recorder = events.NewRecorder()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.runner = NewRunner(s.store,
		WithLocker(s.locker),
		WithPublisher(s.recorder),
		WithMetrics(s.metrics),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}),
	)
}

func (s *RunnerSuite) newApp() *domain.Application {
	app, err := domain.NewApplication(id.NewApplicationID(), "a@example.com", domain.CategoryClient, "standard",
		domain.TierBasic, domain.PriorityStandard, nil, []byte(`{"full_name":"A"}`), s.now, s.now)
	s.Require().NoError(err)
	return app
}

func (s *RunnerSuite) create(ctx context.Context, tx *Tx, app *domain.Application) error {
	if err := tx.Applications().Create(ctx, app); err != nil {
		return err
	}
	return tx.Record(ctx, audit.Change{
		EntityType: audit.EntityApplication,
		EntityID:   app.ID.String(),
		Actor:      domain.ApplicantActor(app.ApplicantEmail),
		Action:     audit.ActionApplicationSubmitted,
		After:      app,
		At:         s.now,
	})
}

func (s *RunnerSuite) TestCommitPublishesEvents() {
	app := s.newApp()
	err := s.runner.Run(s.ctx, "test.submit", []string{lock.Key("application", app.ID.String())},
		func(ctx context.Context, tx *Tx) error { return s.create(ctx, tx, app) })
	s.Require().NoError(err)

	history, err := s.store.Audit().ListByEntity(s.ctx, app.ID.String())
	s.Require().NoError(err)
	s.Len(history, 1)
	s.Len(s.recorder.OfType(audit.ActionApplicationSubmitted), 1)
}

func (s *RunnerSuite) TestRollbackPublishesNothing() {
	app := s.newApp()
	boom := dErrors.New(dErrors.CodeValidation, "boom")
	err := s.runner.Run(s.ctx, "test.submit", nil, func(ctx context.Context, tx *Tx) error {
		if err := s.create(ctx, tx, app); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	s.Empty(s.recorder.Events())
	_, err = s.store.Applications().Get(s.ctx, app.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RunnerSuite) TestHeldLeaseIsRetryableContention() {
	key := lock.Key("task", "t-1")
	release, err := s.locker.Acquire(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	defer func() { _ = release(s.ctx) }()

	calls := 0
	err = s.runner.Run(s.ctx, "test.assign", []string{key}, func(context.Context, *Tx) error {
		calls++
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConcurrentModification))
	s.True(dErrors.IsRetryable(err))
	s.Zero(calls)
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.ContentionRetries.WithLabelValues("test.assign")))
}

func (s *RunnerSuite) TestRetriesUntilConflictClears() {
	calls := 0
	err := s.runner.Run(s.ctx, "test.retry", nil, func(context.Context, *Tx) error {
		calls++
		if calls < 2 {
			return sentinel.ErrConflict
		}
		return nil
	})
	s.NoError(err)
	s.Equal(2, calls)
}

func (s *RunnerSuite) TestAuditFailureIsIntegrityFailure() {
	failing := memory.New(memory.WithAuditHook(func(*audit.Entry) error { return errors.New("disk full") }))
	runner := NewRunner(failing, WithMetrics(s.metrics))
	app := s.newApp()

	err := runner.Run(s.ctx, "test.submit", nil, func(ctx context.Context, tx *Tx) error { return s.create(ctx, tx, app) })

	s.True(dErrors.HasCode(err, dErrors.CodeIntegrityFailure))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuditFailures))
	_, err = failing.Applications().Get(s.ctx, app.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
