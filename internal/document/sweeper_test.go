package document

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vetting/internal/audit"
	"vetting/internal/domain"
)

func (s *ServiceSuite) sweeper(batch int) *Sweeper {
	return NewSweeper(s.env.Runner,
		WithBatchSize(batch),
		WithSweepClock(s.env.Clock),
		WithSweepMetrics(s.env.Metrics),
		WithSweepReevaluator(s.reeval),
		WithSweepInterval(10*time.Millisecond),
	)
}

func (s *ServiceSuite) TestSweepExpiresPastDueDocuments() {
	stale := s.verified(time.Hour)
	fresh := s.verified(50 * time.Hour)
	pending := s.upload(s.request())
	before := s.reeval.count()
	s.env.Clock.Advance(2 * time.Hour)

	n, err := s.sweeper(10).SweepOnce(s.env.Ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.service.Get(s.env.Ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(domain.DocumentExpired, got.Status)

	entries := s.env.Entries(s.T(), stale.ID.String())
	last := entries[len(entries)-1]
	s.Equal(audit.ActionDocumentExpired, last.Action)
	s.Equal(domain.ActorSystem, last.ActorType)
	s.Equal(before+1, s.reeval.count())

	for _, d := range []*domain.Document{fresh, pending} {
		unchanged, err := s.service.Get(s.env.Ctx, d.ID)
		s.Require().NoError(err)
		s.NotEqual(domain.DocumentExpired, unchanged.Status)
	}

	n, err = s.sweeper(10).SweepOnce(s.env.Ctx)
	s.Require().NoError(err)
	s.Zero(n, "a second sweep finds nothing")

	s.env.Clock.Advance(49 * time.Hour)
	n, err = s.sweeper(10).SweepOnce(s.env.Ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(float64(2), testutil.ToFloat64(s.env.Metrics.DocumentsExpired))
}

func (s *ServiceSuite) TestSweepWorksInBatches() {
	for range 5 {
		s.verified(time.Minute)
	}
	s.env.Clock.Advance(time.Minute)
	sw := s.sweeper(2)

	var counts []int
	for {
		n, err := sw.SweepOnce(s.env.Ctx)
		s.Require().NoError(err)
		if n == 0 {
			break
		}
		counts = append(counts, n)
	}
	s.Equal([]int{2, 2, 1}, counts)
}

func (s *ServiceSuite) TestSweeperRunStopsWithContext() {
	doc := s.verified(time.Minute)
	s.env.Clock.Advance(time.Minute)
	ctx, cancel := context.WithCancel(s.env.Ctx)
	done := make(chan error, 1)
	go func() { done <- s.sweeper(10).Run(ctx) }()

	s.Eventually(func() bool {
		got, err := s.service.Get(s.env.Ctx, doc.ID)
		return err == nil && got.Status == domain.DocumentExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("sweeper did not stop")
	}
}

func (s *ServiceSuite) TestSweepOnceReportsCancellation() {
	doc := s.verified(time.Minute)
	s.env.Clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(s.env.Ctx)
	cancel()
	n, err := s.sweeper(10).SweepOnce(ctx)
	s.Require().ErrorIs(err, context.Canceled)
	s.Zero(n)

	got, err := s.service.Get(s.env.Ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(domain.DocumentVerified, got.Status)
}
