package document

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/clock"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 50
	defaultSweepWorkers  = 4
)

// Sweeper expires verified documents whose expiry has passed. Each document
// is committed on its own under the system actor, so a failure on one
// document never holds back the rest or any officer action.
type Sweeper struct {
	runner      *workflow.Runner
	reevaluator Reevaluator
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger
	interval    time.Duration
	batch       int
	workers     int
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithWorkers(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSweepClock(c clock.Clock) SweeperOption {
	return func(s *Sweeper) {
		s.clock = c
	}
}

func WithSweepMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweepReevaluator(r Reevaluator) SweeperOption {
	return func(s *Sweeper) {
		s.reevaluator = r
	}
}

func NewSweeper(runner *workflow.Runner, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		runner:   runner,
		clock:    clock.Real(),
		logger:   slog.Default(),
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
		workers:  defaultSweepWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain sweeps batches until one comes back short.
func (s *Sweeper) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := s.SweepOnce(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "document sweep finished with errors", "expired", n, "error", err)
			return
		}
		if n < s.batch {
			return
		}
	}
}

// SweepOnce expires one batch and returns how many documents it expired.
// Per-document failures and a cancelled sweep are joined into the returned
// error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.runner.Backend().Documents().ListExpiring(ctx, now, s.batch)
	if err != nil {
		return 0, storage.ReadError(err, "expiring documents")
	}
	if len(due) == 0 {
		return 0, nil
	}

	var (
		mu       sync.Mutex
		expired  int
		failures []error
		apps     = map[id.ApplicationID]struct{}{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, doc := range due {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := s.expire(gctx, doc.ID, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case ok:
				expired++
				apps[doc.ApplicationID] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "document sweep interrupted", "error", err)
		failures = append(failures, err)
	}

	s.metrics.IncDocumentsExpired(expired)
	if expired > 0 {
		s.logger.InfoContext(ctx, "documents expired", "count", expired)
	}
	if s.reevaluator != nil {
		for appID := range apps {
			if err := s.reevaluator.Reevaluate(ctx, appID); err != nil {
				s.logger.WarnContext(ctx, "application reevaluation failed after expiry",
					"application_id", appID.String(),
					"error", err,
				)
			}
		}
	}
	return expired, errors.Join(failures...)
}

func (s *Sweeper) expire(ctx context.Context, docID id.DocumentID, now time.Time) (bool, error) {
	var changed bool
	err := s.runner.Run(ctx, "document.expire", []string{LockKey(docID)}, func(ctx context.Context, tx *workflow.Tx) error {
		changed = false
		doc, err := tx.Documents().Get(ctx, docID)
		if err != nil {
			return storage.ReadError(err, "document")
		}
		if !doc.IsExpiredAt(now) {
			return nil
		}
		before := *doc
		doc.ApplyExpiry(now)
		changed = true
		return save(ctx, tx, before, doc, domain.SystemActor(), audit.ActionDocumentExpired, "expiry date passed")
	})
	return changed, err
}
