// Package workflow runs a single mutating engine operation: per-entity
// leases, bounded retry on contention, one storage transaction holding the
// mutation plus its audit entries, and event publication after commit.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"vetting/internal/audit"
	"vetting/internal/events"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/platform/tracing"
	"vetting/internal/storage"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/retry"
	"vetting/pkg/platform/sentinel"
)

const defaultLeaseTTL = 10 * time.Second

// Tx is the transaction handed to an operation. Audit entries recorded
// through it are published once the transaction commits.
type Tx struct {
	storage.Stores
	entries []*audit.Entry
}

// Record writes an audit entry in the transaction.
func (tx *Tx) Record(ctx context.Context, c audit.Change) error {
	e, err := audit.Record(ctx, tx.Audit(), c)
	if err != nil {
		return err
	}
	tx.entries = append(tx.entries, e)
	return nil
}

// Entries returns what has been recorded so far.
func (tx *Tx) Entries() []*audit.Entry {
	return tx.entries
}

type Runner struct {
	backend   storage.Backend
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	policy    retry.Policy
	leaseTTL  time.Duration
}

type Option func(*Runner)

func WithLocker(l lock.Locker) Option {
	return func(r *Runner) {
		r.locker = l
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

func WithLeaseTTL(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.leaseTTL = d
		}
	}
}

func NewRunner(backend storage.Backend, opts ...Option) *Runner {
	r := &Runner{
		backend:   backend,
		publisher: events.Nop{},
		logger:    slog.Default(),
		policy:    retry.DefaultPolicy(),
		leaseTTL:  defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend exposes the store set for reads outside a transaction.
func (r *Runner) Backend() storage.Backend {
	return r.backend
}

// Run executes fn inside a transaction while holding leases on keys. Lease
// contention and version conflicts are retried under the runner's policy;
// when the budget is spent the caller gets a retryable
// concurrent_modification error. fn may run more than once and must read
// all state through tx.
func (r *Runner) Run(ctx context.Context, op string, keys []string, fn func(ctx context.Context, tx *Tx) error) (err error) {
	start := time.Now()
	defer r.metrics.ObserveOperation(op, start)
	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var committed []*audit.Entry
	attempt := 0
	err = retry.Do(ctx, r.policy, dErrors.IsRetryable, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.IncRetry(op)
		}
		release, err := r.acquire(ctx, keys)
		if err != nil {
			return err
		}
		defer release()

		tx := &Tx{}
		err = r.backend.RunInTx(ctx, func(st storage.Stores) error {
			tx.Stores = st
			tx.entries = tx.entries[:0]
			return fn(ctx, tx)
		})
		if err != nil {
			return commitError(err)
		}
		committed = tx.entries
		return nil
	})
	if err != nil {
		r.report(ctx, op, attempt, err)
		return err
	}
	events.Notify(ctx, r.publisher, r.logger, committed...)
	return nil
}

// acquire takes every lease in key order so overlapping operations cannot
// deadlock. A held key is reported as retryable contention.
func (r *Runner) acquire(ctx context.Context, keys []string) (func(), error) {
	if r.locker == nil || len(keys) == 0 {
		return func() {}, nil
	}
	var releases []lock.Release
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](context.WithoutCancel(ctx)); err != nil {
				r.logger.WarnContext(ctx, "failed to release lease", "error", err)
			}
		}
	}
	for _, key := range keys {
		rel, err := r.locker.Acquire(ctx, key, r.leaseTTL)
		if err != nil {
			releaseAll()
			if errors.Is(err, sentinel.ErrLocked) {
				return nil, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "entity is being modified by another operation").
					WithDetails(key, "", "acquire")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire lease")
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}

// commitError maps raw storage failures that escape the transaction (commit
// time validation, driver errors) onto domain errors.
func commitError(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "entity was modified concurrently")
	case errors.Is(err, sentinel.ErrReferenceMissing):
		return dErrors.Wrap(err, dErrors.CodeValidation, "referenced entity does not exist")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "transaction failed")
}

func (r *Runner) report(ctx context.Context, op string, attempts int, err error) {
	switch {
	case dErrors.HasCode(err, dErrors.CodeIntegrityFailure):
		r.metrics.IncAuditFailure()
		r.logger.ErrorContext(ctx, "CRITICAL: audit write failed, mutation rolled back",
			"operation", op,
			"error", err,
		)
	case dErrors.IsRetryable(err):
		r.logger.WarnContext(ctx, "operation abandoned after contention",
			"operation", op,
			"attempts", attempts,
			"error", err,
		)
	case dErrors.CodeOf(err).Category() == dErrors.CategoryInternal:
		r.logger.ErrorContext(ctx, "operation failed",
			"operation", op,
			"error", err,
		)
	}
}
