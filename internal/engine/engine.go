// Package engine assembles the workflow services over one storage backend,
// one lease manager and one event publisher. Nothing is global: every
// collaborator is passed in through Deps.
package engine

import (
	"context"
	"log/slog"
	"time"

	"vetting/internal/application"
	"vetting/internal/audit"
	"vetting/internal/comment"
	"vetting/internal/directory"
	"vetting/internal/document"
	"vetting/internal/escalation"
	"vetting/internal/events"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/task"
	"vetting/internal/workflow"
	"vetting/pkg/platform/clock"
	"vetting/pkg/platform/retry"
)

// Deps are the engine's collaborators. Backend and Directory are required;
// the rest default to in-process implementations.
type Deps struct {
	Backend   storage.Backend
	Directory *directory.Service
	Clock     clock.Clock
	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Settings tune the engine. Zero values keep each service's default.
type Settings struct {
	Policy           *application.Policy
	Retry            *retry.Policy
	LeaseTTL         time.Duration
	SkipAccessLevel  int
	AdminAccessLevel int
	SweepInterval    time.Duration
	SweepBatchSize   int
	SweepWorkers     int
}

type Engine struct {
	Runner       *workflow.Runner
	Directory    *directory.Service
	Audit        *audit.Service
	Applications *application.Service
	Tasks        *task.Service
	Documents    *document.Service
	Escalations  *escalation.Service
	Comments     *comment.Service
	Sweeper      *document.Sweeper
}

func New(deps Deps, settings Settings) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemory(deps.Clock)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	runnerOpts := []workflow.Option{
		workflow.WithLocker(deps.Locker),
		workflow.WithPublisher(deps.Publisher),
		workflow.WithMetrics(deps.Metrics),
		workflow.WithLogger(deps.Logger),
	}
	if settings.Retry != nil {
		runnerOpts = append(runnerOpts, workflow.WithRetryPolicy(*settings.Retry))
	}
	if settings.LeaseTTL > 0 {
		runnerOpts = append(runnerOpts, workflow.WithLeaseTTL(settings.LeaseTTL))
	}
	runner := workflow.NewRunner(deps.Backend, runnerOpts...)

	appOpts := []application.Option{
		application.WithClock(deps.Clock),
		application.WithMetrics(deps.Metrics),
		application.WithLogger(deps.Logger),
		application.WithAdminAccessLevel(settings.AdminAccessLevel),
	}
	if settings.Policy != nil {
		appOpts = append(appOpts, application.WithPolicy(*settings.Policy))
	}
	apps := application.NewService(runner, deps.Directory, appOpts...)

	tasks := task.NewService(runner, deps.Directory,
		task.WithClock(deps.Clock),
		task.WithMetrics(deps.Metrics),
		task.WithLogger(deps.Logger),
		task.WithReevaluator(apps),
		task.WithSkipAccessLevel(settings.SkipAccessLevel),
	)

	return &Engine{
		Runner:       runner,
		Directory:    deps.Directory,
		Audit:        audit.NewService(deps.Backend.Audit(), audit.WithLogger(deps.Logger)),
		Applications: apps,
		Tasks:        tasks,
		Documents: document.NewService(runner, deps.Directory,
			document.WithClock(deps.Clock),
			document.WithMetrics(deps.Metrics),
			document.WithLogger(deps.Logger),
			document.WithReevaluator(apps),
		),
		Escalations: escalation.NewService(runner, deps.Directory, tasks, apps,
			escalation.WithClock(deps.Clock),
			escalation.WithMetrics(deps.Metrics),
			escalation.WithLogger(deps.Logger),
		),
		Comments: comment.NewService(runner, deps.Directory,
			comment.WithClock(deps.Clock),
			comment.WithLogger(deps.Logger),
		),
		Sweeper: document.NewSweeper(runner,
			document.WithSweepInterval(settings.SweepInterval),
			document.WithBatchSize(settings.SweepBatchSize),
			document.WithWorkers(settings.SweepWorkers),
			document.WithSweepClock(deps.Clock),
			document.WithSweepMetrics(deps.Metrics),
			document.WithSweepLogger(deps.Logger),
			document.WithSweepReevaluator(apps),
		),
	}
}

// Run drives the background expiry sweep until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.Sweeper.Run(ctx)
}
