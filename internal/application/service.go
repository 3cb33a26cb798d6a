// Package application owns the top-level application state machine: intake
// and decomposition, reevaluation from task outcomes, administrative
// overrides and supervisor decisions.
package application

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/task"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/clock"
)

const defaultAdminAccessLevel = 3

// Directory resolves companies and officers.
type Directory interface {
	Company(ctx context.Context, companyID id.CompanyID) (*domain.Company, error)
	ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
}

type Service struct {
	runner           *workflow.Runner
	directory        Directory
	policy           Policy
	clock            clock.Clock
	metrics          *metrics.Metrics
	logger           *slog.Logger
	adminAccessLevel int
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAdminAccessLevel sets the officer access level needed for suspend,
// resume, archive, reviewer assignment and decisions.
func WithAdminAccessLevel(level int) Option {
	return func(s *Service) {
		if level > 0 {
			s.adminAccessLevel = level
		}
	}
}

func NewService(runner *workflow.Runner, dir Directory, opts ...Option) *Service {
	s := &Service{
		runner:           runner,
		directory:        dir,
		policy:           DefaultPolicy(),
		clock:            clock.Real(),
		logger:           slog.Default(),
		adminAccessLevel: defaultAdminAccessLevel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func LockKey(appID id.ApplicationID) string {
	return lock.Key("application", appID.String())
}

// Policy returns the decision policy in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// Submit validates an intake, classifies it and creates the application with
// its decomposed task set in one transaction.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Application, error) {
	payload, err := req.Validate()
	if err != nil {
		return nil, err
	}
	tier, err := ClassifyTier(req.Category, req.SubType)
	if err != nil {
		return nil, err
	}
	if req.CompanyID != nil {
		if err := s.checkCompany(ctx, *req.CompanyID, req.Category); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	eta := now.Add(s.policy.For(tier).SLA)
	app, err := domain.NewApplication(id.NewApplicationID(), req.ApplicantEmail, req.Category,
		normalizeSubType(req.SubType), tier, PriorityFor(req.Category, tier), req.CompanyID, payload, eta, now)
	if err != nil {
		return nil, err
	}
	tasks := task.Decompose(app.ID, tier, req.Category, app.Priority, eta, now)
	actor := domain.ApplicantActor(app.ApplicantEmail)

	err = s.runner.Run(ctx, "application.submit", []string{LockKey(app.ID)}, func(ctx context.Context, tx *workflow.Tx) error {
		if err := tx.Applications().Create(ctx, app); err != nil {
			return storage.WriteError(err, app.ID.String(), "", "submit")
		}
		err := tx.Record(ctx, audit.Change{
			EntityType: audit.EntityApplication,
			EntityID:   app.ID.String(),
			Actor:      actor,
			Action:     audit.ActionApplicationSubmitted,
			Metadata:   map[string]string{"vetting_tier": string(tier), "task_count": strconv.Itoa(len(tasks))},
			After:      app,
			At:         now,
		})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := tx.Tasks().Create(ctx, t); err != nil {
				return storage.WriteError(err, t.ID.String(), "", "decompose")
			}
			err := tx.Record(ctx, audit.Change{
				EntityType: audit.EntityTask,
				EntityID:   t.ID.String(),
				Actor:      actor,
				Action:     audit.ActionTaskCreated,
				After:      t,
				At:         now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncSubmitted(string(app.Category), string(tier))
	s.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID.String(),
		"category", string(app.Category),
		"vetting_tier", string(tier),
		"tasks", len(tasks),
	)
	return app, nil
}

// Reevaluate moves the application to the status its tasks call for. With
// unchanged inputs it writes nothing, so concurrent or repeated calls are safe.
func (s *Service) Reevaluate(ctx context.Context, appID id.ApplicationID) error {
	var moves [][2]domain.ApplicationStatus
	err := s.runner.Run(ctx, "application.reevaluate", []string{LockKey(appID)}, func(ctx context.Context, tx *workflow.Tx) error {
		moves = moves[:0]
		app, err := tx.Applications().Get(ctx, appID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		now := s.clock.Now()
		snap, err := loadSnapshot(ctx, tx, app, now)
		if err != nil {
			return err
		}
		verdict := Evaluate(snap, s.policy.For(app.VettingTier))
		path := app.Status.PathTo(verdict.Status)
		if len(path) == 0 {
			return nil
		}
		system := domain.SystemActor()
		for _, t := range verdict.Skip {
			if err := task.SkipTx(ctx, tx, t, system, "application rejected: "+verdict.Reason, now); err != nil {
				return err
			}
		}
		moves, err = s.walk(ctx, tx, app, path, system, verdict.Reason, now)
		return err
	})
	if err != nil {
		return err
	}
	s.observe(ctx, appID, moves)
	return nil
}

// Suspend puts a non-terminal application on hold.
func (s *Service) Suspend(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error) {
	return s.override(ctx, "application.suspend", appID, actor, reason, func(app *domain.Application) ([]domain.ApplicationStatus, error) {
		if err := app.CanTransition(domain.ApplicationSuspended); err != nil {
			return nil, err
		}
		return []domain.ApplicationStatus{domain.ApplicationSuspended}, nil
	})
}

// Resume returns a suspended application to review and reevaluates it.
func (s *Service) Resume(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error) {
	app, err := s.override(ctx, "application.resume", appID, actor, reason, func(app *domain.Application) ([]domain.ApplicationStatus, error) {
		if err := app.CanResume(); err != nil {
			return nil, err
		}
		return []domain.ApplicationStatus{domain.ApplicationInReview}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.Reevaluate(ctx, appID); err != nil {
		s.logger.WarnContext(ctx, "reevaluation after resume failed",
			"application_id", appID.String(),
			"error", err,
		)
	}
	return app, nil
}

func (s *Service) override(ctx context.Context, op string, appID id.ApplicationID, actor domain.Actor, reason string,
	plan func(app *domain.Application) ([]domain.ApplicationStatus, error)) (*domain.Application, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if err := s.requireAdmin(ctx, actor, op); err != nil {
		return nil, err
	}
	var out *domain.Application
	var moves [][2]domain.ApplicationStatus
	err := s.runner.Run(ctx, op, []string{LockKey(appID)}, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, appID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		path, err := plan(app)
		if err != nil {
			return err
		}
		moves, err = s.walk(ctx, tx, app, path, actor, reason, s.clock.Now())
		out = app
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, appID, moves)
	return out, nil
}

// Archive soft-deletes an application: it is suspended and flagged archived.
// Tasks, documents and history are kept.
func (s *Service) Archive(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if err := s.requireAdmin(ctx, actor, "archive"); err != nil {
		return nil, err
	}
	var out *domain.Application
	var from domain.ApplicationStatus
	err := s.runner.Run(ctx, "application.archive", []string{LockKey(appID)}, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, appID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		if app.Archived {
			return dErrors.New(dErrors.CodeInvalidState, "application is already archived").
				WithDetails(app.ID.String(), string(app.Status), "archive")
		}
		from = app.Status
		if app.Status != domain.ApplicationSuspended {
			if err := app.CanTransition(domain.ApplicationSuspended); err != nil {
				return err
			}
		}
		now := s.clock.Now()
		before := *app
		app.ApplyTransition(domain.ApplicationSuspended, now)
		app.Archived = true
		out = app
		return save(ctx, tx, before, app, actor, audit.ActionApplicationArchived, reason, nil)
	})
	if err != nil {
		return nil, err
	}
	if from != domain.ApplicationSuspended {
		s.metrics.IncTransition(string(from), string(domain.ApplicationSuspended))
	}
	s.logger.InfoContext(ctx, "application archived",
		"application_id", appID.String(),
		"actor_id", actor.ID,
	)
	return out, nil
}

// Decide records a supervisor's final decision. No escalation may be open on
// the application.
func (s *Service) Decide(ctx context.Context, appID id.ApplicationID, actor domain.Actor, approve bool, reason string) (*domain.Application, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if err := s.requireAdmin(ctx, actor, "decide"); err != nil {
		return nil, err
	}
	var out *domain.Application
	var moves [][2]domain.ApplicationStatus
	err := s.runner.Run(ctx, "application.decide", []string{LockKey(appID)}, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, appID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		open, err := tx.Escalations().List(ctx, storage.EscalationFilter{ApplicationID: &appID, OpenOnly: true})
		if err != nil {
			return storage.ReadError(err, "escalations")
		}
		if len(open) > 0 {
			return dErrors.New(dErrors.CodeInvalidState, "application has open escalations").
				WithDetails(app.ID.String(), string(app.Status), "decide")
		}
		moves, err = s.DecideTx(ctx, tx, app, approve, actor, reason, s.clock.Now())
		out = app
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, appID, moves)
	return out, nil
}

// DecideTx approves or rejects inside an existing operation. Approval needs
// every mandatory task closed; rejection skips the tasks still open. The
// returned moves are the transitions applied.
func (s *Service) DecideTx(ctx context.Context, tx *workflow.Tx, app *domain.Application, approve bool,
	actor domain.Actor, reason string, now time.Time) ([][2]domain.ApplicationStatus, error) {
	target := domain.ApplicationRejected
	if approve {
		target = domain.ApplicationApproved
	}
	if !app.IsOpen() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "application is not open for a decision").
			WithDetails(app.ID.String(), string(app.Status), "decide:"+string(target))
	}
	path := app.Status.PathTo(target)
	if len(path) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidState, "transition not allowed").
			WithDetails(app.ID.String(), string(app.Status), "decide:"+string(target))
	}
	tasks, err := tx.Tasks().ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, storage.ReadError(err, "tasks")
	}
	for _, t := range tasks {
		if t.SupersededBy != nil || t.Status.IsTerminal() {
			continue
		}
		if approve && t.Counts() {
			return nil, dErrors.New(dErrors.CodeInvalidState, "mandatory tasks are still open").
				WithDetails(app.ID.String(), string(app.Status), "decide:approved")
		}
		if !approve {
			if err := task.SkipTx(ctx, tx, t, actor, "application rejected: "+reason, now); err != nil {
				return nil, err
			}
		}
	}
	return s.walk(ctx, tx, app, path, actor, reason, now)
}

// AssignReviewers sets the primary and optional secondary officer. The
// secondary reviewer is advisory.
func (s *Service) AssignReviewers(ctx context.Context, appID id.ApplicationID, actor domain.Actor,
	primary id.OfficerID, secondary *id.OfficerID) (*domain.Application, error) {
	if err := s.requireAdmin(ctx, actor, "assign_reviewers"); err != nil {
		return nil, err
	}
	officers := []id.OfficerID{primary}
	if secondary != nil {
		officers = append(officers, *secondary)
	}
	loaded := make([]*domain.Officer, 0, len(officers))
	for _, officerID := range officers {
		o, err := s.directory.ActiveOfficer(ctx, officerID)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, o)
	}

	var out *domain.Application
	err := s.runner.Run(ctx, "application.assign_reviewers", []string{LockKey(appID)}, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, appID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		if err := app.CanAssignReviewers(primary, secondary); err != nil {
			return err
		}
		if app.CompanyID != nil {
			for _, o := range loaded {
				if o.CompanyID != *app.CompanyID {
					return dErrors.New(dErrors.CodeValidation, "reviewer does not belong to the application's company").
						WithDetails(app.ID.String(), string(app.Status), "assign_reviewers:"+o.ID.String())
				}
			}
		}
		before := *app
		app.ApplyReviewers(primary, secondary, s.clock.Now())
		out = app
		meta := map[string]string{"primary_officer_id": primary.String()}
		if secondary != nil {
			meta["secondary_officer_id"] = secondary.String()
		}
		return save(ctx, tx, before, app, actor, audit.ActionApplicationReviewers, "", meta)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	app, err := s.runner.Backend().Applications().Get(ctx, appID)
	if err != nil {
		return nil, storage.ReadError(err, "application")
	}
	return app, nil
}

// List serves dashboard queries, newest first.
func (s *Service) List(ctx context.Context, filter storage.ApplicationFilter) ([]*domain.Application, error) {
	apps, err := s.runner.Backend().Applications().List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return apps, nil
}

// walk applies each transition in path with its own audit entry.
func (s *Service) walk(ctx context.Context, tx *workflow.Tx, app *domain.Application, path []domain.ApplicationStatus,
	actor domain.Actor, reason string, now time.Time) ([][2]domain.ApplicationStatus, error) {
	moves := make([][2]domain.ApplicationStatus, 0, len(path))
	for _, next := range path {
		if err := app.CanTransition(next); err != nil {
			return nil, err
		}
		before := *app
		app.ApplyTransition(next, now)
		meta := map[string]string{"from": string(before.Status), "to": string(next)}
		if err := save(ctx, tx, before, app, actor, audit.ActionApplicationTransition, reason, meta); err != nil {
			return nil, err
		}
		moves = append(moves, [2]domain.ApplicationStatus{before.Status, next})
	}
	return moves, nil
}

func (s *Service) observe(ctx context.Context, appID id.ApplicationID, moves [][2]domain.ApplicationStatus) {
	for _, m := range moves {
		s.metrics.IncTransition(string(m[0]), string(m[1]))
		s.logger.InfoContext(ctx, "application status changed",
			"application_id", appID.String(),
			"from", string(m[0]),
			"to", string(m[1]),
		)
	}
}

func (s *Service) requireAdmin(ctx context.Context, actor domain.Actor, action string) error {
	switch actor.Type {
	case domain.ActorSystem:
		return nil
	case domain.ActorOfficer:
		officerID, ok := actor.OfficerID()
		if !ok {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid officer identity")
		}
		officer, err := s.directory.ActiveOfficer(ctx, officerID)
		if err != nil {
			return err
		}
		if officer.AccessLevel >= s.adminAccessLevel {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "insufficient access level").
		WithDetails(actor.ID, string(actor.Type), action)
}

func (s *Service) checkCompany(ctx context.Context, companyID id.CompanyID, category domain.SubjectCategory) error {
	company, err := s.directory.Company(ctx, companyID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeValidation, "unknown company")
		}
		return err
	}
	if !company.Active {
		return dErrors.New(dErrors.CodeValidation, "company is not active")
	}
	if !company.Serves(category) {
		return dErrors.New(dErrors.CodeValidation, "company does not handle "+string(category)+" applications")
	}
	return nil
}

func loadSnapshot(ctx context.Context, st storage.Stores, app *domain.Application, now time.Time) (Snapshot, error) {
	tasks, err := st.Tasks().ListByApplication(ctx, app.ID)
	if err != nil {
		return Snapshot{}, storage.ReadError(err, "tasks")
	}
	docs, err := st.Documents().ListByApplication(ctx, app.ID)
	if err != nil {
		return Snapshot{}, storage.ReadError(err, "documents")
	}
	appID := app.ID
	escs, err := st.Escalations().List(ctx, storage.EscalationFilter{ApplicationID: &appID, OpenOnly: true})
	if err != nil {
		return Snapshot{}, storage.ReadError(err, "escalations")
	}
	return Snapshot{Application: app, Tasks: tasks, Documents: docs, OpenEscalations: escs, Now: now}, nil
}

// save persists one application update and its audit entry.
func save(ctx context.Context, tx *workflow.Tx, before domain.Application, app *domain.Application,
	actor domain.Actor, action, reason string, metadata map[string]string) error {
	app.Version = before.Version + 1
	if err := tx.Applications().Update(ctx, app); err != nil {
		return storage.WriteError(err, app.ID.String(), string(before.Status), action)
	}
	return tx.Record(ctx, audit.Change{
		EntityType: audit.EntityApplication,
		EntityID:   app.ID.String(),
		Actor:      actor,
		Action:     action,
		Reason:     reason,
		Metadata:   metadata,
		Before:     before,
		After:      app,
		At:         app.UpdatedAt,
	})
}
