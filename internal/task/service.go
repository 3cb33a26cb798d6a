// Package task runs the verification task lifecycle: decomposition into the
// tier's task set, routing to qualified officers, result recording and the
// holds placed by escalations.
package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"vetting/internal/audit"
	"vetting/internal/directory"
	"vetting/internal/domain"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/clock"
)

const defaultSkipAccessLevel = 3

// Directory resolves officers for routing and authority checks.
type Directory interface {
	ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
	Candidates(ctx context.Context, companyID *id.CompanyID, task *domain.Task) ([]*domain.Officer, error)
}

// Reevaluator recomputes an application's status after its tasks change.
type Reevaluator interface {
	Reevaluate(ctx context.Context, appID id.ApplicationID) error
}

type Service struct {
	runner          *workflow.Runner
	directory       Directory
	reevaluator     Reevaluator
	clock           clock.Clock
	metrics         *metrics.Metrics
	logger          *slog.Logger
	skipAccessLevel int
}

type Option func(*Service)

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

func WithReevaluator(r Reevaluator) Option {
	return func(s *Service) {
		s.reevaluator = r
	}
}

// WithSkipAccessLevel sets the officer access level needed to skip or
// reassign tasks the officer does not own.
func WithSkipAccessLevel(level int) Option {
	return func(s *Service) {
		if level > 0 {
			s.skipAccessLevel = level
		}
	}
}

func NewService(runner *workflow.Runner, dir Directory, opts ...Option) *Service {
	s := &Service{
		runner:          runner,
		directory:       dir,
		clock:           clock.Real(),
		logger:          slog.Default(),
		skipAccessLevel: defaultSkipAccessLevel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func LockKey(taskID id.TaskID) string {
	return lock.Key("task", taskID.String())
}

func (s *Service) Get(ctx context.Context, taskID id.TaskID) (*domain.Task, error) {
	t, err := s.runner.Backend().Tasks().Get(ctx, taskID)
	if err != nil {
		return nil, storage.ReadError(err, "task")
	}
	return t, nil
}

// ListByApplication returns the application's tasks in canonical type order.
func (s *Service) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Task, error) {
	if _, err := s.runner.Backend().Applications().Get(ctx, appID); err != nil {
		return nil, storage.ReadError(err, "application")
	}
	tasks, err := s.runner.Backend().Tasks().ListByApplication(ctx, appID)
	if err != nil {
		return nil, storage.ReadError(err, "tasks")
	}
	return tasks, nil
}

// Assign gives a task to an officer and starts it. Assigning the current
// owner again is a no-op.
func (s *Service) Assign(ctx context.Context, taskID id.TaskID, officerID id.OfficerID, actor domain.Actor) (*domain.Task, error) {
	if actor.Type == domain.ActorApplicant {
		return nil, dErrors.New(dErrors.CodeForbidden, "applicants cannot assign tasks")
	}
	officer, err := s.directory.ActiveOfficer(ctx, officerID)
	if err != nil {
		return nil, err
	}

	var out *domain.Task
	changed := false
	err = s.runner.Run(ctx, "task.assign", []string{LockKey(taskID)}, func(ctx context.Context, tx *workflow.Tx) error {
		changed = false
		t, app, err := load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := requireOpen(app, "assign"); err != nil {
			return err
		}
		noop, err := t.CanAssign(officerID)
		if err != nil {
			return err
		}
		out = t
		if noop {
			return nil
		}
		if err := directory.Qualified(officer, t); err != nil {
			return err
		}
		changed = true
		return s.assignTx(ctx, tx, t, officerID, actor, "", s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.IncAssigned()
		s.logger.InfoContext(ctx, "task assigned",
			"task_id", out.ID.String(),
			"application_id", out.ApplicationID.String(),
			"officer_id", officerID.String(),
		)
		s.reevaluate(ctx, out.ApplicationID)
	}
	return out, nil
}

// Reassign moves ownership to another officer, recording the release of the
// previous owner first. The current owner or an elevated officer may do this.
func (s *Service) Reassign(ctx context.Context, taskID id.TaskID, officerID id.OfficerID, actor domain.Actor, reason string) (*domain.Task, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reassignment reason is required")
	}
	officer, err := s.directory.ActiveOfficer(ctx, officerID)
	if err != nil {
		return nil, err
	}
	elevated, err := s.isElevated(ctx, actor)
	if err != nil {
		return nil, err
	}

	var out *domain.Task
	err = s.runner.Run(ctx, "task.reassign", []string{LockKey(taskID)}, func(ctx context.Context, tx *workflow.Tx) error {
		t, app, err := load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := requireOpen(app, "reassign"); err != nil {
			return err
		}
		actorID, isOfficer := actor.OfficerID()
		if !elevated && !(isOfficer && t.IsOwnedBy(actorID)) {
			return dErrors.New(dErrors.CodeForbidden, "only the owner or an elevated officer may reassign").
				WithDetails(t.ID.String(), string(t.Status), "reassign")
		}
		if t.IsHeld() {
			return dErrors.New(dErrors.CodeInvalidState, "task is held by an open escalation").
				WithDetails(t.ID.String(), string(t.Status), "reassign")
		}
		out = t
		return s.ReassignTx(ctx, tx, t, officer, actor, reason, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncAssigned()
	s.logger.InfoContext(ctx, "task reassigned",
		"task_id", out.ID.String(),
		"officer_id", officerID.String(),
	)
	s.reevaluate(ctx, out.ApplicationID)
	return out, nil
}

// AutoAssign routes the task to the least loaded qualified officer of the
// application's company. Ties go to the lowest officer ID.
func (s *Service) AutoAssign(ctx context.Context, taskID id.TaskID, actor domain.Actor) (*domain.Task, error) {
	backend := s.runner.Backend()
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	// The nil officer never owns a task, so this reports closed, held and
	// already owned tasks.
	if _, err := t.CanAssign(id.OfficerID{}); err != nil {
		return nil, err
	}
	app, err := backend.Applications().Get(ctx, t.ApplicationID)
	if err != nil {
		return nil, storage.ReadError(err, "application")
	}
	candidates, err := s.directory.Candidates(ctx, app.CompanyID, t)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, dErrors.New(dErrors.CodeUnqualifiedOfficer, "no qualified officer is available").
			WithDetails(t.ID.String(), string(t.Status), "auto_assign")
	}

	var best *domain.Officer
	bestLoad := 0
	for _, c := range candidates {
		n, err := backend.Tasks().CountOpenByOfficer(ctx, c.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count officer workload")
		}
		if best == nil || n < bestLoad {
			best, bestLoad = c, n
		}
	}
	return s.Assign(ctx, taskID, best.ID, actor)
}

// RecordResult closes the task with the owner's result. A pass needs every
// required document verified.
func (s *Service) RecordResult(ctx context.Context, taskID id.TaskID, officerID id.OfficerID,
	result domain.TaskResult, findings json.RawMessage) (*domain.Task, error) {
	if err := validFindings(findings); err != nil {
		return nil, err
	}
	if _, err := s.directory.ActiveOfficer(ctx, officerID); err != nil {
		return nil, err
	}
	actor := domain.OfficerActor(officerID)

	var out *domain.Task
	err := s.runner.Run(ctx, "task.record_result", []string{LockKey(taskID)}, func(ctx context.Context, tx *workflow.Tx) error {
		t, app, err := load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := requireOpen(app, "record_result"); err != nil {
			return err
		}
		if err := t.CanRecordResult(officerID, result); err != nil {
			return err
		}
		out = t
		return s.recordTx(ctx, tx, t, result, findings, actor, "", s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTaskResult(string(out.Type), string(result))
	s.logger.InfoContext(ctx, "task result recorded",
		"task_id", out.ID.String(),
		"application_id", out.ApplicationID.String(),
		"result", string(result),
	)
	s.reevaluate(ctx, out.ApplicationID)
	return out, nil
}

// Skip closes a task without a result. Only the system or an officer at the
// skip access level may do this.
func (s *Service) Skip(ctx context.Context, taskID id.TaskID, actor domain.Actor, reason string) (*domain.Task, error) {
	elevated, err := s.isElevated(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !elevated {
		return nil, dErrors.New(dErrors.CodeForbidden, "skipping a task requires elevated access").
			WithDetails(taskID.String(), "", "skip")
	}

	var out *domain.Task
	err = s.runner.Run(ctx, "task.skip", []string{LockKey(taskID)}, func(ctx context.Context, tx *workflow.Tx) error {
		t, app, err := load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if app.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidState, "application is closed").
				WithDetails(app.ID.String(), string(app.Status), "skip")
		}
		out = t
		return SkipTx(ctx, tx, t, actor, reason, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "task skipped",
		"task_id", out.ID.String(),
		"actor_id", actor.ID,
		"reason", reason,
	)
	s.reevaluate(ctx, out.ApplicationID)
	return out, nil
}

// SkipTx skips the task inside an existing operation.
func SkipTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, actor domain.Actor, reason string, now time.Time) error {
	if err := t.CanSkip(reason); err != nil {
		return err
	}
	before := *t
	t.ApplySkip(reason, now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskSkipped, reason, nil)
}

// HoldTx pauses the task for an escalation.
func (s *Service) HoldTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, escID id.EscalationID,
	actor domain.Actor, reason string, now time.Time) error {
	if err := t.CanHold(); err != nil {
		return err
	}
	before := *t
	t.ApplyHold(escID, now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskHeld, reason,
		map[string]string{"escalation_id": escID.String()})
}

// MoveHoldTx hands the hold from an escalation to its successor.
func (s *Service) MoveHoldTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, from, to id.EscalationID,
	actor domain.Actor, reason string, now time.Time) error {
	if t.HeldBy == nil || *t.HeldBy != from {
		return nil
	}
	before := *t
	t.ApplyHold(to, now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskHeld, reason,
		map[string]string{"escalation_id": to.String(), "previous_escalation_id": from.String()})
}

// ReleaseHoldTx lifts a hold placed by escID. Tasks not held by it are left alone.
func (s *Service) ReleaseHoldTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, escID id.EscalationID,
	actor domain.Actor, reason string, now time.Time) error {
	if t.HeldBy == nil || *t.HeldBy != escID {
		return nil
	}
	before := *t
	t.ApplyReleaseHold(now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskHoldReleased, reason,
		map[string]string{"escalation_id": escID.String()})
}

// ReopenTx returns a held, still open task to its owner.
func (s *Service) ReopenTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, escID id.EscalationID,
	actor domain.Actor, reason string, now time.Time) error {
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "closed tasks cannot be reopened, reissue instead").
			WithDetails(t.ID.String(), string(t.Status), "reopen")
	}
	return s.ReleaseHoldTx(ctx, tx, t, escID, actor, reason, now)
}

// ReassignTx releases the current owner, if any, and assigns officer.
func (s *Service) ReassignTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, officer *domain.Officer,
	actor domain.Actor, reason string, now time.Time) error {
	if err := t.CanRelease(); err != nil {
		return err
	}
	if t.IsOwnedBy(officer.ID) {
		return nil
	}
	if err := directory.Qualified(officer, t); err != nil {
		return err
	}
	return s.reassignTx(ctx, tx, t, officer.ID, actor, reason, now)
}

// ResolveResultTx records a result on behalf of an escalation resolver, who
// takes ownership first. Resolvers are not checked against the task's
// specialization.
func (s *Service) ResolveResultTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, resolver id.OfficerID,
	result domain.TaskResult, findings json.RawMessage, reason string, now time.Time) error {
	if !result.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid task result")
	}
	if err := validFindings(findings); err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "task is closed").
			WithDetails(t.ID.String(), string(t.Status), "record_result")
	}
	actor := domain.OfficerActor(resolver)
	if !t.IsOwnedBy(resolver) {
		if err := s.reassignTx(ctx, tx, t, resolver, actor, reason, now); err != nil {
			return err
		}
	}
	if err := t.CanRecordResult(resolver, result); err != nil {
		return err
	}
	if err := s.recordTx(ctx, tx, t, result, findings, actor, reason, now); err != nil {
		return err
	}
	s.metrics.IncTaskResult(string(t.Type), string(result))
	return nil
}

// ReissueTx replaces a failed task with a fresh pending instance. The failed
// task stays in history but no longer counts towards the application.
func (s *Service) ReissueTx(ctx context.Context, tx *workflow.Tx, t *domain.Task,
	actor domain.Actor, reason string, now time.Time) (*domain.Task, error) {
	if err := t.CanSupersede(); err != nil {
		return nil, err
	}
	window := t.DueAt.Sub(t.CreatedAt)
	if window < 0 {
		window = 0
	}
	next := t.Reissue(id.NewTaskID(), now.Add(window), now)
	if err := tx.Tasks().Create(ctx, next); err != nil {
		return nil, storage.WriteError(err, next.ID.String(), "", "reissue")
	}
	err := tx.Record(ctx, audit.Change{
		EntityType: audit.EntityTask,
		EntityID:   next.ID.String(),
		Actor:      actor,
		Action:     audit.ActionTaskCreated,
		Reason:     reason,
		Metadata:   map[string]string{"reissued_from": t.ID.String()},
		After:      next,
		At:         now,
	})
	if err != nil {
		return nil, err
	}

	before := *t
	t.ApplySupersede(next.ID, now)
	if err := save(ctx, tx, before, t, actor, audit.ActionTaskSuperseded, reason,
		map[string]string{"superseded_by": next.ID.String()}); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) assignTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, officerID id.OfficerID,
	actor domain.Actor, reason string, now time.Time) error {
	before := *t
	t.ApplyAssign(officerID, now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskAssigned, reason,
		map[string]string{"officer_id": officerID.String()})
}

func (s *Service) reassignTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, officerID id.OfficerID,
	actor domain.Actor, reason string, now time.Time) error {
	if t.AssignedOfficerID != nil {
		previous := t.AssignedOfficerID.String()
		before := *t
		t.ApplyRelease(now)
		if err := save(ctx, tx, before, t, actor, audit.ActionTaskReleased, reason,
			map[string]string{"officer_id": previous}); err != nil {
			return err
		}
	}
	return s.assignTx(ctx, tx, t, officerID, actor, reason, now)
}

func (s *Service) recordTx(ctx context.Context, tx *workflow.Tx, t *domain.Task, result domain.TaskResult,
	findings json.RawMessage, actor domain.Actor, reason string, now time.Time) error {
	if result == domain.ResultPass {
		docs, err := tx.Documents().ListByApplication(ctx, t.ApplicationID)
		if err != nil {
			return storage.ReadError(err, "documents")
		}
		if missing := domain.MissingDocuments(t, docs, now, domain.DocumentVerified); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, m := range missing {
				names[i] = string(m)
			}
			return dErrors.New(dErrors.CodeDocumentsIncomplete,
				"required documents are not verified: "+strings.Join(names, ", ")).
				WithDetails(t.ID.String(), string(t.Status), "record_result")
		}
	}
	before := *t
	t.ApplyResult(result, findings, now)
	return save(ctx, tx, before, t, actor, audit.ActionTaskResultRecorded, reason,
		map[string]string{"result": string(result)})
}

// isElevated reports whether the actor may act on tasks it does not own.
func (s *Service) isElevated(ctx context.Context, actor domain.Actor) (bool, error) {
	switch actor.Type {
	case domain.ActorSystem:
		return true, nil
	case domain.ActorOfficer:
		officerID, ok := actor.OfficerID()
		if !ok {
			return false, dErrors.New(dErrors.CodeUnauthorized, "invalid officer identity")
		}
		officer, err := s.directory.ActiveOfficer(ctx, officerID)
		if err != nil {
			return false, err
		}
		return officer.AccessLevel >= s.skipAccessLevel, nil
	}
	return false, nil
}

func (s *Service) reevaluate(ctx context.Context, appID id.ApplicationID) {
	if s.reevaluator == nil {
		return
	}
	if err := s.reevaluator.Reevaluate(ctx, appID); err != nil {
		s.logger.WarnContext(ctx, "application reevaluation failed after task change",
			"application_id", appID.String(),
			"error", err,
		)
	}
}

func load(ctx context.Context, st storage.Stores, taskID id.TaskID) (*domain.Task, *domain.Application, error) {
	t, err := st.Tasks().Get(ctx, taskID)
	if err != nil {
		return nil, nil, storage.ReadError(err, "task")
	}
	app, err := st.Applications().Get(ctx, t.ApplicationID)
	if err != nil {
		return nil, nil, storage.ReadError(err, "application")
	}
	return t, app, nil
}

func requireOpen(app *domain.Application, action string) error {
	if !app.IsOpen() {
		return dErrors.New(dErrors.CodeInvalidState, "application is not accepting task changes").
			WithDetails(app.ID.String(), string(app.Status), action)
	}
	return nil
}

func validFindings(findings json.RawMessage) error {
	if len(findings) > 0 && !json.Valid(findings) {
		return dErrors.New(dErrors.CodeValidation, "findings must be valid JSON")
	}
	return nil
}

// save persists one task update and its audit entry.
func save(ctx context.Context, tx *workflow.Tx, before domain.Task, t *domain.Task,
	actor domain.Actor, action, reason string, metadata map[string]string) error {
	t.Version = before.Version + 1
	if err := tx.Tasks().Update(ctx, t); err != nil {
		return storage.WriteError(err, t.ID.String(), string(before.Status), action)
	}
	return tx.Record(ctx, audit.Change{
		EntityType: audit.EntityTask,
		EntityID:   t.ID.String(),
		Actor:      actor,
		Action:     action,
		Reason:     reason,
		Metadata:   metadata,
		Before:     before,
		After:      t,
		At:         t.UpdatedAt,
	})
}
