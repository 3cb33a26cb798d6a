// Package escalation hands review authority for a task or an application to
// a higher-access officer and applies the resolver's outcome.
package escalation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"vetting/internal/application"
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

// Directory resolves officers and their access levels.
type Directory interface {
	Officer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
	ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
}

type Service struct {
	runner    *workflow.Runner
	directory Directory
	tasks     *task.Service
	apps      *application.Service
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
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

func NewService(runner *workflow.Runner, dir Directory, tasks *task.Service, apps *application.Service, opts ...Option) *Service {
	s := &Service{
		runner:    runner,
		directory: dir,
		tasks:     tasks,
		apps:      apps,
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func LockKey(escID id.EscalationID) string {
	return lock.Key("escalation", escID.String())
}

// Request opens an escalation. SourceID is a task ID for task sources and
// an application ID for application sources.
type Request struct {
	SourceType    domain.SourceType
	SourceID      string
	FromOfficerID id.OfficerID
	ToOfficerID   id.OfficerID
	Reason        string
	Urgency       domain.Urgency
}

// Resolution carries the outcome-specific inputs of Resolve.
type Resolution struct {
	Outcome  domain.Outcome
	Text     string
	Result   domain.TaskResult
	Findings json.RawMessage
	// ReassignTo is the new owner for the reassign outcome.
	ReassignTo *id.OfficerID
}

// Escalate opens an escalation from one officer to a strictly higher-access
// officer. A task source is held until the escalation closes.
func (s *Service) Escalate(ctx context.Context, req Request) (*domain.Escalation, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if req.Urgency == "" {
		req.Urgency = domain.UrgencyNormal
	}
	if !req.Urgency.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid urgency")
	}
	esc := &domain.Escalation{
		ID:            id.NewEscalationID(),
		SourceType:    req.SourceType,
		FromOfficerID: req.FromOfficerID,
		ToOfficerID:   req.ToOfficerID,
		Reason:        req.Reason,
		Urgency:       req.Urgency,
		Status:        domain.EscalationPending,
		Version:       1,
	}
	var keys []string
	switch req.SourceType {
	case domain.SourceTask:
		taskID, err := id.ParseTaskID(req.SourceID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid task id")
		}
		esc.TaskID = &taskID
		// The application lease keeps a concurrent reevaluation from closing
		// the application while the escalation is being opened.
		t, err := s.runner.Backend().Tasks().Get(ctx, taskID)
		if err != nil {
			return nil, storage.ReadError(err, "task")
		}
		esc.ApplicationID = t.ApplicationID
		keys = append(keys, task.LockKey(taskID), application.LockKey(t.ApplicationID))
	case domain.SourceApplication:
		appID, err := id.ParseApplicationID(req.SourceID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid application id")
		}
		esc.ApplicationID = appID
		keys = append(keys, application.LockKey(appID))
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "invalid escalation source type")
	}
	if _, err := s.authorityAbove(ctx, req.FromOfficerID, req.ToOfficerID); err != nil {
		return nil, err
	}

	err := s.runner.Run(ctx, "escalation.create", keys, func(ctx context.Context, tx *workflow.Tx) error {
		now := s.clock.Now()
		esc.CreatedAt, esc.UpdatedAt = now, now
		actor := domain.OfficerActor(req.FromOfficerID)

		var held *domain.Task
		if esc.TaskID != nil {
			t, err := tx.Tasks().Get(ctx, *esc.TaskID)
			if err != nil {
				return storage.ReadError(err, "task")
			}
			held = t
		}
		app, err := tx.Applications().Get(ctx, esc.ApplicationID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		if !app.IsOpen() {
			return dErrors.New(dErrors.CodeInvalidState, "application is not open for escalation").
				WithDetails(app.ID.String(), string(app.Status), "escalate")
		}
		if held != nil {
			if err := held.CanHold(); err != nil {
				return err
			}
		}
		if err := tx.Escalations().Create(ctx, esc); err != nil {
			return storage.WriteError(err, esc.ID.String(), "", "escalate")
		}
		err = tx.Record(ctx, audit.Change{
			EntityType: audit.EntityEscalation,
			EntityID:   esc.ID.String(),
			Actor:      actor,
			Action:     audit.ActionEscalationCreated,
			Reason:     esc.Reason,
			Metadata: map[string]string{
				"source_type":   string(esc.SourceType),
				"source_id":     esc.SourceID(),
				"to_officer_id": esc.ToOfficerID.String(),
				"urgency":       string(esc.Urgency),
			},
			After: esc,
			At:    now,
		})
		if err != nil {
			return err
		}
		if held != nil {
			return s.tasks.HoldTx(ctx, tx, held, esc.ID, actor, esc.Reason, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEscalationCreated(string(esc.SourceType), string(esc.Urgency))
	s.logger.InfoContext(ctx, "escalation opened",
		"escalation_id", esc.ID.String(),
		"application_id", esc.ApplicationID.String(),
		"source_type", string(esc.SourceType),
		"urgency", string(esc.Urgency),
	)
	return esc, nil
}

// StartReview is the target officer picking the escalation up.
func (s *Service) StartReview(ctx context.Context, escID id.EscalationID, officerID id.OfficerID) (*domain.Escalation, error) {
	if _, err := s.directory.ActiveOfficer(ctx, officerID); err != nil {
		return nil, err
	}
	var out *domain.Escalation
	err := s.runner.Run(ctx, "escalation.start_review", []string{LockKey(escID)}, func(ctx context.Context, tx *workflow.Tx) error {
		esc, err := tx.Escalations().Get(ctx, escID)
		if err != nil {
			return storage.ReadError(err, "escalation")
		}
		if err := esc.CanStartReview(officerID); err != nil {
			return err
		}
		before := *esc
		esc.ApplyStartReview(s.clock.Now())
		out = esc
		return save(ctx, tx, before, esc, domain.OfficerActor(officerID), audit.ActionEscalationReviewStart, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EscalateFurther closes the escalation in favour of a new one addressed to
// an officer with more authority than the current target. Any task hold
// moves to the new escalation.
func (s *Service) EscalateFurther(ctx context.Context, escID id.EscalationID, officerID, toOfficerID id.OfficerID,
	reason string, urgency domain.Urgency) (*domain.Escalation, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if urgency != "" && !urgency.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid urgency")
	}
	if _, err := s.authorityAbove(ctx, officerID, toOfficerID); err != nil {
		return nil, err
	}
	parent, err := s.Get(ctx, escID)
	if err != nil {
		return nil, err
	}

	var child *domain.Escalation
	err = s.runner.Run(ctx, "escalation.escalate_further", s.keys(parent), func(ctx context.Context, tx *workflow.Tx) error {
		esc, err := tx.Escalations().Get(ctx, escID)
		if err != nil {
			return storage.ReadError(err, "escalation")
		}
		if err := esc.CanEscalateFurther(officerID); err != nil {
			return err
		}
		now := s.clock.Now()
		actor := domain.OfficerActor(officerID)
		parentID := esc.ID
		child = &domain.Escalation{
			ID:            id.NewEscalationID(),
			SourceType:    esc.SourceType,
			ApplicationID: esc.ApplicationID,
			TaskID:        esc.TaskID,
			ParentID:      &parentID,
			FromOfficerID: officerID,
			ToOfficerID:   toOfficerID,
			Reason:        reason,
			Urgency:       esc.Urgency,
			Status:        domain.EscalationPending,
			CreatedAt:     now,
			UpdatedAt:     now,
			Version:       1,
		}
		if urgency != "" {
			child.Urgency = urgency
		}

		before := *esc
		esc.ApplyEscalatedFurther(now)
		if err := save(ctx, tx, before, esc, actor, audit.ActionEscalationFurther, reason,
			map[string]string{"child_escalation_id": child.ID.String()}); err != nil {
			return err
		}
		if err := tx.Escalations().Create(ctx, child); err != nil {
			return storage.WriteError(err, child.ID.String(), "", "escalate_further")
		}
		err = tx.Record(ctx, audit.Change{
			EntityType: audit.EntityEscalation,
			EntityID:   child.ID.String(),
			Actor:      actor,
			Action:     audit.ActionEscalationCreated,
			Reason:     reason,
			Metadata: map[string]string{
				"source_type":          string(child.SourceType),
				"source_id":            child.SourceID(),
				"to_officer_id":        child.ToOfficerID.String(),
				"urgency":              string(child.Urgency),
				"parent_escalation_id": parentID.String(),
			},
			After: child,
			At:    now,
		})
		if err != nil {
			return err
		}
		if esc.TaskID == nil {
			return nil
		}
		t, err := tx.Tasks().Get(ctx, *esc.TaskID)
		if err != nil {
			return storage.ReadError(err, "task")
		}
		return s.tasks.MoveHoldTx(ctx, tx, t, esc.ID, child.ID, actor, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEscalationCreated(string(child.SourceType), string(child.Urgency))
	s.logger.InfoContext(ctx, "escalation raised further",
		"escalation_id", child.ID.String(),
		"parent_escalation_id", escID.String(),
		"application_id", child.ApplicationID.String(),
	)
	return child, nil
}

// Resolve closes the escalation and applies its outcome to the source. Only
// the target officer or an officer with strictly higher access may resolve.
// The escalation's own audit entry is written before the dependent mutation.
func (s *Service) Resolve(ctx context.Context, escID id.EscalationID, resolverID id.OfficerID, res Resolution) (*domain.Escalation, error) {
	resolver, err := s.directory.ActiveOfficer(ctx, resolverID)
	if err != nil {
		return nil, err
	}
	var newOwner *domain.Officer
	switch res.Outcome {
	case domain.OutcomeRecordResult:
		if !res.Result.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "record_result needs a valid task result")
		}
	case domain.OutcomeReassign:
		if res.ReassignTo == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "reassign needs a target officer")
		}
		newOwner, err = s.directory.ActiveOfficer(ctx, *res.ReassignTo)
		if err != nil {
			return nil, err
		}
	}
	current, err := s.Get(ctx, escID)
	if err != nil {
		return nil, err
	}
	target, err := s.directory.Officer(ctx, current.ToOfficerID)
	if err != nil {
		return nil, err
	}
	if resolver.ID != target.ID && resolver.AccessLevel <= target.AccessLevel {
		return nil, dErrors.New(dErrors.CodeForbidden, "resolver lacks authority over this escalation").
			WithDetails(escID.String(), string(current.Status), "resolve")
	}

	var (
		out   *domain.Escalation
		moves [][2]domain.ApplicationStatus
	)
	keys := append(s.keys(current), application.LockKey(current.ApplicationID))
	err = s.runner.Run(ctx, "escalation.resolve", keys, func(ctx context.Context, tx *workflow.Tx) error {
		moves = nil
		esc, err := tx.Escalations().Get(ctx, escID)
		if err != nil {
			return storage.ReadError(err, "escalation")
		}
		if err := esc.CanResolve(res.Outcome, strings.TrimSpace(res.Text)); err != nil {
			return err
		}
		now := s.clock.Now()
		actor := domain.OfficerActor(resolverID)
		before := *esc
		esc.ApplyResolve(resolverID, res.Outcome, res.Text, now)
		out = esc
		if err := save(ctx, tx, before, esc, actor, audit.ActionEscalationResolved, res.Text,
			map[string]string{"outcome": string(res.Outcome)}); err != nil {
			return err
		}

		if esc.SourceType == domain.SourceApplication {
			moves, err = s.applyApplicationOutcome(ctx, tx, esc, actor, res, now)
			return err
		}
		return s.applyTaskOutcome(ctx, tx, esc, actor, res, newOwner, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEscalationResolved(string(res.Outcome))
	for _, m := range moves {
		s.metrics.IncTransition(string(m[0]), string(m[1]))
	}
	s.logger.InfoContext(ctx, "escalation resolved",
		"escalation_id", escID.String(),
		"application_id", out.ApplicationID.String(),
		"outcome", string(res.Outcome),
	)
	if err := s.apps.Reevaluate(ctx, out.ApplicationID); err != nil {
		s.logger.WarnContext(ctx, "reevaluation after escalation failed",
			"application_id", out.ApplicationID.String(),
			"error", err,
		)
	}
	return out, nil
}

func (s *Service) applyTaskOutcome(ctx context.Context, tx *workflow.Tx, esc *domain.Escalation, actor domain.Actor,
	res Resolution, newOwner *domain.Officer, now time.Time) error {
	t, err := tx.Tasks().Get(ctx, *esc.TaskID)
	if err != nil {
		return storage.ReadError(err, "task")
	}
	if res.Outcome == domain.OutcomeReopen {
		return s.tasks.ReopenTx(ctx, tx, t, esc.ID, actor, res.Text, now)
	}
	if err := s.tasks.ReleaseHoldTx(ctx, tx, t, esc.ID, actor, res.Text, now); err != nil {
		return err
	}
	switch res.Outcome {
	case domain.OutcomeRecordResult:
		return s.tasks.ResolveResultTx(ctx, tx, t, *esc.ResolvedBy, res.Result, res.Findings, res.Text, now)
	case domain.OutcomeReassign:
		return s.tasks.ReassignTx(ctx, tx, t, newOwner, actor, res.Text, now)
	case domain.OutcomeReissue:
		_, err := s.tasks.ReissueTx(ctx, tx, t, actor, res.Text, now)
		return err
	}
	return nil
}

func (s *Service) applyApplicationOutcome(ctx context.Context, tx *workflow.Tx, esc *domain.Escalation, actor domain.Actor,
	res Resolution, now time.Time) ([][2]domain.ApplicationStatus, error) {
	if res.Outcome != domain.OutcomeApprove && res.Outcome != domain.OutcomeReject {
		return nil, nil
	}
	others, err := tx.Escalations().List(ctx, storage.EscalationFilter{ApplicationID: &esc.ApplicationID, OpenOnly: true})
	if err != nil {
		return nil, storage.ReadError(err, "escalations")
	}
	for _, other := range others {
		if other.ID != esc.ID {
			return nil, dErrors.New(dErrors.CodeInvalidState, "application has other open escalations").
				WithDetails(esc.ApplicationID.String(), string(esc.Status), "resolve:"+string(res.Outcome))
		}
	}
	app, err := tx.Applications().Get(ctx, esc.ApplicationID)
	if err != nil {
		return nil, storage.ReadError(err, "application")
	}
	return s.apps.DecideTx(ctx, tx, app, res.Outcome == domain.OutcomeApprove, actor, res.Text, now)
}

func (s *Service) Get(ctx context.Context, escID id.EscalationID) (*domain.Escalation, error) {
	esc, err := s.runner.Backend().Escalations().Get(ctx, escID)
	if err != nil {
		return nil, storage.ReadError(err, "escalation")
	}
	return esc, nil
}

// List returns escalations matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter storage.EscalationFilter) ([]*domain.Escalation, error) {
	list, err := s.runner.Backend().Escalations().List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list escalations")
	}
	return list, nil
}

// authorityAbove loads both officers and checks that to outranks from.
func (s *Service) authorityAbove(ctx context.Context, fromID, toID id.OfficerID) (*domain.Officer, error) {
	if fromID == toID {
		return nil, dErrors.New(dErrors.CodeInsufficientTargetAuthority, "cannot escalate to yourself")
	}
	from, err := s.directory.ActiveOfficer(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.directory.ActiveOfficer(ctx, toID)
	if err != nil {
		return nil, err
	}
	if to.AccessLevel <= from.AccessLevel {
		return nil, dErrors.New(dErrors.CodeInsufficientTargetAuthority,
			"target officer must have a higher access level than the source officer").
			WithDetails(toID.String(), "", "escalate")
	}
	return to, nil
}

func (s *Service) keys(esc *domain.Escalation) []string {
	keys := []string{LockKey(esc.ID)}
	if esc.TaskID != nil {
		keys = append(keys, task.LockKey(*esc.TaskID))
	}
	return keys
}

func save(ctx context.Context, tx *workflow.Tx, before domain.Escalation, esc *domain.Escalation,
	actor domain.Actor, action, reason string, metadata map[string]string) error {
	esc.Version = before.Version + 1
	if err := tx.Escalations().Update(ctx, esc); err != nil {
		return storage.WriteError(err, esc.ID.String(), string(before.Status), action)
	}
	return tx.Record(ctx, audit.Change{
		EntityType: audit.EntityEscalation,
		EntityID:   esc.ID.String(),
		Actor:      actor,
		Action:     action,
		Reason:     reason,
		Metadata:   metadata,
		Before:     before,
		After:      esc,
		At:         esc.UpdatedAt,
	})
}
