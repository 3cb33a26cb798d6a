// Package comment keeps the append-only discussion thread of an application.
package comment

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/storage"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/clock"
)

const maxTextLength = 10000

// Directory resolves the access level of officers.
type Directory interface {
	ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
}

type Service struct {
	runner    *workflow.Runner
	directory Directory
	clock     clock.Clock
	logger    *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(runner *workflow.Runner, dir Directory, opts ...Option) *Service {
	s := &Service{
		runner:    runner,
		directory: dir,
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRequest is a new comment. Visibility is the minimum officer access
// level that may read it.
type AddRequest struct {
	ApplicationID id.ApplicationID
	TaskID        *id.TaskID
	Text          string
	Internal      bool
	Visibility    int
	Flagged       bool
}

// Add appends a comment. Officers cannot hide a comment above their own
// access level; applicants only post external comments on their own
// application.
func (s *Service) Add(ctx context.Context, req AddRequest, actor domain.Actor) (*domain.Comment, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "comment text is required")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return nil, dErrors.New(dErrors.CodeValidation, "comment text is too long")
	}
	if req.Visibility < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "visibility cannot be negative")
	}
	switch actor.Type {
	case domain.ActorOfficer:
		level, err := s.accessLevel(ctx, actor)
		if err != nil {
			return nil, err
		}
		if req.Visibility > level {
			return nil, dErrors.New(dErrors.CodeForbidden, "visibility exceeds the author's access level")
		}
	case domain.ActorApplicant:
		if req.Internal || req.Visibility > 0 || req.Flagged {
			return nil, dErrors.New(dErrors.CodeForbidden, "applicants may only post external comments")
		}
	case domain.ActorSystem:
	default:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown author")
	}

	c := &domain.Comment{
		ID:            id.NewCommentID(),
		ApplicationID: req.ApplicationID,
		TaskID:        req.TaskID,
		AuthorID:      actor.ID,
		AuthorType:    actor.Type,
		Text:          text,
		Internal:      req.Internal,
		Visibility:    req.Visibility,
		Flagged:       req.Flagged,
		CreatedAt:     s.clock.Now(),
	}
	err := s.runner.Run(ctx, "comment.add", nil, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, req.ApplicationID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		if actor.Type == domain.ActorApplicant && actor.ID != app.ApplicantEmail {
			return dErrors.New(dErrors.CodeForbidden, "applicants may only comment on their own application")
		}
		if req.TaskID != nil {
			t, err := tx.Tasks().Get(ctx, *req.TaskID)
			if err != nil {
				return storage.ReadError(err, "task")
			}
			if t.ApplicationID != app.ID {
				return dErrors.New(dErrors.CodeValidation, "task does not belong to the application")
			}
		}
		if err := tx.Comments().Create(ctx, c); err != nil {
			return storage.WriteError(err, c.ID.String(), "", "comment")
		}
		meta := map[string]string{"application_id": app.ID.String()}
		if c.Internal {
			meta["internal"] = "true"
		}
		if c.Flagged {
			meta["flagged"] = "true"
		}
		return tx.Record(ctx, audit.Change{
			EntityType: audit.EntityComment,
			EntityID:   c.ID.String(),
			Actor:      actor,
			Action:     audit.ActionCommentAdded,
			Metadata:   meta,
			After:      c,
			At:         c.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	if c.Flagged {
		s.logger.WarnContext(ctx, "flagged comment added",
			"comment_id", c.ID.String(),
			"application_id", c.ApplicationID.String(),
			"author_id", c.AuthorID,
		)
	}
	return c, nil
}

// List returns the comments the reader may see, oldest first.
func (s *Service) List(ctx context.Context, appID id.ApplicationID, reader domain.Actor) ([]*domain.Comment, error) {
	app, err := s.runner.Backend().Applications().Get(ctx, appID)
	if err != nil {
		return nil, storage.ReadError(err, "application")
	}
	level := 0
	switch reader.Type {
	case domain.ActorOfficer:
		if level, err = s.accessLevel(ctx, reader); err != nil {
			return nil, err
		}
	case domain.ActorApplicant:
		if reader.ID != app.ApplicantEmail {
			return nil, dErrors.New(dErrors.CodeForbidden, "applicants may only read their own application")
		}
	}
	all, err := s.runner.Backend().Comments().ListByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list comments")
	}
	visible := make([]*domain.Comment, 0, len(all))
	for _, c := range all {
		if c.VisibleTo(reader.Type, level) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (s *Service) accessLevel(ctx context.Context, actor domain.Actor) (int, error) {
	officerID, ok := actor.OfficerID()
	if !ok {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid officer identity")
	}
	officer, err := s.directory.ActiveOfficer(ctx, officerID)
	if err != nil {
		return 0, err
	}
	return officer.AccessLevel, nil
}
