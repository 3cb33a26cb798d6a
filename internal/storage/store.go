// Package storage defines the persistence ports shared by the workflow
// services. Every mutation runs inside RunInTx so the entity write and its
// audit entry commit or roll back together.
package storage

import (
	"context"
	"time"

	"vetting/internal/audit"
	"vetting/internal/domain"
	id "vetting/pkg/domain"
)

// Update methods expect the entity's Version to be exactly one more than the
// stored version and return sentinel.ErrConflict otherwise. Create methods
// expect Version 1. Missing parents yield sentinel.ErrReferenceMissing.

type ApplicationStore interface {
	Create(ctx context.Context, app *domain.Application) error
	Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error)
	Update(ctx context.Context, app *domain.Application) error
	List(ctx context.Context, filter ApplicationFilter) ([]*domain.Application, error)
}

type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, taskID id.TaskID) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Task, error)
	CountOpenByOfficer(ctx context.Context, officerID id.OfficerID) (int, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, docID id.DocumentID) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Document, error)
	// ListExpiring returns verified documents whose expiry is at or before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Document, error)
}

type EscalationStore interface {
	Create(ctx context.Context, esc *domain.Escalation) error
	Get(ctx context.Context, escID id.EscalationID) (*domain.Escalation, error)
	Update(ctx context.Context, esc *domain.Escalation) error
	List(ctx context.Context, filter EscalationFilter) ([]*domain.Escalation, error)
}

// CommentStore is append-only.
type CommentStore interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Comment, error)
}

type AuditStore interface {
	audit.Appender
	audit.Reader
}

// Stores groups the repositories bound to one transaction (or to none).
type Stores interface {
	Applications() ApplicationStore
	Tasks() TaskStore
	Documents() DocumentStore
	Escalations() EscalationStore
	Comments() CommentStore
	Audit() AuditStore
}

// Tx runs fn atomically. Returning an error from fn rolls everything back.
type Tx interface {
	RunInTx(ctx context.Context, fn func(st Stores) error) error
}

// Backend is a store set usable for plain reads plus a transaction runner.
type Backend interface {
	Tx
	Stores
}

type ApplicationFilter struct {
	Status          domain.ApplicationStatus
	Category        domain.SubjectCategory
	Tier            domain.VettingTier
	Priority        domain.Priority
	OfficerID       *id.OfficerID
	CompanyID       *id.CompanyID
	IncludeArchived bool
	Limit           int
}

// Matches applies the filter in memory.
func (f ApplicationFilter) Matches(app *domain.Application) bool {
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	if f.Category != "" && app.Category != f.Category {
		return false
	}
	if f.Tier != "" && app.VettingTier != f.Tier {
		return false
	}
	if f.Priority != "" && app.Priority != f.Priority {
		return false
	}
	if f.OfficerID != nil {
		primary := app.PrimaryOfficerID != nil && *app.PrimaryOfficerID == *f.OfficerID
		secondary := app.SecondaryOfficerID != nil && *app.SecondaryOfficerID == *f.OfficerID
		if !primary && !secondary {
			return false
		}
	}
	if f.CompanyID != nil && (app.CompanyID == nil || *app.CompanyID != *f.CompanyID) {
		return false
	}
	if !f.IncludeArchived && app.Archived {
		return false
	}
	return true
}

type EscalationFilter struct {
	ApplicationID *id.ApplicationID
	TaskID        *id.TaskID
	ToOfficerID   *id.OfficerID
	Status        domain.EscalationStatus
	OpenOnly      bool
	Limit         int
}

func (f EscalationFilter) Matches(e *domain.Escalation) bool {
	if f.ApplicationID != nil && e.ApplicationID != *f.ApplicationID {
		return false
	}
	if f.TaskID != nil && (e.TaskID == nil || *e.TaskID != *f.TaskID) {
		return false
	}
	if f.ToOfficerID != nil && e.ToOfficerID != *f.ToOfficerID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.OpenOnly && !e.Status.IsOpen() {
		return false
	}
	return true
}
