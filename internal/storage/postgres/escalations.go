package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vetting/internal/domain"
	"vetting/internal/storage"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/tx"
)

type escalationStore struct {
	q tx.Executor
}

const escalationColumns = `id, source_type, application_id, task_id, parent_id, from_officer_id, to_officer_id,
	reason, urgency, status, outcome, resolution, resolved_by, resolved_at, created_at, updated_at, version`

func (s *escalationStore) Create(ctx context.Context, e *domain.Escalation) error {
	query := `INSERT INTO escalations (` + escalationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(e.ID),
		string(e.SourceType),
		uuid.UUID(e.ApplicationID),
		nullableID(e.TaskID),
		nullableID(e.ParentID),
		uuid.UUID(e.FromOfficerID),
		uuid.UUID(e.ToOfficerID),
		e.Reason,
		string(e.Urgency),
		string(e.Status),
		string(e.Outcome),
		e.Resolution,
		nullableID(e.ResolvedBy),
		nullableTime(e.ResolvedAt),
		e.CreatedAt.UTC(),
		e.UpdatedAt.UTC(),
		e.Version,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", classify(err))
	}
	return nil
}

func (s *escalationStore) Get(ctx context.Context, escID id.EscalationID) (*domain.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE id = $1`
	e, err := scanEscalation(s.q.QueryRowContext(ctx, query, uuid.UUID(escID)))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *escalationStore) Update(ctx context.Context, e *domain.Escalation) error {
	query := `UPDATE escalations SET
			status = $2,
			outcome = $3,
			resolution = $4,
			resolved_by = $5,
			resolved_at = $6,
			updated_at = $7,
			version = $8
		WHERE id = $1 AND version = $9`
	res, err := s.q.ExecContext(ctx, query,
		uuid.UUID(e.ID),
		string(e.Status),
		string(e.Outcome),
		e.Resolution,
		nullableID(e.ResolvedBy),
		nullableTime(e.ResolvedAt),
		e.UpdatedAt.UTC(),
		e.Version,
		e.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update escalation: %w", classify(err))
	}
	return checkVersioned(ctx, s.q, "escalations", uuid.UUID(e.ID), res)
}

func (s *escalationStore) List(ctx context.Context, filter storage.EscalationFilter) ([]*domain.Escalation, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ApplicationID != nil {
		add("application_id = $%d", uuid.UUID(*filter.ApplicationID))
	}
	if filter.TaskID != nil {
		add("task_id = $%d", uuid.UUID(*filter.TaskID))
	}
	if filter.ToOfficerID != nil {
		add("to_officer_id = $%d", uuid.UUID(*filter.ToOfficerID))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.OpenOnly {
		where = append(where, "status IN ('pending', 'in_review')")
	}

	query := `SELECT ` + escalationColumns + ` FROM escalations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEscalation(row rowScanner) (*domain.Escalation, error) {
	var (
		e                                domain.Escalation
		escID, appID, fromID, toID       uuid.UUID
		taskID, parentID, resolvedBy     uuid.NullUUID
		source, urgency, status, outcome string
		resolvedAt                       sql.NullTime
	)
	err := row.Scan(
		&escID,
		&source,
		&appID,
		&taskID,
		&parentID,
		&fromID,
		&toID,
		&e.Reason,
		&urgency,
		&status,
		&outcome,
		&e.Resolution,
		&resolvedBy,
		&resolvedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.ID = id.EscalationID(escID)
	e.SourceType = domain.SourceType(source)
	e.ApplicationID = id.ApplicationID(appID)
	e.TaskID = idPtr[id.TaskID](taskID)
	e.ParentID = idPtr[id.EscalationID](parentID)
	e.FromOfficerID = id.OfficerID(fromID)
	e.ToOfficerID = id.OfficerID(toID)
	e.Urgency = domain.Urgency(urgency)
	e.Status = domain.EscalationStatus(status)
	e.Outcome = domain.Outcome(outcome)
	e.ResolvedBy = idPtr[id.OfficerID](resolvedBy)
	e.ResolvedAt = timePtr(resolvedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
