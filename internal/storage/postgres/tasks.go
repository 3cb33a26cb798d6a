package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/tx"
)

type taskStore struct {
	q tx.Executor
}

const taskColumns = `id, application_id, type, description, required_documents, mandatory, min_clearance,
	assigned_officer_id, status, priority, result, findings, skip_reason, held_by, superseded_by,
	due_at, started_at, completed_at, created_at, updated_at, version`

func (s *taskStore) Create(ctx context.Context, t *domain.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `, type_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(t.ID),
		uuid.UUID(t.ApplicationID),
		string(t.Type),
		t.Description,
		pq.Array(stringsOf(t.RequiredDocuments)),
		t.Mandatory,
		int(t.MinClearance),
		nullableID(t.AssignedOfficerID),
		string(t.Status),
		string(t.Priority),
		nullableResult(t.Result),
		nullableJSON(t.Findings),
		t.SkipReason,
		nullableID(t.HeldBy),
		nullableID(t.SupersededBy),
		t.DueAt.UTC(),
		nullableTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
		t.Version,
		t.Type.Rank(),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", classify(err))
	}
	return nil
}

func (s *taskStore) Get(ctx context.Context, taskID id.TaskID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.q.QueryRowContext(ctx, query, uuid.UUID(taskID)))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *taskStore) Update(ctx context.Context, t *domain.Task) error {
	query := `UPDATE tasks SET
			assigned_officer_id = $2,
			status = $3,
			result = $4,
			findings = $5,
			skip_reason = $6,
			held_by = $7,
			superseded_by = $8,
			started_at = $9,
			completed_at = $10,
			updated_at = $11,
			version = $12
		WHERE id = $1 AND version = $13`
	res, err := s.q.ExecContext(ctx, query,
		uuid.UUID(t.ID),
		nullableID(t.AssignedOfficerID),
		string(t.Status),
		nullableResult(t.Result),
		nullableJSON(t.Findings),
		t.SkipReason,
		nullableID(t.HeldBy),
		nullableID(t.SupersededBy),
		nullableTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		t.UpdatedAt.UTC(),
		t.Version,
		t.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", classify(err))
	}
	return checkVersioned(ctx, s.q, "tasks", uuid.UUID(t.ID), res)
}

func (s *taskStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE application_id = $1 ORDER BY created_at, type_rank, id`
	rows, err := s.q.QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *taskStore) CountOpenByOfficer(ctx context.Context, officerID id.OfficerID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE assigned_officer_id = $1 AND status IN ('pending', 'in_progress')`,
		uuid.UUID(officerID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count officer tasks: %w", classify(err))
	}
	return n, nil
}

func nullableResult(r *domain.TaskResult) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                           domain.Task
		taskID, appID               uuid.UUID
		taskType, status, prio      string
		docs                        []string
		clearance                   int
		owner, heldBy, supersededBy uuid.NullUUID
		result                      sql.NullString
		findings                    []byte
		startedAt, completedAt      sql.NullTime
	)
	err := row.Scan(
		&taskID,
		&appID,
		&taskType,
		&t.Description,
		pq.Array(&docs),
		&t.Mandatory,
		&clearance,
		&owner,
		&status,
		&prio,
		&result,
		&findings,
		&t.SkipReason,
		&heldBy,
		&supersededBy,
		&t.DueAt,
		&startedAt,
		&completedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.ID = id.TaskID(taskID)
	t.ApplicationID = id.ApplicationID(appID)
	t.Type = domain.TaskType(taskType)
	t.RequiredDocuments = typedOf[domain.DocumentType](docs)
	t.MinClearance = domain.ClearanceLevel(clearance)
	t.AssignedOfficerID = idPtr[id.OfficerID](owner)
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(prio)
	if result.Valid {
		r := domain.TaskResult(result.String)
		t.Result = &r
	}
	if t.Findings, err = canonicalJSON(findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	t.HeldBy = idPtr[id.EscalationID](heldBy)
	t.SupersededBy = idPtr[id.TaskID](supersededBy)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.DueAt = t.DueAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
