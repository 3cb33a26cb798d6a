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

type applicationStore struct {
	q tx.Executor
}

const applicationColumns = `id, applicant_email, category, sub_type, status, priority, vetting_tier,
	company_id, primary_officer_id, secondary_officer_id, payload, estimated_completion_at,
	completed_at, archived, created_at, updated_at, version`

func (s *applicationStore) Create(ctx context.Context, app *domain.Application) error {
	query := `INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(app.ID),
		app.ApplicantEmail,
		string(app.Category),
		app.SubType,
		string(app.Status),
		string(app.Priority),
		string(app.VettingTier),
		nullableID(app.CompanyID),
		nullableID(app.PrimaryOfficerID),
		nullableID(app.SecondaryOfficerID),
		payloadOrEmpty(app.Payload),
		app.EstimatedCompletionAt.UTC(),
		nullableTime(app.CompletedAt),
		app.Archived,
		app.CreatedAt.UTC(),
		app.UpdatedAt.UTC(),
		app.Version,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", classify(err))
	}
	return nil
}

func (s *applicationStore) Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(s.q.QueryRowContext(ctx, query, uuid.UUID(appID)))
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

func (s *applicationStore) Update(ctx context.Context, app *domain.Application) error {
	query := `UPDATE applications SET
			status = $2,
			primary_officer_id = $3,
			secondary_officer_id = $4,
			completed_at = $5,
			archived = $6,
			updated_at = $7,
			version = $8
		WHERE id = $1 AND version = $9`
	res, err := s.q.ExecContext(ctx, query,
		uuid.UUID(app.ID),
		string(app.Status),
		nullableID(app.PrimaryOfficerID),
		nullableID(app.SecondaryOfficerID),
		nullableTime(app.CompletedAt),
		app.Archived,
		app.UpdatedAt.UTC(),
		app.Version,
		app.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", classify(err))
	}
	return checkVersioned(ctx, s.q, "applications", uuid.UUID(app.ID), res)
}

func (s *applicationStore) List(ctx context.Context, filter storage.ApplicationFilter) ([]*domain.Application, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.Tier != "" {
		add("vetting_tier = $%d", string(filter.Tier))
	}
	if filter.Priority != "" {
		add("priority = $%d", string(filter.Priority))
	}
	if filter.OfficerID != nil {
		args = append(args, uuid.UUID(*filter.OfficerID))
		n := len(args)
		where = append(where, fmt.Sprintf("(primary_officer_id = $%d OR secondary_officer_id = $%d)", n, n))
	}
	if filter.CompanyID != nil {
		add("company_id = $%d", uuid.UUID(*filter.CompanyID))
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = FALSE")
	}

	query := `SELECT ` + applicationColumns + ` FROM applications`
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
		return nil, fmt.Errorf("list applications: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func payloadOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte(`{}`)
	}
	return b
}

func scanApplication(row rowScanner) (*domain.Application, error) {
	var (
		app                          domain.Application
		appID                        uuid.UUID
		category, status, prio, tier string
		companyID, primary, second   uuid.NullUUID
		payload                      []byte
		completedAt                  sql.NullTime
	)
	err := row.Scan(
		&appID,
		&app.ApplicantEmail,
		&category,
		&app.SubType,
		&status,
		&prio,
		&tier,
		&companyID,
		&primary,
		&second,
		&payload,
		&app.EstimatedCompletionAt,
		&completedAt,
		&app.Archived,
		&app.CreatedAt,
		&app.UpdatedAt,
		&app.Version,
	)
	if err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.Category = domain.SubjectCategory(category)
	app.Status = domain.ApplicationStatus(status)
	app.Priority = domain.Priority(prio)
	app.VettingTier = domain.VettingTier(tier)
	app.CompanyID = idPtr[id.CompanyID](companyID)
	app.PrimaryOfficerID = idPtr[id.OfficerID](primary)
	app.SecondaryOfficerID = idPtr[id.OfficerID](second)
	app.CompletedAt = timePtr(completedAt)
	app.EstimatedCompletionAt = app.EstimatedCompletionAt.UTC()
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	if app.Payload, err = canonicalJSON(payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &app, nil
}
