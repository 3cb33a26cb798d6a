package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/tx"
)

type documentStore struct {
	q tx.Executor
}

const documentColumns = `id, application_id, task_id, type, filename, size_bytes, content_hash,
	uploader_role, uploaded_by, status, verified_by, verified_at, notes, expires_at,
	uploaded_at, updated_at, version`

func (s *documentStore) Create(ctx context.Context, d *domain.Document) error {
	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.ApplicationID),
		nullableID(d.TaskID),
		string(d.Type),
		d.Filename,
		d.SizeBytes,
		d.ContentHash,
		string(d.UploaderRole),
		d.UploadedBy,
		string(d.Status),
		nullableID(d.VerifiedBy),
		nullableTime(d.VerifiedAt),
		d.Notes,
		nullableTime(d.ExpiresAt),
		d.UploadedAt.UTC(),
		d.UpdatedAt.UTC(),
		d.Version,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", classify(err))
	}
	return nil
}

func (s *documentStore) Get(ctx context.Context, docID id.DocumentID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(s.q.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func (s *documentStore) Update(ctx context.Context, d *domain.Document) error {
	query := `UPDATE documents SET
			status = $2,
			verified_by = $3,
			verified_at = $4,
			notes = $5,
			updated_at = $6,
			version = $7
		WHERE id = $1 AND version = $8`
	res, err := s.q.ExecContext(ctx, query,
		uuid.UUID(d.ID),
		string(d.Status),
		nullableID(d.VerifiedBy),
		nullableTime(d.VerifiedAt),
		d.Notes,
		d.UpdatedAt.UTC(),
		d.Version,
		d.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", classify(err))
	}
	return checkVersioned(ctx, s.q, "documents", uuid.UUID(d.ID), res)
}

func (s *documentStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE application_id = $1 ORDER BY uploaded_at, id`
	return s.list(ctx, query, uuid.UUID(appID))
}

func (s *documentStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status = 'verified' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, query, now.UTC(), limit)
}

func (s *documentStore) list(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		d                     domain.Document
		docID, appID          uuid.UUID
		taskID, verifiedBy    uuid.NullUUID
		docType, role, status string
		verifiedAt, expiresAt sql.NullTime
	)
	err := row.Scan(
		&docID,
		&appID,
		&taskID,
		&docType,
		&d.Filename,
		&d.SizeBytes,
		&d.ContentHash,
		&role,
		&d.UploadedBy,
		&status,
		&verifiedBy,
		&verifiedAt,
		&d.Notes,
		&expiresAt,
		&d.UploadedAt,
		&d.UpdatedAt,
		&d.Version,
	)
	if err != nil {
		return nil, err
	}
	d.ID = id.DocumentID(docID)
	d.ApplicationID = id.ApplicationID(appID)
	d.TaskID = idPtr[id.TaskID](taskID)
	d.Type = domain.DocumentType(docType)
	d.UploaderRole = domain.UploaderRole(role)
	d.Status = domain.DocumentStatus(status)
	d.VerifiedBy = idPtr[id.OfficerID](verifiedBy)
	d.VerifiedAt = timePtr(verifiedAt)
	d.ExpiresAt = timePtr(expiresAt)
	d.UploadedAt = d.UploadedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}
