package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vetting/internal/directory"
	"vetting/internal/domain"
	id "vetting/pkg/domain"
)

// DirectoryStore keeps officers and companies in the same database as the
// workflow tables.
type DirectoryStore struct {
	db *sql.DB
}

func NewDirectoryStore(db *sql.DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

var _ directory.Store = (*DirectoryStore)(nil)

const officerColumns = `id, company_id, name, email, access_level, clearance, specializations, active`

func (s *DirectoryStore) Officer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+officerColumns+` FROM officers WHERE id = $1`, uuid.UUID(officerID))
	o, err := scanOfficer(row)
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *DirectoryStore) Company(ctx context.Context, companyID id.CompanyID) (*domain.Company, error) {
	var (
		c          domain.Company
		rawID      uuid.UUID
		categories []string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, categories, active FROM companies WHERE id = $1`, uuid.UUID(companyID)).
		Scan(&rawID, &c.Name, pq.Array(&categories), &c.Active)
	if err != nil {
		return nil, notFound(err)
	}
	c.ID = id.CompanyID(rawID)
	c.Categories = typedOf[domain.SubjectCategory](categories)
	return &c, nil
}

func (s *DirectoryStore) ListOfficers(ctx context.Context, companyID *id.CompanyID) ([]*domain.Officer, error) {
	query := `SELECT ` + officerColumns + ` FROM officers WHERE ($1::uuid IS NULL OR company_id = $1) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, nullableID(companyID))
	if err != nil {
		return nil, fmt.Errorf("list officers: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Officer
	for rows.Next() {
		o, err := scanOfficer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan officer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *DirectoryStore) SaveOfficer(ctx context.Context, o *domain.Officer) error {
	query := `INSERT INTO officers (` + officerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			access_level = EXCLUDED.access_level,
			clearance = EXCLUDED.clearance,
			specializations = EXCLUDED.specializations,
			active = EXCLUDED.active`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(o.ID),
		uuid.UUID(o.CompanyID),
		o.Name,
		o.Email,
		o.AccessLevel,
		int(o.Clearance),
		pq.Array(stringsOf(o.Specializations)),
		o.Active,
	)
	if err != nil {
		return fmt.Errorf("save officer: %w", classify(err))
	}
	return nil
}

func (s *DirectoryStore) SaveCompany(ctx context.Context, c *domain.Company) error {
	query := `INSERT INTO companies (id, name, categories, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			categories = EXCLUDED.categories,
			active = EXCLUDED.active`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.Name,
		pq.Array(stringsOf(c.Categories)),
		c.Active,
	)
	if err != nil {
		return fmt.Errorf("save company: %w", classify(err))
	}
	return nil
}

func scanOfficer(row rowScanner) (*domain.Officer, error) {
	var (
		o               domain.Officer
		rawID, company  uuid.UUID
		clearance       int
		specializations []string
	)
	if err := row.Scan(&rawID, &company, &o.Name, &o.Email, &o.AccessLevel, &clearance,
		pq.Array(&specializations), &o.Active); err != nil {
		return nil, err
	}
	o.ID = id.OfficerID(rawID)
	o.CompanyID = id.CompanyID(company)
	o.Clearance = domain.ClearanceLevel(clearance)
	o.Specializations = typedOf[domain.TaskType](specializations)
	return &o, nil
}
