// Package postgres is the PostgreSQL storage backend. It works with either
// the lib/pq or the pgx stdlib driver behind database/sql.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"vetting/internal/storage"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/sentinel"
	"vetting/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const defaultTxTimeout = 5 * time.Second

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Backend implements storage.Backend over a *sql.DB.
type Backend struct {
	db      *sql.DB
	timeout time.Duration
}

type Option func(*Backend)

func WithTxTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.timeout = d
	}
}

func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ storage.Backend = (*Backend)(nil)

func (b *Backend) RunInTx(ctx context.Context, fn func(st storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(stores{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

func (b *Backend) Applications() storage.ApplicationStore { return stores{q: b.db}.Applications() }
func (b *Backend) Tasks() storage.TaskStore               { return stores{q: b.db}.Tasks() }
func (b *Backend) Documents() storage.DocumentStore       { return stores{q: b.db}.Documents() }
func (b *Backend) Escalations() storage.EscalationStore   { return stores{q: b.db}.Escalations() }
func (b *Backend) Comments() storage.CommentStore         { return stores{q: b.db}.Comments() }
func (b *Backend) Audit() storage.AuditStore              { return stores{q: b.db}.Audit() }

// stores binds every repository to one executor: the pool or a transaction.
type stores struct {
	q tx.Executor
}

func (s stores) Applications() storage.ApplicationStore { return &applicationStore{q: s.q} }
func (s stores) Tasks() storage.TaskStore               { return &taskStore{q: s.q} }
func (s stores) Documents() storage.DocumentStore       { return &documentStore{q: s.q} }
func (s stores) Escalations() storage.EscalationStore   { return &escalationStore{q: s.q} }
func (s stores) Comments() storage.CommentStore         { return &commentStore{q: s.q} }
func (s stores) Audit() storage.AuditStore              { return &auditStore{q: s.q} }

const auditSeqConstraint = "audit_entries_entity_seq_key"

// classify maps driver errors onto storage sentinels, keeping the original
// error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code, constraint := pgCode(err)
	switch code {
	case "23505":
		if constraint == auditSeqConstraint {
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		}
		return fmt.Errorf("%w: %w", sentinel.ErrDuplicate, err)
	case "23503":
		return fmt.Errorf("%w: %w", sentinel.ErrReferenceMissing, err)
	case "40001", "40P01":
		return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
	case "08000", "08003", "08006", "57P01":
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

func pgCode(err error) (code, constraint string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// checkVersioned interprets a versioned UPDATE that touched no rows.
func checkVersioned(ctx context.Context, q tx.Executor, table string, key any, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, classify(err))
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return classify(err)
}
