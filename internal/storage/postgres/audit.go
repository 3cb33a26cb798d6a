package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/pkg/platform/tx"
)

type auditStore struct {
	q tx.Executor
}

const auditColumns = `seq, id, entity_type, entity_id, entity_seq, actor_id, actor_type, action,
	previous, next, reason, metadata, occurred_at, prev_hash, hash`

// Append chains the entry onto the entity's current head. A concurrent
// append to the same head trips the (entity_id, entity_seq) constraint and
// surfaces as sentinel.ErrConflict.
func (s *auditStore) Append(ctx context.Context, e *audit.Entry) error {
	head, err := s.head(ctx, e.EntityID)
	if err != nil {
		return err
	}
	if err := audit.Chain(e, head); err != nil {
		return err
	}
	var metadata any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = b
	}
	query := `INSERT INTO audit_entries (id, entity_type, entity_id, entity_seq, actor_id, actor_type, action,
			previous, next, reason, metadata, occurred_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq`
	err = s.q.QueryRowContext(ctx, query,
		e.ID,
		string(e.EntityType),
		e.EntityID,
		e.EntitySeq,
		e.ActorID,
		string(e.ActorType),
		e.Action,
		nullableJSON(e.Previous),
		[]byte(e.Next),
		e.Reason,
		metadata,
		e.Timestamp.UTC(),
		e.PrevHash,
		e.Hash,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", classify(err))
	}
	return nil
}

func (s *auditStore) head(ctx context.Context, entityID string) (*audit.Entry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE entity_id = $1 ORDER BY entity_seq DESC LIMIT 1`
	e, err := scanEntry(s.q.QueryRowContext(ctx, query, entityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load audit head: %w", classify(err))
	}
	return e, nil
}

func (s *auditStore) ListByEntity(ctx context.Context, entityID string) ([]audit.Entry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE entity_id = $1 ORDER BY entity_seq`
	return s.list(ctx, query, entityID)
}

func (s *auditStore) ListSince(ctx context.Context, afterSeq int64, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE seq > $1 ORDER BY seq LIMIT $2`
	return s.list(ctx, query, afterSeq, limit)
}

func (s *auditStore) list(ctx context.Context, query string, args ...any) ([]audit.Entry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", classify(err))
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		e                    audit.Entry
		entryID              uuid.UUID
		entityType, actorTyp string
		previous, next, meta []byte
	)
	err := row.Scan(
		&e.Seq,
		&entryID,
		&entityType,
		&e.EntityID,
		&e.EntitySeq,
		&e.ActorID,
		&actorTyp,
		&e.Action,
		&previous,
		&next,
		&e.Reason,
		&meta,
		&e.Timestamp,
		&e.PrevHash,
		&e.Hash,
	)
	if err != nil {
		return nil, err
	}
	e.ID = entryID
	e.EntityType = audit.EntityType(entityType)
	e.ActorType = domain.ActorType(actorTyp)
	e.Timestamp = e.Timestamp.UTC()
	if e.Previous, err = canonicalJSON(previous); err != nil {
		return nil, fmt.Errorf("decode previous snapshot: %w", err)
	}
	if e.Next, err = canonicalJSON(next); err != nil {
		return nil, fmt.Errorf("decode next snapshot: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}
