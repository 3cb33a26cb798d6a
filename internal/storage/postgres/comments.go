package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/tx"
)

type commentStore struct {
	q tx.Executor
}

func (s *commentStore) Create(ctx context.Context, c *domain.Comment) error {
	query := `INSERT INTO comments (id, application_id, task_id, author_id, author_type, text, internal, visibility, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.q.ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.ApplicationID),
		nullableID(c.TaskID),
		c.AuthorID,
		string(c.AuthorType),
		c.Text,
		c.Internal,
		c.Visibility,
		c.Flagged,
		c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", classify(err))
	}
	return nil
}

func (s *commentStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Comment, error) {
	query := `SELECT id, application_id, task_id, author_id, author_type, text, internal, visibility, flagged, created_at
		FROM comments WHERE application_id = $1 ORDER BY created_at, id`
	rows, err := s.q.QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Comment
	for rows.Next() {
		var (
			c             domain.Comment
			commentID, ap uuid.UUID
			taskID        uuid.NullUUID
			authorType    string
		)
		if err := rows.Scan(&commentID, &ap, &taskID, &c.AuthorID, &authorType, &c.Text,
			&c.Internal, &c.Visibility, &c.Flagged, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.ID = id.CommentID(commentID)
		c.ApplicationID = id.ApplicationID(ap)
		c.TaskID = idPtr[id.TaskID](taskID)
		c.AuthorType = domain.ActorType(authorType)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}
