package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	dErrors "vetting/pkg/domain-errors"
)

// Reader loads recorded history.
type Reader interface {
	ListByEntity(ctx context.Context, entityID string) ([]Entry, error)
	ListSince(ctx context.Context, afterSeq int64, limit int) ([]Entry, error)
}

// Service exposes read, verification and replay over the audit log. Writes
// go through Record inside the mutating transaction.
type Service struct {
	reader Reader
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(reader Reader, opts ...Option) *Service {
	s := &Service{reader: reader, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadHistory returns the entity's entries in order.
func (s *Service) ReadHistory(ctx context.Context, entityID string) ([]Entry, error) {
	if entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	entries, err := s.reader.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit history")
	}
	return entries, nil
}

// ReadLog pages through all entries in global commit order.
func (s *Service) ReadLog(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	entries, err := s.reader.ListSince(ctx, afterSeq, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return entries, nil
}

// Verify checks the entity's hash chain.
func (s *Service) Verify(ctx context.Context, entityID string) error {
	entries, err := s.ReadHistory(ctx, entityID)
	if err != nil {
		return err
	}
	if err := VerifyChain(entries); err != nil {
		s.logger.ErrorContext(ctx, "audit chain verification failed",
			"entity_id", entityID,
			"error", err,
		)
		var ce *ChainError
		if errors.As(err, &ce) {
			return dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "audit chain is broken").
				WithDetails(entityID, "", "verify")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify audit chain")
	}
	return nil
}

// Replay reconstructs the entity's current state from its history and
// decodes it into out.
func (s *Service) Replay(ctx context.Context, entityID string, out any) error {
	entries, err := s.ReadHistory(ctx, entityID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return dErrors.New(dErrors.CodeNotFound, "no audit history for entity")
	}
	snapshot, err := Replay(entries)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "audit chain is broken").
			WithDetails(entityID, "", "replay")
	}
	if err := json.Unmarshal(snapshot, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode replayed state")
	}
	return nil
}
