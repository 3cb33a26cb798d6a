// Package document is the registry of uploaded evidence metadata. File
// bytes live elsewhere; the registry keeps type, size, content hash and the
// verification decision.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"vetting/internal/application"
	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/clock"
)

// MaxSizeBytes bounds a single uploaded file.
const MaxSizeBytes = 50 << 20

// Directory resolves verifying officers.
type Directory interface {
	ActiveOfficer(ctx context.Context, officerID id.OfficerID) (*domain.Officer, error)
}

// Reevaluator recomputes an application's status after its documents change.
type Reevaluator interface {
	Reevaluate(ctx context.Context, appID id.ApplicationID) error
}

type Service struct {
	runner      *workflow.Runner
	directory   Directory
	reevaluator Reevaluator
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithReevaluator(r Reevaluator) Option {
	return func(s *Service) {
		s.reevaluator = r
	}
}

func NewService(runner *workflow.Runner, dir Directory, opts ...Option) *Service {
	s := &Service{
		runner:    runner,
		directory: dir,
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func LockKey(docID id.DocumentID) string {
	return lock.Key("document", docID.String())
}

// UploadRequest is the metadata of an uploaded file. The uploader role is
// taken from the acting principal.
type UploadRequest struct {
	ApplicationID id.ApplicationID
	TaskID        *id.TaskID
	Type          domain.DocumentType
	Filename      string
	SizeBytes     int64
	// ContentHash is the hex SHA-256 of the file bytes.
	ContentHash string
	ExpiresAt   *time.Time
}

func (r *UploadRequest) Validate() error {
	r.Filename = strings.TrimSpace(r.Filename)
	r.ContentHash = strings.ToLower(strings.TrimSpace(r.ContentHash))
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid document type")
	}
	if r.Filename == "" {
		return dErrors.New(dErrors.CodeValidation, "filename is required")
	}
	if path.Base(r.Filename) != r.Filename || strings.ContainsAny(r.Filename, `\`) {
		return dErrors.New(dErrors.CodeValidation, "filename must not contain a path")
	}
	if r.SizeBytes <= 0 || r.SizeBytes > MaxSizeBytes {
		return dErrors.New(dErrors.CodeValidation, "size must be between 1 byte and 50 MiB")
	}
	if !govalidator.IsSHA256(r.ContentHash) {
		return dErrors.New(dErrors.CodeValidation, "content hash must be a hex sha256 digest")
	}
	return nil
}

func uploaderRole(actor domain.Actor) (domain.UploaderRole, error) {
	switch actor.Type {
	case domain.ActorApplicant:
		return domain.UploaderApplicant, nil
	case domain.ActorOfficer:
		return domain.UploaderOfficer, nil
	case domain.ActorSystem:
		return domain.UploaderSystem, nil
	}
	return "", dErrors.New(dErrors.CodeUnauthorized, "unknown uploader")
}

// Upload records a pending document. Task documents must belong to a task of
// the same application.
func (s *Service) Upload(ctx context.Context, req UploadRequest, actor domain.Actor) (*domain.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	role, err := uploaderRole(actor)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if req.ExpiresAt != nil && !now.Before(*req.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}
	doc := &domain.Document{
		ID:            id.NewDocumentID(),
		ApplicationID: req.ApplicationID,
		TaskID:        req.TaskID,
		Type:          req.Type,
		Filename:      req.Filename,
		SizeBytes:     req.SizeBytes,
		ContentHash:   req.ContentHash,
		UploaderRole:  role,
		UploadedBy:    actor.ID,
		Status:        domain.DocumentPending,
		ExpiresAt:     req.ExpiresAt,
		UploadedAt:    now,
		UpdatedAt:     now,
		Version:       1,
	}

	err = s.runner.Run(ctx, "document.upload", []string{application.LockKey(req.ApplicationID)}, func(ctx context.Context, tx *workflow.Tx) error {
		app, err := tx.Applications().Get(ctx, req.ApplicationID)
		if err != nil {
			return storage.ReadError(err, "application")
		}
		if app.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidState, "application is closed").
				WithDetails(app.ID.String(), string(app.Status), "upload")
		}
		if actor.Type == domain.ActorApplicant && actor.ID != app.ApplicantEmail {
			return dErrors.New(dErrors.CodeForbidden, "applicants may only upload to their own application")
		}
		if req.TaskID != nil {
			t, err := tx.Tasks().Get(ctx, *req.TaskID)
			if err != nil {
				return storage.ReadError(err, "task")
			}
			if t.ApplicationID != app.ID {
				return dErrors.New(dErrors.CodeValidation, "task does not belong to the application")
			}
		}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return storage.WriteError(err, doc.ID.String(), "", "upload")
		}
		meta := map[string]string{"document_type": string(doc.Type)}
		if doc.TaskID != nil {
			meta["task_id"] = doc.TaskID.String()
		}
		return tx.Record(ctx, audit.Change{
			EntityType: audit.EntityDocument,
			EntityID:   doc.ID.String(),
			Actor:      actor,
			Action:     audit.ActionDocumentUploaded,
			Metadata:   meta,
			After:      doc,
			At:         now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncDocumentUploaded()
	s.logger.InfoContext(ctx, "document uploaded",
		"document_id", doc.ID.String(),
		"application_id", doc.ApplicationID.String(),
		"document_type", string(doc.Type),
	)
	s.reevaluate(ctx, doc.ApplicationID)
	return doc, nil
}

// Verify records an officer's decision on a pending document. A document is
// decided once.
func (s *Service) Verify(ctx context.Context, docID id.DocumentID, officerID id.OfficerID, approve bool, notes string) (*domain.Document, error) {
	if _, err := s.directory.ActiveOfficer(ctx, officerID); err != nil {
		return nil, err
	}
	if !approve && strings.TrimSpace(notes) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "notes are required when rejecting a document")
	}
	var out *domain.Document
	err := s.runner.Run(ctx, "document.verify", []string{LockKey(docID)}, func(ctx context.Context, tx *workflow.Tx) error {
		doc, err := tx.Documents().Get(ctx, docID)
		if err != nil {
			return storage.ReadError(err, "document")
		}
		if err := doc.CanVerify(approve, s.clock.Now()); err != nil {
			return err
		}
		before := *doc
		doc.ApplyVerification(officerID, approve, notes, s.clock.Now())
		out = doc
		action := audit.ActionDocumentRejected
		if approve {
			action = audit.ActionDocumentVerified
		}
		return save(ctx, tx, before, doc, domain.OfficerActor(officerID), action, notes)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document decided",
		"document_id", docID.String(),
		"status", string(out.Status),
	)
	s.reevaluate(ctx, out.ApplicationID)
	return out, nil
}

func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*domain.Document, error) {
	doc, err := s.runner.Backend().Documents().Get(ctx, docID)
	if err != nil {
		return nil, storage.ReadError(err, "document")
	}
	return doc, nil
}

// ListByApplication returns the application's documents in upload order.
func (s *Service) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Document, error) {
	if _, err := s.runner.Backend().Applications().Get(ctx, appID); err != nil {
		return nil, storage.ReadError(err, "application")
	}
	docs, err := s.runner.Backend().Documents().ListByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// MatchesContent reports whether content hashes to the recorded digest.
func (s *Service) MatchesContent(ctx context.Context, docID id.DocumentID, content []byte) (bool, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]) == doc.ContentHash, nil
}

func (s *Service) reevaluate(ctx context.Context, appID id.ApplicationID) {
	if s.reevaluator == nil {
		return
	}
	if err := s.reevaluator.Reevaluate(ctx, appID); err != nil {
		s.logger.WarnContext(ctx, "application reevaluation failed after document change",
			"application_id", appID.String(),
			"error", err,
		)
	}
}

func save(ctx context.Context, tx *workflow.Tx, before domain.Document, doc *domain.Document,
	actor domain.Actor, action, reason string) error {
	doc.Version = before.Version + 1
	if err := tx.Documents().Update(ctx, doc); err != nil {
		return storage.WriteError(err, doc.ID.String(), string(before.Status), action)
	}
	return tx.Record(ctx, audit.Change{
		EntityType: audit.EntityDocument,
		EntityID:   doc.ID.String(),
		Actor:      actor,
		Action:     action,
		Reason:     reason,
		Before:     before,
		After:      doc,
		At:         doc.UpdatedAt,
	})
}
