package httptransport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"vetting/internal/document"
	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
)

type DocumentService interface {
	Upload(ctx context.Context, req document.UploadRequest, actor domain.Actor) (*domain.Document, error)
	Verify(ctx context.Context, docID id.DocumentID, officerID id.OfficerID, approve bool, notes string) (*domain.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*domain.Document, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Document, error)
}

type uploadRequest struct {
	TaskID      *id.TaskID          `json:"task_id"`
	Type        domain.DocumentType `json:"type"`
	Filename    string              `json:"filename"`
	SizeBytes   int64               `json:"size_bytes"`
	ContentHash string              `json:"content_hash"`
	ExpiresAt   *time.Time          `json:"expires_at"`
}

// Validate leaves field checks to the registry, which owns the rules.
func (r *uploadRequest) Validate() error {
	return nil
}

type verifyRequest struct {
	Approve *bool  `json:"approve"`
	Notes   string `json:"notes"`
}

func (r *verifyRequest) Validate() error {
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, r, "upload rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "upload rejected", err)
		return
	}
	req, ok := decode[uploadRequest](h, w, r)
	if !ok {
		return
	}
	doc, err := h.documents.Upload(r.Context(), document.UploadRequest{
		ApplicationID: appID,
		TaskID:        req.TaskID,
		Type:          req.Type,
		Filename:      req.Filename,
		SizeBytes:     req.SizeBytes,
		ContentHash:   req.ContentHash,
		ExpiresAt:     req.ExpiresAt,
	}, a)
	if err != nil {
		h.fail(w, r, "failed to upload document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	app, ok := h.readableApplication(w, r)
	if !ok {
		return
	}
	docs, err := h.documents.ListByApplication(r.Context(), app.ID)
	if err != nil {
		h.fail(w, r, "failed to list documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(docs))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "document read rejected", err)
		return
	}
	docID, err := pathID(r, "documentID", id.ParseDocumentID)
	if err != nil {
		h.fail(w, r, "document read rejected", err)
		return
	}
	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		h.fail(w, r, "failed to load document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	officerID, err := officer(r)
	if err != nil {
		h.fail(w, r, "document verification rejected", err)
		return
	}
	docID, err := pathID(r, "documentID", id.ParseDocumentID)
	if err != nil {
		h.fail(w, r, "document verification rejected", err)
		return
	}
	req, ok := decode[verifyRequest](h, w, r)
	if !ok {
		return
	}
	doc, err := h.documents.Verify(r.Context(), docID, officerID, *req.Approve, req.Notes)
	if err != nil {
		h.fail(w, r, "failed to verify document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
