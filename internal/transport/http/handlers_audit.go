package httptransport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vetting/internal/audit"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
)

type AuditService interface {
	ReadHistory(ctx context.Context, entityID string) ([]audit.Entry, error)
	ReadLog(ctx context.Context, afterSeq int64, limit int) ([]audit.Entry, error)
	Verify(ctx context.Context, entityID string) error
}

func (h *Handler) handleReadLog(w http.ResponseWriter, r *http.Request) {
	if _, err := officer(r); err != nil {
		h.fail(w, r, "audit read rejected", err)
		return
	}
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			h.fail(w, r, "audit read rejected", dErrors.New(dErrors.CodeValidation, "invalid after"))
			return
		}
		after = n
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "audit read rejected", err)
		return
	}
	entries, err := h.audit.ReadLog(r.Context(), after, limit)
	if err != nil {
		h.fail(w, r, "failed to read audit log", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(entries))
}

func (h *Handler) handleReadHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := officer(r); err != nil {
		h.fail(w, r, "audit read rejected", err)
		return
	}
	entries, err := h.audit.ReadHistory(r.Context(), chi.URLParam(r, "entityID"))
	if err != nil {
		h.fail(w, r, "failed to read audit history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(entries))
}

type verifyChainResponse struct {
	EntityID string `json:"entity_id"`
	Valid    bool   `json:"valid"`
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	if _, err := officer(r); err != nil {
		h.fail(w, r, "audit verification rejected", err)
		return
	}
	entityID := chi.URLParam(r, "entityID")
	if err := h.audit.Verify(r.Context(), entityID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeIntegrityFailure) {
			h.logger.ErrorContext(r.Context(), "CRITICAL: audit chain verification failed",
				"entity_id", entityID,
				"error", err,
			)
			httputil.WriteJSON(w, http.StatusOK, verifyChainResponse{EntityID: entityID, Valid: false})
			return
		}
		h.fail(w, r, "failed to verify audit chain", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyChainResponse{EntityID: entityID, Valid: true})
}
