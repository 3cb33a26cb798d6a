package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
	"vetting/pkg/requestcontext"
)

// TokenRevoker blocks an access token by its JWT ID until it would have
// expired anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
}

type revokeRequest struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *revokeRequest) Validate() error {
	r.JTI = strings.TrimSpace(r.JTI)
	if r.JTI == "" {
		return dErrors.New(dErrors.CodeValidation, "jti is required")
	}
	if r.ExpiresAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "expires_at is required")
	}
	return nil
}

type adminHandler struct {
	revoker TokenRevoker
	logger  *slog.Logger
}

func (a *adminHandler) register(r chi.Router) {
	r.Post("/revocations", a.handleRevoke)
}

func (a *adminHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[revokeRequest](w, r, a.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := a.revoker.Revoke(ctx, req.JTI, req.ExpiresAt); err != nil {
		a.logger.ErrorContext(ctx, "failed to revoke token",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token"))
		return
	}
	a.logger.InfoContext(ctx, "access token revoked", "request_id", requestID, "jti", req.JTI)
	w.WriteHeader(http.StatusNoContent)
}
