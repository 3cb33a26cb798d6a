// Package httputil holds JSON response helpers shared by HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "vetting/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// Validatable request bodies check and normalise themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body written for failed requests. Entity detail is
// included for state conflicts so clients can render an actionable message.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Category         string `json:"category,omitempty"`
	EntityID         string `json:"entity_id,omitempty"`
	State            string `json:"state,omitempty"`
	Action           string `json:"action,omitempty"`
	Retryable        bool   `json:"retryable,omitempty"`
}

// WriteError renders err using its domain code. Internal errors never leak
// their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		WriteJSON(w, status, map[string]string{"error": string(dErrors.CodeInternal)})
		return
	}
	resp := ErrorResponse{
		Error:     string(code),
		Category:  string(code.Category()),
		Retryable: dErrors.IsRetryable(err),
	}
	if de, ok := dErrors.As(err); ok {
		resp.ErrorDescription = de.Message
		resp.EntityID = de.EntityID
		resp.State = de.State
		resp.Action = de.Action
	}
	WriteJSON(w, status, resp)
}

// StatusFor maps a domain code onto an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeUnqualifiedOfficer, dErrors.CodeInsufficientTargetAuthority:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyAssigned, dErrors.CodeNotOwner, dErrors.CodeInvalidState, dErrors.CodeAlreadyVerified,
		dErrors.CodeConcurrentModification, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeDocumentsIncomplete:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
