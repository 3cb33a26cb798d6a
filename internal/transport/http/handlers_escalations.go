package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"vetting/internal/domain"
	"vetting/internal/escalation"
	"vetting/internal/storage"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
)

type EscalationService interface {
	Escalate(ctx context.Context, req escalation.Request) (*domain.Escalation, error)
	StartReview(ctx context.Context, escID id.EscalationID, officerID id.OfficerID) (*domain.Escalation, error)
	EscalateFurther(ctx context.Context, escID id.EscalationID, officerID, toOfficerID id.OfficerID, reason string, urgency domain.Urgency) (*domain.Escalation, error)
	Resolve(ctx context.Context, escID id.EscalationID, resolverID id.OfficerID, res escalation.Resolution) (*domain.Escalation, error)
	Get(ctx context.Context, escID id.EscalationID) (*domain.Escalation, error)
	List(ctx context.Context, filter storage.EscalationFilter) ([]*domain.Escalation, error)
}

type escalateRequest struct {
	SourceType  domain.SourceType `json:"source_type"`
	SourceID    string            `json:"source_id"`
	ToOfficerID id.OfficerID      `json:"to_officer_id"`
	Reason      string            `json:"reason"`
	Urgency     domain.Urgency    `json:"urgency"`
}

func (r *escalateRequest) Validate() error {
	r.SourceID = strings.TrimSpace(r.SourceID)
	if r.SourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "source_id is required")
	}
	if r.ToOfficerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "to_officer_id is required")
	}
	return nil
}

type escalateFurtherRequest struct {
	ToOfficerID id.OfficerID   `json:"to_officer_id"`
	Reason      string         `json:"reason"`
	Urgency     domain.Urgency `json:"urgency"`
}

func (r *escalateFurtherRequest) Validate() error {
	if r.ToOfficerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "to_officer_id is required")
	}
	return nil
}

type resolveRequest struct {
	Outcome    domain.Outcome    `json:"outcome"`
	Resolution string            `json:"resolution"`
	Result     domain.TaskResult `json:"result"`
	Findings   json.RawMessage   `json:"findings"`
	ReassignTo *id.OfficerID     `json:"reassign_to"`
}

func (r *resolveRequest) Validate() error {
	if r.Outcome == "" {
		return dErrors.New(dErrors.CodeValidation, "outcome is required")
	}
	return nil
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	from, err := officer(r)
	if err != nil {
		h.fail(w, r, "escalation rejected", err)
		return
	}
	req, ok := decode[escalateRequest](h, w, r)
	if !ok {
		return
	}
	esc, err := h.escalations.Escalate(r.Context(), escalation.Request{
		SourceType:    req.SourceType,
		SourceID:      req.SourceID,
		FromOfficerID: from,
		ToOfficerID:   req.ToOfficerID,
		Reason:        req.Reason,
		Urgency:       req.Urgency,
	})
	if err != nil {
		h.fail(w, r, "failed to escalate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, esc)
}

func (h *Handler) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "escalation list rejected", err)
		return
	}
	filter, err := escalationFilter(r)
	if err != nil {
		h.fail(w, r, "escalation list rejected", err)
		return
	}
	h.listEscalations(w, r, filter)
}

func (h *Handler) handleListApplicationEscalations(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "escalation list rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "escalation list rejected", err)
		return
	}
	filter, err := escalationFilter(r)
	if err != nil {
		h.fail(w, r, "escalation list rejected", err)
		return
	}
	filter.ApplicationID = &appID
	h.listEscalations(w, r, filter)
}

func (h *Handler) listEscalations(w http.ResponseWriter, r *http.Request, filter storage.EscalationFilter) {
	escs, err := h.escalations.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list escalations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(escs))
}

func escalationFilter(r *http.Request) (storage.EscalationFilter, error) {
	f := storage.EscalationFilter{Status: domain.EscalationStatus(r.URL.Query().Get("status"))}
	if f.Status != "" && !f.Status.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	var err error
	if f.ApplicationID, err = queryID(r, "application_id", id.ParseApplicationID); err != nil {
		return f, err
	}
	if f.TaskID, err = queryID(r, "task_id", id.ParseTaskID); err != nil {
		return f, err
	}
	if f.ToOfficerID, err = queryID(r, "to_officer_id", id.ParseOfficerID); err != nil {
		return f, err
	}
	if f.OpenOnly, err = queryBool(r, "open"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) handleGetEscalation(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "escalation read rejected", err)
		return
	}
	escID, err := pathID(r, "escalationID", id.ParseEscalationID)
	if err != nil {
		h.fail(w, r, "escalation read rejected", err)
		return
	}
	esc, err := h.escalations.Get(r.Context(), escID)
	if err != nil {
		h.fail(w, r, "failed to load escalation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, esc)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	officerID, err := officer(r)
	if err != nil {
		h.fail(w, r, "review rejected", err)
		return
	}
	escID, err := pathID(r, "escalationID", id.ParseEscalationID)
	if err != nil {
		h.fail(w, r, "review rejected", err)
		return
	}
	esc, err := h.escalations.StartReview(r.Context(), escID, officerID)
	if err != nil {
		h.fail(w, r, "failed to start review", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, esc)
}

func (h *Handler) handleEscalateFurther(w http.ResponseWriter, r *http.Request) {
	officerID, err := officer(r)
	if err != nil {
		h.fail(w, r, "escalation rejected", err)
		return
	}
	escID, err := pathID(r, "escalationID", id.ParseEscalationID)
	if err != nil {
		h.fail(w, r, "escalation rejected", err)
		return
	}
	req, ok := decode[escalateFurtherRequest](h, w, r)
	if !ok {
		return
	}
	child, err := h.escalations.EscalateFurther(r.Context(), escID, officerID, req.ToOfficerID, req.Reason, req.Urgency)
	if err != nil {
		h.fail(w, r, "failed to escalate further", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, child)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	officerID, err := officer(r)
	if err != nil {
		h.fail(w, r, "resolution rejected", err)
		return
	}
	escID, err := pathID(r, "escalationID", id.ParseEscalationID)
	if err != nil {
		h.fail(w, r, "resolution rejected", err)
		return
	}
	req, ok := decode[resolveRequest](h, w, r)
	if !ok {
		return
	}
	esc, err := h.escalations.Resolve(r.Context(), escID, officerID, escalation.Resolution{
		Outcome:    req.Outcome,
		Text:       req.Resolution,
		Result:     req.Result,
		Findings:   req.Findings,
		ReassignTo: req.ReassignTo,
	})
	if err != nil {
		h.fail(w, r, "failed to resolve escalation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, esc)
}
