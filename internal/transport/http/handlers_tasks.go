package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
)

//go:generate mockgen -source=handlers_tasks.go -destination=mocks/task-mocks.go -package=mocks TaskService
type TaskService interface {
	Get(ctx context.Context, taskID id.TaskID) (*domain.Task, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*domain.Task, error)
	Assign(ctx context.Context, taskID id.TaskID, officerID id.OfficerID, actor domain.Actor) (*domain.Task, error)
	Reassign(ctx context.Context, taskID id.TaskID, officerID id.OfficerID, actor domain.Actor, reason string) (*domain.Task, error)
	AutoAssign(ctx context.Context, taskID id.TaskID, actor domain.Actor) (*domain.Task, error)
	RecordResult(ctx context.Context, taskID id.TaskID, officerID id.OfficerID, result domain.TaskResult, findings json.RawMessage) (*domain.Task, error)
	Skip(ctx context.Context, taskID id.TaskID, actor domain.Actor, reason string) (*domain.Task, error)
}

type assignRequest struct {
	// OfficerID defaults to the calling officer.
	OfficerID *id.OfficerID `json:"officer_id"`
}

func (r *assignRequest) Validate() error {
	return nil
}

type reassignRequest struct {
	OfficerID id.OfficerID `json:"officer_id"`
	Reason    string       `json:"reason"`
}

func (r *reassignRequest) Validate() error {
	if r.OfficerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "officer_id is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

type resultRequest struct {
	Result   domain.TaskResult `json:"result"`
	Findings json.RawMessage   `json:"findings"`
}

func (r *resultRequest) Validate() error {
	if !r.Result.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid result")
	}
	return nil
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "task read rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "task read rejected", err)
		return
	}
	t, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, "failed to load task", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	app, ok := h.readableApplication(w, r)
	if !ok {
		return
	}
	tasks, err := h.tasks.ListByApplication(r.Context(), app.ID)
	if err != nil {
		h.fail(w, r, "failed to list tasks", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(tasks))
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "assignment rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "assignment rejected", err)
		return
	}
	req, ok := decode[assignRequest](h, w, r)
	if !ok {
		return
	}
	target, self := a.OfficerID()
	if req.OfficerID != nil {
		target = *req.OfficerID
	} else if !self {
		h.fail(w, r, "assignment rejected", dErrors.New(dErrors.CodeValidation, "officer_id is required"))
		return
	}
	t, err := h.tasks.Assign(r.Context(), taskID, target, a)
	if err != nil {
		h.fail(w, r, "failed to assign task", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "auto assignment rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "auto assignment rejected", err)
		return
	}
	t, err := h.tasks.AutoAssign(r.Context(), taskID, a)
	if err != nil {
		h.fail(w, r, "failed to auto assign task", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "reassignment rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "reassignment rejected", err)
		return
	}
	req, ok := decode[reassignRequest](h, w, r)
	if !ok {
		return
	}
	t, err := h.tasks.Reassign(r.Context(), taskID, req.OfficerID, a, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to reassign task", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// handleRecordResult records the calling officer's result.
func (h *Handler) handleRecordResult(w http.ResponseWriter, r *http.Request) {
	officerID, err := officer(r)
	if err != nil {
		h.fail(w, r, "result rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "result rejected", err)
		return
	}
	req, ok := decode[resultRequest](h, w, r)
	if !ok {
		return
	}
	t, err := h.tasks.RecordResult(r.Context(), taskID, officerID, req.Result, req.Findings)
	if err != nil {
		h.fail(w, r, "failed to record task result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "skip rejected", err)
		return
	}
	taskID, err := pathID(r, "taskID", id.ParseTaskID)
	if err != nil {
		h.fail(w, r, "skip rejected", err)
		return
	}
	req, ok := decode[reasonRequest](h, w, r)
	if !ok {
		return
	}
	t, err := h.tasks.Skip(r.Context(), taskID, a, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to skip task", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}
