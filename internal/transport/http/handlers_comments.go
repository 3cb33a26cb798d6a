package httptransport

import (
	"context"
	"net/http"

	"vetting/internal/comment"
	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/httputil"
)

type CommentService interface {
	Add(ctx context.Context, req comment.AddRequest, actor domain.Actor) (*domain.Comment, error)
	List(ctx context.Context, appID id.ApplicationID, reader domain.Actor) ([]*domain.Comment, error)
}

type commentRequest struct {
	TaskID     *id.TaskID `json:"task_id"`
	Text       string     `json:"text"`
	Internal   bool       `json:"internal"`
	Visibility int        `json:"visibility"`
	Flagged    bool       `json:"flagged"`
}

func (r *commentRequest) Validate() error {
	return nil
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, r, "comment rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "comment rejected", err)
		return
	}
	req, ok := decode[commentRequest](h, w, r)
	if !ok {
		return
	}
	c, err := h.comments.Add(r.Context(), comment.AddRequest{
		ApplicationID: appID,
		TaskID:        req.TaskID,
		Text:          req.Text,
		Internal:      req.Internal,
		Visibility:    req.Visibility,
		Flagged:       req.Flagged,
	}, a)
	if err != nil {
		h.fail(w, r, "failed to add comment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, r, "comment read rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "comment read rejected", err)
		return
	}
	comments, err := h.comments.List(r.Context(), appID, a)
	if err != nil {
		h.fail(w, r, "failed to list comments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(comments))
}
