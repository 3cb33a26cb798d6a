package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"vetting/internal/application"
	"vetting/internal/domain"
	"vetting/internal/storage"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
)

//go:generate mockgen -source=handlers_applications.go -destination=mocks/application-mocks.go -package=mocks ApplicationService
type ApplicationService interface {
	Submit(ctx context.Context, req application.SubmitRequest) (*domain.Application, error)
	Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error)
	List(ctx context.Context, filter storage.ApplicationFilter) ([]*domain.Application, error)
	Suspend(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error)
	Resume(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error)
	Archive(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error)
	Decide(ctx context.Context, appID id.ApplicationID, actor domain.Actor, approve bool, reason string) (*domain.Application, error)
	AssignReviewers(ctx context.Context, appID id.ApplicationID, actor domain.Actor, primary id.OfficerID, secondary *id.OfficerID) (*domain.Application, error)
}

type submitRequest struct {
	ApplicantEmail string                 `json:"applicant_email"`
	Category       domain.SubjectCategory `json:"category"`
	SubType        string                 `json:"sub_type"`
	CompanyID      *id.CompanyID          `json:"company_id"`
	Payload        json.RawMessage        `json:"payload"`
}

func (r *submitRequest) Validate() error {
	r.ApplicantEmail = strings.TrimSpace(r.ApplicantEmail)
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (r *reasonRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type decisionRequest struct {
	Approve *bool  `json:"approve"`
	Reason  string `json:"reason"`
}

func (r *decisionRequest) Validate() error {
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type reviewersRequest struct {
	PrimaryOfficerID   id.OfficerID  `json:"primary_officer_id"`
	SecondaryOfficerID *id.OfficerID `json:"secondary_officer_id"`
}

func (r *reviewersRequest) Validate() error {
	if r.PrimaryOfficerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "primary_officer_id is required")
	}
	return nil
}

// handleSubmit accepts an intake. Applicants always submit for themselves.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, r, "submit rejected", err)
		return
	}
	req, ok := decode[submitRequest](h, w, r)
	if !ok {
		return
	}
	if a.Type == domain.ActorApplicant {
		if req.ApplicantEmail != "" && !strings.EqualFold(req.ApplicantEmail, a.ID) {
			h.fail(w, r, "submit rejected", dErrors.New(dErrors.CodeForbidden, "applicants may only submit for themselves"))
			return
		}
		req.ApplicantEmail = a.ID
	}

	app, err := h.applications.Submit(r.Context(), application.SubmitRequest{
		ApplicantEmail: req.ApplicantEmail,
		Category:       req.Category,
		SubType:        req.SubType,
		CompanyID:      req.CompanyID,
		Payload:        req.Payload,
	})
	if err != nil {
		h.fail(w, r, "failed to submit application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := h.readableApplication(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// readableApplication loads the path application and checks the caller may
// read it: staff always, applicants only their own.
func (h *Handler) readableApplication(w http.ResponseWriter, r *http.Request) (*domain.Application, bool) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, r, "application read rejected", err)
		return nil, false
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "application read rejected", err)
		return nil, false
	}
	app, err := h.applications.Get(r.Context(), appID)
	if err != nil {
		h.fail(w, r, "failed to load application", err)
		return nil, false
	}
	if a.Type == domain.ActorApplicant && !strings.EqualFold(app.ApplicantEmail, a.ID) {
		// Indistinguishable from a missing application.
		h.fail(w, r, "application read rejected", dErrors.New(dErrors.CodeNotFound, "application not found"))
		return nil, false
	}
	return app, true
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	if _, err := staff(r); err != nil {
		h.fail(w, r, "application list rejected", err)
		return
	}
	filter, err := applicationFilter(r)
	if err != nil {
		h.fail(w, r, "application list rejected", err)
		return
	}
	apps, err := h.applications.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list applications", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list(apps))
}

func applicationFilter(r *http.Request) (storage.ApplicationFilter, error) {
	q := r.URL.Query()
	f := storage.ApplicationFilter{
		Status:   domain.ApplicationStatus(q.Get("status")),
		Category: domain.SubjectCategory(q.Get("category")),
		Tier:     domain.VettingTier(q.Get("tier")),
		Priority: domain.Priority(q.Get("priority")),
	}
	if f.Status != "" && !f.Status.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	if f.Category != "" && !f.Category.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "invalid category")
	}
	if f.Tier != "" && !f.Tier.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "invalid tier")
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "invalid priority")
	}
	var err error
	if f.OfficerID, err = queryID(r, "officer_id", id.ParseOfficerID); err != nil {
		return f, err
	}
	if f.CompanyID, err = queryID(r, "company_id", id.ParseCompanyID); err != nil {
		return f, err
	}
	if f.IncludeArchived, err = queryBool(r, "include_archived"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

type adminOp func(ctx context.Context, appID id.ApplicationID, actor domain.Actor, reason string) (*domain.Application, error)

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, "suspend", h.applications.Suspend)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, "resume", h.applications.Resume)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	h.administer(w, r, "archive", h.applications.Archive)
}

func (h *Handler) administer(w http.ResponseWriter, r *http.Request, action string, op adminOp) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, action+" rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, action+" rejected", err)
		return
	}
	req, ok := decode[reasonRequest](h, w, r)
	if !ok {
		return
	}
	app, err := op(r.Context(), appID, a, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to "+action+" application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "decision rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "decision rejected", err)
		return
	}
	req, ok := decode[decisionRequest](h, w, r)
	if !ok {
		return
	}
	app, err := h.applications.Decide(r.Context(), appID, a, *req.Approve, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to decide application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleAssignReviewers(w http.ResponseWriter, r *http.Request) {
	a, err := staff(r)
	if err != nil {
		h.fail(w, r, "reviewer assignment rejected", err)
		return
	}
	appID, err := pathID(r, "applicationID", id.ParseApplicationID)
	if err != nil {
		h.fail(w, r, "reviewer assignment rejected", err)
		return
	}
	req, ok := decode[reviewersRequest](h, w, r)
	if !ok {
		return
	}
	app, err := h.applications.AssignReviewers(r.Context(), appID, a, req.PrimaryOfficerID, req.SecondaryOfficerID)
	if err != nil {
		h.fail(w, r, "failed to assign reviewers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}
