// Package httptransport exposes the workflow engine over HTTP. Handlers stay
// thin: they authenticate the principal, decode the request and delegate.
package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/httputil"
	"vetting/pkg/requestcontext"
)

// Services are the engine operations the HTTP layer depends on.
type Services struct {
	Applications ApplicationService
	Tasks        TaskService
	Documents    DocumentService
	Escalations  EscalationService
	Comments     CommentService
	Audit        AuditService
}

type Handler struct {
	logger       *slog.Logger
	applications ApplicationService
	tasks        TaskService
	documents    DocumentService
	escalations  EscalationService
	comments     CommentService
	audit        AuditService
}

func NewHandler(svcs Services, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		applications: svcs.Applications,
		tasks:        svcs.Tasks,
		documents:    svcs.Documents,
		escalations:  svcs.Escalations,
		comments:     svcs.Comments,
		audit:        svcs.Audit,
	}
}

// Register mounts every authenticated route on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.handleSubmit)
		r.Get("/", h.handleListApplications)
		r.Route("/{applicationID}", func(r chi.Router) {
			r.Get("/", h.handleGetApplication)
			r.Post("/suspend", h.handleSuspend)
			r.Post("/resume", h.handleResume)
			r.Post("/archive", h.handleArchive)
			r.Post("/decision", h.handleDecide)
			r.Put("/reviewers", h.handleAssignReviewers)
			r.Get("/tasks", h.handleListTasks)
			r.Get("/documents", h.handleListDocuments)
			r.Post("/documents", h.handleUpload)
			r.Get("/comments", h.handleListComments)
			r.Post("/comments", h.handleAddComment)
			r.Get("/escalations", h.handleListApplicationEscalations)
		})
	})
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", h.handleGetTask)
		r.Post("/assign", h.handleAssign)
		r.Post("/auto-assign", h.handleAutoAssign)
		r.Post("/reassign", h.handleReassign)
		r.Post("/result", h.handleRecordResult)
		r.Post("/skip", h.handleSkip)
	})
	r.Route("/documents/{documentID}", func(r chi.Router) {
		r.Get("/", h.handleGetDocument)
		r.Post("/verify", h.handleVerifyDocument)
	})
	r.Route("/escalations", func(r chi.Router) {
		r.Post("/", h.handleEscalate)
		r.Get("/", h.handleListEscalations)
		r.Route("/{escalationID}", func(r chi.Router) {
			r.Get("/", h.handleGetEscalation)
			r.Post("/review", h.handleStartReview)
			r.Post("/escalate", h.handleEscalateFurther)
			r.Post("/resolve", h.handleResolve)
		})
	})
	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.handleReadLog)
		r.Get("/entities/{entityID}", h.handleReadHistory)
		r.Get("/entities/{entityID}/verify", h.handleVerifyChain)
	})
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

// fail logs and renders err. Client errors log at warn, the rest at error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

// actor maps the authenticated principal onto a domain actor.
func actor(r *http.Request) (domain.Actor, error) {
	p, ok := requestcontext.Principal(r.Context())
	if !ok || p.ID == "" {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	a := domain.Actor{ID: p.ID, Type: domain.ActorType(p.Type)}
	if !a.Type.IsValid() {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "unknown principal type")
	}
	return a, nil
}

// staff admits officers and the system principal.
func staff(r *http.Request) (domain.Actor, error) {
	a, err := actor(r)
	if err != nil {
		return a, err
	}
	if a.Type == domain.ActorApplicant {
		return a, dErrors.New(dErrors.CodeForbidden, "officer access required")
	}
	return a, nil
}

// officer admits officers only and returns their directory ID.
func officer(r *http.Request) (id.OfficerID, error) {
	a, err := actor(r)
	if err != nil {
		return id.OfficerID{}, err
	}
	officerID, ok := a.OfficerID()
	if !ok {
		return id.OfficerID{}, dErrors.New(dErrors.CodeForbidden, "officer access required")
	}
	return officerID, nil
}

func pathID[T any](r *http.Request, param string, parse func(string) (T, error)) (T, error) {
	v, err := parse(chi.URLParam(r, param))
	if err != nil {
		var zero T
		return zero, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+param)
	}
	return v, nil
}

func queryID[T any](r *http.Request, param string, parse func(string) (T, error)) (*T, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+param)
	}
	return &v, nil
}

func queryInt(r *http.Request, param string) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid "+param)
	}
	return n, nil
}

func queryBool(r *http.Request, param string) (bool, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.New(dErrors.CodeValidation, "invalid "+param)
	}
	return b, nil
}

func decode[T any, PT interface {
	*T
	httputil.Validatable
}](h *Handler, w http.ResponseWriter, r *http.Request) (*T, bool) {
	ctx := r.Context()
	return httputil.DecodeAndPrepare[T, PT](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
}
