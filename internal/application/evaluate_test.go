package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
)

var evalNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type taskOpt func(t *domain.Task)

func optional() taskOpt { return func(t *domain.Task) { t.Mandatory = false } }

func result(r domain.TaskResult) taskOpt {
	return func(t *domain.Task) {
		t.Result = &r
		t.Status = r.Status()
	}
}

func status(s domain.TaskStatus) taskOpt { return func(t *domain.Task) { t.Status = s } }

func superseded() taskOpt {
	return func(t *domain.Task) {
		next := id.NewTaskID()
		t.SupersededBy = &next
	}
}

func needs(docs ...domain.DocumentType) taskOpt {
	return func(t *domain.Task) { t.RequiredDocuments = docs }
}

func mkTask(appID id.ApplicationID, opts ...taskOpt) *domain.Task {
	t := &domain.Task{
		ID:            id.NewTaskID(),
		ApplicationID: appID,
		Type:          domain.TaskIdentity,
		Mandatory:     true,
		Status:        domain.TaskPending,
		CreatedAt:     evalNow,
		UpdatedAt:     evalNow,
		Version:       1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func mkDoc(appID id.ApplicationID, t *domain.Task, docType domain.DocumentType, s domain.DocumentStatus) *domain.Document {
	taskID := t.ID
	return &domain.Document{
		ID:            id.NewDocumentID(),
		ApplicationID: appID,
		TaskID:        &taskID,
		Type:          docType,
		Status:        s,
	}
}

func TestEvaluate(t *testing.T) {
	lenient := TierPolicy{AllowConditional: true}
	strict := TierPolicy{RejectOnFirstFailure: true}

	tests := []struct {
		name     string
		status   domain.ApplicationStatus
		policy   TierPolicy
		tasks    func(appID id.ApplicationID) []*domain.Task
		docs     func(appID id.ApplicationID, tasks []*domain.Task) []*domain.Document
		escalate bool
		want     domain.ApplicationStatus
		skipped  int
	}{
		{
			name:   "untouched application stays submitted",
			status: domain.ApplicationSubmitted,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID), mkTask(appID)}
			},
			want: domain.ApplicationSubmitted,
		},
		{
			name:   "started task moves to review",
			status: domain.ApplicationSubmitted,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, status(domain.TaskInProgress)), mkTask(appID)}
			},
			want: domain.ApplicationInReview,
		},
		{
			name:   "all passed approves",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultPass)), mkTask(appID, status(domain.TaskSkipped))}
			},
			want: domain.ApplicationApproved,
		},
		{
			name:   "optional tasks do not block approval",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultPass)), mkTask(appID, optional())}
			},
			want: domain.ApplicationApproved,
		},
		{
			name:   "conditional approves when allowed",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultConditional))}
			},
			want: domain.ApplicationApproved,
		},
		{
			name:   "conditional waits for a decision when disallowed",
			status: domain.ApplicationInReview,
			policy: strict,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultConditional))}
			},
			want: domain.ApplicationInReview,
		},
		{
			name:   "requires review waits for a decision",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultRequiresReview))}
			},
			want: domain.ApplicationInReview,
		},
		{
			name:   "failure waits for open tasks on lenient tier",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultFail)), mkTask(appID, status(domain.TaskInProgress))}
			},
			want: domain.ApplicationInReview,
		},
		{
			name:   "failure rejects once every task is closed",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultFail)), mkTask(appID, result(domain.ResultPass))}
			},
			want: domain.ApplicationRejected,
		},
		{
			name:   "strict tier rejects on first failure and skips the rest",
			status: domain.ApplicationInReview,
			policy: strict,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{
					mkTask(appID, result(domain.ResultFail)),
					mkTask(appID, status(domain.TaskInProgress)),
					mkTask(appID),
					mkTask(appID, optional()),
				}
			},
			want:    domain.ApplicationRejected,
			skipped: 3,
		},
		{
			name:   "open escalation blocks rejection",
			status: domain.ApplicationInReview,
			policy: strict,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultFail)), mkTask(appID, result(domain.ResultPass))}
			},
			escalate: true,
			want:     domain.ApplicationInReview,
		},
		{
			name:   "open escalation blocks approval",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultPass))}
			},
			escalate: true,
			want:     domain.ApplicationInReview,
		},
		{
			name:   "superseded failure is ignored",
			status: domain.ApplicationInReview,
			policy: strict,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultFail), superseded()), mkTask(appID, result(domain.ResultPass))}
			},
			want: domain.ApplicationApproved,
		},
		{
			name:   "missing document requests information",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, status(domain.TaskInProgress), needs(domain.DocGovernmentID, domain.DocProofOfAddress))}
			},
			docs: func(appID id.ApplicationID, tasks []*domain.Task) []*domain.Document {
				return []*domain.Document{mkDoc(appID, tasks[0], domain.DocGovernmentID, domain.DocumentVerified)}
			},
			want: domain.ApplicationAdditionalInfoRequired,
		},
		{
			name:   "rejected document counts as missing",
			status: domain.ApplicationAdditionalInfoRequired,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, status(domain.TaskInProgress), needs(domain.DocGovernmentID))}
			},
			docs: func(appID id.ApplicationID, tasks []*domain.Task) []*domain.Document {
				return []*domain.Document{mkDoc(appID, tasks[0], domain.DocGovernmentID, domain.DocumentRejected)}
			},
			want: domain.ApplicationAdditionalInfoRequired,
		},
		{
			name:   "lapsed verified document counts as missing",
			status: domain.ApplicationInReview,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, status(domain.TaskInProgress), needs(domain.DocGovernmentID))}
			},
			docs: func(appID id.ApplicationID, tasks []*domain.Task) []*domain.Document {
				d := mkDoc(appID, tasks[0], domain.DocGovernmentID, domain.DocumentVerified)
				expiry := evalNow
				d.ExpiresAt = &expiry
				return []*domain.Document{d}
			},
			want: domain.ApplicationAdditionalInfoRequired,
		},
		{
			name:   "pending upload returns to review",
			status: domain.ApplicationAdditionalInfoRequired,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, status(domain.TaskInProgress), needs(domain.DocGovernmentID))}
			},
			docs: func(appID id.ApplicationID, tasks []*domain.Task) []*domain.Document {
				return []*domain.Document{mkDoc(appID, tasks[0], domain.DocGovernmentID, domain.DocumentPending)}
			},
			want: domain.ApplicationInReview,
		},
		{
			name:   "suspended is left alone",
			status: domain.ApplicationSuspended,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultPass))}
			},
			want: domain.ApplicationSuspended,
		},
		{
			name:   "terminal is final",
			status: domain.ApplicationRejected,
			policy: lenient,
			tasks: func(appID id.ApplicationID) []*domain.Task {
				return []*domain.Task{mkTask(appID, result(domain.ResultPass))}
			},
			want: domain.ApplicationRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &domain.Application{ID: id.NewApplicationID(), Status: tt.status}
			snap := Snapshot{Application: app, Tasks: tt.tasks(app.ID), Now: evalNow}
			if tt.docs != nil {
				snap.Documents = tt.docs(app.ID, snap.Tasks)
			}
			if tt.escalate {
				snap.OpenEscalations = []*domain.Escalation{{ID: id.NewEscalationID(), ApplicationID: app.ID, Status: domain.EscalationPending}}
			}
			got := Evaluate(snap, tt.policy)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.Skip, tt.skipped)
		})
	}
}
