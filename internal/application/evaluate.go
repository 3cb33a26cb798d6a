package application

import (
	"time"

	"vetting/internal/domain"
)

// Snapshot is the state an application is evaluated against.
type Snapshot struct {
	Application     *domain.Application
	Tasks           []*domain.Task
	Documents       []*domain.Document
	OpenEscalations []*domain.Escalation
	// Now decides which documents have lapsed.
	Now time.Time
}

// Verdict is the status an application should be in. Skip lists the open
// tasks that a rejection closes.
type Verdict struct {
	Status domain.ApplicationStatus
	Reason string
	Skip   []*domain.Task
}

// Evaluate derives the application's status from its tasks. It depends only
// on its inputs, so evaluating unchanged state yields the current status.
//
// Terminal outcomes wait while any escalation on the application is open.
// A failed mandatory task rejects once every mandatory task is closed, or at
// once when the tier rejects on first failure. Approval needs every
// mandatory task passed, skipped or conditional where the tier allows it;
// requires_review and disallowed conditional results hold the application in
// review for a supervisor decision.
func Evaluate(s Snapshot, p TierPolicy) Verdict {
	app := s.Application
	if app.Status.IsTerminal() || app.Status == domain.ApplicationSuspended {
		return Verdict{Status: app.Status}
	}

	var (
		failed      bool
		allTerminal = true
		started     bool
		needsReview bool
		counted     int
	)
	for _, t := range s.Tasks {
		if t.SupersededBy != nil {
			continue
		}
		if t.Status != domain.TaskPending {
			started = true
		}
		if !t.Counts() {
			continue
		}
		counted++
		if !t.Status.IsTerminal() {
			allTerminal = false
			continue
		}
		if t.Status == domain.TaskFailed {
			failed = true
			continue
		}
		if t.Status == domain.TaskCompleted && t.Result != nil {
			switch *t.Result {
			case domain.ResultRequiresReview:
				needsReview = true
			case domain.ResultConditional:
				if !p.AllowConditional {
					needsReview = true
				}
			}
		}
	}
	escalated := len(s.OpenEscalations) > 0

	if failed && !escalated && (allTerminal || p.RejectOnFirstFailure) {
		var open []*domain.Task
		for _, t := range s.Tasks {
			if t.SupersededBy == nil && !t.Status.IsTerminal() {
				open = append(open, t)
			}
		}
		return Verdict{Status: domain.ApplicationRejected, Reason: "mandatory task failed", Skip: open}
	}
	if !started {
		return Verdict{Status: domain.ApplicationSubmitted}
	}
	if documentsIncomplete(s.Tasks, s.Documents, s.Now) {
		return Verdict{Status: domain.ApplicationAdditionalInfoRequired, Reason: "required documents missing"}
	}
	if counted > 0 && allTerminal && !failed && !needsReview && !escalated {
		return Verdict{Status: domain.ApplicationApproved, Reason: "all mandatory tasks satisfied"}
	}
	return Verdict{Status: domain.ApplicationInReview, Reason: "review in progress"}
}

// documentsIncomplete reports whether a started mandatory task lacks a
// pending or verified document, still within its expiry, for one of its
// requirements.
func documentsIncomplete(tasks []*domain.Task, docs []*domain.Document, now time.Time) bool {
	for _, t := range tasks {
		if !t.Counts() || t.Status != domain.TaskInProgress {
			continue
		}
		if len(domain.MissingDocuments(t, docs, now, domain.DocumentPending, domain.DocumentVerified)) > 0 {
			return true
		}
	}
	return false
}
