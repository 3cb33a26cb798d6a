package domain

import (
	"encoding/json"
	"time"

	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

type ApplicationStatus string

const (
	ApplicationSubmitted              ApplicationStatus = "submitted"
	ApplicationInReview               ApplicationStatus = "in_review"
	ApplicationAdditionalInfoRequired ApplicationStatus = "additional_info_required"
	ApplicationApproved               ApplicationStatus = "approved"
	ApplicationRejected               ApplicationStatus = "rejected"
	ApplicationSuspended              ApplicationStatus = "suspended"
)

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationSubmitted:              {ApplicationInReview, ApplicationSuspended},
	ApplicationInReview:               {ApplicationAdditionalInfoRequired, ApplicationApproved, ApplicationRejected, ApplicationSuspended},
	ApplicationAdditionalInfoRequired: {ApplicationInReview, ApplicationSuspended},
	ApplicationSuspended:              {ApplicationInReview},
}

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationSubmitted, ApplicationInReview, ApplicationAdditionalInfoRequired,
		ApplicationApproved, ApplicationRejected, ApplicationSuspended:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

func (s ApplicationStatus) CanTransitionTo(target ApplicationStatus) bool {
	for _, next := range applicationTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// PathTo returns the ordered statuses to pass through to reach target,
// routing via in_review when there is no direct edge. The result excludes
// the current status and is nil when target is unreachable.
func (s ApplicationStatus) PathTo(target ApplicationStatus) []ApplicationStatus {
	if s == target {
		return nil
	}
	if s.CanTransitionTo(target) {
		return []ApplicationStatus{target}
	}
	if s.CanTransitionTo(ApplicationInReview) && ApplicationInReview.CanTransitionTo(target) {
		return []ApplicationStatus{ApplicationInReview, target}
	}
	return nil
}

// Application is the aggregate root for one vetting request.
//
// Invariants:
//   - Status follows the application state machine; approved and rejected are final
//   - VettingTier and Priority are fixed at submission
//   - PrimaryOfficerID and SecondaryOfficerID never name the same officer
//   - CompletedAt is set exactly when Status becomes terminal
//   - Archived applications are suspended and cannot be resumed
type Application struct {
	ID                    id.ApplicationID  `json:"id"`
	ApplicantEmail        string            `json:"applicant_email"`
	Category              SubjectCategory   `json:"category"`
	SubType               string            `json:"sub_type"`
	Status                ApplicationStatus `json:"status"`
	Priority              Priority          `json:"priority"`
	VettingTier           VettingTier       `json:"vetting_tier"`
	CompanyID             *id.CompanyID     `json:"company_id,omitempty"`
	PrimaryOfficerID      *id.OfficerID     `json:"primary_officer_id,omitempty"`
	SecondaryOfficerID    *id.OfficerID     `json:"secondary_officer_id,omitempty"`
	Payload               json.RawMessage   `json:"payload"`
	EstimatedCompletionAt time.Time         `json:"estimated_completion_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	Archived              bool              `json:"archived"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	Version               int64             `json:"version"`
}

// NewApplication builds a freshly submitted application.
func NewApplication(appID id.ApplicationID, email string, category SubjectCategory, subType string,
	tier VettingTier, priority Priority, companyID *id.CompanyID, payload json.RawMessage,
	eta time.Time, now time.Time) (*Application, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant email cannot be empty")
	}
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid subject category")
	}
	if !tier.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid vetting tier")
	}
	if !priority.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid priority")
	}
	return &Application{
		ID:                    appID,
		ApplicantEmail:        email,
		Category:              category,
		SubType:               subType,
		Status:                ApplicationSubmitted,
		Priority:              priority,
		VettingTier:           tier,
		CompanyID:             companyID,
		Payload:               payload,
		EstimatedCompletionAt: eta,
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
	}, nil
}

// CanTransition checks a single state machine edge.
func (a *Application) CanTransition(target ApplicationStatus) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "application is closed").
			WithDetails(a.ID.String(), string(a.Status), "transition:"+string(target))
	}
	if !a.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidState, "transition not allowed").
			WithDetails(a.ID.String(), string(a.Status), "transition:"+string(target))
	}
	return nil
}

// ApplyTransition moves the application to target. Call CanTransition first.
func (a *Application) ApplyTransition(target ApplicationStatus, now time.Time) {
	a.Status = target
	a.UpdatedAt = now
	if target.IsTerminal() {
		completed := now
		a.CompletedAt = &completed
	}
}

// CanResume checks that a suspended application may return to review.
func (a *Application) CanResume() error {
	if a.Status != ApplicationSuspended {
		return dErrors.New(dErrors.CodeInvalidState, "only suspended applications can be resumed").
			WithDetails(a.ID.String(), string(a.Status), "resume")
	}
	if a.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "archived applications cannot be resumed").
			WithDetails(a.ID.String(), string(a.Status), "resume")
	}
	return nil
}

// CanAssignReviewers validates the primary/secondary pairing.
func (a *Application) CanAssignReviewers(primary id.OfficerID, secondary *id.OfficerID) error {
	if a.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "application is closed").
			WithDetails(a.ID.String(), string(a.Status), "assign_reviewers")
	}
	if secondary != nil && *secondary == primary {
		return dErrors.New(dErrors.CodeValidation, "primary and secondary officer must differ")
	}
	return nil
}

func (a *Application) ApplyReviewers(primary id.OfficerID, secondary *id.OfficerID, now time.Time) {
	p := primary
	a.PrimaryOfficerID = &p
	a.SecondaryOfficerID = nil
	if secondary != nil {
		s := *secondary
		a.SecondaryOfficerID = &s
	}
	a.UpdatedAt = now
}

// IsSecondaryOfficer reports whether the officer is the advisory reviewer.
func (a *Application) IsSecondaryOfficer(officerID id.OfficerID) bool {
	return a.SecondaryOfficerID != nil && *a.SecondaryOfficerID == officerID
}

// IsOpen reports whether evidence can still change the outcome.
func (a *Application) IsOpen() bool {
	return !a.Status.IsTerminal() && a.Status != ApplicationSuspended
}
