package domain

import (
	"time"

	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

type EscalationStatus string

const (
	EscalationPending          EscalationStatus = "pending"
	EscalationInReview         EscalationStatus = "in_review"
	EscalationResolved         EscalationStatus = "resolved"
	EscalationEscalatedFurther EscalationStatus = "escalated_further"
)

func (s EscalationStatus) IsValid() bool {
	switch s {
	case EscalationPending, EscalationInReview, EscalationResolved, EscalationEscalatedFurther:
		return true
	}
	return false
}

// IsOpen reports whether the escalation still awaits a decision.
func (s EscalationStatus) IsOpen() bool {
	return s == EscalationPending || s == EscalationInReview
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type SourceType string

const (
	SourceApplication SourceType = "application"
	SourceTask        SourceType = "task"
)

// Outcome is the dependent action taken when an escalation is resolved.
type Outcome string

const (
	// OutcomeUphold leaves the source unchanged.
	OutcomeUphold Outcome = "uphold"
	// Task sources.
	OutcomeRecordResult Outcome = "record_result"
	OutcomeReopen       Outcome = "reopen"
	OutcomeReassign     Outcome = "reassign"
	OutcomeReissue      Outcome = "reissue"
	// Application sources.
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// ValidFor reports whether the outcome applies to the source type.
func (o Outcome) ValidFor(source SourceType) bool {
	switch o {
	case OutcomeUphold:
		return true
	case OutcomeRecordResult, OutcomeReopen, OutcomeReassign, OutcomeReissue:
		return source == SourceTask
	case OutcomeApprove, OutcomeReject:
		return source == SourceApplication
	}
	return false
}

// Escalation routes a task or application to a higher-authority officer.
//
// Invariants:
//   - ToOfficer has a strictly higher access level than FromOfficer
//   - Status moves pending -> in_review -> resolved, or to escalated_further
//     from either open status; resolved and escalated_further are final
//   - Resolution, Outcome, ResolvedBy and ResolvedAt are set together
type Escalation struct {
	ID            id.EscalationID  `json:"id"`
	SourceType    SourceType       `json:"source_type"`
	ApplicationID id.ApplicationID `json:"application_id"`
	TaskID        *id.TaskID       `json:"task_id,omitempty"`
	ParentID      *id.EscalationID `json:"parent_id,omitempty"`
	FromOfficerID id.OfficerID     `json:"from_officer_id"`
	ToOfficerID   id.OfficerID     `json:"to_officer_id"`
	Reason        string           `json:"reason"`
	Urgency       Urgency          `json:"urgency"`
	Status        EscalationStatus `json:"status"`
	Outcome       Outcome          `json:"outcome,omitempty"`
	Resolution    string           `json:"resolution,omitempty"`
	ResolvedBy    *id.OfficerID    `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int64            `json:"version"`
}

// SourceID returns the escalated entity's identifier.
func (e *Escalation) SourceID() string {
	if e.SourceType == SourceTask && e.TaskID != nil {
		return e.TaskID.String()
	}
	return e.ApplicationID.String()
}

func (e *Escalation) invalidState(msg, action string) error {
	return dErrors.New(dErrors.CodeInvalidState, msg).
		WithDetails(e.ID.String(), string(e.Status), action)
}

func (e *Escalation) CanStartReview(officerID id.OfficerID) error {
	if e.Status != EscalationPending {
		return e.invalidState("escalation is not pending", "start_review")
	}
	if e.ToOfficerID != officerID {
		return dErrors.New(dErrors.CodeForbidden, "only the target officer may review the escalation").
			WithDetails(e.ID.String(), string(e.Status), "start_review")
	}
	return nil
}

func (e *Escalation) ApplyStartReview(now time.Time) {
	e.Status = EscalationInReview
	e.UpdatedAt = now
}

func (e *Escalation) CanResolve(outcome Outcome, resolution string) error {
	if !e.Status.IsOpen() {
		return e.invalidState("escalation is closed", "resolve")
	}
	if resolution == "" {
		return dErrors.New(dErrors.CodeValidation, "resolution text is required")
	}
	if !outcome.ValidFor(e.SourceType) {
		return dErrors.New(dErrors.CodeValidation, "outcome does not apply to this escalation source")
	}
	return nil
}

func (e *Escalation) ApplyResolve(resolver id.OfficerID, outcome Outcome, resolution string, now time.Time) {
	e.Status = EscalationResolved
	e.Outcome = outcome
	e.Resolution = resolution
	r := resolver
	e.ResolvedBy = &r
	at := now
	e.ResolvedAt = &at
	e.UpdatedAt = now
}

func (e *Escalation) CanEscalateFurther(officerID id.OfficerID) error {
	if !e.Status.IsOpen() {
		return e.invalidState("escalation is closed", "escalate_further")
	}
	if e.ToOfficerID != officerID {
		return dErrors.New(dErrors.CodeForbidden, "only the current target may escalate further").
			WithDetails(e.ID.String(), string(e.Status), "escalate_further")
	}
	return nil
}

func (e *Escalation) ApplyEscalatedFurther(now time.Time) {
	e.Status = EscalationEscalatedFurther
	e.UpdatedAt = now
}
