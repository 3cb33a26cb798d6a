package domain

import (
	"encoding/json"
	"time"

	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

type TaskType string

const (
	TaskIdentity         TaskType = "identity"
	TaskBackground       TaskType = "background"
	TaskFinancial        TaskType = "financial"
	TaskCredential       TaskType = "credential"
	TaskReference        TaskType = "reference"
	TaskInterview        TaskType = "interview"
	TaskSkillsAssessment TaskType = "skills_assessment"
)

// TaskTypeOrder is the canonical ordering used when decomposing applications.
var TaskTypeOrder = []TaskType{
	TaskIdentity,
	TaskBackground,
	TaskFinancial,
	TaskCredential,
	TaskReference,
	TaskInterview,
	TaskSkillsAssessment,
}

func (t TaskType) IsValid() bool {
	for _, known := range TaskTypeOrder {
		if t == known {
			return true
		}
	}
	return false
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

type TaskResult string

const (
	ResultPass           TaskResult = "pass"
	ResultFail           TaskResult = "fail"
	ResultConditional    TaskResult = "conditional"
	ResultRequiresReview TaskResult = "requires_review"
)

func (r TaskResult) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultConditional, ResultRequiresReview:
		return true
	}
	return false
}

// Status returns the terminal task status a result leads to.
func (r TaskResult) Status() TaskStatus {
	if r == ResultFail {
		return TaskFailed
	}
	return TaskCompleted
}

// Task is one unit of verification work within an application.
//
// Invariants:
//   - Status moves pending -> in_progress -> {completed|failed}, or to skipped
//     from any non-terminal status; terminal statuses are final
//   - Result is set exactly when Status is completed or failed
//   - A held task (open escalation) accepts no result from its owner
//   - SupersededBy is only set on failed tasks reissued through escalation
type Task struct {
	ID                id.TaskID        `json:"id"`
	ApplicationID     id.ApplicationID `json:"application_id"`
	Type              TaskType         `json:"type"`
	Description       string           `json:"description"`
	RequiredDocuments []DocumentType   `json:"required_documents"`
	Mandatory         bool             `json:"mandatory"`
	MinClearance      ClearanceLevel   `json:"min_clearance"`
	AssignedOfficerID *id.OfficerID    `json:"assigned_officer_id,omitempty"`
	Status            TaskStatus       `json:"status"`
	Priority          Priority         `json:"priority"`
	Result            *TaskResult      `json:"result,omitempty"`
	Findings          json.RawMessage  `json:"findings,omitempty"`
	SkipReason        string           `json:"skip_reason,omitempty"`
	HeldBy            *id.EscalationID `json:"held_by,omitempty"`
	SupersededBy      *id.TaskID       `json:"superseded_by,omitempty"`
	DueAt             time.Time        `json:"due_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Version           int64            `json:"version"`
}

func (t *Task) IsHeld() bool { return t.HeldBy != nil }

// IsOwnedBy reports whether officerID is the active owner.
func (t *Task) IsOwnedBy(officerID id.OfficerID) bool {
	return t.AssignedOfficerID != nil && *t.AssignedOfficerID == officerID
}

// Counts reports whether the task participates in application evaluation.
func (t *Task) Counts() bool {
	return t.Mandatory && t.SupersededBy == nil
}

func (t *Task) invalidState(msg, action string) error {
	return dErrors.New(dErrors.CodeInvalidState, msg).
		WithDetails(t.ID.String(), string(t.Status), action)
}

// CanAssign checks that officerID may take the task. Assigning the current
// owner again is reported through the noop return.
func (t *Task) CanAssign(officerID id.OfficerID) (noop bool, err error) {
	if t.Status.IsTerminal() {
		return false, t.invalidState("task is closed", "assign")
	}
	if t.IsHeld() {
		return false, t.invalidState("task is held by an open escalation", "assign")
	}
	if t.AssignedOfficerID != nil {
		if *t.AssignedOfficerID == officerID {
			return true, nil
		}
		return false, dErrors.New(dErrors.CodeAlreadyAssigned, "task already has an active owner").
			WithDetails(t.ID.String(), string(t.Status), "assign")
	}
	return false, nil
}

// ApplyAssign records the owner and starts work on a pending task.
func (t *Task) ApplyAssign(officerID id.OfficerID, now time.Time) {
	o := officerID
	t.AssignedOfficerID = &o
	if t.Status == TaskPending {
		t.Status = TaskInProgress
		started := now
		t.StartedAt = &started
	}
	t.UpdatedAt = now
}

// CanRelease checks that ownership may be dropped ahead of a reassignment.
func (t *Task) CanRelease() error {
	if t.Status.IsTerminal() {
		return t.invalidState("task is closed", "release")
	}
	return nil
}

func (t *Task) ApplyRelease(now time.Time) {
	t.AssignedOfficerID = nil
	t.UpdatedAt = now
}

// CanRecordResult checks the owner, hold and status preconditions.
func (t *Task) CanRecordResult(officerID id.OfficerID, result TaskResult) error {
	if !result.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid task result")
	}
	if t.Status.IsTerminal() {
		return t.invalidState("task is closed", "record_result")
	}
	if !t.IsOwnedBy(officerID) {
		return dErrors.New(dErrors.CodeNotOwner, "only the assigned officer may record a result").
			WithDetails(t.ID.String(), string(t.Status), "record_result")
	}
	if t.IsHeld() {
		return t.invalidState("task is held by an open escalation", "record_result")
	}
	if t.Status != TaskInProgress {
		return t.invalidState("task is not in progress", "record_result")
	}
	return nil
}

func (t *Task) ApplyResult(result TaskResult, findings json.RawMessage, now time.Time) {
	r := result
	t.Result = &r
	t.Findings = findings
	t.Status = result.Status()
	completed := now
	t.CompletedAt = &completed
	t.UpdatedAt = now
}

func (t *Task) CanSkip(reason string) error {
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "skip reason is required")
	}
	if t.Status.IsTerminal() {
		return t.invalidState("task is closed", "skip")
	}
	if t.IsHeld() {
		return t.invalidState("task is held by an open escalation", "skip")
	}
	return nil
}

func (t *Task) ApplySkip(reason string, now time.Time) {
	t.Status = TaskSkipped
	t.SkipReason = reason
	completed := now
	t.CompletedAt = &completed
	t.UpdatedAt = now
}

// CanHold checks that an escalation may pause the task.
func (t *Task) CanHold() error {
	if t.IsHeld() {
		return t.invalidState("task already has an open escalation", "hold")
	}
	return nil
}

// ApplyHold pauses owner actions on a non-terminal task. Terminal tasks are
// only linked so the escalation can be tracked against them.
func (t *Task) ApplyHold(escalationID id.EscalationID, now time.Time) {
	e := escalationID
	t.HeldBy = &e
	t.UpdatedAt = now
}

func (t *Task) ApplyReleaseHold(now time.Time) {
	t.HeldBy = nil
	t.UpdatedAt = now
}

// CanSupersede checks that a failed task may be replaced by a fresh instance.
func (t *Task) CanSupersede() error {
	if t.Status != TaskFailed {
		return t.invalidState("only failed tasks can be reissued", "reissue")
	}
	if t.SupersededBy != nil {
		return t.invalidState("task was already reissued", "reissue")
	}
	return nil
}

func (t *Task) ApplySupersede(next id.TaskID, now time.Time) {
	n := next
	t.SupersededBy = &n
	t.UpdatedAt = now
}

// Reissue creates a pending copy of the task for another attempt.
func (t *Task) Reissue(newID id.TaskID, dueAt, now time.Time) *Task {
	docs := append([]DocumentType(nil), t.RequiredDocuments...)
	return &Task{
		ID:                newID,
		ApplicationID:     t.ApplicationID,
		Type:              t.Type,
		Description:       t.Description,
		RequiredDocuments: docs,
		Mandatory:         t.Mandatory,
		MinClearance:      t.MinClearance,
		Status:            TaskPending,
		Priority:          t.Priority,
		DueAt:             dueAt,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

// Rank is the position of the type in TaskTypeOrder.
func (t TaskType) Rank() int {
	for i, known := range TaskTypeOrder {
		if t == known {
			return i
		}
	}
	return len(TaskTypeOrder)
}
