package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"vetting/internal/domain"
)

// EntityType names the aggregate an entry belongs to.
type EntityType string

const (
	EntityApplication EntityType = "application"
	EntityTask        EntityType = "task"
	EntityDocument    EntityType = "document"
	EntityEscalation  EntityType = "escalation"
	EntityComment     EntityType = "comment"
)

// Action values recorded on entries.
const (
	ActionApplicationSubmitted   = "application.submitted"
	ActionApplicationTransition  = "application.status_changed"
	ActionApplicationReviewers   = "application.reviewers_assigned"
	ActionApplicationArchived    = "application.archived"
	ActionTaskCreated            = "task.created"
	ActionTaskAssigned           = "task.assigned"
	ActionTaskReleased           = "task.released"
	ActionTaskResultRecorded     = "task.result_recorded"
	ActionTaskSkipped            = "task.skipped"
	ActionTaskHeld               = "task.held"
	ActionTaskHoldReleased       = "task.hold_released"
	ActionTaskSuperseded         = "task.superseded"
	ActionDocumentUploaded       = "document.uploaded"
	ActionDocumentVerified       = "document.verified"
	ActionDocumentRejected       = "document.rejected"
	ActionDocumentExpired        = "document.expired"
	ActionEscalationCreated      = "escalation.created"
	ActionEscalationReviewStart  = "escalation.review_started"
	ActionEscalationResolved     = "escalation.resolved"
	ActionEscalationFurther      = "escalation.escalated_further"
	ActionCommentAdded           = "comment.added"
)

// Entry is one immutable record of a state change. Previous and Next are
// canonical JSON snapshots of the entity; Previous is empty on creation.
// Entries for an entity form a hash chain ordered by EntitySeq.
type Entry struct {
	ID         uuid.UUID         `json:"id"`
	Seq        int64             `json:"seq"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	EntitySeq  int64             `json:"entity_seq"`
	ActorID    string            `json:"actor_id"`
	ActorType  domain.ActorType  `json:"actor_type"`
	Action     string            `json:"action"`
	Previous   json.RawMessage   `json:"previous,omitempty"`
	Next       json.RawMessage   `json:"next"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	PrevHash   string            `json:"prev_hash,omitempty"`
	Hash       string            `json:"hash"`
}

// Change describes a mutation to be recorded. Before is nil for creations.
type Change struct {
	EntityType EntityType
	EntityID   string
	Actor      domain.Actor
	Action     string
	Reason     string
	Metadata   map[string]string
	Before     any
	After      any
	At         time.Time
}
