package domain

import (
	"time"

	id "vetting/pkg/domain"
)

// Comment is an append-only note on an application or one of its tasks.
// Internal comments are never shown to applicants; Visibility is the minimum
// officer access level allowed to read it.
type Comment struct {
	ID            id.CommentID     `json:"id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	TaskID        *id.TaskID       `json:"task_id,omitempty"`
	AuthorID      string           `json:"author_id"`
	AuthorType    ActorType        `json:"author_type"`
	Text          string           `json:"text"`
	Internal      bool             `json:"internal"`
	Visibility    int              `json:"visibility"`
	Flagged       bool             `json:"flagged"`
	CreatedAt     time.Time        `json:"created_at"`
}

// VisibleTo reports whether a reader may see the comment. Officers see
// comments up to their access level. Applicants see external comments whose
// visibility does not exceed their level, which is always zero.
func (c *Comment) VisibleTo(actorType ActorType, accessLevel int) bool {
	switch actorType {
	case ActorOfficer:
		return c.Visibility <= accessLevel
	case ActorSystem:
		return true
	}
	return !c.Internal && c.Visibility <= accessLevel
}
