package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "vetting/pkg/domain-errors"
)

// Typed identifiers keep application, task and officer IDs from being mixed up
// at call sites. All of them are UUIDs underneath and share the same parsing rules.
type (
	ApplicationID uuid.UUID
	TaskID        uuid.UUID
	DocumentID    uuid.UUID
	EscalationID  uuid.UUID
	CommentID     uuid.UUID
	OfficerID     uuid.UUID
	CompanyID     uuid.UUID
)

// maxIDLength bounds the input accepted at trust boundaries before parsing.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

func unmarshalUUID(kind string, b []byte) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(kind, string(b))
}

func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewTaskID() TaskID               { return TaskID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }
func NewEscalationID() EscalationID   { return EscalationID(uuid.New()) }
func NewCommentID() CommentID         { return CommentID(uuid.New()) }
func NewOfficerID() OfficerID         { return OfficerID(uuid.New()) }
func NewCompanyID() CompanyID         { return CompanyID(uuid.New()) }

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("application_id", s)
	return ApplicationID(u), err
}

func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID("task_id", s)
	return TaskID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document_id", s)
	return DocumentID(u), err
}

func ParseEscalationID(s string) (EscalationID, error) {
	u, err := parseUUID("escalation_id", s)
	return EscalationID(u), err
}

func ParseCommentID(s string) (CommentID, error) {
	u, err := parseUUID("comment_id", s)
	return CommentID(u), err
}

func ParseOfficerID(s string) (OfficerID, error) {
	u, err := parseUUID("officer_id", s)
	return OfficerID(u), err
}

func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID("company_id", s)
	return CompanyID(u), err
}

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *ApplicationID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("application_id", b)
	*id = ApplicationID(u)
	return err
}

func (id TaskID) String() string { return uuid.UUID(id).String() }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *TaskID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("task_id", b)
	*id = TaskID(u)
	return err
}

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *DocumentID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("document_id", b)
	*id = DocumentID(u)
	return err
}

func (id EscalationID) String() string { return uuid.UUID(id).String() }
func (id EscalationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EscalationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *EscalationID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("escalation_id", b)
	*id = EscalationID(u)
	return err
}

func (id CommentID) String() string { return uuid.UUID(id).String() }
func (id CommentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CommentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *CommentID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("comment_id", b)
	*id = CommentID(u)
	return err
}

func (id OfficerID) String() string { return uuid.UUID(id).String() }
func (id OfficerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OfficerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *OfficerID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("officer_id", b)
	*id = OfficerID(u)
	return err
}

func (id CompanyID) String() string { return uuid.UUID(id).String() }
func (id CompanyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CompanyID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *CompanyID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID("company_id", b)
	*id = CompanyID(u)
	return err
}
