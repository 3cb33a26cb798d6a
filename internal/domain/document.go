package domain

import (
	"slices"
	"time"

	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
	DocumentExpired  DocumentStatus = "expired"
)

type UploaderRole string

const (
	UploaderApplicant UploaderRole = "applicant"
	UploaderOfficer   UploaderRole = "officer"
	UploaderSystem    UploaderRole = "system"
)

func (r UploaderRole) IsValid() bool {
	return r == UploaderApplicant || r == UploaderOfficer || r == UploaderSystem
}

// Document is uploaded evidence attached to an application and optionally a task.
//
// Invariants:
//   - Status moves pending -> {verified|rejected}, then verified -> expired
//   - VerifiedBy and VerifiedAt are set together when a decision is made
//   - ContentHash never changes after upload
type Document struct {
	ID            id.DocumentID    `json:"id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	TaskID        *id.TaskID       `json:"task_id,omitempty"`
	Type          DocumentType     `json:"type"`
	Filename      string           `json:"filename"`
	SizeBytes     int64            `json:"size_bytes"`
	ContentHash   string           `json:"content_hash"`
	UploaderRole  UploaderRole     `json:"uploader_role"`
	UploadedBy    string           `json:"uploaded_by"`
	Status        DocumentStatus   `json:"status"`
	VerifiedBy    *id.OfficerID    `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time       `json:"verified_at,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	UploadedAt    time.Time        `json:"uploaded_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int64            `json:"version"`
}

// Satisfies reports whether the document can back a requirement of docType
// for taskID. Application-level documents satisfy every task.
func (d *Document) Satisfies(docType DocumentType, taskID id.TaskID) bool {
	if d.Type != docType {
		return false
	}
	return d.TaskID == nil || *d.TaskID == taskID
}

// CanVerify allows one decision on a pending document. A document past its
// expiry may still be rejected but not approved.
func (d *Document) CanVerify(approve bool, now time.Time) error {
	if d.Status != DocumentPending {
		return dErrors.New(dErrors.CodeAlreadyVerified, "document has already been decided").
			WithDetails(d.ID.String(), string(d.Status), "verify")
	}
	if approve && d.LapsedAt(now) {
		return dErrors.New(dErrors.CodeInvalidState, "document expired before it was verified").
			WithDetails(d.ID.String(), string(d.Status), "verify")
	}
	return nil
}

// LapsedAt reports whether the document's expiry, if any, is at or before now,
// whatever its status.
func (d *Document) LapsedAt(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

func (d *Document) ApplyVerification(officerID id.OfficerID, approve bool, notes string, now time.Time) {
	d.Status = DocumentRejected
	if approve {
		d.Status = DocumentVerified
	}
	o := officerID
	d.VerifiedBy = &o
	at := now
	d.VerifiedAt = &at
	d.Notes = notes
	d.UpdatedAt = now
}

// IsExpiredAt reports whether a verified document has passed its expiry.
func (d *Document) IsExpiredAt(now time.Time) bool {
	return d.Status == DocumentVerified && d.LapsedAt(now)
}

func (d *Document) ApplyExpiry(now time.Time) {
	d.Status = DocumentExpired
	d.UpdatedAt = now
}

// MissingDocuments returns the task's required document types that have no
// satisfying document in one of the accepted statuses, in requirement order.
// Documents past their expiry at now never satisfy a requirement, even before
// the sweeper marks them expired.
func MissingDocuments(task *Task, docs []*Document, now time.Time, accepted ...DocumentStatus) []DocumentType {
	var missing []DocumentType
	for _, required := range task.RequiredDocuments {
		found := false
		for _, d := range docs {
			if d.Satisfies(required, task.ID) && slices.Contains(accepted, d.Status) && !d.LapsedAt(now) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}
	return missing
}
