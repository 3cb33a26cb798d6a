package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"

	dErrors "vetting/pkg/domain-errors"
	"vetting/pkg/platform/sentinel"
	"vetting/pkg/requestcontext"
)

// Appender persists entries. Implementations chain each entry onto the
// entity's current head inside the caller's transaction.
type Appender interface {
	Append(ctx context.Context, e *Entry) error
}

// Record snapshots the change and appends it. Any failure is reported as an
// integrity failure so the surrounding transaction is rolled back. Version
// conflicts on the chain head stay retryable.
func Record(ctx context.Context, a Appender, c Change) (*Entry, error) {
	before, err := Snapshot(c.Before)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "failed to snapshot prior state")
	}
	after, err := Snapshot(c.After)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "failed to snapshot new state")
	}
	entry := &Entry{
		ID:         uuid.New(),
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		ActorID:    c.Actor.ID,
		ActorType:  c.Actor.Type,
		Action:     c.Action,
		Previous:   before,
		Next:       after,
		Reason:     c.Reason,
		Metadata:   mergeMetadata(requestcontext.AuditMetadata(ctx), c.Metadata),
		Timestamp:  c.At.UTC(),
	}
	if err := a.Append(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "audit chain moved concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "failed to persist audit entry")
	}
	return entry, nil
}

// mergeMetadata overlays explicit change metadata on request attributes.
func mergeMetadata(request, change map[string]string) map[string]string {
	if len(request) == 0 {
		return change
	}
	out := make(map[string]string, len(request)+len(change))
	for k, v := range request {
		out[k] = v
	}
	for k, v := range change {
		out[k] = v
	}
	return out
}
