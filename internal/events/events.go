// Package events publishes status-change notifications for an external
// notification collaborator. Events are derived from committed audit
// entries and are published after the transaction, so a lost event never
// leaves state without history: consumers can always catch up from the log.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"vetting/internal/audit"
)

// Event is the outbound notification payload.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	EntityType    audit.EntityType  `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	ApplicationID string            `json:"application_id"`
	Status        string            `json:"status,omitempty"`
	PrevStatus    string            `json:"prev_status,omitempty"`
	ActorID       string            `json:"actor_id"`
	ActorType     string            `json:"actor_type"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// notifiable lists the audit actions that external parties care about.
var notifiable = map[string]bool{
	audit.ActionApplicationSubmitted:  true,
	audit.ActionApplicationTransition: true,
	audit.ActionApplicationArchived:   true,
	audit.ActionTaskAssigned:          true,
	audit.ActionTaskResultRecorded:    true,
	audit.ActionTaskSkipped:           true,
	audit.ActionDocumentVerified:      true,
	audit.ActionDocumentRejected:      true,
	audit.ActionDocumentExpired:       true,
	audit.ActionEscalationCreated:     true,
	audit.ActionEscalationResolved:    true,
	audit.ActionEscalationFurther:     true,
}

type snapshotFields struct {
	Status        string `json:"status"`
	ApplicationID string `json:"application_id"`
}

// FromEntry converts a committed audit entry into an event. ok is false for
// actions that are not published.
func FromEntry(e *audit.Entry) (evt Event, ok bool) {
	if e == nil || !notifiable[e.Action] {
		return Event{}, false
	}
	var next, prev snapshotFields
	_ = json.Unmarshal(e.Next, &next)
	if len(e.Previous) > 0 {
		_ = json.Unmarshal(e.Previous, &prev)
	}
	appID := next.ApplicationID
	if e.EntityType == audit.EntityApplication {
		appID = e.EntityID
	}
	return Event{
		ID:            e.ID.String(),
		Type:          e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		ApplicationID: appID,
		Status:        next.Status,
		PrevStatus:    prev.Status,
		ActorID:       e.ActorID,
		ActorType:     string(e.ActorType),
		Reason:        e.Reason,
		Metadata:      e.Metadata,
		OccurredAt:    e.Timestamp,
	}, true
}

// Notify publishes events for committed entries. Failures are logged and
// never returned: the mutation and its audit entry are already durable.
func Notify(ctx context.Context, p Publisher, logger *slog.Logger, entries ...*audit.Entry) {
	if p == nil {
		return
	}
	for _, e := range entries {
		evt, ok := FromEntry(e)
		if !ok {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil && logger != nil {
			logger.WarnContext(ctx, "failed to publish event",
				"event_type", evt.Type,
				"entity_id", evt.EntityID,
				"error", err,
			)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory, for tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
