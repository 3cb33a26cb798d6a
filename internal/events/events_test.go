package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/pkg/platform/circuit"
)

func entry(action string, entityType audit.EntityType, entityID string, prev, next string) *audit.Entry {
	e := &audit.Entry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    "system",
		ActorType:  domain.ActorSystem,
		Action:     action,
		Next:       []byte(next),
		Timestamp:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if prev != "" {
		e.Previous = []byte(prev)
	}
	return e
}

func TestFromEntry(t *testing.T) {
	t.Run("application transition carries both statuses", func(t *testing.T) {
		evt, ok := FromEntry(entry(audit.ActionApplicationTransition, audit.EntityApplication, "app-1",
			`{"status":"submitted"}`, `{"status":"in_review"}`))
		require.True(t, ok)
		assert.Equal(t, "app-1", evt.ApplicationID)
		assert.Equal(t, "submitted", evt.PrevStatus)
		assert.Equal(t, "in_review", evt.Status)
	})

	t.Run("task event resolves its application", func(t *testing.T) {
		evt, ok := FromEntry(entry(audit.ActionTaskResultRecorded, audit.EntityTask, "task-1",
			`{"status":"in_progress","application_id":"app-2"}`, `{"status":"completed","application_id":"app-2"}`))
		require.True(t, ok)
		assert.Equal(t, "app-2", evt.ApplicationID)
		assert.Equal(t, "task-1", evt.EntityID)
	})

	t.Run("internal bookkeeping is not published", func(t *testing.T) {
		_, ok := FromEntry(entry(audit.ActionTaskHeld, audit.EntityTask, "task-1", "", `{}`))
		assert.False(t, ok)
		_, ok = FromEntry(entry(audit.ActionCommentAdded, audit.EntityComment, "c-1", "", `{}`))
		assert.False(t, ok)
	})
}

func TestNotifyFiltersEntries(t *testing.T) {
	rec := NewRecorder()
	Notify(context.Background(), rec, nil,
		entry(audit.ActionTaskCreated, audit.EntityTask, "t-1", "", `{"application_id":"a"}`),
		entry(audit.ActionApplicationSubmitted, audit.EntityApplication, "a", "", `{"status":"submitted"}`),
	)
	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionApplicationSubmitted, events[0].Type)
	assert.Len(t, rec.OfType(audit.ActionApplicationSubmitted), 1)
}

type failingPublisher struct {
	calls atomic.Int32
	err   error
}

func (p *failingPublisher) Publish(context.Context, Event) error {
	p.calls.Add(1)
	return p.err
}

type DispatcherSuite struct {
	suite.Suite
	ctx context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *DispatcherSuite) TestFlushDeliversInOrder() {
	rec := NewRecorder()
	d := NewDispatcher(rec)
	for _, id := range []string{"1", "2", "3"} {
		s.Require().NoError(d.Publish(s.ctx, Event{ID: id}))
	}
	s.Equal(3, d.Pending())

	d.Flush(s.ctx)

	s.Equal(0, d.Pending())
	got := rec.Events()
	s.Require().Len(got, 3)
	s.Equal([]string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func (s *DispatcherSuite) TestFullBufferDropsOldest() {
	rec := NewRecorder()
	d := NewDispatcher(rec, WithBufferSize(2))
	for _, id := range []string{"1", "2", "3"} {
		s.Require().NoError(d.Publish(s.ctx, Event{ID: id}))
	}
	d.Flush(s.ctx)

	got := rec.Events()
	s.Require().Len(got, 2)
	s.Equal("2", got[0].ID)
	s.Equal("3", got[1].ID)
}

func (s *DispatcherSuite) TestOpenBreakerStopsCallingSink() {
	sink := &failingPublisher{err: errors.New("broker down")}
	breaker := circuit.New("events", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	d := NewDispatcher(sink, WithBreaker(breaker))
	for i := 0; i < 5; i++ {
		s.Require().NoError(d.Publish(s.ctx, Event{ID: "e"}))
	}

	d.Flush(s.ctx)

	s.True(breaker.IsOpen())
	s.Equal(int32(2), sink.calls.Load())
}

func (s *DispatcherSuite) TestRunFlushesOnShutdown() {
	rec := NewRecorder()
	d := NewDispatcher(rec, WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	s.Require().NoError(d.Publish(s.ctx, Event{ID: "last"}))
	s.Eventually(func() bool { return len(rec.Events()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	s.NoError(<-done)
}
