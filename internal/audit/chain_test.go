package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vetting/internal/audit"
	"vetting/internal/domain"
)

type sampleEntity struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// sliceAppender chains entries in memory, one entity per instance.
type sliceAppender struct {
	entries []audit.Entry
	err     error
}

func (a *sliceAppender) Append(_ context.Context, e *audit.Entry) error {
	if a.err != nil {
		return a.err
	}
	var head *audit.Entry
	if n := len(a.entries); n > 0 {
		head = &a.entries[n-1]
	}
	if err := audit.Chain(e, head); err != nil {
		return err
	}
	e.Seq = int64(len(a.entries) + 1)
	a.entries = append(a.entries, *e)
	return nil
}

type ChainSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ChainSuite) record(a *sliceAppender, before, after *sampleEntity, action string) {
	var b any
	if before != nil {
		b = before
	}
	_, err := audit.Record(s.ctx, a, audit.Change{
		EntityType: audit.EntityTask,
		EntityID:   after.ID,
		Actor:      domain.SystemActor(),
		Action:     action,
		Before:     b,
		After:      after,
		At:         s.now,
	})
	s.Require().NoError(err)
}

func (s *ChainSuite) history() *sliceAppender {
	a := &sliceAppender{}
	v1 := &sampleEntity{ID: "t-1", Status: "pending", Version: 1}
	v2 := &sampleEntity{ID: "t-1", Status: "in_progress", Version: 2}
	v3 := &sampleEntity{ID: "t-1", Status: "completed", Version: 3}
	s.record(a, nil, v1, audit.ActionTaskCreated)
	s.record(a, v1, v2, audit.ActionTaskAssigned)
	s.record(a, v2, v3, audit.ActionTaskResultRecorded)
	return a
}

func (s *ChainSuite) TestSnapshot() {
	s.Run("is canonical regardless of key order", func() {
		a, err := audit.Snapshot(json.RawMessage(`{"b":1,"a":"x"}`))
		s.Require().NoError(err)
		b, err := audit.Snapshot(map[string]any{"a": "x", "b": 1})
		s.Require().NoError(err)
		s.Equal(string(a), string(b))
		s.Equal(`{"a":"x","b":1}`, string(a))
	})

	s.Run("nil values produce no snapshot", func() {
		var e *sampleEntity
		out, err := audit.Snapshot(e)
		s.Require().NoError(err)
		s.Nil(out)
	})
}

func (s *ChainSuite) TestChainAndReplay() {
	s.Run("links entries and replays the final state", func() {
		a := s.history()
		s.Require().Len(a.entries, 3)
		s.Empty(a.entries[0].PrevHash)
		s.Equal(a.entries[0].Hash, a.entries[1].PrevHash)
		s.Equal(a.entries[1].Hash, a.entries[2].PrevHash)

		out, err := audit.Replay(a.entries)
		s.Require().NoError(err)
		var got sampleEntity
		s.Require().NoError(json.Unmarshal(out, &got))
		s.Equal(sampleEntity{ID: "t-1", Status: "completed", Version: 3}, got)
	})

	s.Run("detects a tampered snapshot", func() {
		a := s.history()
		a.entries[1].Next = json.RawMessage(`{"id":"t-1","status":"failed","version":2}`)
		err := audit.VerifyChain(a.entries)
		var ce *audit.ChainError
		s.Require().ErrorAs(err, &ce)
		s.Equal(int64(2), ce.EntitySeq)
	})

	s.Run("detects a missing entry", func() {
		a := s.history()
		broken := []audit.Entry{a.entries[0], a.entries[2]}
		s.Error(audit.VerifyChain(broken))
	})

	s.Run("detects a previous snapshot that skips a state", func() {
		a := &sliceAppender{}
		v1 := &sampleEntity{ID: "t-1", Status: "pending", Version: 1}
		v2 := &sampleEntity{ID: "t-1", Status: "in_progress", Version: 2}
		s.record(a, nil, v1, audit.ActionTaskCreated)
		s.record(a, v2, v2, audit.ActionTaskAssigned)
		_, err := audit.Replay(a.entries)
		s.Error(err)
	})
}

func (s *ChainSuite) TestService() {
	s.Run("verify and replay through the reader", func() {
		a := s.history()
		svc := audit.NewService(readerFunc(a.entries))
		s.Require().NoError(svc.Verify(s.ctx, "t-1"))

		var got sampleEntity
		s.Require().NoError(svc.Replay(s.ctx, "t-1", &got))
		s.Equal("completed", got.Status)
	})
}

type readerFunc []audit.Entry

func (r readerFunc) ListByEntity(_ context.Context, entityID string) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range r {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r readerFunc) ListSince(_ context.Context, afterSeq int64, limit int) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range r {
		if e.Seq > afterSeq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}
