package audit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"vetting/internal/audit"
	"vetting/internal/domain"
)

// TestReplayReconstructsFinalState checks that any sequence of recorded
// changes verifies and replays to the last state written.
// Property: Replay(Record(s1..sn)) == sn
func TestReplayReconstructsFinalState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replay returns the last snapshot", prop.ForAll(
		func(statuses []string) bool {
			if len(statuses) == 0 {
				return true
			}
			ctx := context.Background()
			a := &sliceAppender{}
			at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			var prev *sampleEntity
			for i, status := range statuses {
				next := &sampleEntity{ID: "e-1", Status: status, Version: int64(i + 1)}
				var before any
				if prev != nil {
					before = prev
				}
				_, err := audit.Record(ctx, a, audit.Change{
					EntityType: audit.EntityApplication,
					EntityID:   "e-1",
					Actor:      domain.SystemActor(),
					Action:     fmt.Sprintf("step-%d", i),
					Before:     before,
					After:      next,
					At:         at.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					return false
				}
				prev = next
			}
			out, err := audit.Replay(a.entries)
			if err != nil {
				return false
			}
			want, err := audit.Snapshot(prev)
			if err != nil {
				return false
			}
			return string(out) == string(want)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
