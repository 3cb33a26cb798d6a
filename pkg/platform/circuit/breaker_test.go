package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replay feeds call outcomes to b: f fails, s succeeds.
func replay(b *Breaker, outcomes string) (opened, closed int) {
	for _, o := range outcomes {
		var change StateChange
		if o == 'f' {
			_, change = b.RecordFailure()
		} else {
			_, change = b.RecordSuccess()
		}
		if change.Opened {
			opened++
		}
		if change.Closed {
			closed++
		}
	}
	return opened, closed
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		successes  int
		outcomes   string
		wantOpen   bool
		wantOpened int
		wantClosed int
	}{
		{name: "starts closed", failures: 3, successes: 1, outcomes: "", wantOpen: false},
		{name: "below threshold", failures: 3, successes: 1, outcomes: "ff", wantOpen: false},
		{name: "opens at threshold", failures: 3, successes: 1, outcomes: "fff", wantOpen: true, wantOpened: 1},
		{name: "further failures do not reopen", failures: 1, successes: 1, outcomes: "fff", wantOpen: true, wantOpened: 1},
		{name: "success resets failure run", failures: 3, successes: 1, outcomes: "ffsff", wantOpen: false},
		{name: "needs consecutive successes", failures: 1, successes: 2, outcomes: "fs", wantOpen: true, wantOpened: 1},
		{name: "closes after success run", failures: 1, successes: 2, outcomes: "fss", wantOpen: false, wantOpened: 1, wantClosed: 1},
		{name: "failure resets success run", failures: 1, successes: 3, outcomes: "fssfss", wantOpen: true, wantOpened: 1},
		{name: "reopens after closing", failures: 1, successes: 1, outcomes: "fsf", wantOpen: true, wantOpened: 2, wantClosed: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("events", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			opened, closed := replay(b, tt.outcomes)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
			assert.Equal(t, tt.wantOpened, opened)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}

func TestOpenBreakerReportsFallback(t *testing.T) {
	b := New("events", WithFailureThreshold(1))
	useFallback, _ := b.RecordFailure()
	require.True(t, useFallback)

	usePrimary, _ := b.RecordSuccess()
	assert.True(t, usePrimary, "a single success closes with the default threshold")
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "events", b.Name())
}

func TestCooldownGatesProbes(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := New("events", WithFailureThreshold(1), WithCooldown(time.Minute), WithNow(func() time.Time { return now }))

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())
	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "probe allowed once cooldown elapses")

	b.RecordFailure()
	assert.False(t, b.Allow(), "a failed probe restarts the cooldown")

	b.Reset()
	assert.True(t, b.Allow())
}
