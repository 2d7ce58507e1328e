package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	snapshots []Progress
}

func (s *recordingSink) OnProgress(p Progress) {
	s.snapshots = append(s.snapshots, p)
}

func TestProgressPercentages(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewProgressTracker("session-1", 300, sink)

	tracker.SetPhase(PhaseCollecting, CategoryRecent, "")
	tracker.SetCollected(150)
	tracker.SetPhase(PhaseDedup, "", "")
	tracker.SetPhase(PhaseComplete, "", "")

	require.Len(t, sink.snapshots, 4)
	for _, p := range sink.snapshots {
		require.Equal(t, "session-1", p.SessionID)
	}

	// halfway through collection sits at half of the 90% collection band
	require.InDelta(t, 45, sink.snapshots[1].Percent, 0.01)
	require.Equal(t, float64(95), sink.snapshots[2].Percent)
	require.Equal(t, float64(100), sink.snapshots[3].Percent)
}

func TestProgressPercentNeverExceedsBand(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewProgressTracker("session-1", 100, sink)
	tracker.SetPhase(PhaseCollecting, CategoryRecent, "")

	// over-collection past the target must not push percent past the band
	tracker.SetCollected(250)
	require.Equal(t, float64(90), sink.snapshots[1].Percent)
}

func TestProgressETA(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewProgressTracker("session-1", 100, sink)
	tracker.SetPhase(PhaseCollecting, CategoryRecent, "")
	tracker.SetCollected(50)

	latest := sink.snapshots[len(sink.snapshots)-1]
	require.Greater(t, latest.EstimatedRemaining, time.Duration(0),
		"a projectable rate yields a nonzero ETA")
}

func TestProgressSinkPanicIsolated(t *testing.T) {
	panicking := ProgressFunc(func(Progress) { panic("sink exploded") })
	sink := &recordingSink{}
	tracker := NewProgressTracker("session-1", 100, panicking, sink)

	require.NotPanics(t, func() {
		tracker.SetPhase(PhaseCollecting, CategoryRecent, "")
		tracker.SetCollected(10)
	})
	// the healthy sink still received every snapshot
	require.Len(t, sink.snapshots, 2)
}
