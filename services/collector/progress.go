package collector

import (
	"log/slog"
	"sync"
	"time"
)

type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseNavigating Phase = "navigating"
	PhaseCollecting Phase = "collecting"
	PhaseDedup      Phase = "deduplicating"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// Progress is a point-in-time snapshot of a collection session.
type Progress struct {
	SessionID string   `json:"sessionId"`
	Phase     Phase    `json:"phase"`
	Category  Category `json:"category,omitempty"`
	// Collected counts unique reviews gathered so far across categories.
	Collected int `json:"collected"`
	Target    int `json:"target"`
	// Percent is overall completion in [0,100].
	Percent float64 `json:"percent"`
	// EstimatedRemaining is zero until enough samples exist to project a
	// rate.
	EstimatedRemaining time.Duration `json:"estimatedRemainingMs"`
	Message            string        `json:"message,omitempty"`
}

// ProgressSink receives progress snapshots. Implementations must not
// block; slow consumers should buffer on their side.
type ProgressSink interface {
	OnProgress(p Progress)
}

type ProgressFunc func(p Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// ProgressTracker fans snapshots out to sinks and derives percent and ETA
// from the collection rate. A panicking sink is logged and skipped; it
// never takes the session down.
type ProgressTracker struct {
	mu        sync.Mutex
	sinks     []ProgressSink
	sessionID string
	target    int
	collected int
	phase     Phase
	category  Category
	startedAt time.Time
}

func NewProgressTracker(sessionID string, target int, sinks ...ProgressSink) *ProgressTracker {
	return &ProgressTracker{
		sinks:     sinks,
		sessionID: sessionID,
		target:    target,
		phase:     PhasePending,
		startedAt: time.Now(),
	}
}

func (t *ProgressTracker) SetPhase(phase Phase, category Category, message string) {
	t.mu.Lock()
	t.phase = phase
	t.category = category
	snapshot := t.snapshotLocked(message)
	t.mu.Unlock()
	t.publish(snapshot)
}

func (t *ProgressTracker) SetCollected(collected int) {
	t.mu.Lock()
	t.collected = collected
	snapshot := t.snapshotLocked("")
	t.mu.Unlock()
	t.publish(snapshot)
}

func (t *ProgressTracker) snapshotLocked(message string) Progress {
	p := Progress{
		SessionID: t.sessionID,
		Phase:     t.phase,
		Category:  t.category,
		Collected: t.collected,
		Target:    t.target,
		Message:   message,
	}

	// collection spans 0-90%, dedup parks at 95%, complete is 100%
	switch t.phase {
	case PhaseComplete:
		p.Percent = 100
	case PhaseDedup:
		p.Percent = 95
	case PhaseError:
		p.Percent = 0
	default:
		if t.target > 0 {
			fraction := float64(t.collected) / float64(t.target)
			if fraction > 1 {
				fraction = 1
			}
			p.Percent = fraction * 90
		}
	}

	if t.phase == PhaseCollecting && t.collected > 0 && t.target > t.collected {
		elapsed := time.Since(t.startedAt)
		if elapsed > 0 {
			rate := float64(t.collected) / float64(elapsed)
			remaining := float64(t.target-t.collected) / rate
			p.EstimatedRemaining = time.Duration(remaining)
		}
	}
	return p
}

func (t *ProgressTracker) publish(p Progress) {
	t.mu.Lock()
	sinks := append([]ProgressSink{}, t.sinks...)
	t.mu.Unlock()
	for _, sink := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("progress sink panicked", "panic", r)
				}
			}()
			sink.OnProgress(p)
		}()
	}
}
