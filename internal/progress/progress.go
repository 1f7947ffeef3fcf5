// Package progress estimates the time remaining for a batch of uniform tasks.
package progress

import (
	"sync"
	"time"
)

// Estimate projects the remaining time linearly from the observed throughput:
// estimatedTotal = elapsed * total / completed, remaining = estimatedTotal - elapsed.
// It returns zero when nothing completed yet or the batch is done.
func Estimate(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || completed >= total {
		return 0
	}
	estimatedTotal := time.Duration(float64(elapsed) * float64(total) / float64(completed))
	return estimatedTotal - elapsed
}

// Snapshot is the state reported at a checkpoint.
type Snapshot struct {
	Completed int
	Total     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// Percent returns the completed fraction as a percentage.
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Completed) * 100 / float64(s.Total)
}

type TrackerOption func(t *Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithInterval sets how many completions separate two checkpoints.
func WithInterval(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.interval = n
		}
	}
}

// Tracker counts completions and emits a Snapshot every interval completions.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	start     time.Time
	interval  int
	total     int
	completed int
}

// NewTracker starts tracking a batch of total tasks.
func NewTracker(total int, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:      time.Now,
		interval: 100,
		total:    total,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.start = t.now()
	return t
}

// Done records one completion. It returns a Snapshot and true when the
// completion lands on a checkpoint.
func (t *Tracker) Done() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if t.completed%t.interval != 0 {
		return Snapshot{}, false
	}
	return t.snapshotLocked(), true
}

// Snapshot returns the current state regardless of checkpoints.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	elapsed := t.now().Sub(t.start)
	return Snapshot{
		Completed: t.completed,
		Total:     t.total,
		Elapsed:   elapsed,
		Remaining: Estimate(elapsed, t.completed, t.total),
	}
}
