/**
 * Progress Tracker
 * Record-level progress tracking for one file import
 *
 * Features:
 * - Thread-safe processed/total record counters
 * - Pause-aware elapsed time
 * - Speed and ETA estimation with undeterminable guard
 * - Percentage held below 100 until completion
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-12: Initial implementation
 */

package progress

import (
	"math"
	"sync"
	"time"
)

// State represents the current state of a tracked import.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateError
)

// Calculating is shown while the ETA cannot be determined yet.
const Calculating = "Calculating..."

// Tracker tracks processed records against a known total.
type Tracker struct {
	startTime      time.Time
	lastPauseTime  time.Time
	pausedDuration time.Duration
	total          int64
	processed      int64
	seeded         int64
	state          State
	now            func() time.Time
	mu             sync.RWMutex
}

// NewTracker creates a tracker for total records.
func NewTracker(total int64) *Tracker {
	return &Tracker{
		total: total,
		state: StateIdle,
		now:   time.Now,
	}
}

// Start begins tracking.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		return
	}

	t.state = StateRunning
	t.startTime = t.now()
}

// Seed sets records already processed before a resume. They count
// towards the percentage but not the speed.
func (t *Tracker) Seed(processed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed = processed
	t.seeded = processed
}

// SetTotal updates the total record count.
func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
}

// Add records n processed records.
func (t *Tracker) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed += n
}

// Pause stops the elapsed clock.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return
	}

	t.state = StatePaused
	t.lastPauseTime = t.now()
}

// Resume restarts the elapsed clock.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePaused {
		return
	}

	t.state = StateRunning
	if !t.lastPauseTime.IsZero() {
		t.pausedDuration += t.now().Sub(t.lastPauseTime)
	}
}

// Complete marks the import finished.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateCompleted
}

// Fail marks the import as ended in error.
func (t *Tracker) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateError
}

// Snapshot returns a point-in-time view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		StartTime: t.startTime,
		Total:     t.total,
		Processed: t.processed,
		Seeded:    t.seeded,
		State:     t.state,
		Elapsed:   t.elapsed(),
	}
}

func (t *Tracker) elapsed() time.Duration {
	if t.startTime.IsZero() {
		return 0
	}

	elapsed := t.now().Sub(t.startTime) - t.pausedDuration
	if t.state == StatePaused && !t.lastPauseTime.IsZero() {
		elapsed -= t.now().Sub(t.lastPauseTime)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Snapshot represents a point-in-time view of progress.
type Snapshot struct {
	StartTime time.Time
	Total     int64
	Processed int64
	Seeded    int64
	State     State
	Elapsed   time.Duration
}

// Percentage returns round(processed/total*100). It only reaches 100 once
// the tracker is completed.
func (s Snapshot) Percentage() int {
	if s.State == StateCompleted {
		return 100
	}
	if s.Total <= 0 {
		return 0
	}

	pct := int(math.Round(float64(s.Processed) / float64(s.Total) * 100))
	if pct >= 100 {
		return 99
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// Speed returns records per second processed in this run.
func (s Snapshot) Speed() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	speed := float64(s.Processed-s.Seeded) / secs
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0
	}
	return speed
}

// ETA estimates the remaining time. ok is false when no estimate exists.
func (s Snapshot) ETA() (time.Duration, bool) {
	speed := s.Speed()
	if speed <= 0 || s.Total <= 0 {
		return 0, false
	}

	remaining := float64(s.Total-s.Processed) / speed
	if remaining < 0 {
		remaining = 0
	}
	if math.IsNaN(remaining) || math.IsInf(remaining, 0) || remaining > math.MaxInt64/float64(time.Second) {
		return 0, false
	}
	return time.Duration(remaining * float64(time.Second)), true
}

// ETAString formats the ETA, or Calculating when it is not determinable.
func (s Snapshot) ETAString() string {
	eta, ok := s.ETA()
	if !ok {
		return Calculating
	}
	return FormatDuration(eta)
}
