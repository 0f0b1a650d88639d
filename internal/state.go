package internal

import "time"

// Timing records the last run of a phase and how often it ran.
type Timing struct {
	Started  time.Time
	Ended    time.Time
	Duration time.Duration
	Runs     int
}

// PhaseTable holds the status of every phase for one node. Entries start out
// pending, so a table is valid as soon as it is allocated.
type PhaseTable struct {
	status []Status
	timing []Timing
}

func newPhaseTable(size int) *PhaseTable {
	return &PhaseTable{
		status: make([]Status, size),
		timing: make([]Timing, size),
	}
}

func (t *PhaseTable) Status(i int) Status { return t.status[i] }

func (t *PhaseTable) Timing(i int) Timing { return t.timing[i] }

// CanRun is true iff every earlier phase is complete and phase i is pending
// or dirty.
func (t *PhaseTable) CanRun(i int) bool {
	if !t.status[i].runnable() {
		return false
	}
	for k := 0; k < i; k++ {
		if t.status[k] != StatusComplete {
			return false
		}
	}
	return true
}

// next returns the first runnable phase, if any. Phases after the first
// incomplete one are never runnable.
func (t *PhaseTable) next() (int, bool) {
	for i, s := range t.status {
		if s == StatusComplete {
			continue
		}
		return i, s.runnable()
	}
	return 0, false
}

// complete reports whether every phase is complete.
func (t *PhaseTable) complete() bool {
	for _, s := range t.status {
		if s != StatusComplete {
			return false
		}
	}
	return true
}

// earlierComplete reports whether every phase before i is complete.
func (t *PhaseTable) earlierComplete(i int) bool {
	for k := 0; k < i; k++ {
		if t.status[k] != StatusComplete {
			return false
		}
	}
	return true
}

func (t *PhaseTable) beginRun(i int, now time.Time) bool {
	if !t.CanRun(i) {
		return false
	}
	t.status[i] = StatusRunning
	t.timing[i].Started = now
	return true
}

func (t *PhaseTable) completeRun(i int, now time.Time) bool {
	if t.status[i] != StatusRunning {
		return false
	}
	t.status[i] = StatusComplete
	t.timing[i].Ended = now
	t.timing[i].Duration = now.Sub(t.timing[i].Started)
	t.timing[i].Runs++
	return true
}

// abortRun puts a failed phase back to dirty so a later render can retry it.
func (t *PhaseTable) abortRun(i int, now time.Time) {
	if t.status[i] != StatusRunning {
		return
	}
	t.status[i] = StatusDirty
	t.timing[i].Ended = now
	t.timing[i].Duration = now.Sub(t.timing[i].Started)
}

// runningFrom returns the first running phase at or after i.
func (t *PhaseTable) runningFrom(i int) (int, bool) {
	for k := i; k < len(t.status); k++ {
		if t.status[k] == StatusRunning {
			return k, true
		}
	}
	return 0, false
}

// markDirty sets phase i and every later phase to dirty. The caller has
// already checked that none of them is running.
func (t *PhaseTable) markDirty(i int) {
	for k := i; k < len(t.status); k++ {
		t.status[k] = StatusDirty
	}
}
