package internal

import (
	"sync"

	"github.com/pkg/errors"
)

// Scheduler owns the sweep clock and guards the single-writer contract: one
// goroutine at a time drives a driver's tree.
type Scheduler struct {
	mu sync.Mutex

	// incremented at the start of every sweep
	clock int

	// set while a render call is in progress
	running bool
	owner   int64

	// set while a sweep drains the work heap
	sweeping bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Acquire marks the calling goroutine as the driver of the tree. A second
// goroutine gets ErrConcurrentRender; phase logic calling back into the
// driver gets ErrInvariant.
func (s *Scheduler) Acquire() error {
	gid := goroutineID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		if s.owner == gid {
			return &ConfigError{Err: errors.Wrap(ErrInvariant, "render called from inside a phase")}
		}
		return errors.WithStack(ErrConcurrentRender)
	}

	s.running = true
	s.owner = gid
	return nil
}

func (s *Scheduler) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.owner = 0
}

// CheckWriter fails when another goroutine is currently driving the tree.
func (s *Scheduler) CheckWriter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.owner != goroutineID() {
		return errors.WithStack(ErrConcurrentRender)
	}
	return nil
}

// Tick starts a new sweep and returns its number.
func (s *Scheduler) Tick() int {
	s.clock++
	return s.clock
}

// Time is the number of the current (or last) sweep.
func (s *Scheduler) Time() int {
	return s.clock
}

func (s *Scheduler) Sweeping() bool {
	return s.sweeping
}
