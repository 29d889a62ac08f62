// ============================================================================
// LSSEFT Scheduler - worker pool state machine
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: Track which workers of one phase can receive new work.
//
// Worker state:
//   uninitialized --Initialize--> idle <--Assign/Unassign--> assigned
//   idle --MarkInactive--> inactive (permanent for the phase)
//
// Counters:
//   waiting     workers that have not acknowledged the phase yet
//   unassigned  initialized, active workers holding no item
//   active      workers not yet marked inactive
//
// Concurrency:
//   None. The scheduler is owned by the master event loop and never shared.
//   A fresh Scheduler is built for every phase.
//
// ============================================================================

package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownWorker      = errors.New("unknown worker")
	ErrAlreadyInitialized = errors.New("worker already initialized")
	ErrNotInitialized     = errors.New("worker not initialized")
	ErrAlreadyAssigned    = errors.New("worker already assigned")
	ErrNotAssigned        = errors.New("worker not assigned")
	ErrNoCapacity         = errors.New("no unassigned workers")
	ErrInactive           = errors.New("worker inactive")
)

// Slot is the per-worker record.
type Slot struct {
	Number      int
	Initialized bool
	Active      bool
	Assigned    bool
}

// Scheduler holds one slot per worker, numbered 0..n-1.
type Scheduler struct {
	slots      []Slot
	waiting    int
	unassigned int
	active     int
}

// New creates a scheduler for n workers, all uninitialized and active.
func New(n int) *Scheduler {
	s := &Scheduler{
		slots:   make([]Slot, n),
		waiting: n,
		active:  n,
	}
	for i := range s.slots {
		s.slots[i] = Slot{Number: i, Active: true}
	}
	return s
}

// Size returns the number of workers.
func (s *Scheduler) Size() int { return len(s.slots) }

func (s *Scheduler) slot(w int) (*Slot, error) {
	if w < 0 || w >= len(s.slots) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorker, w)
	}
	return &s.slots[w], nil
}

// Initialize records that worker w acknowledged the phase.
func (s *Scheduler) Initialize(w int) error {
	sl, err := s.slot(w)
	if err != nil {
		return err
	}
	if sl.Initialized {
		return fmt.Errorf("%w: %d", ErrAlreadyInitialized, w)
	}
	sl.Initialized = true
	s.waiting--
	if sl.Active && !sl.Assigned {
		s.unassigned++
	}
	return nil
}

// IsReady reports whether every worker has been initialized.
func (s *Scheduler) IsReady() bool { return s.waiting == 0 }

// IsAssignable reports whether at least one worker can take an item.
func (s *Scheduler) IsAssignable() bool { return s.unassigned > 0 }

// Assign marks w as holding an item.
func (s *Scheduler) Assign(w int) error {
	sl, err := s.slot(w)
	if err != nil {
		return err
	}
	switch {
	case !sl.Initialized:
		return fmt.Errorf("%w: %d", ErrNotInitialized, w)
	case !sl.Active:
		return fmt.Errorf("%w: %d", ErrInactive, w)
	case sl.Assigned:
		return fmt.Errorf("%w: %d", ErrAlreadyAssigned, w)
	case s.unassigned == 0:
		return ErrNoCapacity
	}
	sl.Assigned = true
	s.unassigned--
	return nil
}

// Unassign frees w after its result arrived.
func (s *Scheduler) Unassign(w int) error {
	sl, err := s.slot(w)
	if err != nil {
		return err
	}
	if !sl.Assigned {
		return fmt.Errorf("%w: %d", ErrNotAssigned, w)
	}
	sl.Assigned = false
	s.unassigned++
	return nil
}

// MarkInactive retires w for the rest of the phase.
func (s *Scheduler) MarkInactive(w int) error {
	sl, err := s.slot(w)
	if err != nil {
		return err
	}
	switch {
	case !sl.Initialized:
		return fmt.Errorf("%w: %d", ErrNotInitialized, w)
	case !sl.Active:
		return fmt.Errorf("%w: %d", ErrInactive, w)
	case sl.Assigned:
		return fmt.Errorf("%w: cannot retire %d", ErrAlreadyAssigned, w)
	}
	sl.Active = false
	s.active--
	s.unassigned--
	return nil
}

// Unassigned lists initialized, active, unassigned workers in ascending order.
func (s *Scheduler) Unassigned() []int {
	out := make([]int, 0, s.unassigned)
	for _, sl := range s.slots {
		if sl.Initialized && sl.Active && !sl.Assigned {
			out = append(out, sl.Number)
		}
	}
	return out
}

// AllInactive reports whether every worker has been retired.
func (s *Scheduler) AllInactive() bool { return s.active == 0 }

// Slot returns a copy of w's record.
func (s *Scheduler) Slot(w int) (Slot, error) {
	sl, err := s.slot(w)
	if err != nil {
		return Slot{}, err
	}
	return *sl, nil
}
