package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func initAll(t *testing.T, s *Scheduler) {
	t.Helper()
	for w := 0; w < s.Size(); w++ {
		require.NoError(t, s.Initialize(w))
	}
}

func TestReadiness(t *testing.T) {
	s := New(3)
	assert.False(t, s.IsReady())
	assert.False(t, s.IsAssignable())

	require.NoError(t, s.Initialize(2))
	require.NoError(t, s.Initialize(0))
	assert.False(t, s.IsReady())
	assert.True(t, s.IsAssignable(), "initialized workers can already take work")

	require.NoError(t, s.Initialize(1))
	assert.True(t, s.IsReady())
	assert.Equal(t, []int{0, 1, 2}, s.Unassigned())
}

func TestInitializeTwiceIsViolation(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Initialize(0))
	assert.ErrorIs(t, s.Initialize(0), ErrAlreadyInitialized)
	assert.ErrorIs(t, s.Initialize(5), ErrUnknownWorker)
}

func TestAssignUnassignRoundTrip(t *testing.T) {
	s := New(2)
	initAll(t, s)

	require.NoError(t, s.Assign(1))
	assert.Equal(t, []int{0}, s.Unassigned())
	assert.ErrorIs(t, s.Assign(1), ErrAlreadyAssigned)

	require.NoError(t, s.Unassign(1))
	assert.Equal(t, []int{0, 1}, s.Unassigned())
	assert.ErrorIs(t, s.Unassign(1), ErrNotAssigned)
}

func TestAssignRequiresInitialization(t *testing.T) {
	s := New(1)
	assert.ErrorIs(t, s.Assign(0), ErrNotInitialized)
}

func TestMarkInactive(t *testing.T) {
	s := New(2)
	initAll(t, s)

	require.NoError(t, s.Assign(0))
	assert.ErrorIs(t, s.MarkInactive(0), ErrAlreadyAssigned)

	require.NoError(t, s.MarkInactive(1))
	assert.ErrorIs(t, s.MarkInactive(1), ErrInactive)
	assert.ErrorIs(t, s.Assign(1), ErrInactive)
	assert.False(t, s.AllInactive())

	require.NoError(t, s.Unassign(0))
	require.NoError(t, s.MarkInactive(0))
	assert.True(t, s.AllInactive())
	assert.False(t, s.IsAssignable())
	assert.Empty(t, s.Unassigned())
}

func TestZeroWorkers(t *testing.T) {
	s := New(0)
	assert.True(t, s.IsReady())
	assert.True(t, s.AllInactive())
	assert.False(t, s.IsAssignable())
}

// The counters must always agree with a recount over the slots, whatever
// sequence of legal and illegal operations is applied.
func TestCountersMatchSlots(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "workers")
		s := New(n)

		steps := rapid.IntRange(0, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			w := rapid.IntRange(0, n-1).Draw(t, "worker")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_ = s.Initialize(w)
			case 1:
				_ = s.Assign(w)
			case 2:
				_ = s.Unassign(w)
			case 3:
				_ = s.MarkInactive(w)
			}

			waiting, unassigned, active := 0, 0, 0
			for j := 0; j < n; j++ {
				sl, err := s.Slot(j)
				if err != nil {
					t.Fatal(err)
				}
				if !sl.Initialized {
					waiting++
				}
				if sl.Active {
					active++
				}
				if sl.Initialized && sl.Active && !sl.Assigned {
					unassigned++
				}
				if sl.Assigned && !sl.Active {
					t.Fatalf("worker %d assigned while inactive", j)
				}
			}
			if s.IsReady() != (waiting == 0) {
				t.Fatalf("IsReady=%v with %d waiting", s.IsReady(), waiting)
			}
			if s.IsAssignable() != (unassigned > 0) {
				t.Fatalf("IsAssignable=%v with %d unassigned", s.IsAssignable(), unassigned)
			}
			if len(s.Unassigned()) != unassigned {
				t.Fatalf("Unassigned()=%v, want %d entries", s.Unassigned(), unassigned)
			}
			if s.AllInactive() != (active == 0) {
				t.Fatalf("AllInactive=%v with %d active", s.AllInactive(), active)
			}
		}
	})
}
