// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package state

import "fmt"

// Tracked is implemented by resources whose logical state is tracked.
type Tracked interface {
	// State returns the last-known state (Undefined if never transitioned).
	State() State

	// SetState stores the new last-known state.
	SetState(State)
}

// EmitFunc records a transition barrier from before to after.
// The resource state is only updated when EmitFunc returns nil.
type EmitFunc func(before, after State) error

// Tracker decides which transitions must be recorded for tracked resources.
//
// Tracker is NOT safe for concurrent use on the same resource. It keeps
// counters only and is cheap to create per recording context.
type Tracker struct {
	transitions uint64
	skipped     uint64
	promoted    uint64
}

// NewTracker creates a tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Transition moves r into the requested state.
//
// If the last-known state already equals requested, nothing is emitted.
// Otherwise emit is called with (before, requested) and, on success, the
// resource state is updated. The returned states are the before and after
// states that were (or would have been) used for the barrier.
func (t *Tracker) Transition(r Tracked, requested State, emit EmitFunc) (before, after State, err error) {
	if r == nil {
		return Undefined, Undefined, ErrNilResource
	}
	before = r.State()
	if !CanTransition(before, requested) {
		return before, before, fmt.Errorf("%w: %s -> %s", ErrInvalidState, before, requested)
	}
	if before == requested {
		t.skipped++
		return before, requested, nil
	}
	if emit != nil {
		if err := emit(before, requested); err != nil {
			return before, before, err
		}
	}
	r.SetState(requested)
	t.transitions++
	return before, requested, nil
}

// Promote is like Transition, except that a resource still in the Undefined
// state is moved to requested without emitting a barrier. Resources in the
// common state are promoted implicitly by the GPU on first use.
func (t *Tracker) Promote(r Tracked, requested State, emit EmitFunc) (before, after State, err error) {
	if r == nil {
		return Undefined, Undefined, ErrNilResource
	}
	if r.State() == Undefined {
		if err := requested.Validate(); err != nil || requested == Undefined {
			return Undefined, Undefined, fmt.Errorf("%w: Undefined -> %s", ErrInvalidState, requested)
		}
		r.SetState(requested)
		t.promoted++
		return Undefined, requested, nil
	}
	return t.Transition(r, requested, emit)
}

// Stats returns the number of emitted, skipped and promoted transitions.
func (t *Tracker) Stats() (emitted, skipped, promoted uint64) {
	return t.transitions, t.skipped, t.promoted
}

// Value is a minimal Tracked implementation that can be embedded in
// resource wrappers.
type Value struct {
	s State
}

// State returns the last-known state.
func (v *Value) State() State { return v.s }

// SetState stores the last-known state.
func (v *Value) SetState(s State) { v.s = s }

// Snapshot records last-known states so that an operation failing after
// some of its transitions can put them back.
type Snapshot struct {
	saved []savedState
}

type savedState struct {
	r Tracked
	s State
}

// Save records r's current state.
func (s *Snapshot) Save(r Tracked) {
	s.saved = append(s.saved, savedState{r: r, s: r.State()})
}

// Restore sets every saved resource back to its saved state, most recent
// save first, and empties the snapshot.
func (s *Snapshot) Restore() {
	for i := len(s.saved) - 1; i >= 0; i-- {
		s.saved[i].r.SetState(s.saved[i].s)
	}
	s.saved = s.saved[:0]
}
