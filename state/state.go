// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package state tracks the logical GPU state of resources and decides when
// a transition barrier has to be recorded.
//
// Every resource carries a single last-known [State]. A [Tracker] compares it
// against the state an operation needs and emits a transition only when the
// two differ. The tracker holds no locks: a resource must not be transitioned
// from two recording contexts at the same time.
package state

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Tracker errors.
var (
	// ErrInvalidState is returned when a requested state combines mutually
	// exclusive states or contains unknown bits.
	ErrInvalidState = errors.New("state: invalid resource state")

	// ErrNilResource is returned when a nil resource is passed to the tracker.
	ErrNilResource = errors.New("state: resource is nil")
)

// State is the logical usage of a resource on the GPU.
//
// Read-only states may be combined (e.g. Read|CopySource), write states are
// exclusive. Undefined is the zero value and cannot be combined.
type State uint16

const (
	// Undefined is the state of a resource that was never transitioned.
	Undefined State = 0

	// Read is a shader-resource (SRV) read.
	Read State = 1 << iota

	// Write is an unordered-access (UAV) read/write.
	Write

	// CopySource is the source of a copy operation.
	CopySource

	// CopyDest is the destination of a copy operation.
	CopyDest

	// Constant is a constant-buffer (CBV) read.
	Constant

	// IndirectArgument is a read of indirect dispatch arguments.
	IndirectArgument
)

// UnorderedAccess is an alias of Write, matching the view it is used with.
const UnorderedAccess = Write

const (
	readStates  = Read | CopySource | Constant | IndirectArgument
	writeStates = Write | CopyDest
	knownStates = readStates | writeStates
)

var stateNames = [...]struct {
	s    State
	name string
}{
	{Read, "Read"},
	{Write, "Write"},
	{CopySource, "CopySource"},
	{CopyDest, "CopyDest"},
	{Constant, "Constant"},
	{IndirectArgument, "IndirectArgument"},
}

// String returns the state name, or the names of all set bits joined by '|'.
func (s State) String() string {
	if s == Undefined {
		return "Undefined"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.s != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := s &^ knownStates; rest != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(%#x)", uint16(rest)))
	}
	return strings.Join(parts, "|")
}

// IsWrite reports whether s is a writable state.
func (s State) IsWrite() bool { return s&writeStates != 0 }

// IsReadOnly reports whether s consists of read states only.
func (s State) IsReadOnly() bool { return s != Undefined && s&^readStates == 0 }

// Has reports whether every bit of other is set in s.
func (s State) Has(other State) bool { return other != Undefined && s&other == other }

// Validate checks that s is a state a resource can be in.
//
// Rules:
//   - unknown bits are rejected
//   - a write state cannot be combined with any other state
//   - any combination of read states is allowed
func (s State) Validate() error {
	if s&^knownStates != 0 {
		return fmt.Errorf("%w: unknown bits in %s", ErrInvalidState, s)
	}
	if s.IsWrite() && bits.OnesCount16(uint16(s)) > 1 {
		return fmt.Errorf("%w: %s combines a write state with other states", ErrInvalidState, s)
	}
	return nil
}

// CanTransition reports whether a resource in state from may be transitioned
// to state to. Both states must be valid; Undefined is never a valid target
// because a resource cannot return to it once used.
func CanTransition(from, to State) bool {
	if from.Validate() != nil || to.Validate() != nil {
		return false
	}
	return to != Undefined
}
