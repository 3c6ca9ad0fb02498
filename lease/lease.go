// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package lease provides scoped lifetime tokens for native GPU handles.
//
// A managed resource wraps a native handle in an [Owner]. Before a command
// that references the native handle is recorded, the caller acquires a
// [Lease]; the lease is released right after the command is appended.
// Disposing the owner while leases are outstanding defers the finalizer
// until the last lease is released, so a handle is never destroyed in the
// middle of recording.
//
// Leases only cover recording time. Waiting for the GPU to finish with a
// handle is the job of the queue/fence layer.
package lease

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Lease errors.
var (
	// ErrDisposed is returned when acquiring a lease on a disposed owner.
	ErrDisposed = errors.New("lease: resource is disposed")

	// ErrNilOwner is returned when a nil owner is used.
	ErrNilOwner = errors.New("lease: owner is nil")
)

// Owner tracks the outstanding leases of one native handle.
//
// Owner is safe for concurrent use.
type Owner struct {
	mu       sync.Mutex
	refs     int
	disposed bool
	final    func()
	done     bool

	// acquired counts successful acquisitions over the owner's lifetime.
	acquired atomic.Uint64
}

// NewOwner creates an owner. finalize is called exactly once, after Dispose
// and after every outstanding lease has been released. It may be nil.
func NewOwner(finalize func()) *Owner {
	return &Owner{final: finalize}
}

// Acquire takes a lease on the owner.
// Returns ErrDisposed if Dispose has already been called.
func (o *Owner) Acquire() (*Lease, error) {
	if o == nil {
		return nil, ErrNilOwner
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return nil, ErrDisposed
	}
	o.refs++
	o.acquired.Add(1)
	return &Lease{owner: o}, nil
}

// Dispose marks the owner as disposed. The finalizer runs now if no lease is
// outstanding, otherwise when the last lease is released. Dispose is
// idempotent.
func (o *Owner) Dispose() {
	if o == nil {
		return
	}
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	run := o.refs == 0
	o.mu.Unlock()

	if run {
		o.finalize()
	}
}

// Refs returns the number of outstanding leases.
func (o *Owner) Refs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs
}

// Disposed reports whether Dispose has been called.
func (o *Owner) Disposed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposed
}

// Finalized reports whether the finalizer has run.
func (o *Owner) Finalized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Acquired returns the total number of leases ever taken on the owner.
func (o *Owner) Acquired() uint64 {
	return o.acquired.Load()
}

func (o *Owner) release() {
	o.mu.Lock()
	o.refs--
	if o.refs < 0 {
		o.mu.Unlock()
		panic("lease: negative reference count")
	}
	run := o.refs == 0 && o.disposed
	o.mu.Unlock()

	if run {
		o.finalize()
	}
}

func (o *Owner) finalize() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	fn := o.final
	o.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Lease is a scoped, non-owning proof that a native handle is alive.
//
// A Lease must be released on every exit path of the scope that acquired it,
// typically with defer. Release is idempotent; a Lease is not safe for
// concurrent Release from several goroutines.
type Lease struct {
	owner    *Owner
	released bool
}

// Release returns the lease to its owner.
func (l *Lease) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	l.owner.release()
}

// Released reports whether Release has been called.
func (l *Lease) Released() bool {
	return l == nil || l.released
}

// Do runs fn while holding a lease on o. The lease is released when fn
// returns, including when fn returns an error or panics.
func Do(o *Owner, fn func() error) error {
	l, err := o.Acquire()
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Set holds several independent leases taken within one operation.
// The zero value is ready to use.
type Set struct {
	leases []*Lease
}

// Acquire takes a lease on o and adds it to the set.
func (s *Set) Acquire(o *Owner) error {
	l, err := o.Acquire()
	if err != nil {
		return fmt.Errorf("acquire lease %d: %w", len(s.leases), err)
	}
	s.leases = append(s.leases, l)
	return nil
}

// Add adds an already acquired lease to the set.
func (s *Set) Add(l *Lease) {
	if l != nil {
		s.leases = append(s.leases, l)
	}
}

// Len returns the number of leases in the set.
func (s *Set) Len() int { return len(s.leases) }

// Release releases every lease in the set. Leases are independent of each
// other, so the order does not matter.
func (s *Set) Release() {
	for _, l := range s.leases {
		l.Release()
	}
	s.leases = s.leases[:0]
}
