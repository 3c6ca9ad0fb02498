// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline creates compute pipeline states and memoizes them per
// device.
//
// A pipeline state binds one bytecode blob to one root signature. Creation
// compiles the program and is comparatively expensive, while the same shader
// is usually dispatched many times, so [Cache] keeps one state per shader
// identity for each device.
//
//	c := pipeline.CacheFor(dev)
//	st, err := c.GetOrCreate(sh)
//	if err != nil {
//	    return err
//	}
//	// st.Handle() and st.Signature().Handle() go into the dispatch.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/rootsig"
	"github.com/gogpu/dispatch/shader"
)

// Pipeline errors.
var (
	// ErrNilDevice is returned when no device is supplied.
	ErrNilDevice = errors.New("pipeline: device is nil")

	// ErrNilSignature is returned when creating a state without a root signature.
	ErrNilSignature = errors.New("pipeline: root signature is nil")

	// ErrEmptyBytecode is returned for empty bytecode.
	ErrEmptyBytecode = errors.New("pipeline: bytecode is empty")

	// ErrDeviceMismatch is returned when the root signature belongs to
	// another device.
	ErrDeviceMismatch = errors.New("pipeline: root signature belongs to another device")

	// ErrCacheClosed is returned by a closed cache.
	ErrCacheClosed = errors.New("pipeline: cache is closed")
)

// State is a compiled compute pipeline.
//
// Recorded commands that reference a state hold a lease on it, so Release
// (or eviction from a Cache) only destroys the native objects once every
// such lease is released.
type State struct {
	handle native.Handle
	sig    *rootsig.Signature
	dev    native.Device
	shader *shader.Shader
	owner  *lease.Owner

	// ownsSig is set for cache-created states, whose signature is private.
	ownsSig bool
}

// Create compiles bytecode against sig on dev. It is synchronous; on failure
// nothing is retained.
func Create(dev native.Device, sig *rootsig.Signature, bytecode []byte) (*State, error) {
	switch {
	case dev == nil:
		return nil, ErrNilDevice
	case sig == nil:
		return nil, ErrNilSignature
	case len(bytecode) == 0:
		return nil, ErrEmptyBytecode
	case sig.Device() != dev:
		return nil, ErrDeviceMismatch
	}

	h, err := dev.CreateComputePipelineState(sig.Handle(), bytecode)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create on %s: %w", dev.Label(), err)
	}
	st := &State{handle: h, sig: sig, dev: dev}
	st.owner = lease.NewOwner(st.destroy)
	return st, nil
}

// Handle returns the native pipeline state handle.
func (s *State) Handle() native.Handle { return s.handle }

// Signature returns the root signature the state was created with.
func (s *State) Signature() *rootsig.Signature { return s.sig }

// Shader returns the shader a cached state was built from, or nil.
func (s *State) Shader() *shader.Shader { return s.shader }

// Device returns the owning device.
func (s *State) Device() native.Device { return s.dev }

// Acquire takes a lease that keeps the native pipeline alive. It fails with
// lease.ErrDisposed after Release.
func (s *State) Acquire() (*lease.Lease, error) {
	l, err := s.owner.Acquire()
	if err != nil {
		return nil, fmt.Errorf("pipeline: state %d: %w", s.handle, err)
	}
	return l, nil
}

// Leases returns the number of outstanding leases.
func (s *State) Leases() int { return s.owner.Refs() }

// Released reports whether Release was called. The native objects may still
// be alive while leases are outstanding.
func (s *State) Released() bool { return s.owner.Disposed() }

// Release disposes the state. The native pipeline state, and its root
// signature when the state was created by a Cache, are destroyed once every
// lease is released. It is safe to call twice.
func (s *State) Release() {
	if s == nil {
		return
	}
	s.owner.Dispose()
}

func (s *State) destroy() {
	s.dev.DestroyPipelineState(s.handle)
	if s.ownsSig {
		s.sig.Release()
	}
}
