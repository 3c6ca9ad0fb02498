// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource provides managed GPU resources for dispatch.
//
// A managed resource owns one native buffer or texture, its last-known
// logical state and, when it has a writable view, one descriptor handle pair
// from the device heap. Access to the native handle goes through leases, so
// Release only destroys the native object once no operation is still
// recording a command that references it.
package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/state"
	"github.com/gogpu/gputypes"
)

// Resource errors.
var (
	// ErrNilDevice is returned when creating a resource without a device.
	ErrNilDevice = errors.New("resource: device is nil")

	// ErrDeviceMismatch is returned when a resource is used with a device
	// other than the one it was created on.
	ErrDeviceMismatch = errors.New("resource: resource belongs to another device")

	// ErrInvalidSize is returned for non-positive lengths or extents.
	ErrInvalidSize = errors.New("resource: size must be positive")
)

// base holds what buffers and textures share.
type base struct {
	state.Value

	dev      native.Device
	handle   native.Handle
	owner    *lease.Owner
	view     descriptor.Pair
	format   gputypes.TextureFormat
	writable bool
	label    string
}

// init wires the lease owner and allocates the writable view. On error the
// native handle is destroyed.
func (b *base) init(dev native.Device, h native.Handle, format gputypes.TextureFormat, writable bool, label string) error {
	b.dev, b.handle, b.format, b.writable, b.label = dev, h, format, writable, label
	if writable {
		view, err := dev.DescriptorHeap().Allocate()
		if err != nil {
			dev.DestroyResource(h)
			return fmt.Errorf("resource %q: view: %w", label, err)
		}
		b.view = view
	}
	b.owner = lease.NewOwner(b.finalize)
	return nil
}

func (b *base) finalize() {
	if b.writable {
		// The pair came from this heap, so Free cannot fail.
		_ = b.dev.DescriptorHeap().Free(b.view)
	}
	b.dev.DestroyResource(b.handle)
}

func (b *base) checkDevice(dev native.Device) error {
	if dev != b.dev {
		return fmt.Errorf("%w: %q", ErrDeviceMismatch, b.label)
	}
	return nil
}

// Device returns the device the resource was created on.
func (b *base) Device() native.Device { return b.dev }

// Label returns the debug label.
func (b *base) Label() string { return b.label }

// Format returns the view format.
func (b *base) Format() gputypes.TextureFormat { return b.format }

// Writable reports whether the resource has an unordered-access view.
func (b *base) Writable() bool { return b.writable }

// AcquireNativeHandle returns the native handle and a lease that keeps it
// alive. The caller must release the lease once the referencing command is
// recorded.
func (b *base) AcquireNativeHandle(dev native.Device) (native.Handle, *lease.Lease, error) {
	if err := b.checkDevice(dev); err != nil {
		return native.InvalidHandle, nil, err
	}
	l, err := b.owner.Acquire()
	if err != nil {
		return native.InvalidHandle, nil, fmt.Errorf("resource %q: %w", b.label, err)
	}
	return b.handle, l, nil
}

// GetClearDescriptorHandles returns the writable view's handle pair and
// whether its format is normalized.
func (b *base) GetClearDescriptorHandles(dev native.Device) (descriptor.Pair, bool, error) {
	if err := b.checkDevice(dev); err != nil {
		return descriptor.Pair{}, false, err
	}
	if !b.writable {
		return descriptor.Pair{}, false, fmt.Errorf("%w: %q", descriptor.ErrNoWritableView, b.label)
	}
	return b.view, descriptor.IsNormalized(b.format), nil
}

// GetTransitionStates returns the states a transition to requested would
// move between.
func (b *base) GetTransitionStates(dev native.Device, requested state.State) (before, after state.State, err error) {
	if err := b.checkDevice(dev); err != nil {
		return 0, 0, err
	}
	if err := requested.Validate(); err != nil {
		return 0, 0, err
	}
	return b.State(), requested, nil
}

// Release disposes the resource. The native object and its view are freed
// once outstanding leases are released. Release is idempotent.
func (b *base) Release() { b.owner.Dispose() }

// Released reports whether Release was called.
func (b *base) Released() bool { return b.owner.Disposed() }

// Leases returns the number of outstanding leases.
func (b *base) Leases() int { return b.owner.Refs() }
