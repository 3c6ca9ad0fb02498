// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dispatch

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/gogpu/dispatch/backend"
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/pipeline"
	"github.com/gogpu/dispatch/recording"
	"github.com/gogpu/dispatch/state"
	"github.com/gogpu/gputypes"
)

// Resource is a managed GPU resource a Context can record commands for.
// resource.Buffer, resource.Texture2D and resource.Texture3D implement it.
type Resource interface {
	state.Tracked

	// Format returns the format of the resource's views.
	Format() gputypes.TextureFormat

	// AcquireNativeHandle returns the native handle and a lease keeping it
	// alive until released.
	AcquireNativeHandle(dev native.Device) (native.Handle, *lease.Lease, error)

	// GetClearDescriptorHandles returns the writable view and whether its
	// format is normalized.
	GetClearDescriptorHandles(dev native.Device) (descriptor.Pair, bool, error)

	// GetTransitionStates returns the states a transition would move between.
	GetTransitionStates(dev native.Device, requested state.State) (before, after state.State, err error)
}

// TextureResource is a Resource with a dispatch domain. Buffers qualify
// too: their domain is their length.
type TextureResource interface {
	Resource

	// Extent returns the resource's size per dimension.
	Extent() [3]uint32
}

// Context records compute work for one device onto one command stream.
//
// Context is not safe for concurrent use.
type Context struct {
	dev       native.Device
	label     string
	stream    *recording.Stream
	tracker   *state.Tracker
	cache     *pipeline.Cache
	ownsCache bool
	maxGroups [3]uint32
	log       *slog.Logger
	closed    bool
	released  bool

	// pipelines holds one lease per pipeline state referenced by the
	// stream, until Release.
	pipelines map[*pipeline.State]*lease.Lease
}

// Verify Context implements io.Closer.
var _ io.Closer = (*Context)(nil)

// New creates a context recording for dev.
//
// Without WithCommandList, a command list is created from the device.
// Without WithPipelineCache, pipelines come from pipeline.CacheFor(dev), or
// from a private cache when the configuration sets CacheCapacity.
func New(dev native.Device, opts ...Option) (*Context, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.cache != nil && o.cache.Device() != dev {
		return nil, fmt.Errorf("dispatch: %w", pipeline.ErrDeviceMismatch)
	}

	list := o.list
	if list == nil {
		l, err := dev.NewCommandList(o.cfg.Label)
		if err != nil {
			return nil, fmt.Errorf("dispatch: command list for %s: %w", dev.Label(), err)
		}
		list = l
	}

	c := &Context{
		dev:       dev,
		label:     o.cfg.Label,
		stream:    recording.NewStream(list),
		tracker:   state.NewTracker(),
		cache:     o.cache,
		maxGroups: o.cfg.MaxGroups,
		log:       o.logger,
		pipelines: make(map[*pipeline.State]*lease.Lease),
	}
	switch {
	case c.cache != nil:
	case o.cfg.CacheCapacity > 0:
		c.cache = pipeline.NewCache(dev, o.cfg.CacheCapacity)
		c.ownsCache = true
	default:
		c.cache = pipeline.CacheFor(dev)
	}
	return c, nil
}

// OpenDevice opens a device on cfg.Backend with cfg's heap configuration.
func OpenDevice(cfg Config) (native.Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return backend.Open(cfg.Backend, cfg.HeapConfig())
}

func (c *Context) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return Logger()
}

// Device returns the context's device.
func (c *Context) Device() native.Device { return c.dev }

// Label returns the context label.
func (c *Context) Label() string { return c.label }

// Stream returns the recorded command stream.
func (c *Context) Stream() *recording.Stream { return c.stream }

// Len returns the number of recorded commands.
func (c *Context) Len() int { return c.stream.Len() }

// Stats reports the context's recording counters.
type Stats struct {
	// Commands is the number of recorded commands.
	Commands int

	// Transitions counts recorded transitions.
	Transitions uint64

	// Skipped counts transitions elided because the state already matched.
	Skipped uint64

	// Promoted counts implicit promotions out of Undefined.
	Promoted uint64
}

// Stats returns the recording counters.
func (c *Context) Stats() Stats {
	emitted, skipped, promoted := c.tracker.Stats()
	return Stats{
		Commands:    c.stream.Len(),
		Transitions: emitted,
		Skipped:     skipped,
		Promoted:    promoted,
	}
}

// Close ends recording: it closes the command stream and its native list.
// Pipeline states referenced by the stream stay alive, so the list can
// still be submitted or the stream played back. Call Release once the work
// has executed. Close is idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.stream.Close()
	if err != nil {
		c.logger().Warn("dispatch: close command list", "context", c.label, "err", err)
		return fmt.Errorf("dispatch: close %s: %w", c.label, err)
	}
	c.logger().Info("dispatch: context closed", "context", c.label, "commands", c.stream.Len())
	return nil
}

// Release frees what the recorded commands keep alive: the leases on
// referenced pipeline states and, when the context created it, the pipeline
// cache. Call it after the command list has executed or been discarded.
//
// The order is Close, submit and wait, then Release. Release closes the
// context first if that has not happened. It is idempotent.
func (c *Context) Release() error {
	if c.released {
		return nil
	}
	err := c.Close()
	c.released = true
	n := len(c.pipelines)
	for st, l := range c.pipelines {
		l.Release()
		delete(c.pipelines, st)
	}
	if c.ownsCache {
		c.cache.Close()
	}
	c.logger().Debug("dispatch: context released", "context", c.label, "pipelines", n)
	return err
}

// retain keeps l on st until Release. A second lease on a state already
// retained is released at once.
func (c *Context) retain(st *pipeline.State, l *lease.Lease) {
	if _, ok := c.pipelines[st]; ok {
		l.Release()
		return
	}
	c.pipelines[st] = l
}

// append adds cmd to the stream.
func (c *Context) append(cmd recording.Command) error {
	if err := c.stream.Append(cmd); err != nil {
		return err
	}
	c.logger().Debug("dispatch: append", "context", c.label, "cmd", cmd.Type().String())
	return nil
}

// emitTransition returns an EmitFunc recording a transition for h.
func (c *Context) emitTransition(h native.Handle) state.EmitFunc {
	return func(before, after state.State) error {
		return c.append(recording.TransitionCommand{Resource: h, Before: before, After: after})
	}
}

func (c *Context) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}
