package dispatch

import (
	"fmt"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/recording"
	"github.com/gogpu/dispatch/state"
)

// Barrier records a memory barrier on r. All writes to r recorded before
// the barrier are visible to commands recorded after it. The resource state
// does not change.
func (c *Context) Barrier(r Resource) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if r == nil {
		return ErrNilResource
	}
	h, l, err := r.AcquireNativeHandle(c.dev)
	if err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	defer l.Release()
	return c.append(recording.BarrierCommand{Resource: h, State: r.State()})
}

// Transition moves r into s. Nothing is recorded when r is already in s.
func (c *Context) Transition(r Resource, s state.State) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if r == nil {
		return ErrNilResource
	}
	if _, _, err := r.GetTransitionStates(c.dev, s); err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	h, l, err := r.AcquireNativeHandle(c.dev)
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	defer l.Release()
	if _, _, err := c.tracker.Transition(r, s, c.emitTransition(h)); err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	return nil
}

// Clear zeroes r through its writable view. r is moved to the Write state;
// if the clear cannot be recorded, r keeps its previous state.
func (c *Context) Clear(r Resource) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if r == nil {
		return ErrNilResource
	}
	view, _, err := r.GetClearDescriptorHandles(c.dev)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	h, l, err := r.AcquireNativeHandle(c.dev)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	defer l.Release()
	before := r.State()
	if _, _, err := c.tracker.Promote(r, state.Write, c.emitTransition(h)); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := c.append(recording.ClearCommand{Resource: h, View: view}); err != nil {
		r.SetState(before)
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Fill writes v to every element of r. Normalized formats store v clamped
// to [0, 1] and scaled to the channel maximum; float formats store v as is
// and integer formats store it truncated. r is moved to the Write state,
// or keeps its previous state if the fill cannot be recorded.
func (c *Context) Fill(r Resource, v f32.Vec4) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if r == nil {
		return ErrNilResource
	}
	view, _, err := r.GetClearDescriptorHandles(c.dev)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	bits, err := descriptor.Encode(r.Format(), v)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	h, l, err := r.AcquireNativeHandle(c.dev)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	defer l.Release()
	before := r.State()
	if _, _, err := c.tracker.Promote(r, state.Write, c.emitTransition(h)); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if err := c.append(recording.FillCommand{Resource: h, View: view, Value: v, Bits: bits}); err != nil {
		r.SetState(before)
		return fmt.Errorf("fill: %w", err)
	}
	return nil
}
