package noop

import (
	"fmt"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/state"
)

// Op names a recorded native call.
type Op string

const (
	// Recorded operations, one per native.CommandList method.
	OpBarrier    Op = "Barrier"
	OpTransition Op = "Transition"
	OpClear      Op = "Clear"
	OpFill       Op = "Fill"
	OpDispatch   Op = "Dispatch"
)

// Call is one recorded command list call.
type Call struct {
	Op       Op
	Resource native.Handle
	Before   state.State
	After    state.State
	View     descriptor.Pair
	Bits     [4]uint32
	Dispatch native.DispatchArgs
}

// CommandList records calls in order. Like native command lists it is not
// safe for concurrent use.
type CommandList struct {
	label  string
	dev    *Device
	calls  []Call
	closed bool
}

var _ native.CommandList = (*CommandList)(nil)

// Label returns the list's label.
func (l *CommandList) Label() string { return l.label }

// Calls returns the recorded calls in order.
func (l *CommandList) Calls() []Call { return l.calls }

// Ops returns the recorded operation names in order.
func (l *CommandList) Ops() []Op {
	ops := make([]Op, len(l.calls))
	for i, c := range l.calls {
		ops[i] = c.Op
	}
	return ops
}

// Closed reports whether Close was called.
func (l *CommandList) Closed() bool { return l.closed }

func (l *CommandList) record(c Call) error {
	if l.closed {
		return native.ErrCommandListClosed
	}
	if c.Resource.IsValid() && !l.dev.hasResource(c.Resource) {
		return fmt.Errorf("%w: resource %d", native.ErrInvalidHandle, c.Resource)
	}
	l.calls = append(l.calls, c)
	return nil
}

// RecordBarrier records a barrier; Before and After of the call both hold
// current.
func (l *CommandList) RecordBarrier(res native.Handle, current state.State) error {
	return l.record(Call{Op: OpBarrier, Resource: res, Before: current, After: current})
}

// RecordTransition records a transition from before to after.
func (l *CommandList) RecordTransition(res native.Handle, before, after state.State) error {
	return l.record(Call{Op: OpTransition, Resource: res, Before: before, After: after})
}

// RecordClear records a clear through view.
func (l *CommandList) RecordClear(res native.Handle, view descriptor.Pair) error {
	return l.record(Call{Op: OpClear, Resource: res, View: view})
}

// RecordFill records a fill of bits through view.
func (l *CommandList) RecordFill(res native.Handle, view descriptor.Pair, bits [4]uint32) error {
	return l.record(Call{Op: OpFill, Resource: res, View: view, Bits: bits})
}

// RecordDispatch records a copy of args. The pipeline state and every
// bound resource must be live.
func (l *CommandList) RecordDispatch(args *native.DispatchArgs) error {
	if args == nil || !l.dev.hasPipeline(args.PipelineState) {
		return fmt.Errorf("%w: pipeline state", native.ErrInvalidHandle)
	}
	for _, r := range args.Resources {
		if !l.dev.hasResource(r) {
			return fmt.Errorf("%w: bound resource %d", native.ErrInvalidHandle, r)
		}
	}
	a := *args
	a.Constants = append([]uint32(nil), args.Constants...)
	a.Resources = append([]native.Handle(nil), args.Resources...)
	a.Views = append([]descriptor.Pair(nil), args.Views...)
	return l.record(Call{Op: OpDispatch, Dispatch: a})
}

// Close ends recording. Closing twice returns native.ErrCommandListClosed.
func (l *CommandList) Close() error {
	if l.closed {
		return native.ErrCommandListClosed
	}
	l.closed = true
	return nil
}
