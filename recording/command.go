// Package recording provides the command stream a dispatch context records
// into.
//
// Every operation becomes a typed command struct, kept in call order in a
// [Stream]. A stream attached to a native command list forwards each command
// as it is appended; a detached stream only keeps the commands, which can be
// replayed onto a list later with [Stream.Playback].
//
// Typed commands keep recorded work inspectable:
//
//	s := recording.NewStream(nil)
//	_ = s.Append(recording.BarrierCommand{Resource: h})
//	for _, cmd := range s.Commands() {
//	    fmt.Println(cmd.Type())
//	}
package recording

import (
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/state"
	"golang.org/x/image/math/f32"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	CmdBarrier    CommandType = iota // UAV barrier
	CmdTransition                    // State transition barrier
	CmdClear                         // Clear a view to zero
	CmdFill                          // Fill a view with a value
	CmdDispatch                      // Compute dispatch
)

var commandTypeNames = [...]string{
	CmdBarrier:    "Barrier",
	CmdTransition: "Transition",
	CmdClear:      "Clear",
	CmdFill:       "Fill",
	CmdDispatch:   "Dispatch",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// BarrierCommand orders unordered-access writes to a resource.
type BarrierCommand struct {
	Resource native.Handle

	// State is the resource's state across the barrier.
	State state.State
}

// TransitionCommand moves a resource between states.
type TransitionCommand struct {
	Resource native.Handle
	Before   state.State
	After    state.State
}

// ClearCommand zeroes a resource through its writable view.
type ClearCommand struct {
	Resource native.Handle
	View     descriptor.Pair
}

// FillCommand writes a value to every element of a resource. Value is the
// logical value; Bits is its encoding for the view format.
type FillCommand struct {
	Resource native.Handle
	View     descriptor.Pair
	Value    f32.Vec4
	Bits     [4]uint32
}

// DispatchCommand runs a compute pipeline.
type DispatchCommand struct {
	Label string
	Args  native.DispatchArgs
}

func (BarrierCommand) Type() CommandType    { return CmdBarrier }
func (TransitionCommand) Type() CommandType { return CmdTransition }
func (ClearCommand) Type() CommandType      { return CmdClear }
func (FillCommand) Type() CommandType       { return CmdFill }
func (DispatchCommand) Type() CommandType   { return CmdDispatch }

// Groups returns the dispatch's thread-group counts.
func (c DispatchCommand) Groups() [3]uint32 {
	return [3]uint32{c.Args.GroupsX, c.Args.GroupsY, c.Args.GroupsZ}
}
