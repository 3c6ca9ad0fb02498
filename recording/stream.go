package recording

import (
	"errors"
	"fmt"

	"github.com/gogpu/dispatch/native"
)

var (
	// ErrStreamClosed is returned when appending to a closed stream.
	ErrStreamClosed = errors.New("recording: stream is closed")

	// ErrUnknownCommand is returned for command types without a native call.
	ErrUnknownCommand = errors.New("recording: unknown command")
)

// Stream is an append-only, call-ordered sequence of commands.
//
// Stream is NOT safe for concurrent use; it belongs to one dispatch context.
type Stream struct {
	list     native.CommandList
	commands []Command
	counts   [len(commandTypeNames)]int
	closed   bool
}

// NewStream creates a stream. If list is non-nil every appended command is
// recorded onto it immediately.
func NewStream(list native.CommandList) *Stream {
	return &Stream{list: list}
}

// List returns the attached command list, or nil.
func (s *Stream) List() native.CommandList { return s.list }

// Append records cmd. When a list is attached the command is forwarded
// first; if the native call fails the command is not appended.
func (s *Stream) Append(cmd Command) error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.list != nil {
		if err := apply(s.list, cmd); err != nil {
			return err
		}
	}
	s.commands = append(s.commands, cmd)
	if t := int(cmd.Type()); t < len(s.counts) {
		s.counts[t]++
	}
	return nil
}

// Commands returns the recorded commands in call order. The slice must not
// be modified.
func (s *Stream) Commands() []Command { return s.commands }

// Types returns the recorded command types in call order.
func (s *Stream) Types() []CommandType {
	out := make([]CommandType, len(s.commands))
	for i, c := range s.commands {
		out[i] = c.Type()
	}
	return out
}

// Len returns the number of recorded commands.
func (s *Stream) Len() int { return len(s.commands) }

// Count returns how many commands of type t were recorded.
func (s *Stream) Count(t CommandType) int {
	if int(t) >= len(s.counts) {
		return 0
	}
	return s.counts[t]
}

// Last returns the most recent command, or nil.
func (s *Stream) Last() Command {
	if len(s.commands) == 0 {
		return nil
	}
	return s.commands[len(s.commands)-1]
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }

// Close ends the stream and closes the attached list, if any. Close is
// idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.list != nil {
		return s.list.Close()
	}
	return nil
}

// Playback records every command onto list, in order. It stops at the first
// native error.
func (s *Stream) Playback(list native.CommandList) error {
	for i, cmd := range s.commands {
		if err := apply(list, cmd); err != nil {
			return fmt.Errorf("recording: playback command %d (%s): %w", i, cmd.Type(), err)
		}
	}
	return nil
}

// apply issues the native call for one command.
func apply(list native.CommandList, cmd Command) error {
	switch c := cmd.(type) {
	case BarrierCommand:
		return list.RecordBarrier(c.Resource, c.State)
	case TransitionCommand:
		return list.RecordTransition(c.Resource, c.Before, c.After)
	case ClearCommand:
		return list.RecordClear(c.Resource, c.View)
	case FillCommand:
		return list.RecordFill(c.Resource, c.View, c.Bits)
	case DispatchCommand:
		args := c.Args
		return list.RecordDispatch(&args)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}
