// Package shader adapts compiled compute shaders for dispatch.
//
// A Shader carries what the dispatch layer needs from a compiler: bytecode,
// the entry point, the declared thread-group size, the descriptor ranges the
// shader binds and its root-constant count. CompileWGSL produces one from
// WGSL source with naga. Shaders built elsewhere can be described directly
// with a struct literal.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/gogpu/dispatch/native"
)

var (
	// ErrNoBytecode is returned for a shader without bytecode.
	ErrNoBytecode = errors.New("shader: bytecode is empty")

	// ErrInvalidThreadGroup is returned when a thread-group dimension is zero.
	ErrInvalidThreadGroup = errors.New("shader: thread-group dimensions must be positive")

	// ErrNoEntryPoint is returned when source declares no usable compute
	// entry point.
	ErrNoEntryPoint = errors.New("shader: no compute entry point")

	// ErrUnsupportedBinding is returned for resource bindings that cannot
	// be expressed as a descriptor range, such as samplers.
	ErrUnsupportedBinding = errors.New("shader: unsupported resource binding")

	// ErrNoSource is returned by TranslateHLSL for shaders not compiled
	// from source.
	ErrNoSource = errors.New("shader: shader has no source module")
)

// Binding is a source-level resource binding.
type Binding struct {
	Group   uint32
	Binding uint32
	Name    string
}

// Shader is a compiled compute shader plus its binding metadata.
type Shader struct {
	// Label is an optional debug label.
	Label string

	// Bytecode is the compiled program.
	Bytecode []byte

	// EntryPoint names the compute function.
	EntryPoint string

	// ThreadGroup is the declared thread-group size.
	ThreadGroup [3]uint32

	// Ranges are the descriptor ranges in binding order. Ranges[i] is bound
	// to root parameter i+1.
	Ranges []native.DescriptorRange

	// Bindings are the source bindings of Ranges, when known.
	Bindings []Binding

	// RootConstants is the number of 32-bit root constants.
	RootConstants uint32

	src *source

	idOnce sync.Once
	id     uint64
}

// Validate checks that the shader can be dispatched.
func (s *Shader) Validate() error {
	if len(s.Bytecode) == 0 {
		return ErrNoBytecode
	}
	for i, n := range s.ThreadGroup {
		if n == 0 {
			return fmt.Errorf("%w: dimension %d of %v", ErrInvalidThreadGroup, i, s.ThreadGroup)
		}
	}
	for i, r := range s.Ranges {
		if !r.Kind.IsValid() || r.Count == 0 {
			return fmt.Errorf("%w: range %d (%v x%d)", ErrUnsupportedBinding, i, r.Kind, r.Count)
		}
	}
	return nil
}

// ID returns a stable identity for the shader: FNV-64a over the bytecode,
// entry point, thread-group size, root-constant count and descriptor
// ranges. Shaders with equal IDs share pipeline states and root signatures.
// The shader must not be modified after ID is first called.
func (s *Shader) ID() uint64 {
	s.idOnce.Do(func() {
		h := fnv.New64a()
		var word [8]byte
		put := func(v uint64) {
			binary.LittleEndian.PutUint64(word[:], v)
			_, _ = h.Write(word[:])
		}
		_, _ = h.Write(s.Bytecode)
		put(uint64(len(s.Bytecode)))
		_, _ = h.Write([]byte(s.EntryPoint))
		put(uint64(len(s.EntryPoint)))
		for _, n := range s.ThreadGroup {
			put(uint64(n))
		}
		put(uint64(s.RootConstants))
		put(uint64(len(s.Ranges)))
		for _, r := range s.Ranges {
			put(uint64(r.Kind))
			put(uint64(r.BaseRegister))
			put(uint64(r.Count))
			put(uint64(r.Space))
		}
		s.id = h.Sum64()
	})
	return s.id
}

// Groups returns the thread-group counts needed to cover a domain.
// Each count is ceil(domain[i] / ThreadGroup[i]).
func (s *Shader) Groups(domain [3]uint32) [3]uint64 {
	var out [3]uint64
	for i := range domain {
		tg := uint64(s.ThreadGroup[i])
		if tg == 0 {
			tg = 1
		}
		out[i] = (uint64(domain[i]) + tg - 1) / tg
	}
	return out
}

// String returns a short description for logs.
func (s *Shader) String() string {
	name := s.Label
	if name == "" {
		name = s.EntryPoint
	}
	return fmt.Sprintf("%s[%d ranges, %d constants, group %dx%dx%d]",
		name, len(s.Ranges), s.RootConstants, s.ThreadGroup[0], s.ThreadGroup[1], s.ThreadGroup[2])
}
