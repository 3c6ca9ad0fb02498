// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor allocates GPU/CPU descriptor handle pairs for resource
// views and converts logical clear values into the bit patterns a native
// clear expects for a given view format.
package descriptor

import (
	"errors"
	"fmt"
	"sync"
)

// Heap errors.
var (
	// ErrHeapFull is returned when every slot of a heap is in use.
	ErrHeapFull = errors.New("descriptor: heap is full")

	// ErrInvalidHeapConfig is returned for a heap with zero capacity or increment.
	ErrInvalidHeapConfig = errors.New("descriptor: invalid heap configuration")

	// ErrForeignPair is returned when freeing a pair that was not allocated
	// from this heap.
	ErrForeignPair = errors.New("descriptor: pair does not belong to heap")

	// ErrDoubleFree is returned when freeing a pair that is not allocated.
	ErrDoubleFree = errors.New("descriptor: pair is not allocated")

	// ErrNoWritableView is returned when a clear or fill is requested on a
	// resource without an unordered-access view.
	ErrNoWritableView = errors.New("descriptor: resource has no writable view")
)

// Pair is a descriptor handle pair for one resource view.
// GPU is the shader-visible handle, CPU the handle used by clear calls.
type Pair struct {
	GPU uint64
	CPU uint64
}

// IsZero reports whether p is the zero pair.
func (p Pair) IsZero() bool { return p.GPU == 0 && p.CPU == 0 }

// String returns a debug representation of the pair.
func (p Pair) String() string {
	return fmt.Sprintf("{gpu:%#x cpu:%#x}", p.GPU, p.CPU)
}

// HeapConfig describes the address layout of a descriptor heap.
type HeapConfig struct {
	// GPUBase is the GPU handle of slot 0.
	GPUBase uint64

	// CPUBase is the CPU handle of slot 0.
	CPUBase uint64

	// Increment is the distance in bytes between consecutive slots.
	Increment uint32

	// Capacity is the number of slots.
	Capacity int
}

// DefaultHeapConfig returns a heap layout suitable for software backends.
func DefaultHeapConfig() HeapConfig {
	return HeapConfig{
		GPUBase:   0x1_0000_0000,
		CPUBase:   0x2_0000_0000,
		Increment: 32,
		Capacity:  4096,
	}
}

// Heap hands out descriptor slots. A slot belongs to one resource from
// allocation until the resource is finalized and the slot freed.
//
// Heap is safe for concurrent use.
type Heap struct {
	mu     sync.Mutex
	cfg    HeapConfig
	next   int
	free   []int
	inUse  map[int]struct{}
	allocs uint64
}

// NewHeap creates a heap with the given layout.
func NewHeap(cfg HeapConfig) (*Heap, error) {
	if cfg.Capacity <= 0 || cfg.Increment == 0 {
		return nil, fmt.Errorf("%w: capacity=%d increment=%d", ErrInvalidHeapConfig, cfg.Capacity, cfg.Increment)
	}
	return &Heap{
		cfg:   cfg,
		inUse: make(map[int]struct{}),
	}, nil
}

// Allocate reserves a slot and returns its handle pair.
func (h *Heap) Allocate() (Pair, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slot int
	switch {
	case len(h.free) > 0:
		slot = h.free[len(h.free)-1]
		h.free = h.free[:len(h.free)-1]
	case h.next < h.cfg.Capacity:
		slot = h.next
		h.next++
	default:
		return Pair{}, fmt.Errorf("%w: capacity %d", ErrHeapFull, h.cfg.Capacity)
	}

	h.inUse[slot] = struct{}{}
	h.allocs++
	return h.pairAt(slot), nil
}

// Free returns the slot of p to the heap.
func (h *Heap) Free(p Pair) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot, ok := h.slotOf(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForeignPair, p)
	}
	if _, ok := h.inUse[slot]; !ok {
		return fmt.Errorf("%w: %s", ErrDoubleFree, p)
	}
	delete(h.inUse, slot)
	h.free = append(h.free, slot)
	return nil
}

// Len returns the number of slots in use.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inUse)
}

// Capacity returns the number of slots in the heap.
func (h *Heap) Capacity() int { return h.cfg.Capacity }

// Config returns the heap layout.
func (h *Heap) Config() HeapConfig { return h.cfg }

// Allocations returns the total number of allocations made.
func (h *Heap) Allocations() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocs
}

func (h *Heap) pairAt(slot int) Pair {
	off := uint64(slot) * uint64(h.cfg.Increment)
	return Pair{GPU: h.cfg.GPUBase + off, CPU: h.cfg.CPUBase + off}
}

func (h *Heap) slotOf(p Pair) (int, bool) {
	if p.GPU < h.cfg.GPUBase || p.CPU < h.cfg.CPUBase {
		return 0, false
	}
	inc := uint64(h.cfg.Increment)
	off := p.GPU - h.cfg.GPUBase
	if off%inc != 0 || p.CPU-h.cfg.CPUBase != off {
		return 0, false
	}
	slot := off / inc
	if slot >= uint64(h.cfg.Capacity) {
		return 0, false
	}
	return int(slot), true
}
