package resource

import (
	"fmt"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/gputypes"
)

// BufferDesc describes a typed buffer.
type BufferDesc struct {
	Label string

	// Length is the number of elements.
	Length int

	// Format is the element format of the buffer's views.
	Format gputypes.TextureFormat

	// Usage must include gputypes.BufferUsageStorage for the buffer to be
	// cleared, filled or bound as a UAV.
	Usage gputypes.BufferUsage
}

// Buffer is a managed typed buffer.
type Buffer struct {
	base
	length int
	size   uint64
}

// NewBuffer creates a buffer on dev. Its initial state is Undefined.
func NewBuffer(dev native.Device, desc BufferDesc) (*Buffer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if desc.Length <= 0 {
		return nil, fmt.Errorf("%w: buffer %q length %d", ErrInvalidSize, desc.Label, desc.Length)
	}
	if !descriptor.IsSupported(desc.Format) {
		return nil, fmt.Errorf("buffer %q: %w: %v", desc.Label, descriptor.ErrUnsupportedFormat, desc.Format)
	}

	size := uint64(desc.Length) * uint64(descriptor.BytesPerPixel(desc.Format))
	h, err := dev.CreateBuffer(&native.BufferDesc{
		Label:      desc.Label,
		Size:       size,
		Usage:      desc.Usage,
		ViewFormat: desc.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}

	b := &Buffer{length: desc.Length, size: size}
	writable := desc.Usage&gputypes.BufferUsageStorage != 0
	if err := b.init(dev, h, desc.Format, writable, desc.Label); err != nil {
		return nil, err
	}
	return b, nil
}

// Length returns the number of elements.
func (b *Buffer) Length() int { return b.length }

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Extent returns the buffer's dispatch domain: its length.
func (b *Buffer) Extent() [3]uint32 { return [3]uint32{uint32(b.length), 1, 1} }
