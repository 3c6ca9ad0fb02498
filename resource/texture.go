package resource

import (
	"fmt"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// Texture2D is a managed 2D texture of pixel type P.
type Texture2D[P descriptor.Pixel] struct {
	base
	width, height uint32
}

// Texture3D is a managed 3D texture of pixel type P.
type Texture3D[P descriptor.Pixel] struct {
	base
	width, height, depth uint32
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Label string

	Width, Height, Depth int

	// Usage must include gputypes.TextureUsageStorageBinding for the texture
	// to be cleared, filled or bound as a UAV.
	Usage gputypes.TextureUsage
}

// NewTexture2D creates a width x height texture of pixel type P.
func NewTexture2D[P descriptor.Pixel](dev native.Device, desc TextureDesc) (*Texture2D[P], error) {
	desc.Depth = 1
	h, err := createTexture(dev, descriptor.FormatOf[P](), desc)
	if err != nil {
		return nil, err
	}
	t := &Texture2D[P]{width: uint32(desc.Width), height: uint32(desc.Height)}
	if err := t.init(dev, h, descriptor.FormatOf[P](), isStorage(desc.Usage), desc.Label); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTexture3D creates a width x height x depth texture of pixel type P.
func NewTexture3D[P descriptor.Pixel](dev native.Device, desc TextureDesc) (*Texture3D[P], error) {
	h, err := createTexture(dev, descriptor.FormatOf[P](), desc)
	if err != nil {
		return nil, err
	}
	t := &Texture3D[P]{width: uint32(desc.Width), height: uint32(desc.Height), depth: uint32(desc.Depth)}
	if err := t.init(dev, h, descriptor.FormatOf[P](), isStorage(desc.Usage), desc.Label); err != nil {
		return nil, err
	}
	return t, nil
}

func createTexture(dev native.Device, format gputypes.TextureFormat, desc TextureDesc) (native.Handle, error) {
	if dev == nil {
		return native.InvalidHandle, ErrNilDevice
	}
	if desc.Width <= 0 || desc.Height <= 0 || desc.Depth <= 0 {
		return native.InvalidHandle, fmt.Errorf("%w: texture %q is %dx%dx%d",
			ErrInvalidSize, desc.Label, desc.Width, desc.Height, desc.Depth)
	}
	h, err := dev.CreateTexture(&native.TextureDesc{
		Label:  desc.Label,
		Width:  uint32(desc.Width),
		Height: uint32(desc.Height),
		Depth:  uint32(desc.Depth),
		Format: format,
		Usage:  desc.Usage,
	})
	if err != nil {
		return native.InvalidHandle, fmt.Errorf("texture %q: %w", desc.Label, err)
	}
	return h, nil
}

func isStorage(u gputypes.TextureUsage) bool {
	return u&gputypes.TextureUsageStorageBinding != 0
}

// Width returns the width in texels.
func (t *Texture2D[P]) Width() int { return int(t.width) }

// Height returns the height in texels.
func (t *Texture2D[P]) Height() int { return int(t.height) }

// Extent returns the texture's dispatch domain.
func (t *Texture2D[P]) Extent() [3]uint32 { return [3]uint32{t.width, t.height, 1} }

// Pack converts a logical value to a texel as a fill would store it.
func (t *Texture2D[P]) Pack(v f32.Vec4) P { return descriptor.Pack[P](v) }

// Width returns the width in texels.
func (t *Texture3D[P]) Width() int { return int(t.width) }

// Height returns the height in texels.
func (t *Texture3D[P]) Height() int { return int(t.height) }

// Depth returns the depth in texels.
func (t *Texture3D[P]) Depth() int { return int(t.depth) }

// Extent returns the texture's dispatch domain.
func (t *Texture3D[P]) Extent() [3]uint32 { return [3]uint32{t.width, t.height, t.depth} }
