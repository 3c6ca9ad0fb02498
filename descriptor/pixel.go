// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// Pixel is implemented by the storage types of typed textures. The zero
// value of a Pixel type must report its format.
type Pixel interface {
	RGBA8 | BGRA8 | R8 | RG8 | R32F | RG32F | RGBA32F | R32U
	Format() gputypes.TextureFormat
}

// RGBA8 is an 8-bit normalized RGBA texel.
type RGBA8 struct{ R, G, B, A uint8 }

// BGRA8 is an 8-bit normalized BGRA texel.
type BGRA8 struct{ B, G, R, A uint8 }

// R8 is an 8-bit normalized single-channel texel.
type R8 struct{ R uint8 }

// RG8 is an 8-bit normalized two-channel texel.
type RG8 struct{ R, G uint8 }

// R32F is a 32-bit float single-channel texel.
type R32F struct{ R float32 }

// RG32F is a 32-bit float two-channel texel.
type RG32F struct{ R, G float32 }

// RGBA32F is a 32-bit float RGBA texel.
type RGBA32F struct{ R, G, B, A float32 }

// R32U is a 32-bit unsigned integer texel.
type R32U struct{ R uint32 }

func (RGBA8) Format() gputypes.TextureFormat   { return gputypes.TextureFormatRGBA8Unorm }
func (BGRA8) Format() gputypes.TextureFormat   { return gputypes.TextureFormatBGRA8Unorm }
func (R8) Format() gputypes.TextureFormat      { return gputypes.TextureFormatR8Unorm }
func (RG8) Format() gputypes.TextureFormat     { return gputypes.TextureFormatRG8Unorm }
func (R32F) Format() gputypes.TextureFormat    { return gputypes.TextureFormatR32Float }
func (RG32F) Format() gputypes.TextureFormat   { return gputypes.TextureFormatRG32Float }
func (RGBA32F) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA32Float }
func (R32U) Format() gputypes.TextureFormat    { return gputypes.TextureFormatR32Uint }

// FormatOf returns the view format of pixel type P.
func FormatOf[P Pixel]() gputypes.TextureFormat {
	var p P
	return p.Format()
}

// EncodePixel encodes a logical clear value for textures of pixel type P.
func EncodePixel[P Pixel](v f32.Vec4) [4]uint32 {
	// Every Pixel type has a supported format, so Encode cannot fail here.
	bits, _ := Encode(FormatOf[P](), v)
	return bits
}

// Pack converts a logical value into a texel of type P, the way the GPU
// stores it after a fill.
func Pack[P Pixel](v f32.Vec4) P {
	bits := EncodePixel[P](v)
	var out any
	switch any(*new(P)).(type) {
	case RGBA8:
		out = RGBA8{R: uint8(bits[0]), G: uint8(bits[1]), B: uint8(bits[2]), A: uint8(bits[3])}
	case BGRA8:
		out = BGRA8{R: uint8(bits[0]), G: uint8(bits[1]), B: uint8(bits[2]), A: uint8(bits[3])}
	case R8:
		out = R8{R: uint8(bits[0])}
	case RG8:
		out = RG8{R: uint8(bits[0]), G: uint8(bits[1])}
	case R32F:
		out = R32F{R: v[0]}
	case RG32F:
		out = RG32F{R: v[0], G: v[1]}
	case RGBA32F:
		out = RGBA32F{R: v[0], G: v[1], B: v[2], A: v[3]}
	case R32U:
		out = R32U{R: bits[0]}
	}
	return out.(P)
}
