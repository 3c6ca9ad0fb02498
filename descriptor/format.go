// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// ErrUnsupportedFormat is returned for view formats that cannot be cleared.
var ErrUnsupportedFormat = errors.New("descriptor: unsupported view format")

// channelKind describes how a channel is stored.
type channelKind uint8

const (
	kindUnorm channelKind = iota
	kindFloat
	kindUint
)

// formatInfo describes the channels of a view format.
type formatInfo struct {
	channels int
	bits     uint
	kind     channelKind
}

var formats = map[gputypes.TextureFormat]formatInfo{
	gputypes.TextureFormatR8Unorm:     {channels: 1, bits: 8, kind: kindUnorm},
	gputypes.TextureFormatRG8Unorm:    {channels: 2, bits: 8, kind: kindUnorm},
	gputypes.TextureFormatRGBA8Unorm:  {channels: 4, bits: 8, kind: kindUnorm},
	gputypes.TextureFormatBGRA8Unorm:  {channels: 4, bits: 8, kind: kindUnorm},
	gputypes.TextureFormatR32Float:    {channels: 1, bits: 32, kind: kindFloat},
	gputypes.TextureFormatRG32Float:   {channels: 2, bits: 32, kind: kindFloat},
	gputypes.TextureFormatRGBA32Float: {channels: 4, bits: 32, kind: kindFloat},
	gputypes.TextureFormatR32Uint:     {channels: 1, bits: 32, kind: kindUint},
}

func lookup(format gputypes.TextureFormat) (formatInfo, error) {
	info, ok := formats[format]
	if !ok {
		return formatInfo{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	return info, nil
}

// IsSupported reports whether views of format can be cleared and filled.
func IsSupported(format gputypes.TextureFormat) bool {
	_, ok := formats[format]
	return ok
}

// IsNormalized reports whether format stores fixed-point normalized values,
// in which case a floating clear value is encoded into [0, max] first.
func IsNormalized(format gputypes.TextureFormat) bool {
	info, ok := formats[format]
	return ok && info.kind == kindUnorm
}

// Channels returns the number of channels of format, or 0 if unsupported.
func Channels(format gputypes.TextureFormat) int {
	return formats[format].channels
}

// MaxValue returns the largest integer a normalized channel of format can
// hold (255 for 8-bit formats), or 0 for other formats.
func MaxValue(format gputypes.TextureFormat) uint32 {
	info, ok := formats[format]
	if !ok || info.kind != kindUnorm {
		return 0
	}
	return uint32(1)<<info.bits - 1
}

// BytesPerPixel returns the size of one texel of format.
func BytesPerPixel(format gputypes.TextureFormat) int {
	info := formats[format]
	return info.channels * int(info.bits) / 8
}

// Encode converts a logical clear value into the per-channel bit patterns
// handed to a native clear. Channels beyond the format's count are zero.
//
// Normalized channels map [0.0, 1.0] proportionally onto [0, max] with
// rounding; values outside the range are clamped. Float channels are the raw
// IEEE-754 bits of the value. Integer channels truncate the value.
func Encode(format gputypes.TextureFormat, v f32.Vec4) ([4]uint32, error) {
	info, err := lookup(format)
	if err != nil {
		return [4]uint32{}, err
	}

	var out [4]uint32
	for i := 0; i < info.channels; i++ {
		switch info.kind {
		case kindUnorm:
			out[i] = encodeUnorm(v[i], uint32(1)<<info.bits-1)
		case kindFloat:
			out[i] = math.Float32bits(v[i])
		case kindUint:
			out[i] = encodeUint(v[i])
		}
	}
	return out, nil
}

// Decode is the inverse of Encode for supported formats.
func Decode(format gputypes.TextureFormat, bits [4]uint32) (f32.Vec4, error) {
	info, err := lookup(format)
	if err != nil {
		return f32.Vec4{}, err
	}

	var out f32.Vec4
	for i := 0; i < info.channels; i++ {
		switch info.kind {
		case kindUnorm:
			out[i] = float32(bits[i]) / float32(uint32(1)<<info.bits-1)
		case kindFloat:
			out[i] = math.Float32frombits(bits[i])
		case kindUint:
			out[i] = float32(bits[i])
		}
	}
	return out, nil
}

func encodeUnorm(v float32, maxValue uint32) uint32 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return maxValue
	}
	return uint32(math.Round(float64(v) * float64(maxValue)))
}

func encodeUint(v float32) uint32 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
