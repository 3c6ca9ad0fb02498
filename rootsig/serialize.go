// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rootsig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gogpu/dispatch/native"
)

// magic prefixes every serialized root signature.
var magic = [4]byte{'R', 'S', 'I', 'G'}

// ErrMalformedBlob is returned by Deserialize for truncated or corrupt input.
var ErrMalformedBlob = errors.New("rootsig: malformed blob")

// SerializeError reports a structurally invalid root signature. Blob holds
// the serializer's diagnostic text exactly as produced.
type SerializeError struct {
	Blob []byte
}

// Error implements error.
func (e *SerializeError) Error() string {
	return "rootsig: serialize failed: " + string(e.Blob)
}

// Serialize encodes desc as a versioned little-endian blob.
//
// Layout: magic, version (u8), parameter count (u32), then per parameter
// kind (u8) and visibility (u8) followed by either num values, register
// and space (3 x u32) or a range count (u32) and per range kind (u8),
// base register, count and space (3 x u32).
//
// Structurally invalid descriptions fail with *SerializeError.
func Serialize(desc *native.RootSignatureDesc) ([]byte, error) {
	if desc == nil {
		return nil, &SerializeError{Blob: []byte("E0000: root signature description is nil")}
	}
	if diag := check(desc); len(diag) > 0 {
		return nil, &SerializeError{Blob: []byte(strings.Join(diag, "\n"))}
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(byte(desc.Version))
	put32(&buf, uint32(len(desc.Parameters)))
	for _, p := range desc.Parameters {
		buf.WriteByte(byte(p.Kind))
		buf.WriteByte(byte(p.Visibility))
		switch p.Kind {
		case native.ParameterConstants:
			put32(&buf, p.Num32BitValues)
			put32(&buf, p.ShaderRegister)
			put32(&buf, p.RegisterSpace)
		case native.ParameterTable:
			put32(&buf, uint32(len(p.Ranges)))
			for _, r := range p.Ranges {
				buf.WriteByte(byte(r.Kind))
				put32(&buf, r.BaseRegister)
				put32(&buf, r.Count)
				put32(&buf, r.Space)
			}
		}
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a blob produced by Serialize.
func Deserialize(blob []byte) (*native.RootSignatureDesc, error) {
	r := reader{b: blob}
	var m [4]byte
	copy(m[:], r.next(4))
	if r.err != nil || m != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedBlob)
	}

	desc := &native.RootSignatureDesc{Version: native.RootSignatureVersion(r.u8())}
	n := r.u32()
	if r.err == nil && uint64(n)*2 > uint64(len(blob)) {
		return nil, fmt.Errorf("%w: parameter count %d exceeds blob size", ErrMalformedBlob, n)
	}
	for i := uint32(0); i < n && r.err == nil; i++ {
		p := native.RootParameter{
			Kind:       native.ParameterKind(r.u8()),
			Visibility: native.Visibility(r.u8()),
		}
		switch p.Kind {
		case native.ParameterConstants:
			p.Num32BitValues = r.u32()
			p.ShaderRegister = r.u32()
			p.RegisterSpace = r.u32()
		case native.ParameterTable:
			count := r.u32()
			if uint64(count)*13 > uint64(len(blob)) {
				return nil, fmt.Errorf("%w: range count %d exceeds blob size", ErrMalformedBlob, count)
			}
			p.Ranges = make([]native.DescriptorRange, 0, count)
			for j := uint32(0); j < count && r.err == nil; j++ {
				p.Ranges = append(p.Ranges, native.DescriptorRange{
					Kind:         native.RangeKind(r.u8()),
					BaseRegister: r.u32(),
					Count:        r.u32(),
					Space:        r.u32(),
				})
			}
		default:
			return nil, fmt.Errorf("%w: parameter %d has kind %v", ErrMalformedBlob, i, p.Kind)
		}
		desc.Parameters = append(desc.Parameters, p)
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBlob, len(r.b))
	}
	return desc, nil
}

// registerKey identifies a register class within a space.
type registerKey struct {
	kind  native.RangeKind
	space uint32
}

type span struct {
	lo, hi uint64 // [lo, hi)
	param  int
}

// check returns diagnostics for a structurally invalid description.
func check(desc *native.RootSignatureDesc) []string {
	var diag []string
	if desc.Version != native.RootSignatureVersion1 {
		diag = append(diag, fmt.Sprintf("E0001: unsupported root signature version %d", desc.Version))
		return diag
	}

	spans := make(map[registerKey][]span)
	for i, p := range desc.Parameters {
		switch p.Kind {
		case native.ParameterConstants:
			k := registerKey{kind: native.RangeCBV, space: p.RegisterSpace}
			spans[k] = append(spans[k], span{lo: uint64(p.ShaderRegister), hi: uint64(p.ShaderRegister) + 1, param: i})
		case native.ParameterTable:
			if len(p.Ranges) == 0 {
				diag = append(diag, fmt.Sprintf("E0002: parameter %d: descriptor table has no ranges", i))
			}
			for j, r := range p.Ranges {
				if !r.Kind.IsValid() {
					diag = append(diag, fmt.Sprintf("E0003: parameter %d range %d: unknown range kind %d", i, j, r.Kind))
					continue
				}
				if r.Count == 0 {
					diag = append(diag, fmt.Sprintf("E0004: parameter %d range %d: empty range", i, j))
					continue
				}
				hi := uint64(r.BaseRegister) + uint64(r.Count)
				if hi > math.MaxUint32 {
					diag = append(diag, fmt.Sprintf("E0005: parameter %d range %d: register %s%d+%d overflows", i, j, prefix(r.Kind), r.BaseRegister, r.Count))
					continue
				}
				k := registerKey{kind: r.Kind, space: r.Space}
				spans[k] = append(spans[k], span{lo: uint64(r.BaseRegister), hi: hi, param: i})
			}
		default:
			diag = append(diag, fmt.Sprintf("E0006: parameter %d: unknown parameter kind %d", i, p.Kind))
		}
	}

	keys := make([]registerKey, 0, len(spans))
	for k := range spans {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].kind != keys[b].kind {
			return keys[a].kind < keys[b].kind
		}
		return keys[a].space < keys[b].space
	})
	for _, k := range keys {
		s := spans[k]
		sort.SliceStable(s, func(a, b int) bool { return s[a].lo < s[b].lo })
		for i := 1; i < len(s); i++ {
			if s[i].lo < s[i-1].hi {
				diag = append(diag, fmt.Sprintf("E0007: register %s%d space%d is bound by parameters %d and %d",
					prefix(k.kind), s[i].lo, k.space, s[i-1].param, s[i].param))
			}
		}
	}
	return diag
}

// prefix returns the HLSL register letter for a range kind.
func prefix(k native.RangeKind) string {
	switch k {
	case native.RangeUAV:
		return "u"
	case native.RangeSRV:
		return "t"
	case native.RangeCBV:
		return "b"
	default:
		return "?"
	}
}

func put32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// reader consumes a blob, remembering the first error.
type reader struct {
	b   []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: unexpected end of data", ErrMalformedBlob)
		r.b = nil
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
