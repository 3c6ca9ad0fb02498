// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rootsig builds root signatures: the resource-binding layout a
// compute shader expects.
//
// A root signature always has the same shape. Parameter 0 holds the
// shader's 32-bit root constants and is visible to every stage. Each
// descriptor range then gets its own single-range descriptor table, in range
// order, so a signature built from k ranges has exactly k+1 parameters.
// Keeping one table per range lets every resource's descriptor be written
// independently at dispatch time.
//
//	sig, err := rootsig.Create(dev, 4, []native.DescriptorRange{
//	    {Kind: native.RangeUAV, BaseRegister: 0, Count: 1},
//	    {Kind: native.RangeSRV, BaseRegister: 0, Count: 1},
//	})
//	if err != nil {
//	    return err
//	}
//	defer sig.Release()
package rootsig

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/shader"
)

var (
	// ErrInvalidRange is returned by Build for an empty range or unknown kind.
	ErrInvalidRange = errors.New("rootsig: invalid descriptor range")

	// ErrNilDevice is returned when no device is supplied.
	ErrNilDevice = errors.New("rootsig: device is nil")

	// ErrNilShader is returned by ForShader for a nil shader.
	ErrNilShader = errors.New("rootsig: shader is nil")
)

// ConstantsRegister is the constant-buffer register root constants bind to.
const ConstantsRegister = 0

// Build lays out a root signature description for rootConstants 32-bit
// values followed by one descriptor table per range.
func Build(rootConstants uint32, ranges []native.DescriptorRange) (*native.RootSignatureDesc, error) {
	params := make([]native.RootParameter, 0, len(ranges)+1)
	params = append(params, native.RootParameter{
		Kind:           native.ParameterConstants,
		Visibility:     native.VisibilityAll,
		Num32BitValues: rootConstants,
		ShaderRegister: ConstantsRegister,
	})
	for i, r := range ranges {
		if !r.Kind.IsValid() {
			return nil, fmt.Errorf("%w: range %d has kind %v", ErrInvalidRange, i, r.Kind)
		}
		if r.Count == 0 {
			return nil, fmt.Errorf("%w: range %d is empty", ErrInvalidRange, i)
		}
		params = append(params, native.RootParameter{
			Kind:       native.ParameterTable,
			Visibility: native.VisibilityAll,
			Ranges:     []native.DescriptorRange{r},
		})
	}
	return &native.RootSignatureDesc{
		Version:    native.RootSignatureVersion1,
		Parameters: params,
	}, nil
}

// Signature is a created root signature.
type Signature struct {
	desc     *native.RootSignatureDesc
	handle   native.Handle
	dev      native.Device
	released atomic.Bool
}

// Create builds, serializes and creates a root signature on dev.
//
// A serialization failure means the layout is structurally invalid and is
// not retryable. The device's diagnostic blob is wrapped unchanged and can
// be recovered with errors.As into *SerializeError.
func Create(dev native.Device, rootConstants uint32, ranges []native.DescriptorRange) (*Signature, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	desc, err := Build(rootConstants, ranges)
	if err != nil {
		return nil, err
	}
	blob, err := dev.SerializeRootSignature(desc)
	if err != nil {
		var se *SerializeError
		if !errors.As(err, &se) {
			// Backends may report plain errors; keep their text as the blob.
			err = &SerializeError{Blob: []byte(err.Error())}
		}
		return nil, fmt.Errorf("rootsig: serialize on %s: %w", dev.Label(), err)
	}
	h, err := dev.CreateRootSignature(blob)
	if err != nil {
		return nil, fmt.Errorf("rootsig: create on %s: %w", dev.Label(), err)
	}
	return &Signature{desc: desc, handle: h, dev: dev}, nil
}

// ForShader creates the root signature described by a shader's metadata.
func ForShader(dev native.Device, s *shader.Shader) (*Signature, error) {
	if s == nil {
		return nil, ErrNilShader
	}
	return Create(dev, s.RootConstants, s.Ranges)
}

// Handle returns the native root signature handle.
func (s *Signature) Handle() native.Handle { return s.handle }

// Desc returns the description the signature was created from.
func (s *Signature) Desc() *native.RootSignatureDesc { return s.desc }

// Device returns the device the signature belongs to.
func (s *Signature) Device() native.Device { return s.dev }

// Parameters returns the number of root parameters.
func (s *Signature) Parameters() int { return len(s.desc.Parameters) }

// Constants returns the number of 32-bit root constants.
func (s *Signature) Constants() uint32 { return s.desc.Constants() }

// Release destroys the native root signature. It is safe to call twice.
func (s *Signature) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.dev.DestroyRootSignature(s.handle)
}
