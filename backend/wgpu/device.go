// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/backend"
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/rootsig"
)

// Backend errors.
var (
	// ErrNilProvider is returned when a nil provider is passed.
	ErrNilProvider = errors.New("wgpu: nil DeviceProvider")

	// ErrNoHAL is returned when a provider does not expose HAL types.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrTextureBinding is returned when a texture is bound to a dispatch.
	ErrTextureBinding = errors.New("wgpu: textures cannot be bound to a dispatch")
)

func slogger() *slog.Logger { return backend.Logger() }

// rootSignature is a bind group layout and the pipeline layout around it.
type rootSignature struct {
	desc      *native.RootSignatureDesc
	bgl       hal.BindGroupLayout
	layout    hal.PipelineLayout
	bindings  uint32
	constants uint32
}

type computePipeline struct {
	sig      native.Handle
	module   hal.ShaderModule
	pipeline hal.ComputePipeline
}

type gpuResource struct {
	kind    native.ResourceKind
	buffer  hal.Buffer
	texture hal.Texture
	view    hal.TextureView
	size    uint64
	format  gputypes.TextureFormat
}

// Device is a native.Device on a HAL device and queue.
//
// Device is safe for concurrent use. Command lists are not.
type Device struct {
	device hal.Device
	queue  hal.Queue
	label  string
	heap   *descriptor.Heap

	mu         sync.Mutex
	next       native.Handle
	signatures map[native.Handle]*rootSignature
	pipelines  map[native.Handle]*computePipeline
	resources  map[native.Handle]*gpuResource
}

var _ native.Device = (*Device)(nil)

// New wraps a HAL device and queue. The caller keeps ownership of both.
func New(device hal.Device, queue hal.Queue, label string, cfg descriptor.HeapConfig) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: device and queue are required")
	}
	if cfg == (descriptor.HeapConfig{}) {
		cfg = descriptor.DefaultHeapConfig()
	}
	heap, err := descriptor.NewHeap(cfg)
	if err != nil {
		return nil, fmt.Errorf("wgpu: %w", err)
	}
	return &Device{
		device:     device,
		queue:      queue,
		label:      label,
		heap:       heap,
		signatures: make(map[native.Handle]*rootSignature),
		pipelines:  make(map[native.Handle]*computePipeline),
		resources:  make(map[native.Handle]*gpuResource),
	}, nil
}

// NewFromProvider shares the device of a host application. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, label string, cfg descriptor.HeapConfig) (*Device, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	slogger().Info("wgpu: sharing host device", "label", label)
	return New(device, queue, label, cfg)
}

// Attach registers provider's device with the backend registry as "wgpu".
func Attach(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return ErrNilProvider
	}
	return backend.Register(backend.BackendWGPU, func(cfg descriptor.HeapConfig) (native.Device, error) {
		return NewFromProvider(provider, backend.BackendWGPU, cfg)
	})
}

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// DescriptorHeap returns the heap that numbers writable views.
func (d *Device) DescriptorHeap() *descriptor.Heap { return d.heap }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

func (d *Device) alloc() native.Handle {
	d.next++
	return d.next
}

// SerializeRootSignature serializes desc with rootsig.Serialize.
func (d *Device) SerializeRootSignature(desc *native.RootSignatureDesc) ([]byte, error) {
	return rootsig.Serialize(desc)
}

// CreateRootSignature creates a bind group layout with one entry per
// descriptor plus a uniform entry for root constants.
func (d *Device) CreateRootSignature(blob []byte) (native.Handle, error) {
	desc, err := rootsig.Deserialize(blob)
	if err != nil {
		return native.InvalidHandle, err
	}

	var entries []gputypes.BindGroupLayoutEntry
	for _, p := range desc.Parameters {
		if p.Kind != native.ParameterTable {
			continue
		}
		for _, r := range p.Ranges {
			for n := uint32(0); n < r.Count; n++ {
				entries = append(entries, gputypes.BindGroupLayoutEntry{
					Binding:    uint32(len(entries)),
					Visibility: gputypes.ShaderStageCompute,
					Buffer:     &gputypes.BufferBindingLayout{Type: bufferBindingType(r.Kind)},
				})
			}
		}
	}
	sig := &rootSignature{desc: desc, bindings: uint32(len(entries))}
	if c := desc.Constants(); c > 0 {
		sig.constants = c
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    sig.bindings,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}

	bgl, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   d.label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return native.InvalidHandle, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            d.label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(bgl)
		return native.InvalidHandle, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	sig.bgl, sig.layout = bgl, layout

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.signatures[h] = sig
	return h, nil
}

func bufferBindingType(kind native.RangeKind) gputypes.BufferBindingType {
	switch kind {
	case native.RangeUAV:
		return gputypes.BufferBindingTypeStorage
	case native.RangeCBV:
		return gputypes.BufferBindingTypeUniform
	default:
		return gputypes.BufferBindingTypeReadOnlyStorage
	}
}

// DestroyRootSignature destroys the bind group and pipeline layouts of h.
func (d *Device) DestroyRootSignature(h native.Handle) {
	d.mu.Lock()
	sig, ok := d.signatures[h]
	delete(d.signatures, h)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.device.DestroyPipelineLayout(sig.layout)
	d.device.DestroyBindGroupLayout(sig.bgl)
}

// CreateComputePipelineState creates a compute pipeline from SPIR-V. The
// entry point is the module's first GLCompute entry point.
func (d *Device) CreateComputePipelineState(sig native.Handle, bytecode []byte) (native.Handle, error) {
	if len(bytecode) == 0 {
		return native.InvalidHandle, native.ErrEmptyBytecode
	}
	words, err := spirvWords(bytecode)
	if err != nil {
		return native.InvalidHandle, err
	}
	d.mu.Lock()
	rs, ok := d.signatures[sig]
	d.mu.Unlock()
	if !ok {
		return native.InvalidHandle, fmt.Errorf("%w: root signature %d", native.ErrInvalidHandle, sig)
	}

	entry := computeEntryPoint(words)
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.label + "_" + entry,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return native.InvalidHandle, fmt.Errorf("wgpu: create shader module: %w", err)
	}
	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  d.label + "_" + entry,
		Layout: rs.layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		d.device.DestroyShaderModule(module)
		return native.InvalidHandle, fmt.Errorf("wgpu: create compute pipeline %q: %w", entry, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.pipelines[h] = &computePipeline{sig: sig, module: module, pipeline: pipeline}
	slogger().Debug("wgpu: pipeline created", "device", d.label, "entry", entry, "words", len(words))
	return h, nil
}

// DestroyPipelineState destroys the compute pipeline and shader module of h.
func (d *Device) DestroyPipelineState(h native.Handle) {
	d.mu.Lock()
	p, ok := d.pipelines[h]
	delete(d.pipelines, h)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.device.DestroyComputePipeline(p.pipeline)
	d.device.DestroyShaderModule(p.module)
}

// CreateBuffer creates a buffer. CopyDst is always added so the buffer can
// be cleared and filled.
func (d *Device) CreateBuffer(desc *native.BufferDesc) (native.Handle, error) {
	if desc == nil || desc.Size == 0 {
		return native.InvalidHandle, fmt.Errorf("wgpu: buffer size must be positive")
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return native.InvalidHandle, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return d.store(&gpuResource{
		kind:   native.ResourceBuffer,
		buffer: buf,
		size:   desc.Size,
		format: desc.ViewFormat,
	}), nil
}

// CreateTexture creates a texture and its default view. Storage textures
// also get RenderAttachment usage so they can be cleared.
func (d *Device) CreateTexture(desc *native.TextureDesc) (native.Handle, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return native.InvalidHandle, fmt.Errorf("wgpu: texture extent must be positive")
	}
	dim := gputypes.TextureDimension2D
	if desc.Depth > 1 {
		dim = gputypes.TextureDimension3D
	}
	usage := desc.Usage | gputypes.TextureUsageCopyDst
	if usage&gputypes.TextureUsageStorageBinding != 0 && dim == gputypes.TextureDimension2D {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.Depth},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        desc.Format,
		Usage:         usage,
	})
	if err != nil {
		return native.InvalidHandle, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: desc.Label + "_view",
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return native.InvalidHandle, fmt.Errorf("wgpu: create texture view %q: %w", desc.Label, err)
	}
	return d.store(&gpuResource{
		kind:    native.ResourceTexture,
		texture: tex,
		view:    view,
		format:  desc.Format,
	}), nil
}

func (d *Device) store(r *gpuResource) native.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.resources[h] = r
	return h
}

// DestroyResource destroys the HAL buffer or texture of h.
func (d *Device) DestroyResource(h native.Handle) {
	d.mu.Lock()
	r, ok := d.resources[h]
	delete(d.resources, h)
	d.mu.Unlock()
	if !ok {
		return
	}
	switch r.kind {
	case native.ResourceBuffer:
		d.device.DestroyBuffer(r.buffer)
	case native.ResourceTexture:
		d.device.DestroyTextureView(r.view)
		d.device.DestroyTexture(r.texture)
	}
}

func (d *Device) resource(h native.Handle) (*gpuResource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[h]
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", native.ErrInvalidHandle, h)
	}
	return r, nil
}

func (d *Device) pipeline(h native.Handle) (*computePipeline, *rootSignature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	if !ok {
		return nil, nil, fmt.Errorf("%w: pipeline %d", native.ErrInvalidHandle, h)
	}
	return p, d.signatures[p.sig], nil
}

// NewCommandList begins encoding a command list.
func (d *Device) NewCommandList(label string) (native.CommandList, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &CommandList{dev: d, label: label, encoder: encoder}, nil
}
