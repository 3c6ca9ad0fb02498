// Package noop provides an in-memory native device.
//
// The device performs no GPU work. It validates handles, serializes root
// signatures with the reference serializer and records every command list
// call, which makes it the native fake for tests and a dry-run target for
// inspecting what a dispatch context would submit.
package noop

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dispatch/backend"
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/rootsig"
)

// Device is an in-memory native.Device. It is safe for concurrent use.
type Device struct {
	label string
	heap  *descriptor.Heap

	mu         sync.Mutex
	next       native.Handle
	signatures map[native.Handle]*native.RootSignatureDesc
	pipelines  map[native.Handle]native.Handle // pipeline -> root signature
	resources  map[native.Handle]Resource
	lists      []*CommandList

	// PipelineErr, when set, fails every CreateComputePipelineState call.
	PipelineErr error

	// SerializeErr, when set, fails every SerializeRootSignature call.
	SerializeErr error

	pipelinesCreated int
}

// Resource describes a created buffer or texture.
type Resource struct {
	Kind    native.ResourceKind
	Buffer  native.BufferDesc
	Texture native.TextureDesc
}

var _ native.Device = (*Device)(nil)

// opened numbers devices created through the backend registry.
var opened atomic.Uint32

func init() {
	_ = backend.Register(backend.BackendNoop, func(cfg descriptor.HeapConfig) (native.Device, error) {
		return New(fmt.Sprintf("noop%d", opened.Add(1)-1), cfg)
	})
}

// New creates a device with a heap of the given configuration. A zero
// config selects descriptor.DefaultHeapConfig.
func New(label string, heap descriptor.HeapConfig) (*Device, error) {
	if heap == (descriptor.HeapConfig{}) {
		heap = descriptor.DefaultHeapConfig()
	}
	h, err := descriptor.NewHeap(heap)
	if err != nil {
		return nil, err
	}
	return &Device{
		label:      label,
		heap:       h,
		signatures: make(map[native.Handle]*native.RootSignatureDesc),
		pipelines:  make(map[native.Handle]native.Handle),
		resources:  make(map[native.Handle]Resource),
	}, nil
}

// MustNew is like New with the default heap and panics on error.
func MustNew(label string) *Device {
	d, err := New(label, descriptor.HeapConfig{})
	if err != nil {
		panic(err)
	}
	return d
}

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// DescriptorHeap returns the device heap.
func (d *Device) DescriptorHeap() *descriptor.Heap { return d.heap }

func (d *Device) alloc() native.Handle {
	d.next++
	return d.next
}

// SerializeRootSignature serializes desc with rootsig.Serialize, or fails
// with SerializeErr when set.
func (d *Device) SerializeRootSignature(desc *native.RootSignatureDesc) ([]byte, error) {
	if d.SerializeErr != nil {
		return nil, d.SerializeErr
	}
	return rootsig.Serialize(desc)
}

// CreateRootSignature deserializes blob and stores the description.
func (d *Device) CreateRootSignature(blob []byte) (native.Handle, error) {
	desc, err := rootsig.Deserialize(blob)
	if err != nil {
		return native.InvalidHandle, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.signatures[h] = desc
	return h, nil
}

// DestroyRootSignature forgets h.
func (d *Device) DestroyRootSignature(h native.Handle) {
	d.mu.Lock()
	delete(d.signatures, h)
	d.mu.Unlock()
}

// CreateComputePipelineState creates a pipeline bound to the live root
// signature sig.
func (d *Device) CreateComputePipelineState(sig native.Handle, bytecode []byte) (native.Handle, error) {
	if d.PipelineErr != nil {
		return native.InvalidHandle, d.PipelineErr
	}
	if len(bytecode) == 0 {
		return native.InvalidHandle, native.ErrEmptyBytecode
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.signatures[sig]; !ok {
		return native.InvalidHandle, fmt.Errorf("%w: root signature %d", native.ErrInvalidHandle, sig)
	}
	h := d.alloc()
	d.pipelines[h] = sig
	d.pipelinesCreated++
	return h, nil
}

// DestroyPipelineState forgets h.
func (d *Device) DestroyPipelineState(h native.Handle) {
	d.mu.Lock()
	delete(d.pipelines, h)
	d.mu.Unlock()
}

// CreateBuffer stores a buffer description.
func (d *Device) CreateBuffer(desc *native.BufferDesc) (native.Handle, error) {
	if desc == nil || desc.Size == 0 {
		return native.InvalidHandle, errors.New("noop: buffer size must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.resources[h] = Resource{Kind: native.ResourceBuffer, Buffer: *desc}
	return h, nil
}

// CreateTexture stores a texture description.
func (d *Device) CreateTexture(desc *native.TextureDesc) (native.Handle, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return native.InvalidHandle, errors.New("noop: texture extent must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.alloc()
	d.resources[h] = Resource{Kind: native.ResourceTexture, Texture: *desc}
	return h, nil
}

// DestroyResource forgets h.
func (d *Device) DestroyResource(h native.Handle) {
	d.mu.Lock()
	delete(d.resources, h)
	d.mu.Unlock()
}

// NewCommandList creates a recording list. See Lists.
func (d *Device) NewCommandList(label string) (native.CommandList, error) {
	l := &CommandList{label: label, dev: d}
	d.mu.Lock()
	d.lists = append(d.lists, l)
	d.mu.Unlock()
	return l, nil
}

// RootSignature returns the description behind a live root signature.
func (d *Device) RootSignature(h native.Handle) (*native.RootSignatureDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.signatures[h]
	return desc, ok
}

// Resource returns a live resource's description.
func (d *Device) Resource(h native.Handle) (Resource, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.resources[h]
	return r, ok
}

// Live reports the number of live root signatures, pipelines and resources.
func (d *Device) Live() (signatures, pipelines, resources int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.signatures), len(d.pipelines), len(d.resources)
}

// PipelinesCreated reports how many pipeline states were ever created.
func (d *Device) PipelinesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelinesCreated
}

// Lists returns the command lists created so far.
func (d *Device) Lists() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandList(nil), d.lists...)
}

func (d *Device) hasResource(h native.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.resources[h]
	return ok
}

func (d *Device) hasPipeline(h native.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pipelines[h]
	return ok
}
