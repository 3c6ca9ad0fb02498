// Package native defines the native GPU command ABI consumed by the
// dispatch layer.
//
// The dispatch layer does not talk to a graphics API directly. It builds
// root signatures and pipeline states through a [Device] and records
// barriers, transitions, clears, fills and dispatches onto a [CommandList].
// Backends (backend/noop, backend/wgpu) implement these interfaces.
//
// Resource lifecycle:
//   - Objects are created via Create* methods
//   - Objects must be explicitly destroyed via Destroy* methods
//   - Destroying an object still referenced by an unsubmitted command list
//     is undefined behavior
//   - Handles become invalid after destruction and must not be reused
package native

import (
	"errors"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/state"
	"github.com/gogpu/gputypes"
)

// Native errors.
var (
	// ErrInvalidHandle is returned when an operation references an unknown
	// or destroyed handle.
	ErrInvalidHandle = errors.New("native: invalid handle")

	// ErrEmptyBytecode is returned when a pipeline is created without bytecode.
	ErrEmptyBytecode = errors.New("native: shader bytecode is empty")

	// ErrCommandListClosed is returned when recording on a closed command list.
	ErrCommandListClosed = errors.New("native: command list is closed")
)

// Handle is an opaque reference to a native object. Each backend maintains
// the mapping between handles and its own objects.
type Handle uint64

// InvalidHandle is the zero value, representing a null native object.
const InvalidHandle Handle = 0

// IsValid reports whether h is not the null handle.
func (h Handle) IsValid() bool { return h != InvalidHandle }

// ResourceKind distinguishes buffers from textures.
type ResourceKind uint8

const (
	// ResourceBuffer is a linear buffer.
	ResourceBuffer ResourceKind = iota + 1

	// ResourceTexture is a 1D/2D/3D texture.
	ResourceTexture
)

// BufferDesc describes a native buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the set of allowed usages.
	Usage gputypes.BufferUsage

	// ViewFormat is the element format of the buffer's typed views.
	ViewFormat gputypes.TextureFormat
}

// TextureDesc describes a native texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width, Height and Depth are the texture extent in texels.
	// Use 1 for unused dimensions.
	Width, Height, Depth uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Usage is the set of allowed usages.
	Usage gputypes.TextureUsage
}

// Device creates native objects for one GPU device.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Label returns a debug name for the device.
	Label() string

	// SerializeRootSignature serializes a versioned root signature
	// description. On failure the returned error carries the platform's
	// diagnostic blob verbatim.
	SerializeRootSignature(desc *RootSignatureDesc) ([]byte, error)

	// CreateRootSignature creates a root signature from a serialized blob.
	CreateRootSignature(blob []byte) (Handle, error)

	// DestroyRootSignature releases a root signature.
	DestroyRootSignature(h Handle)

	// CreateComputePipelineState compiles bytecode against a root signature.
	CreateComputePipelineState(rootSignature Handle, bytecode []byte) (Handle, error)

	// DestroyPipelineState releases a pipeline state.
	DestroyPipelineState(h Handle)

	// CreateBuffer creates a buffer resource.
	CreateBuffer(desc *BufferDesc) (Handle, error)

	// CreateTexture creates a texture resource.
	CreateTexture(desc *TextureDesc) (Handle, error)

	// DestroyResource releases a buffer or texture.
	DestroyResource(h Handle)

	// DescriptorHeap returns the shader-visible heap views are allocated from.
	DescriptorHeap() *descriptor.Heap

	// NewCommandList creates a command list in the recording state.
	NewCommandList(label string) (CommandList, error)
}

// DispatchArgs are the resolved arguments of one dispatch.
type DispatchArgs struct {
	// PipelineState is the compute pipeline to execute.
	PipelineState Handle

	// RootSignature is the layout the pipeline was created with.
	RootSignature Handle

	// Constants are written to root parameter 0.
	Constants []uint32

	// Resources are the native handles bound to parameters 1..N.
	Resources []Handle

	// Views are the GPU descriptor handles bound to parameters 1..N.
	Views []descriptor.Pair

	// GroupsX, GroupsY and GroupsZ are the thread-group counts.
	GroupsX, GroupsY, GroupsZ uint32
}

// CommandList records native commands for later submission by an external
// queue. It is NOT safe for concurrent use.
type CommandList interface {
	// RecordBarrier records an unordered-access barrier on a resource that
	// stays in state current.
	RecordBarrier(resource Handle, current state.State) error

	// RecordTransition records a state transition barrier.
	RecordTransition(resource Handle, before, after state.State) error

	// RecordClear clears a resource view to zero.
	RecordClear(resource Handle, view descriptor.Pair) error

	// RecordFill fills a resource view with per-channel bit patterns.
	RecordFill(resource Handle, view descriptor.Pair, bits [4]uint32) error

	// RecordDispatch records a compute dispatch.
	RecordDispatch(args *DispatchArgs) error

	// Close ends recording. The list can then be handed to a queue.
	Close() error
}
