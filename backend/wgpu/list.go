package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/state"
)

// fenceTimeout bounds Submit's wait for the GPU.
const fenceTimeout = 5 * time.Second

// ErrNotClosed is returned by Submit on a list that is still recording.
var ErrNotClosed = errors.New("wgpu: command list is still recording")

// CommandList records into a HAL command encoder. Transient objects created
// while recording (staging buffers, constant buffers, bind groups) live
// until Release.
//
// CommandList is not safe for concurrent use.
type CommandList struct {
	dev     *Device
	label   string
	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	closed  bool

	buffers    []hal.Buffer
	bindGroups []hal.BindGroup

	dispatches     int
	bufferBarriers int
}

var _ native.CommandList = (*CommandList)(nil)

func (l *CommandList) check() error {
	if l.closed {
		return native.ErrCommandListClosed
	}
	return nil
}

// textureUsage returns the HAL usage a texture in s is used through.
func textureUsage(s state.State) gputypes.TextureUsage {
	switch {
	case s == state.Undefined:
		return gputypes.TextureUsage(0)
	case s.Has(state.Write):
		return gputypes.TextureUsageStorageBinding
	case s.Has(state.CopyDest):
		return gputypes.TextureUsageCopyDst
	case s.Has(state.CopySource):
		return gputypes.TextureUsageCopySrc
	default:
		return gputypes.TextureUsageTextureBinding
	}
}

// barrierUsage returns the usage a texture in s keeps across a barrier. A
// texture never transitioned is accessed through its storage view.
func barrierUsage(s state.State) gputypes.TextureUsage {
	if s == state.Undefined {
		return gputypes.TextureUsageStorageBinding
	}
	return textureUsage(s)
}

// RecordBarrier orders accesses to res. The texture keeps the usage of its
// current state; buffer barriers are counted only.
func (l *CommandList) RecordBarrier(res native.Handle, current state.State) error {
	if err := l.check(); err != nil {
		return err
	}
	r, err := l.dev.resource(res)
	if err != nil {
		return err
	}
	if r.kind != native.ResourceTexture {
		l.bufferBarriers++
		return nil
	}
	l.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: barrierUsage(current),
			NewUsage: barrierUsage(current),
		},
	}})
	return nil
}

// RecordTransition transitions a texture between the usages of before and
// after. Buffer transitions are counted only.
func (l *CommandList) RecordTransition(res native.Handle, before, after state.State) error {
	if err := l.check(); err != nil {
		return err
	}
	r, err := l.dev.resource(res)
	if err != nil {
		return err
	}
	if r.kind != native.ResourceTexture {
		l.bufferBarriers++
		return nil
	}
	l.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: textureUsage(before),
			NewUsage: textureUsage(after),
		},
	}})
	return nil
}

// RecordClear fills res with zeros.
func (l *CommandList) RecordClear(res native.Handle, view descriptor.Pair) error {
	return l.RecordFill(res, view, [4]uint32{})
}

// RecordFill writes bits to every element. Buffers are filled by copying
// from a staging buffer, textures by a render pass clear.
func (l *CommandList) RecordFill(res native.Handle, view descriptor.Pair, bits [4]uint32) error {
	if err := l.check(); err != nil {
		return err
	}
	if view.IsZero() {
		return descriptor.ErrNoWritableView
	}
	r, err := l.dev.resource(res)
	if err != nil {
		return err
	}
	if r.kind == native.ResourceTexture {
		return l.clearTexture(r, bits)
	}
	return l.fillBuffer(r, bits)
}

func (l *CommandList) fillBuffer(r *gpuResource, bits [4]uint32) error {
	data, err := pattern(r.format, bits, r.size)
	if err != nil {
		return err
	}
	staging, err := l.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: l.label + "_fill",
		Size:  r.size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	l.buffers = append(l.buffers, staging)
	l.dev.queue.WriteBuffer(staging, 0, data)
	l.encoder.CopyBufferToBuffer(staging, r.buffer, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: r.size},
	})
	return nil
}

// pattern repeats the element encoding of bits over size bytes.
func pattern(format gputypes.TextureFormat, bits [4]uint32, size uint64) ([]byte, error) {
	channels := descriptor.Channels(format)
	bpp := descriptor.BytesPerPixel(format)
	if channels == 0 || bpp == 0 {
		return nil, fmt.Errorf("%w: %v", descriptor.ErrUnsupportedFormat, format)
	}
	width := bpp / channels

	elem := make([]byte, bpp)
	for c := 0; c < channels; c++ {
		switch width {
		case 1:
			elem[c] = byte(bits[c])
		case 2:
			binary.LittleEndian.PutUint16(elem[c*2:], uint16(bits[c]))
		default:
			binary.LittleEndian.PutUint32(elem[c*4:], bits[c])
		}
	}
	data := make([]byte, size)
	for off := 0; off < len(data); off += bpp {
		copy(data[off:], elem)
	}
	return data, nil
}

func (l *CommandList) clearTexture(r *gpuResource, bits [4]uint32) error {
	v, err := descriptor.Decode(r.format, bits)
	if err != nil {
		return err
	}
	rp := l.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: l.label + "_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       r.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(v[0]), G: float64(v[1]), B: float64(v[2]), A: float64(v[3])},
		}},
	})
	rp.End()
	return nil
}

// RecordDispatch binds the dispatch's buffers and root constants and
// encodes one compute pass.
func (l *CommandList) RecordDispatch(args *native.DispatchArgs) error {
	if err := l.check(); err != nil {
		return err
	}
	if args == nil {
		return fmt.Errorf("%w: nil dispatch", native.ErrInvalidHandle)
	}
	p, sig, err := l.dev.pipeline(args.PipelineState)
	if err != nil {
		return err
	}
	if sig == nil || p.sig != args.RootSignature {
		return fmt.Errorf("%w: root signature %d", native.ErrInvalidHandle, args.RootSignature)
	}
	if uint32(len(args.Resources)) != sig.bindings {
		return fmt.Errorf("wgpu: dispatch binds %d resources, layout has %d", len(args.Resources), sig.bindings)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(args.Resources)+1)
	for i, h := range args.Resources {
		r, err := l.dev.resource(h)
		if err != nil {
			return err
		}
		if r.kind != native.ResourceBuffer {
			return fmt.Errorf("%w: binding %d", ErrTextureBinding, i)
		}
		entries = append(entries, bufferEntry(uint32(i), r.buffer))
	}
	if sig.constants > 0 {
		cb, err := l.constantBuffer(args.Constants, sig.constants)
		if err != nil {
			return err
		}
		entries = append(entries, bufferEntry(sig.bindings, cb))
	}

	bg, err := l.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_bg%d", l.label, l.dispatches),
		Layout:  sig.bgl,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group: %w", err)
	}
	l.bindGroups = append(l.bindGroups, bg)

	pass := l.encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: fmt.Sprintf("%s_dispatch%d", l.label, l.dispatches),
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(args.GroupsX, args.GroupsY, args.GroupsZ)
	pass.End()
	l.dispatches++

	slogger().Debug("wgpu: dispatch encoded",
		"list", l.label,
		"groups", [3]uint32{args.GroupsX, args.GroupsY, args.GroupsZ},
		"bindings", len(entries))
	return nil
}

func bufferEntry(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(),
			Offset: 0,
			Size:   0, // 0 = entire buffer
		},
	}
}

// constantBuffer uploads root constants into a uniform buffer padded to
// 16 bytes.
func (l *CommandList) constantBuffer(values []uint32, want uint32) (hal.Buffer, error) {
	if uint32(len(values)) != want {
		return nil, fmt.Errorf("wgpu: %d root constants, layout has %d", len(values), want)
	}
	size := (uint64(want)*4 + 15) &^ 15
	data := make([]byte, size)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], v)
	}
	buf, err := l.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: l.label + "_constants",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create constant buffer: %w", err)
	}
	l.buffers = append(l.buffers, buf)
	l.dev.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// Close ends encoding.
func (l *CommandList) Close() error {
	if err := l.check(); err != nil {
		return err
	}
	l.closed = true
	cmdBuf, err := l.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	l.cmdBuf = cmdBuf
	return nil
}

// Submit submits a closed list to the queue and waits for the GPU.
func (l *CommandList) Submit() error {
	if !l.closed || l.cmdBuf == nil {
		return ErrNotClosed
	}
	device := l.dev.device
	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := l.dev.queue.Submit([]hal.CommandBuffer{l.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wgpu: GPU timeout after %v", fenceTimeout)
	}
	slogger().Debug("wgpu: list submitted", "list", l.label, "dispatches", l.dispatches)
	return nil
}

// Release frees the command buffer and transient objects. A list that was
// never closed discards its encoding.
func (l *CommandList) Release() {
	device := l.dev.device
	if !l.closed {
		l.encoder.DiscardEncoding()
		l.closed = true
	}
	if l.cmdBuf != nil {
		device.FreeCommandBuffer(l.cmdBuf)
		l.cmdBuf = nil
	}
	for _, bg := range l.bindGroups {
		device.DestroyBindGroup(bg)
	}
	for _, b := range l.buffers {
		device.DestroyBuffer(b)
	}
	l.bindGroups, l.buffers = nil, nil
}

// Dispatches returns the number of encoded dispatches.
func (l *CommandList) Dispatches() int { return l.dispatches }

// BufferBarriers returns the number of buffer barriers and transitions
// recorded without a HAL equivalent.
func (l *CommandList) BufferBarriers() int { return l.bufferBarriers }
