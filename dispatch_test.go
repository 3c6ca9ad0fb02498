package dispatch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/backend/noop"
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/pipeline"
	"github.com/gogpu/dispatch/recording"
	"github.com/gogpu/dispatch/resource"
	"github.com/gogpu/dispatch/shader"
	"github.com/gogpu/dispatch/state"
	"github.com/gogpu/gputypes"
)

// fixture is a device with a context recording onto a noop list.
type fixture struct {
	dev  *noop.Device
	ctx  *dispatch.Context
	list *noop.CommandList
}

func newFixture(t *testing.T, opts ...dispatch.Option) *fixture {
	t.Helper()
	dev := noop.MustNew(t.Name())
	t.Cleanup(func() { pipeline.Forget(dev) })

	ctx, err := dispatch.New(dev, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Release() })

	list, ok := ctx.Stream().List().(*noop.CommandList)
	require.True(t, ok)
	return &fixture{dev: dev, ctx: ctx, list: list}
}

func (f *fixture) buffer(t *testing.T, usage gputypes.BufferUsage) *resource.Buffer {
	t.Helper()
	b, err := resource.NewBuffer(f.dev, resource.BufferDesc{
		Label:  "data",
		Length: 256,
		Format: gputypes.TextureFormatR32Float,
		Usage:  usage,
	})
	require.NoError(t, err)
	return b
}

// scaleShader writes one UAV and takes one root constant.
func scaleShader() *shader.Shader {
	return &shader.Shader{
		Label:         "scale",
		Bytecode:      []byte{0x03, 0x02, 0x23, 0x07},
		EntryPoint:    "main",
		ThreadGroup:   [3]uint32{64, 1, 1},
		Ranges:        []native.DescriptorRange{{Kind: native.RangeUAV, Count: 1}},
		RootConstants: 1,
	}
}

// blurShader writes its target and reads one source.
func blurShader() *shader.Shader {
	return &shader.Shader{
		Label:       "blur",
		Bytecode:    []byte{0x03, 0x02, 0x23, 0x07, 0x01},
		EntryPoint:  "blur",
		ThreadGroup: [3]uint32{8, 8, 1},
		Ranges: []native.DescriptorRange{
			{Kind: native.RangeUAV, Count: 1},
			{Kind: native.RangeSRV, Count: 1},
		},
	}
}

func TestNew_NilDevice(t *testing.T) {
	_, err := dispatch.New(nil)
	assert.ErrorIs(t, err, dispatch.ErrNilDevice)
}

func TestBarrierClearDispatch(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	require.NoError(t, f.ctx.Barrier(b))
	require.NoError(t, f.ctx.Clear(b))
	assert.Equal(t, state.Write, b.State())

	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{2}, Resources: []dispatch.Resource{b}}
	require.NoError(t, f.ctx.For(k, b.Length()))

	assert.Equal(t, []noop.Op{noop.OpBarrier, noop.OpClear, noop.OpDispatch}, f.list.Ops())
	assert.Equal(t, []recording.CommandType{recording.CmdBarrier, recording.CmdClear, recording.CmdDispatch},
		f.ctx.Stream().Types())

	calls := f.list.Calls()
	assert.Equal(t, calls[0].Resource, calls[1].Resource)
	view, _, err := b.GetClearDescriptorHandles(f.dev)
	require.NoError(t, err)
	assert.Equal(t, view, calls[1].View)

	args := calls[2].Dispatch
	assert.Equal(t, [3]uint32{4, 1, 1}, [3]uint32{args.GroupsX, args.GroupsY, args.GroupsZ})
	assert.Equal(t, []uint32{2}, args.Constants)
	assert.Equal(t, []descriptor.Pair{view}, args.Views)
	desc, ok := f.dev.RootSignature(args.RootSignature)
	require.True(t, ok)
	assert.Len(t, desc.Parameters, 2)

	assert.Zero(t, b.Leases())
	assert.Equal(t, 3, f.ctx.Len())
}

func TestTransition_Twice(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	require.NoError(t, f.ctx.Transition(b, state.CopyDest))
	require.NoError(t, f.ctx.Transition(b, state.CopyDest))

	calls := f.list.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, noop.OpTransition, calls[0].Op)
	assert.Equal(t, state.Undefined, calls[0].Before)
	assert.Equal(t, state.CopyDest, calls[0].After)
	assert.Equal(t, state.CopyDest, b.State())

	st := f.ctx.Stats()
	assert.Equal(t, uint64(1), st.Transitions)
	assert.Equal(t, uint64(1), st.Skipped)
}

func TestTransition_InvalidState(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	err := f.ctx.Transition(b, state.Write|state.Read)
	assert.ErrorIs(t, err, state.ErrInvalidState)
	assert.Empty(t, f.list.Calls())
	assert.Equal(t, state.Undefined, b.State())
}

func TestCallOrderPreserved(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)

	require.NoError(t, f.ctx.Transition(b, state.CopyDest))
	require.NoError(t, f.ctx.Fill(b, [4]float32{1.5}))
	require.NoError(t, f.ctx.Barrier(b))
	require.NoError(t, f.ctx.Transition(b, state.Read))

	assert.Equal(t, []noop.Op{
		noop.OpTransition, // Undefined -> CopyDest
		noop.OpTransition, // CopyDest -> Write, implied by Fill
		noop.OpFill,
		noop.OpBarrier,
		noop.OpTransition, // Write -> Read
	}, f.list.Ops())
	assert.Equal(t, state.Read, b.State())
}

func TestFill_Encoding(t *testing.T) {
	f := newFixture(t)
	tex, err := resource.NewTexture2D[descriptor.RGBA8](f.dev, resource.TextureDesc{
		Width: 4, Height: 4,
		Usage: gputypes.TextureUsageStorageBinding,
	})
	require.NoError(t, err)

	require.NoError(t, f.ctx.Fill(tex, [4]float32{1, 0, -1, 2}))
	calls := f.list.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, [4]uint32{255, 0, 0, 255}, calls[0].Bits)

	fill, ok := f.ctx.Stream().Last().(recording.FillCommand)
	require.True(t, ok)
	assert.Equal(t, float32(2), fill.Value[3], "stream keeps the logical value")
}

func TestNoWritableView(t *testing.T) {
	f := newFixture(t)
	ro, err := resource.NewTexture2D[descriptor.RGBA8](f.dev, resource.TextureDesc{
		Width: 4, Height: 4,
		Usage: gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.ctx.Clear(ro), descriptor.ErrNoWritableView)
	assert.ErrorIs(t, f.ctx.Fill(ro, [4]float32{1}), descriptor.ErrNoWritableView)
	assert.ErrorIs(t, f.ctx.ForEach(ro, &dispatch.Kernel{Shader: blurShader(), Resources: []dispatch.Resource{ro}}),
		descriptor.ErrNoWritableView)

	assert.Empty(t, f.list.Calls())
	assert.Zero(t, f.dev.PipelinesCreated(), "usage errors precede pipeline creation")
	assert.Equal(t, state.Undefined, ro.State())
}

func TestArgumentErrors(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)
	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"barrier nil", func() error { return f.ctx.Barrier(nil) }, dispatch.ErrNilResource},
		{"transition nil", func() error { return f.ctx.Transition(nil, state.Read) }, dispatch.ErrNilResource},
		{"clear nil", func() error { return f.ctx.Clear(nil) }, dispatch.ErrNilResource},
		{"fill nil", func() error { return f.ctx.Fill(nil, [4]float32{}) }, dispatch.ErrNilResource},
		{"for nil kernel", func() error { return f.ctx.For(nil, 1) }, dispatch.ErrNilKernel},
		{"for nil shader", func() error { return f.ctx.For(&dispatch.Kernel{}, 1) }, dispatch.ErrNilKernel},
		{"for no dims", func() error { return f.ctx.For(k) }, dispatch.ErrInvalidDomain},
		{"for four dims", func() error { return f.ctx.For(k, 1, 1, 1, 1) }, dispatch.ErrInvalidDomain},
		{"for zero dim", func() error { return f.ctx.For(k, 8, 0) }, dispatch.ErrInvalidDomain},
		{"for negative dim", func() error { return f.ctx.For(k, -1) }, dispatch.ErrInvalidDomain},
		{"foreach nil target", func() error { return f.ctx.ForEach(nil, k) }, dispatch.ErrNilResource},
		{"foreach nil kernel", func() error { return f.ctx.ForEach(b, nil) }, dispatch.ErrNilKernel},
		{"constants", func() error {
			return f.ctx.For(&dispatch.Kernel{Shader: scaleShader(), Resources: []dispatch.Resource{b}}, 1)
		}, dispatch.ErrConstantsMismatch},
		{"resources", func() error {
			return f.ctx.For(&dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}}, 1)
		}, dispatch.ErrBindingMismatch},
		{"nil binding", func() error {
			return f.ctx.For(&dispatch.Kernel{
				Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{nil},
			}, 1)
		}, dispatch.ErrNilResource},
		{"foreach srv first", func() error {
			sh := blurShader()
			sh.Ranges = sh.Ranges[1:]
			return f.ctx.ForEach(b, &dispatch.Kernel{Shader: sh})
		}, dispatch.ErrBindingMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}

	assert.Empty(t, f.list.Calls())
	assert.Zero(t, f.ctx.Len())
	assert.Zero(t, b.Leases())
	assert.Equal(t, state.Undefined, b.State())
	assert.Zero(t, f.dev.PipelinesCreated())
}

func TestDispatchTooLarge(t *testing.T) {
	f := newFixture(t, dispatch.WithMaxGroups([3]uint32{2, 0, 0}))
	b := f.buffer(t, gputypes.BufferUsageStorage)
	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}

	require.NoError(t, f.ctx.For(k, 128))
	assert.ErrorIs(t, f.ctx.For(k, 129), dispatch.ErrDispatchTooLarge)
	assert.Equal(t, 1, f.ctx.Len())
}

func TestForEach_BindsTargetFirst(t *testing.T) {
	f := newFixture(t)
	tex, err := resource.NewTexture2D[descriptor.RGBA32F](f.dev, resource.TextureDesc{
		Label: "out", Width: 16, Height: 12,
		Usage: gputypes.TextureUsageStorageBinding,
	})
	require.NoError(t, err)
	src := f.buffer(t, gputypes.BufferUsageStorage)

	k := &dispatch.Kernel{Shader: blurShader(), Resources: []dispatch.Resource{src}}
	require.NoError(t, f.ctx.ForEach(tex, k))
	assert.Equal(t, state.Write, tex.State())
	assert.Equal(t, state.Read, src.State())

	texHandle, l, err := tex.AcquireNativeHandle(f.dev)
	require.NoError(t, err)
	l.Release()
	args := f.list.Calls()[0].Dispatch
	assert.Equal(t, texHandle, args.Resources[0])
	assert.Equal(t, [3]uint32{2, 2, 1}, [3]uint32{args.GroupsX, args.GroupsY, args.GroupsZ})
	assert.False(t, args.Views[0].IsZero())
	assert.True(t, args.Views[1].IsZero(), "read bindings carry no writable view")

	// Writing the source between dispatches transitions it back to Read.
	require.NoError(t, f.ctx.Clear(src))
	require.NoError(t, f.ctx.ForEach(tex, k))
	assert.Equal(t, []noop.Op{
		noop.OpDispatch,
		noop.OpTransition, // src Read -> Write
		noop.OpClear,
		noop.OpTransition, // src Write -> Read
		noop.OpDispatch,
	}, f.list.Ops())
	assert.Equal(t, 1, f.dev.PipelinesCreated(), "pipeline state is memoized")
}

func TestLeases_ReleasedOnError(t *testing.T) {
	f := newFixture(t)
	f.dev.PipelineErr = errors.New("compile failed")
	b := f.buffer(t, gputypes.BufferUsageStorage)

	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}
	err := f.ctx.For(k, 64)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile failed")
	assert.Zero(t, b.Leases())
	assert.Empty(t, f.list.Calls())
	assert.Equal(t, state.Undefined, b.State())

	f.dev.PipelineErr = nil
	require.NoError(t, f.ctx.For(k, 64), "failed creations are not cached")
}

func TestDisposedResource(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)
	b.Release()

	assert.ErrorIs(t, f.ctx.Barrier(b), lease.ErrDisposed)
	assert.ErrorIs(t, f.ctx.Clear(b), lease.ErrDisposed)
	assert.Empty(t, f.list.Calls())
}

func TestDeviceMismatch(t *testing.T) {
	f := newFixture(t)
	other := noop.MustNew("other")
	b, err := resource.NewBuffer(other, resource.BufferDesc{
		Length: 4, Format: gputypes.TextureFormatR32Float, Usage: gputypes.BufferUsageStorage,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.ctx.Barrier(b), resource.ErrDeviceMismatch)
	assert.ErrorIs(t, f.ctx.Clear(b), resource.ErrDeviceMismatch)
	assert.Empty(t, f.list.Calls())
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	require.NoError(t, f.ctx.Close())
	require.NoError(t, f.ctx.Close())
	assert.True(t, f.list.Closed())
	assert.ErrorIs(t, f.ctx.Barrier(b), dispatch.ErrClosed)
	assert.ErrorIs(t, f.ctx.For(&dispatch.Kernel{Shader: scaleShader()}, 1), dispatch.ErrClosed)
}

func TestWithCommandList(t *testing.T) {
	dev := noop.MustNew("shared")
	t.Cleanup(func() { pipeline.Forget(dev) })
	list, err := dev.NewCommandList("caller")
	require.NoError(t, err)

	ctx, err := dispatch.New(dev, dispatch.WithCommandList(list), dispatch.WithLabel("ctx"))
	require.NoError(t, err)
	assert.Same(t, list, ctx.Stream().List())
	assert.Equal(t, "ctx", ctx.Label())
	assert.Len(t, dev.Lists(), 1, "no list is created when one is supplied")
}

func TestWithPipelineCache(t *testing.T) {
	dev := noop.MustNew("gpu0")
	cache := pipeline.NewCache(dev, 0)
	defer cache.Close()

	ctx, err := dispatch.New(dev, dispatch.WithPipelineCache(cache))
	require.NoError(t, err)
	b, err := resource.NewBuffer(dev, resource.BufferDesc{
		Length: 64, Format: gputypes.TextureFormatR32Float, Usage: gputypes.BufferUsageStorage,
	})
	require.NoError(t, err)
	require.NoError(t, ctx.For(&dispatch.Kernel{
		Shader: scaleShader(), Constants: []uint32{3}, Resources: []dispatch.Resource{b},
	}, 64))
	assert.Equal(t, 1, cache.Len())

	_, err = dispatch.New(noop.MustNew("gpu1"), dispatch.WithPipelineCache(cache))
	assert.ErrorIs(t, err, pipeline.ErrDeviceMismatch)
}

// kernelShader returns a single-UAV shader whose bytecode ends in id, so
// distinct ids give distinct pipeline states.
func kernelShader(id byte) *shader.Shader {
	s := scaleShader()
	s.Label = "kernel"
	s.Bytecode = []byte{0x03, 0x02, 0x23, 0x07, 0xFF, id}
	return s
}

func TestBoundedCache_StreamOutlivesEviction(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	cfg.CacheCapacity = 1
	f := newFixture(t, dispatch.WithConfig(cfg))
	b := f.buffer(t, gputypes.BufferUsageStorage)

	const kernels = 40
	for i := range kernels {
		k := &dispatch.Kernel{Shader: kernelShader(byte(i)), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}
		require.NoError(t, f.ctx.For(k, 64))
	}
	_, pipelines, _ := f.dev.Live()
	assert.Equal(t, kernels, pipelines, "evicted states referenced by the stream stay alive")

	require.NoError(t, f.ctx.Close())
	replay, err := f.dev.NewCommandList("replay")
	require.NoError(t, err)
	require.NoError(t, f.ctx.Stream().Playback(replay))
	assert.Len(t, replay.(*noop.CommandList).Calls(), kernels)

	require.NoError(t, f.ctx.Release())
	sigs, pipelines, _ := f.dev.Live()
	assert.Zero(t, pipelines)
	assert.Zero(t, sigs)
}

func TestRelease_AfterClose(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	cfg.CacheCapacity = 8
	f := newFixture(t, dispatch.WithConfig(cfg))
	b := f.buffer(t, gputypes.BufferUsageStorage)

	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}
	require.NoError(t, f.ctx.For(k, 64))
	require.NoError(t, f.ctx.For(k, 128))
	require.NoError(t, f.ctx.Close())

	_, pipelines, _ := f.dev.Live()
	assert.Equal(t, 1, pipelines, "a closed list can still be submitted")
	replay, err := f.dev.NewCommandList("replay")
	require.NoError(t, err)
	require.NoError(t, f.ctx.Stream().Playback(replay))

	require.NoError(t, f.ctx.Release())
	require.NoError(t, f.ctx.Release())
	_, pipelines, _ = f.dev.Live()
	assert.Zero(t, pipelines)
	assert.ErrorIs(t, f.ctx.For(k, 64), dispatch.ErrClosed)
}

func TestRelease_SharedCacheKeepsStates(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}
	require.NoError(t, f.ctx.For(k, 64))
	require.NoError(t, f.ctx.Release())

	_, pipelines, _ := f.dev.Live()
	assert.Equal(t, 1, pipelines, "the per-device cache still owns the state")
	assert.Equal(t, 1, pipeline.CacheFor(f.dev).Len())
}

func TestFor_ConflictingBindings(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	k := &dispatch.Kernel{Shader: blurShader(), Resources: []dispatch.Resource{b, b}}
	err := f.ctx.For(k, 16, 16)
	assert.ErrorIs(t, err, dispatch.ErrBindingMismatch)
	assert.ErrorIs(t, err, state.ErrInvalidState)
	assert.Empty(t, f.list.Calls())
	assert.Equal(t, state.Undefined, b.State())
	assert.Zero(t, b.Leases())

	tex, err := resource.NewTexture2D[descriptor.RGBA8](f.dev, resource.TextureDesc{
		Width: 4, Height: 4, Usage: gputypes.TextureUsageStorageBinding,
	})
	require.NoError(t, err)
	err = f.ctx.ForEach(tex, &dispatch.Kernel{Shader: blurShader(), Resources: []dispatch.Resource{tex}})
	assert.ErrorIs(t, err, dispatch.ErrBindingMismatch, "the target cannot also be read")
}

func TestFor_MergedReadStates(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage|gputypes.BufferUsageUniform)

	sh := &shader.Shader{
		Label:       "lookup",
		Bytecode:    []byte{0x03, 0x02, 0x23, 0x07, 0x02},
		EntryPoint:  "main",
		ThreadGroup: [3]uint32{64, 1, 1},
		Ranges: []native.DescriptorRange{
			{Kind: native.RangeSRV, Count: 1},
			{Kind: native.RangeCBV, BaseRegister: 1, Count: 1},
		},
	}
	require.NoError(t, f.ctx.For(&dispatch.Kernel{Shader: sh, Resources: []dispatch.Resource{b, b}}, 64))
	assert.Equal(t, state.Read|state.Constant, b.State())
	assert.Equal(t, []noop.Op{noop.OpDispatch}, f.list.Ops())
}

var errRejected = errors.New("list rejected the command")

// rejectingList forwards barriers and transitions and rejects the rest.
type rejectingList struct {
	native.CommandList
}

func (rejectingList) RecordClear(native.Handle, descriptor.Pair) error { return errRejected }

func (rejectingList) RecordFill(native.Handle, descriptor.Pair, [4]uint32) error {
	return errRejected
}

func (rejectingList) RecordDispatch(*native.DispatchArgs) error { return errRejected }

func TestRejectedCommand_KeepsState(t *testing.T) {
	dev := noop.MustNew(t.Name())
	t.Cleanup(func() { pipeline.Forget(dev) })
	inner, err := dev.NewCommandList("inner")
	require.NoError(t, err)
	ctx, err := dispatch.New(dev, dispatch.WithCommandList(rejectingList{inner}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Release() })

	b, err := resource.NewBuffer(dev, resource.BufferDesc{
		Length: 64, Format: gputypes.TextureFormatR32Float, Usage: gputypes.BufferUsageStorage,
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Transition(b, state.Read))

	assert.ErrorIs(t, ctx.Clear(b), errRejected)
	assert.Equal(t, state.Read, b.State())
	assert.ErrorIs(t, ctx.Fill(b, [4]float32{1}), errRejected)
	assert.Equal(t, state.Read, b.State())

	k := &dispatch.Kernel{Shader: scaleShader(), Constants: []uint32{1}, Resources: []dispatch.Resource{b}}
	assert.ErrorIs(t, ctx.For(k, 64), errRejected)
	assert.Equal(t, state.Read, b.State())
	assert.Zero(t, b.Leases())

	st, err := pipeline.CacheFor(dev).GetOrCreate(k.Shader)
	require.NoError(t, err)
	assert.Zero(t, st.Leases(), "a rejected dispatch retains no pipeline lease")

	// The next transition starts from the restored state.
	require.NoError(t, ctx.Transition(b, state.CopyDest))
	last := inner.(*noop.CommandList).Calls()
	assert.Equal(t, state.Read, last[len(last)-1].Before)
}

func TestBarrier_CarriesCurrentState(t *testing.T) {
	f := newFixture(t)
	b := f.buffer(t, gputypes.BufferUsageStorage)

	require.NoError(t, f.ctx.Barrier(b))
	require.NoError(t, f.ctx.Transition(b, state.Read))
	require.NoError(t, f.ctx.Barrier(b))

	calls := f.list.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, state.Undefined, calls[0].After)
	assert.Equal(t, state.Read, calls[2].Before)
	assert.Equal(t, state.Read, calls[2].After)
	assert.Equal(t, state.Read, f.ctx.Stream().Commands()[2].(recording.BarrierCommand).State)
}
