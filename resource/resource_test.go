package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dispatch/backend/noop"
	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/state"
	"github.com/gogpu/gputypes"
)

func storageBuffer(t *testing.T, dev *noop.Device) *Buffer {
	t.Helper()
	b, err := NewBuffer(dev, BufferDesc{
		Label:  "data",
		Length: 256,
		Format: gputypes.TextureFormatR32Float,
		Usage:  gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	return b
}

func TestNewBuffer(t *testing.T) {
	dev := noop.MustNew("gpu0")
	b := storageBuffer(t, dev)

	assert.Equal(t, state.Undefined, b.State())
	assert.Equal(t, 256, b.Length())
	assert.Equal(t, uint64(1024), b.Size())
	assert.True(t, b.Writable())
	assert.Equal(t, [3]uint32{256, 1, 1}, b.Extent())
	assert.Equal(t, 1, dev.DescriptorHeap().Len())

	_, _, resources := dev.Live()
	assert.Equal(t, 1, resources)
}

func TestNewBuffer_Invalid(t *testing.T) {
	dev := noop.MustNew("gpu0")
	_, err := NewBuffer(nil, BufferDesc{Length: 1, Format: gputypes.TextureFormatR32Float})
	assert.ErrorIs(t, err, ErrNilDevice)
	_, err = NewBuffer(dev, BufferDesc{Length: 0, Format: gputypes.TextureFormatR32Float})
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = NewBuffer(dev, BufferDesc{Length: 4, Format: gputypes.TextureFormatDepth24PlusStencil8})
	assert.ErrorIs(t, err, descriptor.ErrUnsupportedFormat)
}

func TestAcquireNativeHandle(t *testing.T) {
	dev := noop.MustNew("gpu0")
	b := storageBuffer(t, dev)

	h, l, err := b.AcquireNativeHandle(dev)
	require.NoError(t, err)
	assert.True(t, h.IsValid())
	assert.Equal(t, 1, b.Leases())
	l.Release()
	assert.Equal(t, 0, b.Leases())

	_, _, err = b.AcquireNativeHandle(noop.MustNew("gpu1"))
	assert.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestRelease_DeferredUntilLeasesReleased(t *testing.T) {
	dev := noop.MustNew("gpu0")
	b := storageBuffer(t, dev)

	_, l, err := b.AcquireNativeHandle(dev)
	require.NoError(t, err)

	b.Release()
	assert.True(t, b.Released())
	_, _, resources := dev.Live()
	assert.Equal(t, 1, resources, "native buffer must outlive the outstanding lease")

	_, _, err = b.AcquireNativeHandle(dev)
	assert.ErrorIs(t, err, lease.ErrDisposed)

	l.Release()
	_, _, resources = dev.Live()
	assert.Zero(t, resources)
	assert.Zero(t, dev.DescriptorHeap().Len(), "view must return to the heap")
}

func TestGetClearDescriptorHandles(t *testing.T) {
	dev := noop.MustNew("gpu0")

	b := storageBuffer(t, dev)
	pair, normalized, err := b.GetClearDescriptorHandles(dev)
	require.NoError(t, err)
	assert.False(t, pair.IsZero())
	assert.False(t, normalized)

	tex, err := NewTexture2D[descriptor.RGBA8](dev, TextureDesc{
		Width: 4, Height: 4,
		Usage: gputypes.TextureUsageStorageBinding,
	})
	require.NoError(t, err)
	texPair, normalized, err := tex.GetClearDescriptorHandles(dev)
	require.NoError(t, err)
	assert.True(t, normalized)
	assert.NotEqual(t, pair, texPair, "live resources never share a descriptor pair")

	ro, err := NewTexture2D[descriptor.RGBA8](dev, TextureDesc{
		Width: 4, Height: 4,
		Usage: gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	_, _, err = ro.GetClearDescriptorHandles(dev)
	assert.True(t, errors.Is(err, descriptor.ErrNoWritableView))
}

func TestGetTransitionStates(t *testing.T) {
	dev := noop.MustNew("gpu0")
	b := storageBuffer(t, dev)

	before, after, err := b.GetTransitionStates(dev, state.CopyDest)
	require.NoError(t, err)
	assert.Equal(t, state.Undefined, before)
	assert.Equal(t, state.CopyDest, after)

	_, _, err = b.GetTransitionStates(dev, state.Write|state.Read)
	assert.ErrorIs(t, err, state.ErrInvalidState)
}

func TestTextures(t *testing.T) {
	dev := noop.MustNew("gpu0")

	t2, err := NewTexture2D[descriptor.R32F](dev, TextureDesc{Label: "height", Width: 16, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{16, 8, 1}, t2.Extent())
	assert.Equal(t, gputypes.TextureFormatR32Float, t2.Format())
	assert.False(t, t2.Writable())
	assert.Equal(t, descriptor.R32F{R: 0.5}, t2.Pack([4]float32{0.5}))

	t3, err := NewTexture3D[descriptor.RGBA32F](dev, TextureDesc{Width: 4, Height: 4, Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{4, 4, 2}, t3.Extent())
	h, l, err := t3.AcquireNativeHandle(dev)
	require.NoError(t, err)
	l.Release()
	res, ok := dev.Resource(h)
	require.True(t, ok)
	assert.Equal(t, uint32(2), res.Texture.Depth)

	_, err = NewTexture3D[descriptor.R8](dev, TextureDesc{Width: 4, Height: 4})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestNewTexture_HeapExhausted(t *testing.T) {
	dev, err := noop.New("tiny", descriptor.HeapConfig{GPUBase: 64, CPUBase: 64, Increment: 8, Capacity: 1})
	require.NoError(t, err)

	_, err = NewTexture2D[descriptor.R8](dev, TextureDesc{Width: 1, Height: 1, Usage: gputypes.TextureUsageStorageBinding})
	require.NoError(t, err)
	_, err = NewTexture2D[descriptor.R8](dev, TextureDesc{Width: 1, Height: 1, Usage: gputypes.TextureUsageStorageBinding})
	assert.ErrorIs(t, err, descriptor.ErrHeapFull)
	_, _, resources := dev.Live()
	assert.Equal(t, 1, resources, "failed creation must destroy its native texture")
}
