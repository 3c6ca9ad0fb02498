package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dispatch/backend/noop"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/pipeline"
	"github.com/gogpu/dispatch/rootsig"
	"github.com/gogpu/dispatch/shader"
)

func testShader(code ...byte) *shader.Shader {
	if len(code) == 0 {
		code = []byte{0x03, 0x02, 0x23, 0x07}
	}
	return &shader.Shader{
		Label:       "fill",
		Bytecode:    code,
		EntryPoint:  "main",
		ThreadGroup: [3]uint32{64, 1, 1},
		Ranges: []native.DescriptorRange{
			{Kind: native.RangeUAV, BaseRegister: 0, Count: 1},
		},
		RootConstants: 1,
	}
}

func TestCreate(t *testing.T) {
	dev := noop.MustNew("gpu0")
	sig, err := rootsig.Create(dev, 0, nil)
	require.NoError(t, err)
	defer sig.Release()

	st, err := pipeline.Create(dev, sig, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, st.Handle().IsValid())
	assert.Same(t, sig, st.Signature())

	st.Release()
	st.Release()
	_, pipelines, _ := dev.Live()
	assert.Zero(t, pipelines)
	sigs, _, _ := dev.Live()
	assert.Equal(t, 1, sigs, "a directly created state must not release a borrowed signature")
}

func TestCreate_Errors(t *testing.T) {
	dev := noop.MustNew("gpu0")
	other := noop.MustNew("gpu1")
	sig, err := rootsig.Create(dev, 0, nil)
	require.NoError(t, err)

	_, err = pipeline.Create(nil, sig, []byte{1})
	assert.ErrorIs(t, err, pipeline.ErrNilDevice)
	_, err = pipeline.Create(dev, nil, []byte{1})
	assert.ErrorIs(t, err, pipeline.ErrNilSignature)
	_, err = pipeline.Create(dev, sig, nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyBytecode)
	_, err = pipeline.Create(other, sig, []byte{1})
	assert.ErrorIs(t, err, pipeline.ErrDeviceMismatch)

	driverErr := errors.New("E_INVALIDARG: bytecode is not a compute shader")
	dev.PipelineErr = driverErr
	_, err = pipeline.Create(dev, sig, []byte{1})
	assert.ErrorIs(t, err, driverErr)
	_, pipelines, _ := dev.Live()
	assert.Zero(t, pipelines)
}

func TestCache_Memoizes(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	defer c.Close()

	a, err := c.GetOrCreate(testShader())
	require.NoError(t, err)
	// A distinct Shader value with identical bytecode shares the state.
	b, err := c.GetOrCreate(testShader())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, dev.PipelinesCreated())

	d, err := c.GetOrCreate(testShader(9, 9, 9))
	require.NoError(t, err)
	assert.NotSame(t, a, d)

	st := c.Stats()
	assert.Equal(t, 2, st.Len)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
	assert.Equal(t, uint32(1), a.Signature().Constants())
}

func TestCache_FailureNotCached(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	defer c.Close()

	dev.PipelineErr = errors.New("device removed")
	_, err := c.GetOrCreate(testShader())
	require.Error(t, err)
	assert.Zero(t, c.Len())
	sigs, _, _ := dev.Live()
	assert.Zero(t, sigs, "root signature must be released when pipeline creation fails")

	dev.PipelineErr = nil
	_, err = c.GetOrCreate(testShader())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidShader(t *testing.T) {
	c := pipeline.NewCache(noop.MustNew("gpu0"), 0)
	_, err := c.GetOrCreate(nil)
	assert.ErrorIs(t, err, rootsig.ErrNilShader)
	_, err = c.GetOrCreate(&shader.Shader{ThreadGroup: [3]uint32{1, 1, 1}})
	assert.ErrorIs(t, err, shader.ErrNoBytecode)
}

func TestCache_CloseReleasesAll(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	for i := byte(0); i < 5; i++ {
		_, err := c.GetOrCreate(testShader(i + 1))
		require.NoError(t, err)
	}
	c.Close()
	c.Close()

	sigs, pipelines, _ := dev.Live()
	assert.Zero(t, sigs)
	assert.Zero(t, pipelines)
	_, err := c.GetOrCreate(testShader())
	assert.ErrorIs(t, err, pipeline.ErrCacheClosed)
}

func TestCache_Concurrent(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := c.GetOrCreate(testShader(byte(i%4) + 1)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, dev.PipelinesCreated())
}

func TestCacheFor_PerDevice(t *testing.T) {
	d0 := noop.MustNew("gpu0")
	d1 := noop.MustNew("gpu1")
	defer pipeline.Forget(d0)
	defer pipeline.Forget(d1)

	c0 := pipeline.CacheFor(d0)
	assert.Same(t, c0, pipeline.CacheFor(d0))
	c1 := pipeline.CacheFor(d1)
	assert.NotSame(t, c0, c1)

	s0, err := c0.GetOrCreate(testShader())
	require.NoError(t, err)
	s1, err := c1.GetOrCreate(testShader())
	require.NoError(t, err)
	assert.Same(t, d0, s0.Device())
	assert.Same(t, d1, s1.Device())

	pipeline.Forget(d0)
	_, pipelines, _ := d0.Live()
	assert.Zero(t, pipelines)
	assert.NotSame(t, c0, pipeline.CacheFor(d0))
}

func TestCache_Warm(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	defer c.Close()

	shaders := []*shader.Shader{testShader(1), testShader(2), testShader(3), testShader(1)}
	require.NoError(t, c.Warm(context.Background(), 2, shaders...))
	assert.Equal(t, 3, c.Len(), "equal bytecode shares one state")
	assert.Equal(t, 3, dev.PipelinesCreated())

	bad := testShader()
	bad.Bytecode = nil
	err := c.Warm(context.Background(), 0, testShader(4), bad)
	assert.ErrorIs(t, err, shader.ErrNoBytecode)
	assert.Equal(t, 4, c.Len(), "valid shaders are cached despite a failing one")

	c.Close()
	assert.ErrorIs(t, c.Warm(context.Background(), 1, testShader(5)), pipeline.ErrCacheClosed)
}

func TestState_LeaseDefersRelease(t *testing.T) {
	dev := noop.MustNew("gpu0")
	sig, err := rootsig.Create(dev, 0, nil)
	require.NoError(t, err)
	defer sig.Release()
	st, err := pipeline.Create(dev, sig, []byte{1, 2, 3})
	require.NoError(t, err)

	l, err := st.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Leases())

	st.Release()
	assert.True(t, st.Released())
	_, pipelines, _ := dev.Live()
	assert.Equal(t, 1, pipelines, "a leased state outlives Release")
	_, err = st.Acquire()
	assert.ErrorIs(t, err, lease.ErrDisposed)

	l.Release()
	_, pipelines, _ = dev.Live()
	assert.Zero(t, pipelines)
}

func TestCache_AcquireSurvivesEviction(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 1)

	var leases []*lease.Lease
	for i := range 40 {
		st, l, err := c.Acquire(testShader(0x03, 0x02, 0x23, 0x07, byte(i)))
		require.NoError(t, err)
		require.True(t, st.Handle().IsValid())
		leases = append(leases, l)
	}
	assert.Less(t, c.Len(), 40)
	assert.Positive(t, c.Stats().Evictions)
	sigs, pipelines, _ := dev.Live()
	assert.Equal(t, 40, pipelines, "evicted states stay alive while leased")
	assert.Equal(t, 40, sigs)

	for _, l := range leases {
		l.Release()
	}
	_, pipelines, _ = dev.Live()
	assert.Equal(t, c.Len(), pipelines, "only cached states remain")

	c.Close()
	sigs, pipelines, _ = dev.Live()
	assert.Zero(t, pipelines)
	assert.Zero(t, sigs)
	_, _, err := c.Acquire(testShader())
	assert.ErrorIs(t, err, pipeline.ErrCacheClosed)
}

func TestCache_MetadataSeparatesStates(t *testing.T) {
	dev := noop.MustNew("gpu0")
	c := pipeline.NewCache(dev, 0)
	defer c.Close()

	plain := testShader()
	plain.RootConstants = 0
	withConstants := testShader()
	withConstants.RootConstants = 3

	a, err := c.GetOrCreate(plain)
	require.NoError(t, err)
	b, err := c.GetOrCreate(withConstants)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, uint32(0), a.Signature().Constants())
	assert.Equal(t, uint32(3), b.Signature().Constants())
}
