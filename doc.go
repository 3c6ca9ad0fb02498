// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dispatch records GPU compute work onto a command stream.
//
// A [Context] composes the lower layers of the module: it tracks the
// last-known state of every resource it touches (package state), borrows
// native handles through scoped leases (package lease), reads descriptor
// handle pairs from the device heap (package descriptor), memoizes root
// signatures and pipeline states per device (packages rootsig and pipeline)
// and appends typed commands to a stream (package recording) that forwards
// them to a native command list.
//
// # Quick Start
//
//	dev, _ := backend.Open("noop", descriptor.HeapConfig{})
//	ctx, _ := dispatch.New(dev)
//	defer ctx.Release()
//
//	tex, _ := resource.NewTexture2D[descriptor.RGBA8](dev, resource.TextureDesc{
//	    Width: 512, Height: 512,
//	    Usage: gputypes.TextureUsageStorageBinding,
//	})
//	_ = ctx.Clear(tex)
//	_ = ctx.ForEach(tex, &dispatch.Kernel{Shader: blur})
//
// # Recording model
//
// Every operation validates its arguments first and returns an argument
// error without touching the stream. It then acquires leases on the native
// handles it references, appends its commands in call order and releases the
// leases before returning. If a command cannot be recorded, the resources
// keep the states they had before the operation. Completion on the GPU
// (fences, queue submission) is not tracked here.
//
// Pipeline states referenced by recorded dispatches stay alive until
// [Context.Release], even when a bounded cache evicts them. The order is:
// record, [Context.Close], submit the command list and wait, then Release.
//
// Clear, Fill and dispatches move resources into the state they need
// implicitly. A resource in the Undefined state is promoted without a
// barrier; any other state change records a transition first.
//
// # Thread Safety
//
// A Context and the resources it records are single-goroutine. Pipeline
// caches, descriptor heaps and lease owners are safe for concurrent use, so
// several contexts may record on the same device in parallel as long as they
// touch disjoint resources.
//
// # Logging
//
// The package is silent by default. See [SetLogger].
package dispatch
