// Package wgpu implements the native device over gogpu/wgpu's HAL.
//
// Root signatures become bind group layouts plus pipeline layouts, pipeline
// states become compute pipelines created from SPIR-V, and command lists
// record into a HAL command encoder.
//
// # Binding model
//
// Descriptor ranges are flattened in root parameter order onto
// @group(0) @binding(0..n-1). UAV ranges bind read-write storage buffers,
// SRV ranges read-only storage buffers and CBV ranges uniform buffers.
// Root constants, when declared, are uploaded per dispatch into a uniform
// buffer at @binding(n). Textures can be cleared, filled and transitioned
// but not bound to a dispatch.
//
// # Synchronization
//
// Texture transitions and barriers map to HAL texture usage transitions.
// HAL has no buffer barrier; buffer transitions are recorded for
// bookkeeping and every dispatch is encoded in its own compute pass.
//
// # Sharing a host device
//
// A host that already owns a device (for example gogpu) shares it through
// a gpucontext.DeviceProvider exposing HalDevice() and HalQueue():
//
//	dev, err := wgpu.NewFromProvider(provider, "compute", descriptor.DefaultHeapConfig())
//
// Attach registers the provider with the backend registry under "wgpu".
package wgpu
