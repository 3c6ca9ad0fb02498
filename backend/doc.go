// Package backend is the registry of native device backends.
//
// Backends register a [Factory] under a name from an init function, the
// way database/sql drivers do, and are opened by name:
//
//	import _ "github.com/gogpu/dispatch/backend/noop"
//
//	dev, err := backend.Open("noop", descriptor.DefaultHeapConfig())
//
// # Available Backends
//
//   - "noop": in-memory device that records native calls (always available)
//   - "wgpu": gogpu/wgpu HAL device shared by the host, registered by
//     wgpu.Attach
//
// Default opens the first backend available in priority order.
package backend
