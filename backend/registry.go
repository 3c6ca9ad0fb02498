package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/native"
)

// Registry errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNilFactory is returned by Register for a nil factory.
	ErrNilFactory = errors.New("backend: factory is nil")
)

// Backend names.
const (
	BackendWGPU = "wgpu"
	BackendNoop = "noop"
)

// Factory opens a native device whose descriptor heap uses cfg.
type Factory func(cfg descriptor.HeapConfig) (native.Device, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for Default (first available wins).
	backendPriority = []string{BackendWGPU, BackendNoop}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// A backend registered under an existing name replaces it.
func Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: %q", ErrNilFactory, name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
	slogger().Debug("backend: registered", "name", name)
	return nil
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string, cfg descriptor.HeapConfig) (native.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	slogger().Info("backend: device opened", "backend", name, "device", dev.Label())
	return dev, nil
}

// Default opens a device on the best available backend, in priority order
// wgpu > noop, falling back to any other registered backend.
func Default(cfg descriptor.HeapConfig) (native.Device, error) {
	names := Available()
	ordered := make([]string, 0, len(names))
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			ordered = append(ordered, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}

	var errs []error
	for _, name := range ordered {
		dev, err := Open(name, cfg)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Join(errs...)
}
