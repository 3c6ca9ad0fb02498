package dispatch

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/dispatch/descriptor"
)

// DefaultMaxGroups is the default per-dimension thread group limit.
const DefaultMaxGroups = 65535

// Config is the file form of a context configuration.
//
//	label          = "physics"
//	backend        = "noop"
//	max_groups     = [65535, 65535, 65535]
//	heap_capacity  = 4096
//	cache_capacity = 128
type Config struct {
	// Label names the context and its command list.
	Label string `toml:"label"`

	// Backend is the registered backend name used by OpenDevice.
	Backend string `toml:"backend"`

	// MaxGroups bounds the thread group count per dimension.
	MaxGroups [3]uint32 `toml:"max_groups"`

	// HeapCapacity is the descriptor heap size of devices opened with
	// OpenDevice. Zero uses descriptor.DefaultHeapConfig.
	HeapCapacity int `toml:"heap_capacity"`

	// CacheCapacity bounds a context-private pipeline cache. Zero shares the
	// per-device cache from pipeline.CacheFor.
	CacheCapacity int `toml:"cache_capacity"`
}

// DefaultConfig returns the configuration New uses without options.
func DefaultConfig() Config {
	return Config{
		Label:     "dispatch",
		Backend:   "noop",
		MaxGroups: [3]uint32{DefaultMaxGroups, DefaultMaxGroups, DefaultMaxGroups},
	}
}

// LoadConfig decodes a TOML configuration. Missing keys keep their
// DefaultConfig values.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("dispatch: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports out-of-range values.
func (c Config) Validate() error {
	for i, g := range c.MaxGroups {
		if g == 0 {
			return fmt.Errorf("%w: max_groups[%d] is zero", ErrInvalidConfig, i)
		}
	}
	if c.HeapCapacity < 0 {
		return fmt.Errorf("%w: heap_capacity %d", ErrInvalidConfig, c.HeapCapacity)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("%w: cache_capacity %d", ErrInvalidConfig, c.CacheCapacity)
	}
	return nil
}

// HeapConfig returns the descriptor heap configuration for the device.
func (c Config) HeapConfig() descriptor.HeapConfig {
	hc := descriptor.DefaultHeapConfig()
	if c.HeapCapacity > 0 {
		hc.Capacity = c.HeapCapacity
	}
	return hc
}
