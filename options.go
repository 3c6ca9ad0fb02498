package dispatch

import (
	"log/slog"

	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/pipeline"
)

// Option configures a Context during creation.
//
// Example:
//
//	// Record onto a caller-owned command list with a private logger.
//	ctx, err := dispatch.New(dev,
//	    dispatch.WithCommandList(list),
//	    dispatch.WithLogger(logger),
//	)
type Option func(*options)

// options holds optional configuration for Context creation.
type options struct {
	cfg    Config
	list   native.CommandList
	cache  *pipeline.Cache
	logger *slog.Logger
}

// defaultOptions returns the default context options.
func defaultOptions() options {
	return options{
		cfg: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Options applied after it
// override single fields.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLabel sets the context label, used for the command list it creates
// and in log records.
func WithLabel(label string) Option {
	return func(o *options) {
		o.cfg.Label = label
	}
}

// WithMaxGroups bounds the thread group count per dimension.
// Zero entries keep DefaultMaxGroups.
func WithMaxGroups(max [3]uint32) Option {
	return func(o *options) {
		for i, g := range max {
			if g == 0 {
				g = DefaultMaxGroups
			}
			o.cfg.MaxGroups[i] = g
		}
	}
}

// WithCommandList records onto list instead of a list created from the
// device. The context still closes the list on Close.
func WithCommandList(list native.CommandList) Option {
	return func(o *options) {
		o.list = list
	}
}

// WithPipelineCache uses cache instead of pipeline.CacheFor(dev).
// The cache must belong to the same device and is not closed by the context.
func WithPipelineCache(cache *pipeline.Cache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithLogger sets a logger for this context only.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
