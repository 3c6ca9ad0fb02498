package dispatch

import "errors"

// Argument and usage errors returned by Context operations.
var (
	// ErrNilDevice is returned by New without a device.
	ErrNilDevice = errors.New("dispatch: device is nil")

	// ErrNilResource is returned when an operation is given a nil resource.
	ErrNilResource = errors.New("dispatch: resource is nil")

	// ErrNilKernel is returned when a dispatch has no kernel or no shader.
	ErrNilKernel = errors.New("dispatch: kernel is nil")

	// ErrInvalidDomain is returned for a dispatch domain that is not 1 to 3
	// positive dimensions.
	ErrInvalidDomain = errors.New("dispatch: invalid dispatch domain")

	// ErrDispatchTooLarge is returned when a group count exceeds the
	// context's maximum.
	ErrDispatchTooLarge = errors.New("dispatch: too many thread groups")

	// ErrConstantsMismatch is returned when the number of kernel constants
	// differs from the shader's root-constant count.
	ErrConstantsMismatch = errors.New("dispatch: root constant count mismatch")

	// ErrBindingMismatch is returned when the number of kernel resources
	// differs from the shader's descriptor range count.
	ErrBindingMismatch = errors.New("dispatch: resource count mismatch")

	// ErrClosed is returned by operations on a closed Context.
	ErrClosed = errors.New("dispatch: context is closed")

	// ErrInvalidConfig is returned by LoadConfig for out-of-range values.
	ErrInvalidConfig = errors.New("dispatch: invalid config")
)
