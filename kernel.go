package dispatch

import (
	"fmt"

	"github.com/gogpu/dispatch/descriptor"
	"github.com/gogpu/dispatch/lease"
	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/dispatch/recording"
	"github.com/gogpu/dispatch/shader"
	"github.com/gogpu/dispatch/state"
)

// Kernel is a shader together with the arguments of one dispatch.
type Kernel struct {
	// Shader is the compute program. Required.
	Shader *shader.Shader

	// Constants are the root constant values, one per shader root constant.
	Constants []uint32

	// Resources are bound to the shader's descriptor ranges in order. A
	// range of Count n consumes n resources.
	Resources []Resource
}

// For dispatches kernel over a 1D, 2D or 3D domain. The group count per
// dimension is the domain size divided by the shader's thread-group size,
// rounded up.
func (c *Context) For(kernel *Kernel, dims ...int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(dims) == 0 || len(dims) > 3 {
		return fmt.Errorf("%w: %d dimensions", ErrInvalidDomain, len(dims))
	}
	domain := [3]uint32{1, 1, 1}
	for i, d := range dims {
		if d <= 0 || uint64(d) > uint64(^uint32(0)) {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidDomain, i, d)
		}
		domain[i] = uint32(d)
	}
	return c.dispatch(kernel, domain, nil)
}

// ForEach dispatches kernel over the extent of target. target is bound to
// the shader's first range, ahead of kernel.Resources, so the shader's first
// range must be a UAV range.
func (c *Context) ForEach(target TextureResource, kernel *Kernel) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if target == nil {
		return ErrNilResource
	}
	domain := target.Extent()
	for i, d := range domain {
		if d == 0 {
			return fmt.Errorf("%w: target dimension %d is zero", ErrInvalidDomain, i)
		}
	}
	return c.dispatch(kernel, domain, target)
}

// binding is one resolved resource binding of a dispatch.
type binding struct {
	res  Resource
	kind native.RangeKind
	view descriptor.Pair
}

// usage is the merged requirement of one distinct bound resource.
type usage struct {
	res   Resource
	state state.State
	first int // index of the resource's first binding
}

func (c *Context) dispatch(kernel *Kernel, domain [3]uint32, target Resource) error {
	if kernel == nil || kernel.Shader == nil {
		return ErrNilKernel
	}
	sh := kernel.Shader
	if err := sh.Validate(); err != nil {
		return fmt.Errorf("dispatch %s: %w", sh, err)
	}
	if uint32(len(kernel.Constants)) != sh.RootConstants {
		return fmt.Errorf("%w: %s takes %d, got %d",
			ErrConstantsMismatch, sh, sh.RootConstants, len(kernel.Constants))
	}

	resources := kernel.Resources
	if target != nil {
		if len(sh.Ranges) == 0 || sh.Ranges[0].Kind != native.RangeUAV {
			return fmt.Errorf("%w: %s has no leading UAV range for the target", ErrBindingMismatch, sh)
		}
		resources = append([]Resource{target}, kernel.Resources...)
	}
	bindings, usages, err := bind(sh, resources)
	if err != nil {
		return err
	}

	var groups [3]uint32
	for i, g := range sh.Groups(domain) {
		if g > uint64(c.maxGroups[i]) {
			return fmt.Errorf("%w: %d groups in dimension %d, limit %d",
				ErrDispatchTooLarge, g, i, c.maxGroups[i])
		}
		groups[i] = uint32(g)
	}

	// Usage errors surface before any native call.
	for i := range bindings {
		b := &bindings[i]
		if b.kind != native.RangeUAV {
			continue
		}
		view, _, err := b.res.GetClearDescriptorHandles(c.dev)
		if err != nil {
			return fmt.Errorf("dispatch %s: binding %d: %w", sh, i, err)
		}
		b.view = view
	}

	var leases lease.Set
	defer leases.Release()
	handles := make([]native.Handle, len(bindings))
	for i, b := range bindings {
		h, l, err := b.res.AcquireNativeHandle(c.dev)
		if err != nil {
			return fmt.Errorf("dispatch %s: binding %d: %w", sh, i, err)
		}
		leases.Add(l)
		handles[i] = h
	}

	ps, pl, err := c.cache.Acquire(sh)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", sh, err)
	}

	var snap state.Snapshot
	fail := func(err error) error {
		snap.Restore()
		pl.Release()
		return err
	}
	for _, u := range usages {
		snap.Save(u.res)
		if _, _, err := c.tracker.Promote(u.res, u.state, c.emitTransition(handles[u.first])); err != nil {
			return fail(fmt.Errorf("dispatch %s: binding %d: %w", sh, u.first, err))
		}
	}

	views := make([]descriptor.Pair, len(bindings))
	for i, b := range bindings {
		views[i] = b.view
	}
	err = c.append(recording.DispatchCommand{
		Label: sh.Label,
		Args: native.DispatchArgs{
			PipelineState: ps.Handle(),
			RootSignature: ps.Signature().Handle(),
			Constants:     kernel.Constants,
			Resources:     handles,
			Views:         views,
			GroupsX:       groups[0],
			GroupsY:       groups[1],
			GroupsZ:       groups[2],
		},
	})
	if err != nil {
		return fail(fmt.Errorf("dispatch %s: %w", sh, err))
	}
	c.retain(ps, pl)
	return nil
}

// bind pairs resources with the shader's ranges and merges the states each
// distinct resource is required in. A resource bound both writable and
// through any other range fails with ErrBindingMismatch.
func bind(sh *shader.Shader, resources []Resource) ([]binding, []usage, error) {
	var want int
	for _, r := range sh.Ranges {
		want += int(r.Count)
	}
	if len(resources) != want {
		return nil, nil, fmt.Errorf("%w: %s binds %d, got %d", ErrBindingMismatch, sh, want, len(resources))
	}

	out := make([]binding, 0, want)
	var usages []usage
	seen := make(map[Resource]int, want)
	i := 0
	for _, r := range sh.Ranges {
		for n := uint32(0); n < r.Count; n++ {
			res := resources[i]
			if res == nil {
				return nil, nil, fmt.Errorf("%w: binding %d", ErrNilResource, i)
			}
			out = append(out, binding{res: res, kind: r.Kind})
			if j, ok := seen[res]; ok {
				usages[j].state |= requiredState(r.Kind)
			} else {
				seen[res] = len(usages)
				usages = append(usages, usage{res: res, state: requiredState(r.Kind), first: i})
			}
			i++
		}
	}

	for _, u := range usages {
		if err := u.state.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: binding %d is bound as %s: %w", ErrBindingMismatch, u.first, u.state, err)
		}
	}
	return out, usages, nil
}

// requiredState returns the state a resource bound through kind must be in.
func requiredState(kind native.RangeKind) state.State {
	switch kind {
	case native.RangeUAV:
		return state.Write
	case native.RangeCBV:
		return state.Constant
	default:
		return state.Read
	}
}
