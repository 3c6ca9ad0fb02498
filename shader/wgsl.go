package shader

import (
	"fmt"
	"sort"

	"github.com/gogpu/dispatch/native"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// source is the lowered module a shader was compiled from.
type source struct {
	module *ir.Module
}

type compileOptions struct {
	entryPoint    string
	rootConstants *uint32
	debug         bool
	spirvVersion  spirv.Version
}

// CompileOption configures CompileWGSL.
type CompileOption func(*compileOptions)

// WithEntryPoint selects a compute entry point by name. By default the first
// compute entry point is used.
func WithEntryPoint(name string) CompileOption {
	return func(o *compileOptions) { o.entryPoint = name }
}

// WithRootConstants overrides the root-constant count derived from
// push-constant declarations.
func WithRootConstants(n uint32) CompileOption {
	return func(o *compileOptions) { o.rootConstants = &n }
}

// WithDebugInfo emits SPIR-V debug instructions.
func WithDebugInfo() CompileOption {
	return func(o *compileOptions) { o.debug = true }
}

// CompileWGSL compiles WGSL compute source to SPIR-V and extracts the binding
// metadata the dispatch layer needs.
//
// Resources are ordered by (group, binding). Storage buffers and storage
// textures declared read_write or write become UAV ranges, read-only storage
// and sampled textures become SRV ranges and uniform buffers become CBV
// ranges. Registers are numbered per kind in that order; CBV numbering
// starts at b1 since b0 holds the root constants.
func CompileWGSL(label, src string, opts ...CompileOption) (*Shader, error) {
	o := compileOptions{spirvVersion: spirv.Version1_3}
	for _, opt := range opts {
		opt(&o)
	}

	ast, err := naga.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return nil, fmt.Errorf("shader %q: lower: %w", label, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("shader %q: validate: %w", label, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("shader %q: validate: %w", label, verrs[0])
	}

	ep, err := findEntryPoint(module, o.entryPoint)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}

	access := make(map[string]string, len(ast.GlobalVars))
	for _, v := range ast.GlobalVars {
		access[v.Name] = v.AccessMode
	}
	ranges, bindings, constants, err := reflectBindings(module, access)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}
	if o.rootConstants != nil {
		constants = *o.rootConstants
	}

	spirvOpts := spirv.DefaultOptions()
	spirvOpts.Version = o.spirvVersion
	spirvOpts.Debug = o.debug
	code, err := naga.GenerateSPIRV(module, spirvOpts)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}

	return &Shader{
		Label:         label,
		Bytecode:      code,
		EntryPoint:    ep.Name,
		ThreadGroup:   ep.Workgroup,
		Ranges:        ranges,
		Bindings:      bindings,
		RootConstants: constants,
		src:           &source{module: module},
	}, nil
}

func findEntryPoint(module *ir.Module, name string) (ir.EntryPoint, error) {
	for _, ep := range module.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		if name == "" || ep.Name == name {
			return ep, nil
		}
	}
	if name != "" {
		return ir.EntryPoint{}, fmt.Errorf("%w: %q", ErrNoEntryPoint, name)
	}
	return ir.EntryPoint{}, ErrNoEntryPoint
}

// reflectBindings derives descriptor ranges and the root-constant count from a
// module's global variables.
func reflectBindings(module *ir.Module, access map[string]string) ([]native.DescriptorRange, []Binding, uint32, error) {
	type bound struct {
		gv   ir.GlobalVariable
		kind native.RangeKind
	}
	var (
		globals   []bound
		constants uint32
	)
	for _, gv := range module.GlobalVariables {
		if gv.Space == ir.SpacePushConstant {
			constants += typeSize(module, gv.Type) / 4
			continue
		}
		if gv.Binding == nil {
			continue
		}
		kind, err := rangeKind(module, gv, access[gv.Name])
		if err != nil {
			return nil, nil, 0, err
		}
		globals = append(globals, bound{gv: gv, kind: kind})
	}
	sort.Slice(globals, func(i, j int) bool {
		a, b := globals[i].gv.Binding, globals[j].gv.Binding
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})

	next := map[native.RangeKind]uint32{native.RangeCBV: 1}
	ranges := make([]native.DescriptorRange, 0, len(globals))
	bindings := make([]Binding, 0, len(globals))
	for _, g := range globals {
		ranges = append(ranges, native.DescriptorRange{
			Kind:         g.kind,
			BaseRegister: next[g.kind],
			Count:        1,
		})
		next[g.kind]++
		bindings = append(bindings, Binding{Group: g.gv.Binding.Group, Binding: g.gv.Binding.Binding, Name: g.gv.Name})
	}
	return ranges, bindings, constants, nil
}

func rangeKind(module *ir.Module, gv ir.GlobalVariable, accessMode string) (native.RangeKind, error) {
	switch gv.Space {
	case ir.SpaceUniform:
		return native.RangeCBV, nil
	case ir.SpaceStorage:
		if accessMode == "read_write" || accessMode == "write" {
			return native.RangeUAV, nil
		}
		return native.RangeSRV, nil
	case ir.SpaceHandle:
		if int(gv.Type) < len(module.Types) {
			if img, ok := module.Types[gv.Type].Inner.(ir.ImageType); ok {
				if img.Class == ir.ImageClassStorage {
					return native.RangeUAV, nil
				}
				return native.RangeSRV, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s at @group(%d) @binding(%d)",
		ErrUnsupportedBinding, gv.Name, gv.Binding.Group, gv.Binding.Binding)
}

// typeSize returns the byte size of scalar, vector and struct types.
func typeSize(module *ir.Module, h ir.TypeHandle) uint32 {
	if int(h) >= len(module.Types) {
		return 0
	}
	switch t := module.Types[h].Inner.(type) {
	case ir.ScalarType:
		return uint32(t.Width)
	case ir.VectorType:
		return uint32(t.Size) * uint32(t.Scalar.Width)
	case ir.StructType:
		return t.Span
	default:
		return 0
	}
}

// TranslateHLSL emits HLSL for a shader compiled by CompileWGSL, with every
// source binding mapped onto the register its descriptor range declares.
func TranslateHLSL(s *Shader) (string, error) {
	if s == nil || s.src == nil {
		return "", ErrNoSource
	}
	opts := hlsl.DefaultOptions()
	opts.FakeMissingBindings = false
	for i, b := range s.Bindings {
		r := s.Ranges[i]
		opts.BindingMap[hlsl.ResourceBinding{Group: b.Group, Binding: b.Binding}] = hlsl.BindTarget{
			Space:    uint8(r.Space),
			Register: r.BaseRegister,
		}
	}
	code, _, err := hlsl.Compile(s.src.module, opts)
	if err != nil {
		return "", fmt.Errorf("shader %q: hlsl: %w", s.Label, err)
	}
	return code, nil
}
