package native

import "fmt"

// RootSignatureVersion identifies the layout of a serialized root signature.
type RootSignatureVersion uint8

const (
	// RootSignatureVersion1 is the only version currently produced.
	RootSignatureVersion1 RootSignatureVersion = 1
)

// RangeKind is the kind of view a descriptor range holds.
type RangeKind uint8

const (
	// RangeUAV is an unordered-access (writable) view range, register u#.
	RangeUAV RangeKind = iota + 1

	// RangeSRV is a shader-resource (read-only) view range, register t#.
	RangeSRV

	// RangeCBV is a constant-buffer view range, register b#.
	RangeCBV
)

// String returns the range kind name.
func (k RangeKind) String() string {
	switch k {
	case RangeUAV:
		return "UAV"
	case RangeSRV:
		return "SRV"
	case RangeCBV:
		return "CBV"
	default:
		return fmt.Sprintf("RangeKind(%d)", uint8(k))
	}
}

// IsValid reports whether k is a known range kind.
func (k RangeKind) IsValid() bool { return k >= RangeUAV && k <= RangeCBV }

// DescriptorRange is a run of Count consecutive registers of one kind.
type DescriptorRange struct {
	Kind         RangeKind
	BaseRegister uint32
	Count        uint32
	Space        uint32
}

// ParameterKind is the kind of a root parameter.
type ParameterKind uint8

const (
	// ParameterConstants is an inline 32-bit constants parameter.
	ParameterConstants ParameterKind = iota + 1

	// ParameterTable is a descriptor table parameter.
	ParameterTable
)

// String returns the parameter kind name.
func (k ParameterKind) String() string {
	switch k {
	case ParameterConstants:
		return "Constants"
	case ParameterTable:
		return "Table"
	default:
		return fmt.Sprintf("ParameterKind(%d)", uint8(k))
	}
}

// Visibility is the set of shader stages a parameter is visible to.
type Visibility uint8

const (
	// VisibilityAll makes a parameter visible to every stage.
	VisibilityAll Visibility = iota

	// VisibilityCompute makes a parameter visible to compute shaders only.
	VisibilityCompute
)

// RootParameter is one entry of a root signature.
type RootParameter struct {
	Kind       ParameterKind
	Visibility Visibility

	// Num32BitValues and ShaderRegister are set for ParameterConstants.
	Num32BitValues uint32
	ShaderRegister uint32
	RegisterSpace  uint32

	// Ranges is set for ParameterTable.
	Ranges []DescriptorRange
}

// RootSignatureDesc is a versioned root signature description.
type RootSignatureDesc struct {
	Version    RootSignatureVersion
	Parameters []RootParameter
}

// Tables returns the number of descriptor table parameters.
func (d *RootSignatureDesc) Tables() int {
	n := 0
	for _, p := range d.Parameters {
		if p.Kind == ParameterTable {
			n++
		}
	}
	return n
}

// Constants returns the number of root constants, or 0 if parameter 0 is
// not a constants parameter.
func (d *RootSignatureDesc) Constants() uint32 {
	if len(d.Parameters) == 0 || d.Parameters[0].Kind != ParameterConstants {
		return 0
	}
	return d.Parameters[0].Num32BitValues
}
