package wgpu

import (
	"encoding/binary"
	"errors"
	"testing"
)

// module assembles a minimal SPIR-V word stream with one entry point.
func module(model uint32, name string) []byte {
	str := make([]uint32, len(name)/4+1)
	for i := 0; i < len(name); i++ {
		str[i/4] |= uint32(name[i]) << (8 * (i % 4))
	}
	words := []uint32{spirvMagic, 0x00010300, 0, 8, 0}
	words = append(words, uint32(3+len(str))<<16|opEntryPoint, model, 1)
	words = append(words, str...)
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestComputeEntryPoint(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		entry string
	}{
		{"compute", module(execModelGLCompute, "blur"), "blur"},
		{"four chars", module(execModelGLCompute, "main"), "main"},
		{"vertex only", module(0, "vs"), "main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := spirvWords(tt.code)
			if err != nil {
				t.Fatal(err)
			}
			if got := computeEntryPoint(words); got != tt.entry {
				t.Errorf("computeEntryPoint() = %q, want %q", got, tt.entry)
			}
		})
	}
}

func TestSPIRVWords_Invalid(t *testing.T) {
	for _, code := range [][]byte{nil, {1, 2, 3}, make([]byte, 20)} {
		if _, err := spirvWords(code); !errors.Is(err, ErrInvalidSPIRV) {
			t.Errorf("spirvWords(%d bytes) error = %v", len(code), err)
		}
	}
}
