package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	spirvMagic          = 0x07230203
	spirvHeaderWords    = 5
	opEntryPoint        = 15
	execModelGLCompute  = 5
	defaultComputeEntry = "main"
)

// ErrInvalidSPIRV is returned for bytecode that is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("wgpu: invalid SPIR-V")

// spirvWords converts little-endian SPIR-V bytes to words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) < spirvHeaderWords*4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// computeEntryPoint returns the name of the first GLCompute OpEntryPoint,
// or "main" when the module declares none.
func computeEntryPoint(words []uint32) string {
	for i := spirvHeaderWords; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			break
		}
		if op == opEntryPoint && count > 3 && words[i+1] == execModelGLCompute {
			return literalString(words[i+3 : i+count])
		}
		i += count
	}
	return defaultComputeEntry
}

// literalString decodes a nul-terminated SPIR-V literal string.
func literalString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}
