// Package tensor holds the raw tensors read from checkpoints and the few
// numeric helpers the export pipeline needs around them.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DType is a safetensors element type name.
type DType string

const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	F64  DType = "F64"
	I64  DType = "I64"
	I32  DType = "I32"
	U8   DType = "U8"
	Bool DType = "BOOL"
)

// Size returns the width of one element in bytes, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case F64, I64:
		return 8
	case F32, I32:
		return 4
	case F16, BF16:
		return 2
	case U8, Bool:
		return 1
	}
	return 0
}

func (d DType) Valid() bool {
	return d.Size() > 0
}

// Tensor is a dense little-endian tensor.
type Tensor struct {
	DType DType
	Shape []int
	Data  []byte
}

// Numel returns the number of elements described by shape.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Numel() int {
	return Numel(t.Shape)
}

// SameShape reports whether t has exactly the given shape.
func (t *Tensor) SameShape(shape []int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v", t.DType, t.Shape)
}

// FromFloat32 builds an F32 tensor. len(data) must match shape.
func FromFloat32(shape []int, data []float32) (*Tensor, error) {
	if Numel(shape) != len(data) {
		return nil, fmt.Errorf("shape %v holds %d elements, got %d", shape, Numel(shape), len(data))
	}
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return &Tensor{DType: F32, Shape: append([]int(nil), shape...), Data: buf}, nil
}

// Float32 decodes the tensor into float32 values, converting from the stored type.
func (t *Tensor) Float32() ([]float32, error) {
	n := t.Numel()
	size := t.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("unsupported dtype %q", t.DType)
	}
	if len(t.Data) != n*size {
		return nil, fmt.Errorf("tensor %s has %d bytes, want %d", t, len(t.Data), n*size)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		b := t.Data[i*size : (i+1)*size]
		switch t.DType {
		case F32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case F64:
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case F16:
			out[i] = halfToFloat32(binary.LittleEndian.Uint16(b))
		case BF16:
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16)
		case I64:
			out[i] = float32(int64(binary.LittleEndian.Uint64(b)))
		case I32:
			out[i] = float32(int32(binary.LittleEndian.Uint32(b)))
		case U8, Bool:
			out[i] = float32(b[0])
		}
	}
	return out, nil
}

// StateDict maps parameter names to tensors.
type StateDict map[string]*Tensor

// Keys returns the parameter names in sorted order.
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrefix reports whether any key starts with prefix.
func (sd StateDict) HasPrefix(prefix string) bool {
	for k := range sd {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Sub returns the entries under prefix with the prefix stripped. Tensors are shared.
func (sd StateDict) Sub(prefix string) StateDict {
	out := StateDict{}
	for k, v := range sd {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// Without returns a shallow copy of sd lacking the keys for which drop returns true.
func (sd StateDict) Without(drop func(name string) bool) StateDict {
	out := make(StateDict, len(sd))
	for k, v := range sd {
		if !drop(k) {
			out[k] = v
		}
	}
	return out
}
