// Copyright 2025 go-jitrace Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jit

import (
	"fmt"
	"math"
)

// Interchange is the view the engine needs of an externally supplied
// buffer: an element kind, a length and row-major element access.
type Interchange interface {
	Kind() Kind
	Len() int
	Index(i int) any
}

// Buffer is a typed, flat element store. It is the payload of literal and
// evaluated variables and the unit backends exchange. A Buffer of length 1
// broadcasts against any length.
type Buffer struct {
	kind Kind
	data any // []bool, []int32, []uint32, []int64, []uint64, []float32 or []float64
}

// BufferOf wraps a copy of vals.
func BufferOf[T Elements](vals ...T) Buffer {
	return Buffer{kind: KindOf[T](), data: append([]T(nil), vals...)}
}

// NewBuffer allocates a zeroed buffer of n elements.
func NewBuffer(kind Kind, n int) Buffer {
	switch kind {
	case KindBool:
		return Buffer{kind, make([]bool, n)}
	case KindInt32:
		return Buffer{kind, make([]int32, n)}
	case KindUInt32:
		return Buffer{kind, make([]uint32, n)}
	case KindInt64:
		return Buffer{kind, make([]int64, n)}
	case KindUInt64:
		return Buffer{kind, make([]uint64, n)}
	case KindFloat32:
		return Buffer{kind, make([]float32, n)}
	case KindFloat64:
		return Buffer{kind, make([]float64, n)}
	}
	panic(fmt.Sprintf("jit: cannot allocate buffer of kind %s", kind))
}

// Values returns the backing slice of b if it holds elements of type T.
func Values[T Elements](b Buffer) ([]T, bool) {
	s, ok := b.data.([]T)
	return s, ok
}

func (b Buffer) Kind() Kind { return b.kind }

// IsValid reports whether b holds data.
func (b Buffer) IsValid() bool { return b.data != nil }

func (b Buffer) Len() int {
	switch s := b.data.(type) {
	case []bool:
		return len(s)
	case []int32:
		return len(s)
	case []uint32:
		return len(s)
	case []int64:
		return len(s)
	case []uint64:
		return len(s)
	case []float32:
		return len(s)
	case []float64:
		return len(s)
	}
	return 0
}

// Index returns element i as its Go type.
func (b Buffer) Index(i int) any {
	switch s := b.data.(type) {
	case []bool:
		return s[i]
	case []int32:
		return s[i]
	case []uint32:
		return s[i]
	case []int64:
		return s[i]
	case []uint64:
		return s[i]
	case []float32:
		return s[i]
	case []float64:
		return s[i]
	}
	return nil
}

// Float returns element i converted to float64; booleans map to 0 and 1.
func (b Buffer) Float(i int) float64 {
	switch s := b.data.(type) {
	case []bool:
		if s[i] {
			return 1
		}
		return 0
	case []int32:
		return float64(s[i])
	case []uint32:
		return float64(s[i])
	case []int64:
		return float64(s[i])
	case []uint64:
		return float64(s[i])
	case []float32:
		return float64(s[i])
	case []float64:
		return s[i]
	}
	return math.NaN()
}

// Bool returns element i as a truth value (non-zero is true).
func (b Buffer) Bool(i int) bool {
	if s, ok := b.data.([]bool); ok {
		return s[i]
	}
	return b.Float(i) != 0
}

// Bits returns the raw bit pattern of element i. Used to key literals.
func (b Buffer) Bits(i int) uint64 {
	switch s := b.data.(type) {
	case []bool:
		if s[i] {
			return 1
		}
		return 0
	case []int32:
		return uint64(uint32(s[i]))
	case []uint32:
		return uint64(s[i])
	case []int64:
		return uint64(s[i])
	case []uint64:
		return s[i]
	case []float32:
		return uint64(math.Float32bits(s[i]))
	case []float64:
		return math.Float64bits(s[i])
	}
	return 0
}

// Slice returns elements [lo, hi). Broadcast buffers (length 1) are
// returned unchanged so they keep broadcasting against the slice.
func (b Buffer) Slice(lo, hi int) Buffer {
	if b.Len() == 1 {
		return b
	}
	switch s := b.data.(type) {
	case []bool:
		return Buffer{b.kind, s[lo:hi]}
	case []int32:
		return Buffer{b.kind, s[lo:hi]}
	case []uint32:
		return Buffer{b.kind, s[lo:hi]}
	case []int64:
		return Buffer{b.kind, s[lo:hi]}
	case []uint64:
		return Buffer{b.kind, s[lo:hi]}
	case []float32:
		return Buffer{b.kind, s[lo:hi]}
	case []float64:
		return Buffer{b.kind, s[lo:hi]}
	}
	return b
}

// CopyFrom copies src into b starting at offset.
func (b Buffer) CopyFrom(offset int, src Buffer) {
	switch s := b.data.(type) {
	case []bool:
		copy(s[offset:], src.data.([]bool))
	case []int32:
		copy(s[offset:], src.data.([]int32))
	case []uint32:
		copy(s[offset:], src.data.([]uint32))
	case []int64:
		copy(s[offset:], src.data.([]int64))
	case []uint64:
		copy(s[offset:], src.data.([]uint64))
	case []float32:
		copy(s[offset:], src.data.([]float32))
	case []float64:
		copy(s[offset:], src.data.([]float64))
	}
}

// Clone returns a deep copy of b.
func (b Buffer) Clone() Buffer {
	if !b.IsValid() {
		return b
	}
	out := NewBuffer(b.kind, b.Len())
	out.CopyFrom(0, b)
	return out
}

// Cast converts b to kind k, returning b itself when no conversion is needed.
func (b Buffer) Cast(k Kind) Buffer {
	if b.kind == k {
		return b
	}
	n := b.Len()
	out := NewBuffer(k, n)
	switch d := out.data.(type) {
	case []bool:
		for i := range n {
			d[i] = b.Bool(i)
		}
	case []int32:
		castInto(d, b)
	case []uint32:
		castInto(d, b)
	case []int64:
		castInto(d, b)
	case []uint64:
		castInto(d, b)
	case []float32:
		castInto(d, b)
	case []float64:
		castInto(d, b)
	}
	return out
}

func castInto[T Numbers](dst []T, src Buffer) {
	switch s := src.data.(type) {
	case []bool:
		for i, v := range s {
			if v {
				dst[i] = 1
			}
		}
	case []int32:
		convert(dst, s)
	case []uint32:
		convert(dst, s)
	case []int64:
		convert(dst, s)
	case []uint64:
		convert(dst, s)
	case []float32:
		convert(dst, s)
	case []float64:
		convert(dst, s)
	}
}

func convert[D, S Numbers](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}

// Equal reports whether a and b hold the same kind and bit patterns.
func (b Buffer) Equal(o Buffer) bool {
	if b.kind != o.kind || b.Len() != o.Len() {
		return false
	}
	for i := range b.Len() {
		if b.Bits(i) != o.Bits(i) {
			return false
		}
	}
	return true
}

func (b Buffer) String() string {
	return fmt.Sprint(b.data)
}

// bufferFrom copies an Interchange value into a Buffer of kind k.
func bufferFrom(src Interchange, k Kind) (Buffer, error) {
	if b, ok := src.(Buffer); ok {
		return b.Clone().Cast(k), nil
	}
	n := src.Len()
	out := NewBuffer(src.Kind(), n)
	for i := range n {
		if err := out.set(i, src.Index(i)); err != nil {
			return Buffer{}, err
		}
	}
	return out.Cast(k), nil
}

// set stores a Go scalar at position i with conversion to b's kind.
func (b Buffer) set(i int, v any) error {
	s, err := scalarBuffer(v)
	if err != nil {
		return err
	}
	b.CopyFrom(i, s.Cast(b.kind))
	return nil
}

// scalarBuffer wraps one Go scalar in a length-1 buffer wide enough to hold
// it exactly. The kind it promotes as comes from hostKind.
func scalarBuffer(v any) (Buffer, error) {
	switch x := v.(type) {
	case bool:
		return BufferOf(x), nil
	case int:
		return BufferOf(int64(x)), nil
	case int8:
		return BufferOf(int32(x)), nil
	case int16:
		return BufferOf(int32(x)), nil
	case int32:
		return BufferOf(x), nil
	case int64:
		return BufferOf(x), nil
	case uint:
		return BufferOf(uint64(x)), nil
	case uint8:
		return BufferOf(uint32(x)), nil
	case uint16:
		return BufferOf(uint32(x)), nil
	case uint32:
		return BufferOf(x), nil
	case uint64:
		return BufferOf(x), nil
	case float32:
		return BufferOf(x), nil
	case float64:
		return BufferOf(x), nil
	}
	return Buffer{}, fmt.Errorf("unsupported scalar %T", v)
}
