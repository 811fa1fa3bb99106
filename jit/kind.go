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

// Kind is the element type of a traced variable. The declaration order is
// the promotion order: combining two kinds yields the later one.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt32:   "int32",
	KindUInt32:  "uint32",
	KindInt64:   "int64",
	KindUInt64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

// Suffixes used in array type names (Array3f, ArrayXu64, ...).
var kindSuffixes = [...]string{
	KindInvalid: "?",
	KindBool:    "b",
	KindInt32:   "i",
	KindUInt32:  "u",
	KindInt64:   "i64",
	KindUInt64:  "u64",
	KindFloat32: "f",
	KindFloat64: "f64",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsBool reports whether k is the mask kind.
func (k Kind) IsBool() bool { return k == KindBool }

// IsIntegral reports whether k is a signed or unsigned integer kind.
func (k Kind) IsIntegral() bool { return k >= KindInt32 && k <= KindUInt64 }

// IsFloat reports whether k is a floating-point kind.
func (k Kind) IsFloat() bool { return k == KindFloat32 || k == KindFloat64 }

// IsSigned reports whether k can represent negative values.
func (k Kind) IsSigned() bool {
	return k == KindInt32 || k == KindInt64 || k.IsFloat()
}

// Bits returns the storage width of one element.
func (k Kind) Bits() int {
	switch k {
	case KindBool:
		return 1
	case KindInt32, KindUInt32, KindFloat32:
		return 32
	case KindInt64, KindUInt64, KindFloat64:
		return 64
	}
	return 0
}

// PromoteKind returns the widened kind of a and b.
func PromoteKind(a, b Kind) Kind {
	return max(a, b)
}

// Integers is the set of integer element types.
type Integers interface {
	~int32 | ~uint32 | ~int64 | ~uint64
}

// Floats is the set of floating-point element types.
type Floats interface {
	~float32 | ~float64
}

// Numbers is the set of numeric element types.
type Numbers interface {
	Integers | Floats
}

// Elements is the set of element types a Buffer can hold.
type Elements interface {
	bool | Numbers
}

// KindOf returns the Kind that corresponds to the Go type T.
func KindOf[T Elements]() Kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return KindBool
	case int32:
		return KindInt32
	case uint32:
		return KindUInt32
	case int64:
		return KindInt64
	case uint64:
		return KindUInt64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	}
	return KindInvalid
}
