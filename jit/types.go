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
	"strings"
)

// Dynamic marks an axis whose length is only known at runtime.
const Dynamic = -1

// MaxDepth is the deepest nesting an ArrayType can describe.
const MaxDepth = 4

// Family distinguishes array classes that never combine with each other,
// even when their element counts coincide.
type Family uint8

const (
	FamilyArray Family = iota
	FamilyComplex
	FamilyQuaternion
	FamilyMatrix
)

var familyNames = [...]string{
	FamilyArray:      "Array",
	FamilyComplex:    "Complex",
	FamilyQuaternion: "Quaternion",
	FamilyMatrix:     "Matrix",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return "Family(" + fmt.Sprint(uint8(f)) + ")"
}

// TypeInfo is the capability every array representation reports. Promotion
// only ever looks at these properties.
type TypeInfo interface {
	Kind() Kind
	Family() Family
	Depth() int
	Dim(i int) int
}

// ArrayType describes the element kind, family and shape of a value. Depth 0
// is a plain scalar; the leaf level (the last dimension) is what a single
// trace variable holds. ArrayType is comparable.
type ArrayType struct {
	kind   Kind
	family Family
	depth  uint8
	dims   [MaxDepth]int
}

// Scalar returns the depth-0 type of kind k.
func Scalar(k Kind) ArrayType {
	return ArrayType{kind: k}
}

// NewType returns an array type of kind k. dims lists axis lengths from the
// outermost inwards; each is a positive length or Dynamic.
func NewType(k Kind, dims ...int) ArrayType {
	if len(dims) > MaxDepth {
		panic(fmt.Sprintf("jit: array depth %d exceeds %d", len(dims), MaxDepth))
	}
	t := ArrayType{kind: k, depth: uint8(len(dims))}
	for i, d := range dims {
		if d == 0 || d < Dynamic {
			panic(fmt.Sprintf("jit: invalid dimension %d", d))
		}
		t.dims[i] = d
	}
	return t
}

// ComplexType returns the two-component complex type over k.
func ComplexType(k Kind) ArrayType { return NewType(k, 2).As(FamilyComplex) }

// QuaternionType returns the four-component quaternion type over k.
func QuaternionType(k Kind) ArrayType { return NewType(k, 4).As(FamilyQuaternion) }

// MatrixType returns the n×n matrix type over k.
func MatrixType(k Kind, n int) ArrayType { return NewType(k, n, n).As(FamilyMatrix) }

// Commonly used types.
var (
	ArrayXb   = NewType(KindBool, Dynamic)
	ArrayXi   = NewType(KindInt32, Dynamic)
	ArrayXu   = NewType(KindUInt32, Dynamic)
	ArrayXi64 = NewType(KindInt64, Dynamic)
	ArrayXu64 = NewType(KindUInt64, Dynamic)
	ArrayXf   = NewType(KindFloat32, Dynamic)
	ArrayXf64 = NewType(KindFloat64, Dynamic)

	Array2b = NewType(KindBool, 2)
	Array2i = NewType(KindInt32, 2)
	Array2f = NewType(KindFloat32, 2)
	Array3b = NewType(KindBool, 3)
	Array3i = NewType(KindInt32, 3)
	Array3f = NewType(KindFloat32, 3)
	Array4b = NewType(KindBool, 4)
	Array4f = NewType(KindFloat32, 4)

	Array3Xb = NewType(KindBool, 3, Dynamic)
	Array3Xi = NewType(KindInt32, 3, Dynamic)
	Array3Xf = NewType(KindFloat32, 3, Dynamic)
	ArrayXXb = NewType(KindBool, Dynamic, Dynamic)
	ArrayXXi = NewType(KindInt32, Dynamic, Dynamic)
	ArrayXXf = NewType(KindFloat32, Dynamic, Dynamic)

	Complex2f = ComplexType(KindFloat32)
)

func (t ArrayType) Kind() Kind { return t.kind }
func (t ArrayType) Family() Family { return t.family }
func (t ArrayType) Depth() int { return int(t.depth) }
func (t ArrayType) IsScalar() bool { return t.depth == 0 }
func (t ArrayType) IsLeaf() bool { return t.depth <= 1 }
func (t ArrayType) IsAggregate() bool { return t.depth > 1 }

// Dim returns the length of axis i (0 is outermost), or 1 past the depth.
func (t ArrayType) Dim(i int) int {
	if i < 0 || i >= int(t.depth) {
		return 1
	}
	return t.dims[i]
}

// Size returns the outer axis length, Dynamic, or 1 for scalars.
func (t ArrayType) Size() int { return t.Dim(0) }

// Dims returns a copy of the axis lengths.
func (t ArrayType) Dims() []int {
	return append([]int(nil), t.dims[:t.depth]...)
}

// Inner strips the outermost axis.
func (t ArrayType) Inner() ArrayType {
	if t.depth == 0 {
		return t
	}
	in := ArrayType{kind: t.kind, depth: t.depth - 1}
	copy(in.dims[:], t.dims[1:t.depth])
	return in
}

// WithKind returns t with its element kind replaced.
func (t ArrayType) WithKind(k Kind) ArrayType {
	t.kind = k
	return t
}

// As returns t reinterpreted as family f.
func (t ArrayType) As(f Family) ArrayType {
	t.family = f
	return t
}

// Mask returns the boolean type of the same shape, as produced by
// comparisons.
func (t ArrayType) Mask() ArrayType {
	return t.WithKind(KindBool).As(FamilyArray)
}

// Name renders the conventional type name, e.g. Array3f, ArrayXXi, Complex2f.
func (t ArrayType) Name() string {
	if t.depth == 0 {
		return t.kind.String()
	}
	var sb strings.Builder
	sb.WriteString(t.family.String())
	dims := t.dims[:t.depth]
	if t.family == FamilyMatrix && t.depth == 2 && dims[0] == dims[1] {
		dims = dims[:1]
	}
	for _, d := range dims {
		if d == Dynamic {
			sb.WriteByte('X')
		} else {
			fmt.Fprint(&sb, d)
		}
	}
	if int(t.kind) < len(kindSuffixes) {
		sb.WriteString(kindSuffixes[t.kind])
	}
	return sb.String()
}

func (t ArrayType) String() string { return t.Name() }

// TypeOf converts any TypeInfo into an ArrayType.
func TypeOf(ti TypeInfo) ArrayType {
	if at, ok := ti.(ArrayType); ok {
		return at
	}
	t := ArrayType{kind: ti.Kind(), family: ti.Family(), depth: uint8(min(ti.Depth(), MaxDepth))}
	for i := range int(t.depth) {
		t.dims[i] = ti.Dim(i)
	}
	return t
}

// Promote returns the type two operands are converted to before an
// elementwise operation. Axes are aligned innermost-first; a shallower
// operand broadcasts over the extra outer axes.
func Promote(a, b TypeInfo) (ArrayType, error) {
	return promote("promote", TypeOf(a), TypeOf(b))
}

func promote(op string, a, b ArrayType) (ArrayType, error) {
	family := a.family
	switch {
	case a.depth == 0:
		family = b.family
	case b.depth == 0:
	case a.family != b.family:
		return ArrayType{}, incompatibleTypes(op, a, b)
	}

	depth := max(a.depth, b.depth)
	res := ArrayType{kind: PromoteKind(a.kind, b.kind), family: family, depth: depth}
	offA, offB := int(depth-a.depth), int(depth-b.depth)
	for i := range int(depth) {
		da, db := 0, 0
		if i >= offA {
			da = a.dims[i-offA]
		}
		if i >= offB {
			db = b.dims[i-offB]
		}
		d, ok := combineDims(da, db)
		if !ok {
			return ArrayType{}, incompatibleSizes(op, da, db)
		}
		res.dims[i] = d
	}
	return res, nil
}

// combineDims unifies two axis lengths; 0 means the axis is absent.
func combineDims(a, b int) (int, bool) {
	switch {
	case a == 0:
		return b, true
	case b == 0, a == b:
		return a, true
	case a == 1:
		return b, true
	case b == 1:
		return a, true
	case a == Dynamic:
		return b, true
	case b == Dynamic:
		return a, true
	}
	return 0, false
}

// adopt promotes a host value's type against an array type. Host values
// take the array's shape and family; only the kind may widen.
func adopt(op string, arr, host ArrayType) (ArrayType, error) {
	if host.depth > arr.depth {
		return ArrayType{}, incompatibleTypes(op, arr, host)
	}
	off := int(arr.depth - host.depth)
	for i := range int(host.depth) {
		if _, ok := combineDims(arr.dims[off+i], host.dims[i]); !ok {
			return ArrayType{}, incompatibleSizes(op, arr.dims[off+i], host.dims[i])
		}
	}
	return arr.WithKind(PromoteKind(arr.kind, host.kind)), nil
}
