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

import "math"

// valueType is resultType that also accepts operands that are all host
// values, promoting their inferred types directly.
func valueType(op string, xs []any) (ArrayType, error) {
	for _, x := range xs {
		if _, ok := x.(*Array); ok {
			res, _, err := resultType(op, xs)
			return res, err
		}
	}
	var res ArrayType
	for i, x := range xs {
		ht, err := HostType(x)
		if err != nil {
			return ArrayType{}, err
		}
		if i == 0 {
			res = ht
			continue
		}
		if res, err = promote(op, res, ht); err != nil {
			return ArrayType{}, err
		}
	}
	return res, nil
}

// SelectValue is Select for plain values: it returns a when cond holds and
// b otherwise, without any promotion.
func SelectValue[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

// Select records the elementwise choice cond ? a : b. The result type is
// the promotion of a and b, broadcast against the shape of cond. cond must
// have Bool kind; a plain bool is accepted when a or b is an Array.
func Select(cond, a, b any) (*Array, error) {
	t, err := traceOf("select", cond, a, b)
	if err != nil {
		return nil, err
	}
	vt, err := valueType("select", []any{a, b})
	if err != nil {
		return nil, err
	}
	ct, err := HostType(cond)
	if err != nil {
		return nil, err
	}
	if !ct.kind.IsBool() {
		return nil, newError(UnsupportedOperand, "select", "condition must be a mask, got '%s'", ct)
	}
	shape := ct.WithKind(vt.kind)
	if ct.depth > 0 && vt.depth > 0 {
		shape = shape.As(vt.family)
	}
	out, err := promote("select", shape, vt)
	if err != nil {
		return nil, err
	}

	xs := []any{cond, a, b}
	args := make([]*Array, 0, 3)
	defer func() { releaseTemps(xs, args) }()
	for i, x := range xs {
		to := out
		if i == 0 {
			to = out.WithKind(KindBool)
		}
		arg, err := t.fromHost("select", to, x)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return t.apply(OpSelect, out, args)
}

// All reports whether every element of a boolean array is true. It
// evaluates x. All of an empty array is true.
func All(x any) (bool, error) { return reduceBool(OpAll, x) }

// Any reports whether some element of a boolean array is true. It
// evaluates x. Any of an empty array is false.
func Any(x any) (bool, error) { return reduceBool(OpAny, x) }

func reduceBool(op Opcode, x any) (bool, error) {
	empty := op == OpAll
	switch v := x.(type) {
	case bool:
		return v, nil
	case []bool:
		for _, b := range v {
			if b != empty {
				return !empty, nil
			}
		}
		return empty, nil
	case *Array:
		if err := checkOperands(op, v.typ, v.typ, v.typ); err != nil {
			return false, err
		}
		return v.reduceBool(op)
	}
	return false, newError(UnsupportedOperand, op.String(), "unsupported operand type for %s: '%T'", op, x)
}

func (a *Array) reduceBool(op Opcode) (bool, error) {
	empty := op == OpAll
	if !a.typ.IsLeaf() {
		for _, e := range a.elems {
			r, err := e.reduceBool(op)
			if err != nil {
				return false, err
			}
			if r != empty {
				return r, nil
			}
		}
		return empty, nil
	}
	if a.index == 0 {
		return false, uninitialized(op.String())
	}
	v, err := a.tr.makeOp(op, KindBool, a.index)
	if err != nil {
		return false, err
	}
	h := a.tr.leaf(Scalar(KindBool), v)
	defer h.Release()
	b, err := h.Data()
	if err != nil {
		return false, err
	}
	return b.Bool(0), nil
}

// Tolerance defaults for Allclose.
const (
	DefaultRtol = 1e-5
	DefaultAtol = 1e-8
)

type closeness struct {
	rtol, atol float64
	equalNaN   bool
}

// AllcloseOption adjusts the Allclose comparison.
type AllcloseOption func(*closeness)

// Rtol sets the relative tolerance.
func Rtol(v float64) AllcloseOption { return func(c *closeness) { c.rtol = v } }

// Atol sets the absolute tolerance.
func Atol(v float64) AllcloseOption { return func(c *closeness) { c.atol = v } }

// EqualNaN makes NaN compare equal to NaN.
func EqualNaN(v bool) AllcloseOption { return func(c *closeness) { c.equalNaN = v } }

// Allclose reports whether |a-b| <= atol + rtol*|b| holds elementwise. It
// evaluates both operands. Operands whose sizes cannot be broadcast fail
// with IncompatibleSize.
func Allclose(a, b any, opts ...AllcloseOption) (bool, error) {
	c := closeness{rtol: DefaultRtol, atol: DefaultAtol}
	for _, opt := range opts {
		opt(&c)
	}
	t, err := traceOf("allclose", a, b)
	if err != nil {
		t = NewTrace()
	}
	xs := []any{a, b}
	vt, err := valueType("allclose", xs)
	if err != nil {
		return false, err
	}
	to := vt.WithKind(KindFloat64)
	args := make([]*Array, 0, 2)
	defer func() { releaseTemps(xs, args) }()
	for _, x := range xs {
		arg, err := t.fromHost("allclose", to, x)
		if err != nil {
			return false, err
		}
		args = append(args, arg)
	}
	return c.close(args[0], args[1])
}

func (c closeness) close(a, b *Array) (bool, error) {
	if !a.typ.IsLeaf() {
		n, m := len(a.elems), len(b.elems)
		if n != m && n != 1 && m != 1 {
			return false, incompatibleSizes("allclose", n, m)
		}
		if n == 0 || m == 0 {
			return true, nil
		}
		for j := range max(n, m) {
			ok, err := c.close(a.elems[min(j, n-1)], b.elems[min(j, m-1)])
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	x, err := Get[float64](a)
	if err != nil {
		return false, err
	}
	y, err := Get[float64](b)
	if err != nil {
		return false, err
	}
	n, m := len(x), len(y)
	if n != m && n != 1 && m != 1 {
		return false, incompatibleSizes("allclose", n, m)
	}
	if n == 0 || m == 0 {
		return true, nil
	}
	for i := range max(n, m) {
		if !c.pair(at(x, i), at(y, i)) {
			return false, nil
		}
	}
	return true, nil
}

func (c closeness) pair(x, y float64) bool {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	if xn || yn {
		return c.equalNaN && xn && yn
	}
	if x == y {
		return true
	}
	return math.Abs(x-y) <= c.atol+c.rtol*math.Abs(y)
}
