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

// traceOf returns the trace of the first Array among xs.
func traceOf(op string, xs ...any) (*Trace, error) {
	for _, x := range xs {
		if a, ok := x.(*Array); ok && a != nil {
			return a.tr, nil
		}
	}
	return nil, newError(IncompatibleType, op, "at least one operand must be a traced array")
}

// resultType promotes the operand types: arrays promote against each other
// and host values adopt the promoted array type.
func resultType(op string, xs []any) (ArrayType, []ArrayType, error) {
	types := make([]ArrayType, len(xs))
	var res ArrayType
	first := true
	for i, x := range xs {
		a, ok := x.(*Array)
		if !ok {
			continue
		}
		types[i] = a.typ
		if first {
			res, first = a.typ, false
			continue
		}
		var err error
		if res, err = promote(op, res, a.typ); err != nil {
			return ArrayType{}, nil, err
		}
	}
	for i, x := range xs {
		if _, ok := x.(*Array); ok {
			continue
		}
		ht, err := HostType(x)
		if err != nil {
			return ArrayType{}, nil, err
		}
		types[i] = ht
		if res, err = adopt(op, res, ht); err != nil {
			return ArrayType{}, nil, err
		}
	}
	return res, types, nil
}

// convert returns a (or a new handle over converted variables) with type to.
func (t *Trace) convert(op string, a *Array, to ArrayType) (*Array, error) {
	if a.tr != t {
		return nil, newError(IncompatibleType, op, "operands belong to different traces")
	}
	if a.typ == to {
		return a, nil
	}
	switch {
	case a.typ.depth > to.depth:
		return nil, incompatibleTypes(op, a.typ, to)

	case a.typ.depth < to.depth:
		e, err := t.convert(op, a, to.Inner())
		if err != nil {
			return nil, err
		}
		n := to.Size()
		if n == Dynamic {
			n = 1
		}
		elems := make([]*Array, n)
		for i := range elems {
			if i == 0 && e != a {
				elems[i] = e
			} else {
				elems[i] = e.Clone()
			}
		}
		return t.aggregate(to, elems), nil

	case to.IsLeaf():
		v := a.Variable()
		if v == nil {
			return nil, uninitialized(op)
		}
		if n := to.Size(); to.depth == 1 && n != Dynamic && v.Size != n && v.Size != 1 {
			return nil, incompatibleSizes(op, n, v.Size)
		}
		if v.Kind != to.kind {
			cv, err := t.makeOp(OpCast, to.kind, v.ID)
			if err != nil {
				return nil, err
			}
			v = cv
		}
		return t.leaf(to, v), nil
	}

	n, l := to.Size(), len(a.elems)
	if n != Dynamic && l != n && l != 1 {
		return nil, incompatibleSizes(op, n, l)
	}
	if n == Dynamic {
		n = l
	}
	inner := to.Inner()
	elems := make([]*Array, n)
	for j := range elems {
		src := a.elems[min(j, l-1)]
		e, err := t.convert(op, src, inner)
		if err != nil {
			releaseAll(elems[:j])
			return nil, err
		}
		if e == src {
			e = src.Clone()
		}
		elems[j] = e
	}
	return t.aggregate(to, elems), nil
}

// apply records op elementwise over args, which already share the
// operand type; typ is the result type.
func (t *Trace) apply(op Opcode, typ ArrayType, args []*Array) (*Array, error) {
	if typ.IsLeaf() {
		ids := make([]VarID, len(args))
		for i, a := range args {
			if a.index == 0 {
				return nil, uninitialized(op.String())
			}
			ids[i] = a.index
		}
		v, err := t.makeOp(op, typ.kind, ids...)
		if err != nil {
			return nil, err
		}
		return t.leaf(typ, v), nil
	}

	n := 1
	for _, a := range args {
		switch l := len(a.elems); {
		case l == n, l == 1:
		case n == 1:
			n = l
		default:
			return nil, incompatibleSizes(op.String(), n, l)
		}
	}
	for _, a := range args {
		if len(a.elems) == 0 {
			n = 0
		}
	}
	inner := typ.Inner()
	elems := make([]*Array, n)
	sub := make([]*Array, len(args))
	for j := range elems {
		for i, a := range args {
			sub[i] = a.elems[min(j, len(a.elems)-1)]
		}
		e, err := t.apply(op, inner, sub)
		if err != nil {
			releaseAll(elems[:j])
			return nil, err
		}
		elems[j] = e
	}
	return t.aggregate(typ, elems), nil
}

// operate promotes xs, validates op for the promoted type, converts every
// operand and records the operation.
func (t *Trace) operate(op Opcode, xs ...any) (*Array, error) {
	res, types, err := resultType(op.String(), xs)
	if err != nil {
		return nil, err
	}
	a, b := types[0], types[0]
	if len(types) > 1 {
		b = types[1]
	}
	if err := checkOperands(op, res, a, b); err != nil {
		return nil, err
	}
	args, err := t.convertAll(op.String(), res, xs)
	if err != nil {
		return nil, err
	}
	defer releaseTemps(xs, args)

	out := res
	if op.IsComparison() {
		out = res.Mask()
	}
	return t.apply(op, out, args)
}

func (t *Trace) convertAll(op string, to ArrayType, xs []any) ([]*Array, error) {
	args := make([]*Array, len(xs))
	for i, x := range xs {
		a, err := t.fromHost(op, to, x)
		if err != nil {
			releaseTemps(xs, args[:i])
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// releaseTemps drops handles created while converting operands.
func releaseTemps(xs []any, args []*Array) {
	for i, a := range args {
		if a == nil {
			continue
		}
		if orig, ok := xs[i].(*Array); ok && orig == a {
			continue
		}
		a.Release()
	}
}

// Binary records the binary operation op. Either operand may be a host
// value as long as the other is an Array.
func Binary(op Opcode, x, y any) (*Array, error) {
	if op.Arity() != 2 {
		return nil, integrity("%s is not a binary operation", op)
	}
	t, err := traceOf(op.String(), x, y)
	if err != nil {
		return nil, err
	}
	return t.operate(op, x, y)
}

// Unary records the unary operation op.
func Unary(op Opcode, x *Array) (*Array, error) {
	if op.Arity() != 1 || op.IsReduction() {
		return nil, integrity("%s is not a unary operation", op)
	}
	return x.tr.operate(op, x)
}

// Add records x + y elementwise. At least one operand must be an Array.
func Add(x, y any) (*Array, error) { return Binary(OpAdd, x, y) }

// Sub records x - y.
func Sub(x, y any) (*Array, error) { return Binary(OpSub, x, y) }

// Mul records x * y.
func Mul(x, y any) (*Array, error) { return Binary(OpMul, x, y) }

// Div records x / y.
func Div(x, y any) (*Array, error) { return Binary(OpDiv, x, y) }

// FloorDiv records x / y rounded toward negative infinity.
func FloorDiv(x, y any) (*Array, error) { return Binary(OpFloorDiv, x, y) }

// Minimum records the elementwise minimum of x and y.
func Minimum(x, y any) (*Array, error) { return Binary(OpMin, x, y) }

// Maximum records the elementwise maximum of x and y.
func Maximum(x, y any) (*Array, error) { return Binary(OpMax, x, y) }

// Pow records x raised to y.
func Pow(x, y any) (*Array, error) { return Binary(OpPow, x, y) }

// FMA records x*y + z.
func FMA(x, y, z any) (*Array, error) {
	t, err := traceOf("fma", x, y, z)
	if err != nil {
		return nil, err
	}
	return t.operate(OpFMA, x, y, z)
}

// Add records a + b.
func (a *Array) Add(b any) (*Array, error) { return a.tr.operate(OpAdd, a, b) }

// Sub records a - b.
func (a *Array) Sub(b any) (*Array, error) { return a.tr.operate(OpSub, a, b) }

// Mul records a * b.
func (a *Array) Mul(b any) (*Array, error) { return a.tr.operate(OpMul, a, b) }

// Div records a / b.
func (a *Array) Div(b any) (*Array, error) { return a.tr.operate(OpDiv, a, b) }

// FloorDiv records a / b rounded toward negative infinity.
func (a *Array) FloorDiv(b any) (*Array, error) { return a.tr.operate(OpFloorDiv, a, b) }

// Shl shifts a left by b bits. Integer kinds only.
func (a *Array) Shl(b any) (*Array, error) { return a.tr.operate(OpShl, a, b) }

// Shr shifts a right by b bits.
func (a *Array) Shr(b any) (*Array, error) { return a.tr.operate(OpShr, a, b) }

// And records a & b. On masks it is the logical and.
func (a *Array) And(b any) (*Array, error) { return a.tr.operate(OpAnd, a, b) }

// Or records a | b.
func (a *Array) Or(b any) (*Array, error) { return a.tr.operate(OpOr, a, b) }

// Xor records a ^ b.
func (a *Array) Xor(b any) (*Array, error) { return a.tr.operate(OpXor, a, b) }

// Minimum records min(a, b) elementwise.
func (a *Array) Minimum(b any) (*Array, error) { return a.tr.operate(OpMin, a, b) }

// Maximum records max(a, b) elementwise.
func (a *Array) Maximum(b any) (*Array, error) { return a.tr.operate(OpMax, a, b) }

// Pow records a raised to b.
func (a *Array) Pow(b any) (*Array, error) { return a.tr.operate(OpPow, a, b) }

// Eq records the mask a == b. The result has Bool kind.
func (a *Array) Eq(b any) (*Array, error) { return a.tr.operate(OpEq, a, b) }

// Ne records the mask a != b.
func (a *Array) Ne(b any) (*Array, error) { return a.tr.operate(OpNe, a, b) }

// Lt records the mask a < b.
func (a *Array) Lt(b any) (*Array, error) { return a.tr.operate(OpLt, a, b) }

// Le records the mask a <= b.
func (a *Array) Le(b any) (*Array, error) { return a.tr.operate(OpLe, a, b) }

// Gt records the mask a > b.
func (a *Array) Gt(b any) (*Array, error) { return a.tr.operate(OpGt, a, b) }

// Ge records the mask a >= b.
func (a *Array) Ge(b any) (*Array, error) { return a.tr.operate(OpGe, a, b) }

// Neg records -a.
func (a *Array) Neg() (*Array, error) { return a.tr.operate(OpNeg, a) }

// Abs records |a|.
func (a *Array) Abs() (*Array, error) { return a.tr.operate(OpAbs, a) }

// Invert records the bitwise complement of a, or the negation of a mask.
func (a *Array) Invert() (*Array, error) { return a.tr.operate(OpNot, a) }

// Cast converts a to kind k.
func (a *Array) Cast(k Kind) (*Array, error) {
	return a.tr.convert("cast", a, a.typ.WithKind(k))
}

// Sum records the horizontal sum. Aggregates add their components; leaves
// reduce their elements to a single element.
func (a *Array) Sum() (*Array, error) {
	if err := checkOperands(OpSum, a.typ, a.typ, a.typ); err != nil {
		return nil, err
	}
	if !a.typ.IsLeaf() {
		if len(a.elems) == 0 {
			return nil, newError(IncompatibleSize, "sum", "sum of an empty %s", a.typ)
		}
		acc := a.elems[0].Clone()
		for _, e := range a.elems[1:] {
			next, err := acc.Add(e)
			acc.Release()
			if err != nil {
				return nil, err
			}
			acc = next
		}
		return acc, nil
	}
	if a.index == 0 {
		return nil, uninitialized("sum")
	}
	v, err := a.tr.makeOp(OpSum, a.typ.kind, a.index)
	if err != nil {
		return nil, err
	}
	typ := a.typ
	if typ.depth == 1 && typ.Size() != Dynamic {
		typ = Scalar(typ.kind)
	}
	return a.tr.leaf(typ, v), nil
}
