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
	"math"
	"unsafe"
)

// This file provides the scalar reference implementation of every opcode.
// Constant propagation folds literals through Apply, the built-in
// interpreter backend evaluates kernels with it, and accelerated backends
// use it for chunks they do not specialize.

// Instr is one variable as seen by a backend: what to compute and how big
// the result is.
type Instr struct {
	ID       VarID
	Op       Opcode
	Kind     Kind // result kind
	Size     int  // result length
	Count    int  // operand length, for reductions
	Operands []VarID
	Payload  Buffer // OpLiteral / OpData contents
}

// Apply evaluates in over args. Each argument has length in.Size (in.Count
// for reductions) or 1, in which case it broadcasts.
func Apply(in Instr, args []Buffer) (Buffer, error) {
	if len(args) != in.Op.Arity() {
		return Buffer{}, integrity("%s expects %d operands, got %d", in.Op, in.Op.Arity(), len(args))
	}
	n := in.Size
	if in.Op.IsReduction() {
		n = in.Count
	}
	for _, a := range args {
		if l := a.Len(); l != 1 && l != n {
			return Buffer{}, integrity("%s: operand length %d does not match %d", in.Op, l, n)
		}
	}

	switch {
	case in.Op == OpLiteral:
		return fill(in.Payload.Cast(in.Kind), n), nil
	case in.Op == OpData:
		return in.Payload, nil
	case in.Op == OpCast:
		return fill(args[0], n).Cast(in.Kind), nil
	case in.Op == OpSelect:
		return selectBuffers(args[0], args[1], args[2], n), nil
	case in.Op.IsComparison():
		return compareBuffers(in.Op, args[0], args[1], n), nil
	case in.Op.IsReduction():
		return reduceBuffer(in.Op, args[0], n), nil
	}

	var out any
	switch in.Kind {
	case KindBool:
		out = boolOp(in.Op, args, n)
	case KindInt32:
		out = intOp[int32](in.Op, args, n)
	case KindUInt32:
		out = intOp[uint32](in.Op, args, n)
	case KindInt64:
		out = intOp[int64](in.Op, args, n)
	case KindUInt64:
		out = intOp[uint64](in.Op, args, n)
	case KindFloat32:
		out = floatOp[float32](in.Op, args, n)
	case KindFloat64:
		out = floatOp[float64](in.Op, args, n)
	}
	if out == nil {
		return Buffer{}, integrity("%s is not implemented for %s", in.Op, in.Kind)
	}
	return Buffer{kind: in.Kind, data: out}, nil
}

// fill expands a broadcast buffer to n elements.
func fill(b Buffer, n int) Buffer {
	if b.Len() == n {
		return b
	}
	out := NewBuffer(b.kind, n)
	for i := range n {
		out.CopyFrom(i, b)
	}
	return out
}

func at[T any](s []T, i int) T {
	if len(s) == 1 {
		return s[0]
	}
	return s[i]
}

func unaryLoop[T any](a []T, n int, f func(T) T) []T {
	out := make([]T, n)
	for i := range n {
		out[i] = f(at(a, i))
	}
	return out
}

func binaryLoop[T, R any](a, b []T, n int, f func(T, T) R) []R {
	out := make([]R, n)
	for i := range n {
		out[i] = f(at(a, i), at(b, i))
	}
	return out
}

func ternaryLoop[T any](a, b, c []T, n int, f func(T, T, T) T) []T {
	out := make([]T, n)
	for i := range n {
		out[i] = f(at(a, i), at(b, i), at(c, i))
	}
	return out
}

func operands[T Elements](args []Buffer) [][]T {
	out := make([][]T, len(args))
	for i, a := range args {
		out[i], _ = Values[T](a)
	}
	return out
}

// numericOp covers the operations shared by integers and floats.
func numericOp[T Numbers](op Opcode, v [][]T, n int) []T {
	switch op {
	case OpNeg:
		return unaryLoop(v[0], n, func(x T) T { return -x })
	case OpAbs:
		return unaryLoop(v[0], n, func(x T) T {
			if x < 0 {
				return -x
			}
			return x
		})
	case OpAdd:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x + y })
	case OpSub:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x - y })
	case OpMul:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x * y })
	case OpMin:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return min(x, y) })
	case OpMax:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return max(x, y) })
	}
	return nil
}

func intOp[T Integers](op Opcode, args []Buffer, n int) any {
	v := operands[T](args)
	var zero T
	width := uint64(unsafe.Sizeof(zero) * 8)
	switch op {
	case OpNot:
		return unaryLoop(v[0], n, func(x T) T { return ^x })
	case OpFMA:
		return ternaryLoop(v[0], v[1], v[2], n, func(x, y, z T) T { return x*y + z })
	case OpFloorDiv:
		// Truncates toward zero; division by zero yields zero.
		return binaryLoop(v[0], v[1], n, func(x, y T) T {
			if y == 0 {
				return 0
			}
			return x / y
		})
	case OpShl:
		// Shift counts are taken modulo the element width.
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x << (uint64(y) & (width - 1)) })
	case OpShr:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x >> (uint64(y) & (width - 1)) })
	case OpAnd:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x & y })
	case OpOr:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x | y })
	case OpXor:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x ^ y })
	}
	if out := numericOp(op, v, n); out != nil {
		return out
	}
	return nil
}

func floatOp[T Floats](op Opcode, args []Buffer, n int) any {
	v := operands[T](args)
	switch op {
	case OpDiv:
		return binaryLoop(v[0], v[1], n, func(x, y T) T { return x / y })
	case OpPow:
		return binaryLoop(v[0], v[1], n, func(x, y T) T {
			return T(math.Pow(float64(x), float64(y)))
		})
	case OpFMA:
		return ternaryLoop(v[0], v[1], v[2], n, func(x, y, z T) T {
			return T(math.FMA(float64(x), float64(y), float64(z)))
		})
	}
	if out := numericOp(op, v, n); out != nil {
		return out
	}
	return nil
}

func boolOp(op Opcode, args []Buffer, n int) any {
	v := operands[bool](args)
	switch op {
	case OpNot:
		return unaryLoop(v[0], n, func(x bool) bool { return !x })
	case OpAnd:
		return binaryLoop(v[0], v[1], n, func(x, y bool) bool { return x && y })
	case OpOr:
		return binaryLoop(v[0], v[1], n, func(x, y bool) bool { return x || y })
	case OpXor:
		return binaryLoop(v[0], v[1], n, func(x, y bool) bool { return x != y })
	}
	return nil
}

func compareBuffers(op Opcode, a, b Buffer, n int) Buffer {
	var out []bool
	switch a.kind {
	case KindBool:
		out = compareBool(op, a.data.([]bool), b.data.([]bool), n)
	case KindInt32:
		out = compareLoop(op, a.data.([]int32), b.data.([]int32), n)
	case KindUInt32:
		out = compareLoop(op, a.data.([]uint32), b.data.([]uint32), n)
	case KindInt64:
		out = compareLoop(op, a.data.([]int64), b.data.([]int64), n)
	case KindUInt64:
		out = compareLoop(op, a.data.([]uint64), b.data.([]uint64), n)
	case KindFloat32:
		out = compareLoop(op, a.data.([]float32), b.data.([]float32), n)
	case KindFloat64:
		out = compareLoop(op, a.data.([]float64), b.data.([]float64), n)
	}
	return Buffer{kind: KindBool, data: out}
}

func compareBool(op Opcode, a, b []bool, n int) []bool {
	if op == OpNe {
		return binaryLoop(a, b, n, func(x, y bool) bool { return x != y })
	}
	return binaryLoop(a, b, n, func(x, y bool) bool { return x == y })
}

func compareLoop[T Numbers](op Opcode, a, b []T, n int) []bool {
	switch op {
	case OpEq:
		return binaryLoop(a, b, n, func(x, y T) bool { return x == y })
	case OpNe:
		return binaryLoop(a, b, n, func(x, y T) bool { return x != y })
	case OpLt:
		return binaryLoop(a, b, n, func(x, y T) bool { return x < y })
	case OpLe:
		return binaryLoop(a, b, n, func(x, y T) bool { return x <= y })
	case OpGt:
		return binaryLoop(a, b, n, func(x, y T) bool { return x > y })
	default:
		return binaryLoop(a, b, n, func(x, y T) bool { return x >= y })
	}
}

func selectBuffers(cond, a, b Buffer, n int) Buffer {
	c := cond.data.([]bool)
	switch a.kind {
	case KindBool:
		return selectTyped[bool](c, a, b, n)
	case KindInt32:
		return selectTyped[int32](c, a, b, n)
	case KindUInt32:
		return selectTyped[uint32](c, a, b, n)
	case KindInt64:
		return selectTyped[int64](c, a, b, n)
	case KindUInt64:
		return selectTyped[uint64](c, a, b, n)
	case KindFloat32:
		return selectTyped[float32](c, a, b, n)
	default:
		return selectTyped[float64](c, a, b, n)
	}
}

func selectTyped[T Elements](c []bool, a, b Buffer, n int) Buffer {
	x, _ := Values[T](a)
	y, _ := Values[T](b)
	out := make([]T, n)
	for i := range n {
		if at(c, i) {
			out[i] = at(x, i)
		} else {
			out[i] = at(y, i)
		}
	}
	return Buffer{kind: a.kind, data: out}
}

// reduceBuffer collapses n elements (row-major) into one. all() of nothing
// is true, any() of nothing is false, sum() of nothing is zero.
func reduceBuffer(op Opcode, a Buffer, n int) Buffer {
	switch op {
	case OpAll:
		v := a.data.([]bool)
		for i := range n {
			if !at(v, i) {
				return BufferOf(false)
			}
		}
		return BufferOf(true)
	case OpAny:
		v := a.data.([]bool)
		for i := range n {
			if at(v, i) {
				return BufferOf(true)
			}
		}
		return BufferOf(false)
	}
	switch v := a.data.(type) {
	case []int32:
		return BufferOf(sumLoop(v, n))
	case []uint32:
		return BufferOf(sumLoop(v, n))
	case []int64:
		return BufferOf(sumLoop(v, n))
	case []uint64:
		return BufferOf(sumLoop(v, n))
	case []float32:
		return BufferOf(sumLoop(v, n))
	case []float64:
		return BufferOf(sumLoop(v, n))
	}
	return Buffer{}
}

func sumLoop[T Numbers](v []T, n int) T {
	var sum T
	for i := range n {
		sum += at(v, i)
	}
	return sum
}
