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
	"reflect"
)

// hostKind maps a Go scalar to the kind it promotes as. Untyped-looking
// Go numbers (int, float64) behave like plain numbers: they adopt the
// array's width and only force integer to float widening.
func hostKind(v any) (Kind, bool) {
	switch v.(type) {
	case bool:
		return KindBool, true
	case int, int8, int16, int32:
		return KindInt32, true
	case uint8, uint16, uint32:
		return KindUInt32, true
	case int64:
		return KindInt64, true
	case uint, uint64:
		return KindUInt64, true
	case float32, float64:
		return KindFloat32, true
	}
	return KindInvalid, false
}

func isSequence(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	}
	return rv, false
}

// HostType infers the ArrayType of a plain Go value: a scalar, a (nested)
// slice or array of scalars, or an Interchange buffer.
func HostType(v any) (ArrayType, error) {
	switch x := v.(type) {
	case *Array:
		return x.typ, nil
	case ArrayType, Kind:
		return ArrayType{}, newError(IncompatibleType, "convert", "%v is a type, not a value", v)
	case Interchange:
		return NewType(x.Kind(), dimOf(x.Len())), nil
	}
	if k, ok := hostKind(v); ok {
		return Scalar(k), nil
	}
	rv, ok := isSequence(v)
	if !ok {
		return ArrayType{}, newError(IncompatibleType, "convert", "unsupported value of type %T", v)
	}
	n := rv.Len()
	res := ArrayType{kind: KindInvalid, depth: 1}
	res.dims[0] = dimOf(n)
	var inner ArrayType
	for i := range n {
		et, err := HostType(rv.Index(i).Interface())
		if err != nil {
			return ArrayType{}, err
		}
		if et.depth+1 > MaxDepth {
			return ArrayType{}, newError(IncompatibleType, "convert", "value nests deeper than %d", MaxDepth)
		}
		if i == 0 {
			inner = et
			continue
		}
		inner = unifyHost(inner, et)
	}
	res.kind = inner.kind
	res.depth = inner.depth + 1
	copy(res.dims[1:], inner.dims[:inner.depth])
	return res, nil
}

// unifyHost merges the types of two sequence elements; lengths that
// disagree become Dynamic.
func unifyHost(a, b ArrayType) ArrayType {
	if b.depth > a.depth {
		a, b = b, a
	}
	res := a
	res.kind = PromoteKind(a.kind, b.kind)
	off := int(a.depth - b.depth)
	for i := range int(b.depth) {
		if a.dims[off+i] != b.dims[i] {
			res.dims[off+i] = Dynamic
		}
	}
	return res
}

func dimOf(n int) int {
	if n <= 0 {
		return Dynamic
	}
	return n
}

// New converts a host value into an array of type typ. Several values are
// treated as a sequence, so New(Array3f, 1, 2, 3) builds a three-vector and
// New(ArrayXi, 4) a one-element literal. A single element becomes a
// Literal variable; longer sequences are copied into Evaluated variables.
func (t *Trace) New(typ ArrayType, values ...any) (*Array, error) {
	switch len(values) {
	case 0:
		return t.Empty(typ), nil
	case 1:
		return t.fromHost("new", typ, values[0])
	default:
		return t.fromHost("new", typ, values)
	}
}

// MustNew is New that panics on error. Intended for tests and examples.
func (t *Trace) MustNew(typ ArrayType, values ...any) *Array {
	a, err := t.New(typ, values...)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInterchange builds a leaf array from an external buffer.
func (t *Trace) FromInterchange(typ ArrayType, src Interchange) (*Array, error) {
	if typ.depth > 1 {
		return nil, newError(IncompatibleType, "from_interchange", "%s is not a flat array type", typ)
	}
	return t.fromHost("from_interchange", typ, src)
}

// Empty returns a default-constructed array whose state is Invalid.
func (t *Trace) Empty(typ ArrayType) *Array {
	return &Array{tr: t, typ: typ}
}

func (t *Trace) fromHost(op string, typ ArrayType, v any) (*Array, error) {
	if a, ok := v.(*Array); ok {
		return t.convert(op, a, typ)
	}
	if typ.depth <= 1 {
		b, err := t.hostBuffer(op, typ, v)
		if err != nil {
			return nil, err
		}
		if n := typ.Size(); typ.depth == 1 && n != Dynamic && b.Len() != n && b.Len() != 1 {
			return nil, incompatibleSizes(op, n, b.Len())
		}
		if typ.depth == 0 && b.Len() != 1 {
			return nil, newError(IncompatibleType, op, "cannot convert a sequence of %d elements to %s", b.Len(), typ)
		}
		vr, err := t.fromBuffer(b)
		if err != nil {
			return nil, err
		}
		return t.leaf(typ, vr), nil
	}

	inner := typ.Inner()
	var items []any
	if rv, ok := isSequence(v); ok {
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	} else if src, ok := v.(Interchange); ok {
		items = make([]any, src.Len())
		for i := range items {
			items[i] = src.Index(i)
		}
	} else {
		items = []any{v}
	}
	n := typ.Size()
	switch {
	case n == Dynamic:
	case len(items) == 1:
		items = repeat(items[0], n)
	case len(items) != n:
		return nil, incompatibleSizes(op, n, len(items))
	}
	elems := make([]*Array, len(items))
	for i, it := range items {
		e, err := t.fromHost(op, inner, it)
		if err != nil {
			releaseAll(elems[:i])
			return nil, err
		}
		if x, ok := it.(*Array); ok && x == e {
			e = x.Clone()
		}
		elems[i] = e
	}
	return t.aggregate(typ, elems), nil
}

func repeat(v any, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// hostBuffer flattens a scalar, a flat sequence or an Interchange value
// into a buffer of typ's kind.
func (t *Trace) hostBuffer(op string, typ ArrayType, v any) (Buffer, error) {
	if src, ok := v.(Interchange); ok {
		return bufferFrom(src, typ.kind)
	}
	if _, ok := hostKind(v); ok {
		s, err := scalarBuffer(v)
		if err != nil {
			return Buffer{}, err
		}
		return s.Cast(typ.kind), nil
	}
	rv, ok := isSequence(v)
	if !ok {
		return Buffer{}, newError(IncompatibleType, op, "cannot convert %T to %s", v, typ)
	}
	out := NewBuffer(typ.kind, rv.Len())
	for i := range rv.Len() {
		e := rv.Index(i).Interface()
		if _, ok := hostKind(e); !ok {
			return Buffer{}, newError(IncompatibleType, op, "cannot convert nested %T to %s", e, typ)
		}
		if err := out.set(i, e); err != nil {
			return Buffer{}, newError(IncompatibleType, op, "%v", err)
		}
	}
	return out, nil
}
