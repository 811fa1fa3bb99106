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

// Array is a caller-visible handle to traced data. Leaf arrays (depth 0 or
// 1) are bound to one variable; deeper arrays hold one component handle per
// outer element. Copying the pointer aliases the handle; Clone creates a
// second handle over the same variables.
type Array struct {
	tr    *Trace
	typ   ArrayType
	index VarID    // leaf arrays
	elems []*Array // aggregates
}

func (t *Trace) leaf(typ ArrayType, v *Variable) *Array {
	t.graph.acquire(v.ID)
	return &Array{tr: t, typ: typ, index: v.ID}
}

func (t *Trace) aggregate(typ ArrayType, elems []*Array) *Array {
	return &Array{tr: t, typ: typ, elems: elems}
}

// Trace returns the trace a belongs to.
func (a *Array) Trace() *Trace { return a.tr }

// Type returns the array type.
func (a *Array) Type() ArrayType { return a.typ }

// Index returns the bound variable of a leaf array, or 0.
func (a *Array) Index() VarID { return a.index }

// Variable returns the bound variable of a leaf array, or nil.
func (a *Array) Variable() *Variable {
	if a.index == 0 {
		return nil
	}
	return a.tr.graph.Var(a.index)
}

// State reports the lifecycle state. Aggregates report the common state of
// their components, or Mixed when the components disagree.
func (a *Array) State() VarState {
	if a.typ.IsLeaf() {
		v := a.Variable()
		if v == nil {
			return Invalid
		}
		return v.State
	}
	if len(a.elems) == 0 {
		return Invalid
	}
	s := a.elems[0].State()
	for _, e := range a.elems[1:] {
		if e.State() != s {
			return Mixed
		}
	}
	return s
}

// Len returns the outer length: the number of components of an aggregate
// or the number of elements of a leaf.
func (a *Array) Len() int {
	if !a.typ.IsLeaf() {
		return len(a.elems)
	}
	if v := a.Variable(); v != nil {
		return v.Size
	}
	return 0
}

// Entry returns component i of an aggregate. The returned handle is the
// stored one: in-place operations on it are visible through a.
func (a *Array) Entry(i int) *Array {
	if a.typ.IsLeaf() {
		panic(fmt.Sprintf("jit: Entry on leaf array %s", a.typ))
	}
	return a.elems[i]
}

// SetEntry replaces component i with v converted to the component type.
func (a *Array) SetEntry(i int, v any) error {
	if a.typ.IsLeaf() {
		return newError(IncompatibleType, "set_entry", "%s has no components", a.typ)
	}
	if i < 0 || i >= len(a.elems) {
		return newError(IncompatibleSize, "set_entry", "index %d out of range [0, %d)", i, len(a.elems))
	}
	inner := a.typ.Inner()
	var e *Array
	if x, ok := v.(*Array); ok && x.typ == inner && x.tr == a.tr {
		e = x.Clone()
	} else {
		var err error
		if e, err = a.tr.fromHost("set_entry", inner, v); err != nil {
			return err
		}
	}
	a.elems[i].Release()
	a.elems[i] = e
	return nil
}

// Named component accessors.
func (a *Array) X() *Array { return a.Entry(0) }
func (a *Array) Y() *Array { return a.Entry(1) }
func (a *Array) Z() *Array { return a.Entry(2) }
func (a *Array) W() *Array { return a.Entry(3) }

func (a *Array) SetX(v any) error { return a.SetEntry(0, v) }
func (a *Array) SetY(v any) error { return a.SetEntry(1, v) }
func (a *Array) SetZ(v any) error { return a.SetEntry(2, v) }
func (a *Array) SetW(v any) error { return a.SetEntry(3, v) }

// Clone returns a new handle sharing a's variables.
func (a *Array) Clone() *Array {
	if !a.typ.IsLeaf() {
		elems := make([]*Array, len(a.elems))
		for i, e := range a.elems {
			elems[i] = e.Clone()
		}
		return a.tr.aggregate(a.typ, elems)
	}
	if a.index != 0 {
		a.tr.graph.acquire(a.index)
	}
	return &Array{tr: a.tr, typ: a.typ, index: a.index}
}

// Release unbinds a from its variables. The handle becomes Invalid and
// variables no longer referenced are dropped from the graph.
func (a *Array) Release() {
	for _, e := range a.elems {
		e.Release()
	}
	a.elems = nil
	a.bind(0)
}

// releaseAll drops the handles of a partially built aggregate.
func releaseAll(elems []*Array) {
	for _, e := range elems {
		e.Release()
	}
}

// bind points a leaf handle at id, adjusting reference counts.
func (a *Array) bind(id VarID) {
	if a.index == id {
		return
	}
	if id != 0 {
		a.tr.graph.acquire(id)
	}
	if a.index != 0 {
		a.tr.graph.release(a.index)
	}
	a.index = id
}

// Data evaluates a leaf array and returns its elements.
func (a *Array) Data() (Buffer, error) {
	if !a.typ.IsLeaf() {
		return Buffer{}, newError(IncompatibleType, "data", "%s is not a flat array", a.typ)
	}
	if a.index == 0 {
		return Buffer{}, uninitialized("data")
	}
	if err := a.tr.Eval(a); err != nil {
		return Buffer{}, err
	}
	v := a.Variable()
	if v == nil {
		return Buffer{}, integrity("r%d vanished during evaluation", a.index)
	}
	b, err := v.Payload()
	if err != nil {
		return Buffer{}, err
	}
	return fill(b, v.Size), nil
}

// Get evaluates a leaf array and returns its elements as []T, converting
// from the array's kind when necessary.
func Get[T Elements](a *Array) ([]T, error) {
	b, err := a.Data()
	if err != nil {
		return nil, err
	}
	out, _ := Values[T](b.Cast(KindOf[T]()))
	return out, nil
}

// Item evaluates a and returns element i of a leaf array as a Go value.
func (a *Array) Item(i int) (any, error) {
	b, err := a.Data()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= b.Len() {
		return nil, newError(IncompatibleSize, "item", "index %d out of range [0, %d)", i, b.Len())
	}
	return b.Index(i), nil
}

func (a *Array) String() string {
	if !a.typ.IsLeaf() {
		parts := make([]string, len(a.elems))
		for i, e := range a.elems {
			parts[i] = e.String()
		}
		return a.typ.Name() + "[" + strings.Join(parts, ", ") + "]"
	}
	v := a.Variable()
	if v == nil {
		return a.typ.Name() + "(invalid)"
	}
	if v.State == Normal {
		return fmt.Sprintf("%s(r%d pending)", a.typ.Name(), v.ID)
	}
	return fmt.Sprintf("%s%v", a.typ.Name(), fill(v.payload, v.Size))
}
