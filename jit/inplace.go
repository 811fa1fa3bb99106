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

// In-place operators return the handle the caller should keep using:
//
//	a, err = a.IAdd(b)
//
// When the result has a's type the returned handle is a itself, so every
// alias of a observes the update. A result of a different type (kind
// widening) or a plain scalar receiver yields a new handle and leaves a
// untouched.

// IAdd updates a to a + b.
func (a *Array) IAdd(b any) (*Array, error) { return a.inplace(OpAdd, b) }

// ISub updates a to a - b.
func (a *Array) ISub(b any) (*Array, error) { return a.inplace(OpSub, b) }

// IMul updates a to a * b.
func (a *Array) IMul(b any) (*Array, error) { return a.inplace(OpMul, b) }

// IDiv updates a to a / b.
func (a *Array) IDiv(b any) (*Array, error) { return a.inplace(OpDiv, b) }

// IFloorDiv updates a to the floored quotient a / b.
func (a *Array) IFloorDiv(b any) (*Array, error) { return a.inplace(OpFloorDiv, b) }

// IShl updates a to a << b.
func (a *Array) IShl(b any) (*Array, error) { return a.inplace(OpShl, b) }

// IShr updates a to a >> b.
func (a *Array) IShr(b any) (*Array, error) { return a.inplace(OpShr, b) }

// IAnd updates a to a & b.
func (a *Array) IAnd(b any) (*Array, error) { return a.inplace(OpAnd, b) }

// IOr updates a to a | b.
func (a *Array) IOr(b any) (*Array, error) { return a.inplace(OpOr, b) }

// IXor updates a to a ^ b.
func (a *Array) IXor(b any) (*Array, error) { return a.inplace(OpXor, b) }

func (a *Array) inplace(op Opcode, b any) (*Array, error) {
	res, err := a.tr.operate(op, a, b)
	if err != nil {
		return nil, err
	}
	if res.typ != a.typ || a.typ.IsScalar() {
		return res, nil
	}
	a.assign(res)
	res.Release()
	return a, nil
}

// assign makes a observe src while keeping a's handle and, for aggregates,
// the handles of its existing components. Components beyond a's current
// length are appended.
func (a *Array) assign(src *Array) {
	if a.typ.IsLeaf() {
		a.rebind(src.index)
		return
	}
	for j, e := range src.elems {
		if j < len(a.elems) {
			a.elems[j].assign(e)
			continue
		}
		a.elems = append(a.elems, e.Clone())
	}
	for _, e := range a.elems[len(src.elems):] {
		e.Release()
	}
	a.elems = a.elems[:len(src.elems)]
}

// rebind points a leaf handle at id. A uniquely owned literal receiving a
// literal of the same kind and size keeps its variable and takes the new
// payload; every other case rebinds the handle.
func (a *Array) rebind(id VarID) {
	g := a.tr.graph
	old, nv := a.Variable(), g.Var(id)
	if old == nil || nv == nil || old == nv {
		a.bind(id)
		return
	}
	if old.unique() && old.State == Literal && nv.State == Literal &&
		old.Kind == nv.Kind && old.Size == nv.Size {
		g.unindex(old)
		old.payload = nv.payload
		if a.tr.Flag(ValueNumbering) && g.lookup(old) == nil {
			g.insertIndex(old)
		}
		return
	}
	a.bind(id)
}
