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
	"slices"

	"github.com/samber/lo"
)

// nodeKey is the structural identity used for value numbering.
type nodeKey struct {
	op       Opcode
	kind     Kind
	size     int
	operands [3]VarID
	literal  uint64
}

func keyOf(v *Variable) nodeKey {
	k := nodeKey{op: v.Op, kind: v.Kind, size: v.Size}
	copy(k.operands[:], v.Operands)
	if v.Op == OpLiteral {
		k.literal = v.payload.Bits(0)
	}
	return k
}

// Graph owns the variables of one trace and the value-numbering index.
// Identifiers increase monotonically and are never reused, so a variable's
// operands always have smaller identifiers.
type Graph struct {
	vars  map[VarID]*Variable
	index map[nodeKey]VarID
	next  VarID
}

func newGraph() *Graph {
	return &Graph{
		vars:  make(map[VarID]*Variable),
		index: make(map[nodeKey]VarID),
	}
}

// Var returns the live variable id, or nil.
func (g *Graph) Var(id VarID) *Variable {
	return g.vars[id]
}

// Len returns the number of live variables.
func (g *Graph) Len() int { return len(g.vars) }

// Variables returns the live variables in topological (identifier) order.
func (g *Graph) Variables() []*Variable {
	vs := lo.Values(g.vars)
	slices.SortFunc(vs, func(a, b *Variable) int { return int(a.ID) - int(b.ID) })
	return vs
}

// add assigns an identifier to v and links it to its operands.
func (g *Graph) add(v *Variable) (*Variable, error) {
	id := g.next + 1
	for _, op := range v.Operands {
		dep := g.vars[op]
		if dep == nil {
			return nil, integrity("operand r%d of new %s node is not live", op, v.Op)
		}
		if op >= id {
			return nil, integrity("operand r%d does not precede new node r%d", op, id)
		}
	}
	g.next = id
	v.ID = id
	for _, op := range v.Operands {
		g.vars[op].deps++
	}
	g.vars[id] = v
	return v, nil
}

// lookup returns the indexed variable structurally identical to v.
func (g *Graph) lookup(v *Variable) *Variable {
	id, ok := g.index[keyOf(v)]
	if !ok {
		return nil
	}
	return g.vars[id]
}

func (g *Graph) insertIndex(v *Variable) {
	v.key = keyOf(v)
	v.indexed = true
	g.index[v.key] = v.ID
}

func (g *Graph) unindex(v *Variable) {
	if !v.indexed {
		return
	}
	if g.index[v.key] == v.ID {
		delete(g.index, v.key)
	}
	v.indexed = false
}

func (g *Graph) acquire(id VarID) {
	if v := g.vars[id]; v != nil {
		v.refs++
	}
}

// release drops one handle reference and frees everything that becomes
// unreachable.
func (g *Graph) release(id VarID) {
	v := g.vars[id]
	if v == nil {
		return
	}
	v.refs--
	g.collect(v)
}

// detach drops v's operand edges, e.g. once it has been evaluated.
func (g *Graph) detach(v *Variable) {
	ops := v.Operands
	v.Operands = nil
	for _, op := range ops {
		if dep := g.vars[op]; dep != nil {
			dep.deps--
			g.collect(dep)
		}
	}
}

func (g *Graph) collect(v *Variable) {
	work := []*Variable{v}
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if v.refs > 0 || v.deps > 0 {
			continue
		}
		if _, live := g.vars[v.ID]; !live {
			continue
		}
		g.unindex(v)
		delete(g.vars, v.ID)
		for _, op := range v.Operands {
			if dep := g.vars[op]; dep != nil {
				dep.deps--
				work = append(work, dep)
			}
		}
	}
}

// pending returns the Normal variables reachable from roots, in
// topological order.
func (g *Graph) pending(roots []VarID) []*Variable {
	seen := make(map[VarID]bool)
	var out []*Variable
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := g.vars[id]
		if v == nil || v.State != Normal || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, v)
		stack = append(stack, v.Operands...)
	}
	slices.SortFunc(out, func(a, b *Variable) int { return int(a.ID) - int(b.ID) })
	return out
}
