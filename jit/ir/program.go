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

// Package ir partitions the pending operations of a flush into kernels.
//
// A Program is a DAG of Nodes keyed by variable identifier. Compute nodes
// (elementwise operations and reductions) are grouped into kernels by a
// small set of fusion rules; Load and Broadcast nodes stand for inputs that
// are already materialized.
package ir

import (
	"fmt"
	"slices"
)

// OpKind classifies a node for fusion purposes.
type OpKind int

const (
	// OpKindElementwise: one output element per loop iteration.
	OpKindElementwise OpKind = iota
	// OpKindReduction: folds its loop into a single element.
	OpKindReduction
	// OpKindLoad: an evaluated input read from memory.
	OpKindLoad
	// OpKindBroadcast: a literal input splatted across the loop.
	OpKindBroadcast
)

func (k OpKind) String() string {
	switch k {
	case OpKindElementwise:
		return "elementwise"
	case OpKindReduction:
		return "reduction"
	case OpKindLoad:
		return "load"
	case OpKindBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Node is one operation of a Program.
type Node struct {
	ID   int
	Kind OpKind
	Op   string

	// Size is the loop extent: the result length for elementwise nodes and
	// the operand length for reductions.
	Size int

	// Inputs are the operand nodes in operand order.
	Inputs []*Node

	// External marks a result that is observed outside the program.
	External bool

	// Filled by Analyze.
	Producers []*Node
	Consumers []*Node

	// FusionGroup is the index of the group containing the node, or -1.
	FusionGroup  int
	IsFusionRoot bool
}

// IsCompute reports whether the node performs work inside a kernel.
func (n *Node) IsCompute() bool {
	return n.Kind == OpKindElementwise || n.Kind == OpKindReduction
}

// HasSingleConsumer reports whether exactly one node consumes n.
func (n *Node) HasSingleConsumer() bool { return len(n.Consumers) == 1 }

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d(%s, n=%d)", n.Op, n.ID, n.Kind, n.Size)
}

// Program is the set of nodes of one flush.
type Program struct {
	Name         string
	Nodes        []*Node
	FusionGroups []FusionGroup

	byID map[int]*Node
}

// NewProgram creates an empty program.
func NewProgram(name string) *Program {
	return &Program{Name: name, byID: make(map[int]*Node)}
}

// AddNode appends a node. Identifiers must be unique and nodes must be
// added after their inputs.
func (p *Program) AddNode(id int, kind OpKind, op string, size int, inputs ...*Node) (*Node, error) {
	if _, dup := p.byID[id]; dup {
		return nil, fmt.Errorf("ir: duplicate node %d", id)
	}
	for _, in := range inputs {
		if in == nil || p.byID[in.ID] != in {
			return nil, fmt.Errorf("ir: node %d has an input outside the program", id)
		}
	}
	n := &Node{ID: id, Kind: kind, Op: op, Size: size, Inputs: inputs, FusionGroup: -1}
	p.Nodes = append(p.Nodes, n)
	p.byID[id] = n
	return n, nil
}

// GetNode returns the node with the given identifier, or nil.
func (p *Program) GetNode(id int) *Node { return p.byID[id] }

// Analyze populates producer/consumer edges from node inputs and resets
// any previous fusion result.
func Analyze(p *Program) {
	for _, n := range p.Nodes {
		n.Producers = n.Producers[:0]
		n.Consumers = n.Consumers[:0]
		n.FusionGroup = -1
		n.IsFusionRoot = false
	}
	p.FusionGroups = nil
	for _, n := range p.Nodes {
		for _, in := range n.Inputs {
			if !slices.Contains(n.Producers, in) {
				n.Producers = append(n.Producers, in)
				in.Consumers = append(in.Consumers, n)
			}
		}
	}
}

// FusionCandidate is a producer/consumer pair that might share a kernel.
type FusionCandidate struct {
	Producer *Node
	Consumer *Node
}

// FindFusionCandidates lists every unfused producer/consumer edge in
// consumer order.
func FindFusionCandidates(p *Program) []FusionCandidate {
	var out []FusionCandidate
	for _, c := range p.Nodes {
		if c.FusionGroup >= 0 {
			continue
		}
		for _, prod := range c.Producers {
			if prod.FusionGroup >= 0 {
				continue
			}
			out = append(out, FusionCandidate{Producer: prod, Consumer: c})
		}
	}
	return out
}
