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
	"io"
	"log/slog"
)

// Trace records operations into a graph instead of executing them. A trace
// and every Array created from it belong to a single goroutine: the graph,
// the value-numbering index and the flag stack are not synchronized.
// Independent traces may be driven from different goroutines.
type Trace struct {
	graph   *Graph
	flags   flagStack
	base    Flag
	backend Backend
	logger  *slog.Logger
}

// Option configures a Trace.
type Option func(*Trace)

// WithBackend sets the backend that evaluates flushed kernels. The default
// is the built-in scalar Interpreter.
func WithBackend(b Backend) Option {
	return func(t *Trace) { t.backend = b }
}

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trace) { t.logger = l }
}

// WithFlags sets the base flag frame.
func WithFlags(f Flag) Option {
	return func(t *Trace) { t.base = f }
}

// NewTrace creates an empty trace.
func NewTrace(opts ...Option) *Trace {
	t := &Trace{
		graph:   newGraph(),
		base:    DefaultFlags,
		backend: Interpreter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.flags.frames = []Flag{t.base}
	return t
}

// Graph returns the trace graph.
func (t *Trace) Graph() *Graph { return t.graph }

// Backend returns the evaluation backend.
func (t *Trace) Backend() Backend { return t.backend }

// Reset discards the graph and flag frames and starts a new top-level
// graph. Value numbering never matches across a reset. Arrays created
// before the reset become invalid.
func (t *Trace) Reset() {
	next := t.graph.next
	t.graph = newGraph()
	t.graph.next = next
	t.flags.frames = []Flag{t.base}
}

// Var returns the live variable id, or nil.
func (t *Trace) Var(id VarID) *Variable { return t.graph.Var(id) }

// makeOp records op over operands, folding and deduplicating according to
// the current flags. The returned variable has no handle references yet.
func (t *Trace) makeOp(op Opcode, kind Kind, operands ...VarID) (*Variable, error) {
	if len(operands) != op.Arity() {
		return nil, integrity("%s expects %d operands, got %d", op, op.Arity(), len(operands))
	}
	vars := make([]*Variable, len(operands))
	allLiteral := true
	size := 1
	for i, id := range operands {
		if id == 0 {
			return nil, uninitialized(op.String())
		}
		v := t.graph.Var(id)
		if v == nil {
			return nil, integrity("%s: operand r%d is not live", op, id)
		}
		vars[i] = v
		allLiteral = allLiteral && v.State == Literal
		if op.IsReduction() {
			continue
		}
		switch {
		case v.Size == size, v.Size == 1:
		case size == 1:
			size = v.Size
		default:
			return nil, incompatibleSizes(op.String(), size, v.Size)
		}
	}

	if allLiteral && t.Flag(ConstantPropagation) {
		args := make([]Buffer, len(vars))
		for i, v := range vars {
			args[i] = v.payload
		}
		in := Instr{Op: op, Kind: kind, Size: 1, Operands: operands}
		if op.IsReduction() {
			in.Count = vars[0].Size
		}
		out, err := Apply(in, args)
		if err != nil {
			return nil, err
		}
		return t.literal(kind, size, out)
	}

	v := &Variable{Op: op, Kind: kind, Size: size, Operands: operands, State: Normal}
	if t.Flag(ValueNumbering) {
		if prev := t.graph.lookup(v); prev != nil {
			return prev, nil
		}
		if _, err := t.graph.add(v); err != nil {
			return nil, err
		}
		t.graph.insertIndex(v)
		return v, nil
	}
	return t.graph.add(v)
}

// literal records a constant broadcast over size elements. payload holds
// exactly one element.
func (t *Trace) literal(kind Kind, size int, payload Buffer) (*Variable, error) {
	if payload.Len() != 1 {
		return nil, integrity("literal payload has %d elements", payload.Len())
	}
	v := &Variable{Op: OpLiteral, Kind: kind, Size: size, State: Literal, payload: payload.Cast(kind)}
	if t.Flag(ValueNumbering) {
		if prev := t.graph.lookup(v); prev != nil {
			return prev, nil
		}
		if _, err := t.graph.add(v); err != nil {
			return nil, err
		}
		t.graph.insertIndex(v)
		return v, nil
	}
	return t.graph.add(v)
}

// data records materialized contents. Data variables are never shared
// through value numbering.
func (t *Trace) data(payload Buffer) (*Variable, error) {
	return t.graph.add(&Variable{
		Op:      OpData,
		Kind:    payload.Kind(),
		Size:    payload.Len(),
		State:   Evaluated,
		payload: payload,
	})
}

// fromBuffer records host contents: a single element becomes a literal,
// anything else is copied into an evaluated variable.
func (t *Trace) fromBuffer(b Buffer) (*Variable, error) {
	if b.Len() == 1 {
		return t.literal(b.Kind(), 1, b)
	}
	return t.data(b.Clone())
}
