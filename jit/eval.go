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
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-jitrace/jit/ir"
)

// Backend evaluates the kernels of a flush.
//
// Flush must store a result through Launch.SetOutput for every output of
// every kernel. Flush may run kernels of the same level concurrently;
// Launch is safe for concurrent use. A returned error aborts the flush and
// leaves every variable unchanged.
type Backend interface {
	Name() string
	Flush(ctx context.Context, l *Launch) error
}

// Launch is the work of one flush.
type Launch struct {
	program *ir.Program
	kernels []ir.Kernel
	instrs  map[VarID]Instr
	inputs  map[VarID]Buffer

	mu      sync.Mutex
	outputs map[VarID]Buffer
}

// Program returns the partitioned program.
func (l *Launch) Program() *ir.Program { return l.program }

// Kernels returns the kernels in dependency order.
func (l *Launch) Kernels() []ir.Kernel { return l.kernels }

// Instr returns the instruction computing id.
func (l *Launch) Instr(id VarID) (Instr, bool) {
	in, ok := l.instrs[id]
	return in, ok
}

// Input returns the contents of a materialized operand.
func (l *Launch) Input(id VarID) (Buffer, bool) {
	b, ok := l.inputs[id]
	return b, ok
}

// Output returns a stored result.
func (l *Launch) Output(id VarID) (Buffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.outputs[id]
	return b, ok
}

// SetOutput stores the result of instruction id.
func (l *Launch) SetOutput(id VarID, b Buffer) error {
	if _, ok := l.instrs[id]; !ok {
		return errors.Errorf("r%d is not part of this launch", id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs[id] = b
	return nil
}

// Args gathers the operands of in, looking first in local (results private
// to the running kernel), then in stored outputs, then in the inputs.
func (l *Launch) Args(in Instr, local map[VarID]Buffer) ([]Buffer, error) {
	args := make([]Buffer, len(in.Operands))
	for i, id := range in.Operands {
		if b, ok := local[id]; ok {
			args[i] = b
			continue
		}
		if b, ok := l.Output(id); ok {
			args[i] = b
			continue
		}
		if b, ok := l.inputs[id]; ok {
			args[i] = b
			continue
		}
		return nil, errors.Errorf("r%d: operand r%d is not available", in.ID, id)
	}
	return args, nil
}

// Exec computes one instruction.
type Exec func(in Instr, args []Buffer) (Buffer, error)

// Run executes the members of k in order with exec and stores the kernel
// outputs.
func (l *Launch) Run(k ir.Kernel, exec Exec) error {
	local := make(map[VarID]Buffer, len(k.Members))
	for _, m := range k.Members {
		id := VarID(m)
		in := l.instrs[id]
		args, err := l.Args(in, local)
		if err != nil {
			return err
		}
		out, err := exec(in, args)
		if err != nil {
			return errors.Wrapf(err, "kernel %s", k.Name)
		}
		local[id] = out
	}
	for _, o := range k.Outputs {
		if err := l.SetOutput(VarID(o), local[VarID(o)]); err != nil {
			return err
		}
	}
	return nil
}

// Interpreter is the reference backend: it runs every kernel sequentially
// through Apply.
type Interpreter struct{}

func (Interpreter) Name() string { return "interpreter" }

func (Interpreter) Flush(ctx context.Context, l *Launch) error {
	for _, k := range l.Kernels() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Run(k, Apply); err != nil {
			return err
		}
	}
	return nil
}

// Eval materializes every pending variable the arrays depend on.
func (t *Trace) Eval(arrays ...*Array) error {
	return t.EvalContext(context.Background(), arrays...)
}

// EvalContext is Eval with a context passed to the backend. The flush is
// atomic: on failure every variable keeps its state and the error wraps
// ErrBackend.
func (t *Trace) EvalContext(ctx context.Context, arrays ...*Array) error {
	var roots []VarID
	for _, a := range arrays {
		if a.tr != t {
			return newError(IncompatibleType, "eval", "array belongs to a different trace")
		}
		roots = a.appendIndices(roots)
	}
	pending := t.graph.pending(roots)
	if len(pending) == 0 {
		return nil
	}

	l, err := t.launch(pending)
	if err != nil {
		return err
	}
	name := t.backend.Name()
	stats := ir.ComputeFusionStats(l.program, l.kernels)
	t.logger.Debug("flush",
		"backend", name,
		"variables", len(pending),
		"kernels", len(l.kernels),
		"fusion_groups", stats.FusionGroups,
		"eliminated_temps", stats.EliminatedTemps)

	if err := t.backend.Flush(ctx, l); err != nil {
		t.logger.Warn("flush failed", "backend", name, "error", err)
		return backendError(name, err)
	}

	// Validate every result before touching any variable.
	for _, k := range l.kernels {
		for _, o := range k.Outputs {
			id := VarID(o)
			in := l.instrs[id]
			b, ok := l.outputs[id]
			switch {
			case !ok:
				err = errors.Errorf("r%d: no result", id)
			case b.Kind() != in.Kind:
				err = errors.Errorf("r%d: result kind %s, want %s", id, b.Kind(), in.Kind)
			case b.Len() != in.Size:
				err = errors.Errorf("r%d: result length %d, want %d", id, b.Len(), in.Size)
			}
			if err != nil {
				t.logger.Warn("flush produced invalid results", "backend", name, "error", err)
				return backendError(name, err)
			}
		}
	}

	for _, v := range pending {
		if b, ok := l.outputs[v.ID]; ok {
			v.payload = b
			v.State = Evaluated
		}
	}
	for _, v := range pending {
		t.graph.detach(v)
	}
	return nil
}

func (a *Array) appendIndices(ids []VarID) []VarID {
	if a.typ.IsLeaf() {
		if a.index != 0 {
			ids = append(ids, a.index)
		}
		return ids
	}
	for _, e := range a.elems {
		ids = e.appendIndices(ids)
	}
	return ids
}

// launch builds the program and kernels for the pending variables.
func (t *Trace) launch(pending []*Variable) (*Launch, error) {
	l := &Launch{
		program: ir.NewProgram("flush"),
		instrs:  make(map[VarID]Instr, len(pending)),
		inputs:  make(map[VarID]Buffer),
		outputs: make(map[VarID]Buffer),
	}
	inSet := make(map[VarID]bool, len(pending))
	users := make(map[VarID]int)
	for _, v := range pending {
		inSet[v.ID] = true
		for _, op := range v.Operands {
			users[op]++
		}
	}

	nodes := make(map[VarID]*ir.Node)
	for _, v := range pending {
		inputs := make([]*ir.Node, len(v.Operands))
		count := 0
		for i, id := range v.Operands {
			dep := t.graph.Var(id)
			if dep == nil {
				return nil, integrity("r%d: operand r%d is not live", v.ID, id)
			}
			count = dep.Size
			n, ok := nodes[id]
			if !ok {
				kind := ir.OpKindLoad
				if dep.State == Literal {
					kind = ir.OpKindBroadcast
				}
				var err error
				if n, err = l.program.AddNode(int(id), kind, dep.Op.String(), dep.Size); err != nil {
					return nil, integrity("%v", err)
				}
				nodes[id] = n
				l.inputs[id] = dep.payload
			}
			inputs[i] = n
		}

		in := v.instr(0)
		kind, size := ir.OpKindElementwise, v.Size
		if v.Op.IsReduction() {
			in.Count = count
			kind, size = ir.OpKindReduction, count
		}
		n, err := l.program.AddNode(int(v.ID), kind, v.Op.String(), size, inputs...)
		if err != nil {
			return nil, integrity("%v", err)
		}
		n.External = v.refs > 0 || v.deps > users[v.ID]
		nodes[v.ID] = n
		l.instrs[v.ID] = in
	}
	ks, err := ir.Partition(l.program, t.Flag(KernelFusion))
	if err != nil {
		return nil, integrity("%v", err)
	}
	l.kernels = ks
	return l, nil
}
