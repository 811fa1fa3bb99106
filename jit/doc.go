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

// Package jit records array arithmetic into a trace graph and evaluates it
// lazily.
//
// Operations on an Array do not compute anything. They promote their
// operands to a common ArrayType, fold constants, reuse structurally
// identical nodes, and append the rest to the graph of the owning Trace.
// Reading data (Array.Data, Get, All, Allclose) or calling Trace.Eval
// flushes the pending nodes to a Backend:
//
//	tr := jit.NewTrace()
//	a := tr.MustNew(jit.ArrayXf, 1, 2, 3)
//	b, _ := a.Mul(2)
//	c, _ := b.Add(a)
//	vals, _ := jit.Get[float32](c) // [3 6 9]
//
// Constant propagation, value numbering and kernel fusion are controlled
// by scoped flags on the trace:
//
//	defer tr.ScopedSetFlag(jit.ValueNumbering, false)()
//
// A Trace and its arrays must be used from one goroutine at a time.
package jit
