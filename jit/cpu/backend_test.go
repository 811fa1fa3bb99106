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

package cpu

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ajroetker/go-jitrace/jit"
)

type results struct {
	Z   []float32
	Sum []float32
	J   []int32
	M   []bool
}

// workload traces a mix of elementwise, select and reduction operations
// over n elements and evaluates it.
func workload(t *testing.T, tr *jit.Trace, n int) results {
	t.Helper()
	xs := make([]float32, n)
	is := make([]int32, n)
	for i := range n {
		xs[i] = float32(i%97) - 40
		is[i] = int32(i * 7)
	}
	must := func(a *jit.Array, err error) *jit.Array {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return a
	}
	x := must(tr.New(jit.ArrayXf, xs))
	y := must(must(x.Mul(x)).Add(3))
	neg := must(y.Neg())
	z := must(jit.Select(must(y.Gt(100)), y, neg))
	s := must(z.Sum())
	i := must(tr.New(jit.ArrayXi, is))
	j := must(must(i.Shl(2)).Xor(i))
	m := must(j.Lt(x))

	if err := tr.Eval(z, s, j, m); err != nil {
		t.Fatal(err)
	}
	var r results
	var err error
	if r.Z, err = jit.Get[float32](z); err != nil {
		t.Fatal(err)
	}
	if r.Sum, err = jit.Get[float32](s); err != nil {
		t.Fatal(err)
	}
	if r.J, err = jit.Get[int32](j); err != nil {
		t.Fatal(err)
	}
	if r.M, err = jit.Get[bool](m); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestBackendMatchesInterpreter(t *testing.T) {
	const n = 1000
	want := workload(t, jit.NewTrace(), n)

	for _, tc := range []struct {
		name  string
		flags jit.Flag
		opts  []Option
	}{
		{"default", jit.DefaultFlags, nil},
		{"small chunks", jit.DefaultFlags, []Option{WithChunkSize(1), WithWorkers(4)}},
		{"unfused", jit.DefaultFlags &^ jit.KernelFusion, []Option{WithChunkSize(64), WithWorkers(3)}},
		{"single worker", jit.DefaultFlags, []Option{WithWorkers(1)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tr := jit.NewTrace(jit.WithBackend(New(tc.opts...)), jit.WithFlags(tc.flags))
			got := workload(t, tr, n)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("results differ from the interpreter (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackendCanceled(t *testing.T) {
	tr := jit.NewTrace(jit.WithBackend(New()))
	x, err := tr.New(jit.ArrayXf, []float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	y, err := x.Add(1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tr.EvalContext(ctx, y)
	if !errors.Is(err, jit.ErrBackend) {
		t.Fatalf("EvalContext(canceled) = %v, want backend error", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}
	if y.State() != jit.Normal {
		t.Errorf("state after failed flush = %s, want normal", y.State())
	}
	// The same trace still evaluates once the context allows it.
	vals, err := jit.Get[float32](y)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{2, 3, 4}, vals); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestBackendConfig(t *testing.T) {
	b := New(WithChunkSize(10), WithWorkers(-1))
	if !strings.HasPrefix(b.Name(), "cpu-") {
		t.Errorf("Name() = %q, want cpu- prefix", b.Name())
	}
	if b.Workers() < 1 {
		t.Errorf("Workers() = %d, want GOMAXPROCS", b.Workers())
	}
	lanes := Lanes(1)
	if c := b.ChunkSize(); c < 10 || c%lanes != 0 {
		t.Errorf("ChunkSize() = %d, want a multiple of %d that is at least 10", c, lanes)
	}
}
