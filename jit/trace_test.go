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
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Traces share no state, so each goroutine may own one. Run with -race.
func TestIndependentTracesConcurrently(t *testing.T) {
	const workers = 8
	var g errgroup.Group
	results := make([][]float32, workers)
	for w := range workers {
		g.Go(func() error {
			tr := NewTrace()
			base := make([]float32, 64)
			for i := range base {
				base[i] = float32(i + w)
			}
			x, err := tr.New(ArrayXf, base)
			if err != nil {
				return err
			}
			acc := x.Clone()
			for range 20 {
				// acc = acc*0.5 + x, rebound in place.
				y, err := acc.Mul(0.5)
				if err != nil {
					return err
				}
				if _, err = y.IAdd(x); err != nil {
					return err
				}
				acc.Release()
				acc = y
			}
			big, err := acc.Gt(float32(w))
			if err != nil {
				return err
			}
			clipped, err := Select(big, acc, 0)
			if err != nil {
				return err
			}
			if err := tr.Eval(acc, clipped); err != nil {
				return err
			}
			got, err := Get[float32](acc)
			if err != nil {
				return err
			}
			for i, v := range got {
				// The recurrence converges to 2x.
				if want := 2 * base[i]; v < want-0.01 || v > want+0.01 {
					return fmt.Errorf("worker %d lane %d: got %v, want %v", w, i, v, want)
				}
			}
			results[w] = got
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for w := 1; w < workers; w++ {
		require.False(t, slices.Equal(results[0], results[w]), "worker %d", w)
	}
}
