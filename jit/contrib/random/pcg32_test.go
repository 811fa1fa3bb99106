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

package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-jitrace/jit"
)

// scalarPCG is the single-stream generator every lane must agree with.
type scalarPCG struct{ state, inc uint64 }

func newScalarPCG(initState, initSeq uint64) *scalarPCG {
	r := &scalarPCG{inc: initSeq<<1 | 1}
	r.next()
	r.state += initState
	r.next()
	return r
}

func (r *scalarPCG) next() uint32 {
	old := r.state
	r.state = old*mult + r.inc
	x := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return x>>rot | x<<(-rot&31)
}

func (r *scalarPCG) nextUint64() uint64 {
	v0 := uint64(r.next())
	return v0 | uint64(r.next())<<32
}

func (r *scalarPCG) nextUint32Bounded(bound uint32) uint32 {
	threshold := -bound % bound
	for {
		if v := r.next(); v >= threshold {
			return v % bound
		}
	}
}

func (r *scalarPCG) nextUint64Bounded(bound uint64) uint64 {
	threshold := -bound % bound
	for {
		if v := r.nextUint64(); v >= threshold {
			return v % bound
		}
	}
}

func lanes(n int, seed, seq uint64) []*scalarPCG {
	refs := make([]*scalarPCG, n)
	for i := range refs {
		refs[i] = newScalarPCG(seed, seq+uint64(i))
	}
	return refs
}

// values evaluates a draw, releases it and returns its lanes.
func values[T jit.Elements](t *testing.T) func(*jit.Array, error) []T {
	return func(a *jit.Array, err error) []T {
		t.Helper()
		require.NoError(t, err)
		v, err := jit.Get[T](a)
		require.NoError(t, err)
		a.Release()
		return v
	}
}

func draw(t *testing.T, p *PCG32) []uint32 {
	t.Helper()
	u, err := p.NextUint32()
	require.NoError(t, err)
	require.Equal(t, jit.ArrayXu, u.Type())
	v, err := jit.Get[uint32](u)
	require.NoError(t, err)
	u.Release()
	return v
}

func TestLanesMatchScalarGenerator(t *testing.T) {
	const lanes = 4
	for _, seed := range []struct{ state, seq uint64 }{
		{DefaultState, DefaultStream},
		{42, 54},
		{0, 0},
	} {
		p, err := New(jit.NewTrace(), lanes, seed.state, seed.seq)
		require.NoError(t, err)
		refs := make([]*scalarPCG, lanes)
		for i := range refs {
			refs[i] = newScalarPCG(seed.state, seed.seq+uint64(i))
		}
		for step := range 8 {
			got := draw(t, p)
			for i, r := range refs {
				assert.Equal(t, r.next(), got[i], "seed %v lane %d step %d", seed, i, step)
			}
		}
	}
}

func TestLanesAreIndependent(t *testing.T) {
	p, err := New(jit.NewTrace(), 2, DefaultState, DefaultStream)
	require.NoError(t, err)
	v := draw(t, p)
	assert.NotEqual(t, v[0], v[1])
}

func TestSeedClampsSize(t *testing.T) {
	p, err := New(jit.NewTrace(), 0, DefaultState, DefaultStream)
	require.NoError(t, err)
	assert.Len(t, draw(t, p), 1)
}

func TestAdvance(t *testing.T) {
	tr := jit.NewTrace()
	seq, err := New(tr, 3, 7, 11)
	require.NoError(t, err)
	var want [][]uint32
	for range 6 {
		want = append(want, draw(t, seq))
	}

	p, err := New(tr, 3, 7, 11)
	require.NoError(t, err)
	require.NoError(t, p.Advance(5))
	assert.Equal(t, want[5], draw(t, p))

	require.NoError(t, p.Advance(-6))
	assert.Equal(t, want[0], draw(t, p))

	require.NoError(t, p.Advance(0))
	assert.Equal(t, want[1], draw(t, p))
}

func TestNextFloat32(t *testing.T) {
	const lanes = 64
	p, err := New(jit.NewTrace(), lanes, DefaultState, DefaultStream)
	require.NoError(t, err)
	ref := newScalarPCG(DefaultState, DefaultStream)

	for range 4 {
		f, err := p.NextFloat32()
		require.NoError(t, err)
		require.Equal(t, jit.ArrayXf, f.Type())
		got, err := jit.Get[float32](f)
		require.NoError(t, err)
		for _, x := range got {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
		assert.Equal(t, float32(ref.next()>>8)/(1<<24), got[0])
	}
}

func TestNextUint64AndFloat64(t *testing.T) {
	p, err := New(jit.NewTrace(), 5, 42, 54)
	require.NoError(t, err)
	refs := lanes(5, 42, 54)
	for range 3 {
		u, err := p.NextUint64()
		require.NoError(t, err)
		require.Equal(t, jit.ArrayXu64, u.Type())
		got := values[uint64](t)(u, err)
		for i, r := range refs {
			assert.Equal(t, r.nextUint64(), got[i], "lane %d", i)
		}

		f, err := p.NextFloat64()
		require.NoError(t, err)
		require.Equal(t, jit.ArrayXf64, f.Type())
		fs := values[float64](t)(f, err)
		for i, r := range refs {
			assert.Equal(t, float64(r.nextUint64()>>11)/(1<<53), fs[i], "lane %d", i)
		}
	}
}

func TestMaskedDrawsHoldState(t *testing.T) {
	tr := jit.NewTrace()
	p, err := New(tr, 4, DefaultState, DefaultStream)
	require.NoError(t, err)
	refs := lanes(4, DefaultState, DefaultStream)
	mask := tr.MustNew(jit.ArrayXb, []bool{true, false, true, false})
	defer mask.Release()

	first := values[uint32](t)(p.NextUint32Masked(mask))
	second := values[uint32](t)(p.NextUint32())
	for i, r := range refs {
		assert.Equal(t, r.next(), first[i], "lane %d", i)
		if i%2 == 1 {
			assert.Equal(t, first[i], second[i], "lane %d did not advance", i)
		} else {
			assert.Equal(t, r.next(), second[i], "lane %d", i)
		}
	}

	// Masked off entirely: nothing moves.
	a := values[uint32](t)(p.NextUint32Masked(false))
	b := values[uint32](t)(p.NextUint32Masked(false))
	assert.Equal(t, a, b)
}

func TestBoundedDraws(t *testing.T) {
	for _, bound := range []uint32{1, 6, 1 << 31, 1<<31 + 1} {
		p, err := New(jit.NewTrace(), 8, 7, 3)
		require.NoError(t, err)
		refs := lanes(8, 7, 3)
		for step := range 4 {
			got := values[uint32](t)(p.NextUint32Bounded(bound))
			for i, r := range refs {
				assert.Equal(t, r.nextUint32Bounded(bound), got[i], "bound %d lane %d step %d", bound, i, step)
			}
		}
	}
	for _, bound := range []uint64{10, 1<<63 + 1} {
		p, err := New(jit.NewTrace(), 8, 7, 3)
		require.NoError(t, err)
		refs := lanes(8, 7, 3)
		for step := range 4 {
			got := values[uint64](t)(p.NextUint64Bounded(bound))
			for i, r := range refs {
				assert.Equal(t, r.nextUint64Bounded(bound), got[i], "bound %d lane %d step %d", bound, i, step)
			}
		}
	}

	p, err := New(jit.NewTrace(), 2, 7, 3)
	require.NoError(t, err)
	_, err = p.NextUint32Bounded(0)
	assert.ErrorIs(t, err, jit.ErrUnsupportedOperand)
}

func TestBoundedMaskedDraws(t *testing.T) {
	tr := jit.NewTrace()
	p, err := New(tr, 4, 1, 2)
	require.NoError(t, err)
	refs := lanes(4, 1, 2)
	mask := tr.MustNew(jit.ArrayXb, []bool{false, true, true, false})
	defer mask.Release()

	got := values[uint32](t)(p.NextUint32BoundedMasked(1<<31+1, mask))
	for i, r := range refs {
		if i == 0 || i == 3 {
			assert.Zero(t, got[i], "lane %d", i)
			continue
		}
		assert.Equal(t, r.nextUint32Bounded(1<<31+1), got[i], "lane %d", i)
	}
	next := draw(t, p)
	for i, r := range refs {
		assert.Equal(t, r.next(), next[i], "lane %d", i)
	}
}

func TestDistance(t *testing.T) {
	tr := jit.NewTrace()
	a, err := New(tr, 3, 5, 9)
	require.NoError(t, err)
	b, err := a.Advanced(17)
	require.NoError(t, err)

	assert.Equal(t, []int64{17, 17, 17}, values[int64](t)(b.Distance(a)))
	assert.Equal(t, []int64{-17, -17, -17}, values[int64](t)(a.Distance(b)))
	assert.Equal(t, []int64{0, 0, 0}, values[int64](t)(a.Distance(a)))

	for range 4 {
		draw(t, a)
	}
	d, err := b.Distance(a)
	require.NoError(t, err)
	require.Equal(t, jit.ArrayXi64, d.Type())
	assert.Equal(t, []int64{13, 13, 13}, values[int64](t)(d, err))
}

func TestAdvancedLeavesOriginal(t *testing.T) {
	tr := jit.NewTrace()
	p, err := New(tr, 2, 3, 4)
	require.NoError(t, err)
	q, err := p.Advanced(1)
	require.NoError(t, err)
	c := p.Clone()
	first := draw(t, p)
	second := draw(t, p)
	assert.Equal(t, second, draw(t, q), "copy starts one step ahead")
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, draw(t, c))
}

func TestDrawsKeepGraphBounded(t *testing.T) {
	tr := jit.NewTrace()
	p, err := New(tr, 4, DefaultState, DefaultStream)
	require.NoError(t, err)
	var settled int
	for i := range 200 {
		values[float32](t)(p.NextFloat32())
		values[uint32](t)(p.NextUint32Bounded(6))
		if i == 10 {
			settled = tr.Graph().Len()
		}
	}
	assert.Equal(t, settled, tr.Graph().Len())
	assert.Less(t, settled, 32)

	require.NoError(t, p.Advance(-1000))
	q, err := p.Advanced(3)
	require.NoError(t, err)
	q.Release()
	p.Release()
}
