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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInPlaceAliasing(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXi, 1, 2, 3)
	alias := a

	r, err := a.IAdd(1)
	require.NoError(t, err)
	assert.Same(t, a, r)
	assert.Equal(t, []int32{2, 3, 4}, values[int32](t, alias))

	// A clone is a separate binding and keeps the old value.
	snapshot := a.Clone()
	_, err = a.IMul(10)
	require.NoError(t, err)
	assert.Equal(t, []int32{20, 30, 40}, values[int32](t, alias))
	assert.Equal(t, []int32{2, 3, 4}, values[int32](t, snapshot))
}

func TestInPlaceWidening(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXi, 1, 2, 3)
	r, err := a.IAdd(1.5)
	require.NoError(t, err)
	assert.NotSame(t, a, r)
	assert.Equal(t, ArrayXf, r.Type())
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, values[float32](t, r))
	assert.Equal(t, []int32{1, 2, 3}, values[int32](t, a), "receiver is untouched")
}

func TestInPlaceScalarReceiver(t *testing.T) {
	tr := NewTrace()
	s := tr.MustNew(Scalar(KindFloat32), 2)
	r, err := s.IMul(3)
	require.NoError(t, err)
	assert.NotSame(t, s, r)
	assert.Equal(t, []float32{6}, values[float32](t, r))
	assert.Equal(t, []float32{2}, values[float32](t, s))
}

func TestInPlaceUniqueLiteral(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXi, 5)
	id := a.Index()
	require.True(t, a.Variable().unique())

	r, err := a.IAdd(1)
	require.NoError(t, err)
	assert.Same(t, a, r)
	assert.Equal(t, id, a.Index(), "a unique literal is updated in place")
	assert.Equal(t, Literal, a.State())
	assert.Equal(t, []int32{6}, values[int32](t, a))

	// Shared literals are never overwritten.
	b := tr.MustNew(ArrayXi, 6)
	shared := a.Index() == b.Index()
	_, err = a.IAdd(1)
	require.NoError(t, err)
	assert.Equal(t, []int32{6}, values[int32](t, b))
	assert.Equal(t, []int32{7}, values[int32](t, a))
	if shared {
		assert.NotEqual(t, b.Index(), a.Index())
	}
}

func TestInPlaceRebindsPending(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXf, 1, 2)
	before := a.Index()
	_, err := a.ISub(0.5)
	require.NoError(t, err)
	assert.NotEqual(t, before, a.Index())
	assert.Equal(t, Normal, a.State())
	assert.Equal(t, []float32{0.5, 1.5}, values[float32](t, a))
	assert.Nil(t, tr.Var(before), "the old data is collected once nothing uses it")
}

func TestInPlaceAggregate(t *testing.T) {
	tr := NewTrace()
	v := tr.MustNew(Array3Xf, []float32{1, 2}, []float32{3, 4}, []float32{5, 6})
	x := v.X()

	r, err := v.IAdd(tr.MustNew(ArrayXf, 10, 100))
	require.NoError(t, err)
	assert.Same(t, v, r)
	assert.Same(t, x, v.X(), "component handles survive")
	assert.Equal(t, []float32{11, 102}, values[float32](t, x))
	assert.Equal(t, []float32{15, 106}, values[float32](t, v.Z()))

	// Updating a component in place is visible through the parent.
	_, err = v.Y().IMul(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{26, 208}, values[float32](t, v.Entry(1)))
}

func TestInPlaceBitwise(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXu, 0xf0, 0x0f)
	for _, step := range []struct {
		op   func(any) (*Array, error)
		arg  any
		want []uint32
	}{
		{a.IOr, uint32(0x100), []uint32{0x1f0, 0x10f}},
		{a.IAnd, uint32(0x1f), []uint32{0x10, 0x0f}},
		{a.IXor, uint32(0xff), []uint32{0xef, 0xf0}},
		{a.IShl, uint32(4), []uint32{0xef0, 0xf00}},
		{a.IShr, uint32(8), []uint32{0xe, 0xf}},
		{a.IFloorDiv, uint32(2), []uint32{7, 7}},
	} {
		r, err := step.op(step.arg)
		require.NoError(t, err)
		require.Same(t, a, r)
		assert.Equal(t, step.want, values[uint32](t, a))
	}

	f := tr.MustNew(ArrayXf, 3)
	r, err := f.IDiv(2)
	require.NoError(t, err)
	assert.Same(t, f, r)
	assert.Equal(t, []float32{1.5}, values[float32](t, f))
}

func TestInPlaceErrorLeavesReceiver(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXf, 1, 2, 3)
	id := a.Index()
	_, err := a.IAdd(tr.MustNew(ArrayXf, 1, 2))
	assert.ErrorIs(t, err, ErrIncompatibleSize)
	assert.Equal(t, id, a.Index())
}

func TestInPlaceNestedGrowth(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXXi, 1)
	require.Equal(t, 1, a.Len())
	first := a.Entry(0)

	r, err := a.IAdd(tr.MustNew(ArrayXXi, []int{1, 2, 3}, 2, 3))
	require.NoError(t, err)
	assert.Same(t, a, r)
	require.Equal(t, 3, a.Len())
	assert.Same(t, first, a.Entry(0), "existing components keep their handles")
	assert.Equal(t, []int{3, 1, 1}, []int{a.Entry(0).Len(), a.Entry(1).Len(), a.Entry(2).Len()})
	assert.Equal(t, []int32{2, 3, 4}, values[int32](t, a.Entry(0)))
	assert.Equal(t, []int32{3}, values[int32](t, a.Entry(1)))
	assert.Equal(t, []int32{4}, values[int32](t, a.Entry(2)))
}
