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

func TestAggregateStates(t *testing.T) {
	tr := NewTrace()
	v := tr.MustNew(Array3Xi, 1, 2, 3)
	assert.Equal(t, Literal, v.State())

	require.NoError(t, v.SetX(tr.MustNew(ArrayXi, 1, 2, 3)))
	assert.Equal(t, Evaluated, v.X().State())
	assert.Equal(t, Mixed, v.State())

	require.NoError(t, v.SetZ(tr.Empty(ArrayXi)))
	assert.Equal(t, Invalid, v.Z().State())
	assert.Equal(t, Mixed, v.State())

	assert.Equal(t, Invalid, tr.Empty(Array3Xf).State())
}

func TestStateTransitions(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXf, 1, 2)
	assert.Equal(t, Evaluated, a.State())
	b, err := a.Mul(3)
	require.NoError(t, err)
	assert.Equal(t, Normal, b.State())

	v2, err := tr.New(NewType(KindFloat32, 2, Dynamic), a, b)
	require.NoError(t, err)
	assert.Equal(t, Mixed, v2.State())
	assert.Equal(t, 2, a.Variable().Refs(), "components hold their own handles")

	require.NoError(t, tr.Eval(v2))
	assert.Equal(t, Evaluated, b.State())
	assert.Equal(t, Evaluated, v2.State())
	assert.Equal(t, []float32{3, 6}, values[float32](t, v2.Y()))

	v2.Release()
	assert.Equal(t, Invalid, v2.State())
	assert.Equal(t, 1, a.Variable().Refs())
}

func TestSetEntry(t *testing.T) {
	tr := NewTrace()
	v := tr.MustNew(Array3Xf, 0)
	x := tr.MustNew(ArrayXf, 4, 5)
	require.NoError(t, v.SetY(x))
	assert.NotSame(t, x, v.Y(), "components are stored as their own handles")
	assert.Equal(t, x.Index(), v.Y().Index())

	// Host values are converted to the component type.
	require.NoError(t, v.SetX(1))
	require.NoError(t, v.SetEntry(2, []int{7, 8}))
	assert.Equal(t, []float32{7, 8}, values[float32](t, v.Z()))

	assert.ErrorIs(t, v.SetEntry(3, 1), ErrIncompatibleSize)
	assert.ErrorIs(t, x.SetX(1), ErrIncompatibleType)
	assert.Panics(t, func() { x.Entry(0) })
}

func TestPayloadOfPendingVariable(t *testing.T) {
	tr := NewTrace()
	a := tr.MustNew(ArrayXi, 1, 2)
	b, err := a.Add(a)
	require.NoError(t, err)
	_, err = b.Variable().Payload()
	assert.ErrorIs(t, err, ErrUninitializedValue)

	var missing *Variable
	_, err = missing.Payload()
	assert.ErrorIs(t, err, ErrUninitializedValue)

	p, err := a.Variable().Payload()
	require.NoError(t, err)
	assert.Equal(t, "[1 2]", p.String())
}

func TestArrayString(t *testing.T) {
	tr := NewTrace(WithFlags(0))
	a := tr.MustNew(ArrayXi, 1, 2)
	b, err := a.Add(1)
	require.NoError(t, err)
	assert.Equal(t, "ArrayXi[1 2]", a.String())
	assert.Equal(t, "ArrayXi(r3 pending)", b.String())
	assert.Equal(t, "ArrayXi(invalid)", tr.Empty(ArrayXi).String())
	v := tr.MustNew(Array2f, 0.5)
	assert.Equal(t, "Array2f[0.5]", v.String())

	item, err := b.Item(1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), item)
	_, err = b.Item(2)
	assert.ErrorIs(t, err, ErrIncompatibleSize)
}

type interchange struct{ vals []float64 }

func (x interchange) Kind() Kind      { return KindFloat64 }
func (x interchange) Len() int        { return len(x.vals) }
func (x interchange) Index(i int) any { return x.vals[i] }

func TestFromInterchange(t *testing.T) {
	tr := NewTrace()
	a, err := tr.FromInterchange(ArrayXf, interchange{[]float64{0.5, 1.5, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, Evaluated, a.State())
	assert.Equal(t, []float32{0.5, 1.5, 2.5}, values[float32](t, a))

	_, err = tr.FromInterchange(Array3Xf, interchange{})
	assert.ErrorIs(t, err, ErrIncompatibleType)
	_, err = tr.FromInterchange(Array2f, interchange{[]float64{1, 2, 3}})
	assert.ErrorIs(t, err, ErrIncompatibleSize)
}
