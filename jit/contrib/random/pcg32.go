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

// Package random implements the PCG32 generator over traced arrays. Each
// lane is an independent stream; drawing a number records operations on
// the trace and evaluates nothing, except for the bounded draws, which
// evaluate once per rejection round.
package random

import (
	"github.com/ajroetker/go-jitrace/jit"
)

const (
	DefaultState  uint64 = 0x853c49e6748fea9b
	DefaultStream uint64 = 0xda3e39cb94b95bdb

	mult uint64 = 0x5851f42d4c957f2d
)

// PCG32 holds one generator per lane. The generator owns State and Inc;
// callers must not release them.
type PCG32 struct {
	tr    *jit.Trace
	State *jit.Array // ArrayXu64
	Inc   *jit.Array // ArrayXu64, always odd
}

// New creates size generators seeded with initState and stream
// initSeq + lane.
func New(tr *jit.Trace, size int, initState, initSeq uint64) (*PCG32, error) {
	p := &PCG32{tr: tr}
	if err := p.Seed(size, initState, initSeq); err != nil {
		return nil, err
	}
	return p, nil
}

// Clone returns an independent copy of the generators.
func (p *PCG32) Clone() *PCG32 {
	return &PCG32{tr: p.tr, State: p.State.Clone(), Inc: p.Inc.Clone()}
}

// Release drops the generator state.
func (p *PCG32) Release() {
	if p.State != nil {
		p.State.Release()
	}
	if p.Inc != nil {
		p.Inc.Release()
	}
}

// Seed reinitializes the generators.
func (p *PCG32) Seed(size int, initState, initSeq uint64) error {
	if size < 1 {
		size = 1
	}
	lanes := make([]uint64, size)
	for i := range lanes {
		lanes[i] = uint64(i)
	}

	var s scope
	defer s.close()
	idx := s.track(p.tr.New(jit.ArrayXu64, lanes))
	seq := s.do(idx.Add, initSeq)
	seq = s.do(seq.Shl, 1)
	inc := s.do(seq.Or, uint64(1))
	state := s.track(p.tr.New(jit.ArrayXu64, uint64(0)))
	if s.err != nil {
		return s.err
	}
	p.Release()
	p.Inc, p.State = s.keep(inc), s.keep(state)

	if err := p.discard(); err != nil {
		return err
	}
	next := s.do(p.State.Add, initState)
	if s.err != nil {
		return s.err
	}
	p.State.Release()
	p.State = s.keep(next)
	return p.discard()
}

func (p *PCG32) discard() error {
	u, err := p.NextUint32()
	if err != nil {
		return err
	}
	u.Release()
	return nil
}

// step advances the lanes selected by mask and returns the previous state,
// which s owns.
func (p *PCG32) step(s *scope, mask any) *jit.Array {
	old := p.State
	next := s.fma(old, mult, p.Inc)
	if !isTrue(mask) {
		next = s.sel(mask, next, old)
	}
	if s.err != nil {
		return nil
	}
	p.State = s.keep(next)
	s.temps = append(s.temps, old)
	return old
}

func (p *PCG32) nextUint32(s *scope, mask any) *jit.Array {
	old := p.step(s, mask)
	// xorshifted = uint32(((old >> 18) ^ old) >> 27)
	x := s.do(old.Shr, 18)
	x = s.do(x.Xor, old)
	x = s.do(x.Shr, 27)
	x = s.cast(x, jit.KindUInt32)
	// rot = uint32(old >> 59)
	rot := s.do(old.Shr, 59)
	rot = s.cast(rot, jit.KindUInt32)
	// (x >> rot) | (x << (-rot & 31))
	neg := s.invert(rot)
	neg = s.do(neg.Add, uint32(1))
	neg = s.do(neg.And, uint32(31))
	hi := s.do(x.Shr, rot)
	lo := s.do(x.Shl, neg)
	return s.do(hi.Or, lo)
}

// nextUint64 joins two consecutive draws, the first in the low half.
func (p *PCG32) nextUint64(s *scope, mask any) *jit.Array {
	v0 := s.cast(p.nextUint32(s, mask), jit.KindUInt64)
	v1 := s.cast(p.nextUint32(s, mask), jit.KindUInt64)
	v1 = s.do(v1.Shl, 32)
	return s.do(v0.Or, v1)
}

// NextUint32 draws one uint32 per lane (ArrayXu).
func (p *PCG32) NextUint32() (*jit.Array, error) { return p.NextUint32Masked(true) }

// NextUint32Masked draws like NextUint32 but only advances the lanes where
// mask (a bool or an ArrayXb) is true. Lanes left alone repeat their value
// on the next draw.
func (p *PCG32) NextUint32Masked(mask any) (*jit.Array, error) {
	var s scope
	defer s.close()
	return s.result(p.nextUint32(&s, mask))
}

// NextUint64 draws one uint64 per lane (ArrayXu64) from two steps.
func (p *PCG32) NextUint64() (*jit.Array, error) { return p.NextUint64Masked(true) }

func (p *PCG32) NextUint64Masked(mask any) (*jit.Array, error) {
	var s scope
	defer s.close()
	return s.result(p.nextUint64(&s, mask))
}

// NextFloat32 draws one float per lane, uniform on [0, 1) (ArrayXf).
func (p *PCG32) NextFloat32() (*jit.Array, error) { return p.NextFloat32Masked(true) }

func (p *PCG32) NextFloat32Masked(mask any) (*jit.Array, error) {
	var s scope
	defer s.close()
	u := p.nextUint32(&s, mask)
	f := s.do(u.Shr, 8)
	f = s.cast(f, jit.KindFloat32)
	f = s.do(f.Mul, float32(1.0/(1<<24)))
	return s.result(f)
}

// NextFloat64 draws one double per lane, uniform on [0, 1) (ArrayXf64).
func (p *PCG32) NextFloat64() (*jit.Array, error) { return p.NextFloat64Masked(true) }

func (p *PCG32) NextFloat64Masked(mask any) (*jit.Array, error) {
	var s scope
	defer s.close()
	u := p.nextUint64(&s, mask)
	f := s.do(u.Shr, 11)
	f = s.cast(f, jit.KindFloat64)
	f = s.do(f.Mul, 1.0/(1<<53))
	return s.result(f)
}

// NextUint32Bounded draws uniformly from [0, bound) per lane. Draws below
// 2^32 mod bound are rejected and redrawn so the modulo is unbiased.
func (p *PCG32) NextUint32Bounded(bound uint32) (*jit.Array, error) {
	return p.NextUint32BoundedMasked(bound, true)
}

func (p *PCG32) NextUint32BoundedMasked(bound uint32, mask any) (*jit.Array, error) {
	if bound == 0 {
		return nil, zeroBound("next_uint32_bounded")
	}
	return p.bounded(jit.ArrayXu, bound, -bound%bound, mask, p.nextUint32)
}

// NextUint64Bounded draws uniformly from [0, bound) per lane.
func (p *PCG32) NextUint64Bounded(bound uint64) (*jit.Array, error) {
	return p.NextUint64BoundedMasked(bound, true)
}

func (p *PCG32) NextUint64BoundedMasked(bound uint64, mask any) (*jit.Array, error) {
	if bound == 0 {
		return nil, zeroBound("next_uint64_bounded")
	}
	return p.bounded(jit.ArrayXu64, bound, -bound%bound, mask, p.nextUint64)
}

// bounded redraws the active lanes whose draw falls below threshold until
// none is left. It evaluates the trace once per round.
func (p *PCG32) bounded(typ jit.ArrayType, bound, threshold, mask any,
	draw func(*scope, any) *jit.Array) (*jit.Array, error) {
	var s scope
	defer s.close()
	active := s.mask(p.tr, mask)
	result := s.track(p.tr.New(typ, 0))
	for s.err == nil {
		r := draw(&s, active)
		ok := s.do(r.Ge, threshold)
		ok = s.do(ok.And, active)
		q := s.do(r.FloorDiv, bound)
		q = s.do(q.Mul, bound)
		mod := s.do(r.Sub, q)
		result = s.sel(ok, mod, result)
		rejected := s.invert(ok)
		active = s.do(active.And, rejected)
		if s.err != nil {
			break
		}
		more, err := jit.Any(active)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return s.result(result)
}

// Advance moves every lane delta steps forward (or backward when delta is
// negative) in O(log |delta|) operations.
func (p *PCG32) Advance(delta int64) error {
	var s scope
	defer s.close()
	d := uint64(delta)
	curMult, accMult := mult, uint64(1)
	curPlus := p.Inc
	accPlus := s.track(p.tr.New(jit.ArrayXu64, uint64(0)))
	for d > 0 && s.err == nil {
		if d&1 != 0 {
			accMult *= curMult
			t := s.do(accPlus.Mul, curMult)
			accPlus = s.do(t.Add, curPlus)
		}
		curPlus = s.do(curPlus.Mul, curMult+1)
		curMult *= curMult
		d >>= 1
	}
	next := s.fma(p.State, accMult, accPlus)
	if s.err != nil {
		return s.err
	}
	p.State.Release()
	p.State = s.keep(next)
	return nil
}

// Advanced returns a copy of p moved delta steps; p is unchanged.
func (p *PCG32) Advanced(delta int64) (*PCG32, error) {
	q := p.Clone()
	if err := q.Advance(delta); err != nil {
		q.Release()
		return nil, err
	}
	return q, nil
}

// Distance returns per lane the number of steps that takes other to p, as
// ArrayXi64. The generators must share their streams.
func (p *PCG32) Distance(other *PCG32) (*jit.Array, error) {
	var s scope
	defer s.close()
	curMult := mult
	curPlus := p.Inc
	curState := other.State
	distance := s.track(p.tr.New(jit.ArrayXu64, uint64(0)))
	for bit := range 64 {
		theBit := uint64(1) << bit
		diff := s.do(p.State.Xor, curState)
		diff = s.do(diff.And, theBit)
		differs := s.do(diff.Ne, uint64(0))
		stepped := s.fma(curState, curMult, curPlus)
		curState = s.sel(differs, stepped, curState)
		set := s.do(distance.Or, theBit)
		distance = s.sel(differs, set, distance)
		curPlus = s.do(curPlus.Mul, curMult+1)
		curMult *= curMult
	}
	return s.result(s.cast(distance, jit.KindInt64))
}

func zeroBound(op string) error {
	return &jit.Error{Kind: jit.UnsupportedOperand, Op: op, Msg: "bound must be positive"}
}

func isTrue(mask any) bool {
	b, ok := mask.(bool)
	return ok && b
}

// scope threads the first error through a sequence of traced operations
// and releases the intermediate handles when closed.
type scope struct {
	err   error
	temps []*jit.Array
}

func (s *scope) track(a *jit.Array, err error) *jit.Array {
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return nil
	}
	s.temps = append(s.temps, a)
	return a
}

func (s *scope) do(op func(any) (*jit.Array, error), arg any) *jit.Array {
	if s.err != nil {
		return nil
	}
	return s.track(op(arg))
}

func (s *scope) fma(x, y, z any) *jit.Array {
	if s.err != nil {
		return nil
	}
	return s.track(jit.FMA(x, y, z))
}

func (s *scope) sel(cond, a, b any) *jit.Array {
	if s.err != nil {
		return nil
	}
	return s.track(jit.Select(cond, a, b))
}

func (s *scope) invert(x *jit.Array) *jit.Array {
	if s.err != nil {
		return nil
	}
	return s.track(x.Invert())
}

func (s *scope) cast(x *jit.Array, k jit.Kind) *jit.Array {
	if s.err != nil {
		return nil
	}
	r, err := x.Cast(k)
	if err == nil && r == x {
		return x
	}
	return s.track(r, err)
}

// mask returns an ArrayXb handle for a bool or mask array.
func (s *scope) mask(tr *jit.Trace, mask any) *jit.Array {
	if s.err != nil {
		return nil
	}
	if a, ok := mask.(*jit.Array); ok {
		return s.track(a.Clone(), nil)
	}
	return s.track(tr.New(jit.ArrayXb, mask))
}

// keep removes a from the handles released by close.
func (s *scope) keep(a *jit.Array) *jit.Array {
	for i := len(s.temps) - 1; i >= 0; i-- {
		if s.temps[i] == a {
			s.temps = append(s.temps[:i], s.temps[i+1:]...)
			break
		}
	}
	return a
}

func (s *scope) result(a *jit.Array) (*jit.Array, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keep(a), nil
}

func (s *scope) close() {
	for i := len(s.temps) - 1; i >= 0; i-- {
		s.temps[i].Release()
	}
	s.temps = nil
}
