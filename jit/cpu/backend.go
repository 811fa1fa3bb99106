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

// Package cpu provides a parallel CPU backend for jit traces.
//
// Kernels of the same level run concurrently, and long elementwise
// instructions are split into lane-aligned chunks that run in parallel.
// Every chunk is computed with jit.Apply, so results match the reference
// interpreter exactly.
package cpu

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-jitrace/jit"
	"github.com/ajroetker/go-jitrace/jit/ir"
)

// DefaultChunkVectors is the number of vectors per parallel chunk.
const DefaultChunkVectors = 1024

// Backend runs kernels on the host CPU.
type Backend struct {
	workers int
	chunk   int // elements per chunk, a multiple of the widest lane count
}

// Option configures a Backend.
type Option func(*Backend)

// WithWorkers bounds the number of goroutines used by one flush. Zero or a
// negative value uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *Backend) { b.workers = n }
}

// WithChunkSize sets the number of elements per chunk. It is rounded up
// to a whole number of vectors.
func WithChunkSize(n int) Option {
	return func(b *Backend) { b.chunk = n }
}

// New creates a CPU backend for the detected dispatch level.
func New(opts ...Option) *Backend {
	b := &Backend{chunk: DefaultChunkVectors * Lanes(1)}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	lanes := Lanes(1)
	b.chunk = max(lanes, (b.chunk+lanes-1)/lanes*lanes)
	return b
}

// Name identifies the backend and its dispatch level.
func (b *Backend) Name() string { return "cpu-" + CurrentName() }

// Workers returns the goroutine bound.
func (b *Backend) Workers() int { return b.workers }

// ChunkSize returns the number of elements per chunk.
func (b *Backend) ChunkSize() int { return b.chunk }

// Flush runs the kernels level by level.
func (b *Backend) Flush(ctx context.Context, l *jit.Launch) error {
	kernels := l.Kernels()
	for start := 0; start < len(kernels); {
		end := start
		for end < len(kernels) && kernels[end].Level == kernels[start].Level {
			end++
		}
		if err := b.level(ctx, l, kernels[start:end]); err != nil {
			return err
		}
		start = end
	}
	return nil
}

func (b *Backend) level(ctx context.Context, l *jit.Launch, ks []ir.Kernel) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, k := range ks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.Run(k, func(in jit.Instr, args []jit.Buffer) (jit.Buffer, error) {
				return b.exec(ctx, in, args)
			})
		})
	}
	return g.Wait()
}

// exec computes one instruction, splitting elementwise work into chunks.
func (b *Backend) exec(ctx context.Context, in jit.Instr, args []jit.Buffer) (jit.Buffer, error) {
	if in.Op.IsReduction() || in.Size <= b.chunk || b.workers == 1 {
		return jit.Apply(in, args)
	}

	out := jit.NewBuffer(in.Kind, in.Size)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for lo := 0; lo < in.Size; lo += b.chunk {
		hi := min(lo+b.chunk, in.Size)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			part := in
			part.Size = hi - lo
			chunk := make([]jit.Buffer, len(args))
			for i, a := range args {
				chunk[i] = a.Slice(lo, hi)
			}
			res, err := jit.Apply(part, chunk)
			if err != nil {
				return errors.Wrapf(err, "r%d[%d:%d]", in.ID, lo, hi)
			}
			out.CopyFrom(lo, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return jit.Buffer{}, err
	}
	return out, nil
}
