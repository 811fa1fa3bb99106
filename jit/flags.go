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

import "strings"

// Flag is a set of optimizer switches.
type Flag uint32

const (
	// ConstantPropagation folds operations whose operands are all literals.
	ConstantPropagation Flag = 1 << iota
	// ValueNumbering reuses structurally identical operations.
	ValueNumbering
	// KernelFusion merges compatible pending operations into one kernel
	// when the trace is flushed.
	KernelFusion

	// DefaultFlags is the flag set of a new trace.
	DefaultFlags = ConstantPropagation | ValueNumbering | KernelFusion
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{ConstantPropagation, "ConstantPropagation"},
	{ValueNumbering, "ValueNumbering"},
	{KernelFusion, "KernelFusion"},
}

func (f Flag) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseFlag returns the flag with the given name.
func ParseFlag(name string) (Flag, bool) {
	for _, fn := range flagNames {
		if strings.EqualFold(fn.name, name) {
			return fn.flag, true
		}
	}
	return 0, false
}

// flagStack holds the flag frames of a trace. The innermost frame is the
// one the optimizer consults.
type flagStack struct {
	frames []Flag
}

func (s *flagStack) top() Flag {
	return s.frames[len(s.frames)-1]
}

func (s *flagStack) push(f Flag) int {
	depth := len(s.frames)
	s.frames = append(s.frames, f)
	return depth
}

// restore drops every frame at or above depth.
func (s *flagStack) restore(depth int) {
	if depth < 1 || depth > len(s.frames) {
		return
	}
	s.frames = s.frames[:depth]
}

// Flags returns the flag set currently in effect.
func (t *Trace) Flags() Flag { return t.flags.top() }

// Flag reports whether flag f is currently enabled.
func (t *Trace) Flag(f Flag) bool { return t.flags.top()&f != 0 }

// ScopedSetFlag pushes a frame with f set to value and returns the function
// that restores the previous frame:
//
//	defer tr.ScopedSetFlag(jit.ValueNumbering, false)()
//
// Restoring also drops any frame pushed after this one.
func (t *Trace) ScopedSetFlag(f Flag, value bool) func() {
	cur := t.flags.top()
	if value {
		cur |= f
	} else {
		cur &^= f
	}
	depth := t.flags.push(cur)
	return func() { t.flags.restore(depth) }
}

// WithFlag runs fn with f set to value. The previous flags are restored
// when fn returns or panics.
func (t *Trace) WithFlag(f Flag, value bool, fn func() error) error {
	defer t.ScopedSetFlag(f, value)()
	return fn()
}
