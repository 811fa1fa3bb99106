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

import "fmt"

// VarID identifies a variable within one trace graph. Zero is never
// assigned and denotes an invalid variable.
type VarID uint32

// VarState is the lifecycle state of a variable or aggregate.
type VarState uint8

const (
	// Invalid: default-constructed, no data and no graph edges.
	Invalid VarState = iota
	// Literal: a constant known at trace time.
	Literal
	// Evaluated: materialized data.
	Evaluated
	// Normal: a pending operation.
	Normal
	// Mixed: an aggregate whose components disagree.
	Mixed
)

func (s VarState) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Literal:
		return "literal"
	case Evaluated:
		return "evaluated"
	case Normal:
		return "normal"
	case Mixed:
		return "mixed"
	}
	return fmt.Sprintf("VarState(%d)", uint8(s))
}

// Variable is one node of the trace graph.
type Variable struct {
	ID       VarID
	Op       Opcode
	Kind     Kind
	Size     int
	Operands []VarID
	State    VarState

	// Literal: one element broadcast over Size. Evaluated: Size elements.
	payload Buffer

	refs int // Array handles bound to this variable
	deps int // variables that use this one as an operand

	key     nodeKey
	indexed bool
}

// Payload returns the literal or evaluated contents.
func (v *Variable) Payload() (Buffer, error) {
	if v == nil || v.State == Invalid {
		return Buffer{}, uninitialized("payload")
	}
	if v.State == Normal {
		return Buffer{}, newError(UninitializedValue, "payload", "variable r%d has not been evaluated", v.ID)
	}
	return v.payload, nil
}

// Refs returns the number of handles bound to the variable.
func (v *Variable) Refs() int { return v.refs }

// unique reports whether a single handle owns v and nothing depends on it.
func (v *Variable) unique() bool { return v.refs == 1 && v.deps == 0 }

func (v *Variable) instr(count int) Instr {
	return Instr{
		ID:       v.ID,
		Op:       v.Op,
		Kind:     v.Kind,
		Size:     v.Size,
		Count:    count,
		Operands: v.Operands,
		Payload:  v.payload,
	}
}

func (v *Variable) String() string {
	return fmt.Sprintf("r%d = %s %s[%d] %v (%s)", v.ID, v.Op, v.Kind, v.Size, v.Operands, v.State)
}
