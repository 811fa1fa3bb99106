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

// Opcode identifies the operation a variable performs.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// Sources
	OpLiteral // compile-time constant broadcast over the variable size
	OpData    // materialized device data

	// Unary
	OpCast
	OpNeg
	OpAbs
	OpNot

	// Binary arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpShl
	OpShr
	OpMin
	OpMax
	OpPow

	// Binary bit/mask
	OpAnd
	OpOr
	OpXor

	// Comparisons
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Ternary
	OpFMA
	OpSelect

	// Horizontal reductions
	OpAll
	OpAny
	OpSum

	opCount
)

type opInfo struct {
	name   string
	symbol string
	arity  int
}

var opTable = [opCount]opInfo{
	OpInvalid:  {"invalid", "?", 0},
	OpLiteral:  {"literal", "literal", 0},
	OpData:     {"data", "data", 0},
	OpCast:     {"cast", "cast", 1},
	OpNeg:      {"neg", "-", 1},
	OpAbs:      {"abs", "abs", 1},
	OpNot:      {"not", "~", 1},
	OpAdd:      {"add", "+", 2},
	OpSub:      {"sub", "-", 2},
	OpMul:      {"mul", "*", 2},
	OpDiv:      {"div", "/", 2},
	OpFloorDiv: {"floordiv", "//", 2},
	OpShl:      {"shl", "<<", 2},
	OpShr:      {"shr", ">>", 2},
	OpMin:      {"minimum", "minimum", 2},
	OpMax:      {"maximum", "maximum", 2},
	OpPow:      {"pow", "**", 2},
	OpAnd:      {"and", "&", 2},
	OpOr:       {"or", "|", 2},
	OpXor:      {"xor", "^", 2},
	OpEq:       {"eq", "==", 2},
	OpNe:       {"ne", "!=", 2},
	OpLt:       {"lt", "<", 2},
	OpLe:       {"le", "<=", 2},
	OpGt:       {"gt", ">", 2},
	OpGe:       {"ge", ">=", 2},
	OpFMA:      {"fma", "fma", 3},
	OpSelect:   {"select", "select", 3},
	OpAll:      {"all", "all", 1},
	OpAny:      {"any", "any", 1},
	OpSum:      {"sum", "sum", 1},
}

func (op Opcode) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return "unknown"
}

// Symbol returns the operator spelling used in error messages.
func (op Opcode) Symbol() string {
	if op < opCount {
		return opTable[op].symbol
	}
	return "?"
}

// Arity returns the number of operands.
func (op Opcode) Arity() int {
	if op < opCount {
		return opTable[op].arity
	}
	return 0
}

// IsComparison reports whether op yields a mask.
func (op Opcode) IsComparison() bool { return op >= OpEq && op <= OpGe }

// IsReduction reports whether op collapses its operand to one element.
func (op Opcode) IsReduction() bool { return op >= OpAll && op <= OpSum }

// IsSource reports whether op has no operands.
func (op Opcode) IsSource() bool { return op == OpLiteral || op == OpData }

// checkOperands validates that op is defined for operands of the already
// promoted type t. a and b are the original operand types, used only for
// the error message.
func checkOperands(op Opcode, t, a, b ArrayType) error {
	k := t.Kind()
	ordinary := t.Family() == FamilyArray
	ok := true
	switch op {
	case OpNeg, OpAbs:
		ok = !k.IsBool()
	case OpNot:
		ok = k.IsBool() || k.IsIntegral()
	case OpAdd, OpSub, OpMul, OpMin, OpMax, OpFMA:
		ok = !k.IsBool()
	case OpDiv, OpPow:
		ok = k.IsFloat()
	case OpFloorDiv:
		ok = k.IsIntegral()
	case OpShl, OpShr:
		ok = a.Kind().IsIntegral() && k.IsIntegral()
	case OpAnd, OpOr, OpXor:
		ok = (a.Kind().IsBool() && b.Kind().IsBool()) ||
			(a.Kind().IsIntegral() && b.Kind().IsIntegral())
	case OpEq, OpNe:
	case OpLt, OpLe, OpGt, OpGe:
		ok = !k.IsBool() && ordinary
	case OpAll, OpAny:
		ok = k.IsBool()
	case OpSum:
		ok = !k.IsBool()
	}
	if !ok {
		return unsupportedOperand(op, a, b)
	}
	return nil
}
