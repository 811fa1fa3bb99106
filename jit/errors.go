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

	"github.com/pkg/errors"
)

// ErrorKind classifies failures reported by the engine.
type ErrorKind int

const (
	// IncompatibleType: structurally distinct array families were combined.
	IncompatibleType ErrorKind = iota + 1
	// IncompatibleSize: fixed or runtime sizes differ with no broadcast rule.
	IncompatibleSize
	// UnsupportedOperand: the operator is not defined for the resolved kind.
	UnsupportedOperand
	// UninitializedValue: an Invalid variable was read.
	UninitializedValue
	// GraphIntegrity: an internal invariant of the trace graph was violated.
	GraphIntegrity
	// BackendFailure: the evaluation backend failed.
	BackendFailure
)

func (k ErrorKind) String() string {
	switch k {
	case IncompatibleType:
		return "incompatible type"
	case IncompatibleSize:
		return "incompatible size"
	case UnsupportedOperand:
		return "unsupported operand"
	case UninitializedValue:
		return "uninitialized value"
	case GraphIntegrity:
		return "graph integrity"
	case BackendFailure:
		return "backend error"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every engine entry point.
type Error struct {
	Kind ErrorKind
	Op   string // operation that detected the failure, e.g. "add"
	Msg  string
	Err  error // underlying cause, set for backend failures
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrIncompatibleType   = &Error{Kind: IncompatibleType}
	ErrIncompatibleSize   = &Error{Kind: IncompatibleSize}
	ErrUnsupportedOperand = &Error{Kind: UnsupportedOperand}
	ErrUninitializedValue = &Error{Kind: UninitializedValue}
	ErrGraphIntegrity     = &Error{Kind: GraphIntegrity}
	ErrBackend            = &Error{Kind: BackendFailure}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("jit.%s(): %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func incompatibleTypes(op string, a, b ArrayType) *Error {
	return newError(IncompatibleType, op, "Incompatible arguments: %s and %s", a, b)
}

func incompatibleSizes(op string, n, m int) *Error {
	return newError(IncompatibleSize, op, "Incompatible arguments: incompatible sizes (%s and %s)",
		sizeString(n), sizeString(m))
}

func unsupportedOperand(op Opcode, a, b ArrayType) *Error {
	if op.Arity() == 1 {
		return newError(UnsupportedOperand, op.String(),
			"unsupported operand type for %s: '%s'", op.Symbol(), a)
	}
	return newError(UnsupportedOperand, op.String(),
		"unsupported operand type(s) for %s: '%s' and '%s'", op.Symbol(), a, b)
}

func uninitialized(op string) *Error {
	return newError(UninitializedValue, op, "variable is uninitialized")
}

func integrity(format string, args ...any) *Error {
	return newError(GraphIntegrity, "", format, args...)
}

func backendError(backend string, err error) *Error {
	return &Error{
		Kind: BackendFailure,
		Op:   "eval",
		Msg:  "backend " + backend + " failed",
		Err:  errors.WithStack(err),
	}
}

func sizeString(n int) string {
	if n == Dynamic {
		return "dynamic"
	}
	return fmt.Sprint(n)
}
