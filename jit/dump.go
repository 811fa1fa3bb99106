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
	"io"
	"strings"
)

// Dump writes one line per live variable in identifier order:
//
//	r3 = add i32[3] r1 r2 (normal, refs=1 deps=0)
//
// Literal and evaluated variables show their contents instead of operands.
func (t *Trace) Dump(w io.Writer) error {
	for _, v := range t.graph.Variables() {
		var args string
		switch v.State {
		case Literal, Evaluated:
			args = v.payload.String()
		default:
			ops := make([]string, len(v.Operands))
			for i, id := range v.Operands {
				ops[i] = fmt.Sprintf("r%d", id)
			}
			args = strings.Join(ops, " ")
		}
		_, err := fmt.Fprintf(w, "r%d = %s %s[%d] %s (%s, refs=%d deps=%d)\n",
			v.ID, v.Op, kindSuffix(v.Kind), v.Size, args, v.State, v.refs, v.deps)
		if err != nil {
			return err
		}
	}
	return nil
}

var dumpKinds = [...]string{
	KindInvalid: "?",
	KindBool:    "b",
	KindInt32:   "i32",
	KindUInt32:  "u32",
	KindInt64:   "i64",
	KindUInt64:  "u64",
	KindFloat32: "f32",
	KindFloat64: "f64",
}

func kindSuffix(k Kind) string {
	if int(k) < len(dumpKinds) {
		return dumpKinds[k]
	}
	return "?"
}
