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

// jittrace builds small traces and shows how they are optimized and
// evaluated.
//
// Usage:
//
//	jittrace demo [-n 8]
//	jittrace dump [--no-lvn]
//	jittrace random -n 4 --seed 42
//	jittrace flags
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jittrace:", err)
		os.Exit(1)
	}
}
