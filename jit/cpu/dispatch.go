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

package cpu

import "github.com/xyproto/env/v2"

// DispatchLevel is the vector instruction set the backend sizes its work
// for.
type DispatchLevel int

const (
	DispatchScalar DispatchLevel = iota
	DispatchSSE2
	DispatchAVX2
	DispatchAVX512
	DispatchNEON
	DispatchSVE
)

func (l DispatchLevel) String() string {
	switch l {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	case DispatchSVE:
		return "sve"
	}
	return "unknown"
}

// NoSimdEnvVar forces scalar dispatch when set to a true value.
const NoSimdEnvVar = "JIT_NO_SIMD"

var (
	currentLevel DispatchLevel
	currentWidth int
	currentName  string
)

// NoSimdEnv reports whether SIMD dispatch is disabled via JIT_NO_SIMD.
func NoSimdEnv() bool {
	return env.Bool(NoSimdEnvVar)
}

// CurrentLevel returns the detected dispatch level.
func CurrentLevel() DispatchLevel { return currentLevel }

// CurrentWidth returns the vector width in bytes.
func CurrentWidth() int { return currentWidth }

// CurrentName returns the dispatch level name.
func CurrentName() string { return currentName }

// Lanes returns how many elements of the given byte width fit in one
// vector.
func Lanes(elemBytes int) int {
	if elemBytes <= 0 {
		return 1
	}
	return max(1, currentWidth/elemBytes)
}

func setScalarMode() {
	currentLevel = DispatchScalar
	currentWidth = 16 // keep chunking aligned even without SIMD
	currentName = "scalar"
}

// ForceScalar switches dispatch to scalar mode. It is meant to be called
// during start-up, before any backend is created.
func ForceScalar() { setScalarMode() }
