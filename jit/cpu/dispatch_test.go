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

import "testing"

func TestDispatchDetected(t *testing.T) {
	if CurrentName() == "" || CurrentName() != CurrentLevel().String() {
		t.Errorf("CurrentName() = %q, level %s", CurrentName(), CurrentLevel())
	}
	if w := CurrentWidth(); w < 16 || w%16 != 0 {
		t.Errorf("CurrentWidth() = %d, want a multiple of 16", w)
	}
	if got, want := Lanes(4), CurrentWidth()/4; got != want {
		t.Errorf("Lanes(4) = %d, want %d", got, want)
	}
	if Lanes(0) != 1 || Lanes(1024) != 1 {
		t.Error("Lanes should never drop below one")
	}
}

func TestForceScalar(t *testing.T) {
	level, width, name := currentLevel, currentWidth, currentName
	t.Cleanup(func() { currentLevel, currentWidth, currentName = level, width, name })

	ForceScalar()
	if CurrentLevel() != DispatchScalar || CurrentName() != "scalar" {
		t.Errorf("after ForceScalar: %s (%s)", CurrentLevel(), CurrentName())
	}
	if Lanes(4) != 4 {
		t.Errorf("scalar Lanes(4) = %d, want 4", Lanes(4))
	}
	if b := New(); b.Name() != "cpu-scalar" {
		t.Errorf("Name() = %q, want cpu-scalar", b.Name())
	}
}

func TestNoSimdEnv(t *testing.T) {
	t.Setenv(NoSimdEnvVar, "1")
	if !NoSimdEnv() {
		t.Errorf("%s=1 should disable SIMD", NoSimdEnvVar)
	}
	t.Setenv(NoSimdEnvVar, "")
	if NoSimdEnv() {
		t.Errorf("empty %s should not disable SIMD", NoSimdEnvVar)
	}
}
