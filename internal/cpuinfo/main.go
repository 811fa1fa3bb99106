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

// Package main prints the CPU backend configuration chosen on this host.
package main

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-jitrace/internal/config"
	jitcpu "github.com/ajroetker/go-jitrace/jit/cpu"
)

func main() {
	cfg, err := config.Load(os.Getenv("JIT_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "cpuinfo:", err)
		os.Exit(1)
	}
	cfg.ApplyDispatch()

	fmt.Printf("GOOS/GOARCH: %s/%s, NumCPU: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Printf("dispatch: %s (%d-byte vectors, %d float32 lanes)\n",
		jitcpu.CurrentName(), jitcpu.CurrentWidth(), jitcpu.Lanes(4))

	backend := cfg.NewBackend()
	fmt.Printf("configured backend: %s\n", backend.Name())
	if b, ok := backend.(*jitcpu.Backend); ok {
		fmt.Printf("  workers: %d, chunk: %d elements\n", b.Workers(), b.ChunkSize())
	}
	fmt.Printf("trace flags: %s\n", cfg.TraceFlags())
	fmt.Println()

	switch runtime.GOARCH {
	case "arm64":
		printFeatures("cpu.ARM64", []feature{
			{"ASIMD", cpu.ARM64.HasASIMD},
			{"FP", cpu.ARM64.HasFP},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP},
			{"SVE", cpu.ARM64.HasSVE},
			{"SVE2", cpu.ARM64.HasSVE2},
			{"ATOMICS", cpu.ARM64.HasATOMICS},
		})
	case "amd64":
		printFeatures("cpu.X86", []feature{
			{"SSE2", cpu.X86.HasSSE2},
			{"SSE41", cpu.X86.HasSSE41},
			{"AVX", cpu.X86.HasAVX},
			{"AVX2", cpu.X86.HasAVX2},
			{"FMA", cpu.X86.HasFMA},
			{"AVX512F", cpu.X86.HasAVX512F},
			{"AVX512BW", cpu.X86.HasAVX512BW},
			{"AVX512VL", cpu.X86.HasAVX512VL},
		})
	}
}

type feature struct {
	name string
	has  bool
}

func printFeatures(title string, fs []feature) {
	fmt.Printf("=== golang.org/x/sys/%s ===\n", title)
	for _, f := range fs {
		fmt.Printf("  Has%-9s %v\n", f.name+":", f.has)
	}
}
