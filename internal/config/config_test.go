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

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-jitrace/jit"
	"github.com/ajroetker/go-jitrace/jit/cpu"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
backend: cpu
log_level: debug
workers: 2
flags:
  kernel_fusion: false
`))
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, cfg.Backend)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.Flags.ConstantPropagation, "unset keys keep their defaults")
	assert.False(t, cfg.Flags.KernelFusion)
	assert.Equal(t, jit.ConstantPropagation|jit.ValueNumbering, cfg.TraceFlags())

	l, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, jit.DefaultFlags, cfg.TraceFlags())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("backend: cpu\nthreads: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}

func TestLoadAppliesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: cpu\nworkers: 8\n"), 0o644))

	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvValueNumbering, "false")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, cfg.Backend)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.False(t, cfg.Flags.ValueNumbering)
	assert.True(t, cfg.Flags.KernelFusion)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse "+path)

	t.Setenv(EnvBackend, "gpu")
	_, err = Load("")
	assert.EqualError(t, err, `unknown backend "gpu"`)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"default", func(*Config) {}, ""},
		{"backend case", func(c *Config) { c.Backend = "CPU" }, ""},
		{"backend", func(c *Config) { c.Backend = "metal" }, `unknown backend "metal"`},
		{"level", func(c *Config) { c.LogLevel = "loud" }, `log_level "loud"`},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers must not be negative, got -1"},
		{"chunk", func(c *Config) { c.ChunkSize = -4 }, "chunk_size must not be negative, got -4"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNewBackend(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "interpreter", cfg.NewBackend().Name())

	cfg.Backend = BackendCPU
	cfg.Workers = 2
	cfg.ChunkSize = 100
	b, ok := cfg.NewBackend().(*cpu.Backend)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(b.Name(), "cpu-"))
	assert.Equal(t, 2, b.Workers())
	assert.GreaterOrEqual(t, b.ChunkSize(), 100)
}

func TestNewTrace(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.Flags.KernelFusion = false
	var logs bytes.Buffer
	tr := cfg.NewTrace(&logs)
	assert.Equal(t, jit.ConstantPropagation|jit.ValueNumbering, tr.Flags())

	a := tr.MustNew(jit.ArrayXf, 1, 2)
	b, err := a.Mul(a)
	require.NoError(t, err)
	require.NoError(t, tr.Eval(b))
	assert.Contains(t, logs.String(), "msg=flush")

	cfg.LogLevel = "nonsense"
	assert.True(t, cfg.NewLogger(&logs).Enabled(t.Context(), slog.LevelWarn))
	assert.False(t, cfg.NewLogger(&logs).Enabled(t.Context(), slog.LevelInfo))
}

func TestNewBackendLeavesDispatch(t *testing.T) {
	before := cpu.CurrentName()
	cfg := Default()
	cfg.Backend = BackendCPU
	cfg.NoSIMD = true
	b := cfg.NewBackend()
	assert.Equal(t, before, cpu.CurrentName())
	assert.Equal(t, "cpu-"+before, b.Name())
}

// Runs last: ApplyDispatch changes process-wide state.
func TestApplyDispatch(t *testing.T) {
	before := cpu.CurrentName()
	Default().ApplyDispatch()
	assert.Equal(t, before, cpu.CurrentName(), "SIMD stays on by default")

	cfg := Default()
	cfg.NoSIMD = true
	cfg.ApplyDispatch()
	assert.Equal(t, "scalar", cpu.CurrentName())
}
