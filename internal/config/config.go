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

// Package config loads jittrace settings from YAML and the environment.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-jitrace/jit"
	"github.com/ajroetker/go-jitrace/jit/cpu"
)

// Environment variables that override the file settings.
const (
	EnvBackend             = "JIT_BACKEND"
	EnvLogLevel            = "JIT_LOG_LEVEL"
	EnvWorkers             = "JIT_WORKERS"
	EnvChunkSize           = "JIT_CHUNK_SIZE"
	EnvNoSIMD              = cpu.NoSimdEnvVar
	EnvConstantPropagation = "JIT_CONSTANT_PROPAGATION"
	EnvValueNumbering      = "JIT_VALUE_NUMBERING"
	EnvKernelFusion        = "JIT_KERNEL_FUSION"
)

// Backend names.
const (
	BackendInterpreter = "interpreter"
	BackendCPU         = "cpu"
)

// Config holds the engine settings.
type Config struct {
	Backend   string `yaml:"backend"`
	LogLevel  string `yaml:"log_level"`
	Workers   int    `yaml:"workers"`
	ChunkSize int    `yaml:"chunk_size"`
	NoSIMD    bool   `yaml:"no_simd"`
	Flags     Flags  `yaml:"flags"`
}

// Flags selects the optimizer passes of new traces.
type Flags struct {
	ConstantPropagation bool `yaml:"constant_propagation"`
	ValueNumbering      bool `yaml:"value_numbering"`
	KernelFusion        bool `yaml:"kernel_fusion"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:  BackendInterpreter,
		LogLevel: "warn",
		Flags: Flags{
			ConstantPropagation: true,
			ValueNumbering:      true,
			KernelFusion:        true,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.WithStack(err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	c.Backend = env.Str(EnvBackend, c.Backend)
	c.LogLevel = env.Str(EnvLogLevel, c.LogLevel)
	c.Workers = env.Int(EnvWorkers, c.Workers)
	c.ChunkSize = env.Int(EnvChunkSize, c.ChunkSize)
	overrideBool(&c.NoSIMD, EnvNoSIMD)
	overrideBool(&c.Flags.ConstantPropagation, EnvConstantPropagation)
	overrideBool(&c.Flags.ValueNumbering, EnvValueNumbering)
	overrideBool(&c.Flags.KernelFusion, EnvKernelFusion)
}

func overrideBool(dst *bool, name string) {
	if env.Has(name) {
		*dst = env.Bool(name)
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendInterpreter, BackendCPU:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.ChunkSize < 0 {
		return errors.Errorf("chunk_size must not be negative, got %d", c.ChunkSize)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return l, nil
}

// TraceFlags returns the flag set for new traces.
func (c Config) TraceFlags() jit.Flag {
	var f jit.Flag
	if c.Flags.ConstantPropagation {
		f |= jit.ConstantPropagation
	}
	if c.Flags.ValueNumbering {
		f |= jit.ValueNumbering
	}
	if c.Flags.KernelFusion {
		f |= jit.KernelFusion
	}
	return f
}

// ApplyDispatch pins the process-wide SIMD dispatch level. Call it once
// during start-up, before any backend is created.
func (c Config) ApplyDispatch() {
	if c.NoSIMD {
		cpu.ForceScalar()
	}
}

// NewBackend creates the configured backend. It does not touch the
// dispatch level; see ApplyDispatch.
func (c Config) NewBackend() jit.Backend {
	if strings.EqualFold(c.Backend, BackendCPU) {
		opts := []cpu.Option{cpu.WithWorkers(c.Workers)}
		if c.ChunkSize > 0 {
			opts = append(opts, cpu.WithChunkSize(c.ChunkSize))
		}
		return cpu.New(opts...)
	}
	return jit.Interpreter{}
}

// NewLogger creates a text logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	l, err := c.Level()
	if err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// NewTrace creates a trace wired to the configured backend, flags and a
// logger writing to w.
func (c Config) NewTrace(w io.Writer) *jit.Trace {
	return jit.NewTrace(
		jit.WithBackend(c.NewBackend()),
		jit.WithLogger(c.NewLogger(w)),
		jit.WithFlags(c.TraceFlags()),
	)
}
