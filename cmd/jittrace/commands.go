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

package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajroetker/go-jitrace/internal/config"
	"github.com/ajroetker/go-jitrace/jit"
	"github.com/ajroetker/go-jitrace/jit/contrib/random"
)

type options struct {
	configPath string
	backend    string
	logLevel   string
	noCP       bool
	noLVN      bool
	noFusion   bool
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.backend, "backend", "", "evaluation backend (interpreter, cpu)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&o.noCP, "no-cp", false, "disable constant propagation")
	fs.BoolVar(&o.noLVN, "no-lvn", false, "disable value numbering")
	fs.BoolVar(&o.noFusion, "no-fusion", false, "disable kernel fusion")
}

// dispatchOnce applies the dispatch setting of the first configuration
// loaded by the process.
var dispatchOnce sync.Once

// load resolves the configuration: file, then environment, then flags.
func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	cfg.Flags.ConstantPropagation = cfg.Flags.ConstantPropagation && !o.noCP
	cfg.Flags.ValueNumbering = cfg.Flags.ValueNumbering && !o.noLVN
	cfg.Flags.KernelFusion = cfg.Flags.KernelFusion && !o.noFusion
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	dispatchOnce.Do(cfg.ApplyDispatch)
	return cfg, nil
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "jittrace",
		Short:         "Trace, optimize and evaluate array programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	opts.register(root.PersistentFlags())

	root.AddCommand(
		newDemoCmd(opts, stderr),
		newDumpCmd(opts, stderr),
		newRandomCmd(opts, stderr),
		newFlagsCmd(opts),
	)
	return root
}

// sampleTrace records a small program over n elements: c = a*2 + a and the
// selection where(c > n, c, 0).
func sampleTrace(tr *jit.Trace, n int) (a, c, sel *jit.Array, err error) {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i + 1)
	}
	if a, err = tr.New(jit.ArrayXf, vals); err != nil {
		return
	}
	twice, err := a.Mul(2)
	if err != nil {
		return
	}
	if c, err = twice.Add(a); err != nil {
		return
	}
	mask, err := c.Gt(n)
	if err != nil {
		return
	}
	sel, err = jit.Select(mask, c, 0)
	return
}

func newDemoCmd(opts *options, logs io.Writer) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Evaluate a sample trace and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			tr := cfg.NewTrace(logs)
			a, c, sel, err := sampleTrace(tr, n)
			if err != nil {
				return err
			}
			if err := tr.EvalContext(cmd.Context(), c, sel); err != nil {
				return err
			}
			tbl := newTable("i", "a", "3a", "select(3a > n)")
			for i := range n {
				row := []string{strconv.Itoa(i)}
				for _, x := range []*jit.Array{a, c, sel} {
					v, err := x.Item(i)
					if err != nil {
						return err
					}
					row = append(row, fmt.Sprint(v))
				}
				tbl.add(row...)
			}
			return tbl.render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 8, "number of elements")
	return cmd
}

func newDumpCmd(opts *options, logs io.Writer) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the trace graph before and after evaluation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			tr := cfg.NewTrace(logs)
			_, c, sel, err := sampleTrace(tr, n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# traced (%s)\n", tr.Flags())
			if err := tr.Dump(out); err != nil {
				return err
			}
			if err := tr.EvalContext(cmd.Context(), c, sel); err != nil {
				return err
			}
			fmt.Fprintf(out, "# evaluated by %s\n", tr.Backend().Name())
			return tr.Dump(out)
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 4, "number of elements")
	return cmd
}

func newRandomCmd(opts *options, logs io.Writer) *cobra.Command {
	var (
		n     int
		draws int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Draw uniform floats from n PCG32 streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n < 1 || draws < 1 {
				return errors.New("-n and --draws must be positive")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			tr := cfg.NewTrace(logs)
			rng, err := random.New(tr, n, seed, random.DefaultStream)
			if err != nil {
				return err
			}
			header := []string{"lane"}
			cols := make([][]float32, draws)
			for d := range draws {
				header = append(header, fmt.Sprintf("draw %d", d))
				f, err := rng.NextFloat32()
				if err != nil {
					return err
				}
				cols[d], err = jit.Get[float32](f)
				f.Release()
				if err != nil {
					return err
				}
			}
			rng.Release()
			tbl := newTable(header...)
			for lane := range n {
				row := []string{strconv.Itoa(lane)}
				for _, col := range cols {
					row = append(row, strconv.FormatFloat(float64(col[lane]), 'f', 6, 32))
				}
				tbl.add(row...)
			}
			return tbl.render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 4, "number of streams")
	cmd.Flags().IntVar(&draws, "draws", 3, "draws per stream")
	cmd.Flags().Uint64Var(&seed, "seed", random.DefaultState, "initial state")
	return cmd
}

func newFlagsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			tbl := newTable("setting", "value")
			tbl.add("backend", cfg.NewBackend().Name())
			tbl.add("log level", cfg.LogLevel)
			tbl.add("workers", strconv.Itoa(cfg.Workers))
			tbl.add("no simd", strconv.FormatBool(cfg.NoSIMD))
			for _, f := range []jit.Flag{jit.ConstantPropagation, jit.ValueNumbering, jit.KernelFusion} {
				tbl.add(f.String(), strconv.FormatBool(cfg.TraceFlags()&f != 0))
			}
			return tbl.render(cmd.OutOrStdout())
		},
	}
}
