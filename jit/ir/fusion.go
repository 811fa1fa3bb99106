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

package ir

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FusionRule defines a pattern for fusing a producer into its consumer.
type FusionRule struct {
	// Name identifies this rule for debugging.
	Name string

	// Priority determines application order (higher = applied first).
	Priority int

	// Match checks the node kinds of a producer/consumer pair.
	Match func(producer, consumer *Node) bool

	// CanFuse performs deeper validation after Match succeeds.
	CanFuse func(producer, consumer *Node) bool
}

// FusionGroup is a set of nodes that execute as one kernel.
type FusionGroup struct {
	ID      int
	Root    int
	Members []int
	Pattern string
	Size    int
}

var builtinRules = []FusionRule{
	{
		Name:     "Elem+Elem",
		Priority: 10,
		Match:    matchKinds(OpKindElementwise, OpKindElementwise),
		CanFuse:  sameLoop,
	},
	{
		Name:     "Elem+Reduce",
		Priority: 20,
		Match:    matchKinds(OpKindElementwise, OpKindReduction),
		CanFuse:  func(p, c *Node) bool { return sameLoop(p, c) && p.HasSingleConsumer() },
	},
	{
		Name:     "Load+Elem",
		Priority: 5,
		Match:    matchKinds(OpKindLoad, OpKindElementwise),
		CanFuse:  func(p, c *Node) bool { return p.HasSingleConsumer() },
	},
	{
		Name:     "Broadcast+Elem",
		Priority: 5,
		Match:    matchKinds(OpKindBroadcast, OpKindElementwise),
		CanFuse:  func(p, c *Node) bool { return p.HasSingleConsumer() },
	},
}

func matchKinds(producer, consumer OpKind) func(p, c *Node) bool {
	return func(p, c *Node) bool { return p.Kind == producer && c.Kind == consumer }
}

func sameLoop(p, c *Node) bool { return p.Size == c.Size }

// ApplyFusionRules runs the fusion pass on p. It applies rules in priority
// order until no more fusions are possible, then grows the groups.
func ApplyFusionRules(p *Program) {
	Analyze(p)

	rules := slices.Clone(builtinRules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	// Worklist: keep applying rules until fixpoint.
	changed := true
	for changed {
		changed = false
		for _, c := range FindFusionCandidates(p) {
			if c.Producer.FusionGroup >= 0 || c.Consumer.FusionGroup >= 0 {
				continue
			}
			for _, rule := range rules {
				if !rule.Match(c.Producer, c.Consumer) || !rule.CanFuse(c.Producer, c.Consumer) {
					continue
				}
				members := []int{c.Producer.ID, c.Consumer.ID}
				if !legal(p, members) {
					continue
				}
				group := FusionGroup{
					ID:      len(p.FusionGroups),
					Root:    c.Consumer.ID,
					Members: members,
					Pattern: rule.Name,
					Size:    c.Consumer.Size,
				}
				for _, id := range members {
					p.GetNode(id).FusionGroup = group.ID
				}
				c.Consumer.IsFusionRoot = true
				p.FusionGroups = append(p.FusionGroups, group)
				changed = true
				break
			}
		}
	}

	extendFusionGroups(p)
}

// extendFusionGroups tries to add more nodes to existing fusion groups.
func extendFusionGroups(p *Program) {
	for i := range p.FusionGroups {
		group := &p.FusionGroups[i]
		extended := true
		for extended {
			extended = false
			for _, id := range slices.Clone(group.Members) {
				member := p.GetNode(id)
				for _, n := range slices.Concat(member.Producers, member.Consumers) {
					if n.FusionGroup >= 0 || !canExtendGroup(p, group, n) {
						continue
					}
					group.Members = append(group.Members, n.ID)
					n.FusionGroup = group.ID
					if n.ID > group.Root {
						p.GetNode(group.Root).IsFusionRoot = false
						group.Root = n.ID
						n.IsFusionRoot = true
					}
					extended = true
				}
			}
		}
		slices.Sort(group.Members)
	}
}

// canExtendGroup checks if a node can be added to an existing fusion group.
func canExtendGroup(p *Program, group *FusionGroup, n *Node) bool {
	switch {
	case n.IsCompute():
		if n.Size != group.Size {
			return false
		}
	case len(n.Consumers) != 1:
		// Shared inputs stay outside so every reader sees them.
		return false
	}
	return legal(p, append(slices.Clone(group.Members), n.ID))
}

// legal reports whether members may run as one kernel: no reduction result
// is consumed inside the same loop, and the kernel graph stays acyclic.
// Existing groups count as single nodes, so a path that leaves the set,
// passes through another group and comes back is rejected as well.
func legal(p *Program, members []int) bool {
	in := make(map[int]bool, len(members))
	for _, id := range members {
		in[id] = true
	}
	for _, id := range members {
		n := p.GetNode(id)
		for _, prod := range n.Producers {
			if in[prod.ID] && prod.Kind == OpKindReduction {
				return false
			}
		}
	}

	// Walk outward from the set; reaching a member again is a cycle.
	seen := make(map[int]bool)
	visitedGroup := make(map[int]bool)
	var stack []*Node
	push := func(n *Node) {
		for _, c := range n.Consumers {
			stack = append(stack, c)
		}
	}
	for _, id := range members {
		for _, c := range p.GetNode(id).Consumers {
			if !in[c.ID] {
				stack = append(stack, c)
			}
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if in[n.ID] {
			return false
		}
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		push(n)
		if g := n.FusionGroup; g >= 0 && g < len(p.FusionGroups) && !visitedGroup[g] {
			visitedGroup[g] = true
			for _, id := range p.FusionGroups[g].Members {
				push(p.GetNode(id))
			}
		}
	}
	return true
}

// Kernel is one unit of work handed to a backend.
type Kernel struct {
	ID      int
	Name    string
	Pattern string

	// Size is the loop extent shared by the members.
	Size int

	// Level orders kernels: every input of a kernel is produced at a lower
	// level, so kernels of equal level are independent.
	Level int

	// Members are the compute nodes in execution order.
	Members []int
	// Inputs are nodes read by members but computed elsewhere or loaded.
	Inputs []int
	// Outputs are members whose results are needed after the kernel.
	Outputs []int
}

func (k Kernel) String() string {
	return fmt.Sprintf("%s[L%d n=%d] %v <- %v", k.Name, k.Level, k.Size, k.Members, k.Inputs)
}

// ErrCycle reports kernels that depend on each other.
var ErrCycle = errors.New("ir: kernel graph has a cycle")

// Partition analyzes p and splits its compute nodes into kernels. Without
// fusion every compute node is its own kernel.
func Partition(p *Program, fuse bool) ([]Kernel, error) {
	if fuse {
		ApplyFusionRules(p)
	} else {
		Analyze(p)
	}
	return Kernels(p)
}

// Kernels returns the kernels of an analyzed program ordered by level. A
// grouping whose kernels depend on each other fails with ErrCycle.
func Kernels(p *Program) ([]Kernel, error) {
	owner := make(map[int]int)
	var ks []Kernel
	for _, g := range p.FusionGroups {
		k := Kernel{Pattern: g.Pattern, Size: g.Size}
		for _, id := range g.Members {
			if p.GetNode(id).IsCompute() {
				k.Members = append(k.Members, id)
			}
		}
		slices.Sort(k.Members)
		for _, id := range k.Members {
			owner[id] = len(ks)
		}
		ks = append(ks, k)
	}
	for _, n := range p.Nodes {
		if n.IsCompute() && n.FusionGroup < 0 {
			owner[n.ID] = len(ks)
			ks = append(ks, Kernel{Pattern: "Single", Size: n.Size, Members: []int{n.ID}})
		}
	}

	for i := range ks {
		k := &ks[i]
		for _, id := range k.Members {
			n := p.GetNode(id)
			for _, prod := range n.Producers {
				if o, ok := owner[prod.ID]; (!ok || o != i) && !slices.Contains(k.Inputs, prod.ID) {
					k.Inputs = append(k.Inputs, prod.ID)
				}
			}
			escapes := lo.ContainsBy(n.Consumers, func(c *Node) bool {
				o, ok := owner[c.ID]
				return !ok || o != i
			})
			if n.External || escapes {
				k.Outputs = append(k.Outputs, id)
			}
		}
		slices.Sort(k.Inputs)
	}

	// levels[i] is 0 while unvisited, -1 while on the stack and the
	// one-based level once known.
	levels := make([]int, len(ks))
	var level func(i int) (int, error)
	level = func(i int) (int, error) {
		switch levels[i] {
		case -1:
			return 0, errors.Wrapf(ErrCycle, "through kernel of %v", ks[i].Members)
		case 0:
		default:
			return levels[i], nil
		}
		levels[i] = -1
		l := 1
		for _, id := range ks[i].Inputs {
			if o, ok := owner[id]; ok {
				dl, err := level(o)
				if err != nil {
					return 0, err
				}
				l = max(l, dl+1)
			}
		}
		levels[i] = l
		return l, nil
	}
	for i := range ks {
		l, err := level(i)
		if err != nil {
			return nil, err
		}
		ks[i].Level = l - 1
	}

	sort.SliceStable(ks, func(a, b int) bool {
		if ks[a].Level != ks[b].Level {
			return ks[a].Level < ks[b].Level
		}
		return ks[a].Members[0] < ks[b].Members[0]
	})
	for i := range ks {
		ks[i].ID = i
		ks[i].Name = kernelName(p, ks[i])
	}
	return ks, nil
}

func kernelName(p *Program, k Kernel) string {
	ops := lo.Map(k.Members, func(id int, _ int) string { return p.GetNode(id).Op })
	title := cases.Title(language.English).String(strings.Join(ops, " "))
	return fmt.Sprintf("k%d_%s", k.ID, strings.ReplaceAll(title, " ", ""))
}

// FusionStats summarizes the effect of fusion on a program.
type FusionStats struct {
	// OriginalPasses is the number of passes over memory without fusion.
	OriginalPasses int

	// FusedPasses is the number of kernels launched.
	FusedPasses int

	// EliminatedTemps counts intermediate results that never leave their
	// kernel.
	EliminatedTemps int

	// FusionGroups is the number of fusion groups created.
	FusionGroups int
}

// ComputeFusionStats computes statistics about a partitioning of p.
func ComputeFusionStats(p *Program, ks []Kernel) FusionStats {
	stats := FusionStats{FusedPasses: len(ks), FusionGroups: len(p.FusionGroups)}
	for _, n := range p.Nodes {
		if n.IsCompute() {
			stats.OriginalPasses++
		}
	}
	for _, k := range ks {
		stats.EliminatedTemps += len(k.Members) - len(k.Outputs)
	}
	return stats
}
