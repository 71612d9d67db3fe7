package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
)

// DependentsGraph maps a module to the modules it drives.
type DependentsGraph map[string]map[string]bool

// BuildDependentsGraph follows every finalized connection from driver to
// receiver. Bidirectional nets point both ways; ties have no driver module.
func BuildDependentsGraph(conns []netlist.Connection) DependentsGraph {
	graph := make(DependentsGraph)
	add := func(from, to string) {
		if from == "" || from == to {
			return
		}
		if graph[from] == nil {
			graph[from] = make(map[string]bool)
		}
		graph[from][to] = true
	}
	for _, c := range conns {
		if c.IsConstant() {
			continue
		}
		add(c.From.Module, c.To.Module)
		if c.Bidirectional {
			add(c.To.Module, c.From.Module)
		}
	}
	return graph
}

// ImpactReport lists the modules reachable from Root, one slice per hop.
type ImpactReport struct {
	Root   string     `json:"root"`
	Levels [][]string `json:"levels"`
}

// Modules returns every module in the report, root included.
func (r ImpactReport) Modules() map[string]bool {
	out := map[string]bool{r.Root: true}
	for _, level := range r.Levels {
		for _, m := range level {
			out[m] = true
		}
	}
	return out
}

// ComputeImpact walks the dependents of root breadth first.
func ComputeImpact(root string, dependents DependentsGraph) ImpactReport {
	visited := map[string]bool{root: true}
	frontier := []string{root}
	var levels [][]string

	for len(frontier) > 0 {
		var next []string
		for _, m := range frontier {
			for dep := range dependents[m] {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				next = append(next, dep)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Strings(next)
		levels = append(levels, next)
		frontier = next
	}

	return ImpactReport{Root: root, Levels: levels}
}

// FormatImpactReport renders a report as indented text.
func FormatImpactReport(report ImpactReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s\n", report.Root)
	for i, level := range report.Levels {
		fmt.Fprintf(&b, "    level %d (%d): %s\n", i+1, len(level), strings.Join(level, ", "))
	}
	return b.String()
}
