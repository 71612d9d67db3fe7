// Package report renders composer results for people (styled text) and
// for tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/composer"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
)

// Netlist is the document written by `topwrap build -o`.
type Netlist struct {
	Design      string                  `json:"design"`
	Modules     []composer.ModuleResult `json:"modules"`
	Connections []netlist.Connection    `json:"connections"`
}

// NewNetlist extracts the emitted netlist from a build result.
func NewNetlist(designPath string, res *composer.Result) Netlist {
	return Netlist{Design: designPath, Modules: res.Modules, Connections: res.Connections}
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Text writes a human-readable report of a run.
func Text(w io.Writer, res *composer.Result) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Modules"))
	b.WriteString("\n")
	for _, m := range res.Modules {
		fmt.Fprintf(&b, "  %s %s\n", nameStyle.Render(m.Name), mutedStyle.Render("("+m.Type+")"))
		if len(m.Instances) == 0 {
			fmt.Fprintf(&b, "    %s\n", mutedStyle.Render("no interfaces"))
		}
		for _, inst := range m.Instances {
			origin := "discovered"
			if inst.Declared {
				origin = "declared"
			}
			fmt.Fprintf(&b, "    %s: %s %s, %d signals %s\n",
				inst.Name, inst.Interface, inst.Mode, len(inst.Bindings), mutedStyle.Render("["+origin+"]"))
		}
	}

	if len(res.Connections) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Connections"))
		b.WriteString("\n")
		for _, c := range res.Connections {
			from := c.From.String()
			if c.IsConstant() {
				from = fmt.Sprintf("const %d", c.Constant.Value)
			}
			arrow := "->"
			if c.Bidirectional {
				arrow = "<->"
			}
			fmt.Fprintf(&b, "  %s %s %s", from, arrow, c.To)
			if c.Signal != "" {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%s.%s]", c.Interface, c.Signal)))
			}
			fmt.Fprintf(&b, " %s\n", mutedStyle.Render(fmt.Sprintf("%d bit", c.Width)))
		}
	}

	if len(res.Diagnostics) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Diagnostics"))
		b.WriteString("\n")
		for _, d := range res.Diagnostics.Sorted() {
			fmt.Fprintf(&b, "  %s\n", severityStyle(string(d.Severity)).Render(d.String()))
		}
	}

	if len(res.Violations) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Design rules"))
		b.WriteString("\n")
		for _, v := range res.Violations {
			line := fmt.Sprintf("%s [%s] %s: %s", v.Severity, v.Rule, v.Module, v.Message)
			fmt.Fprintf(&b, "  %s\n", severityStyle(v.Severity).Render(line))
		}
	}

	if res.Delta != nil {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("since last build: +%d -%d fact rows",
			res.Delta.Added.Len(), res.Delta.Removed.Len())))
	}

	b.WriteString("\n")
	s := res.Summary
	summary := fmt.Sprintf("%d modules, %d interfaces, %d connections: %d errors, %d warnings, %d rule violations",
		s.Modules, s.Instances, s.Connections, s.Errors, s.Warnings, s.Violations)
	if s.Errors > 0 {
		b.WriteString(errorStyle.Render("✗ " + summary))
	} else {
		b.WriteString(successStyle.Render("✓ " + summary))
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Interfaces lists catalog definitions, one per line, with their signals
// when verbose is set.
func Interfaces(w io.Writer, defs []*iface.InterfaceDef, verbose bool) error {
	var b strings.Builder
	sorted := append([]*iface.InterfaceDef(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, d := range sorted {
		fmt.Fprintf(&b, "%s %s\n", nameStyle.Render(d.Name),
			mutedStyle.Render(fmt.Sprintf("%d signals, %d required, prefixes %s",
				len(d.Signals), len(d.Required()), strings.Join(d.Prefixes, " "))))
		if d.Description != "" {
			fmt.Fprintf(&b, "  %s\n", d.Description)
		}
		if !verbose {
			continue
		}
		for _, s := range d.Signals {
			req := "optional"
			if s.Required {
				req = "required"
			}
			role := ""
			if s.Role != iface.RoleNone {
				role = " " + string(s.Role)
			}
			fmt.Fprintf(&b, "    %-12s %-5s %-14s %s%s\n", s.Name, s.Direction, s.Width, req, role)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
