package facts

import (
	"sort"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
)

// Tables is the relational fact model handed to the policy engine.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Modules     []ModuleRow     `json:"modules"`
	Ports       []PortRow       `json:"ports"`
	Params      []ParamRow      `json:"params"`
	Interfaces  []InterfaceRow  `json:"interfaces"`
	Instances   []InstanceRow   `json:"instances"`
	Bindings    []BindingRow    `json:"bindings"`
	Connections []ConnectionRow `json:"connections"`
	Diagnostics []DiagnosticRow `json:"diagnostics"`
}

type ModuleRow struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

type PortRow struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Width     int    `json:"width"`
}

type ParamRow struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Value  int64  `json:"value"`
}

// InterfaceRow summarizes one catalog definition.
type InterfaceRow struct {
	Name     string `json:"name"`
	Signals  int    `json:"signals"`
	Required int    `json:"required"`
	Source   string `json:"source"`
}

type InstanceRow struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	Interface string `json:"interface"`
	Mode      string `json:"mode"`
	Prefix    string `json:"prefix"`
	Declared  bool   `json:"declared"`
}

// BindingRow is one signal of an instance bound to a port. Direction is
// the port's direction, after orientation.
type BindingRow struct {
	Module    string `json:"module"`
	Instance  string `json:"instance"`
	Signal    string `json:"signal"`
	Port      string `json:"port"`
	Direction string `json:"direction"`
	Width     int    `json:"width"`
	Required  bool   `json:"required"`
	Role      string `json:"role"`
}

type ConnectionRow struct {
	FromModule    string `json:"from_module"`
	FromPort      string `json:"from_port"`
	FromInstance  string `json:"from_instance"`
	ToModule      string `json:"to_module"`
	ToPort        string `json:"to_port"`
	ToInstance    string `json:"to_instance"`
	IsConstant    bool   `json:"is_constant"`
	Constant      int64  `json:"constant"`
	Interface     string `json:"interface"`
	Signal        string `json:"signal"`
	Width         int    `json:"width"`
	Bidirectional bool   `json:"bidirectional"`
}

type DiagnosticRow struct {
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Module    string `json:"module"`
	Interface string `json:"interface"`
	Instance  string `json:"instance"`
	Signal    string `json:"signal"`
	Port      string `json:"port"`
	Message   string `json:"message"`
}

// Input is everything one composition run knows.
type Input struct {
	Modules     []*hdl.Module
	Interfaces  []*iface.InterfaceDef
	Instances   []*compliance.Instance
	Connections []netlist.Connection
	Diagnostics diag.List
}

// BuildTables flattens a composition run into relations. Modules, ports and
// params are sorted; instances, connections and diagnostics keep run order.
func BuildTables(in Input) Tables {
	tables := emptyTables()

	mods := append([]*hdl.Module(nil), in.Modules...)
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	for _, m := range mods {
		tables.Modules = append(tables.Modules, ModuleRow{
			Name:   m.Name,
			Type:   m.Type,
			Source: m.Source,
		})
		for _, p := range m.Ports {
			tables.Ports = append(tables.Ports, PortRow{
				Module:    m.Name,
				Name:      p.Name,
				Direction: string(p.Direction),
				Width:     p.Width,
			})
		}
		names := make([]string, 0, len(m.Params))
		for name := range m.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tables.Params = append(tables.Params, ParamRow{Module: m.Name, Name: name, Value: m.Params[name]})
		}
	}

	for _, d := range in.Interfaces {
		tables.Interfaces = append(tables.Interfaces, InterfaceRow{
			Name:     d.Name,
			Signals:  len(d.Signals),
			Required: len(d.Required()),
			Source:   d.Source,
		})
	}

	for _, inst := range in.Instances {
		tables.Instances = append(tables.Instances, InstanceRow{
			Module:    inst.Module,
			Name:      inst.Name,
			Interface: inst.Def.Name,
			Mode:      string(inst.Mode),
			Prefix:    inst.Prefix,
			Declared:  inst.Declared,
		})
		for _, s := range inst.Bound() {
			tables.Bindings = append(tables.Bindings, BindingRow{
				Module:    inst.Module,
				Instance:  inst.Name,
				Signal:    s.Name,
				Port:      inst.Bindings[s.Name],
				Direction: string(inst.Direction(s.Name)),
				Width:     inst.Widths[s.Name],
				Required:  s.Required,
				Role:      string(s.Role),
			})
		}
	}

	for _, c := range in.Connections {
		row := ConnectionRow{
			FromModule:    c.From.Module,
			FromPort:      c.From.Port,
			FromInstance:  c.From.Instance,
			ToModule:      c.To.Module,
			ToPort:        c.To.Port,
			ToInstance:    c.To.Instance,
			Interface:     c.Interface,
			Signal:        c.Signal,
			Width:         c.Width,
			Bidirectional: c.Bidirectional,
		}
		if c.Constant != nil {
			row.IsConstant = true
			row.Constant = c.Constant.Value
		}
		tables.Connections = append(tables.Connections, row)
	}

	for _, d := range in.Diagnostics {
		tables.Diagnostics = append(tables.Diagnostics, DiagnosticRow{
			Kind:      string(d.Kind),
			Severity:  string(d.Severity),
			Module:    d.Module,
			Interface: d.Interface,
			Instance:  d.Instance,
			Signal:    d.Signal,
			Port:      d.Port,
			Message:   d.Message,
		})
	}

	return tables
}

func emptyTables() Tables {
	return Tables{
		Modules:     []ModuleRow{},
		Ports:       []PortRow{},
		Params:      []ParamRow{},
		Interfaces:  []InterfaceRow{},
		Instances:   []InstanceRow{},
		Bindings:    []BindingRow{},
		Connections: []ConnectionRow{},
		Diagnostics: []DiagnosticRow{},
	}
}
