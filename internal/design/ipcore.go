// Package design reads IP core and design descriptions and turns them into
// the module list and connection request the netlist builder consumes.
package design

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

// IPCore is a parsed IP core description. Port widths stay symbolic until
// Instantiate supplies the parameters.
//
//	name: dma
//	parameters: {DATA_WIDTH: 32}
//	signals:
//	  in:  [clk, [s_axi_awaddr, ADDR_WIDTH-1, 0]]
//	  out: [irq]
//	interfaces:
//	  ctrl: {type: AXI4Lite, mode: subordinate, prefix: s_axi_}
type IPCore struct {
	Name       string
	Source     string
	Params     map[string]int64
	Ports      []PortSpec
	Interfaces []hdl.InterfaceDecl
}

// PortSpec is a port whose bounds may reference parameters.
type PortSpec struct {
	Name      string
	Direction hdl.Direction
	// MSB and LSB are empty for single-bit ports.
	MSB, LSB string
}

type ipCoreFile struct {
	Name       string                 `yaml:"name"`
	Parameters map[string]int64       `yaml:"parameters"`
	Signals    map[string][]yaml.Node `yaml:"signals"`
	Interfaces map[string]ipCoreIface `yaml:"interfaces"`
}

type ipCoreIface struct {
	Type    string            `yaml:"type"`
	Mode    string            `yaml:"mode"`
	Prefix  string            `yaml:"prefix"`
	Signals map[string]string `yaml:"signals"`
}

// LoadIPCore reads and validates one IP core description.
func LoadIPCore(path string, v *validator.Validator) (*IPCore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading IP core: %w", err)
	}
	return ParseIPCore(path, data, v)
}

// ParseIPCore parses an IP core description held in memory.
func ParseIPCore(path string, data []byte, v *validator.Validator) (*IPCore, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing IP core %s: %w", path, err)
	}
	if err := v.ValidateIPCore(raw); err != nil {
		return nil, fmt.Errorf("IP core %s: %w", path, err)
	}

	var f ipCoreFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding IP core %s: %w", path, err)
	}

	core := &IPCore{
		Name:   f.Name,
		Source: path,
		Params: f.Parameters,
	}
	if core.Params == nil {
		core.Params = map[string]int64{}
	}

	for _, dirName := range []string{"in", "out", "inout"} {
		dir, _ := hdl.ParseDirection(dirName)
		for _, n := range f.Signals[dirName] {
			spec, err := portSpec(&n, dir)
			if err != nil {
				return nil, fmt.Errorf("IP core %s: %w", path, err)
			}
			core.Ports = append(core.Ports, spec)
		}
	}

	names := make([]string, 0, len(f.Interfaces))
	for name := range f.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ifc := f.Interfaces[name]
		if _, err := iface.ParseMode(ifc.Mode); err != nil {
			return nil, fmt.Errorf("IP core %s: interface %s: %w", path, name, err)
		}
		core.Interfaces = append(core.Interfaces, hdl.InterfaceDecl{
			Name:   name,
			Type:   ifc.Type,
			Mode:   ifc.Mode,
			Prefix: ifc.Prefix,
			Ports:  ifc.Signals,
		})
	}
	return core, nil
}

func portSpec(n *yaml.Node, dir hdl.Direction) (PortSpec, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return PortSpec{Name: n.Value, Direction: dir}, nil
	case yaml.SequenceNode:
		if len(n.Content) == 3 {
			return PortSpec{
				Name:      n.Content[0].Value,
				Direction: dir,
				MSB:       n.Content[1].Value,
				LSB:       n.Content[2].Value,
			}, nil
		}
	}
	return PortSpec{}, fmt.Errorf("line %d: port must be a name or [name, msb, lsb]", n.Line)
}

// Instantiate resolves every port width with the core's parameters,
// overridden by the design's.
func (c *IPCore) Instantiate(name string, overrides map[string]int64) (*hdl.Module, error) {
	params := make(map[string]int64, len(c.Params)+len(overrides))
	for k, v := range c.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}

	m := &hdl.Module{
		Name:       name,
		Type:       c.Name,
		Source:     c.Source,
		Params:     params,
		Interfaces: c.Interfaces,
	}
	var problems []string
	for _, p := range c.Ports {
		w, err := p.width(params)
		if err != nil {
			problems = append(problems, fmt.Sprintf("port %s: %v", p.Name, err))
			continue
		}
		m.Ports = append(m.Ports, hdl.Port{Name: p.Name, Direction: p.Direction, Width: w})
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("instantiating %s (%s): %s", name, c.Name, strings.Join(problems, "; "))
	}
	return m, nil
}

func (p PortSpec) width(params map[string]int64) (int, error) {
	if p.MSB == "" && p.LSB == "" {
		return 1, nil
	}
	msb, err := iface.EvalInt(p.MSB, params)
	if err != nil {
		return 0, err
	}
	lsb, err := iface.EvalInt(p.LSB, params)
	if err != nil {
		return 0, err
	}
	if msb < lsb {
		msb, lsb = lsb, msb
	}
	return int(msb-lsb) + 1, nil
}

// resolvePath makes a file reference relative to the file that contains it.
func resolvePath(from, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(from), ref)
}
