package design

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

// Design is a loaded design description. Modules keep the order of the ips
// section; links, port links and ties keep file order.
//
//	ips:
//	  cpu:  {file: cores/cpu.yaml}
//	  uart: {file: cores/uart.yaml, parameters: {DATA_WIDTH: 32}}
//	design:
//	  interfaces:
//	    uart: {ctrl: [cpu, m_axi]}
//	  ports:
//	    uart: {rx_en: 1, irq_ack: [cpu, irq_ack]}
type Design struct {
	Source    string
	Modules   []*hdl.Module
	Links     []netlist.Link
	PortLinks []netlist.PortLink
	Ties      []netlist.Tie
}

// Request builds the netlist request for a set of validated instances.
func (d *Design) Request(instances []*compliance.Instance) netlist.Request {
	return netlist.Request{
		Modules:   d.Modules,
		Instances: instances,
		Links:     d.Links,
		PortLinks: d.PortLinks,
		Ties:      d.Ties,
	}
}

// Loader reads designs and the IP cores they reference. IP core files are
// parsed once however many times a design instantiates them.
type Loader struct {
	logger    *log.Logger
	validator *validator.Validator
	cores     map[string]*IPCore
}

// NewLoader returns a loader that logs to logger, or to the default logger
// when nil.
func NewLoader(logger *log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.Default()
	}
	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	return &Loader{logger: logger, validator: v, cores: make(map[string]*IPCore)}, nil
}

// Load reads a design file.
func (l *Loader) Load(path string) (*Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading design: %w", err)
	}
	return l.Parse(path, data)
}

// Parse reads a design held in memory. IP core paths resolve against the
// directory of path.
func (l *Loader) Parse(path string, data []byte) (*Design, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing design %s: %w", path, err)
	}
	if err := l.validator.ValidateDesign(raw); err != nil {
		return nil, fmt.Errorf("design %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing design %s: %w", path, err)
	}
	root := doc.Content[0]

	d := &Design{Source: path}
	overrides, err := l.designParams(field(field(root, "design"), "parameters"))
	if err != nil {
		return nil, fmt.Errorf("design %s: %w", path, err)
	}

	for _, ip := range pairs(field(root, "ips")) {
		name := ip.key.Value
		var spec struct {
			File       string           `yaml:"file"`
			Parameters map[string]int64 `yaml:"parameters"`
		}
		if err := ip.val.Decode(&spec); err != nil {
			return nil, fmt.Errorf("design %s: ip %s: %w", path, name, err)
		}
		core, err := l.core(resolvePath(path, spec.File))
		if err != nil {
			return nil, fmt.Errorf("design %s: ip %s: %w", path, name, err)
		}
		params := spec.Parameters
		for k, v := range overrides[name] {
			if params == nil {
				params = make(map[string]int64)
			}
			params[k] = v
		}
		m, err := core.Instantiate(name, params)
		if err != nil {
			return nil, fmt.Errorf("design %s: %w", path, err)
		}
		d.Modules = append(d.Modules, m)
	}

	sect := field(root, "design")
	if names := keys(field(sect, "hierarchies")); len(names) > 0 {
		l.logger.Warn("design hierarchies are not supported and were skipped", "design", path, "hierarchies", names)
	}
	if names := keys(field(sect, "interconnects")); len(names) > 0 {
		l.logger.Warn("design interconnects are not supported and were skipped", "design", path, "interconnects", names)
	}
	if field(root, "external") != nil {
		return nil, fmt.Errorf("design %s: external ports and interfaces are not supported", path)
	}

	for _, ip := range pairs(field(sect, "interfaces")) {
		for _, c := range pairs(ip.val) {
			peer := c.val.Content
			d.Links = append(d.Links, netlist.Link{
				A: compliance.InstanceRef{Module: ip.key.Value, Name: c.key.Value},
				B: compliance.InstanceRef{Module: peer[0].Value, Name: peer[1].Value},
			})
		}
	}

	for _, ip := range pairs(field(sect, "ports")) {
		for _, c := range pairs(ip.val) {
			target := netlist.PortRef{Module: ip.key.Value, Port: c.key.Value}
			switch {
			case c.val.Kind == yaml.SequenceNode:
				peer := c.val.Content
				d.PortLinks = append(d.PortLinks, netlist.PortLink{
					A: target,
					B: netlist.PortRef{Module: peer[0].Value, Port: peer[1].Value},
				})
			case c.val.Tag == "!!int":
				var v int64
				if err := c.val.Decode(&v); err != nil {
					return nil, fmt.Errorf("design %s:%d: %w", path, c.val.Line, err)
				}
				d.Ties = append(d.Ties, netlist.Tie{Target: target, Value: v})
			default:
				return nil, fmt.Errorf("design %s:%d: %s is connected to external port %q; external ports are not supported",
					path, c.val.Line, target, c.val.Value)
			}
		}
	}

	l.logger.Debug("design loaded", "design", path, "modules", len(d.Modules),
		"links", len(d.Links), "port_links", len(d.PortLinks), "ties", len(d.Ties))
	return d, nil
}

func (l *Loader) core(path string) (*IPCore, error) {
	if c, ok := l.cores[path]; ok {
		return c, nil
	}
	c, err := LoadIPCore(path, l.validator)
	if err != nil {
		return nil, err
	}
	l.cores[path] = c
	return c, nil
}

func (l *Loader) designParams(n *yaml.Node) (map[string]map[string]int64, error) {
	out := make(map[string]map[string]int64)
	if n == nil {
		return out, nil
	}
	if err := n.Decode(&out); err != nil {
		return nil, fmt.Errorf("design parameters: %w", err)
	}
	return out, nil
}

// field returns the value of key in a mapping node, or nil.
func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

type nodePair struct {
	key, val *yaml.Node
}

func pairs(n *yaml.Node) []nodePair {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]nodePair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, nodePair{key: n.Content[i], val: n.Content[i+1]})
	}
	return out
}

func keys(n *yaml.Node) []string {
	var out []string
	for _, p := range pairs(n) {
		out = append(out, p.key.Value)
	}
	return out
}
