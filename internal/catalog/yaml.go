package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// yamlDef is the on-disk YAML layout:
//
//	name: AXI4Stream
//	port_prefix: [s_axis_, m_axis_]
//	signals:
//	  required:
//	    out: {tvalid: 1, tdata: DATA_WIDTH}
//	    in: {tready: 1}
//	  optional:
//	    out: {tlast: 1}
//	clock: aclk
//	reset: aresetn
//
// signals is kept as a node so declaration order survives decoding.
type yamlDef struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	PortPrefix  yaml.Node `yaml:"port_prefix"`
	Signals     yaml.Node `yaml:"signals"`
	Clock       string    `yaml:"clock"`
	Reset       string    `yaml:"reset"`
}

// parseYAML reads every document in a YAML stream as one definition.
func parseYAML(path string, data []byte) ([]iface.Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var recs []iface.Record
	for {
		var doc yamlDef
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		rec, err := doc.record(path)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (d *yamlDef) record(path string) (iface.Record, error) {
	rec := iface.Record{Name: d.Name, Description: d.Description}

	switch d.PortPrefix.Kind {
	case 0:
	case yaml.ScalarNode:
		rec.Prefixes = []string{d.PortPrefix.Value}
	case yaml.SequenceNode:
		for _, n := range d.PortPrefix.Content {
			if n.Kind != yaml.ScalarNode {
				return rec, fmt.Errorf("%s:%d: port_prefix entries must be strings", path, n.Line)
			}
			rec.Prefixes = append(rec.Prefixes, n.Value)
		}
	default:
		return rec, fmt.Errorf("%s:%d: port_prefix must be a string or a list", path, d.PortPrefix.Line)
	}

	if d.Signals.Kind != yaml.MappingNode {
		return rec, fmt.Errorf("%s: interface %q: signals must be a mapping", path, d.Name)
	}
	for _, group := range pairs(&d.Signals) {
		var required bool
		switch group.key.Value {
		case "required":
			required = true
		case "optional":
		default:
			return rec, fmt.Errorf("%s:%d: unknown signal group %q (want required or optional)", path, group.key.Line, group.key.Value)
		}
		if group.val.Kind != yaml.MappingNode {
			return rec, fmt.Errorf("%s:%d: %s must map directions to signals", path, group.val.Line, group.key.Value)
		}
		for _, dir := range pairs(group.val) {
			if dir.val.Kind != yaml.MappingNode {
				return rec, fmt.Errorf("%s:%d: %s.%s must map signal names to widths", path, dir.val.Line, group.key.Value, dir.key.Value)
			}
			for _, sig := range pairs(dir.val) {
				rec.Signals = append(rec.Signals, iface.SignalRecord{
					Name:      sig.key.Value,
					Direction: dir.key.Value,
					Required:  required,
					Width:     scalarWidth(sig.val),
				})
			}
		}
	}

	if err := markRole(&rec, d.Clock, iface.RoleClock); err != nil {
		return rec, fmt.Errorf("%s: %w", path, err)
	}
	if err := markRole(&rec, d.Reset, iface.RoleReset); err != nil {
		return rec, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

type nodePair struct {
	key, val *yaml.Node
}

func pairs(n *yaml.Node) []nodePair {
	out := make([]nodePair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, nodePair{key: n.Content[i], val: n.Content[i+1]})
	}
	return out
}

// scalarWidth returns an int for integer scalars, nil for null and the raw
// text otherwise. Anything that is not a valid width fails validation later.
func scalarWidth(n *yaml.Node) any {
	if n.Kind != yaml.ScalarNode {
		return n.Value
	}
	switch n.Tag {
	case "!!null":
		return nil
	case "!!int":
		if v, err := strconv.Atoi(n.Value); err == nil {
			return v
		}
	}
	return n.Value
}

func markRole(rec *iface.Record, signal string, role iface.Role) error {
	if signal == "" {
		return nil
	}
	for i := range rec.Signals {
		if rec.Signals[i].Name == signal {
			if prev := rec.Signals[i].Role; prev != "" && prev != string(role) {
				return fmt.Errorf("interface %q: signal %q is both %s and %s", rec.Name, signal, prev, role)
			}
			rec.Signals[i].Role = string(role)
			return nil
		}
	}
	return fmt.Errorf("interface %q: %s signal %q is not declared", rec.Name, role, signal)
}
