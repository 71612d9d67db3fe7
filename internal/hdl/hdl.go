// Package hdl holds the port-level view of an IP core that the rest of the
// tool consumes. Parsing HDL sources is somebody else's job; modules arrive
// here already reduced to named ports with a direction and a bit width.
package hdl

import (
	"fmt"
	"strings"
)

// Direction of a port or interface signal.
type Direction string

const (
	In    Direction = "in"
	Out   Direction = "out"
	InOut Direction = "inout"
)

// ParseDirection accepts the spellings used by IP core descriptions
// ("in", "input", "out", "output", "inout", "bidir").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "input":
		return In, nil
	case "out", "output":
		return Out, nil
	case "inout", "bidir":
		return InOut, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Flip swaps in and out. InOut is its own mirror.
func (d Direction) Flip() Direction {
	switch d {
	case In:
		return Out
	case Out:
		return In
	}
	return d
}

// Drives reports whether a port with this direction can act as a driver.
func (d Direction) Drives() bool { return d == Out || d == InOut }

// Receives reports whether a port with this direction can be driven.
func (d Direction) Receives() bool { return d == In || d == InOut }

// Port is a raw module port.
type Port struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Width     int       `json:"width"`
}

// InterfaceDecl is an interface binding declared by the IP core author
// rather than discovered from port names.
type InterfaceDecl struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Mode   string            `json:"mode,omitempty"`
	Prefix string            `json:"prefix,omitempty"`
	Ports  map[string]string `json:"ports,omitempty"`
}

// Module is one IP core instance in a design.
type Module struct {
	// Name is the instance name inside the design.
	Name string `json:"name"`
	// Type is the IP core name from its description file.
	Type       string           `json:"type"`
	Source     string           `json:"source,omitempty"`
	Ports      []Port           `json:"ports"`
	Params     map[string]int64 `json:"params,omitempty"`
	Interfaces []InterfaceDecl  `json:"interfaces,omitempty"`
}

// Port looks up a port by exact name.
func (m *Module) Port(name string) (Port, bool) {
	for _, p := range m.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// PortIndex maps port names to ports.
func (m *Module) PortIndex() map[string]Port {
	idx := make(map[string]Port, len(m.Ports))
	for _, p := range m.Ports {
		idx[p.Name] = p
	}
	return idx
}
