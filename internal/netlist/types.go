// Package netlist turns a design's connection intent into signal-level
// connections between validated interface instances.
package netlist

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
)

// Endpoint is one side of a connection.
type Endpoint struct {
	Module string `json:"module"`
	Port   string `json:"port"`
	// Instance is the interface instance the port belongs to, if any.
	Instance string `json:"instance,omitempty"`
}

func (e Endpoint) String() string { return e.Module + "." + e.Port }

// Constant is a tie-off value.
type Constant struct {
	Value int64 `json:"value"`
}

// Connection drives To from either From or a constant.
type Connection struct {
	From     Endpoint  `json:"from"`
	Constant *Constant `json:"constant,omitempty"`
	To       Endpoint  `json:"to"`
	// Interface and Signal are empty for raw port links.
	Interface string `json:"interface,omitempty"`
	Signal    string `json:"signal,omitempty"`
	Width     int    `json:"width"`
	// Bidirectional marks an inout-to-inout net; From and To are then
	// interchangeable.
	Bidirectional bool `json:"bidirectional,omitempty"`
}

// IsConstant reports whether the connection is a tie-off.
func (c Connection) IsConstant() bool { return c.Constant != nil }

func (c Connection) driver() string {
	if c.Constant != nil {
		return fmt.Sprintf("constant %d", c.Constant.Value)
	}
	return c.From.String()
}

// key identifies an edge regardless of which end of a bidirectional net
// was proposed first.
func (c Connection) key() string {
	from, to := c.driver(), c.To.String()
	if c.Bidirectional && to < from {
		from, to = to, from
	}
	return from + "->" + to
}

// Link asks for two interface instances to be connected.
type Link struct {
	A compliance.InstanceRef `json:"a"`
	B compliance.InstanceRef `json:"b"`
}

// PortRef names a raw module port.
type PortRef struct {
	Module string `json:"module"`
	Port   string `json:"port"`
}

func (p PortRef) String() string { return p.Module + "." + p.Port }

// PortLink asks for two raw ports to be connected.
type PortLink struct {
	A PortRef `json:"a"`
	B PortRef `json:"b"`
}

// Tie drives an input port with a constant.
type Tie struct {
	Target PortRef `json:"target"`
	Value  int64   `json:"value"`
}

// Request is everything the builder needs. Order matters only for the
// order of the output.
type Request struct {
	Modules   []*hdl.Module
	Instances []*compliance.Instance
	Links     []Link
	PortLinks []PortLink
	Ties      []Tie
}

// Netlist is the builder's output.
type Netlist struct {
	Connections []Connection `json:"connections"`
	Diagnostics diag.List    `json:"diagnostics"`
}

// Err returns the netlist's error diagnostics as an error, or nil.
func (n *Netlist) Err() error { return n.Diagnostics.Err() }

// DriverOf returns the connection driving a port, if one was finalized.
// Bidirectional nets count for both of their ends.
func (n *Netlist) DriverOf(module, port string) (Connection, bool) {
	for _, c := range n.Connections {
		if c.To.Module == module && c.To.Port == port {
			return c, true
		}
		if c.Bidirectional && c.From.Module == module && c.From.Port == port {
			return c, true
		}
	}
	return Connection{}, false
}
