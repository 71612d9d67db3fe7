// Package compliance decides whether a module's raw ports form a valid
// instance of an interface type, and discovers undeclared instances from
// port-name prefixes.
package compliance

import (
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// Instance binds a module's ports to an interface type. It is only built
// for compliant checks and never changes afterwards.
type Instance struct {
	Name   string
	Module string
	Def    *iface.InterfaceDef
	Mode   iface.Mode
	Prefix string
	// Declared is true when the IP core description named the instance,
	// false when it was discovered from port names.
	Declared bool
	// Bindings maps signal names to port names.
	Bindings map[string]string
	// Widths maps signal names to the width the port actually has.
	Widths map[string]int
}

// InstanceRef identifies an instance inside a design.
type InstanceRef struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

func (r InstanceRef) String() string { return r.Module + "." + r.Name }

// Ref returns the instance's design-wide identity.
func (i *Instance) Ref() InstanceRef { return InstanceRef{Module: i.Module, Name: i.Name} }

// Port returns the port bound to a signal.
func (i *Instance) Port(signal string) (string, bool) {
	p, ok := i.Bindings[signal]
	return p, ok
}

// Direction is the signal's direction as seen from this instance's module.
func (i *Instance) Direction(signal string) hdl.Direction {
	s, ok := i.Def.Signal(signal)
	if !ok {
		return ""
	}
	return i.Mode.Orient(s.Direction)
}

// Bound returns the bound signals in definition order.
func (i *Instance) Bound() []iface.SignalSpec {
	out := make([]iface.SignalSpec, 0, len(i.Bindings))
	for _, s := range i.Def.Signals {
		if _, ok := i.Bindings[s.Name]; ok {
			out = append(out, s)
		}
	}
	return out
}
