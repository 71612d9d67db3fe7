// Package iface models interface types: named groups of directioned signals
// that IP cores expose, and the catalog that serves them by name or port
// prefix. Definitions are validated once at construction and never change
// afterwards, so a Catalog can be shared by any number of concurrent checks.
package iface

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
)

var (
	// ErrInvalidInterface wraps every definition that breaks a schema rule.
	ErrInvalidInterface = errors.New("invalid interface definition")
	// ErrDuplicateInterface is returned when two definitions share a name.
	ErrDuplicateInterface = errors.New("duplicate interface definition")
)

// Role marks the clock or reset signal of an interface.
type Role string

const (
	RoleNone  Role = ""
	RoleClock Role = "clock"
	RoleReset Role = "reset"
)

// Mode is how an instance is oriented relative to the definition's
// declared directions.
type Mode string

const (
	// ModeAuto lets the checker pick the orientation.
	ModeAuto        Mode = ""
	ModeManager     Mode = "manager"
	ModeSubordinate Mode = "subordinate"
)

// ParseMode accepts the usual synonyms for both sides of a bus.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ModeAuto, nil
	case "manager", "master", "initiator", "source":
		return ModeManager, nil
	case "subordinate", "slave", "target", "sink":
		return ModeSubordinate, nil
	}
	return ModeAuto, fmt.Errorf("unknown interface mode %q", s)
}

// Orient maps a declared direction onto this mode.
func (m Mode) Orient(d hdl.Direction) hdl.Direction {
	if m == ModeSubordinate {
		return d.Flip()
	}
	return d
}

// SignalSpec is one signal of an interface type.
type SignalSpec struct {
	Name      string
	Direction hdl.Direction
	Required  bool
	Width     WidthExpr
	Role      Role
}

// InterfaceDef is a named interface type.
type InterfaceDef struct {
	Name        string
	Description string
	// Prefixes are the port-name prefixes under which IP cores usually
	// expose this interface, e.g. "s_axi_".
	Prefixes []string
	Signals  []SignalSpec
	// Source is the file the definition was loaded from.
	Source string

	index map[string]int
}

// Define validates a definition and returns a ready-to-share copy.
func Define(def InterfaceDef) (*InterfaceDef, error) {
	d := def
	d.Prefixes = append([]string(nil), def.Prefixes...)
	d.Signals = append([]SignalSpec(nil), def.Signals...)
	if err := d.init(); err != nil {
		return nil, err
	}
	return &d, nil
}

// DefinitionError lists every rule a definition breaks.
type DefinitionError struct {
	Interface string
	Source    string
	Problems  []string
}

func (e *DefinitionError) Error() string {
	where := e.Interface
	if e.Source != "" {
		where = fmt.Sprintf("%s (%s)", e.Interface, e.Source)
	}
	return fmt.Sprintf("interface %s: %s", where, strings.Join(e.Problems, "; "))
}

func (e *DefinitionError) Unwrap() error { return ErrInvalidInterface }

func (d *InterfaceDef) init() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is empty")
	}
	if len(d.Signals) == 0 {
		problems = append(problems, "no signals")
	}
	for _, p := range d.Prefixes {
		if p == "" {
			problems = append(problems, "empty port prefix")
		}
	}

	d.index = make(map[string]int, len(d.Signals))
	var clock, reset string
	for i, s := range d.Signals {
		if s.Name == "" {
			problems = append(problems, fmt.Sprintf("signal %d has no name", i))
			continue
		}
		if _, dup := d.index[s.Name]; dup {
			problems = append(problems, fmt.Sprintf("signal %q declared twice", s.Name))
			continue
		}
		d.index[s.Name] = i
		switch s.Direction {
		case hdl.In, hdl.Out, hdl.InOut:
		default:
			problems = append(problems, fmt.Sprintf("signal %q has invalid direction %q", s.Name, s.Direction))
		}
		switch s.Role {
		case RoleNone:
		case RoleClock:
			if clock != "" {
				problems = append(problems, fmt.Sprintf("clock role on both %q and %q", clock, s.Name))
			}
			clock = s.Name
		case RoleReset:
			if reset != "" {
				problems = append(problems, fmt.Sprintf("reset role on both %q and %q", reset, s.Name))
			}
			reset = s.Name
		default:
			problems = append(problems, fmt.Sprintf("signal %q has unknown role %q", s.Name, s.Role))
		}
	}

	if len(problems) > 0 {
		return &DefinitionError{Interface: d.Name, Source: d.Source, Problems: problems}
	}
	return nil
}

// Signal looks up a signal by name.
func (d *InterfaceDef) Signal(name string) (SignalSpec, bool) {
	i, ok := d.index[name]
	if !ok {
		return SignalSpec{}, false
	}
	return d.Signals[i], true
}

// Clock returns the clock-role signal, if any.
func (d *InterfaceDef) Clock() (SignalSpec, bool) { return d.withRole(RoleClock) }

// Reset returns the reset-role signal, if any.
func (d *InterfaceDef) Reset() (SignalSpec, bool) { return d.withRole(RoleReset) }

func (d *InterfaceDef) withRole(r Role) (SignalSpec, bool) {
	for _, s := range d.Signals {
		if s.Role == r {
			return s, true
		}
	}
	return SignalSpec{}, false
}

// Required returns the required signals in declaration order.
func (d *InterfaceDef) Required() []SignalSpec {
	var out []SignalSpec
	for _, s := range d.Signals {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}

// MatchPrefix returns the longest declared prefix that s starts with.
func (d *InterfaceDef) MatchPrefix(s string) (string, bool) {
	best, found := "", false
	for _, p := range d.Prefixes {
		if strings.HasPrefix(s, p) && len(p) > len(best) {
			best, found = p, true
		}
	}
	return best, found
}
