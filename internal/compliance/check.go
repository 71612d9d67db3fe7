package compliance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// Result is the outcome of one compliance check. Instance is nil unless
// the check found no errors.
type Result struct {
	Interface   string
	Instance    *Instance
	Diagnostics diag.List
	// Unbound lists the ports the check did not use, in module order.
	Unbound []hdl.Port
}

// Compliant reports whether the ports form a valid instance.
func (r Result) Compliant() bool { return r.Instance != nil }

// Err returns nil for a compliant result. Otherwise the error carries every
// error diagnostic and matches diag.ErrNonCompliant as well as the sentinel
// of each contained kind.
func (r Result) Err() error {
	err := r.Diagnostics.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, diag.ErrNotFound) || errors.Is(err, diag.ErrAmbiguousInterface) {
		return err
	}
	return fmt.Errorf("%w: %w", diag.ErrNonCompliant, err)
}

type options struct {
	prefix   string
	bindings map[string]string
	mode     iface.Mode
	params   map[string]int64
	module   string
	instance string
	declared bool
}

// Option tunes a check.
type Option func(*options)

// WithPrefix expects each signal on the port named prefix+signal.
func WithPrefix(p string) Option { return func(o *options) { o.prefix = p } }

// WithBindings names the port for individual signals. Explicit bindings
// take precedence over the prefix convention.
func WithBindings(m map[string]string) Option { return func(o *options) { o.bindings = m } }

// WithMode fixes the orientation. The default tries both.
func WithMode(m iface.Mode) Option { return func(o *options) { o.mode = m } }

// WithParams supplies the parameters symbolic widths resolve against.
func WithParams(p map[string]int64) Option { return func(o *options) { o.params = p } }

// WithModule sets the module name reported in diagnostics.
func WithModule(name string) Option { return func(o *options) { o.module = name } }

// WithInstance names the resulting instance.
func WithInstance(name string) Option { return func(o *options) { o.instance = name } }

// Declared marks the instance as declared by the IP core author.
func Declared() Option { return func(o *options) { o.declared = true } }

// Check matches ports against def. A nil cfg means config.Current().
// Every violation is reported, not just the first.
func Check(ports []hdl.Port, def *iface.InterfaceDef, cfg *config.Config, opts ...Option) Result {
	if cfg == nil {
		cfg = config.Current()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	name := o.instance
	if name == "" {
		name = instanceName(o.prefix, def.Name)
	}
	tmpl := diag.Diagnostic{Module: o.module, Interface: def.Name, Instance: name}

	res := Result{Interface: def.Name}
	byName := make(map[string]hdl.Port, len(ports))
	for _, p := range ports {
		byName[p.Name] = p
	}

	bound := make(map[string]hdl.Port)
	claimed := make(map[string]string)
	dangling := make(map[string]bool)
	for _, s := range def.Signals {
		portName, explicit := o.bindings[s.Name]
		if !explicit {
			portName = o.prefix + s.Name
		}
		p, ok := byName[portName]
		if !ok {
			if explicit {
				t := tmpl
				t.Signal, t.Port = s.Name, portName
				res.Diagnostics.Errorf(diag.KindMissingSignal, t, "bound to port %q, which the module does not have", portName)
				dangling[s.Name] = true
			}
			continue
		}
		if other, dup := claimed[p.Name]; dup {
			t := tmpl
			t.Signal, t.Port = s.Name, p.Name
			res.Diagnostics.Errorf(diag.KindNonCompliant, t, "port %q is already bound to signal %s", p.Name, other)
			dangling[s.Name] = true
			continue
		}
		bound[s.Name] = p
		claimed[p.Name] = s.Name
	}
	extra := make([]string, 0, len(o.bindings))
	for sig := range o.bindings {
		extra = append(extra, sig)
	}
	sort.Strings(extra)
	for _, sig := range extra {
		if _, ok := def.Signal(sig); !ok {
			t := tmpl
			t.Signal = sig
			res.Diagnostics.Errorf(diag.KindMissingSignal, t, "%s has no signal %q", def.Name, sig)
		}
	}
	for _, p := range ports {
		if _, ok := claimed[p.Name]; !ok {
			res.Unbound = append(res.Unbound, p)
		}
	}

	if len(bound) == 0 {
		res.Diagnostics.Errorf(diag.KindNoSignalsBound, tmpl, "no port matches any signal of %s (prefix %q)", def.Name, o.prefix)
		return res
	}

	mode := o.mode
	if mode == iface.ModeAuto {
		mode = iface.ModeManager
		if directionMismatches(def, bound, iface.ModeSubordinate) < directionMismatches(def, bound, iface.ModeManager) {
			mode = iface.ModeSubordinate
		}
	}

	widths := make(map[string]int, len(bound))
	for _, s := range def.Signals {
		t := tmpl
		t.Signal = s.Name
		p, ok := bound[s.Name]
		if !ok {
			if !s.Required || dangling[s.Name] {
				continue
			}
			t.Port = o.prefix + s.Name
			if cfg.AllowPartialInterfaces {
				res.Diagnostics.Warnf(diag.KindMissingSignal, t, "required signal %s is missing (partial interface allowed)", s.Name)
			} else {
				res.Diagnostics.Errorf(diag.KindMissingSignal, t, "required signal %s is missing", s.Name)
			}
			continue
		}
		t.Port = p.Name

		if want := mode.Orient(s.Direction); p.Direction != want {
			res.Diagnostics.Errorf(diag.KindDirectionMismatch, t, "port %s is %s, %s %s expects %s", p.Name, p.Direction, mode, def.Name, want)
		}
		widths[s.Name] = checkWidth(&res.Diagnostics, t, s, p, o.params, cfg.StrictWidthChecking)
	}

	if res.Diagnostics.HasErrors() {
		return res
	}
	res.Instance = &Instance{
		Name:     name,
		Module:   o.module,
		Def:      def,
		Mode:     mode,
		Prefix:   o.prefix,
		Declared: o.declared,
		Bindings: make(map[string]string, len(bound)),
		Widths:   widths,
	}
	for sig, p := range bound {
		res.Instance.Bindings[sig] = p.Name
	}
	return res
}

// checkWidth compares a bound port against the signal's resolved width and
// returns the width the instance uses.
func checkWidth(l *diag.List, t diag.Diagnostic, s iface.SignalSpec, p hdl.Port, params map[string]int64, strict bool) int {
	want, err := s.Width.Resolve(params)
	switch {
	case errors.Is(err, iface.ErrUnresolvedWidth):
		l.Warnf(diag.KindUnresolvedWidth, t, "%v; using port width %d", err, p.Width)
		return p.Width
	case err != nil:
		l.Errorf(diag.KindWidthMismatch, t, "%v", err)
		return p.Width
	case strict && p.Width != want:
		l.Errorf(diag.KindWidthMismatch, t, "port %s is %d bits, %s requires exactly %d", p.Name, p.Width, s.Width, want)
	case p.Width < want:
		l.Errorf(diag.KindWidthMismatch, t, "port %s is %d bits, narrower than %s = %d", p.Name, p.Width, s.Width, want)
	case p.Width > want:
		l.Warnf(diag.KindWidthMismatch, t, "port %s is %d bits, wider than %s = %d", p.Name, p.Width, s.Width, want)
	}
	return p.Width
}

func directionMismatches(def *iface.InterfaceDef, bound map[string]hdl.Port, mode iface.Mode) int {
	n := 0
	for _, s := range def.Signals {
		if p, ok := bound[s.Name]; ok && p.Direction != mode.Orient(s.Direction) {
			n++
		}
	}
	return n
}

func instanceName(prefix, def string) string {
	if n := strings.Trim(prefix, "_"); n != "" {
		return n
	}
	return def
}

// CheckByName resolves the interface type first. An unknown name yields a
// single not_found diagnostic.
func CheckByName(ports []hdl.Port, cat *iface.Catalog, name string, cfg *config.Config, opts ...Option) Result {
	def, err := cat.ByName(name)
	if err != nil {
		var o options
		for _, opt := range opts {
			opt(&o)
		}
		res := Result{Interface: name, Unbound: ports}
		res.Diagnostics.Errorf(diag.KindNotFound, diag.Diagnostic{Module: o.module, Interface: name, Instance: o.instance}, "%v", err)
		return res
	}
	return Check(ports, def, cfg, opts...)
}
