package netlist

import (
	"math/bits"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// signalRef locates an interface signal on a port.
type signalRef struct {
	inst   *compliance.Instance
	signal iface.SignalSpec
}

type builder struct {
	cfg       *config.Config
	ports     map[PortRef]hdl.Port
	instances map[compliance.InstanceRef]*compliance.Instance
	owners    map[PortRef]signalRef

	edges []Connection
	diags diag.List
}

// Build resolves every requested link, port link and tie into connections.
//
// Edges are collected first and receiver fan-in is checked only once all
// of them are known: a receiver with more than one distinct driver keeps
// none of them. Afterwards every bound input of every instance must be
// driven. A nil cfg means config.Current().
func Build(req Request, cfg *config.Config) *Netlist {
	if cfg == nil {
		cfg = config.Current()
	}
	b := &builder{
		cfg:       cfg,
		ports:     make(map[PortRef]hdl.Port),
		instances: make(map[compliance.InstanceRef]*compliance.Instance, len(req.Instances)),
		owners:    make(map[PortRef]signalRef),
	}
	for _, m := range req.Modules {
		for _, p := range m.Ports {
			b.ports[PortRef{Module: m.Name, Port: p.Name}] = p
		}
	}
	for _, inst := range req.Instances {
		b.instances[inst.Ref()] = inst
		for _, s := range inst.Bound() {
			b.owners[PortRef{Module: inst.Module, Port: inst.Bindings[s.Name]}] = signalRef{inst: inst, signal: s}
		}
	}

	for _, l := range req.Links {
		b.link(l)
	}
	for _, pl := range req.PortLinks {
		b.portLink(pl)
	}
	for _, t := range req.Ties {
		b.tie(t)
	}

	conns, driven := b.resolveFanIn()
	b.checkUndriven(req.Instances, driven)

	return &Netlist{Connections: conns, Diagnostics: b.diags}
}

func (b *builder) link(l Link) {
	a, okA := b.instances[l.A]
	c, okB := b.instances[l.B]
	for _, miss := range []struct {
		ok  bool
		ref compliance.InstanceRef
	}{{okA, l.A}, {okB, l.B}} {
		if !miss.ok {
			b.diags.Errorf(diag.KindNotFound, diag.Diagnostic{Module: miss.ref.Module, Instance: miss.ref.Name},
				"no compliant interface instance %s", miss.ref)
		}
	}
	if !okA || !okB {
		return
	}

	if a.Def.Name != c.Def.Name {
		b.diags.Errorf(diag.KindIncompatibleInterfaces, diag.Diagnostic{Module: a.Module, Instance: a.Name, Interface: a.Def.Name},
			"cannot connect %s (%s) to %s (%s)", a.Ref(), a.Def.Name, c.Ref(), c.Def.Name)
		return
	}

	for _, s := range a.Def.Signals {
		pa, inA := a.Port(s.Name)
		pc, inC := c.Port(s.Name)
		tmpl := diag.Diagnostic{Module: a.Module, Instance: a.Name, Interface: a.Def.Name, Signal: s.Name}
		switch {
		case !inA && !inC:
			continue
		case !inA || !inC:
			b.oneSided(s, a, c, inA, tmpl)
			continue
		}

		ea := Endpoint{Module: a.Module, Port: pa, Instance: a.Name}
		ec := Endpoint{Module: c.Module, Port: pc, Instance: c.Name}
		conn := Connection{Interface: a.Def.Name, Signal: s.Name}

		da, dc := a.Direction(s.Name), c.Direction(s.Name)
		switch {
		case da == hdl.InOut && dc == hdl.InOut:
			conn.From, conn.To, conn.Bidirectional = ea, ec, true
		case da.Drives() && dc.Receives():
			conn.From, conn.To = ea, ec
		case dc.Drives() && da.Receives():
			conn.From, conn.To = ec, ea
		default:
			if s.Required {
				b.diags.Errorf(diag.KindDirectionConflict, tmpl, "%s is %s on both %s and %s", s.Name, da, a.Ref(), c.Ref())
			} else {
				b.diags.Warnf(diag.KindDirectionConflict, tmpl, "optional %s is %s on both %s and %s; left unconnected", s.Name, da, a.Ref(), c.Ref())
			}
			continue
		}
		width, ok := b.agreeWidth(tmpl, ea, ec, a.Widths[s.Name], c.Widths[s.Name])
		if !ok {
			continue
		}
		conn.Width = width
		b.edges = append(b.edges, conn)
	}
}

// oneSided handles a signal bound on only one end of a link. Inputs are
// left for the undriven check; a required output with nowhere to go is a
// conflict.
func (b *builder) oneSided(s iface.SignalSpec, a, c *compliance.Instance, inA bool, tmpl diag.Diagnostic) {
	have, lack := a, c
	if !inA {
		have, lack = c, a
	}
	if have.Direction(s.Name) == hdl.In {
		return
	}
	tmpl.Module, tmpl.Instance = have.Module, have.Name
	tmpl.Port = have.Bindings[s.Name]
	if s.Required {
		b.diags.Errorf(diag.KindDirectionConflict, tmpl, "required %s output %s has no counterpart on %s", s.Name, have.Ref(), lack.Ref())
		return
	}
	b.diags.Warnf(diag.KindDanglingOutput, tmpl, "optional %s of %s has no counterpart on %s", s.Name, have.Ref(), lack.Ref())
}

func (b *builder) agreeWidth(tmpl diag.Diagnostic, a, c Endpoint, wa, wc int) (int, bool) {
	if wa == wc {
		return wa, true
	}
	if b.cfg.StrictWidthChecking {
		b.diags.Errorf(diag.KindWidthMismatch, tmpl, "%s is %d bits but %s is %d bits", a, wa, c, wc)
		return 0, false
	}
	b.diags.Warnf(diag.KindWidthMismatch, tmpl, "%s is %d bits but %s is %d bits; connecting %d", a, wa, c, wc, min(wa, wc))
	return min(wa, wc), true
}

func (b *builder) portLink(pl PortLink) {
	pa, okA := b.ports[pl.A]
	pc, okC := b.ports[pl.B]
	for _, miss := range []struct {
		ok  bool
		ref PortRef
	}{{okA, pl.A}, {okC, pl.B}} {
		if !miss.ok {
			b.diags.Errorf(diag.KindNotFound, diag.Diagnostic{Module: miss.ref.Module, Port: miss.ref.Port}, "no port %s", miss.ref)
		}
	}
	if !okA || !okC {
		return
	}

	ea := b.endpoint(pl.A)
	ec := b.endpoint(pl.B)
	tmpl := diag.Diagnostic{Module: pl.A.Module, Port: pl.A.Port}
	var conn Connection
	switch {
	case pa.Direction == hdl.InOut && pc.Direction == hdl.InOut:
		conn.From, conn.To, conn.Bidirectional = ea, ec, true
	case pa.Direction.Drives() && pc.Direction.Receives():
		conn.From, conn.To = ea, ec
	case pc.Direction.Drives() && pa.Direction.Receives():
		conn.From, conn.To = ec, ea
	default:
		b.diags.Errorf(diag.KindDirectionConflict, tmpl, "%s and %s are both %s", pl.A, pl.B, pa.Direction)
		return
	}
	width, ok := b.agreeWidth(tmpl, ea, ec, pa.Width, pc.Width)
	if !ok {
		return
	}
	conn.Width = width
	if owner, ok := b.owners[PortRef{Module: conn.To.Module, Port: conn.To.Port}]; ok {
		conn.Interface, conn.Signal = owner.inst.Def.Name, owner.signal.Name
	}
	b.edges = append(b.edges, conn)
}

// endpoint decorates a port with the interface instance it belongs to.
func (b *builder) endpoint(p PortRef) Endpoint {
	e := Endpoint{Module: p.Module, Port: p.Port}
	if owner, ok := b.owners[p]; ok {
		e.Instance = owner.inst.Name
	}
	return e
}

func (b *builder) tie(t Tie) {
	p, ok := b.ports[t.Target]
	tmpl := diag.Diagnostic{Module: t.Target.Module, Port: t.Target.Port}
	if !ok {
		b.diags.Errorf(diag.KindNotFound, tmpl, "no port %s to tie", t.Target)
		return
	}
	conn := Connection{Constant: &Constant{Value: t.Value}, To: b.endpoint(t.Target), Width: p.Width}
	if owner, ok := b.owners[t.Target]; ok {
		conn.Interface, conn.Signal = owner.inst.Def.Name, owner.signal.Name
		tmpl.Instance, tmpl.Interface, tmpl.Signal = owner.inst.Name, owner.inst.Def.Name, owner.signal.Name
	}
	if p.Direction != hdl.In {
		b.diags.Errorf(diag.KindDirectionConflict, tmpl, "cannot tie %s port %s to a constant", p.Direction, t.Target)
		return
	}
	if !fits(t.Value, p.Width) {
		if b.cfg.StrictWidthChecking {
			b.diags.Errorf(diag.KindWidthMismatch, tmpl, "constant %d does not fit in %d bits of %s", t.Value, p.Width, t.Target)
			return
		}
		b.diags.Warnf(diag.KindWidthMismatch, tmpl, "constant %d does not fit in %d bits of %s; it will be truncated", t.Value, p.Width, t.Target)
	}
	b.edges = append(b.edges, conn)
}

// fits reports whether a non-negative value can be represented in width bits.
func fits(v int64, width int) bool {
	if v < 0 {
		return false
	}
	return bits.Len64(uint64(v)) <= width
}

// dedupe keeps the first of identical edges, such as the ones produced when
// a link is requested from both ends.
func (b *builder) dedupe() {
	seen := make(map[string]bool, len(b.edges))
	kept := b.edges[:0]
	for _, c := range b.edges {
		k := c.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, c)
	}
	b.edges = kept
}

// resolveFanIn drops every edge into a receiver with more than one driver
// and returns the surviving connections in proposal order, plus the set of
// ports that have at least one proposed driver.
func (b *builder) resolveFanIn() ([]Connection, map[PortRef]bool) {
	b.dedupe()
	into := make(map[PortRef][]int)
	var order []PortRef
	driven := make(map[PortRef]bool)
	for i, c := range b.edges {
		to := PortRef{Module: c.To.Module, Port: c.To.Port}
		driven[to] = true
		if c.Bidirectional {
			driven[PortRef{Module: c.From.Module, Port: c.From.Port}] = true
			continue
		}
		if _, seen := into[to]; !seen {
			order = append(order, to)
		}
		into[to] = append(into[to], i)
	}

	dropped := make(map[int]bool)
	for _, to := range order {
		idx := into[to]
		if len(idx) < 2 {
			continue
		}
		drivers := make([]string, 0, len(idx))
		for _, i := range idx {
			drivers = append(drivers, b.edges[i].driver())
			dropped[i] = true
		}
		first := b.edges[idx[0]]
		b.diags.Errorf(diag.KindMultipleDrivers,
			diag.Diagnostic{Module: to.Module, Port: to.Port, Instance: first.To.Instance, Interface: first.Interface, Signal: first.Signal},
			"%s has %d drivers: %s", to, len(idx), strings.Join(drivers, ", "))
	}

	conns := make([]Connection, 0, len(b.edges)-len(dropped))
	for i, c := range b.edges {
		if !dropped[i] {
			conns = append(conns, c)
		}
	}
	return conns, driven
}

func (b *builder) checkUndriven(instances []*compliance.Instance, driven map[PortRef]bool) {
	for _, inst := range instances {
		for _, s := range inst.Bound() {
			if inst.Direction(s.Name) != hdl.In {
				continue
			}
			port := inst.Bindings[s.Name]
			if driven[PortRef{Module: inst.Module, Port: port}] {
				continue
			}
			tmpl := diag.Diagnostic{Module: inst.Module, Instance: inst.Name, Interface: inst.Def.Name, Signal: s.Name, Port: port}
			if s.Required {
				b.diags.Errorf(diag.KindUnconnectedRequiredSignal, tmpl, "required input %s (%s) has no driver and no constant", s.Name, port)
			} else {
				b.diags.Warnf(diag.KindUnconnectedOptionalSignal, tmpl, "optional input %s (%s) left unconnected", s.Name, port)
			}
		}
	}
}
