package compliance

import (
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// Discovery is what Discover found on one module.
type Discovery struct {
	Instances   []*Instance
	Diagnostics diag.List
}

// Discover searches a module's ports for undeclared interface instances.
//
// Every (definition, prefix) pair for which some port is named
// prefix+signal is a candidate. Candidates are grouped by prefix and the
// groups are tried longest prefix first. Within a group every definition
// is checked; a single compliant definition wins and several compliant
// ones are an ambiguous_interface error naming all of them, with no
// instance created. Ports taken by an earlier group are invisible to later
// ones. Finding nothing is fine.
//
// Ports named in exclude (typically those claimed by declared instances)
// are ignored.
func Discover(m *hdl.Module, cat *iface.Catalog, cfg *config.Config, exclude map[string]bool) Discovery {
	if cfg == nil {
		cfg = config.Current()
	}
	var out Discovery

	taken := make(map[string]bool, len(exclude))
	for p := range exclude {
		taken[p] = true
	}

	groups := candidates(m.Ports, cat, taken)
	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	for _, prefix := range prefixes {
		avail := available(m.Ports, taken)
		var compliant []Result
		for _, def := range groups[prefix] {
			if !hasCandidatePort(avail, prefix, def) {
				continue
			}
			res := Check(avail, def, cfg,
				WithPrefix(prefix),
				WithModule(m.Name),
				WithParams(m.Params),
			)
			if res.Compliant() {
				compliant = append(compliant, res)
			}
		}

		switch len(compliant) {
		case 0:
			continue
		case 1:
			out.accept(compliant[0], taken)
		default:
			names := make([]string, 0, len(compliant))
			for _, r := range compliant {
				names = append(names, r.Interface)
				for _, port := range r.Instance.Bindings {
					taken[port] = true
				}
			}
			out.Diagnostics.Errorf(diag.KindAmbiguousInterface,
				diag.Diagnostic{Module: m.Name, Instance: instanceName(prefix, "")},
				"ports with prefix %q match %s equally well", prefix, strings.Join(names, ", "))
		}
	}
	return out
}

func (d *Discovery) accept(r Result, taken map[string]bool) {
	d.Instances = append(d.Instances, r.Instance)
	d.Diagnostics = append(d.Diagnostics, r.Diagnostics...)
	for _, port := range r.Instance.Bindings {
		taken[port] = true
	}
}

// candidates groups definitions by the declared prefixes that some free
// port name actually uses. Definitions within a group are name-sorted.
func candidates(ports []hdl.Port, cat *iface.Catalog, taken map[string]bool) map[string][]*iface.InterfaceDef {
	groups := make(map[string][]*iface.InterfaceDef)
	for _, def := range cat.All() {
		for _, prefix := range def.Prefixes {
			for _, p := range ports {
				if taken[p.Name] || !strings.HasPrefix(p.Name, prefix) {
					continue
				}
				if _, ok := def.Signal(p.Name[len(prefix):]); ok {
					groups[prefix] = append(groups[prefix], def)
					break
				}
			}
		}
	}
	return groups
}

func available(ports []hdl.Port, taken map[string]bool) []hdl.Port {
	out := make([]hdl.Port, 0, len(ports))
	for _, p := range ports {
		if !taken[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

func hasCandidatePort(ports []hdl.Port, prefix string, def *iface.InterfaceDef) bool {
	for _, p := range ports {
		if strings.HasPrefix(p.Name, prefix) {
			if _, ok := def.Signal(p.Name[len(prefix):]); ok {
				return true
			}
		}
	}
	return false
}
