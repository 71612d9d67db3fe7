package iface

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
)

// Catalog is the read-only set of known interface types.
type Catalog struct {
	byName   map[string]*InterfaceDef
	names    []string
	prefixes []prefixEntry
}

type prefixEntry struct {
	prefix string
	def    *InterfaceDef
}

// NewCatalog indexes the given definitions. Two definitions with the same
// name are a fatal error: the catalog cannot be trusted afterwards.
func NewCatalog(defs ...*InterfaceDef) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*InterfaceDef, len(defs))}
	var dups []string
	for _, d := range defs {
		if d == nil {
			continue
		}
		if d.index == nil {
			if err := d.init(); err != nil {
				return nil, err
			}
		}
		if prev, ok := c.byName[d.Name]; ok {
			dups = append(dups, fmt.Sprintf("%q (%s, %s)", d.Name, sourceOf(prev), sourceOf(d)))
			continue
		}
		c.byName[d.Name] = d
		c.names = append(c.names, d.Name)
		for _, p := range d.Prefixes {
			c.prefixes = append(c.prefixes, prefixEntry{prefix: p, def: d})
		}
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInterface, strings.Join(dups, ", "))
	}

	sort.Strings(c.names)
	sort.Slice(c.prefixes, func(i, j int) bool {
		a, b := c.prefixes[i], c.prefixes[j]
		if len(a.prefix) != len(b.prefix) {
			return len(a.prefix) > len(b.prefix)
		}
		if a.prefix != b.prefix {
			return a.prefix < b.prefix
		}
		return a.def.Name < b.def.Name
	})
	return c, nil
}

func sourceOf(d *InterfaceDef) string {
	if d.Source == "" {
		return "<builtin>"
	}
	return d.Source
}

// ByName returns the definition with exactly this name.
func (c *Catalog) ByName(name string) (*InterfaceDef, error) {
	if d, ok := c.byName[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("interface %q: %w", name, diag.ErrNotFound)
}

// ByPrefix returns every definition declaring a prefix that s starts with,
// longest prefix first, then by name. s may be a bare prefix ("s_axi_") or
// a full port name ("s_axi_awvalid"). No match yields an empty slice.
func (c *Catalog) ByPrefix(s string) []*InterfaceDef {
	out := []*InterfaceDef{}
	seen := make(map[string]bool)
	for _, e := range c.prefixes {
		if seen[e.def.Name] || !strings.HasPrefix(s, e.prefix) {
			continue
		}
		seen[e.def.Name] = true
		out = append(out, e.def)
	}
	return out
}

// All returns every definition sorted by name.
func (c *Catalog) All() []*InterfaceDef {
	out := make([]*InterfaceDef, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.byName[n])
	}
	return out
}

// Names returns the sorted definition names.
func (c *Catalog) Names() []string { return append([]string(nil), c.names...) }

// Len is the number of definitions.
func (c *Catalog) Len() int { return len(c.names) }
