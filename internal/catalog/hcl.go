package catalog

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

// hclFile is the HCL layout. One file may hold several interfaces:
//
//	interface "AXI4Stream" {
//	  prefixes = ["s_axis_", "m_axis_"]
//	  signal "tvalid" { direction = "out" }
//	  signal "tdata"  { direction = "out"  width = DATA_WIDTH }
//	  signal "tlast"  { direction = "out"  required = false }
//	}
//
// Signals are required unless they say otherwise. width may be a number,
// a string, or a bare expression over parameters.
type hclFile struct {
	Interfaces []hclInterface `hcl:"interface,block"`
}

type hclInterface struct {
	Name        string      `hcl:"name,label"`
	Description string      `hcl:"description,optional"`
	Prefixes    []string    `hcl:"prefixes,optional"`
	Signals     []hclSignal `hcl:"signal,block"`
}

type hclSignal struct {
	Name      string         `hcl:"name,label"`
	Direction string         `hcl:"direction"`
	Required  *bool          `hcl:"required,optional"`
	Width     hcl.Expression `hcl:"width,optional"`
	Role      string         `hcl:"role,optional"`
}

func parseHCL(path string, data []byte) ([]iface.Record, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}

	var content hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &content); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}

	recs := make([]iface.Record, 0, len(content.Interfaces))
	for _, hi := range content.Interfaces {
		rec := iface.Record{
			Name:        hi.Name,
			Description: hi.Description,
			Prefixes:    hi.Prefixes,
		}
		for _, hs := range hi.Signals {
			width, err := hclWidth(hs.Width, data)
			if err != nil {
				return nil, fmt.Errorf("%s: interface %q signal %q: %w", path, hi.Name, hs.Name, err)
			}
			required := true
			if hs.Required != nil {
				required = *hs.Required
			}
			rec.Signals = append(rec.Signals, iface.SignalRecord{
				Name:      hs.Name,
				Direction: hs.Direction,
				Required:  required,
				Width:     width,
				Role:      hs.Role,
			})
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// hclWidth turns a width attribute into a record value. Literals are
// evaluated; anything referencing parameters is kept as source text and
// parsed by the width evaluator.
func hclWidth(expr hcl.Expression, src []byte) (any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return string(expr.Range().SliceBytes(src)), nil
	}
	if val.IsNull() {
		return nil, nil
	}
	switch {
	case val.Type().Equals(cty.Number):
		n, acc := val.AsBigFloat().Int64()
		if acc != big.Exact {
			return nil, fmt.Errorf("width %s is not an integer", val.AsBigFloat().Text('g', 10))
		}
		return int(n), nil
	case val.Type().Equals(cty.String):
		return val.AsString(), nil
	}
	return nil, fmt.Errorf("width must be a number or an expression, got %s", val.Type().FriendlyName())
}
