package iface

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
)

// Record is the flat, serializable form of a definition. Every loader
// reduces its file format to records, and records are what the schema
// contract validates.
type Record struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Prefixes    []string       `json:"prefixes,omitempty"`
	Signals     []SignalRecord `json:"signals"`
}

// SignalRecord is one signal of a Record. Width is an int or an expression string.
type SignalRecord struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Required  bool   `json:"required"`
	Width     any    `json:"width"`
	Role      string `json:"role,omitempty"`
}

// FromRecord builds and validates a definition.
func FromRecord(rec Record, source string) (*InterfaceDef, error) {
	def := InterfaceDef{
		Name:        rec.Name,
		Description: rec.Description,
		Prefixes:    rec.Prefixes,
		Source:      source,
	}
	var problems []string
	for _, sr := range rec.Signals {
		dir, err := hdl.ParseDirection(sr.Direction)
		if err != nil {
			problems = append(problems, fmt.Sprintf("signal %q: %v", sr.Name, err))
		}
		width, err := WidthFromValue(sr.Width)
		if err != nil {
			problems = append(problems, fmt.Sprintf("signal %q: %v", sr.Name, err))
		}
		def.Signals = append(def.Signals, SignalSpec{
			Name:      sr.Name,
			Direction: dir,
			Required:  sr.Required,
			Width:     width,
			Role:      Role(sr.Role),
		})
	}
	if len(problems) > 0 {
		return nil, &DefinitionError{Interface: rec.Name, Source: source, Problems: problems}
	}
	return Define(def)
}

// Record returns the serializable form of the definition.
func (d *InterfaceDef) Record() Record {
	rec := Record{
		Name:        d.Name,
		Description: d.Description,
		Prefixes:    append([]string(nil), d.Prefixes...),
		Signals:     make([]SignalRecord, 0, len(d.Signals)),
	}
	for _, s := range d.Signals {
		rec.Signals = append(rec.Signals, SignalRecord{
			Name:      s.Name,
			Direction: string(s.Direction),
			Required:  s.Required,
			Width:     s.Width.Value(),
			Role:      string(s.Role),
		})
	}
	return rec
}
