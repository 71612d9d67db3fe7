// Package validator checks data crossing a boundary of the tool against the
// embedded CUE contract: interface definitions after loading, IP core and
// design files before parsing, fact tables before policy evaluation, and the merged
// configuration.
//
// A failed check means the producer is wrong. Fix the producer or the file;
// never loosen the schema to make a check pass.
package validator

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// Definitions in schema.cue.
const (
	DefInterface = "#InterfaceDef"
	DefIPCore    = "#IPCore"
	DefDesign    = "#Design"
	DefFacts     = "#FactTables"
	DefConfig    = "#Config"
)

// Validator unifies data with the schema. It is not safe for concurrent use.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// ValidateInterface checks a flattened interface definition record.
func (v *Validator) ValidateInterface(rec any) error {
	return v.Validate(DefInterface, rec)
}

// ValidateIPCore checks a raw IP core description as decoded from YAML.
func (v *Validator) ValidateIPCore(raw any) error {
	return v.Validate(DefIPCore, raw)
}

// ValidateDesign checks a raw design description as decoded from YAML.
func (v *Validator) ValidateDesign(raw any) error {
	return v.Validate(DefDesign, raw)
}

// ValidateFacts checks fact tables before they reach the policy engine.
func (v *Validator) ValidateFacts(tables any) error {
	return v.Validate(DefFacts, tables)
}

// ValidateConfig checks the merged configuration.
func (v *Validator) ValidateConfig(cfg any) error {
	return v.Validate(DefConfig, cfg)
}

// Validate checks data against the named definition.
func (v *Validator) Validate(def string, data any) error {
	unified, err := v.unify(def, data)
	if err != nil {
		return err
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", def, err)
	}
	return nil
}

// ValidationErrors returns one line per schema violation, or nil.
func (v *Validator) ValidationErrors(def string, data any) []string {
	unified, err := v.unify(def, data)
	if err != nil {
		return []string{err.Error()}
	}
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var out []string
	for _, e := range errors.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}

func (v *Validator) unify(def string, data any) (cue.Value, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return cue.Value{}, fmt.Errorf("marshaling data to JSON: %w", err)
	}
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling data as CUE: %w", dataValue.Err())
	}
	schemaDef := v.schema.LookupPath(cue.ParsePath(def))
	if schemaDef.Err() != nil {
		return cue.Value{}, fmt.Errorf("looking up %s definition: %w", def, schemaDef.Err())
	}
	return schemaDef.Unify(dataValue), nil
}
