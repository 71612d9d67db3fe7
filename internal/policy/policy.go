// Package policy evaluates Rego design rules against the fact tables of a
// composed design.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/facts"
)

//go:embed rules/*.rego
var builtinRules embed.FS

const (
	violationsQuery = "data.topwrap.policy.violations"
	summaryQuery    = "data.topwrap.policy.summary"
)

// Engine holds the prepared violation and summary queries.
type Engine struct {
	violations rego.PreparedEvalQuery
	summary    rego.PreparedEvalQuery
	files      []string
}

// Violation is one rule hit, attributed to a module.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Module   string `json:"module"`
	Message  string `json:"message"`
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary counts violations by severity.
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

// New prepares the built-in rules plus every .rego file in policyDir.
// An empty policyDir loads only the built-in rules.
func New(ctx context.Context, policyDir string) (*Engine, error) {
	var modules []func(*rego.Rego)
	var files []string

	entries, err := builtinRules.ReadDir("rules")
	if err != nil {
		return nil, fmt.Errorf("reading built-in rules: %w", err)
	}
	for _, e := range entries {
		name := "rules/" + e.Name()
		content, err := builtinRules.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		modules = append(modules, rego.Module("builtin/"+e.Name(), string(content)))
		files = append(files, "builtin/"+e.Name())
	}

	if policyDir != "" {
		extra, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(extra) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", policyDir)
		}
		for _, f := range extra {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
			files = append(files, f)
		}
	}

	engine := &Engine{files: files}
	engine.violations, err = prepare(ctx, modules, violationsQuery)
	if err != nil {
		return nil, fmt.Errorf("preparing violations query: %w", err)
	}
	engine.summary, err = prepare(ctx, modules, summaryQuery)
	if err != nil {
		return nil, fmt.Errorf("preparing summary query: %w", err)
	}
	return engine, nil
}

func prepare(ctx context.Context, modules []func(*rego.Rego), query string) (rego.PreparedEvalQuery, error) {
	opts := append(append([]func(*rego.Rego){}, modules...), rego.Query(query))
	return rego.New(opts...).PrepareForEval(ctx)
}

// Files lists the rule modules the engine was built from.
func (e *Engine) Files() []string { return append([]string(nil), e.files...) }

// Evaluate runs the policies against the fact tables. Violations are sorted
// by module, rule and message.
func (e *Engine) Evaluate(ctx context.Context, tables facts.Tables) (*Result, error) {
	input, err := asInput(tables)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}
	if err := evalInto(ctx, e.violations, input, &result.Violations); err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}
	sort.Slice(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})

	if err := evalInto(ctx, e.summary, input, &result.Summary); err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}
	return result, nil
}

// asInput gives rego the tables in their JSON shape, so rules see the same
// field names as the CUE contract.
func asInput(tables facts.Tables) (map[string]any, error) {
	data, err := json.Marshal(tables)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// evalInto decodes the first expression value of the query into out. An
// undefined result leaves out untouched.
func evalInto(ctx context.Context, q rego.PreparedEvalQuery, input map[string]any, out any) error {
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil
	}
	data, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
