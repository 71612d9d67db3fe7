// Package composer runs the whole pipeline for one invocation: load the
// interface catalog, check every module, build the netlist, flatten the
// outcome into fact tables and evaluate the design rules over them.
package composer

// Fact tables that fail the CUE contract fail the run. Fix the stage that
// produced them; do not filter rows here.

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/catalog"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/design"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/facts"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/policy"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

// Composer holds the settings for a run. The zero value uses the installed
// configuration, the default logger and the current directory.
type Composer struct {
	// Config is snapshotted once per run; nil means config.Current().
	Config *config.Config
	Logger *log.Logger
	// RootPath anchors relative interface search paths and policy_dir.
	RootPath string
	// Catalog skips catalog loading when set.
	Catalog *iface.Catalog

	// Timing output (JSONL)
	Timing     bool
	TimingPath string
}

// Result is the structured outcome of a run.
type Result struct {
	Modules     []ModuleResult       `json:"modules"`
	Connections []netlist.Connection `json:"connections"`
	Diagnostics diag.List            `json:"diagnostics"`
	Violations  []policy.Violation   `json:"violations"`
	Summary     Summary              `json:"summary"`

	// Instances are the validated instances in module order.
	Instances []*compliance.Instance `json:"-"`
	// Facts are the tables the rules were evaluated against.
	Facts facts.Tables `json:"-"`
	// Delta holds the fact rows that changed since the previous build of
	// the same design. Nil when cache_dir is unset or nothing was cached.
	Delta *facts.Delta `json:"-"`
}

// ModuleResult is the per-module breakdown.
type ModuleResult struct {
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	Source    string           `json:"source,omitempty"`
	Instances []InstanceResult `json:"instances"`
	Errors    int              `json:"errors"`
	Warnings  int              `json:"warnings"`
}

// InstanceResult describes one validated interface instance.
type InstanceResult struct {
	Name      string            `json:"name"`
	Interface string            `json:"interface"`
	Mode      string            `json:"mode"`
	Prefix    string            `json:"prefix,omitempty"`
	Declared  bool              `json:"declared"`
	Bindings  map[string]string `json:"bindings"`
}

// Summary provides aggregate counts.
type Summary struct {
	Modules     int `json:"modules"`
	Instances   int `json:"instances"`
	Connections int `json:"connections"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	Info        int `json:"info"`
	Violations  int `json:"violations"`
}

// Err returns the run's error diagnostics as an error, or nil. Policy
// violations never fail a run on their own.
func (r *Result) Err() error { return r.Diagnostics.Err() }

// Check validates the interfaces of standalone modules without connecting
// them.
func (c *Composer) Check(ctx context.Context, modules []*hdl.Module) (*Result, error) {
	return c.run(ctx, modules, nil)
}

// Build validates every module of a design and resolves its connections.
func (c *Composer) Build(ctx context.Context, d *design.Design) (*Result, error) {
	if d == nil {
		return nil, errors.New("no design")
	}
	return c.run(ctx, d.Modules, d)
}

func (c *Composer) root() string {
	if c.RootPath == "" {
		return "."
	}
	return c.RootPath
}

func (c *Composer) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

func (c *Composer) run(ctx context.Context, modules []*hdl.Module, d *design.Design) (*Result, error) {
	runStart := time.Now()
	logger := c.logger()
	cfg := c.Config
	if cfg == nil {
		cfg = config.Current()
	}

	timing := newStopwatch(runStart, c.timingPath())
	if err := timing.Err(); err != nil {
		logger.Warn("timing output disabled", "err", err)
	}
	defer timing.Close()

	if err := checkUniqueNames(modules); err != nil {
		return nil, err
	}

	// 1. Interface catalog
	stepStart := time.Now()
	cat := c.Catalog
	if cat == nil {
		var err error
		cat, err = catalog.Load(ctx, cfg, c.root(), logger)
		if err != nil {
			return nil, fmt.Errorf("loading interface catalog: %w", err)
		}
	}
	timing.Stage("catalog", stepStart, "")
	logger.Debug("interface catalog ready", "interfaces", cat.Len())

	// 2. Per-module compliance and discovery, in parallel
	stepStart = time.Now()
	checked := make([]moduleCheck, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.MaxParallelModules
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for i, m := range modules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			modStart := time.Now()
			checked[i] = checkModule(m, cat, cfg)
			status := "ok"
			if checked[i].diags.HasErrors() {
				status = "errors"
			}
			timing.Module("check", m.Name, status, modStart)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	timing.Stage("check", stepStart, "")

	res := &Result{
		Modules:     make([]ModuleResult, 0, len(modules)),
		Connections: []netlist.Connection{},
		Diagnostics: diag.List{},
	}
	for i := range modules {
		res.Instances = append(res.Instances, checked[i].instances...)
		res.Diagnostics = append(res.Diagnostics, checked[i].diags...)
	}

	// 3. Netlist
	if d != nil {
		stepStart = time.Now()
		nl := netlist.Build(d.Request(res.Instances), cfg)
		res.Connections = append(res.Connections, nl.Connections...)
		res.Diagnostics = append(res.Diagnostics, nl.Diagnostics...)
		timing.Stage("netlist", stepStart, "")
		logger.Debug("netlist built", "connections", len(nl.Connections), "diagnostics", len(nl.Diagnostics))
	}

	// 4. Fact tables, checked against the contract
	stepStart = time.Now()
	res.Facts = facts.BuildTables(facts.Input{
		Modules:     modules,
		Interfaces:  cat.All(),
		Instances:   res.Instances,
		Connections: res.Connections,
		Diagnostics: res.Diagnostics,
	})
	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	if err := v.ValidateFacts(res.Facts); err != nil {
		return nil, fmt.Errorf("fact tables violate contract: %w", err)
	}
	timing.Stage("facts", stepStart, "")

	if cache := c.snapshotCache(cfg.CacheDir); cache != nil && d != nil && d.Source != "" {
		prev, ok, err := cache.load(d.Source)
		if err != nil {
			logger.Warn("ignoring fact snapshot", "err", err)
		}
		if ok {
			delta := facts.ComputeDelta(prev, res.Facts)
			res.Delta = &delta
			logger.Info("facts changed since last build", "added", delta.Added.Len(), "removed", delta.Removed.Len())
		}
		if err := cache.save(d.Source, res.Facts); err != nil {
			logger.Warn("fact snapshot not saved", "err", err)
		}
	}

	// 5. Design rules
	stepStart = time.Now()
	policyDir := cfg.PolicyDir
	if policyDir != "" && !filepath.IsAbs(policyDir) {
		policyDir = filepath.Join(c.root(), policyDir)
	}
	engine, err := policy.New(ctx, policyDir)
	if err != nil {
		return nil, fmt.Errorf("loading policies: %w", err)
	}
	pres, err := engine.Evaluate(ctx, res.Facts)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation: %w", err)
	}
	res.Violations = pres.Violations
	timing.Stage("policy", stepStart, "")

	for i, m := range modules {
		res.Modules = append(res.Modules, moduleResult(m, checked[i]))
	}
	res.Summary = summarize(res)
	timing.Stage("total", runStart, "")
	logger.Debug("run finished", "modules", res.Summary.Modules, "errors", res.Summary.Errors,
		"warnings", res.Summary.Warnings, "violations", res.Summary.Violations, "elapsed", time.Since(runStart))
	return res, nil
}

type moduleCheck struct {
	instances []*compliance.Instance
	diags     diag.List
}

// checkModule validates the module's declared interfaces, then discovers
// undeclared ones among the ports the declarations left alone.
func checkModule(m *hdl.Module, cat *iface.Catalog, cfg *config.Config) moduleCheck {
	var out moduleCheck
	claimed := make(map[string]bool)

	for _, decl := range m.Interfaces {
		mode, err := iface.ParseMode(decl.Mode)
		if err != nil {
			out.diags.Errorf(diag.KindNonCompliant, diag.Diagnostic{Module: m.Name, Interface: decl.Type, Instance: decl.Name}, "%v", err)
			continue
		}
		opts := []compliance.Option{
			compliance.WithModule(m.Name),
			compliance.WithInstance(decl.Name),
			compliance.WithParams(m.Params),
			compliance.WithMode(mode),
			compliance.Declared(),
		}
		if decl.Prefix != "" {
			opts = append(opts, compliance.WithPrefix(decl.Prefix))
		}
		if len(decl.Ports) > 0 {
			opts = append(opts, compliance.WithBindings(decl.Ports))
		}
		r := compliance.CheckByName(m.Ports, cat, decl.Type, cfg, opts...)
		out.diags = append(out.diags, r.Diagnostics...)
		if r.Compliant() {
			out.instances = append(out.instances, r.Instance)
		}
		// Declared ports stay claimed even when the check fails.
		for _, port := range decl.Ports {
			claimed[port] = true
		}
		if decl.Prefix != "" {
			for _, p := range m.Ports {
				if strings.HasPrefix(p.Name, decl.Prefix) {
					claimed[p.Name] = true
				}
			}
		}
		if r.Instance != nil {
			for _, port := range r.Instance.Bindings {
				claimed[port] = true
			}
		}
	}

	disc := compliance.Discover(m, cat, cfg, claimed)
	out.instances = append(out.instances, disc.Instances...)
	out.diags = append(out.diags, disc.Diagnostics...)
	return out
}

func checkUniqueNames(modules []*hdl.Module) error {
	seen := make(map[string]bool, len(modules))
	var dups []string
	for _, m := range modules {
		if seen[m.Name] {
			dups = append(dups, m.Name)
		}
		seen[m.Name] = true
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return fmt.Errorf("duplicate module names: %s", strings.Join(dups, ", "))
	}
	return nil
}

func moduleResult(m *hdl.Module, mc moduleCheck) ModuleResult {
	mr := ModuleResult{
		Name:      m.Name,
		Type:      m.Type,
		Source:    m.Source,
		Instances: make([]InstanceResult, 0, len(mc.instances)),
	}
	for _, inst := range mc.instances {
		mr.Instances = append(mr.Instances, InstanceResult{
			Name:      inst.Name,
			Interface: inst.Def.Name,
			Mode:      string(inst.Mode),
			Prefix:    inst.Prefix,
			Declared:  inst.Declared,
			Bindings:  inst.Bindings,
		})
	}
	mr.Errors, mr.Warnings, _ = mc.diags.Counts()
	return mr
}

func summarize(res *Result) Summary {
	s := Summary{
		Modules:     len(res.Modules),
		Instances:   len(res.Instances),
		Connections: len(res.Connections),
		Violations:  len(res.Violations),
	}
	s.Errors, s.Warnings, s.Info = res.Diagnostics.Counts()
	return s
}
