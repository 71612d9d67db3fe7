// topwrap-facts builds a design and dumps the fact tables the design rules
// run over, optionally with a delta against an earlier dump.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/composer"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/design"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/facts"
)

func main() {
	if err := newCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	root       string
	output     string
	deltaFrom  string
	deltaOut   string
	impact     string
}

func newCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "topwrap-facts [--output file] [--delta-from prev.json --delta-out delta.json] <design.yaml>",
		Short:        "Dump the fact tables of a composed design",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Config file (default: topwrap.toml in the project root)")
	f.StringVar(&o.root, "root", ".", "Project root")
	f.StringVarP(&o.output, "output", "o", "", "Write facts JSON to file (default: stdout)")
	f.StringVar(&o.deltaFrom, "delta-from", "", "Previous facts JSON to compute delta from")
	f.StringVar(&o.deltaOut, "delta-out", "", "Write delta JSON to file (requires --delta-from)")
	f.StringVar(&o.impact, "impact", "", "Restrict output to the modules a change to this module reaches")
	return cmd
}

func (o *options) run(cmd *cobra.Command, designPath string) error {
	if (o.deltaFrom == "") != (o.deltaOut == "") {
		return errors.New("--delta-from and --delta-out must be used together")
	}

	var sources []config.Source
	if o.configPath != "" {
		sources = append(sources, config.File(o.configPath))
	} else if path, ok := config.FindFile(o.root); ok {
		sources = append(sources, config.File(path))
	}
	sources = append(sources, config.Env("TOPWRAP"))
	cfg, err := config.Load(sources...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.Set(cfg)

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "topwrap-facts", Level: level})

	loader, err := design.NewLoader(logger)
	if err != nil {
		return err
	}
	d, err := loader.Load(designPath)
	if err != nil {
		return err
	}

	c := &composer.Composer{Config: cfg, Logger: logger, RootPath: o.root}
	res, err := c.Build(cmd.Context(), d)
	if err != nil {
		return err
	}
	if res.Err() != nil {
		logger.Warn("design has errors", "errors", res.Summary.Errors)
	}

	tables := res.Facts
	var scope map[string]bool
	if o.impact != "" {
		report := composer.ComputeImpact(o.impact, composer.BuildDependentsGraph(res.Connections))
		fmt.Fprintf(cmd.ErrOrStderr(), "impact of %s:\n%s", o.impact, composer.FormatImpactReport(report))
		scope = report.Modules()
		tables = facts.FilterTablesByModules(tables, scope)
	}

	if o.output != "" {
		if err := writeJSON(o.output, tables); err != nil {
			return fmt.Errorf("writing facts: %w", err)
		}
	} else if err := encode(cmd.OutOrStdout(), tables); err != nil {
		return fmt.Errorf("encoding facts: %w", err)
	}

	if o.deltaFrom == "" {
		return nil
	}
	prev, err := readTables(o.deltaFrom)
	if err != nil {
		return fmt.Errorf("reading delta-from: %w", err)
	}
	delta := facts.ComputeDelta(prev, res.Facts)
	if scope != nil {
		delta = facts.FilterDeltaByModules(delta, scope)
	}
	if err := writeJSON(o.deltaOut, delta); err != nil {
		return fmt.Errorf("writing delta: %w", err)
	}
	logger.Debug("delta written", "added", delta.Added.Len(), "removed", delta.Removed.Len())
	return nil
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return encode(f, data)
}

func encode(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
