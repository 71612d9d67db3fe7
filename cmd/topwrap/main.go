// topwrap checks IP cores against interface definitions and connects them
// into a netlist.
//
// THE PIPELINE:
//  1. Interface definitions load from the built-in set and the project's
//     search paths (YAML and HCL), each checked against the CUE contract
//  2. IP core and design descriptions load from YAML
//  3. Every module's declared interfaces are checked and undeclared ones
//     discovered from port-name prefixes
//  4. The design's interface links, port links and ties become a netlist
//  5. The outcome is flattened into fact tables and the Rego design rules
//     run over them
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath   string
	root         string
	strictWidth  bool
	allowPartial bool
	policyDir    string
	logLevel     string
	jsonOutput   bool
	timing       bool
	timingPath   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:          "topwrap",
		Short:        "Interface compliance and interconnect for IP core designs",
		SilenceUsage: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default: topwrap.toml in the project root)")
	pf.StringVar(&g.root, "root", ".", "Project root for interface search paths and policy_dir")
	pf.BoolVar(&g.strictWidth, "strict-width", false, "Require port widths to equal interface widths")
	pf.BoolVar(&g.allowPartial, "allow-partial", false, "Downgrade missing required signals to warnings")
	pf.StringVar(&g.policyDir, "policy-dir", "", "Directory with extra .rego design rules")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&g.jsonOutput, "json", false, "Print results as JSON")
	pf.BoolVar(&g.timing, "timing", false, "Write per-stage timing as JSONL")
	pf.StringVar(&g.timingPath, "timing-path", "", "Timing output file (default: <root>/timing.jsonl)")

	rootCmd.AddCommand(
		newBuildCmd(&g),
		newCheckCmd(&g),
		newInterfacesCmd(&g),
		newInitCmd(&g),
	)
	return rootCmd
}

// loadConfig merges the config file, TOPWRAP_* variables and the flags the
// user actually set, then installs the result.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var sources []config.Source
	switch {
	case g.configPath != "":
		sources = append(sources, config.File(g.configPath))
	default:
		if path, ok := config.FindFile(g.root); ok {
			sources = append(sources, config.File(path))
		}
	}
	sources = append(sources, config.Env("TOPWRAP"))

	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("strict-width") {
		overrides["strict_width_checking"] = g.strictWidth
	}
	if flags.Changed("allow-partial") {
		overrides["allow_partial_interfaces"] = g.allowPartial
	}
	if flags.Changed("policy-dir") {
		dir, err := filepath.Abs(g.policyDir)
		if err != nil {
			return nil, err
		}
		overrides["policy_dir"] = dir
	}
	if flags.Changed("log-level") {
		overrides["log.level"] = g.logLevel
	}
	if len(overrides) > 0 {
		sources = append(sources, config.Values(overrides))
	}

	cfg, err := config.Load(sources...)
	if err != nil {
		return nil, err
	}
	config.Set(cfg)
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	formatter := log.TextFormatter
	switch cfg.Log.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:    "topwrap",
		Level:     level,
		Formatter: formatter,
	}), nil
}
