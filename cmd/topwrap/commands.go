package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/catalog"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/composer"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/design"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/report"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

// errFailed signals that the result was printed and contains errors.
var errFailed = errors.New("design has errors")

func newBuildCmd(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build <design.yaml>",
		Short: "Check every IP core of a design and resolve its connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}

			loader, err := design.NewLoader(logger)
			if err != nil {
				return err
			}
			d, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			c := g.composer(cfg)
			c.Logger = logger
			res, err := c.Build(cmd.Context(), d)
			if err != nil {
				return err
			}

			switch {
			case output == "":
			case res.Err() != nil:
				logger.Warn("netlist not written, design has errors", "path", output)
			default:
				if err := writeNetlist(output, report.NewNetlist(args[0], res)); err != nil {
					return err
				}
				logger.Info("netlist written", "path", output, "connections", len(res.Connections))
			}
			return g.print(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the netlist JSON to this file")
	return cmd
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check <ipcore.yaml>...",
		Short: "Check IP core interfaces without connecting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}

			v, err := validator.New()
			if err != nil {
				return err
			}
			modules := make([]*hdl.Module, 0, len(args))
			for _, path := range args {
				core, err := design.LoadIPCore(path, v)
				if err != nil {
					return err
				}
				m, err := core.Instantiate(core.Name, nil)
				if err != nil {
					return err
				}
				modules = append(modules, m)
			}

			c := g.composer(cfg)
			c.Logger = logger
			res, err := c.Check(cmd.Context(), modules)
			if err != nil {
				return err
			}
			return g.print(cmd, res)
		},
	}
}

func newInterfacesCmd(g *globalFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List the interface definitions in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cmd.Context(), cfg, g.root, logger)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				records := make([]any, 0, cat.Len())
				for _, d := range cat.All() {
					records = append(records, d.Record())
				}
				return report.JSON(cmd.OutOrStdout(), records)
			}
			return report.Interfaces(cmd.OutOrStdout(), cat.All(), verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every signal")
	return cmd
}

func newInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a topwrap.toml configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(g.root, "topwrap.toml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Defaults().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "\nEdit this file to configure:")
			fmt.Fprintln(cmd.OutOrStdout(), "  - Interface definition search paths")
			fmt.Fprintln(cmd.OutOrStdout(), "  - Width checking and partial interfaces")
			fmt.Fprintln(cmd.OutOrStdout(), "  - Extra design rules (policy_dir)")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func (g *globalFlags) composer(cfg *config.Config) *composer.Composer {
	return &composer.Composer{
		Config:     cfg,
		RootPath:   g.root,
		Timing:     g.timing,
		TimingPath: g.timingPath,
	}
}

func (g *globalFlags) print(cmd *cobra.Command, res *composer.Result) error {
	var err error
	if g.jsonOutput {
		err = report.JSON(cmd.OutOrStdout(), res)
	} else {
		err = report.Text(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return err
	}
	if res.Err() != nil {
		return errFailed
	}
	return nil
}

func writeNetlist(path string, doc report.Netlist) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing netlist: %w", err)
	}
	if err := report.JSON(f, doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing netlist: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing netlist: %w", err)
	}
	return nil
}
