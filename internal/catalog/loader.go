// Package catalog loads interface definitions from disk and from the
// built-in set, checks each one against the schema contract, and builds the
// shared iface.Catalog.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

//go:embed builtin
var builtinFS embed.FS

// Loader reads definition files. It is not safe for concurrent use.
type Loader struct {
	logger    *log.Logger
	validator *validator.Validator
}

// NewLoader returns a loader that logs to logger, or to the default logger
// when nil.
func NewLoader(logger *log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.Default()
	}
	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	return &Loader{logger: logger, validator: v}, nil
}

// Load builds the catalog for a project: the built-in definitions when
// enabled, then every file found on the configured search paths. Invalid
// definitions are reported together. Duplicate names are fatal.
func (l *Loader) Load(ctx context.Context, cfg *config.Config, rootPath string) (*iface.Catalog, error) {
	var defs []*iface.InterfaceDef
	var errs []error

	if cfg.BuiltinInterfaces {
		builtins, err := l.LoadBuiltins()
		if err != nil {
			return nil, err
		}
		defs = append(defs, builtins...)
	}

	files, err := cfg.DefinitionFiles(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving interface search paths: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loading interfaces canceled: %w", err)
		}
		fileDefs, err := l.LoadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, fileDefs...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cat, err := iface.NewCatalog(defs...)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("interface catalog ready", "interfaces", cat.Len(), "files", len(files), "builtin", cfg.BuiltinInterfaces)
	return cat, nil
}

// LoadFile reads one YAML or HCL definition file.
func (l *Loader) LoadFile(file string) ([]*iface.InterfaceDef, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	defs, err := l.parse(file, data)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded interface definitions", "file", file, "count", len(defs))
	return defs, nil
}

// LoadBuiltins returns the definitions shipped with the tool.
func (l *Loader) LoadBuiltins() ([]*iface.InterfaceDef, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("reading builtin interfaces: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && config.IsDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []*iface.InterfaceDef
	for _, name := range names {
		data, err := builtinFS.ReadFile(path.Join("builtin", name))
		if err != nil {
			return nil, fmt.Errorf("reading builtin %s: %w", name, err)
		}
		fileDefs, err := l.parse("builtin/"+name, data)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

func (l *Loader) parse(file string, data []byte) ([]*iface.InterfaceDef, error) {
	var recs []iface.Record
	var err error
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		recs, err = parseYAML(file, data)
	case ".hcl":
		recs, err = parseHCL(file, data)
	default:
		return nil, fmt.Errorf("%s: unsupported definition format", file)
	}
	if err != nil {
		return nil, err
	}

	var defs []*iface.InterfaceDef
	var errs []error
	for _, rec := range recs {
		if problems := l.validator.ValidationErrors(validator.DefInterface, rec); len(problems) > 0 {
			errs = append(errs, &iface.DefinitionError{Interface: rec.Name, Source: file, Problems: problems})
			continue
		}
		def, err := iface.FromRecord(rec, file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// Load is a convenience wrapper for callers without a Loader.
func Load(ctx context.Context, cfg *config.Config, rootPath string, logger *log.Logger) (*iface.Catalog, error) {
	l, err := NewLoader(logger)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, cfg, rootPath)
}
