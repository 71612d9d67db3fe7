package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/validator"
)

// Config is the top-level configuration for topwrap.
//
// A Config is a value: once loaded it is never modified. Operations read
// Current() once when they start and use that snapshot until they finish.
type Config struct {
	// InterfaceSearchPaths lists directories, files or doublestar globs
	// holding interface definitions. Relative entries resolve against the
	// project root.
	InterfaceSearchPaths []string `mapstructure:"interface_search_paths" json:"interface_search_paths" toml:"interface_search_paths"`

	// Ignore lists doublestar patterns for definition files to skip.
	Ignore []string `mapstructure:"ignore" json:"ignore" toml:"ignore"`

	// BuiltinInterfaces loads the interface types shipped with the tool.
	BuiltinInterfaces bool `mapstructure:"builtin_interfaces" json:"builtin_interfaces" toml:"builtin_interfaces"`

	// StrictWidthChecking requires port widths to equal the resolved
	// interface width. When false a wider port is only a warning.
	StrictWidthChecking bool `mapstructure:"strict_width_checking" json:"strict_width_checking" toml:"strict_width_checking"`

	// AllowPartialInterfaces downgrades missing required signals to warnings.
	AllowPartialInterfaces bool `mapstructure:"allow_partial_interfaces" json:"allow_partial_interfaces" toml:"allow_partial_interfaces"`

	// PolicyDir holds extra .rego design rules.
	PolicyDir string `mapstructure:"policy_dir" json:"policy_dir" toml:"policy_dir"`

	// CacheDir keeps the last fact tables of each design so a build can
	// report what changed. Empty disables the cache. Relative paths resolve
	// against the project root.
	CacheDir string `mapstructure:"cache_dir" json:"cache_dir" toml:"cache_dir"`

	// MaxParallelModules bounds concurrent module checks (0 = number of CPUs).
	MaxParallelModules int `mapstructure:"max_parallel_modules" json:"max_parallel_modules" toml:"max_parallel_modules"`

	Log LogConfig `mapstructure:"log" json:"log" toml:"log"`
}

// LogConfig controls the logger built by the CLIs.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" json:"level" toml:"level"`
	// Format is one of text, json, logfmt.
	Format string `mapstructure:"format" json:"format" toml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		InterfaceSearchPaths:   []string{},
		Ignore:                 []string{},
		BuiltinInterfaces:      true,
		StrictWidthChecking:    false,
		AllowPartialInterfaces: false,
		PolicyDir:              "",
		CacheDir:               "",
		MaxParallelModules:     0,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var current atomic.Pointer[Config]

// Current returns the installed configuration, or the defaults when none
// has been installed.
func Current() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return Defaults()
}

// Set installs cfg as the process-wide configuration. Operations already
// running keep the snapshot they started with.
func Set(cfg *Config) {
	current.Store(cfg)
}

// Reset restores the defaults.
func Reset() {
	current.Store(nil)
}

// Source contributes settings to Load. Sources are applied in order and
// later sources win.
type Source interface {
	apply(v *viper.Viper) error
	String() string
}

// File reads a TOML, YAML or JSON config file, chosen by extension.
func File(path string) Source { return fileSource(path) }

type fileSource string

func (s fileSource) String() string { return string(s) }

func (s fileSource) apply(v *viper.Viper) error {
	path := string(s)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Values merges explicit settings, typically command line overrides.
// Keys may be nested maps or dotted paths ("log.level").
func Values(m map[string]any) Source { return valuesSource(m) }

type valuesSource map[string]any

func (s valuesSource) String() string { return "overrides" }

func (s valuesSource) apply(v *viper.Viper) error {
	nested := make(map[string]any)
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		setPath(nested, strings.Split(k, "."), s[k])
	}
	if err := v.MergeConfigMap(nested); err != nil {
		return fmt.Errorf("merging overrides: %w", err)
	}
	return nil
}

// Env reads PREFIX_KEY variables for every known key, e.g.
// TOPWRAP_STRICT_WIDTH_CHECKING or TOPWRAP_LOG_LEVEL. Unlike viper's
// AutomaticEnv the variables merge at this source's position in the list.
func Env(prefix string) Source { return envSource(prefix) }

type envSource string

func (s envSource) String() string { return "env:" + string(s) }

func (s envSource) apply(v *viper.Viper) error {
	found := make(map[string]any)
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(string(s) + "_" + strings.ReplaceAll(key, ".", "_"))
		if val, ok := os.LookupEnv(name); ok {
			found[key] = val
		}
	}
	if len(found) == 0 {
		return nil
	}
	return valuesSource(found).apply(v)
}

func setPath(m map[string]any, path []string, val any) {
	if len(path) == 1 {
		m[path[0]] = val
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[path[0]] = child
	}
	setPath(child, path[1:], val)
}

// Load merges the defaults with each source in order and validates the
// result against the configuration contract.
func Load(sources ...Source) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	for _, src := range sources {
		if err := src.apply(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.InterfaceSearchPaths == nil {
		cfg.InterfaceSearchPaths = []string{}
	}
	if cfg.Ignore == nil {
		cfg.Ignore = []string{}
	}

	val, err := validator.New()
	if err != nil {
		return nil, err
	}
	if err := val.ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("interface_search_paths", d.InterfaceSearchPaths)
	v.SetDefault("ignore", d.Ignore)
	v.SetDefault("builtin_interfaces", d.BuiltinInterfaces)
	v.SetDefault("strict_width_checking", d.StrictWidthChecking)
	v.SetDefault("allow_partial_interfaces", d.AllowPartialInterfaces)
	v.SetDefault("policy_dir", d.PolicyDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("max_parallel_modules", d.MaxParallelModules)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// FindFile looks for a config file.
// Search order:
//  1. ./topwrap.toml (current working directory)
//  2. ./.topwrap.toml (current working directory)
//  3. <rootPath>/topwrap.toml (if different from cwd)
//  4. ~/.config/topwrap/config.toml
func FindFile(rootPath string) (string, bool) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "topwrap.toml"),
		filepath.Join(cwd, ".topwrap.toml"),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, "topwrap.toml"),
				filepath.Join(rootPath, ".topwrap.toml"),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "topwrap", "config.toml"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
