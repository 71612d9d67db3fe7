package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// definitionExts are the file types the catalog loader understands.
var definitionExts = map[string]bool{".yaml": true, ".yml": true, ".hcl": true}

// IsDefinitionFile reports whether path has a definition file extension.
func IsDefinitionFile(path string) bool {
	return definitionExts[strings.ToLower(filepath.Ext(path))]
}

// DefinitionFiles expands InterfaceSearchPaths into a sorted list of
// definition files. Directories are searched recursively. A search path
// that does not exist is an error; a glob that matches nothing is not.
func (c *Config) DefinitionFiles(rootPath string) ([]string, error) {
	fileSet := make(map[string]bool)

	for _, entry := range c.InterfaceSearchPaths {
		pattern := entry
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}

		var matches []string
		if hasMeta(pattern) {
			m, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("interface search path %q: %w", entry, err)
			}
			matches = m
		} else {
			info, err := os.Stat(pattern)
			if err != nil {
				return nil, fmt.Errorf("interface search path %q: %w", entry, err)
			}
			if info.IsDir() {
				m, err := doublestar.FilepathGlob(filepath.Join(pattern, "**", "*.{yaml,yml,hcl}"))
				if err != nil {
					return nil, fmt.Errorf("interface search path %q: %w", entry, err)
				}
				matches = m
			} else {
				matches = []string{pattern}
			}
		}

		for _, match := range matches {
			if !IsDefinitionFile(match) || c.ShouldIgnore(match) {
				continue
			}
			if rel, err := filepath.Rel(rootPath, match); err == nil && c.ShouldIgnore(rel) {
				continue
			}
			fileSet[filepath.Clean(match)] = true
		}
	}

	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// ShouldIgnore checks a path, and its base name, against the Ignore patterns.
func (c *Config) ShouldIgnore(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range c.Ignore {
		if matched, _ := doublestar.Match(pattern, slashed); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
