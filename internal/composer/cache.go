package composer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/facts"
)

const snapshotVersion = 1

type snapshot struct {
	Version int          `json:"version"`
	Design  string       `json:"design"`
	Tables  facts.Tables `json:"tables"`
}

// snapshotCache keeps the fact tables of the last build of each design,
// one file per design path.
type snapshotCache struct {
	dir string
}

func (c *Composer) snapshotCache(cacheDir string) *snapshotCache {
	if cacheDir == "" {
		return nil
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(c.root(), cacheDir)
	}
	return &snapshotCache{dir: cacheDir}
}

func (s *snapshotCache) path(design string) string {
	abs, err := filepath.Abs(design)
	if err != nil {
		abs = design
	}
	h := sha256.Sum256([]byte(abs))
	return filepath.Join(s.dir, "facts", hex.EncodeToString(h[:])+".json")
}

// load returns the previous tables of design. A missing file or a snapshot
// written by another version is a miss, not an error.
func (s *snapshotCache) load(design string) (facts.Tables, bool, error) {
	data, err := os.ReadFile(s.path(design))
	if err != nil {
		if os.IsNotExist(err) {
			return facts.Tables{}, false, nil
		}
		return facts.Tables{}, false, fmt.Errorf("read fact snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return facts.Tables{}, false, fmt.Errorf("parse fact snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return facts.Tables{}, false, nil
	}
	return snap.Tables, true, nil
}

func (s *snapshotCache) save(design string, tables facts.Tables) error {
	snap := snapshot{Version: snapshotVersion, Design: design, Tables: tables}
	if err := writeJSONAtomic(s.path(design), snap); err != nil {
		return fmt.Errorf("write fact snapshot: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
