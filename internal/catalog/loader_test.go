package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
)

func newLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(nil)
	require.NoError(t, err)
	return l
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuiltinsLoadAndValidate(t *testing.T) {
	defs, err := newLoader(t).LoadBuiltins()
	require.NoError(t, err)

	cat, err := iface.NewCatalog(defs...)
	require.NoError(t, err)
	assert.Equal(t, []string{"AXI4", "AXI4Lite", "AXI4Stream", "ClockReset", "Wishbone"}, cat.Names())

	lite, err := cat.ByName("AXI4Lite")
	require.NoError(t, err)
	assert.Equal(t, "awaddr", lite.Signals[0].Name, "declaration order survives decoding")
	wstrb, ok := lite.Signal("wstrb")
	require.True(t, ok)
	w, err := wstrb.Width.Resolve(map[string]int64{"DATA_WIDTH": 64})
	require.NoError(t, err)
	assert.Equal(t, 8, w)

	cr, err := cat.ByName("ClockReset")
	require.NoError(t, err)
	clk, ok := cr.Clock()
	require.True(t, ok)
	assert.Equal(t, "clk", clk.Name)
	assert.True(t, clk.Required)

	got := cat.ByPrefix("s_axi_")
	require.Len(t, got, 2)
	assert.Equal(t, "AXI4", got[0].Name)
	assert.Equal(t, "AXI4Lite", got[1].Name)
}

func TestParseYAMLTopwrapLayout(t *testing.T) {
	src := `
name: Handshake
port_prefix: hs_
signals:
  required:
    out:
      valid: 1
      data: WIDTH
    in:
      ready:
  optional:
    in:
      clk: 1
clock: clk
---
name: Second
signals:
  required:
    inout:
      sda: 1
`
	recs, err := parseYAML("hs.yaml", []byte(src))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	hs := recs[0]
	assert.Equal(t, []string{"hs_"}, hs.Prefixes)
	require.Len(t, hs.Signals, 4)
	assert.Equal(t, iface.SignalRecord{Name: "valid", Direction: "out", Required: true, Width: 1}, hs.Signals[0])
	assert.Equal(t, "WIDTH", hs.Signals[1].Width)
	assert.Nil(t, hs.Signals[2].Width, "empty width defaults later")
	assert.Equal(t, iface.SignalRecord{Name: "clk", Direction: "in", Required: false, Width: 1, Role: "clock"}, hs.Signals[3])

	assert.Equal(t, "inout", recs[1].Signals[0].Direction)
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown group":   "name: X\nsignals:\n  sometimes:\n    in: {a: 1}\n",
		"signals scalar":  "name: X\nsignals: 3\n",
		"clock undefined": "name: X\nsignals:\n  required:\n    in: {a: 1}\nclock: clk\n",
		"prefix mapping":  "name: X\nport_prefix: {a: b}\nsignals:\n  required:\n    in: {a: 1}\n",
		"clock and reset": "name: X\nsignals:\n  required:\n    in: {clk: 1}\nclock: clk\nreset: clk\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseYAML("x.yaml", []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestParseYAMLClockAndResetMustDiffer(t *testing.T) {
	src := "name: CR\nsignals:\n  required:\n    in: {clk: 1, rst: 1}\nclock: clk\nreset: clk\n"
	_, err := parseYAML("cr.yaml", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `signal "clk" is both clock and reset`)

	recs, err := parseYAML("cr.yaml", []byte(strings.Replace(src, "reset: clk", "reset: rst", 1)))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	roles := map[string]string{}
	for _, s := range recs[0].Signals {
		roles[s.Name] = s.Role
	}
	assert.Equal(t, map[string]string{"clk": "clock", "rst": "reset"}, roles)
}

func TestParseHCL(t *testing.T) {
	src := `
interface "Stream" {
  description = "simple stream"
  prefixes    = ["s_axis_"]

  signal "tvalid" {
    direction = "out"
  }
  signal "tdata" {
    direction = "out"
    width     = DATA_WIDTH / 8
  }
  signal "tkeep" {
    direction = "out"
    width     = "KEEP_WIDTH"
    required  = false
  }
  signal "tready" {
    direction = "in"
    width     = 1
  }
}
`
	recs, err := parseHCL("stream.hcl", []byte(src))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	sigs := recs[0].Signals
	require.Len(t, sigs, 4)
	assert.Nil(t, sigs[0].Width)
	assert.True(t, sigs[0].Required)
	assert.Equal(t, "DATA_WIDTH / 8", sigs[1].Width)
	assert.Equal(t, "KEEP_WIDTH", sigs[2].Width)
	assert.False(t, sigs[2].Required)
	assert.Equal(t, 1, sigs[3].Width)
}

func TestLoadProjectCatalog(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "ifaces", "irq.yaml"), `
name: Irq
port_prefix: irq_
signals:
  required:
    out: {req: 1}
    in: {ack: 1}
`)
	write(t, filepath.Join(root, "ifaces", "bus.hcl"), `
interface "Apb" {
  prefixes = ["apb_"]
  signal "psel" { direction = "out" }
  signal "prdata" {
    direction = "in"
    width     = DATA_WIDTH
  }
}
`)
	cfg := config.Defaults()
	cfg.InterfaceSearchPaths = []string{"ifaces"}
	cfg.BuiltinInterfaces = false

	cat, err := newLoader(t).Load(context.Background(), cfg, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apb", "Irq"}, cat.Names())

	apb, err := cat.ByName("Apb")
	require.NoError(t, err)
	assert.Equal(t, hdl.In, apb.Signals[1].Direction)
	assert.Equal(t, filepath.Join(root, "ifaces", "bus.hcl"), apb.Source)
}

func TestLoadRejectsDuplicateAcrossFiles(t *testing.T) {
	root := t.TempDir()
	body := "name: AXI4Lite\nsignals:\n  required:\n    in: {a: 1}\n"
	write(t, filepath.Join(root, "ifaces", "mine.yaml"), body)

	cfg := config.Defaults()
	cfg.InterfaceSearchPaths = []string{"ifaces"}

	_, err := newLoader(t).Load(context.Background(), cfg, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, iface.ErrDuplicateInterface), "clashes with the builtin definition")
}

func TestLoadReportsEveryInvalidFile(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "ifaces", "a.yaml"), "name: A\nsignals:\n  required:\n    sideways: {a: 1}\n")
	write(t, filepath.Join(root, "ifaces", "b.yaml"), "name: B\nsignals:\n  required:\n    in: {b: 0}\n")

	cfg := config.Defaults()
	cfg.InterfaceSearchPaths = []string{"ifaces"}
	cfg.BuiltinInterfaces = false

	_, err := newLoader(t).Load(context.Background(), cfg, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, iface.ErrInvalidInterface))
	assert.Contains(t, err.Error(), "a.yaml")
	assert.Contains(t, err.Error(), "b.yaml")
}

func TestLoadHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "ifaces", "a.yaml"), "name: A\nsignals:\n  required:\n    in: {a: 1}\n")
	cfg := config.Defaults()
	cfg.InterfaceSearchPaths = []string{"ifaces"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newLoader(t).Load(ctx, cfg, root)
	assert.ErrorIs(t, err, context.Canceled)
}
