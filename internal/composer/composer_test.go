package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/compliance"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/design"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/diag"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/hdl"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/iface"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/netlist"
)

func testCatalog(t *testing.T) *iface.Catalog {
	t.Helper()
	stream, err := iface.Define(iface.InterfaceDef{
		Name:     "Stream",
		Prefixes: []string{"in_", "out_"},
		Signals: []iface.SignalSpec{
			{Name: "valid", Direction: hdl.Out, Required: true},
			{Name: "ready", Direction: hdl.In, Required: true},
			{Name: "data", Direction: hdl.Out, Required: true, Width: iface.FixedWidth(8)},
		},
	})
	require.NoError(t, err)
	clk, err := iface.Define(iface.InterfaceDef{
		Name: "Clk",
		Signals: []iface.SignalSpec{
			{Name: "clk", Direction: hdl.In, Required: true, Role: iface.RoleClock},
		},
	})
	require.NoError(t, err)
	cat, err := iface.NewCatalog(stream, clk)
	require.NoError(t, err)
	return cat
}

func source() *hdl.Module {
	return &hdl.Module{
		Name: "src",
		Type: "gen",
		Ports: []hdl.Port{
			{Name: "clk", Direction: hdl.In, Width: 1},
			{Name: "out_valid", Direction: hdl.Out, Width: 1},
			{Name: "out_ready", Direction: hdl.In, Width: 1},
			{Name: "out_data", Direction: hdl.Out, Width: 8},
		},
		Interfaces: []hdl.InterfaceDecl{{Name: "cr", Type: "Clk", Ports: map[string]string{"clk": "clk"}}},
	}
}

func sink() *hdl.Module {
	return &hdl.Module{
		Name: "dst",
		Type: "fifo",
		Ports: []hdl.Port{
			{Name: "clk", Direction: hdl.In, Width: 1},
			{Name: "in_valid", Direction: hdl.In, Width: 1},
			{Name: "in_ready", Direction: hdl.Out, Width: 1},
			{Name: "in_data", Direction: hdl.In, Width: 8},
		},
		Interfaces: []hdl.InterfaceDecl{{Name: "cr", Type: "Clk", Ports: map[string]string{"clk": "clk"}}},
	}
}

func newComposer(t *testing.T) *Composer {
	t.Helper()
	return &Composer{
		Config:   config.Defaults(),
		Logger:   log.New(io.Discard),
		RootPath: t.TempDir(),
		Catalog:  testCatalog(t),
	}
}

func TestBuildConnectsDesign(t *testing.T) {
	gpio := &hdl.Module{Name: "gpio", Type: "gpio", Ports: []hdl.Port{{Name: "led", Direction: hdl.Out, Width: 1}}}
	d := &design.Design{
		Modules: []*hdl.Module{source(), sink(), gpio},
		Links: []netlist.Link{{
			A: compliance.InstanceRef{Module: "src", Name: "out"},
			B: compliance.InstanceRef{Module: "dst", Name: "in"},
		}},
		Ties: []netlist.Tie{
			{Target: netlist.PortRef{Module: "dst", Port: "clk"}, Value: 0},
			{Target: netlist.PortRef{Module: "src", Port: "clk"}, Value: 0},
		},
	}

	res, err := newComposer(t).Build(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Len(t, res.Connections, 5)
	assert.Equal(t, Summary{Modules: 3, Instances: 4, Connections: 5, Violations: 3}, res.Summary)

	require.Len(t, res.Modules, 3)
	src := res.Modules[0]
	assert.Equal(t, "src", src.Name)
	require.Len(t, src.Instances, 2)
	assert.Equal(t, InstanceResult{Name: "cr", Interface: "Clk", Mode: "manager", Declared: true, Bindings: map[string]string{"clk": "clk"}}, src.Instances[0])
	assert.Equal(t, "out", src.Instances[1].Name)
	assert.Equal(t, "manager", src.Instances[1].Mode)
	assert.Equal(t, "subordinate", res.Modules[1].Instances[1].Mode)
	assert.Empty(t, res.Modules[2].Instances)

	type ruleAt struct{ rule, module string }
	var got []ruleAt
	for _, v := range res.Violations {
		got = append(got, ruleAt{v.Rule, v.Module})
	}
	assert.Equal(t, []ruleAt{
		{"constant_driven_clock", "dst"},
		{"isolated_module", "gpio"},
		{"constant_driven_clock", "src"},
	}, got)

	assert.Len(t, res.Facts.Connections, 5)
	assert.Len(t, res.Facts.Bindings, 8)
}

func TestBuildReportsMultipleDrivers(t *testing.T) {
	gpio := &hdl.Module{Name: "gpio", Type: "gpio", Ports: []hdl.Port{{Name: "led", Direction: hdl.Out, Width: 1}}}
	d := &design.Design{
		Modules: []*hdl.Module{source(), sink(), gpio},
		Links: []netlist.Link{{
			A: compliance.InstanceRef{Module: "src", Name: "out"},
			B: compliance.InstanceRef{Module: "dst", Name: "in"},
		}},
		PortLinks: []netlist.PortLink{{
			A: netlist.PortRef{Module: "dst", Port: "in_valid"},
			B: netlist.PortRef{Module: "gpio", Port: "led"},
		}},
	}

	res, err := newComposer(t).Build(context.Background(), d)
	require.NoError(t, err)

	err = res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrMultipleDrivers))
	assert.Len(t, res.Diagnostics.OfKind(diag.KindMultipleDrivers), 1)
	for _, c := range res.Connections {
		assert.NotEqual(t, "in_valid", c.To.Port, "contested receiver gets no connection")
	}
	assert.Len(t, res.Connections, 2)
}

func TestCheckStandaloneModules(t *testing.T) {
	res, err := newComposer(t).Check(context.Background(), []*hdl.Module{sink(), source()})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, 4, res.Summary.Instances)
	assert.Zero(t, res.Summary.Connections)
	assert.Empty(t, res.Violations, "connectivity rules need a composed design")
	assert.Equal(t, "dst", res.Modules[0].Name, "modules keep input order")
}

func TestCheckDeclaredInterfaceFailure(t *testing.T) {
	m := sink()
	m.Ports = m.Ports[:3] // drop in_data
	m.Interfaces = append(m.Interfaces, hdl.InterfaceDecl{Name: "bus", Type: "Stream", Mode: "subordinate", Prefix: "in_"})

	res, err := newComposer(t).Check(context.Background(), []*hdl.Module{m})
	require.NoError(t, err)

	err = res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrNonCompliant))
	missing := res.Diagnostics.OfKind(diag.KindMissingSignal)
	require.Len(t, missing, 1)
	assert.Equal(t, "data", missing[0].Signal)
	assert.Equal(t, "bus", missing[0].Instance)

	require.Len(t, res.Modules[0].Instances, 1, "failed declaration is not rediscovered")
	assert.Equal(t, "cr", res.Modules[0].Instances[0].Name)
	assert.Equal(t, 1, res.Modules[0].Errors)
}

func TestCheckUnknownDeclaredInterface(t *testing.T) {
	m := source()
	m.Interfaces = []hdl.InterfaceDecl{{Name: "x", Type: "NoSuchBus"}}

	res, err := newComposer(t).Check(context.Background(), []*hdl.Module{m})
	require.NoError(t, err)
	assert.True(t, errors.Is(res.Err(), diag.ErrNotFound))
}

func TestRunRejectsDuplicateModuleNames(t *testing.T) {
	_, err := newComposer(t).Check(context.Background(), []*hdl.Module{source(), source()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate module names: src")
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newComposer(t).Check(ctx, []*hdl.Module{source()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimingJSONLWritten(t *testing.T) {
	c := newComposer(t)
	c.Timing = true
	c.TimingPath = filepath.Join(t.TempDir(), "timing.jsonl")
	t.Setenv("TOPWRAP_TIMING_JSONL", "")

	_, err := c.Check(context.Background(), []*hdl.Module{source(), sink()})
	require.NoError(t, err)

	raw, err := os.ReadFile(c.TimingPath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))

	phases := map[string]bool{}
	modules := map[string]bool{}
	for _, line := range lines {
		var ev timingEvent
		require.NoError(t, json.Unmarshal(line, &ev))
		if ev.Kind == "stage" {
			phases[ev.Stage] = true
		}
		if ev.Kind == "module" {
			modules[ev.Module] = true
		}
	}
	for _, p := range []string{"catalog", "check", "facts", "policy", "total"} {
		assert.True(t, phases[p], "missing stage %s", p)
	}
	assert.False(t, phases["netlist"], "check runs build no netlist")
	assert.Equal(t, map[string]bool{"src": true, "dst": true}, modules)
}

func TestTimingPathFromEnvironment(t *testing.T) {
	c := &Composer{RootPath: "/proj"}
	t.Setenv("TOPWRAP_TIMING_JSONL", "")
	t.Setenv("TOPWRAP_TIMING", "")
	assert.Equal(t, "", c.timingPath())

	t.Setenv("TOPWRAP_TIMING", "1")
	assert.Equal(t, filepath.Join("/proj", "timing.jsonl"), c.timingPath())

	t.Setenv("TOPWRAP_TIMING_JSONL", "/tmp/t.jsonl")
	assert.Equal(t, "/tmp/t.jsonl", c.timingPath())
}
