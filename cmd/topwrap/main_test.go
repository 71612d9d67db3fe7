package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-at-pretension-io/hdl-topwrap/internal/config"
	"github.com/robert-at-pretension-io/hdl-topwrap/internal/report"
)

const streamDef = `
name: Stream
description: valid/ready byte stream
port_prefix: [in_, out_]
signals:
  required:
    out:
      valid: 1
      data: 8
    in:
      ready: 1
`

const genCore = `
name: gen
signals:
  out: [out_valid, [out_data, 7, 0]]
  in: [out_ready]
`

const fifoCore = `
name: fifo
signals:
  in: [in_valid, [in_data, 7, 0]]
  out: [in_ready]
`

const brokenFifoCore = `
name: fifo
signals:
  in: [in_valid]
  out: [in_ready]
interfaces:
  bus:
    type: Stream
    mode: subordinate
    prefix: in_
`

const topDesign = `
ips:
  src: {file: gen.yaml}
  dst: {file: fifo.yaml}
design:
  interfaces:
    dst: {in: [src, out]}
`

const projectConfig = `
interface_search_paths = ["ifaces"]
builtin_interfaces = false
`

func project(t *testing.T, extra map[string]string) string {
	t.Helper()
	files := map[string]string{
		"topwrap.toml":       projectConfig,
		"ifaces/stream.yaml": streamDef,
		"gen.yaml":           genCore,
		"fifo.yaml":          fifoCore,
		"top.yaml":           topDesign,
	}
	for k, v := range extra {
		files[k] = v
	}
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.Reset)
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	base := []string{"--root", dir, "--config", filepath.Join(dir, "topwrap.toml"), "--log-level", "error"}
	cmd.SetArgs(append(append([]string{args[0]}, base...), args[1:]...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestBuildWritesNetlist(t *testing.T) {
	dir := project(t, nil)
	out := filepath.Join(dir, "netlist.json")

	stdout, err := run(t, dir, "build", filepath.Join(dir, "top.yaml"), "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 modules, 2 interfaces, 3 connections: 0 errors")
	assert.Contains(t, stdout, "src.out_data -> dst.in_data")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Design      string            `json:"design"`
		Connections []json.RawMessage `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, filepath.Join(dir, "top.yaml"), doc.Design)
	assert.Len(t, doc.Connections, 3)
}

func TestBuildWithErrorsWritesNoNetlist(t *testing.T) {
	dir := project(t, map[string]string{"fifo.yaml": brokenFifoCore})
	out := filepath.Join(dir, "netlist.json")

	stdout, err := run(t, dir, "build", filepath.Join(dir, "top.yaml"), "-o", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errFailed))
	assert.Contains(t, stdout, "missing_signal")
	assert.NoFileExists(t, out)
}

func TestWriteNetlistReportsCreateErrors(t *testing.T) {
	err := writeNetlist(filepath.Join(t.TempDir(), "missing", "netlist.json"), report.Netlist{})
	assert.ErrorContains(t, err, "writing netlist")
}

func TestBuildJSONOutput(t *testing.T) {
	dir := project(t, nil)

	stdout, err := run(t, dir, "build", filepath.Join(dir, "top.yaml"), "--json")
	require.NoError(t, err)

	var res struct {
		Summary struct {
			Modules     int `json:"modules"`
			Connections int `json:"connections"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, 2, res.Summary.Modules)
	assert.Equal(t, 3, res.Summary.Connections)
}

func TestCheckFailsOnNonCompliantCore(t *testing.T) {
	dir := project(t, map[string]string{"fifo.yaml": brokenFifoCore})

	stdout, err := run(t, dir, "check", filepath.Join(dir, "gen.yaml"), filepath.Join(dir, "fifo.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errFailed))
	assert.Contains(t, stdout, "missing_signal")
	assert.Contains(t, stdout, "✗")
}

func TestCheckPassesCompliantCores(t *testing.T) {
	dir := project(t, nil)

	stdout, err := run(t, dir, "check", filepath.Join(dir, "gen.yaml"), filepath.Join(dir, "fifo.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "out: Stream manager")
	assert.Contains(t, stdout, "in: Stream subordinate")
}

func TestInterfacesListsSearchPaths(t *testing.T) {
	dir := project(t, nil)

	stdout, err := run(t, dir, "interfaces", "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Stream")
	assert.Contains(t, stdout, "valid/ready byte stream")
	assert.NotContains(t, stdout, "AXI4", "builtins disabled by config")
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"init", "--root", dir})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, "topwrap.toml"))

	cmd = newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"init", "--root", dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	cmd = newRootCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"init", "--root", dir, "--force"})
	require.NoError(t, cmd.Execute())
}
