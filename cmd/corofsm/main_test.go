package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/corofsm/internal/production"
)

const pingPongConfig = "../../internal/topology/testdata/pingpong.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPingPongCommand(t *testing.T) {
	out, err := execute(t, "pingpong", "--rounds", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 # [PingPongFSM] 'ToPongEvent' sent from 'pingState' --> 'pongState'")
	assert.Contains(t, out, "PingPongFSM suspended at state pongState")
}

func TestRingCommand(t *testing.T) {
	out, err := execute(t, "ring", "--states", "4", "--rounds", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "events sent")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "traces.db")
	out, err := execute(t, "run",
		"--config", pingPongConfig,
		"--event", "ToPing", "--int", "2",
		"--trace-out", dir, "--trace-format", "yaml",
		"--db", db, "--run", "r1", "--metrics")
	require.NoError(t, err)

	assert.Contains(t, out, "1 PingPong: ping --ToPong--> pong\n")
	assert.Contains(t, out, "2 PingPong: pong --ToPing--> ping\n")
	assert.Contains(t, out, "PingPong suspended at state ping\n")
	assert.Contains(t, out, `corofsm_machine_hops_total{event="ToPong",machine="PingPong"} 1`)

	p, err := production.NewYAMLPersister(dir)
	require.NoError(t, err)
	tr, err := p.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, tr.Hops, 2)

	store, err := production.OpenSQLiteTraceStore(db)
	require.NoError(t, err)
	defer store.Close()
	hops, err := store.Hops(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, tr.Hops[1].To, hops[1].To)
}

func TestRunCommandErrors(t *testing.T) {
	_, err := execute(t, "run", "--config", pingPongConfig)
	assert.ErrorContains(t, err, "--event")

	_, err = execute(t, "run", "--config", pingPongConfig, "--event", "ToPing", "--machine", "nope")
	assert.ErrorContains(t, err, `machine "nope"`)

	_, err = execute(t, "run", "--config", pingPongConfig, "--event", "ToPing",
		"--trace-out", t.TempDir(), "--trace-format", "xml")
	assert.ErrorContains(t, err, "unknown trace format")

	_, err = execute(t, "run", "--event", "ToPing")
	assert.Error(t, err)
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--config", pingPongConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph corofsm")
	assert.Contains(t, out, `"PingPong/ping" -> "PingPong/pong" [label="ToPong"]`)

	out, err = execute(t, "graph", "--config", pingPongConfig, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"PingPong"`)

	_, err = execute(t, "graph", "--config", pingPongConfig, "--format", "svg")
	assert.ErrorContains(t, err, "unknown format")
}
