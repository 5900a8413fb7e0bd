package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// newTestRoot returns a fresh root command bound to a private config file.
// Logs go to a separate buffer from stdout.
func newTestRoot(t *testing.T, args ...string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0644))

	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append(args, "--config", cfgPath))
	return root, out
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root, out := newTestRoot(t, args...)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestParamsTable(t *testing.T) {
	out, err := execute(t, context.Background(), "params")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(rig.DefaultDefinitions())+1)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, out, rig.ParamAngleX)
	assert.Contains(t, out, rig.ParamEyeLOpen)
}

func TestParamsYAML(t *testing.T) {
	out, err := execute(t, context.Background(), "params", "--yaml")
	require.NoError(t, err)

	var file struct {
		Parameters []rig.Definition `yaml:"parameters"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &file))
	assert.Equal(t, rig.DefaultDefinitions(), file.Parameters)
}

func TestSimulateCSV(t *testing.T) {
	out, err := execute(t, context.Background(), "simulate", "--duration", "0.5", "--fps", "20", "--seed", "5")
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 11, "header plus one row per frame")
	assert.Equal(t, "time", rows[0][0])
	assert.Len(t, rows[0], len(rig.DefaultDefinitions())+1)
	assert.Equal(t, "0.0500", rows[1][0])
	assert.Equal(t, "0.5000", rows[10][0])
}

func TestSimulateIsReproducible(t *testing.T) {
	args := []string{"simulate", "--duration", "2", "--fps", "30", "--seed", "42", "--trigger", "0.5:shake"}
	first, err := execute(t, context.Background(), args...)
	require.NoError(t, err)
	second, err := execute(t, context.Background(), args...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := execute(t, context.Background(), "simulate", "--duration", "2", "--fps", "30", "--seed", "43", "--trigger", "0.5:shake")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSimulateJSONWithTriggers(t *testing.T) {
	out, err := execute(t, context.Background(), "simulate",
		"--format", "json", "--duration", "1", "--fps", "30", "--seed", "9",
		"--trigger", "0.2:start-speaking", "--trigger", "0.6:stop-speaking")
	require.NoError(t, err)

	var frames []frameRecord
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var f frameRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		frames = append(frames, f)
	}
	require.Len(t, frames, 30)
	assert.Equal(t, 0, frames[0].Frame)

	var open float32
	for _, f := range frames[6:18] {
		if v := f.Parameters[rig.ParamMouthOpenY]; v > open {
			open = v
		}
	}
	assert.Greater(t, open, float32(0.1), "mouth opens while speaking")
	assert.Equal(t, float32(0), frames[3].Parameters[rig.ParamMouthOpenY], "closed before speech")
}

func TestSimulateRejectsBadInput(t *testing.T) {
	_, err := execute(t, context.Background(), "simulate", "--trigger", "soon:shake")
	assert.ErrorContains(t, err, "invalid time")

	_, err = execute(t, context.Background(), "simulate", "--trigger", "1:dance")
	assert.ErrorContains(t, err, "unknown command")

	_, err = execute(t, context.Background(), "simulate", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestParseSchedule(t *testing.T) {
	got, err := parseSchedule([]string{"3:stop-speaking", "1.5:shake 1.4", "0:start-speaking"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, float32(0), got[0].At)
	assert.Equal(t, float32(1.5), got[1].At)
	assert.Equal(t, float32(1.4), got[1].Cmd.Intensity)
	assert.Equal(t, float32(3), got[2].At)

	_, err = parseSchedule([]string{"shake"})
	assert.Error(t, err)
	_, err = parseSchedule([]string{"-1:shake"})
	assert.Error(t, err)
}

func TestSimulateWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.csv")
	out, err := execute(t, context.Background(), "simulate", "--duration", "0.1", "--fps", "10", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.yaml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), path)

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", "--config", path})
	assert.ErrorContains(t, root.Execute(), "already exists")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "show", "--config", path, "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "trigger:")
	assert.Contains(t, out.String(), "127.0.0.1:8765")
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	root, _ := newTestRoot(t, "run", "--addr", "127.0.0.1:0")
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "run did not stop")
	}
}
