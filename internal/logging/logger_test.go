package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerHistory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: LevelDebug, MaxHistory: 3})

	l.Debug("blink", "Blink chosen", map[string]interface{}{"kind": "double-blink"})
	l.Info("engine", "Engine started", nil)
	l.Warn("config", "Corrected value", map[string]interface{}{"field": "shake.duration", "new": 0.5})
	l.Error("blink", "Eyelids missing", errors.New("parameter not found"), nil)

	hist := l.GetHistory(0)
	require.Len(t, hist, 3, "history is capped")
	assert.Equal(t, "engine", hist[0].Component)
	assert.Equal(t, "warn", hist[1].Level)
	assert.Equal(t, "field=shake.duration, new=0.5", hist[1].Data)
	assert.Equal(t, "error=parameter not found", hist[2].Data)

	last := l.GetHistory(1)
	require.Len(t, last, 1)
	assert.Equal(t, "Eyelids missing", last[0].Message)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &rec))
	assert.Equal(t, "blink", rec["component"])
	assert.Equal(t, "cortexmotion", rec["app"])
	assert.Equal(t, "parameter not found", rec["error"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: LevelWarn})

	var seen []LogEntry
	l.SetOnLog(func(e LogEntry) { seen = append(seen, e) })

	l.Debug("idle", "Mode committed", nil)
	l.Info("idle", "Started", nil)
	l.Warn("idle", "Axis missing", nil)

	assert.Len(t, l.GetHistory(0), 1)
	require.Len(t, seen, 1)
	assert.Equal(t, "Axis missing", seen[0].Message)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: LevelInfo})

	zl := l.Component("headshake")
	zl.Info().Float32("frequency", 1.9).Msg("Shake started")

	assert.Contains(t, buf.String(), `"component":"headshake"`)
	assert.Contains(t, buf.String(), `"frequency":1.9`)
}

func TestLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Dir: dir, Level: LevelInfo, File: true})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(l.GetLogPath()))
	assert.True(t, strings.HasPrefix(filepath.Base(l.GetLogPath()), "cortexmotion_"))
	require.NoError(t, l.Close())
}

func TestNewConsoleWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewConsole(Config{Level: LevelInfo, Console: true}, &buf)
	require.NoError(t, err)
	defer l.Close()

	l.Info("engine", "Frame loop started", nil)
	assert.Contains(t, buf.String(), "Frame loop started")
	assert.Empty(t, l.GetLogPath())
}
