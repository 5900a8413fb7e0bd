package rig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSetClamps(t *testing.T) {
	p := &Parameter{ID: "ParamAngleX", Min: -30, Max: 30}

	p.Set(12.5)
	assert.Equal(t, float32(12.5), p.Value)

	p.Set(90)
	assert.Equal(t, float32(30), p.Value, "value should be clamped to max")

	p.Set(-90)
	assert.Equal(t, float32(-30), p.Value, "value should be clamped to min")
}

func TestParameterSetOffset(t *testing.T) {
	p := &Parameter{ID: "ParamEyeLOpen", Min: 0, Max: 1, Default: 1}

	p.SetOffset(-0.25)
	assert.InDelta(t, 0.75, p.Value, 1e-6)
	assert.InDelta(t, -0.25, p.Offset(), 1e-6)

	p.SetOffset(0.5)
	assert.Equal(t, float32(1), p.Value)

	p.Reset()
	assert.Equal(t, float32(1), p.Value)
}

func TestNewModelDefaults(t *testing.T) {
	m, err := NewModel(DefaultDefinitions())
	require.NoError(t, err)

	eye, ok := m.FindParameter(ParamEyeLOpen)
	require.True(t, ok)
	assert.Equal(t, float32(1), eye.Value, "eyelids start open")

	_, ok = m.FindParameter("ParamDoesNotExist")
	assert.False(t, ok)

	assert.Len(t, m.IDs(), len(DefaultDefinitions()))
}

func TestNewModelRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"empty id", []Definition{{ID: "", Min: 0, Max: 1}}},
		{"inverted bounds", []Definition{{ID: "A", Min: 1, Max: 0}}},
		{"duplicate", []Definition{{ID: "A", Max: 1}, {ID: "A", Max: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.defs)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestNewModelClampsDefault(t *testing.T) {
	m, err := NewModel([]Definition{{ID: "A", Min: 0, Max: 1, Default: 4}})
	require.NoError(t, err)

	p, _ := m.FindParameter("A")
	assert.Equal(t, float32(1), p.Default)
	assert.Equal(t, float32(1), p.Value)
}

func TestFindAliases(t *testing.T) {
	m, err := NewModel([]Definition{{ID: "ParamBodyAngleX", Min: -10, Max: 10}})
	require.NoError(t, err)

	p, err := Find(m, "Body X", "ParamBodyX", "ParamBodyAngleX")
	require.NoError(t, err)
	assert.Equal(t, "ParamBodyAngleX", p.ID)

	_, err = Find(m, "Body Y", "ParamBodyY")
	assert.ErrorIs(t, err, ErrParameterNotFound)
	assert.Contains(t, err.Error(), "Body Y|ParamBodyY")
}

func TestSnapshotAndReset(t *testing.T) {
	m, err := NewModel(DefaultDefinitions())
	require.NoError(t, err)

	p, _ := m.FindParameter(ParamAngleX)
	p.Set(10)

	snap := m.Snapshot()
	assert.Equal(t, float32(10), snap[ParamAngleX])

	m.Reset()
	assert.Equal(t, float32(0), p.Value)
	assert.Equal(t, float32(10), snap[ParamAngleX], "snapshot is a copy")

	ids := SortedIDs(snap)
	assert.Equal(t, ParamAngleX, ids[0])
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	content := `parameters:
  - {id: ParamAngleX, min: -45, max: 45, default: 0}
  - {id: ParamEyeLOpen, min: 0, max: 1, default: 1}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "ParamAngleX", defs[0].ID)
	assert.Equal(t, float32(-45), defs[0].Min)
	assert.Equal(t, float32(1), defs[1].Default)

	_, err = LoadDefinitions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalDefinitionsRoundTrip(t *testing.T) {
	m, err := NewModel(DefaultDefinitions())
	require.NoError(t, err)

	data, err := MarshalDefinitions(m.Definitions())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultDefinitions(), defs)
}
