package rig

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned for rig files with empty or duplicate ids
// or inverted bounds.
var ErrInvalidDefinition = errors.New("invalid parameter definition")

// Standard Cubism parameter ids.
const (
	ParamAngleX     = "ParamAngleX"
	ParamAngleY     = "ParamAngleY"
	ParamAngleZ     = "ParamAngleZ"
	ParamBodyAngleX = "ParamBodyAngleX"
	ParamBodyAngleY = "ParamBodyAngleY"
	ParamBodyAngleZ = "ParamBodyAngleZ"
	ParamBreath     = "ParamBreath"
	ParamEyeLOpen   = "ParamEyeLOpen"
	ParamEyeROpen   = "ParamEyeROpen"
	ParamMouthOpenY = "ParamMouthOpenY"
	ParamMouthForm  = "ParamMouthForm"
)

// Definition declares one parameter of a rig.
type Definition struct {
	ID      string  `yaml:"id" json:"id"`
	Min     float32 `yaml:"min" json:"min"`
	Max     float32 `yaml:"max" json:"max"`
	Default float32 `yaml:"default" json:"default"`
}

type definitionFile struct {
	Parameters []Definition `yaml:"parameters"`
}

// DefaultDefinitions returns the parameter set of a standard Cubism model.
func DefaultDefinitions() []Definition {
	return []Definition{
		{ID: ParamAngleX, Min: -30, Max: 30},
		{ID: ParamAngleY, Min: -30, Max: 30},
		{ID: ParamAngleZ, Min: -30, Max: 30},
		{ID: ParamBodyAngleX, Min: -10, Max: 10},
		{ID: ParamBodyAngleY, Min: -10, Max: 10},
		{ID: ParamBodyAngleZ, Min: -10, Max: 10},
		{ID: ParamBreath, Min: 0, Max: 1},
		{ID: ParamEyeLOpen, Min: 0, Max: 1, Default: 1},
		{ID: ParamEyeROpen, Min: 0, Max: 1, Default: 1},
		{ID: ParamMouthOpenY, Min: 0, Max: 1},
		{ID: ParamMouthForm, Min: -1, Max: 1},
	}
}

// LoadDefinitions reads a yaml rig file of the form
//
//	parameters:
//	  - {id: ParamAngleX, min: -30, max: 30, default: 0}
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rig file: %w", err)
	}
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rig file %s: %w", path, err)
	}
	return f.Parameters, nil
}

// MarshalDefinitions renders defs in the format LoadDefinitions reads.
func MarshalDefinitions(defs []Definition) ([]byte, error) {
	return yaml.Marshal(definitionFile{Parameters: defs})
}

// Model is an in-memory rig. It is not safe for concurrent use; the engine
// owns it and touches it only from the frame goroutine.
type Model struct {
	params []*Parameter
	byID   map[string]*Parameter
}

// NewModel builds a rig from definitions. Every parameter starts at its
// default.
func NewModel(defs []Definition) (*Model, error) {
	m := &Model{
		params: make([]*Parameter, 0, len(defs)),
		byID:   make(map[string]*Parameter, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidDefinition)
		}
		if d.Min > d.Max {
			return nil, fmt.Errorf("%w: %s has min %.3f > max %.3f", ErrInvalidDefinition, d.ID, d.Min, d.Max)
		}
		if _, dup := m.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidDefinition, d.ID)
		}
		p := &Parameter{
			ID:      d.ID,
			Min:     d.Min,
			Max:     d.Max,
			Default: clamp(d.Default, d.Min, d.Max),
		}
		p.Value = p.Default
		m.params = append(m.params, p)
		m.byID[d.ID] = p
	}
	return m, nil
}

// FindParameter implements Sink.
func (m *Model) FindParameter(id string) (*Parameter, bool) {
	p, ok := m.byID[id]
	return p, ok
}

// Parameters returns the parameters in definition order.
func (m *Model) Parameters() []*Parameter {
	return m.params
}

// Definitions returns the definition of every parameter in order.
func (m *Model) Definitions() []Definition {
	defs := make([]Definition, len(m.params))
	for i, p := range m.params {
		defs[i] = Definition{ID: p.ID, Min: p.Min, Max: p.Max, Default: p.Default}
	}
	return defs
}

// IDs returns the parameter ids in definition order.
func (m *Model) IDs() []string {
	ids := make([]string, len(m.params))
	for i, p := range m.params {
		ids[i] = p.ID
	}
	return ids
}

// Snapshot copies the current values.
func (m *Model) Snapshot() map[string]float32 {
	out := make(map[string]float32, len(m.params))
	for _, p := range m.params {
		out[p.ID] = p.Value
	}
	return out
}

// Reset restores every parameter to its default.
func (m *Model) Reset() {
	for _, p := range m.params {
		p.Reset()
	}
}

// SortedIDs returns the ids in lexical order.
func SortedIDs(snapshot map[string]float32) []string {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
