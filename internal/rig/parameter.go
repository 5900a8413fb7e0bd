// Package rig models the named, bounded scalar parameters a character rig
// exposes to the motion generators.
package rig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParameterNotFound is returned when none of the requested ids exist on the rig.
var ErrParameterNotFound = errors.New("parameter not found")

// Parameter is a named scalar output consumed by the renderer to pose the
// character. Generators read the bounds and default and write Value.
type Parameter struct {
	ID      string
	Value   float32
	Min     float32
	Max     float32
	Default float32
}

// Set writes value clamped to [Min, Max].
func (p *Parameter) Set(value float32) {
	p.Value = clamp(value, p.Min, p.Max)
}

// SetOffset writes Default+offset, clamped.
func (p *Parameter) SetOffset(offset float32) {
	p.Set(p.Default + offset)
}

// Reset restores the default value.
func (p *Parameter) Reset() {
	p.Value = p.Default
}

// Offset returns the distance of the current value from the default.
func (p *Parameter) Offset() float32 {
	return p.Value - p.Default
}

// Sink is the lookup surface of a rig. It is consumed, never owned, by the
// generators.
type Sink interface {
	FindParameter(id string) (*Parameter, bool)
}

// Find returns the first parameter matching one of ids. Rigs exported from
// different editors name the same axis differently ("Angle X", "ParamAngleX"),
// so callers pass every alias they accept.
func Find(sink Sink, ids ...string) (*Parameter, error) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if p, ok := sink.FindParameter(id); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, strings.Join(ids, "|"))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
