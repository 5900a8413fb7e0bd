// Package motion implements the procedural generators that pose a character
// rig every frame: eyelid blinking, physical head shake and idle sway.
//
// Generators are advanced from a single frame goroutine. None of them block;
// multi-frame behaviors are explicit state machines resumed once per Update.
package motion

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Rand is the random source the generators draw from. *rand.Rand satisfies
// it; tests substitute scripted streams.
type Rand interface {
	Float32() float32
}

// Range is a closed interval knob, sampled uniformly.
type Range struct {
	Min float32 `mapstructure:"min" json:"min"`
	Max float32 `mapstructure:"max" json:"max"`
}

// Sample draws uniformly from the range.
func (r Range) Sample(rng Rand) float32 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float32()*(r.Max-r.Min)
}

// Normalized returns the range with Min <= Max and both >= floor.
func (r Range) Normalized(floor float32) Range {
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	if r.Min < floor {
		r.Min = floor
	}
	if r.Max < floor {
		r.Max = floor
	}
	return r
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

func clamp01(v float32) float32 {
	return clamp(v, 0, 1)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// smoothStep is the cubic Hermite 3t²-2t³ on [0, 1].
func smoothStep(t float32) float32 {
	t = clamp01(t)
	return t * t * (3 - 2*t)
}

func sin32(x float32) float32 {
	return float32(math.Sin(float64(x)))
}

func cos32(x float32) float32 {
	return float32(math.Cos(float64(x)))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func sign32(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return mgl32.Vec3{lerp(a[0], b[0], t), lerp(a[1], b[1], t), lerp(a[2], b[2], t)}
}

func clampVec3(v, limit mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		clamp(v[0], -limit[0], limit[0]),
		clamp(v[1], -limit[1], limit[1]),
		clamp(v[2], -limit[2], limit[2]),
	}
}

func mulVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
