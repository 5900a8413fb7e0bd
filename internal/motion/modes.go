package motion

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// MotionMode is a named idle sway preset.
type MotionMode int

const (
	ModeSubtleSway MotionMode = iota
	ModeLookAround
	ModeSideTilt
	ModeEnergeticSway
	ModeComboComplex
	ModeVerticalBounce
	ModeVerticalNod
)

// ModeParams scales the ambient layer for one mode. Records in the mode
// table are never mutated.
type ModeParams struct {
	HeadAmplitudeMul  mgl32.Vec3 `json:"head_amplitude_mul"`
	BodyAmplitudeMul  mgl32.Vec3 `json:"body_amplitude_mul"`
	FreqMul           mgl32.Vec3 `json:"freq_mul"`
	Intensity         float32    `json:"intensity"`
	IsVerticalFocused bool       `json:"is_vertical_focused"`
	UseComplexPattern bool       `json:"use_complex_pattern"`
}

type modeEntry struct {
	name   string
	params ModeParams
	// half-cycle interval of the vertical shake, vertical modes only
	halfCycle Range
}

var modeTable = [...]modeEntry{
	ModeSubtleSway: {
		name: "subtle-sway",
		params: ModeParams{
			HeadAmplitudeMul: mgl32.Vec3{0.5, 0.5, 0.5},
			BodyAmplitudeMul: mgl32.Vec3{0.5, 0.4, 0.5},
			FreqMul:          mgl32.Vec3{0.8, 0.8, 0.8},
			Intensity:        0.6,
		},
	},
	ModeLookAround: {
		name: "look-around",
		params: ModeParams{
			HeadAmplitudeMul: mgl32.Vec3{1.2, 0.6, 0.5},
			BodyAmplitudeMul: mgl32.Vec3{0.7, 0.5, 0.6},
			FreqMul:          mgl32.Vec3{1.0, 0.9, 0.9},
			Intensity:        0.9,
		},
	},
	ModeSideTilt: {
		name: "side-tilt",
		params: ModeParams{
			HeadAmplitudeMul: mgl32.Vec3{0.6, 0.5, 1.4},
			BodyAmplitudeMul: mgl32.Vec3{0.6, 0.5, 1.3},
			FreqMul:          mgl32.Vec3{0.9, 0.9, 1.1},
			Intensity:        0.8,
		},
	},
	ModeEnergeticSway: {
		name: "energetic-sway",
		params: ModeParams{
			HeadAmplitudeMul: mgl32.Vec3{1.3, 1.1, 1.2},
			BodyAmplitudeMul: mgl32.Vec3{1.3, 1.1, 1.2},
			FreqMul:          mgl32.Vec3{1.3, 1.2, 1.3},
			Intensity:        1.2,
		},
	},
	ModeComboComplex: {
		name: "combo-complex",
		params: ModeParams{
			HeadAmplitudeMul:  mgl32.Vec3{1.0, 0.9, 1.0},
			BodyAmplitudeMul:  mgl32.Vec3{1.0, 0.9, 1.0},
			FreqMul:           mgl32.Vec3{1.1, 1.1, 1.1},
			Intensity:         1.0,
			UseComplexPattern: true,
		},
	},
	ModeVerticalBounce: {
		name: "vertical-bounce",
		params: ModeParams{
			HeadAmplitudeMul:  mgl32.Vec3{0.6, 1.4, 0.5},
			BodyAmplitudeMul:  mgl32.Vec3{0.5, 1.5, 0.5},
			FreqMul:           mgl32.Vec3{0.9, 1.3, 0.9},
			Intensity:         1.0,
			IsVerticalFocused: true,
		},
		halfCycle: Range{Min: 0.3, Max: 0.4},
	},
	ModeVerticalNod: {
		name: "vertical-nod",
		params: ModeParams{
			HeadAmplitudeMul:  mgl32.Vec3{0.4, 1.2, 0.4},
			BodyAmplitudeMul:  mgl32.Vec3{0.4, 1.0, 0.4},
			FreqMul:           mgl32.Vec3{0.8, 1.1, 0.8},
			Intensity:         0.9,
			IsVerticalFocused: true,
		},
		halfCycle: Range{Min: 0.4, Max: 0.55},
	},
}

// Modes lists every mode in table order.
func Modes() []MotionMode {
	out := make([]MotionMode, len(modeTable))
	for i := range modeTable {
		out[i] = MotionMode(i)
	}
	return out
}

func (m MotionMode) valid() bool {
	return m >= 0 && int(m) < len(modeTable)
}

func (m MotionMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeTable[m].name
}

// ParseMotionMode accepts the kebab-case mode names, case-insensitively,
// with underscores or spaces in place of dashes.
func ParseMotionMode(s string) (MotionMode, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for i, e := range modeTable {
		if e.name == norm {
			return MotionMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown motion mode %q", s)
}

// ModeParamsFor returns the immutable parameters of mode. Unknown modes map
// to SubtleSway.
func ModeParamsFor(mode MotionMode) ModeParams {
	if !mode.valid() {
		return modeTable[ModeSubtleSway].params
	}
	return modeTable[mode].params
}

func halfCycleFor(mode MotionMode) Range {
	if !mode.valid() || modeTable[mode].halfCycle.Max <= 0 {
		return Range{Min: 0.35, Max: 0.45}
	}
	return modeTable[mode].halfCycle
}

// BlendModeParams interpolates every numeric field from a to b. At t <= 0
// the result is exactly a and at t >= 1 exactly b. The flags switch to b's
// only at t >= 1, when the transition commits.
func BlendModeParams(a, b ModeParams, t float32) ModeParams {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return ModeParams{
		HeadAmplitudeMul:  lerpVec3(a.HeadAmplitudeMul, b.HeadAmplitudeMul, t),
		BodyAmplitudeMul:  lerpVec3(a.BodyAmplitudeMul, b.BodyAmplitudeMul, t),
		FreqMul:           lerpVec3(a.FreqMul, b.FreqMul, t),
		Intensity:         lerp(a.Intensity, b.Intensity, t),
		IsVerticalFocused: a.IsVerticalFocused,
		UseComplexPattern: a.UseComplexPattern,
	}
}

func verticalModes() []MotionMode {
	var out []MotionMode
	for _, m := range Modes() {
		if ModeParamsFor(m).IsVerticalFocused {
			out = append(out, m)
		}
	}
	return out
}

func otherModes() []MotionMode {
	var out []MotionMode
	for _, m := range Modes() {
		if !ModeParamsFor(m).IsVerticalFocused {
			out = append(out, m)
		}
	}
	return out
}

// nextMode picks the mode after current: a vertical-focused one with
// probability boost, otherwise a uniform pick from the rest. The current
// mode is never picked again while another candidate exists.
func nextMode(rng Rand, current MotionMode, boost float32) MotionMode {
	pool := otherModes()
	if rng.Float32() < boost {
		pool = verticalModes()
	}
	m, ok := pickUniform(rng, pool, current)
	if !ok || m == current {
		m, _ = pickUniform(rng, Modes(), current)
	}
	return m
}
