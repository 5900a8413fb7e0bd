package motion

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexmotion/internal/noise"
	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/rs/zerolog"
)

// IdleStyle names a tuning preset for the idle generator.
type IdleStyle string

const (
	StyleCalm      IdleStyle = "calm"
	StyleEnergetic IdleStyle = "energetic"
	StyleHyper     IdleStyle = "hyper"
	// StyleCustom keeps the configured values untouched.
	StyleCustom IdleStyle = "custom"
)

// IdleConfig holds the idle sway knobs. Amplitudes are in parameter units
// (degrees for the angle axes) and apply to noise in [-0.5, 0.5].
type IdleConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Style   IdleStyle `mapstructure:"style"`

	HeadXIDs  []string `mapstructure:"head_x_ids"`
	HeadYIDs  []string `mapstructure:"head_y_ids"`
	HeadZIDs  []string `mapstructure:"head_z_ids"`
	BodyXIDs  []string `mapstructure:"body_x_ids"`
	BodyYIDs  []string `mapstructure:"body_y_ids"`
	BodyZIDs  []string `mapstructure:"body_z_ids"`
	BreathIDs []string `mapstructure:"breath_ids"`
	MouthIDs  []string `mapstructure:"mouth_ids"`

	BaseFrequency float32    `mapstructure:"base_frequency"`
	Damping       float32    `mapstructure:"damping"`
	HeadAmplitude mgl32.Vec3 `mapstructure:"head_amplitude"`
	BodyAmplitude mgl32.Vec3 `mapstructure:"body_amplitude"`
	// Symmetric bound on the combined body target.
	BodyLimit mgl32.Vec3 `mapstructure:"body_limit"`

	BodySyncStrength float32 `mapstructure:"body_sync_strength"`
	HeadSoloRatio    float32 `mapstructure:"head_solo_ratio"`

	ComplexAmplitude float32 `mapstructure:"complex_amplitude"`
	ComplexFrequency float32 `mapstructure:"complex_frequency"`

	// Always-on sway on the body X and Z axes.
	BaseMotionAmplitude float32 `mapstructure:"base_motion_amplitude"`
	BaseMotionFrequency float32 `mapstructure:"base_motion_frequency"`

	VerticalBounceFactor   float32 `mapstructure:"vertical_bounce_factor"`
	VerticalShakeAmplitude float32 `mapstructure:"vertical_shake_amplitude"`

	BreathAmplitude float32 `mapstructure:"breath_amplitude"`
	BreathRate      float32 `mapstructure:"breath_rate"`
	BreathJitter    float32 `mapstructure:"breath_jitter"`

	AutoMouth      bool    `mapstructure:"auto_mouth"`
	AutoMouthSpeed float32 `mapstructure:"auto_mouth_speed"`
	AutoMouthMax   float32 `mapstructure:"auto_mouth_max"`

	InitialMode         string  `mapstructure:"initial_mode"`
	ModeChangeInterval  Range   `mapstructure:"mode_change_interval"`
	ModeTransitionSpeed float32 `mapstructure:"mode_transition_speed"`
	VerticalMotionBoost float32 `mapstructure:"vertical_motion_boost"`

	ReseedPeriodically bool    `mapstructure:"reseed_periodically"`
	ReseedInterval     float32 `mapstructure:"reseed_interval"`

	Direction DirectionConfig `mapstructure:"direction"`
}

// DefaultIdleConfig returns the energetic preset.
func DefaultIdleConfig() IdleConfig {
	c := IdleConfig{
		Enabled:   true,
		Style:     StyleEnergetic,
		HeadXIDs:  []string{"Angle X", rig.ParamAngleX},
		HeadYIDs:  []string{"Angle Y", rig.ParamAngleY},
		HeadZIDs:  []string{"Angle Z", rig.ParamAngleZ},
		BodyXIDs:  []string{"Body X", "ParamBodyX", rig.ParamBodyAngleX},
		BodyYIDs:  []string{"Body Y", "ParamBodyY", rig.ParamBodyAngleY},
		BodyZIDs:  []string{"Body Z", "ParamBodyZ", rig.ParamBodyAngleZ},
		BreathIDs: []string{"Breathing", rig.ParamBreath},
		MouthIDs:  []string{"Mouth Open", rig.ParamMouthOpenY},

		BodyLimit:        mgl32.Vec3{10, 10, 10},
		BodySyncStrength: 0.9,
		HeadSoloRatio:    0.1,
		ComplexAmplitude: 0.35,
		ComplexFrequency: 2.5,

		BaseMotionAmplitude: 1.5,
		BaseMotionFrequency: 0.25,

		VerticalShakeAmplitude: 8,

		BreathRate:   0.3,
		BreathJitter: 0.1,

		AutoMouth:      false,
		AutoMouthSpeed: 6,
		AutoMouthMax:   0.7,

		InitialMode:         ModeSubtleSway.String(),
		ModeChangeInterval:  Range{Min: 6, Max: 12},
		ModeTransitionSpeed: 0.5,
		VerticalMotionBoost: 0.3,

		ReseedPeriodically: false,
		ReseedInterval:     30,

		Direction: DefaultDirectionConfig(),
	}
	c.ApplyStyle()
	return c
}

// ApplyStyle overwrites the style-governed fields with the preset named by
// Style. Custom and empty styles leave them as configured.
func (c *IdleConfig) ApplyStyle() {
	switch c.Style {
	case StyleCalm:
		c.BaseFrequency, c.Damping = 0.2, 6
		c.HeadAmplitude = mgl32.Vec3{35, 6, 6}
		c.BodyAmplitude = mgl32.Vec3{28, 30, 3}
		c.BreathAmplitude = 0.8
		c.VerticalBounceFactor = 0.8
	case StyleEnergetic:
		c.BaseFrequency, c.Damping = 0.35, 6
		c.HeadAmplitude = mgl32.Vec3{60, 8, 10}
		c.BodyAmplitude = mgl32.Vec3{50, 50, 5}
		c.BreathAmplitude = 1
		c.VerticalBounceFactor = 1.2
	case StyleHyper:
		c.BaseFrequency, c.Damping = 0.7, 8
		c.HeadAmplitude = mgl32.Vec3{75, 10, 12}
		c.BodyAmplitude = mgl32.Vec3{60, 70, 7}
		c.BreathAmplitude = 1
		c.VerticalBounceFactor = 1.6
	}
}

// Validate clamps the configuration into a usable state and reports what it
// changed.
func (c *IdleConfig) Validate() []Correction {
	var cs corrections
	switch c.Style {
	case StyleCalm, StyleEnergetic, StyleHyper, StyleCustom:
	case "":
		c.Style = StyleCustom
	default:
		cs.add("idle.style", c.Style, StyleEnergetic)
		c.Style = StyleEnergetic
		c.ApplyStyle()
	}
	cs.within("idle.base_frequency", &c.BaseFrequency, 0.05, 1.5)
	cs.within("idle.damping", &c.Damping, 1, 20)
	for i := 0; i < 3; i++ {
		cs.atLeast("idle.head_amplitude", &c.HeadAmplitude[i], 0)
		cs.atLeast("idle.body_amplitude", &c.BodyAmplitude[i], 0)
		cs.atLeast("idle.body_limit", &c.BodyLimit[i], 0)
	}
	cs.unit("idle.body_sync_strength", &c.BodySyncStrength)
	cs.unit("idle.head_solo_ratio", &c.HeadSoloRatio)
	cs.atLeast("idle.complex_amplitude", &c.ComplexAmplitude, 0)
	cs.positive("idle.complex_frequency", &c.ComplexFrequency, 2.5)
	cs.atLeast("idle.base_motion_amplitude", &c.BaseMotionAmplitude, 0)
	cs.positive("idle.base_motion_frequency", &c.BaseMotionFrequency, 0.25)
	cs.atLeast("idle.vertical_bounce_factor", &c.VerticalBounceFactor, 0)
	cs.atLeast("idle.vertical_shake_amplitude", &c.VerticalShakeAmplitude, 0)
	cs.unit("idle.breath_amplitude", &c.BreathAmplitude)
	cs.positive("idle.breath_rate", &c.BreathRate, 0.3)
	cs.atLeast("idle.breath_jitter", &c.BreathJitter, 0)
	cs.positive("idle.auto_mouth_speed", &c.AutoMouthSpeed, 6)
	cs.unit("idle.auto_mouth_max", &c.AutoMouthMax)
	cs.rangeAtLeast("idle.mode_change_interval", &c.ModeChangeInterval, 0.5)
	cs.positive("idle.mode_transition_speed", &c.ModeTransitionSpeed, 0.5)
	cs.unit("idle.vertical_motion_boost", &c.VerticalMotionBoost)
	cs.positive("idle.reseed_interval", &c.ReseedInterval, 30)
	if c.InitialMode != "" {
		if _, err := ParseMotionMode(c.InitialMode); err != nil {
			cs.add("idle.initial_mode", c.InitialMode, ModeSubtleSway)
			c.InitialMode = ModeSubtleSway.String()
		}
	}
	c.Direction.validate(&cs)
	return cs
}

// MotionState is a copy of the idle generator's mode and pose state.
type MotionState struct {
	CurrentMode        MotionMode `json:"current_mode"`
	TargetMode         MotionMode `json:"target_mode"`
	TransitionProgress float32    `json:"transition_progress"`
	Transitioning      bool       `json:"transitioning"`
	HeadTarget         mgl32.Vec3 `json:"head_target"`
	BodyTarget         mgl32.Vec3 `json:"body_target"`
	HeadCurrent        mgl32.Vec3 `json:"head_current"`
	BodyCurrent        mgl32.Vec3 `json:"body_current"`
}

// Per-axis octave ratios of the noise layers.
var (
	baseOctave    = mgl32.Vec3{1.0, 0.5, 0.4}
	soloOctave    = mgl32.Vec3{1.2, 0.6, 0.5}
	bodyOctave    = mgl32.Vec3{0.9, 1.6, 1.2}
	complexOctave = mgl32.Vec3{1.3, 0.9, 1.1}
)

type idleSeeds struct {
	base, solo, complex, sway mgl32.Vec3
}

// IdleMotionGenerator sways the head and body between motion modes and
// layers breathing on top.
type IdleMotionGenerator struct {
	mu sync.RWMutex

	cfg   IdleConfig
	rng   Rand
	field *noise.Field
	log   zerolog.Logger

	head   [3]*rig.Parameter
	body   [3]*rig.Parameter
	breath *rig.Parameter
	mouth  *rig.Parameter

	now        float32
	nextReseed float32
	seeds      idleSeeds

	state        MotionState
	from         ModeParams
	modeTimer    float32
	vertical     VerticalShake
	direction    *DirectionConstraint
	onModeChange func(from, to MotionMode)

	// weight of the complex noise layer, blended across transitions
	complexWeight float32
	fromComplex   float32
}

// NewIdleMotionGenerator binds whichever configured axes exist on sink.
// Missing axes are skipped.
func NewIdleMotionGenerator(sink rig.Sink, field *noise.Field, cfg IdleConfig, rng Rand, log zerolog.Logger) *IdleMotionGenerator {
	for _, c := range cfg.Validate() {
		log.Warn().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("Corrected idle configuration")
	}

	g := &IdleMotionGenerator{
		cfg:       cfg,
		rng:       rng,
		field:     field,
		log:       log,
		direction: NewDirectionConstraint(cfg.Direction),
	}

	bind := func(name string, ids []string) *rig.Parameter {
		p, err := rig.Find(sink, ids...)
		if err != nil {
			log.Debug().Str("axis", name).Err(err).Msg("Idle axis skipped")
			return nil
		}
		return p
	}
	g.head = [3]*rig.Parameter{bind("head_x", cfg.HeadXIDs), bind("head_y", cfg.HeadYIDs), bind("head_z", cfg.HeadZIDs)}
	g.body = [3]*rig.Parameter{bind("body_x", cfg.BodyXIDs), bind("body_y", cfg.BodyYIDs), bind("body_z", cfg.BodyZIDs)}
	g.breath = bind("breath", cfg.BreathIDs)
	g.mouth = bind("mouth", cfg.MouthIDs)

	mode := ModeSubtleSway
	if m, err := ParseMotionMode(cfg.InitialMode); err == nil {
		mode = m
	}
	g.state.CurrentMode = mode
	g.state.TargetMode = mode
	g.state.TransitionProgress = 1
	g.from = ModeParamsFor(mode)
	if g.from.UseComplexPattern {
		g.complexWeight = 1
	}
	g.modeTimer = cfg.ModeChangeInterval.Sample(rng)
	if g.from.IsVerticalFocused {
		g.vertical.Start(rng, halfCycleFor(mode))
	}

	g.reseedLocked()
	g.nextReseed = cfg.ReseedInterval

	log.Info().Str("style", string(cfg.Style)).Str("mode", mode.String()).Msg("Idle motion ready")
	return g
}

// Name implements the engine generator contract.
func (g *IdleMotionGenerator) Name() string { return "idle" }

// Targets lists the bound parameter ids. The mouth is included only when
// the automatic mouth channel is on.
func (g *IdleMotionGenerator) Targets() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for _, p := range append(g.head[:], g.body[:]...) {
		if p != nil {
			ids = append(ids, p.ID)
		}
	}
	if g.breath != nil {
		ids = append(ids, g.breath.ID)
	}
	if g.mouth != nil && g.cfg.AutoMouth {
		ids = append(ids, g.mouth.ID)
	}
	return ids
}

// OnModeChange registers fn to be called from Update when a mode commits.
func (g *IdleMotionGenerator) OnModeChange(fn func(from, to MotionMode)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onModeChange = fn
}

// State returns a copy of the mode and pose state.
func (g *IdleMotionGenerator) State() MotionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// VerticalActive reports whether a vertical nod run is in progress.
func (g *IdleMotionGenerator) VerticalActive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.vertical.Active()
}

// SetConfig replaces the tuning. Parameter bindings are kept.
func (g *IdleMotionGenerator) SetConfig(cfg IdleConfig) {
	cfg.Validate()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
	g.direction.SetConfig(cfg.Direction)
}

// Reseed draws fresh noise seeds for every layer.
func (g *IdleMotionGenerator) Reseed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reseedLocked()
}

func (g *IdleMotionGenerator) reseedLocked() {
	g.seeds = idleSeeds{
		base:    noise.RandomSeed(g.rng, noise.DefaultSeedExtent),
		solo:    noise.RandomSeed(g.rng, noise.DefaultSeedExtent),
		complex: noise.RandomSeed(g.rng, noise.DefaultSeedExtent),
		sway:    noise.RandomSeed(g.rng, noise.DefaultSeedExtent),
	}
}

// ForceMode starts a transition to mode from wherever the blend currently
// stands.
func (g *IdleMotionGenerator) ForceMode(mode MotionMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !mode.valid() {
		return
	}
	if !g.state.Transitioning && g.state.CurrentMode == mode {
		return
	}
	g.beginTransition(mode)
}

func (g *IdleMotionGenerator) blended() ModeParams {
	if !g.state.Transitioning {
		return ModeParamsFor(g.state.CurrentMode)
	}
	return BlendModeParams(g.from, ModeParamsFor(g.state.TargetMode), g.state.TransitionProgress)
}

func (g *IdleMotionGenerator) beginTransition(to MotionMode) {
	g.from = g.blended()
	g.fromComplex = g.complexWeight
	g.state.TargetMode = to
	g.state.TransitionProgress = 0
	g.state.Transitioning = true
	g.log.Debug().Str("from", g.state.CurrentMode.String()).Str("to", to.String()).Msg("Mode transition")
}

// Update advances every layer by dt seconds and writes the pose.
func (g *IdleMotionGenerator) Update(dt float32) {
	g.mu.Lock()
	if !g.cfg.Enabled {
		g.mu.Unlock()
		return
	}

	g.now += dt
	if g.cfg.ReseedPeriodically && g.now >= g.nextReseed {
		g.reseedLocked()
		g.nextReseed = g.now + g.cfg.ReseedInterval
	}

	committed, from := g.stepModes(dt)
	params := g.blended()

	headTarget, bodyTarget := g.ambient(params, dt)
	headTarget = g.direction.Apply(headTarget, dt, g.rng)
	g.state.HeadTarget = headTarget
	g.state.BodyTarget = bodyTarget

	k := clamp01(g.cfg.Damping * dt)
	g.state.HeadCurrent = lerpVec3(g.state.HeadCurrent, headTarget, k)
	g.state.BodyCurrent = lerpVec3(g.state.BodyCurrent, bodyTarget, k)

	for i := 0; i < 3; i++ {
		if g.head[i] != nil {
			g.head[i].SetOffset(g.state.HeadCurrent[i])
		}
		if g.body[i] != nil {
			g.body[i].SetOffset(g.state.BodyCurrent[i])
		}
	}
	g.applyBreath()
	g.applyMouth()

	fn := g.onModeChange
	to := g.state.CurrentMode
	g.mu.Unlock()

	if committed && fn != nil {
		fn(from, to)
	}
}

func (g *IdleMotionGenerator) stepModes(dt float32) (bool, MotionMode) {
	if g.state.Transitioning {
		target := ModeParamsFor(g.state.TargetMode)
		var targetComplex float32
		if target.UseComplexPattern {
			targetComplex = 1
		}
		g.state.TransitionProgress += g.cfg.ModeTransitionSpeed * dt
		g.complexWeight = lerp(g.fromComplex, targetComplex, clamp01(g.state.TransitionProgress))

		if g.state.TransitionProgress < 1 {
			return false, 0
		}
		from := g.state.CurrentMode
		g.state.TransitionProgress = 1
		g.state.Transitioning = false
		g.state.CurrentMode = g.state.TargetMode
		g.complexWeight = targetComplex
		g.modeTimer = g.cfg.ModeChangeInterval.Sample(g.rng)
		if target.IsVerticalFocused {
			g.vertical.Start(g.rng, halfCycleFor(g.state.CurrentMode))
		} else {
			g.vertical.Stop()
		}
		g.log.Debug().Str("mode", g.state.CurrentMode.String()).Msg("Mode committed")
		return true, from
	}

	g.modeTimer -= dt
	if g.modeTimer <= 0 {
		g.beginTransition(nextMode(g.rng, g.state.CurrentMode, g.cfg.VerticalMotionBoost))
	}
	return false, 0
}

// ambient synthesizes the head and body targets for this frame.
func (g *IdleMotionGenerator) ambient(p ModeParams, dt float32) (mgl32.Vec3, mgl32.Vec3) {
	cfg := g.cfg
	f := g.field
	s := g.seeds
	t := g.now * cfg.BaseFrequency

	base := f.Sample3(s.base, t, mulVec3(baseOctave, p.FreqMul)).
		Add(f.Sample3(s.base.Add(mgl32.Vec3{13, 13, 13}), t, mulVec3(baseOctave, p.FreqMul).Mul(2)).Mul(0.5))
	solo := f.Sample3(s.solo, t, mulVec3(soloOctave, p.FreqMul))
	headNoise := base.Add(solo.Mul(cfg.HeadSoloRatio))
	if g.complexWeight > 0 {
		cx := f.Sample3(s.complex, t, mulVec3(complexOctave, p.FreqMul).Mul(cfg.ComplexFrequency))
		headNoise = headNoise.Add(cx.Mul(cfg.ComplexAmplitude * g.complexWeight))
	}

	bodyRand := f.Sample3(s.base.Add(mgl32.Vec3{7, 7, 7}), t, mulVec3(bodyOctave, p.FreqMul))
	bodyNoise := lerpVec3(bodyRand, base, cfg.BodySyncStrength)

	head := mulVec3(headNoise, mulVec3(cfg.HeadAmplitude, p.HeadAmplitudeMul)).Mul(p.Intensity)
	body := mulVec3(bodyNoise, mulVec3(cfg.BodyAmplitude, p.BodyAmplitudeMul)).Mul(p.Intensity)

	// Body Y bounces on its own clock.
	bounce := f.Sample(s.base[1]+37, g.now, cfg.VerticalBounceFactor*p.FreqMul[1]) * 2
	body[1] = bounce * cfg.BodyAmplitude[1] * p.BodyAmplitudeMul[1] * p.Intensity

	// A nod run replaces the mode-driven layers; only the base sway stays.
	if g.vertical.Active() {
		if v, ok := g.vertical.Update(dt); ok {
			head = mgl32.Vec3{0, v * cfg.VerticalShakeAmplitude * p.HeadAmplitudeMul[1], 0}
			body = mgl32.Vec3{}
		}
	}

	body[0] += g.sway(s.sway[0], 0)
	body[2] += g.sway(s.sway[2], math.Pi/2)
	body = clampVec3(body, cfg.BodyLimit)
	return head, body
}

// sway is the always-on body motion: two noise octaves over a slow sine
// carrier, so the body never rests at exactly zero.
func (g *IdleMotionGenerator) sway(seed, phase float32) float32 {
	f := g.cfg.BaseMotionFrequency
	n := g.field.Sample(seed, g.now, f) + 0.5*g.field.Sample(seed+31, g.now, f*2)
	carrier := 0.25 * sin32(2*math.Pi*f*g.now+phase)
	return g.cfg.BaseMotionAmplitude * (n + carrier)
}

func (g *IdleMotionGenerator) applyBreath() {
	if g.breath == nil {
		return
	}
	cfg := g.cfg
	wave := 0.5 + 0.5*sin32(2*math.Pi*cfg.BreathRate*g.now)
	jitter := g.field.Sample(g.seeds.base[1]+23, g.now, cfg.BreathRate) * cfg.BreathJitter
	g.breath.SetOffset(cfg.BreathAmplitude*wave + jitter)
}

func (g *IdleMotionGenerator) applyMouth() {
	if g.mouth == nil || !g.cfg.AutoMouth {
		return
	}
	g.mouth.Set(abs32(sin32(g.now*g.cfg.AutoMouthSpeed)) * g.cfg.AutoMouthMax)
}
