package motion

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexmotion/internal/noise"
	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/rs/zerolog"
)

// ShakeState is the phase of the head oscillator.
type ShakeState int

const (
	ShakeIdle ShakeState = iota
	ShakeShaking
	ShakeReturning
)

func (s ShakeState) String() string {
	switch s {
	case ShakeShaking:
		return "shaking"
	case ShakeReturning:
		return "returning"
	default:
		return "idle"
	}
}

// ShakeAxis maps the oscillator onto one parameter. PhaseOffset is in
// degrees; non-zero offsets blend in velocity for a follow-through lag.
type ShakeAxis struct {
	IDs            []string `mapstructure:"ids"`
	Weight         float32  `mapstructure:"weight"`
	PhaseOffset    float32  `mapstructure:"phase_offset"`
	AmplitudeScale float32  `mapstructure:"amplitude_scale"`
}

// ShakeConfig holds the head shake knobs.
type ShakeConfig struct {
	Enabled bool `mapstructure:"enabled"`

	EffectiveMass  float32 `mapstructure:"effective_mass"`
	DampingRatio   float32 `mapstructure:"damping_ratio"`
	MaxAmplitude   float32 `mapstructure:"max_amplitude"`
	Duration       float32 `mapstructure:"duration"`
	ReturnDuration float32 `mapstructure:"return_duration"`

	AmplitudeEnvelope Curve `mapstructure:"amplitude_envelope"`
	FrequencyEnvelope Curve `mapstructure:"frequency_envelope"`

	NoiseAmplitude   float32 `mapstructure:"noise_amplitude"`
	PrimaryFrequency float32 `mapstructure:"primary_frequency"`
	SecondaryGain    float32 `mapstructure:"secondary_gain"`
	TertiaryGain     float32 `mapstructure:"tertiary_gain"`

	// A shake ends once its progress reaches 1 and |velocity| drops below
	// VelocityThreshold, or unconditionally after MaxDurationFactor*Duration.
	VelocityThreshold float32 `mapstructure:"velocity_threshold"`
	MaxDurationFactor float32 `mapstructure:"max_duration_factor"`
	MaxStep           float32 `mapstructure:"max_step"`

	Axes []ShakeAxis `mapstructure:"axes"`

	AutoTrigger            bool    `mapstructure:"auto_trigger"`
	AutoTriggerInterval    float32 `mapstructure:"auto_trigger_interval"`
	AutoTriggerProbability float32 `mapstructure:"auto_trigger_probability"`
	IntenseMultiplier      float32 `mapstructure:"intense_multiplier"`
}

// DefaultAmplitudeEnvelope fades the shake in and out over its progress.
func DefaultAmplitudeEnvelope() Curve { return EaseInOut(0, 1, 1, 0) }

// DefaultFrequencyEnvelope slows the shake to 70% by the end.
func DefaultFrequencyEnvelope() Curve { return Linear(0, 1, 1, 0.7) }

// DefaultShakeConfig returns the tuned head shake.
func DefaultShakeConfig() ShakeConfig {
	return ShakeConfig{
		Enabled:           true,
		EffectiveMass:     5,
		DampingRatio:      0.3,
		MaxAmplitude:      45,
		Duration:          2,
		ReturnDuration:    0.3,
		AmplitudeEnvelope: DefaultAmplitudeEnvelope(),
		FrequencyEnvelope: DefaultFrequencyEnvelope(),
		NoiseAmplitude:    1.5,
		PrimaryFrequency:  6,
		SecondaryGain:     0.5,
		TertiaryGain:      0.25,
		VelocityThreshold: 0.1,
		MaxDurationFactor: 2,
		MaxStep:           1.0 / 120,
		Axes: []ShakeAxis{
			{IDs: []string{rig.ParamAngleX, "Angle X"}, Weight: 1, PhaseOffset: 0, AmplitudeScale: 1},
			{IDs: []string{rig.ParamAngleY, "Angle Y"}, Weight: 0.3, PhaseOffset: 45, AmplitudeScale: 0.6},
			{IDs: []string{rig.ParamAngleZ, "Angle Z"}, Weight: 0.2, PhaseOffset: -30, AmplitudeScale: 0.4},
		},
		AutoTrigger:            false,
		AutoTriggerInterval:    2,
		AutoTriggerProbability: 1,
		IntenseMultiplier:      3,
	}
}

// Validate clamps the configuration into a usable state and reports what it
// changed.
func (c *ShakeConfig) Validate() []Correction {
	var cs corrections
	cs.positive("shake.effective_mass", &c.EffectiveMass, 0.1)
	cs.positive("shake.damping_ratio", &c.DampingRatio, 0.1)
	cs.positive("shake.max_amplitude", &c.MaxAmplitude, 1)
	cs.positive("shake.duration", &c.Duration, 0.5)
	cs.atLeast("shake.return_duration", &c.ReturnDuration, 0)
	cs.curve("shake.amplitude_envelope", &c.AmplitudeEnvelope, DefaultAmplitudeEnvelope())
	cs.curve("shake.frequency_envelope", &c.FrequencyEnvelope, DefaultFrequencyEnvelope())
	cs.atLeast("shake.noise_amplitude", &c.NoiseAmplitude, 0)
	cs.positive("shake.primary_frequency", &c.PrimaryFrequency, 6)
	cs.unit("shake.secondary_gain", &c.SecondaryGain)
	cs.unit("shake.tertiary_gain", &c.TertiaryGain)
	cs.positive("shake.velocity_threshold", &c.VelocityThreshold, 0.1)
	cs.atLeast("shake.max_duration_factor", &c.MaxDurationFactor, 1)
	cs.positive("shake.max_step", &c.MaxStep, 1.0/120)
	cs.positive("shake.auto_trigger_interval", &c.AutoTriggerInterval, 2)
	cs.unit("shake.auto_trigger_probability", &c.AutoTriggerProbability)
	cs.atLeast("shake.intense_multiplier", &c.IntenseMultiplier, 0)
	for i := range c.Axes {
		cs.unit("shake.axes.weight", &c.Axes[i].Weight)
		cs.within("shake.axes.phase_offset", &c.Axes[i].PhaseOffset, -180, 180)
		cs.within("shake.axes.amplitude_scale", &c.Axes[i].AmplitudeScale, 0, 2)
	}
	return cs
}

// BaseFrequency is the natural shake frequency in Hz of an animal of the
// given mass in kg, f = 2.8·m^-0.22.
func BaseFrequency(mass float32) float32 {
	return 2.8 * float32(math.Pow(float64(mass), -0.22))
}

// SpringConstant returns k = (2πf)²·m.
func SpringConstant(frequency, mass float32) float32 {
	w := 2 * math.Pi * frequency
	return w * w * mass
}

// DampingCoefficient returns c = 2ζ·√(k·m).
func DampingCoefficient(ratio, k, mass float32) float32 {
	return 2 * ratio * float32(math.Sqrt(float64(k*mass)))
}

// OscillatorState is the physical state of one shake.
type OscillatorState struct {
	Position       float32 `json:"position"`
	Velocity       float32 `json:"velocity"`
	Phase          float32 `json:"phase"`
	Amplitude      float32 `json:"amplitude"`
	Frequency      float32 `json:"frequency"`
	DampingCoeff   float32 `json:"damping_coeff"`
	SpringConstant float32 `json:"spring_constant"`
	Mass           float32 `json:"mass"`
}

// ShakeStart describes a shake as it begins.
type ShakeStart struct {
	Auto      bool    `json:"auto"`
	Intensity float32 `json:"intensity"`
	Frequency float32 `json:"frequency"`
	Amplitude float32 `json:"amplitude"`
}

type boundAxis struct {
	ShakeAxis
	param *rig.Parameter
	start float32
}

// HeadOscillator drives the head angle parameters with a damped spring
// layered with fractal noise.
type HeadOscillator struct {
	mu sync.RWMutex

	cfg   ShakeConfig
	rng   Rand
	field *noise.Field
	log   zerolog.Logger
	axes  []boundAxis

	state      ShakeState
	osc        OscillatorState
	now        float32
	elapsed    float32
	returnTime float32
	seeds      mgl32.Vec3

	autoTimer float32
	onShake   func(ShakeStart)
}

// NewHeadOscillator binds the configured axes on sink. Axes whose
// parameters are missing are skipped.
func NewHeadOscillator(sink rig.Sink, field *noise.Field, cfg ShakeConfig, rng Rand, log zerolog.Logger) *HeadOscillator {
	for _, c := range cfg.Validate() {
		log.Warn().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("Corrected shake configuration")
	}

	h := &HeadOscillator{cfg: cfg, rng: rng, field: field, log: log}
	for _, axis := range cfg.Axes {
		p, err := rig.Find(sink, axis.IDs...)
		if err != nil {
			log.Warn().Err(err).Msg("Shake axis skipped")
			continue
		}
		h.axes = append(h.axes, boundAxis{ShakeAxis: axis, param: p})
	}
	h.seeds = noise.RandomSeed(rng, noise.DefaultSeedExtent)

	log.Info().
		Float32("mass", cfg.EffectiveMass).
		Float32("frequency", BaseFrequency(cfg.EffectiveMass)).
		Int("axes", len(h.axes)).
		Msg("Head oscillator ready")
	return h
}

// Name implements the engine generator contract.
func (h *HeadOscillator) Name() string { return "headshake" }

// Targets lists the bound axis ids.
func (h *HeadOscillator) Targets() []string {
	ids := make([]string, 0, len(h.axes))
	for _, a := range h.axes {
		ids = append(ids, a.param.ID)
	}
	return ids
}

// OnShake registers fn to be called whenever a shake starts.
func (h *HeadOscillator) OnShake(fn func(ShakeStart)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShake = fn
}

// State returns the current phase.
func (h *HeadOscillator) State() ShakeState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Oscillator returns a copy of the physical state.
func (h *HeadOscillator) Oscillator() OscillatorState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.osc
}

// Progress is the shake's elapsed fraction of its duration, 0 when not
// shaking.
func (h *HeadOscillator) Progress() float32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.progress()
}

func (h *HeadOscillator) progress() float32 {
	if h.state != ShakeShaking {
		return 0
	}
	return clamp01(h.elapsed / h.cfg.Duration)
}

// AutoTrigger reports whether the shake scheduler is on.
func (h *HeadOscillator) AutoTrigger() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.AutoTrigger
}

// SetAutoTrigger switches the periodic shake scheduler.
func (h *HeadOscillator) SetAutoTrigger(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg.AutoTrigger != on {
		h.autoTimer = 0
	}
	h.cfg.AutoTrigger = on
}

// SetConfig replaces the tuning. Axes stay bound to the parameters found at
// construction; a shake in progress continues with its current state.
func (h *HeadOscillator) SetConfig(cfg ShakeConfig) {
	cfg.Validate()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
	byID := map[string]ShakeAxis{}
	for _, a := range cfg.Axes {
		for _, id := range a.IDs {
			byID[id] = a
		}
	}
	for i := range h.axes {
		if a, ok := byID[h.axes[i].param.ID]; ok {
			h.axes[i].Weight = a.Weight
			h.axes[i].PhaseOffset = a.PhaseOffset
			h.axes[i].AmplitudeScale = a.AmplitudeScale
		}
	}
}

// Reseed draws fresh noise seeds.
func (h *HeadOscillator) Reseed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seeds = noise.RandomSeed(h.rng, noise.DefaultSeedExtent)
}

// TriggerShake starts a shake at the configured amplitude.
func (h *HeadOscillator) TriggerShake() {
	h.TriggerShakeWithIntensity(1)
}

// TriggerShakeWithIntensity starts a shake with its peak amplitude scaled by
// intensity. A shake or return in progress is abandoned and the axes are
// reset to their defaults first.
func (h *HeadOscillator) TriggerShakeWithIntensity(intensity float32) {
	h.mu.Lock()
	start := h.startLocked(intensity, false)
	fn := h.onShake
	h.mu.Unlock()

	if fn != nil && start != nil {
		fn(*start)
	}
}

func (h *HeadOscillator) startLocked(intensity float32, auto bool) *ShakeStart {
	if !h.cfg.Enabled {
		return nil
	}
	if intensity < 0 {
		intensity = 0
	}
	if h.state != ShakeIdle {
		for _, a := range h.axes {
			a.param.Reset()
		}
	}

	cfg := h.cfg
	f := BaseFrequency(cfg.EffectiveMass)
	k := SpringConstant(f, cfg.EffectiveMass)
	amp := cfg.MaxAmplitude * intensity * Range{Min: 0.85, Max: 1.15}.Sample(h.rng)
	phase := h.rng.Float32() * 2 * math.Pi
	omega := 2 * math.Pi * f

	h.osc = OscillatorState{
		Position:       amp * sin32(phase),
		Velocity:       amp*omega*cos32(phase) + Range{Min: -5, Max: 5}.Sample(h.rng),
		Phase:          phase,
		Amplitude:      amp,
		Frequency:      f,
		Mass:           cfg.EffectiveMass,
		SpringConstant: k,
		DampingCoeff:   DampingCoefficient(cfg.DampingRatio, k, cfg.EffectiveMass),
	}
	h.state = ShakeShaking
	h.elapsed = 0

	h.log.Debug().
		Bool("auto", auto).
		Float32("frequency", f).
		Float32("amplitude", amp).
		Msg("Shake started")
	return &ShakeStart{Auto: auto, Intensity: intensity, Frequency: f, Amplitude: amp}
}

// Reset abandons any shake and restores the axes to their defaults.
func (h *HeadOscillator) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.axes {
		a.param.Reset()
	}
	h.state = ShakeIdle
	h.osc = OscillatorState{}
}

// Update advances the auto scheduler and the active shake by dt seconds.
func (h *HeadOscillator) Update(dt float32) {
	h.mu.Lock()
	h.now += dt

	var start *ShakeStart
	if h.cfg.AutoTrigger && h.cfg.Enabled {
		h.autoTimer += dt
		if h.autoTimer >= h.cfg.AutoTriggerInterval {
			h.autoTimer -= h.cfg.AutoTriggerInterval
			if h.rng.Float32() < h.cfg.AutoTriggerProbability {
				intensity := float32(1)
				if h.rng.Float32() > 0.5 {
					intensity = h.cfg.IntenseMultiplier
				}
				start = h.startLocked(intensity, true)
			}
		}
	}

	switch h.state {
	case ShakeShaking:
		h.step(dt)
	case ShakeReturning:
		h.stepReturn(dt)
	}

	fn := h.onShake
	h.mu.Unlock()

	if fn != nil && start != nil {
		fn(*start)
	}
}

func (h *HeadOscillator) step(dt float32) {
	cfg := h.cfg
	if dt > 0 {
		n := int(math.Ceil(float64(dt / cfg.MaxStep)))
		sub := dt / float32(n)
		for i := 0; i < n; i++ {
			h.elapsed += sub
			progress := clamp01(h.elapsed / cfg.Duration)
			h.osc.Frequency = BaseFrequency(cfg.EffectiveMass) * cfg.FrequencyEnvelope.Evaluate(progress)
			h.osc.SpringConstant = SpringConstant(h.osc.Frequency, h.osc.Mass)
			force := -h.osc.SpringConstant*h.osc.Position - h.osc.DampingCoeff*h.osc.Velocity
			h.osc.Velocity += force / h.osc.Mass * sub
			h.osc.Position += h.osc.Velocity * sub
		}
	}

	progress := clamp01(h.elapsed / cfg.Duration)
	env := cfg.AmplitudeEnvelope.Evaluate(progress)
	out := (h.osc.Position + h.fbm()) * env
	lead := h.osc.Velocity * 0.1 * env

	for _, a := range h.axes {
		if a.Weight <= 0 {
			continue
		}
		rad := mgl32.DegToRad(a.PhaseOffset)
		phased := out*cos32(rad) + lead*sin32(rad)
		a.param.SetOffset(phased * a.AmplitudeScale * a.Weight)
	}

	settled := progress >= 1 && abs32(h.osc.Velocity) < cfg.VelocityThreshold
	if settled || h.elapsed >= cfg.Duration*cfg.MaxDurationFactor {
		h.endLocked()
	}
}

// fbm sums up to three octaves of centered noise.
func (h *HeadOscillator) fbm() float32 {
	cfg := h.cfg
	f := cfg.PrimaryFrequency
	n := h.field.Sample(h.seeds[0], h.now, f)
	if cfg.SecondaryGain > 0 {
		n += h.field.Sample(h.seeds[1], h.now, f*2) * cfg.SecondaryGain
	}
	if cfg.TertiaryGain > 0 {
		n += h.field.Sample(h.seeds[2], h.now, f*4) * cfg.TertiaryGain
	}
	return n * cfg.NoiseAmplitude
}

func (h *HeadOscillator) endLocked() {
	h.state = ShakeReturning
	h.returnTime = 0
	for i := range h.axes {
		h.axes[i].start = h.axes[i].param.Value
	}
	h.log.Debug().Float32("elapsed", h.elapsed).Msg("Shake settled")
	if h.cfg.ReturnDuration <= 0 {
		h.finishReturn()
	}
}

func (h *HeadOscillator) stepReturn(dt float32) {
	h.returnTime += dt
	if h.returnTime >= h.cfg.ReturnDuration {
		h.finishReturn()
		return
	}
	t := smoothStep(h.returnTime / h.cfg.ReturnDuration)
	for _, a := range h.axes {
		a.param.Set(lerp(a.start, a.param.Default, t))
	}
}

func (h *HeadOscillator) finishReturn() {
	for _, a := range h.axes {
		a.param.Reset()
	}
	h.state = ShakeIdle
	h.osc = OscillatorState{}
}
