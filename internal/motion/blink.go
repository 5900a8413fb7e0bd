package motion

import (
	"sync"

	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/rs/zerolog"
)

// BlinkKind is the shape of one blink cycle.
type BlinkKind int

const (
	BlinkIdleMicro BlinkKind = iota
	BlinkHold08
	BlinkHalfClose
	BlinkHold055
	BlinkHold02
	BlinkDouble
)

var blinkKindNames = map[BlinkKind]string{
	BlinkIdleMicro: "idle-micro",
	BlinkHold08:    "hold-08",
	BlinkHalfClose: "half-close",
	BlinkHold055:   "hold-055",
	BlinkHold02:    "hold-02",
	BlinkDouble:    "double-blink",
}

func (k BlinkKind) String() string {
	if s, ok := blinkKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// BlinkEvent describes the cycle in progress. It is created when a cycle
// starts and replaced when the next one starts.
type BlinkEvent struct {
	Kind         BlinkKind `json:"kind"`
	TargetDepth  float32   `json:"target_depth"`
	HoldDuration float32   `json:"hold_duration"`
}

// BlinkConfig holds the eyelid knobs. Depths are eyelid openness values,
// 1 fully open and 0 closed.
type BlinkConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	EyeLeftIDs  []string `mapstructure:"eye_left_ids"`
	EyeRightIDs []string `mapstructure:"eye_right_ids"`

	IdleDepth        Range   `mapstructure:"idle_depth"`
	IdleMoveDuration Range   `mapstructure:"idle_move_duration"`
	IdleHoldDuration Range   `mapstructure:"idle_hold_duration"`
	IdleBlinkChance  float32 `mapstructure:"idle_blink_chance"`

	CloseDuration    float32 `mapstructure:"close_duration"`
	OpenDuration     float32 `mapstructure:"open_duration"`
	SlowMoveDuration Range   `mapstructure:"slow_move_duration"`
	// Targets at or below SlowThreshold move at the fast durations.
	SlowThreshold float32 `mapstructure:"slow_threshold"`

	ChanceIdle      float32 `mapstructure:"chance_idle"`
	ChanceHold08    float32 `mapstructure:"chance_hold08"`
	ChanceHalfClose float32 `mapstructure:"chance_half_close"`
	ChanceHold055   float32 `mapstructure:"chance_hold055"`
	ChanceHold02    float32 `mapstructure:"chance_hold02"`

	HalfCloseValue  float32 `mapstructure:"half_close_value"`
	HalfCloseHold   float32 `mapstructure:"half_close_hold"`
	Hold08Value     float32 `mapstructure:"hold08_value"`
	Hold08Duration  Range   `mapstructure:"hold08_duration"`
	Hold055Depth    Range   `mapstructure:"hold055_depth"`
	Hold055Duration Range   `mapstructure:"hold055_duration"`
	Hold02Value     float32 `mapstructure:"hold02_value"`
	Hold02Duration  float32 `mapstructure:"hold02_duration"`

	DoubleBlinkValue float32 `mapstructure:"double_blink_value"`
	DoubleBlinkGap   float32 `mapstructure:"double_blink_gap"`

	FlickerChance     float32 `mapstructure:"flicker_chance"`
	FlickerDepths     []Range `mapstructure:"flicker_depths"`
	FlickerDuration   Range   `mapstructure:"flicker_duration"`
	FlickerPause      Range   `mapstructure:"flicker_pause"`
	MinWaitForFlicker float32 `mapstructure:"min_wait_for_flicker"`
}

// DefaultBlinkConfig returns the tuned eyelid behavior.
func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		Enabled:     true,
		EyeLeftIDs:  []string{rig.ParamEyeLOpen, "Eye L Open"},
		EyeRightIDs: []string{rig.ParamEyeROpen, "Eye R Open"},

		IdleDepth:        Range{Min: 0.9, Max: 1.0},
		IdleMoveDuration: Range{Min: 0.18, Max: 0.28},
		IdleHoldDuration: Range{Min: 1.0, Max: 1.8},
		IdleBlinkChance:  0.15,

		CloseDuration:    0.15,
		OpenDuration:     0.1,
		SlowMoveDuration: Range{Min: 0.3, Max: 0.5},
		SlowThreshold:    0.3,

		ChanceIdle:      0.58,
		ChanceHold08:    0.30,
		ChanceHalfClose: 0.01,
		ChanceHold055:   0.03,
		ChanceHold02:    0.02,

		HalfCloseValue:  0.7,
		HalfCloseHold:   0.6,
		Hold08Value:     0.8,
		Hold08Duration:  Range{Min: 1.2, Max: 1.8},
		Hold055Depth:    Range{Min: 0.7, Max: 0.8},
		Hold055Duration: Range{Min: 1.2, Max: 1.8},
		Hold02Value:     0.7,
		Hold02Duration:  2.5,

		DoubleBlinkValue: 0.2,
		DoubleBlinkGap:   0.3,

		FlickerChance: 0,
		FlickerDepths: []Range{
			{Min: 0.60, Max: 0.70},
			{Min: 0.65, Max: 0.75},
			{Min: 0.70, Max: 0.80},
			{Min: 0.75, Max: 0.85},
			{Min: 0.80, Max: 0.90},
		},
		FlickerDuration:   Range{Min: 0.6, Max: 1.2},
		FlickerPause:      Range{Min: 2.5, Max: 4.5},
		MinWaitForFlicker: 1.5,
	}
}

const minPhaseDuration = 0.01

// Validate clamps the configuration into a usable state and reports what it
// changed.
func (c *BlinkConfig) Validate() []Correction {
	var cs corrections
	cs.unitRange("blink.idle_depth", &c.IdleDepth)
	cs.rangeAtLeast("blink.idle_move_duration", &c.IdleMoveDuration, minPhaseDuration)
	cs.rangeAtLeast("blink.idle_hold_duration", &c.IdleHoldDuration, 0)
	cs.unit("blink.idle_blink_chance", &c.IdleBlinkChance)
	cs.atLeast("blink.close_duration", &c.CloseDuration, minPhaseDuration)
	cs.atLeast("blink.open_duration", &c.OpenDuration, minPhaseDuration)
	cs.rangeAtLeast("blink.slow_move_duration", &c.SlowMoveDuration, minPhaseDuration)
	cs.unit("blink.slow_threshold", &c.SlowThreshold)

	cs.unit("blink.chance_idle", &c.ChanceIdle)
	cs.unit("blink.chance_hold08", &c.ChanceHold08)
	cs.unit("blink.chance_half_close", &c.ChanceHalfClose)
	cs.unit("blink.chance_hold055", &c.ChanceHold055)
	cs.unit("blink.chance_hold02", &c.ChanceHold02)

	cs.unit("blink.half_close_value", &c.HalfCloseValue)
	cs.atLeast("blink.half_close_hold", &c.HalfCloseHold, 0)
	cs.unit("blink.hold08_value", &c.Hold08Value)
	cs.rangeAtLeast("blink.hold08_duration", &c.Hold08Duration, 0)
	cs.unitRange("blink.hold055_depth", &c.Hold055Depth)
	cs.rangeAtLeast("blink.hold055_duration", &c.Hold055Duration, 0)
	cs.unit("blink.hold02_value", &c.Hold02Value)
	cs.atLeast("blink.hold02_duration", &c.Hold02Duration, 0)

	cs.unit("blink.double_blink_value", &c.DoubleBlinkValue)
	cs.atLeast("blink.double_blink_gap", &c.DoubleBlinkGap, 0)

	cs.unit("blink.flicker_chance", &c.FlickerChance)
	for i := range c.FlickerDepths {
		cs.unitRange("blink.flicker_depths", &c.FlickerDepths[i])
	}
	if len(c.FlickerDepths) == 0 && c.FlickerChance > 0 {
		cs.add("blink.flicker_chance", c.FlickerChance, 0)
		c.FlickerChance = 0
	}
	cs.rangeAtLeast("blink.flicker_duration", &c.FlickerDuration, minPhaseDuration)
	cs.rangeAtLeast("blink.flicker_pause", &c.FlickerPause, 0)
	cs.atLeast("blink.min_wait_for_flicker", &c.MinWaitForFlicker, 0)
	return cs
}

func (c BlinkConfig) weights() []Weighted[BlinkKind] {
	return []Weighted[BlinkKind]{
		{Weight: c.ChanceIdle, Value: BlinkIdleMicro},
		{Weight: c.ChanceHold08, Value: BlinkHold08},
		{Weight: c.ChanceHalfClose, Value: BlinkHalfClose},
		{Weight: c.ChanceHold055, Value: BlinkHold055},
		{Weight: c.ChanceHold02, Value: BlinkHold02},
	}
}

// ChooseBlinkKind maps a uniform draw r onto the configured cumulative
// weights. Whatever the five weights leave uncovered selects DoubleBlink.
func ChooseBlinkKind(r float32, cfg BlinkConfig) BlinkKind {
	return Choose(r, cfg.weights(), BlinkDouble)
}

// BlinkStateMachine runs blink cycles back to back on a linked pair of
// eyelid parameters.
type BlinkStateMachine struct {
	mu sync.RWMutex

	cfg  BlinkConfig
	rng  Rand
	log  zerolog.Logger
	eyeL *rig.Parameter
	eyeR *rig.Parameter

	disabled bool
	event    BlinkEvent
	seq      *Sequence
	onEvent  func(BlinkEvent)
}

// NewBlinkStateMachine binds the eyelids on sink. When either eyelid is
// missing the machine reports it once and stays inert.
func NewBlinkStateMachine(sink rig.Sink, cfg BlinkConfig, rng Rand, log zerolog.Logger) *BlinkStateMachine {
	for _, c := range cfg.Validate() {
		log.Warn().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("Corrected blink configuration")
	}

	b := &BlinkStateMachine{cfg: cfg, rng: rng, log: log}

	var errL, errR error
	b.eyeL, errL = rig.Find(sink, cfg.EyeLeftIDs...)
	b.eyeR, errR = rig.Find(sink, cfg.EyeRightIDs...)
	if errL != nil || errR != nil {
		b.disabled = true
		log.Error().AnErr("left", errL).AnErr("right", errR).Msg("Eyelid parameters not found, blinking disabled")
	}
	return b
}

// Name implements the engine generator contract.
func (b *BlinkStateMachine) Name() string { return "blink" }

// Targets lists the bound eyelid ids.
func (b *BlinkStateMachine) Targets() []string {
	if b.disabled {
		return nil
	}
	return []string{b.eyeL.ID, b.eyeR.ID}
}

// Enabled reports whether the machine is bound and switched on.
func (b *BlinkStateMachine) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.disabled && b.cfg.Enabled
}

// Event returns the cycle in progress.
func (b *BlinkStateMachine) Event() BlinkEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.event
}

// OnEvent registers fn to be called from Update whenever a cycle starts.
func (b *BlinkStateMachine) OnEvent(fn func(BlinkEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvent = fn
}

// SetConfig replaces the knobs. Parameter ids are bound at construction and
// are not rebound. The cycle in progress finishes on the old values.
func (b *BlinkStateMachine) SetConfig(cfg BlinkConfig) {
	cfg.Validate()
	b.mu.Lock()
	defer b.mu.Unlock()
	wasEnabled := b.cfg.Enabled
	b.cfg = cfg
	if wasEnabled && !cfg.Enabled {
		b.resetLocked()
	}
}

// Reset abandons the cycle in progress and opens the eyes.
func (b *BlinkStateMachine) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *BlinkStateMachine) resetLocked() {
	b.seq = nil
	if !b.disabled {
		b.setEyes(1)
	}
}

// Update advances the current cycle by dt seconds, starting a new one when
// the previous cycle has finished.
func (b *BlinkStateMachine) Update(dt float32) {
	b.mu.Lock()
	if b.disabled || !b.cfg.Enabled {
		b.mu.Unlock()
		return
	}

	var started *BlinkEvent
	if b.seq == nil || b.seq.Done() {
		b.event, b.seq = b.nextCycle()
		ev := b.event
		started = &ev
		b.log.Debug().
			Str("kind", ev.Kind.String()).
			Float32("depth", ev.TargetDepth).
			Float32("hold", ev.HoldDuration).
			Msg("Blink cycle")
	}
	b.seq.Resume(dt)
	fn := b.onEvent
	b.mu.Unlock()

	if started != nil && fn != nil {
		fn(*started)
	}
}

func (b *BlinkStateMachine) nextCycle() (BlinkEvent, *Sequence) {
	cfg := b.cfg
	kind := ChooseBlinkKind(b.rng.Float32(), cfg)

	switch kind {
	case BlinkIdleMicro:
		ev := BlinkEvent{Kind: kind, TargetDepth: cfg.IdleDepth.Sample(b.rng), HoldDuration: cfg.IdleHoldDuration.Sample(b.rng)}
		seq := NewSequence(b.move(ev.TargetDepth, func() float32 { return cfg.IdleMoveDuration.Sample(b.rng) }))
		if b.rng.Float32() < cfg.IdleBlinkChance {
			half := ev.HoldDuration * 0.5
			seq.Then(
				b.hold(half),
				b.fast(0),
				b.fast(1),
				b.hold(ev.HoldDuration-half),
			)
		} else {
			seq.Then(b.hold(ev.HoldDuration))
		}
		seq.Then(b.move(1, func() float32 { return cfg.IdleMoveDuration.Sample(b.rng) }))
		return ev, seq

	case BlinkHold08:
		ev := BlinkEvent{Kind: kind, TargetDepth: cfg.Hold08Value, HoldDuration: cfg.Hold08Duration.Sample(b.rng)}
		return ev, b.holdCycle(ev)

	case BlinkHalfClose:
		ev := BlinkEvent{Kind: kind, TargetDepth: cfg.HalfCloseValue, HoldDuration: cfg.HalfCloseHold}
		return ev, NewSequence(
			b.slow(ev.TargetDepth),
			b.hold(ev.HoldDuration),
			b.fast(0),
			b.fast(1),
		)

	case BlinkHold055:
		ev := BlinkEvent{Kind: kind, TargetDepth: cfg.Hold055Depth.Sample(b.rng), HoldDuration: cfg.Hold055Duration.Sample(b.rng)}
		return ev, b.holdCycle(ev)

	case BlinkHold02:
		ev := BlinkEvent{Kind: kind, TargetDepth: cfg.Hold02Value, HoldDuration: cfg.Hold02Duration}
		return ev, b.holdCycle(ev)

	default:
		ev := BlinkEvent{Kind: BlinkDouble, TargetDepth: cfg.DoubleBlinkValue, HoldDuration: cfg.DoubleBlinkGap}
		return ev, NewSequence(
			b.slowOrFast(ev.TargetDepth),
			b.fast(1),
			Wait(Fixed(ev.HoldDuration)),
			b.slowOrFast(ev.TargetDepth),
			b.fast(1),
		)
	}
}

func (b *BlinkStateMachine) holdCycle(ev BlinkEvent) *Sequence {
	return NewSequence(
		b.slowOrFast(ev.TargetDepth),
		b.hold(ev.HoldDuration),
		b.fast(1),
	)
}

func (b *BlinkStateMachine) eyes() float32 { return b.eyeL.Value }

func (b *BlinkStateMachine) setEyes(v float32) {
	b.eyeL.Set(v)
	b.eyeR.Set(v)
}

func (b *BlinkStateMachine) move(target float32, duration func() float32) Deferred {
	return Tween(b.eyes, b.setEyes, target, duration)
}

// fast closes at the close duration and opens at the open duration.
func (b *BlinkStateMachine) fast(target float32) Deferred {
	d := b.cfg.CloseDuration
	if target >= 1 {
		d = b.cfg.OpenDuration
	}
	return b.move(target, Fixed(d))
}

func (b *BlinkStateMachine) slow(target float32) Deferred {
	r := b.cfg.SlowMoveDuration
	return b.move(target, func() float32 { return r.Sample(b.rng) })
}

func (b *BlinkStateMachine) slowOrFast(target float32) Deferred {
	if target <= b.cfg.SlowThreshold {
		return b.fast(target)
	}
	return b.slow(target)
}

// hold waits total seconds, possibly broken up by partial flicker closures.
func (b *BlinkStateMachine) hold(total float32) Deferred {
	cfg := b.cfg
	return func() Step {
		if total < cfg.MinWaitForFlicker || len(cfg.FlickerDepths) == 0 || b.rng.Float32() >= cfg.FlickerChance {
			return &wait{duration: total}
		}
		return &flickerHold{b: b, cfg: cfg, total: total}
	}
}

// flickerHold fills a hold with shallow close-open pairs separated by pauses
// until the hold time is used up.
type flickerHold struct {
	b       *BlinkStateMachine
	cfg     BlinkConfig
	total   float32
	elapsed float32
	started bool
	current Step
	rest    float32
}

func (f *flickerHold) Leftover() float32 { return f.rest }

func (f *flickerHold) Resume(dt float32) bool {
	f.elapsed += dt
	for {
		if f.current == nil {
			if !f.started {
				f.started = true
				f.current = Wait(func() float32 { return Range{Min: 0.3, Max: 0.5}.Sample(f.b.rng) })()
			} else {
				if f.elapsed >= f.total {
					f.rest = dt
					return true
				}
				f.current = f.cycle()
			}
		}
		if !f.current.Resume(dt) {
			return false
		}
		dt = remainder(f.current)
		f.current = nil
	}
}

func (f *flickerHold) cycle() Step {
	rng := f.b.rng
	band := f.cfg.FlickerDepths[int(rng.Float32()*float32(len(f.cfg.FlickerDepths)))%len(f.cfg.FlickerDepths)]
	depth := band.Sample(rng)
	dur := f.cfg.FlickerDuration.Sample(rng)
	return NewSequence(
		f.b.move(depth, Fixed(dur)),
		f.b.move(1, Fixed(dur)),
		Wait(func() float32 {
			pause := f.cfg.FlickerPause.Sample(rng)
			if remaining := f.total - f.elapsed; pause > remaining {
				pause = remaining
			}
			return pause
		}),
	)
}
