package motion

import "github.com/go-gl/mathgl/mgl32"

// DirectionConfig tunes the anti-drift rule on the head targets.
type DirectionConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Seconds a target may keep the same sign before it is forced over.
	MaxHold float32 `mapstructure:"max_hold"`
	// Seconds the forced direction lasts.
	ForceDuration float32 `mapstructure:"force_duration"`
	// Chance of a coin-flip direction instead of a plain reversal.
	RandomChance float32 `mapstructure:"random_chance"`
}

// DefaultDirectionConfig returns the tuned constraint, switched off.
func DefaultDirectionConfig() DirectionConfig {
	return DirectionConfig{
		Enabled:       false,
		MaxHold:       4,
		ForceDuration: 1.5,
		RandomChance:  0.3,
	}
}

func (c *DirectionConfig) validate(cs *corrections) {
	cs.positive("idle.direction.max_hold", &c.MaxHold, 4)
	cs.positive("idle.direction.force_duration", &c.ForceDuration, 1.5)
	cs.unit("idle.direction.random_chance", &c.RandomChance)
}

// DirectionConstraint tracks per axis how long a target has pointed the same
// way and, past MaxHold, mirrors it into a forced direction for a while.
type DirectionConstraint struct {
	cfg       DirectionConfig
	sign      [3]float32
	held      [3]float32
	forced    [3]float32
	forceLeft [3]float32
}

// NewDirectionConstraint returns a constraint with no history.
func NewDirectionConstraint(cfg DirectionConfig) *DirectionConstraint {
	return &DirectionConstraint{cfg: cfg}
}

// SetConfig replaces the tuning and keeps the history.
func (d *DirectionConstraint) SetConfig(cfg DirectionConfig) {
	d.cfg = cfg
}

// Forced reports whether axis i is currently held in a forced direction.
func (d *DirectionConstraint) Forced(i int) bool {
	return d.forceLeft[i] > 0
}

// Apply filters target for one frame of dt seconds.
func (d *DirectionConstraint) Apply(target mgl32.Vec3, dt float32, rng Rand) mgl32.Vec3 {
	if !d.cfg.Enabled {
		return target
	}
	out := target
	for i := 0; i < 3; i++ {
		if d.forceLeft[i] > 0 {
			d.forceLeft[i] -= dt
			out[i] = abs32(target[i]) * d.forced[i]
			if d.forceLeft[i] <= 0 {
				d.held[i] = 0
				d.sign[i] = d.forced[i]
			}
			continue
		}

		s := sign32(target[i])
		if s != 0 && s == d.sign[i] {
			d.held[i] += dt
		} else {
			d.held[i] = 0
			d.sign[i] = s
		}
		if d.held[i] <= d.cfg.MaxHold {
			continue
		}

		d.forced[i] = -s
		if rng.Float32() < d.cfg.RandomChance {
			d.forced[i] = 1
			if rng.Float32() < 0.5 {
				d.forced[i] = -1
			}
		}
		d.forceLeft[i] = d.cfg.ForceDuration
		d.held[i] = 0
		out[i] = abs32(target[i]) * d.forced[i]
	}
	return out
}

// Reset clears the history.
func (d *DirectionConstraint) Reset() {
	d.sign = [3]float32{}
	d.held = [3]float32{}
	d.forced = [3]float32{}
	d.forceLeft = [3]float32{}
}
