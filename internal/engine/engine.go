// Package engine drives the motion generators frame by frame against one
// rig model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/normanking/cortexmotion/internal/bus"
	"github.com/normanking/cortexmotion/internal/logging"
	"github.com/normanking/cortexmotion/internal/metrics"
	"github.com/normanking/cortexmotion/internal/motion"
	"github.com/normanking/cortexmotion/internal/noise"
	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/normanking/cortexmotion/internal/trigger"
	"github.com/rs/zerolog"
)

var (
	// ErrOverlappingTargets is returned in strict mode when two generators
	// write the same parameter.
	ErrOverlappingTargets = errors.New("overlapping generator targets")
	// ErrQueueFull is returned by Submit when the trigger queue is full.
	ErrQueueFull = errors.New("trigger queue full")
)

// Generator is one motion layer. Update is only ever called from the frame
// goroutine.
type Generator interface {
	Name() string
	Targets() []string
	Update(dt float32)
}

// Config holds the frame loop knobs.
type Config struct {
	FPS int `mapstructure:"fps"`
	// Upper bound on a single frame's dt in seconds.
	MaxDelta      float32 `mapstructure:"max_delta"`
	StrictTargets bool    `mapstructure:"strict_targets"`
	QueueSize     int     `mapstructure:"queue_size"`
	// Seed for the generators' random source; 0 draws one from the clock.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns the frame loop defaults.
func DefaultConfig() Config {
	return Config{
		FPS:       60,
		MaxDelta:  0.1,
		QueueSize: 64,
	}
}

// Validate clamps the configuration into a usable state.
func (c *Config) Validate() []motion.Correction {
	var cs []motion.Correction
	if c.FPS <= 0 || c.FPS > 1000 {
		cs = append(cs, motion.Correction{Field: "engine.fps", Old: fmt.Sprint(c.FPS), New: "60"})
		c.FPS = 60
	}
	if c.MaxDelta <= 0 {
		cs = append(cs, motion.Correction{Field: "engine.max_delta", Old: fmt.Sprint(c.MaxDelta), New: "0.1"})
		c.MaxDelta = 0.1
	}
	if c.QueueSize <= 0 {
		cs = append(cs, motion.Correction{Field: "engine.queue_size", Old: fmt.Sprint(c.QueueSize), New: "64"})
		c.QueueSize = 64
	}
	return cs
}

// Tuning is the runtime-mutable part of the generator configuration.
type Tuning struct {
	Blink motion.BlinkConfig
	Shake motion.ShakeConfig
	Idle  motion.IdleConfig
	Mouth motion.MouthConfig
}

// DefaultTuning returns every generator's defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Blink: motion.DefaultBlinkConfig(),
		Shake: motion.DefaultShakeConfig(),
		Idle:  motion.DefaultIdleConfig(),
		Mouth: motion.DefaultMouthConfig(),
	}
}

// Validate validates every section and returns all corrections.
func (t *Tuning) Validate() []motion.Correction {
	var cs []motion.Correction
	cs = append(cs, t.Blink.Validate()...)
	cs = append(cs, t.Shake.Validate()...)
	cs = append(cs, t.Idle.Validate()...)
	cs = append(cs, t.Mouth.Validate()...)
	return cs
}

// Clock supplies wall time to Run.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Overlap records a parameter written by more than one generator. Winner
// runs later in the frame and so has the final say.
type Overlap struct {
	ID     string
	Loser  string
	Winner string
}

// Overlaps lists the overlaps of gens in execution order.
func Overlaps(gens []Generator) []Overlap {
	owner := map[string]string{}
	var out []Overlap
	for _, g := range gens {
		for _, id := range g.Targets() {
			if prev, ok := owner[id]; ok && prev != g.Name() {
				out = append(out, Overlap{ID: id, Loser: prev, Winner: g.Name()})
			}
			owner[id] = g.Name()
		}
	}
	return out
}

// Options wires an engine. Model, Field and Rand are required.
type Options struct {
	Config  Config
	Tuning  Tuning
	Model   *rig.Model
	Field   *noise.Field
	Rand    motion.Rand
	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Bus     *bus.EventBus
	Clock   Clock
}

// Engine owns the generators and the frame loop. Tick and Run must be
// driven from a single goroutine; Submit, ApplyTuning and Snapshot are safe
// from any goroutine.
type Engine struct {
	cfg     Config
	log     zerolog.Logger
	model   *rig.Model
	metrics *metrics.Recorder
	bus     *bus.EventBus
	clock   Clock

	idle  *motion.IdleMotionGenerator
	shake *motion.HeadOscillator
	blink *motion.BlinkStateMachine
	mouth *motion.MouthAnimator

	generators []Generator
	overlaps   []Overlap
	tuning     Tuning
	queue      chan trigger.Command

	mu       sync.Mutex
	pending  *Tuning
	onFrame  func(t float32, snapshot map[string]float32)
	snapMu   sync.RWMutex
	snapshot map[string]float32

	time   float32
	frames uint64
}

// New builds the generators in execution order idle, headshake, blink,
// mouth and checks their targets for overlaps.
func New(opts Options) (*Engine, error) {
	if opts.Model == nil || opts.Field == nil || opts.Rand == nil {
		return nil, errors.New("engine: model, field and rand are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewWithWriter(io.Discard, logging.Config{})
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	for _, c := range opts.Config.Validate() {
		opts.Logger.Warn("engine", "Corrected engine configuration", map[string]interface{}{"field": c.Field, "old": c.Old, "new": c.New})
	}
	for _, c := range opts.Tuning.Validate() {
		opts.Logger.Warn("engine", "Corrected generator tuning", map[string]interface{}{"field": c.Field, "old": c.Old, "new": c.New})
	}

	e := &Engine{
		cfg:     opts.Config,
		log:     opts.Logger.Component("engine"),
		model:   opts.Model,
		metrics: opts.Metrics,
		bus:     opts.Bus,
		clock:   opts.Clock,
		tuning:  opts.Tuning,
		queue:   make(chan trigger.Command, opts.Config.QueueSize),
	}

	e.idle = motion.NewIdleMotionGenerator(opts.Model, opts.Field, opts.Tuning.Idle, opts.Rand, opts.Logger.Component("idle"))
	e.shake = motion.NewHeadOscillator(opts.Model, opts.Field, opts.Tuning.Shake, opts.Rand, opts.Logger.Component("headshake"))
	e.blink = motion.NewBlinkStateMachine(opts.Model, opts.Tuning.Blink, opts.Rand, opts.Logger.Component("blink"))
	e.mouth = motion.NewMouthAnimator(opts.Model, opts.Tuning.Mouth, opts.Logger.Component("mouth"))
	e.generators = []Generator{e.idle, e.shake, e.blink, e.mouth}

	e.overlaps = Overlaps(e.generators)
	for _, o := range e.overlaps {
		if e.cfg.StrictTargets {
			return nil, fmt.Errorf("%w: %s written by %s and %s", ErrOverlappingTargets, o.ID, o.Loser, o.Winner)
		}
		e.log.Warn().Str("parameter", o.ID).Str("overridden", o.Loser).Str("winner", o.Winner).Msg("Generators share a target")
	}

	e.hook()
	if e.bus != nil {
		// Submit never blocks, so publishers may deliver synchronously.
		e.bus.Subscribe(bus.EventTypeTrigger, func(ev bus.Event) {
			if cmd, ok := ev.Data["command"].(trigger.Command); ok {
				e.Submit(cmd)
			}
		})
	}
	e.storeSnapshot()

	e.log.Info().Int("fps", e.cfg.FPS).Int("parameters", len(opts.Model.Parameters())).Msg("Motion engine ready")
	return e, nil
}

// hook forwards generator events to metrics and the bus. The callbacks run
// on the frame goroutine.
func (e *Engine) hook() {
	e.blink.OnEvent(func(ev motion.BlinkEvent) {
		e.metrics.Blink(ev.Kind.String())
		e.publish(bus.EventTypeBlink, map[string]any{"kind": ev.Kind.String(), "depth": ev.TargetDepth})
	})
	e.shake.OnShake(func(s motion.ShakeStart) {
		e.metrics.Shake(s.Auto)
		e.publish(bus.EventTypeShakeStarted, map[string]any{
			"auto": s.Auto, "intensity": s.Intensity, "frequency": s.Frequency, "amplitude": s.Amplitude,
		})
	})
	e.idle.OnModeChange(func(from, to motion.MotionMode) {
		e.metrics.ModeChange(to.String())
		e.publish(bus.EventTypeModeChanged, map[string]any{"from": from.String(), "to": to.String()})
	})
}

func (e *Engine) publish(t bus.EventType, data map[string]any) {
	if e.bus != nil {
		e.bus.Publish(bus.Event{Type: t, Data: data})
	}
}

// Generators returns the generators in execution order.
func (e *Engine) Generators() []Generator { return e.generators }

// Overlaps returns the target overlaps found at construction.
func (e *Engine) Overlaps() []Overlap { return e.overlaps }

func (e *Engine) Model() *rig.Model                 { return e.model }
func (e *Engine) Idle() *motion.IdleMotionGenerator { return e.idle }
func (e *Engine) HeadShake() *motion.HeadOscillator { return e.shake }
func (e *Engine) Blink() *motion.BlinkStateMachine  { return e.blink }
func (e *Engine) Mouth() *motion.MouthAnimator      { return e.mouth }

// Time is the engine clock in seconds, the sum of clamped frame deltas.
func (e *Engine) Time() float32 { return e.time }

// Frames counts completed ticks.
func (e *Engine) Frames() uint64 { return e.frames }

// OnFrame registers fn to be called after every frame with the engine time
// and a copy of the parameter values.
func (e *Engine) OnFrame(fn func(t float32, snapshot map[string]float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFrame = fn
}

// Submit queues cmd for the next frame without blocking.
func (e *Engine) Submit(cmd trigger.Command) error {
	select {
	case e.queue <- cmd:
		return nil
	default:
		e.metrics.TriggerDropped()
		e.log.Warn().Str("command", cmd.String()).Msg("Trigger queue full, command dropped")
		return ErrQueueFull
	}
}

// ApplyTuning validates t and hands it to the generators at the start of
// the next frame. Parameter bindings are not changed.
func (e *Engine) ApplyTuning(t Tuning) {
	for _, c := range t.Validate() {
		e.log.Warn().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("Corrected configuration")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = &t
}

// Snapshot returns a copy of the parameter values after the last frame.
func (e *Engine) Snapshot() map[string]float32 {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	out := make(map[string]float32, len(e.snapshot))
	for k, v := range e.snapshot {
		out[k] = v
	}
	return out
}

// Tick advances every generator by dt seconds, clamped to [0, MaxDelta].
func (e *Engine) Tick(dt float32) {
	start := time.Now()
	if dt < 0 {
		dt = 0
	}
	if dt > e.cfg.MaxDelta {
		dt = e.cfg.MaxDelta
	}

	e.drain()
	e.applyPending()

	for _, g := range e.generators {
		g.Update(dt)
	}
	e.time += dt
	e.frames++

	e.storeSnapshot()
	e.mu.Lock()
	fn := e.onFrame
	e.mu.Unlock()
	if fn != nil {
		fn(e.time, e.model.Snapshot())
	}
	e.metrics.Frame(time.Since(start))
}

// Run ticks at the configured rate until ctx is cancelled, measuring dt
// with the engine clock.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.FPS))
	defer ticker.Stop()

	e.log.Info().Int("fps", e.cfg.FPS).Msg("Frame loop started")
	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Uint64("frames", e.frames).Msg("Frame loop stopped")
			return ctx.Err()
		case <-ticker.C:
			now := e.clock.Now()
			e.Tick(float32(now.Sub(last).Seconds()))
			last = now
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.queue:
			e.apply(cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd trigger.Command) {
	switch cmd.Name {
	case trigger.CmdShake:
		if cmd.Intensity > 0 {
			e.shake.TriggerShakeWithIntensity(cmd.Intensity)
		} else {
			e.shake.TriggerShake()
		}
	case trigger.CmdShakeIntensity:
		intensity := cmd.Intensity
		if intensity <= 0 {
			intensity = e.tuning.Shake.IntenseMultiplier
		}
		e.shake.TriggerShakeWithIntensity(intensity)
	case trigger.CmdStartSpeaking:
		e.mouth.StartSpeaking()
		e.publish(bus.EventTypeSpeaking, map[string]any{"speaking": true})
	case trigger.CmdStopSpeaking:
		e.mouth.StopSpeaking()
		e.publish(bus.EventTypeSpeaking, map[string]any{"speaking": false})
	case trigger.CmdSetMode:
		mode, err := motion.ParseMotionMode(cmd.Mode)
		if err != nil {
			e.log.Warn().Err(err).Str("mode", cmd.Mode).Msg("Ignoring set-mode")
			return
		}
		e.idle.ForceMode(mode)
	case trigger.CmdAutoShake:
		e.shake.SetAutoTrigger(cmd.Enabled)
	case trigger.CmdReseed:
		e.idle.Reseed()
		e.shake.Reseed()
	default:
		e.log.Debug().Str("command", string(cmd.Name)).Msg("Command has no engine effect")
		return
	}
	e.metrics.Trigger(string(cmd.Name))
	e.log.Debug().Str("id", cmd.ID).Str("command", cmd.String()).Msg("Trigger applied")
}

func (e *Engine) applyPending() {
	e.mu.Lock()
	t := e.pending
	e.pending = nil
	e.mu.Unlock()
	if t == nil {
		return
	}

	e.tuning = *t
	e.blink.SetConfig(t.Blink)
	e.shake.SetConfig(t.Shake)
	e.idle.SetConfig(t.Idle)
	e.mouth.SetConfig(t.Mouth)
	e.log.Info().Msg("Runtime configuration applied")
}

func (e *Engine) storeSnapshot() {
	snap := e.model.Snapshot()
	e.snapMu.Lock()
	e.snapshot = snap
	e.snapMu.Unlock()
}
