package motion

import (
	"sync"

	"github.com/charmbracelet/harmonica"
	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/rs/zerolog"
)

// MouthConfig holds the speaking mouth knobs.
type MouthConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	OpenIDs     []string `mapstructure:"open_ids"`
	FormIDs     []string `mapstructure:"form_ids"`
	MaxOpen     float32  `mapstructure:"max_open"`
	SpeechSpeed float32  `mapstructure:"speech_speed"`
	FormValue   float32  `mapstructure:"form_value"`
	// Spring that glides the mouth toward the speech wave.
	SpringFrequency float32 `mapstructure:"spring_frequency"`
	SpringDamping   float32 `mapstructure:"spring_damping"`
	// After stop, the mouth is released once within this distance of rest.
	SettleThreshold float32 `mapstructure:"settle_threshold"`
}

// DefaultMouthConfig returns the tuned speaking mouth.
func DefaultMouthConfig() MouthConfig {
	return MouthConfig{
		Enabled:         true,
		OpenIDs:         []string{rig.ParamMouthOpenY, "Mouth Open", "ParamMouthOpen"},
		FormIDs:         []string{rig.ParamMouthForm, "Mouth Form"},
		MaxOpen:         0.8,
		SpeechSpeed:     8,
		FormValue:       0.5,
		SpringFrequency: 20,
		SpringDamping:   0.8,
		SettleThreshold: 0.01,
	}
}

// Validate clamps the configuration into a usable state and reports what it
// changed.
func (c *MouthConfig) Validate() []Correction {
	var cs corrections
	cs.unit("mouth.max_open", &c.MaxOpen)
	cs.positive("mouth.speech_speed", &c.SpeechSpeed, 8)
	cs.within("mouth.form_value", &c.FormValue, -1, 1)
	cs.positive("mouth.spring_frequency", &c.SpringFrequency, 20)
	cs.positive("mouth.spring_damping", &c.SpringDamping, 0.8)
	cs.positive("mouth.settle_threshold", &c.SettleThreshold, 0.01)
	return cs
}

// MouthAnimator opens and closes the mouth while the character speaks. It
// writes only while speaking or settling back to rest, so other generators
// own the mouth the rest of the time.
type MouthAnimator struct {
	mu sync.RWMutex

	cfg  MouthConfig
	log  zerolog.Logger
	open *rig.Parameter
	form *rig.Parameter

	speaking bool
	settling bool
	now      float32

	spring   harmonica.Spring
	springDT float32
	pos, vel float64
	formPos  float64
	formVel  float64
}

// NewMouthAnimator binds the mouth parameters on sink. Without an open
// parameter the animator is inert; the form parameter is optional.
func NewMouthAnimator(sink rig.Sink, cfg MouthConfig, log zerolog.Logger) *MouthAnimator {
	for _, c := range cfg.Validate() {
		log.Warn().Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg("Corrected mouth configuration")
	}
	m := &MouthAnimator{cfg: cfg, log: log}

	var err error
	if m.open, err = rig.Find(sink, cfg.OpenIDs...); err != nil {
		log.Warn().Err(err).Msg("Mouth open parameter not found, speaking animation disabled")
	}
	if m.form, err = rig.Find(sink, cfg.FormIDs...); err != nil {
		log.Debug().Err(err).Msg("Mouth form parameter not found")
	}
	return m
}

// Name implements the engine generator contract.
func (m *MouthAnimator) Name() string { return "mouth" }

// Targets lists the bound mouth ids.
func (m *MouthAnimator) Targets() []string {
	var ids []string
	if m.open != nil {
		ids = append(ids, m.open.ID)
	}
	if m.form != nil {
		ids = append(ids, m.form.ID)
	}
	return ids
}

// Speaking reports whether speech animation is on.
func (m *MouthAnimator) Speaking() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.speaking
}

// Active reports whether the animator currently owns the mouth.
func (m *MouthAnimator) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.speaking || m.settling
}

// StartSpeaking begins the speech wave from the mouth's current pose.
func (m *MouthAnimator) StartSpeaking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == nil || !m.cfg.Enabled || m.speaking {
		return
	}
	if !m.settling {
		m.pos, m.vel = float64(m.open.Value), 0
		if m.form != nil {
			m.formPos, m.formVel = float64(m.form.Value), 0
		}
	}
	m.speaking = true
	m.settling = false
	m.log.Debug().Msg("Speaking started")
}

// StopSpeaking lets the mouth glide closed.
func (m *MouthAnimator) StopSpeaking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.speaking {
		return
	}
	m.speaking = false
	m.settling = true
	m.log.Debug().Msg("Speaking stopped")
}

// SetConfig replaces the tuning. Parameter bindings are kept.
func (m *MouthAnimator) SetConfig(cfg MouthConfig) {
	cfg.Validate()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.springDT = 0
	if !cfg.Enabled && (m.speaking || m.settling) {
		m.speaking, m.settling = false, false
		m.release()
	}
}

// Update advances the mouth by dt seconds.
func (m *MouthAnimator) Update(dt float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += dt
	if m.open == nil || (!m.speaking && !m.settling) || dt <= 0 {
		return
	}

	if dt != m.springDT {
		m.spring = harmonica.NewSpring(float64(dt), float64(m.cfg.SpringFrequency), float64(m.cfg.SpringDamping))
		m.springDT = dt
	}

	target := float64(0)
	formTarget := float64(0)
	if m.form != nil {
		formTarget = float64(m.form.Default)
	}
	if m.speaking {
		target = float64(abs32(sin32(m.now*m.cfg.SpeechSpeed)) * m.cfg.MaxOpen)
		formTarget = float64(m.cfg.FormValue)
	}

	m.pos, m.vel = m.spring.Update(m.pos, m.vel, target)
	m.open.Set(float32(m.pos))
	if m.form != nil {
		m.formPos, m.formVel = m.spring.Update(m.formPos, m.formVel, formTarget)
		m.form.Set(float32(m.formPos))
	}

	if m.settling {
		th := float64(m.cfg.SettleThreshold)
		if absf64(m.pos) < th && absf64(m.vel) < th*10 && absf64(m.formPos-formTarget) < th {
			m.settling = false
			m.release()
		}
	}
}

// release closes the mouth and hands the parameters back.
func (m *MouthAnimator) release() {
	if m.open != nil {
		m.open.Set(0)
	}
	if m.form != nil {
		m.form.Reset()
	}
	m.pos, m.vel, m.formPos, m.formVel = 0, 0, 0, 0
	m.log.Debug().Msg("Mouth released")
}

func absf64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
