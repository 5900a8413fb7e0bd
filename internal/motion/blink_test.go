package motion

import (
	"math/rand"
	"testing"

	"github.com/normanking/cortexmotion/internal/rig"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) *rig.Model {
	t.Helper()
	m, err := rig.NewModel(rig.DefaultDefinitions())
	require.NoError(t, err)
	return m
}

func TestChooseBlinkKind(t *testing.T) {
	cfg := DefaultBlinkConfig()

	tests := []struct {
		r    float32
		want BlinkKind
	}{
		{0, BlinkIdleMicro},
		{0.57, BlinkIdleMicro},
		{0.58, BlinkHold08},
		{0.87, BlinkHold08},
		{0.885, BlinkHalfClose},
		{0.91, BlinkHold055},
		{0.93, BlinkHold02},
		{0.95, BlinkDouble},
		{0.999, BlinkDouble},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseBlinkKind(tt.r, cfg), "r=%v", tt.r)
		})
	}
}

func TestBlinkConfigValidate(t *testing.T) {
	cfg := DefaultBlinkConfig()
	assert.Empty(t, cfg.Validate(), "defaults must already be valid")

	cfg.CloseDuration = 0
	cfg.ChanceIdle = 1.5
	cfg.IdleDepth = Range{Min: 1.2, Max: 0.5}
	fixes := cfg.Validate()

	assert.Len(t, fixes, 3)
	assert.Equal(t, float32(minPhaseDuration), cfg.CloseDuration)
	assert.Equal(t, float32(1), cfg.ChanceIdle)
	assert.Equal(t, Range{Min: 0.5, Max: 1}, cfg.IdleDepth)
}

func TestBlinkDisabledWithoutEyelids(t *testing.T) {
	m, err := rig.NewModel([]rig.Definition{{ID: rig.ParamEyeLOpen, Min: 0, Max: 1, Default: 1}})
	require.NoError(t, err)

	b := NewBlinkStateMachine(m, DefaultBlinkConfig(), rand.New(rand.NewSource(1)), zerolog.Nop())
	assert.False(t, b.Enabled())
	assert.Nil(t, b.Targets())

	p, _ := m.FindParameter(rig.ParamEyeLOpen)
	for i := 0; i < 120; i++ {
		b.Update(1.0 / 60)
	}
	assert.Equal(t, float32(1), p.Value, "a disabled machine never writes")
}

func TestBlinkCyclesEndFullyOpen(t *testing.T) {
	cfg := DefaultBlinkConfig()
	cfg.FlickerChance = 0.5
	cfg.ChanceIdle = 0.2
	cfg.ChanceHold08 = 0.2
	cfg.ChanceHalfClose = 0.15
	cfg.ChanceHold055 = 0.15
	cfg.ChanceHold02 = 0.15

	m := newTestModel(t)
	b := NewBlinkStateMachine(m, cfg, rand.New(rand.NewSource(42)), zerolog.Nop())
	require.True(t, b.Enabled())
	assert.ElementsMatch(t, []string{rig.ParamEyeLOpen, rig.ParamEyeROpen}, b.Targets())

	eyeL, _ := m.FindParameter(rig.ParamEyeLOpen)
	eyeR, _ := m.FindParameter(rig.ParamEyeROpen)

	seen := map[BlinkKind]int{}
	b.OnEvent(func(ev BlinkEvent) { seen[ev.Kind]++ })

	completed := 0
	for frame := 0; frame < 60*600; frame++ {
		b.Update(1.0 / 60)

		assert.Equal(t, eyeL.Value, eyeR.Value, "eyelids are linked")
		assert.GreaterOrEqual(t, eyeL.Value, float32(0))
		assert.LessOrEqual(t, eyeL.Value, float32(1))

		if b.seq.Done() {
			completed++
			assert.Equal(t, float32(1), eyeL.Value, "cycle %s ended half closed", b.Event().Kind)
		}
	}

	assert.Greater(t, completed, 50)
	for kind := range blinkKindNames {
		assert.Positive(t, seen[kind], "kind %s never ran", kind)
	}
}

func TestBlinkDoubleBlinkShape(t *testing.T) {
	cfg := DefaultBlinkConfig()
	cfg.ChanceIdle, cfg.ChanceHold08, cfg.ChanceHalfClose, cfg.ChanceHold055, cfg.ChanceHold02 = 0, 0, 0, 0, 0

	m := newTestModel(t)
	b := NewBlinkStateMachine(m, cfg, rand.New(rand.NewSource(3)), zerolog.Nop())
	eye, _ := m.FindParameter(rig.ParamEyeLOpen)

	dt := float32(0.01)
	var trace []float32
	for !(b.seq != nil && b.seq.Done()) {
		b.Update(dt)
		trace = append(trace, eye.Value)
		require.Less(t, len(trace), 1000)
	}

	assert.Equal(t, BlinkDouble, b.Event().Kind)

	// Count descents to the double-blink depth. The opening can start in
	// the frame the closure lands, so the depth is matched within a band.
	near := cfg.DoubleBlinkValue + 0.05
	closures := 0
	for i, v := range trace {
		if v <= near && (i == 0 || trace[i-1] > near) {
			closures++
		}
	}
	assert.Equal(t, 2, closures)

	total := 2*(cfg.CloseDuration+cfg.OpenDuration) + cfg.DoubleBlinkGap
	assert.InDelta(t, total, float32(len(trace))*dt, 0.02)
}

func TestBlinkSlowOrFastThreshold(t *testing.T) {
	cfg := DefaultBlinkConfig()
	m := newTestModel(t)
	b := NewBlinkStateMachine(m, cfg, rand.New(rand.NewSource(5)), zerolog.Nop())
	eye, _ := m.FindParameter(rig.ParamEyeLOpen)

	// At the threshold the move takes the fast close duration.
	step := b.slowOrFast(0.3)()
	frames := 0
	for !step.Resume(0.01) {
		frames++
	}
	assert.InDelta(t, 14, frames, 1)
	assert.Equal(t, float32(0.3), eye.Value)

	b.setEyes(1)
	step = b.slowOrFast(0.8)()
	frames = 0
	for !step.Resume(0.01) {
		frames++
	}
	assert.GreaterOrEqual(t, frames, 29, "shallow targets move slowly")
	assert.LessOrEqual(t, frames, 50)
}

func TestBlinkFlickerHoldFillsTime(t *testing.T) {
	cfg := DefaultBlinkConfig()
	cfg.FlickerChance = 1
	cfg.FlickerPause = Range{Min: 0.1, Max: 0.1}
	cfg.FlickerDuration = Range{Min: 0.2, Max: 0.2}

	m := newTestModel(t)
	b := NewBlinkStateMachine(m, cfg, rand.New(rand.NewSource(9)), zerolog.Nop())
	eye, _ := m.FindParameter(rig.ParamEyeLOpen)

	step := b.hold(2)()
	_, isFlicker := step.(*flickerHold)
	require.True(t, isFlicker)

	elapsed := float32(0)
	minSeen := float32(1)
	for !step.Resume(0.01) {
		elapsed += 0.01
		if eye.Value < minSeen {
			minSeen = eye.Value
		}
		require.Less(t, elapsed, float32(5))
	}
	assert.GreaterOrEqual(t, elapsed, float32(1.95))
	assert.Less(t, minSeen, float32(0.91), "at least one partial closure")
	assert.GreaterOrEqual(t, minSeen, float32(0.6))
	assert.Equal(t, float32(1), eye.Value)

	short := b.hold(1)()
	_, isWait := short.(*wait)
	assert.True(t, isWait, "holds under the flicker threshold are plain waits")
}

func TestBlinkResetOpensEyes(t *testing.T) {
	m := newTestModel(t)
	b := NewBlinkStateMachine(m, DefaultBlinkConfig(), rand.New(rand.NewSource(11)), zerolog.Nop())
	eye, _ := m.FindParameter(rig.ParamEyeROpen)

	for i := 0; i < 5; i++ {
		b.Update(0.05)
	}
	b.Reset()
	assert.Equal(t, float32(1), eye.Value)
	assert.Nil(t, b.seq)

	cfg := DefaultBlinkConfig()
	cfg.Enabled = false
	b.SetConfig(cfg)
	assert.False(t, b.Enabled())
	b.Update(0.1)
	assert.Equal(t, float32(1), eye.Value)
}
