package motion

import "math"

// verticalCycleWeights is the repetition count distribution; whatever is
// left over after one and two cycles selects three.
var verticalCycleWeights = []Weighted[int]{
	{Weight: 0.15, Value: 1},
	{Weight: 0.60, Value: 2},
}

// VerticalShake is a short run of down-up nods. One cycle is a down half
// followed by an up half; each half eases in and out along
// smoothstep(sin(π·p)).
type VerticalShake struct {
	active    bool
	cycles    int
	interval  float32
	completed int
	local     float32
}

// Start samples a cycle count and half-cycle interval and begins the run,
// replacing any run in progress.
func (v *VerticalShake) Start(rng Rand, halfCycle Range) {
	v.cycles = Choose(rng.Float32(), verticalCycleWeights, 3)
	v.interval = halfCycle.Sample(rng)
	if v.interval < minPhaseDuration {
		v.interval = minPhaseDuration
	}
	v.completed = 0
	v.local = 0
	v.active = true
}

// Stop ends the run.
func (v *VerticalShake) Stop() {
	v.active = false
}

// Active reports whether the run is still in progress.
func (v *VerticalShake) Active() bool { return v.active }

// Cycles is the sampled repetition count.
func (v *VerticalShake) Cycles() int { return v.cycles }

// HalfCycles is the number of completed half cycles.
func (v *VerticalShake) HalfCycles() int { return v.completed }

// Sign is -1 during down halves and +1 during up halves.
func (v *VerticalShake) Sign() float32 {
	if v.completed%2 == 0 {
		return -1
	}
	return 1
}

// Update advances the run by dt seconds and returns the signed intensity in
// [-1, 1]. It returns false once the run has finished.
func (v *VerticalShake) Update(dt float32) (float32, bool) {
	if !v.active {
		return 0, false
	}
	v.local += dt
	for v.local >= v.interval {
		v.local -= v.interval
		v.completed++
		if v.completed >= 2*v.cycles {
			v.active = false
			return 0, false
		}
	}
	p := v.local / v.interval
	intensity := smoothStep(float32(math.Sin(math.Pi * float64(p))))
	return v.Sign() * intensity, true
}
