package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type scriptedRand struct {
	values []float32
	i      int
}

// Float32 replays values and then repeats the last one.
func (s *scriptedRand) Float32() float32 {
	if len(s.values) == 0 {
		return 0
	}
	if s.i >= len(s.values) {
		return s.values[len(s.values)-1]
	}
	v := s.values[s.i]
	s.i++
	return v
}

func TestSequenceTweenSnapsToTarget(t *testing.T) {
	var v float32 = 1
	seq := NewSequence(
		Tween(func() float32 { return v }, func(x float32) { v = x }, 0.2, Fixed(0.15)),
	)

	assert.False(t, seq.Resume(0.05))
	assert.InDelta(t, 1-0.8/3, v, 1e-5)

	assert.False(t, seq.Resume(0.05))
	assert.True(t, seq.Resume(0.07))
	assert.Equal(t, float32(0.2), v, "tween must land exactly on target")
	assert.True(t, seq.Done())
}

func TestSequenceCapturesStartLazily(t *testing.T) {
	var v float32
	seq := NewSequence(
		Do(func() { v = 0.5 }),
		Tween(func() float32 { return v }, func(x float32) { v = x }, 1, Fixed(1)),
	)

	seq.Resume(0)
	assert.Equal(t, float32(0.5), v, "tween should start from the value set by the previous step")

	seq.Resume(0.5)
	assert.InDelta(t, 0.75, v, 1e-6)
}

func TestSequenceWaitAndOrdering(t *testing.T) {
	var order []string
	seq := NewSequence(
		Do(func() { order = append(order, "a") }),
		Wait(Fixed(0.1)),
		Do(func() { order = append(order, "b") }),
	)

	assert.False(t, seq.Resume(0.05))
	assert.Equal(t, []string{"a"}, order)
	assert.True(t, seq.Resume(0.05))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestSequenceNesting(t *testing.T) {
	var v float32
	inner := func() Step {
		return NewSequence(
			Tween(func() float32 { return v }, func(x float32) { v = x }, 1, Fixed(0.1)),
		)
	}
	seq := NewSequence(inner, Wait(Fixed(0.1)))

	frames := 0
	for !seq.Resume(1.0 / 60) {
		frames++
		assert.Less(t, frames, 100)
	}
	assert.Equal(t, float32(1), v)
}

func TestSequenceThenReopens(t *testing.T) {
	seq := NewSequence()
	assert.True(t, seq.Resume(0.1))
	seq.Then(Wait(Fixed(0.2)))
	assert.False(t, seq.Done())
	assert.False(t, seq.Resume(0.1))
	assert.True(t, seq.Resume(0.1))
}

func TestChooseCumulativeRanges(t *testing.T) {
	opts := []Weighted[string]{
		{Weight: 0.5, Value: "a"},
		{Weight: 0, Value: "never"},
		{Weight: 0.3, Value: "b"},
	}

	assert.Equal(t, "a", Choose(0, opts, "rest"))
	assert.Equal(t, "a", Choose(0.49, opts, "rest"))
	assert.Equal(t, "b", Choose(0.5, opts, "rest"))
	assert.Equal(t, "b", Choose(0.79, opts, "rest"))
	assert.Equal(t, "rest", Choose(0.8, opts, "rest"))
	assert.Equal(t, "rest", Choose(0.999, opts, "rest"))
}

func TestPickUniformExcludesSkip(t *testing.T) {
	items := []int{1, 2, 3}
	rng := &scriptedRand{values: []float32{0, 0.4, 0.99}}

	got := []int{}
	for i := 0; i < 3; i++ {
		v, ok := pickUniform(rng, items, 2)
		assert.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 1, 3}, got)

	v, ok := pickUniform(rng, []int{2}, 2)
	assert.True(t, ok)
	assert.Equal(t, 2, v, "sole candidate is returned even if it is skip")

	_, ok = pickUniform(rng, []int{}, 2)
	assert.False(t, ok)
}

func TestRangeSample(t *testing.T) {
	r := Range{Min: 1, Max: 3}
	assert.Equal(t, float32(1), r.Sample(&scriptedRand{values: []float32{0}}))
	assert.Equal(t, float32(2), r.Sample(&scriptedRand{values: []float32{0.5}}))
	assert.Equal(t, float32(5), Range{Min: 5, Max: 2}.Sample(&scriptedRand{values: []float32{0.5}}))

	n := Range{Min: 3, Max: -1}.Normalized(0)
	assert.Equal(t, Range{Min: 0, Max: 3}, n)
}

func TestCurveEvaluate(t *testing.T) {
	ease := EaseInOut(0, 1, 1, 0)
	assert.Equal(t, float32(1), ease.Evaluate(-1))
	assert.Equal(t, float32(1), ease.Evaluate(0))
	assert.InDelta(t, 0.5, ease.Evaluate(0.5), 1e-6)
	assert.Equal(t, float32(0), ease.Evaluate(1))
	assert.Equal(t, float32(0), ease.Evaluate(2))
	assert.Greater(t, ease.Evaluate(0.1), float32(0.95), "flat tangents ease out of the first key")

	lin := Linear(0, 1, 1, 0.7)
	assert.InDelta(t, 0.85, lin.Evaluate(0.5), 1e-6)
	assert.InDelta(t, 0.97, lin.Evaluate(0.1), 1e-6)

	assert.Equal(t, float32(0.3), Curve{{Time: 0.5, Value: 0.3}}.Evaluate(0.9))
	assert.Equal(t, float32(0), Curve{}.Evaluate(0.5))
}

func TestCurveValidAndSorted(t *testing.T) {
	assert.False(t, Curve{}.Valid())
	assert.True(t, EaseInOut(0, 1, 1, 0).Valid())

	c := Curve{{Time: 1, Value: 0}, {Time: 0, Value: 1}, {Time: 1, Value: 5}}
	assert.False(t, c.Valid())

	s := c.Sorted()
	assert.True(t, s.Valid())
	assert.Len(t, s, 2)
	assert.Equal(t, float32(0), s[0].Time)
}

func TestSequenceCarriesLeftoverTime(t *testing.T) {
	var v float32
	var fired bool
	seq := NewSequence(
		Tween(func() float32 { return v }, func(x float32) { v = x }, 1, Fixed(0.1)),
		Wait(Fixed(0.1)),
		Do(func() { fired = true }),
	)

	assert.False(t, seq.Resume(0.15), "half of the wait is still pending")
	assert.Equal(t, float32(1), v)
	assert.False(t, fired)

	assert.True(t, seq.Resume(0.05))
	assert.True(t, fired)
	assert.InDelta(t, 0, seq.Leftover(), 1e-6)
}

func TestSequenceNestedLeftover(t *testing.T) {
	var order []string
	inner := func() Step {
		return NewSequence(
			Wait(Fixed(0.05)),
			Do(func() { order = append(order, "inner") }),
		)
	}
	seq := NewSequence(
		inner,
		Wait(Fixed(0.05)),
		Do(func() { order = append(order, "outer") }),
	)

	assert.True(t, seq.Resume(0.1), "one frame covers both waits")
	assert.Equal(t, []string{"inner", "outer"}, order)

	instantOnly := NewSequence(Do(func() {}))
	assert.True(t, instantOnly.Resume(0.02))
	assert.InDelta(t, 0.02, instantOnly.Leftover(), 1e-6)
}
