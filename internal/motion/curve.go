package motion

import "sort"

// Keyframe is one control point of a Curve. Tangents are slopes in value
// units per time unit.
type Keyframe struct {
	Time       float32 `mapstructure:"time" json:"time"`
	Value      float32 `mapstructure:"value" json:"value"`
	InTangent  float32 `mapstructure:"in_tangent" json:"in_tangent"`
	OutTangent float32 `mapstructure:"out_tangent" json:"out_tangent"`
}

// Curve is a piecewise cubic Hermite spline over its keyframes, used as a
// time-indexed envelope. Outside the key range it holds the end values.
type Curve []Keyframe

// EaseInOut is a curve from (t0, v0) to (t1, v1) with flat tangents.
func EaseInOut(t0, v0, t1, v1 float32) Curve {
	return Curve{{Time: t0, Value: v0}, {Time: t1, Value: v1}}
}

// Linear is a straight line from (t0, v0) to (t1, v1).
func Linear(t0, v0, t1, v1 float32) Curve {
	var slope float32
	if t1 != t0 {
		slope = (v1 - v0) / (t1 - t0)
	}
	return Curve{
		{Time: t0, Value: v0, InTangent: slope, OutTangent: slope},
		{Time: t1, Value: v1, InTangent: slope, OutTangent: slope},
	}
}

// Valid reports whether the curve has at least one key and strictly
// increasing key times.
func (c Curve) Valid() bool {
	if len(c) == 0 {
		return false
	}
	for i := 1; i < len(c); i++ {
		if c[i].Time <= c[i-1].Time {
			return false
		}
	}
	return true
}

// Sorted returns a copy ordered by time with duplicate times dropped.
func (c Curve) Sorted() Curve {
	out := make(Curve, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	dedup := out[:0]
	for i, k := range out {
		if i > 0 && k.Time == dedup[len(dedup)-1].Time {
			continue
		}
		dedup = append(dedup, k)
	}
	return dedup
}

// Evaluate samples the curve at t.
func (c Curve) Evaluate(t float32) float32 {
	switch len(c) {
	case 0:
		return 0
	case 1:
		return c[0].Value
	}
	if t <= c[0].Time {
		return c[0].Value
	}
	last := c[len(c)-1]
	if t >= last.Time {
		return last.Value
	}

	i := sort.Search(len(c), func(i int) bool { return c[i].Time > t }) - 1
	k0, k1 := c[i], c[i+1]
	span := k1.Time - k0.Time
	if span <= 0 {
		return k1.Value
	}

	s := (t - k0.Time) / span
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	return h00*k0.Value + h10*span*k0.OutTangent + h01*k1.Value + h11*span*k1.InTangent
}
