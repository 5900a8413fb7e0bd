package motion

import "fmt"

// Correction records one configuration value replaced during validation.
// Invalid configuration is clamped to a safe value, never rejected.
type Correction struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func (c Correction) String() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New)
}

type corrections []Correction

func (cs *corrections) add(field string, old, new any) {
	*cs = append(*cs, Correction{Field: field, Old: fmt.Sprint(old), New: fmt.Sprint(new)})
}

// atLeast raises *v to floor.
func (cs *corrections) atLeast(field string, v *float32, floor float32) {
	if *v < floor {
		cs.add(field, *v, floor)
		*v = floor
	}
}

// positive replaces non-positive values with fallback.
func (cs *corrections) positive(field string, v *float32, fallback float32) {
	if *v <= 0 {
		cs.add(field, *v, fallback)
		*v = fallback
	}
}

func (cs *corrections) unit(field string, v *float32) {
	if *v < 0 || *v > 1 {
		n := clamp01(*v)
		cs.add(field, *v, n)
		*v = n
	}
}

func (cs *corrections) within(field string, v *float32, lo, hi float32) {
	if *v < lo || *v > hi {
		n := clamp(*v, lo, hi)
		cs.add(field, *v, n)
		*v = n
	}
}

func (cs *corrections) rangeAtLeast(field string, r *Range, floor float32) {
	n := r.Normalized(floor)
	if n != *r {
		cs.add(field, *r, n)
		*r = n
	}
}

func (cs *corrections) unitRange(field string, r *Range) {
	n := r.Normalized(0)
	n.Min, n.Max = clamp01(n.Min), clamp01(n.Max)
	if n != *r {
		cs.add(field, *r, n)
		*r = n
	}
}

func (cs *corrections) curve(field string, c *Curve, fallback Curve) {
	if c.Valid() {
		return
	}
	if sorted := c.Sorted(); sorted.Valid() {
		cs.add(field, "unsorted keys", "sorted keys")
		*c = sorted
		return
	}
	cs.add(field, "empty curve", "default curve")
	*c = fallback
}
