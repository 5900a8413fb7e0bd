package motion

// Step is one phase of a multi-frame behavior. Resume advances it by dt
// seconds and reports whether it has finished.
type Step interface {
	Resume(dt float32) bool
}

// leftover is implemented by steps that can finish partway through a frame.
// Leftover returns the part of the last dt the step did not use.
type leftover interface {
	Leftover() float32
}

// remainder returns the unused time of a finished step, zero when the step
// does not report it.
func remainder(s Step) float32 {
	if l, ok := s.(leftover); ok {
		if r := l.Leftover(); r > 0 {
			return r
		}
	}
	return 0
}

// Deferred builds a step at the moment a sequence reaches it, so that start
// values and random draws reflect the state at that frame rather than the
// state when the sequence was assembled.
type Deferred func() Step

// Sequence runs steps back to back, one resumption per frame. When a step
// finishes, the next one starts in the same frame with the time the
// finished step left over. Cancelling a sequence is discarding it.
type Sequence struct {
	pending []Deferred
	current Step
	done    bool
	rest    float32
}

// NewSequence returns a sequence over steps.
func NewSequence(steps ...Deferred) *Sequence {
	return &Sequence{pending: steps}
}

// Then appends steps.
func (s *Sequence) Then(steps ...Deferred) *Sequence {
	s.pending = append(s.pending, steps...)
	s.done = false
	s.rest = 0
	return s
}

// Resume implements Step.
func (s *Sequence) Resume(dt float32) bool {
	for {
		if s.current == nil {
			if len(s.pending) == 0 {
				s.done = true
				s.rest = dt
				return true
			}
			s.current = s.pending[0]()
			s.pending = s.pending[1:]
			if s.current == nil {
				continue
			}
		}
		if !s.current.Resume(dt) {
			return false
		}
		dt = remainder(s.current)
		s.current = nil
	}
}

// Leftover implements leftover.
func (s *Sequence) Leftover() float32 {
	return s.rest
}

// Done reports whether every step has finished.
func (s *Sequence) Done() bool {
	return s.done
}

// tween linearly interpolates from its start value to a target over a fixed
// duration, re-evaluated every frame, and snaps exactly to the target at the
// end.
type tween struct {
	set      func(float32)
	from, to float32
	duration float32
	elapsed  float32
}

func (tw *tween) Leftover() float32 { return tw.elapsed - tw.duration }

func (tw *tween) Resume(dt float32) bool {
	tw.elapsed += dt
	if tw.duration <= 0 || tw.elapsed >= tw.duration {
		tw.set(tw.to)
		return true
	}
	tw.set(lerp(tw.from, tw.to, tw.elapsed/tw.duration))
	return false
}

// Tween moves a value from get() to target over duration seconds.
func Tween(get func() float32, set func(float32), target float32, duration func() float32) Deferred {
	return func() Step {
		return &tween{set: set, from: get(), to: target, duration: duration()}
	}
}

type wait struct {
	duration float32
	elapsed  float32
}

func (w *wait) Leftover() float32 { return w.elapsed - w.duration }

func (w *wait) Resume(dt float32) bool {
	w.elapsed += dt
	return w.elapsed >= w.duration
}

// Wait holds for duration seconds.
func Wait(duration func() float32) Deferred {
	return func() Step {
		return &wait{duration: duration()}
	}
}

// instant finishes on its first resumption without using any time.
type instant struct {
	rest float32
}

func (i *instant) Leftover() float32 { return i.rest }

func (i *instant) Resume(dt float32) bool {
	i.rest = dt
	return true
}

// Do runs fn when the sequence reaches it and completes immediately.
func Do(fn func()) Deferred {
	return func() Step {
		fn()
		return &instant{}
	}
}

// Fixed adapts a constant to the lazy duration arguments.
func Fixed(v float32) func() float32 {
	return func() float32 { return v }
}
