// Package noise provides the deterministic, seeded coherent-noise field every
// motion generator samples from.
package noise

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

// Backend selects the coherent-noise primitive behind a Field.
type Backend string

const (
	BackendPerlin  Backend = "perlin"
	BackendSimplex Backend = "simplex"
)

// DefaultSeedExtent is the half-width of the cube seeds are drawn from.
const DefaultSeedExtent = 1000

// Standard Perlin parameters, one octave per primitive call. Octave sums are
// composed by the callers so each layer keeps its own seed.
const (
	perlinAlpha = 2
	perlinBeta  = 2
	perlinN     = 1
)

// 2D Perlin peaks at sqrt(0.5); this maps it onto [0, 1].
const perlinUnitScale = math.Sqrt2 / 2

type source interface {
	noise2(x, y float64) float64
}

type perlinSource struct{ p *perlin.Perlin }

func (s perlinSource) noise2(x, y float64) float64 {
	return 0.5 + s.p.Noise2D(x, y)*perlinUnitScale
}

type simplexSource struct{ n opensimplex.Noise }

func (s simplexSource) noise2(x, y float64) float64 {
	return 0.5 + s.n.Eval2(x, y)*0.5
}

// Field is a pure function of its inputs once constructed: identical
// arguments always produce identical values.
type Field struct {
	backend Backend
	src     source
}

// NewField builds a field on the given backend. The seed fixes the
// permutation tables; per-axis decorrelation comes from the sample seeds.
func NewField(backend Backend, seed int64) (*Field, error) {
	f := &Field{backend: backend}
	switch backend {
	case BackendPerlin, "":
		f.backend = BackendPerlin
		f.src = perlinSource{p: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed)}
	case BackendSimplex:
		f.src = simplexSource{n: opensimplex.New(seed)}
	default:
		return nil, fmt.Errorf("unknown noise backend %q", backend)
	}
	return f, nil
}

// MustField is NewField for backends known at compile time.
func MustField(backend Backend, seed int64) *Field {
	f, err := NewField(backend, seed)
	if err != nil {
		panic(err)
	}
	return f
}

// Backend reports the primitive in use.
func (f *Field) Backend() Backend {
	return f.backend
}

// Unit evaluates the primitive at (x, y), mapped to [0, 1].
func (f *Field) Unit(x, y float32) float32 {
	v := float32(f.src.noise2(float64(x), float64(y)))
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Sample evaluates the field at (seed, t*octave), centered on zero.
// The result lies in [-0.5, 0.5].
func (f *Field) Sample(seed, t, octave float32) float32 {
	return f.Unit(seed, t*octave) - 0.5
}

// Sample3 samples each axis with its own seed and octave.
func (f *Field) Sample3(seed mgl32.Vec3, t float32, octave mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		f.Sample(seed[0], t, octave[0]),
		f.Sample(seed[1], t, octave[1]),
		f.Sample(seed[2], t, octave[2]),
	}
}

// Float32Source is the slice of *rand.Rand that seeding needs.
type Float32Source interface {
	Float32() float32
}

// RandomSeed draws a seed uniformly from [-extent, extent]^3.
func RandomSeed(rng Float32Source, extent float32) mgl32.Vec3 {
	return mgl32.Vec3{
		(rng.Float32()*2 - 1) * extent,
		(rng.Float32()*2 - 1) * extent,
		(rng.Float32()*2 - 1) * extent,
	}
}

// NewRand returns a generator seeded with seed, or from the wall clock when
// seed is zero.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(rand.Int63()))
	}
	return rand.New(rand.NewSource(seed))
}
