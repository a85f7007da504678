package density

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
)

func TestSanitize(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	got := Sanitize(Sample{Density: nan, Gradient: mgl32.Vec3{inf, -inf, 2}})
	want := Sample{Density: 0, Gradient: mgl32.Vec3{MaxMagnitude, -MaxMagnitude, 2}}
	if got != want {
		t.Fatalf("sanitize: got %+v want %+v", got, want)
	}
	if s := Sanitize(Sample{Density: -3e7}); s.Density != -MaxMagnitude {
		t.Fatalf("expected oversized density clamped, got %v", s.Density)
	}
}

func TestSampleGridLayout(t *testing.T) {
	var grid Grid
	origin := mgl32.Vec3{10, -4, 2}
	scale := mgl32.Vec3{2, 1, 0.5}
	count := [3]int{3, 2, 4}
	calls := 0
	SampleGrid(SamplerFunc(func(p mgl32.Vec3) Sample {
		calls++
		return Sample{Density: p[0] + 100*p[1] + 10000*p[2]}
	}), origin, scale, count, &grid)

	if calls != 4*3*5 || len(grid.Samples) != calls {
		t.Fatalf("expected %d samples, sampled %d and stored %d", 4*3*5, calls, len(grid.Samples))
	}
	for z := 0; z <= count[2]; z++ {
		for y := 0; y <= count[1]; y++ {
			for x := 0; x <= count[0]; x++ {
				p := grid.Position(x, y, z)
				want := origin.Add(mgl32.Vec3{float32(x) * 2, float32(y), float32(z) * 0.5})
				if p != want {
					t.Fatalf("corner (%d,%d,%d) at %v, want %v", x, y, z, p, want)
				}
				if got := grid.At(x, y, z).Density; got != p[0]+100*p[1]+10000*p[2] {
					t.Fatalf("corner (%d,%d,%d) holds %v", x, y, z, got)
				}
			}
		}
	}

	// A smaller block reuses the backing array.
	backing := &grid.Samples[0]
	SampleGrid(SamplerFunc(func(mgl32.Vec3) Sample { return Sample{} }), origin, scale, [3]int{1, 1, 1}, &grid)
	if len(grid.Samples) != 8 || &grid.Samples[0] != backing {
		t.Fatalf("expected the sample slice to be reused, got len %d", len(grid.Samples))
	}
}

func testNoiseConfig() config.DensityConfig {
	return config.DensityConfig{
		Seed:          7,
		Frequency:     0.05,
		Amplitude:     2,
		Octaves:       3,
		Persistence:   0.5,
		Lacunarity:    2,
		SurfaceHeight: 4,
		GradientStep:  0.1,
	}
}

func TestNoiseSamplerIsDeterministic(t *testing.T) {
	a := NewNoiseSampler(testNoiseConfig())
	b := NewNoiseSampler(testNoiseConfig())
	other := testNoiseConfig()
	other.Seed = 8
	c := NewNoiseSampler(other)

	differs := false
	for i := 0; i < 50; i++ {
		p := mgl32.Vec3{float32(i) * 3.7, float32(i%7) - 3, float32(i) * -1.3}
		if a.Sample(p) != b.Sample(p) {
			t.Fatalf("samplers with the same seed disagree at %v", p)
		}
		if a.Sample(p).Density != c.Sample(p).Density {
			differs = true
		}
	}
	if !differs {
		t.Fatalf("a different seed should change the field")
	}
}

func TestNoiseSamplerGroundPlane(t *testing.T) {
	s := NewNoiseSampler(testNoiseConfig())
	for _, p := range []mgl32.Vec3{{0, 0, 0}, {31, 0, -12}, {-50, 0, 70}} {
		below := s.Sample(mgl32.Vec3{p[0], -20, p[2]})
		above := s.Sample(mgl32.Vec3{p[0], 30, p[2]})
		if below.Density <= 0 || above.Density >= 0 {
			t.Fatalf("column %v: expected solid below and air above, got %v and %v", p, below.Density, above.Density)
		}
		// Density falls with height, so the gradient points down.
		if below.Gradient[1] >= 0 {
			t.Fatalf("column %v: gradient %v should point down", p, below.Gradient)
		}
	}
}
