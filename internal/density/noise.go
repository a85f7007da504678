package density

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
)

// NoiseSampler produces repeatable terrain using hashed value noise layered
// on top of a horizontal ground plane: solid below SurfaceHeight, air above,
// with fractal noise carving overhangs and caves.
type NoiseSampler struct {
	cfg  config.DensityConfig
	seed int64
}

func NewNoiseSampler(cfg config.DensityConfig) *NoiseSampler {
	if cfg.GradientStep <= 0 {
		cfg.GradientStep = 0.25
	}
	return &NoiseSampler{cfg: cfg, seed: cfg.Seed}
}

// Density evaluates the scalar field at (x, y, z).
func (s *NoiseSampler) Density(x, y, z float64) float64 {
	return s.cfg.SurfaceHeight - y + s.cfg.Amplitude*s.fractalNoise(x, y, z)
}

// Sample returns the density at p together with a central difference
// gradient.
func (s *NoiseSampler) Sample(p mgl32.Vec3) Sample {
	x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
	h := s.cfg.GradientStep
	inv := 1 / (2 * h)
	return Sample{
		Density: float32(s.Density(x, y, z)),
		Gradient: mgl32.Vec3{
			float32((s.Density(x+h, y, z) - s.Density(x-h, y, z)) * inv),
			float32((s.Density(x, y+h, z) - s.Density(x, y-h, z)) * inv),
			float32((s.Density(x, y, z+h) - s.Density(x, y, z-h)) * inv),
		},
	}
}

func (s *NoiseSampler) fractalNoise(x, y, z float64) float64 {
	frequency := s.cfg.Frequency
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < s.cfg.Octaves; i++ {
		noise := s.valueNoise(x*frequency, y*frequency, z*frequency)
		noiseSum += noise * amplitude
		maxAmplitude += amplitude
		amplitude *= s.cfg.Persistence
		frequency *= s.cfg.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return noiseSum / maxAmplitude
}

func (s *NoiseSampler) valueNoise(x, y, z float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	x1 := x0 + 1
	y1 := y0 + 1
	z1 := z0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))
	sz := smooth(z - float64(z0))

	c00 := lerp(random3D(x0, y0, z0, s.seed), random3D(x1, y0, z0, s.seed), sx)
	c10 := lerp(random3D(x0, y1, z0, s.seed), random3D(x1, y1, z0, s.seed), sx)
	c01 := lerp(random3D(x0, y0, z1, s.seed), random3D(x1, y0, z1, s.seed), sx)
	c11 := lerp(random3D(x0, y1, z1, s.seed), random3D(x1, y1, z1, s.seed), sx)

	return lerp(lerp(c00, c10, sy), lerp(c01, c11, sy), sz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random3D(x, y, z int, seed int64) float64 {
	return float64(hash4(x, y, z, seed)&0xFFFF)/0x8000 - 1.0
}

func hash4(x, y, z int, seed int64) uint32 {
	h := uint32(x)*374761393 + uint32(y)*668265263 + uint32(z)*2246822519 + uint32(seed)*2147483647
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}
