package density

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxMagnitude bounds densities and gradient components handed to the
// extractors. Larger values, infinities and NaNs are folded into range by
// Sanitize.
const MaxMagnitude = 1e6

// Sample is the density and its gradient at one grid corner. A density above
// the extraction threshold marks the corner as solid; the gradient points
// towards increasing density.
type Sample struct {
	Density  float32
	Gradient mgl32.Vec3
}

// Sampler evaluates the density field. Implementations must be pure and safe
// for concurrent use.
type Sampler interface {
	Sample(position mgl32.Vec3) Sample
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(position mgl32.Vec3) Sample

func (f SamplerFunc) Sample(position mgl32.Vec3) Sample {
	return f(position)
}

// Sanitize replaces NaN with zero and clamps infinities and oversized values
// so the linear interpolation in the extractors stays finite.
func Sanitize(s Sample) Sample {
	s.Density = clampFinite(s.Density)
	for i := range s.Gradient {
		s.Gradient[i] = clampFinite(s.Gradient[i])
	}
	return s
}

func clampFinite(v float32) float32 {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f > MaxMagnitude:
		return MaxMagnitude
	case f < -MaxMagnitude:
		return -MaxMagnitude
	}
	return v
}

// Grid holds (Count+1) samples per axis for one block, x varying fastest.
type Grid struct {
	Count   [3]int
	Origin  mgl32.Vec3
	Scale   mgl32.Vec3
	Samples []Sample
}

// Resize prepares the grid for the given cube counts, reusing the sample
// slice when it is large enough.
func (g *Grid) Resize(count [3]int) {
	g.Count = count
	total := (count[0] + 1) * (count[1] + 1) * (count[2] + 1)
	if cap(g.Samples) < total {
		g.Samples = make([]Sample, total)
		return
	}
	g.Samples = g.Samples[:total]
}

func (g *Grid) Index(x, y, z int) int {
	return x + (g.Count[0]+1)*(y+(g.Count[1]+1)*z)
}

func (g *Grid) At(x, y, z int) Sample {
	return g.Samples[g.Index(x, y, z)]
}

func (g *Grid) Set(x, y, z int, s Sample) {
	g.Samples[g.Index(x, y, z)] = s
}

// Position returns the world-space location of a grid corner.
func (g *Grid) Position(x, y, z int) mgl32.Vec3 {
	return mgl32.Vec3{
		g.Origin[0] + float32(x)*g.Scale[0],
		g.Origin[1] + float32(y)*g.Scale[1],
		g.Origin[2] + float32(z)*g.Scale[2],
	}
}

// SampleGrid fills grid with sanitized samples of s for a block whose minimum
// corner is origin, using count cubes of size scale per axis.
func SampleGrid(s Sampler, origin, scale mgl32.Vec3, count [3]int, grid *Grid) {
	grid.Resize(count)
	grid.Origin = origin
	grid.Scale = scale
	for z := 0; z <= count[2]; z++ {
		for y := 0; y <= count[1]; y++ {
			for x := 0; x <= count[0]; x++ {
				grid.Set(x, y, z, Sanitize(s.Sample(grid.Position(x, y, z))))
			}
		}
	}
}
