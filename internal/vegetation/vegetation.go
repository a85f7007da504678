// Package vegetation scatters instance placements over finished block
// meshes. Placement is repeatable: the same mesh and type always yield the
// same instances.
package vegetation

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/mesh"
)

// Type describes one kind of vegetation. Densities are instances per unit of
// block footprint area, one entry per detail level.
type Type struct {
	Name       string
	Mesh       string
	Densities  []float64
	Bounds     mesh.Box
	SeedOffset uint32
}

// Density returns the placement density at lod, or zero past the configured
// levels.
func (t Type) Density(lod int) float64 {
	if lod < 0 || lod >= len(t.Densities) {
		return 0
	}
	return t.Densities[lod]
}

func TypesFromConfig(cfgs []config.VegetationConfig) []Type {
	types := make([]Type, 0, len(cfgs))
	for _, c := range cfgs {
		types = append(types, Type{
			Name:      c.Name,
			Mesh:      c.Mesh,
			Densities: append([]float64(nil), c.Densities...),
			Bounds: mesh.Box{
				Min: mgl32.Vec3{float32(c.BoundsMin[0]), float32(c.BoundsMin[1]), float32(c.BoundsMin[2])},
				Max: mgl32.Vec3{float32(c.BoundsMax[0]), float32(c.BoundsMax[1]), float32(c.BoundsMax[2])},
			},
			SeedOffset: c.SeedOffset,
		})
	}
	return types
}

// Instance is one placed copy of a vegetation mesh. Rotation maps the mesh's
// local +Z onto the surface normal.
type Instance struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

func (i Instance) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(i.Position[0], i.Position[1], i.Position[2]).Mul4(i.Rotation.Mat4())
}

// Instances is the placement buffer of one vegetation type in one block.
type Instances struct {
	Items  []Instance
	Bounds mesh.Box
}

func (in *Instances) Empty() bool {
	return in == nil || len(in.Items) == 0
}

// Placer is safe for concurrent use.
type Placer struct {
	randPool sync.Pool
	rotate   func(angle float32, axis mgl32.Vec3) mgl32.Quat
}

func NewPlacer() *Placer {
	return &Placer{
		randPool: sync.Pool{
			New: func() any {
				return rand.New(rand.NewSource(time.Now().UnixNano()))
			},
		},
		rotate: mgl32.QuatRotate,
	}
}

// Seed folds the bit patterns of the first vertex with the type offset.
func Seed(m *mesh.VertexData, offset uint32) uint32 {
	if m.Empty() {
		return offset
	}
	p := m.Positions[0]
	return math.Float32bits(p[0]) ^ math.Float32bits(p[1]) ^ math.Float32bits(p[2]) ^ offset
}

// InstanceCount is round(footprint * density) for the given detail level.
func InstanceCount(t Type, lod int, footprint float64) int {
	n := math.Round(footprint * t.Density(lod))
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	return int(n)
}

// Place scatters instances of t over the triangles of m. footprint is the
// horizontal area of the block the mesh belongs to.
func (p *Placer) Place(m *mesh.VertexData, t Type, lod int, footprint float64) Instances {
	out := Instances{Bounds: mesh.EmptyBox()}
	if m.Empty() || m.TriangleCount() == 0 {
		return out
	}
	count := InstanceCount(t, lod, footprint)
	if count == 0 {
		return out
	}

	rng := p.random(Seed(m, t.SeedOffset))
	defer p.releaseRandom(rng)

	out.Items = make([]Instance, 0, count)
	triangles := m.TriangleCount()
	for i := 0; i < count; i++ {
		a, b, c := m.Triangle(rng.Intn(triangles))

		w0 := 0.1 + 0.9*rng.Float32()
		w1 := 0.1 + 0.9*rng.Float32()
		w2 := 0.1 + 0.9*rng.Float32()
		sum := w0 + w1 + w2
		position := a.Mul(w0 / sum).Add(b.Mul(w1 / sum)).Add(c.Mul(w2 / sum))

		normal := b.Sub(a).Cross(c.Sub(a))
		if l := normal.Len(); l > 0 {
			normal = normal.Mul(1 / l)
		} else {
			normal = mgl32.Vec3{0, 1, 0}
		}

		angle := rng.Float32() * 2 * math.Pi
		align := mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, 1}, normal)
		inst := Instance{
			Position: position,
			Rotation: p.rotate(angle, normal).Mul(align),
		}
		out.Items = append(out.Items, inst)

		if t.Bounds.Valid() {
			out.Bounds = out.Bounds.Union(t.Bounds.Transform(inst.Matrix()))
		} else {
			out.Bounds = out.Bounds.Extend(position)
		}
	}
	return out
}

func (p *Placer) random(seed uint32) *rand.Rand {
	r := p.randPool.Get().(*rand.Rand)
	r.Seed(int64(seed)<<1 | 1)
	return r
}

func (p *Placer) releaseRandom(r *rand.Rand) {
	if r == nil {
		return
	}
	p.randPool.Put(r)
}
