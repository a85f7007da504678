package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexData is the indexed triangle buffer produced for one block. It is
// cleared and rebuilt for every regeneration and only handed out once the
// block is finished.
type VertexData struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
}

// NewVertexData allocates a buffer with room for the given number of vertices.
func NewVertexData(vertexCapacity int) *VertexData {
	if vertexCapacity < 0 {
		vertexCapacity = 0
	}
	return &VertexData{
		Positions: make([]mgl32.Vec3, 0, vertexCapacity),
		Normals:   make([]mgl32.Vec3, 0, vertexCapacity),
		Indices:   make([]uint32, 0, vertexCapacity*2),
	}
}

// Reset truncates the buffer while keeping its backing arrays.
func (v *VertexData) Reset() {
	v.Positions = v.Positions[:0]
	v.Normals = v.Normals[:0]
	v.Indices = v.Indices[:0]
}

// AddVertex appends a vertex and returns its absolute index.
func (v *VertexData) AddVertex(position, normal mgl32.Vec3) uint32 {
	idx := uint32(len(v.Positions))
	v.Positions = append(v.Positions, position)
	v.Normals = append(v.Normals, normal)
	return idx
}

func (v *VertexData) AddTriangle(a, b, c uint32) {
	v.Indices = append(v.Indices, a, b, c)
}

func (v *VertexData) VertexCount() int {
	return len(v.Positions)
}

func (v *VertexData) TriangleCount() int {
	return len(v.Indices) / 3
}

func (v *VertexData) Empty() bool {
	return v == nil || len(v.Positions) == 0
}

// Clone returns a compact copy detached from the work buffer.
func (v *VertexData) Clone() *VertexData {
	if v == nil {
		return nil
	}
	out := &VertexData{
		Positions: make([]mgl32.Vec3, len(v.Positions)),
		Normals:   make([]mgl32.Vec3, len(v.Normals)),
		Indices:   make([]uint32, len(v.Indices)),
	}
	copy(out.Positions, v.Positions)
	copy(out.Normals, v.Normals)
	copy(out.Indices, v.Indices)
	return out
}

// Triangle returns the corner positions of triangle i.
func (v *VertexData) Triangle(i int) (mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	base := i * 3
	return v.Positions[v.Indices[base]],
		v.Positions[v.Indices[base+1]],
		v.Positions[v.Indices[base+2]]
}

func (v *VertexData) Bounds() Box {
	box := EmptyBox()
	if v == nil {
		return box
	}
	for _, p := range v.Positions {
		box = box.Extend(p)
	}
	return box
}

// Box is an axis-aligned bounding box in world space.
type Box struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyBox returns an inverted box that any Extend call will overwrite.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b Box) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

func (b Box) Extend(p mgl32.Vec3) Box {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
	return b
}

func (b Box) Union(o Box) Box {
	if !o.Valid() {
		return b
	}
	if !b.Valid() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Corners returns the eight corners of the box.
func (b Box) Corners() [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := 0; i < 8; i++ {
		for axis := 0; axis < 3; axis++ {
			if i&(1<<axis) != 0 {
				out[i][axis] = b.Max[axis]
			} else {
				out[i][axis] = b.Min[axis]
			}
		}
	}
	return out
}

// Transform returns the bounds of the box after applying m to its corners.
func (b Box) Transform(m mgl32.Mat4) Box {
	if !b.Valid() {
		return b
	}
	out := EmptyBox()
	for _, c := range b.Corners() {
		out = out.Extend(mgl32.TransformCoordinate(c, m))
	}
	return out
}
