// Package marching turns a sampled density grid into a triangle mesh using
// table driven marching cubes.
//
// Cuberilles are visited x fastest, then y, then z. The four crossing edges
// on the -x face of a cuberille are the +x face edges of its predecessor in
// the row, so their vertices are taken from a per-row cache instead of being
// interpolated twice. Vertices on faces shared along y or z are duplicated.
//
// Ambiguous saddle configurations are resolved only by what the tables
// encode; no interior disambiguation is attempted.
package marching

import (
	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/density"
	"terrainstream/internal/mesh"
)

// sharedEdges pairs an edge on the -x face of a cuberille with the edge on the
// +x face of the previous cuberille in the same row.
var sharedEdges = [4]struct{ left, right int }{
	{left: 3, right: 1},
	{left: 7, right: 5},
	{left: 8, right: 9},
	{left: 11, right: 10},
}

// edgeDescends marks edges whose table order runs from the higher grid corner
// to the lower one. Those are interpolated in reverse so a vertex duplicated
// by two cuberilles comes out bit-identical.
var edgeDescends = func() [12]bool {
	var out [12]bool
	for e, c := range edgeCorners {
		a, b := cornerOffsets[c[0]], cornerOffsets[c[1]]
		out[e] = a[0]+a[1]+a[2] > b[0]+b[1]+b[2]
	}
	return out
}()

// Extractor is not safe for concurrent use; give each block generation its own.
type Extractor struct {
	Threshold float32

	rowCache [4]int64
}

func NewExtractor(threshold float32) *Extractor {
	e := &Extractor{Threshold: threshold}
	e.resetRow()
	return e
}

func (e *Extractor) resetRow() {
	for i := range e.rowCache {
		e.rowCache[i] = -1
	}
}

// Extract appends the isosurface of grid to out and returns the number of
// vertices added. Indices written to out are absolute.
func (e *Extractor) Extract(grid *density.Grid, out *mesh.VertexData) int {
	start := out.VertexCount()
	count := grid.Count

	var corners [8]density.Sample
	var positions [8]mgl32.Vec3
	var vertices [12]uint32

	for z := 0; z < count[2]; z++ {
		for y := 0; y < count[1]; y++ {
			e.resetRow()
			for x := 0; x < count[0]; x++ {
				cubeCase := 0
				for i, off := range cornerOffsets {
					cx, cy, cz := x+off[0], y+off[1], z+off[2]
					corners[i] = grid.At(cx, cy, cz)
					positions[i] = grid.Position(cx, cy, cz)
					if corners[i].Density > e.Threshold {
						cubeCase |= 1 << i
					}
				}

				edges := edgeTable[cubeCase]
				if edges == 0 {
					e.resetRow()
					continue
				}

				var have uint16
				for k, shared := range sharedEdges {
					bit := uint16(1) << shared.left
					if edges&bit != 0 && e.rowCache[k] >= 0 {
						vertices[shared.left] = uint32(e.rowCache[k])
						have |= bit
					}
				}

				for edge := 0; edge < 12; edge++ {
					bit := uint16(1) << edge
					if edges&bit == 0 || have&bit != 0 {
						continue
					}
					a, b := edgeCorners[edge][0], edgeCorners[edge][1]
					if edgeDescends[edge] {
						a, b = b, a
					}
					pos, normal := e.interpolate(positions[a], positions[b], corners[a], corners[b])
					vertices[edge] = out.AddVertex(pos, normal)
				}

				tris := &triTable[cubeCase]
				for i := 0; i < len(tris) && tris[i] >= 0; i += 3 {
					out.AddTriangle(vertices[tris[i]], vertices[tris[i+1]], vertices[tris[i+2]])
				}

				for k, shared := range sharedEdges {
					if edges&(uint16(1)<<shared.right) != 0 {
						e.rowCache[k] = int64(vertices[shared.right])
					} else {
						e.rowCache[k] = -1
					}
				}
			}
		}
	}
	return out.VertexCount() - start
}

// interpolate places a vertex on the edge p0-p1 where the density crosses the
// threshold and blends the corner gradients into an outward normal.
func (e *Extractor) interpolate(p0, p1 mgl32.Vec3, s0, s1 density.Sample) (mgl32.Vec3, mgl32.Vec3) {
	t := float32(0.5)
	if d := s1.Density - s0.Density; d != 0 {
		t = (e.Threshold - s0.Density) / d
	}
	pos := p0.Add(p1.Sub(p0).Mul(t))
	return pos, blendNormal(s0.Gradient, s1.Gradient, t, p0, p1, s0.Density > e.Threshold)
}

// blendNormal returns -normalize(lerp(g0, g1, t)). When the blended gradient
// vanishes it falls back to the edge direction pointing from the solid corner
// into air.
func blendNormal(g0, g1 mgl32.Vec3, t float32, p0, p1 mgl32.Vec3, firstSolid bool) mgl32.Vec3 {
	g := g0.Add(g1.Sub(g0).Mul(t))
	if l := g.Len(); l > 0 {
		return g.Mul(-1 / l)
	}
	dir := p1.Sub(p0)
	if !firstSolid {
		dir = p0.Sub(p1)
	}
	if dir.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return dir.Normalize()
}
