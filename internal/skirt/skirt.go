// Package skirt hides cracks between neighbouring blocks of different detail
// levels by hanging a ribbon of triangles below the iso-line on each vertical
// block face.
package skirt

import (
	"terrainstream/internal/density"
	"terrainstream/internal/mesh"
)

// Builder is not safe for concurrent use; it reuses its contour buffer.
type Builder struct {
	Threshold float32
	// Depth is how far below the lowest polyline point the ribbon reaches, in
	// world units.
	Depth float32
	Faces []Face

	contour Contour
}

func NewBuilder(threshold, depth float32, faces []Face) *Builder {
	return &Builder{Threshold: threshold, Depth: depth, Faces: faces}
}

// Build appends skirt geometry for every configured face of grid to out and
// returns the number of vertices added.
func (b *Builder) Build(grid *density.Grid, out *mesh.VertexData) int {
	start := out.VertexCount()
	for _, f := range b.Faces {
		ExtractFace(grid, f, b.Threshold, &b.contour)
		if b.contour.SegmentCount() == 0 {
			continue
		}
		for _, line := range SortVertices(b.contour.Points) {
			b.emit(&b.contour, line, out)
		}
	}
	return out.VertexCount() - start
}

// emit maps one polyline to world space and fans it to the bottom edge of the
// ribbon. Triangles are listed counter-clockwise in (u, y), which faces the
// negative axis; faces on a positive axis swap two corners.
func (b *Builder) emit(c *Contour, line []int, out *mesh.VertexData) {
	if len(line) < 2 {
		return
	}
	orientByU(c.Points, line)

	minY := c.Points[line[0]][1]
	for _, idx := range line[1:] {
		if y := c.Points[idx][1]; y < minY {
			minY = y
		}
	}
	bottomY := minY - b.Depth

	base := uint32(out.VertexCount())
	for _, idx := range line {
		out.AddVertex(c.World(idx), c.Normals[idx])
	}

	outward := c.Face.Outward()
	first := c.World(line[0])
	first[1] = bottomY
	last := c.World(line[len(line)-1])
	last[1] = bottomY
	firstBottom := out.AddVertex(first, outward)
	lastBottom := out.AddVertex(last, outward)

	flip := layouts[c.Face].positive
	tri := func(p0, p1, p2 uint32) {
		if flip {
			out.AddTriangle(p0, p2, p1)
			return
		}
		out.AddTriangle(p0, p1, p2)
	}

	n := uint32(len(line))
	tri(firstBottom, lastBottom, base+n-1)
	for i := uint32(0); i+1 < n; i++ {
		tri(firstBottom, base+i+1, base+i)
	}
}
