package skirt

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/density"
)

// Face names one vertical side of a block. Top and bottom are never skirted.
type Face int

const (
	NegX Face = iota
	PosX
	NegZ
	PosZ
)

// SideFaces lists every face a skirt can be built on, in build order.
var SideFaces = []Face{NegX, PosX, NegZ, PosZ}

var faceNames = [...]string{"-x", "+x", "-z", "+z"}

func (f Face) String() string {
	if f < 0 || int(f) >= len(faceNames) {
		return fmt.Sprintf("face(%d)", int(f))
	}
	return faceNames[f]
}

func ParseFace(name string) (Face, error) {
	for i, n := range faceNames {
		if n == name {
			return Face(i), nil
		}
	}
	return 0, fmt.Errorf("unknown skirt face %q", name)
}

// ParseFaces converts configured face names, defaulting to all side faces
// when none are given.
func ParseFaces(names []string) ([]Face, error) {
	if len(names) == 0 {
		return append([]Face(nil), SideFaces...), nil
	}
	faces := make([]Face, 0, len(names))
	for _, name := range names {
		f, err := ParseFace(name)
		if err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// layout describes how a face is addressed in its block grid and how its 2D
// coordinates (u, y) map back to world space. u runs along tangent scaled by
// sign, chosen so that u cross up is the negative face axis on every face.
type layout struct {
	axis     int
	positive bool
	tangent  int
	sign     float32
	outward  mgl32.Vec3
}

var layouts = [...]layout{
	NegX: {axis: 0, positive: false, tangent: 2, sign: 1, outward: mgl32.Vec3{-1, 0, 0}},
	PosX: {axis: 0, positive: true, tangent: 2, sign: 1, outward: mgl32.Vec3{1, 0, 0}},
	NegZ: {axis: 2, positive: false, tangent: 0, sign: -1, outward: mgl32.Vec3{0, 0, -1}},
	PosZ: {axis: 2, positive: true, tangent: 0, sign: -1, outward: mgl32.Vec3{0, 0, 1}},
}

// Outward returns the unit normal pointing out of the block through f.
func (f Face) Outward() mgl32.Vec3 {
	return layouts[f].outward
}

// corner returns the grid coordinates of face corner (k, j), where k indexes
// the tangent axis and j the vertical axis.
func (l layout) corner(grid *density.Grid, k, j int) (int, int, int) {
	plane := 0
	if l.positive {
		plane = grid.Count[l.axis]
	}
	if l.axis == 0 {
		return plane, j, k
	}
	return k, j, plane
}

// Contour holds the marching squares output of one face: segment i joins
// Points[2i] and Points[2i+1]. Points are (u, y) face coordinates and Normals
// are the matching world-space normals. Plane is the world coordinate of the
// face along its axis.
type Contour struct {
	Face    Face
	Plane   float32
	Points  []mgl32.Vec2
	Normals []mgl32.Vec3
}

func (c *Contour) Reset(face Face) {
	c.Face = face
	c.Plane = 0
	c.Points = c.Points[:0]
	c.Normals = c.Normals[:0]
}

func (c *Contour) SegmentCount() int {
	return len(c.Points) / 2
}

// World maps face point i back to world space.
func (c *Contour) World(i int) mgl32.Vec3 {
	l := layouts[c.Face]
	p := c.Points[i]
	var out mgl32.Vec3
	out[l.axis] = c.Plane
	out[1] = p[1]
	out[l.tangent] = l.sign * p[0]
	return out
}

// Square corners: c0=(k,j) c1=(k+1,j) c2=(k+1,j+1) c3=(k,j+1).
var squareOffsets = [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// Square edges, each running from the lower grid corner to the higher one.
var squareEdges = [4][2]int{{0, 1}, {1, 2}, {3, 2}, {0, 3}}

// squareSegments[c] lists edge pairs for case c. Cases 5 and 10 are saddles
// and are resolved in ExtractFace.
var squareSegments = [16][]int{
	0:  nil,
	1:  {3, 0},
	2:  {0, 1},
	3:  {3, 1},
	4:  {1, 2},
	5:  nil,
	6:  {0, 2},
	7:  {3, 2},
	8:  {2, 3},
	9:  {0, 2},
	10: nil,
	11: {1, 2},
	12: {1, 3},
	13: {0, 1},
	14: {3, 0},
	15: nil,
}

// Saddle resolutions: the pairs that isolate corners c0 and c2, or c1 and c3.
var (
	isolateEvenCorners = []int{3, 0, 1, 2}
	isolateOddCorners  = []int{0, 1, 2, 3}
)

// ExtractFace runs marching squares over face f of grid and appends the
// resulting unordered segments to out. Segment endpoints shared by two cells
// are bit-identical because both cells interpolate the same edge in the same
// direction.
func ExtractFace(grid *density.Grid, f Face, threshold float32, out *Contour) {
	l := layouts[f]
	out.Reset(f)
	x, y, z := l.corner(grid, 0, 0)
	out.Plane = grid.Position(x, y, z)[l.axis]

	var samples [4]density.Sample
	var points [4]mgl32.Vec2

	kCount := grid.Count[l.tangent]
	jCount := grid.Count[1]
	for j := 0; j < jCount; j++ {
		for k := 0; k < kCount; k++ {
			square := 0
			for i, off := range squareOffsets {
				cx, cy, cz := l.corner(grid, k+off[0], j+off[1])
				samples[i] = grid.At(cx, cy, cz)
				p := grid.Position(cx, cy, cz)
				points[i] = mgl32.Vec2{l.sign * p[l.tangent], p[1]}
				if samples[i].Density > threshold {
					square |= 1 << i
				}
			}

			segments := squareSegments[square]
			switch square {
			case 5, 10:
				avg := (samples[0].Density + samples[1].Density + samples[2].Density + samples[3].Density) / 4
				solidCenter := avg > threshold
				// A solid center joins the solid diagonal, so the air corners
				// are the ones cut off.
				if (square == 5) == solidCenter {
					segments = isolateOddCorners
				} else {
					segments = isolateEvenCorners
				}
			}

			for s := 0; s+1 < len(segments); s += 2 {
				a := interpolateEdge(segments[s], &samples, &points, threshold)
				b := interpolateEdge(segments[s+1], &samples, &points, threshold)
				if a.point == b.point {
					continue
				}
				out.Points = append(out.Points, a.point, b.point)
				out.Normals = append(out.Normals, a.normal, b.normal)
			}
		}
	}
}

type edgePoint struct {
	point  mgl32.Vec2
	normal mgl32.Vec3
}

func interpolateEdge(edge int, samples *[4]density.Sample, points *[4]mgl32.Vec2, threshold float32) edgePoint {
	a, b := squareEdges[edge][0], squareEdges[edge][1]
	s0, s1 := samples[a], samples[b]
	t := float32(0.5)
	if d := s1.Density - s0.Density; d != 0 {
		t = (threshold - s0.Density) / d
	}
	p := points[a].Add(points[b].Sub(points[a]).Mul(t))

	g := s0.Gradient.Add(s1.Gradient.Sub(s0.Gradient).Mul(t))
	n := mgl32.Vec3{0, 1, 0}
	if l := g.Len(); l > 0 {
		n = g.Mul(-1 / l)
	}
	return edgePoint{point: p, normal: n}
}
