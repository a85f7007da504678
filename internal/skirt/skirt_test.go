package skirt

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/density"
	"terrainstream/internal/mesh"
)

func TestSortVerticesChainsShuffledSegments(t *testing.T) {
	points := []mgl32.Vec2{
		{2, 1}, {1, 0}, // middle, reversed
		{10, 10}, {11, 10}, // separate component
		{2, 1}, {3, 1},
		{0, 0}, {1, 0},
	}

	lines := SortVertices(points)
	if len(lines) != 2 {
		t.Fatalf("expected 2 polylines, got %d: %v", len(lines), lines)
	}

	type pair struct{ a, b mgl32.Vec2 }
	segments := map[pair]bool{}
	for i := 0; i+1 < len(points); i += 2 {
		segments[pair{points[i], points[i+1]}] = true
		segments[pair{points[i+1], points[i]}] = true
	}

	total := 0
	for _, line := range lines {
		total += len(line)
		for i := 0; i+1 < len(line); i++ {
			if !segments[pair{points[line[i]], points[line[i+1]]}] {
				t.Fatalf("entries %d and %d of %v are not joined by a segment", i, i+1, line)
			}
		}
	}

	main := lines[0]
	if len(main) != 4 {
		t.Fatalf("expected the first chain to hold 4 points, got %v", main)
	}
	orientByU(points, main)
	want := []mgl32.Vec2{{0, 0}, {1, 0}, {2, 1}, {3, 1}}
	for i, idx := range main {
		if points[idx] != want[i] {
			t.Fatalf("point %d = %v, want %v", i, points[idx], want[i])
		}
	}
	if total != 6 {
		t.Fatalf("expected 6 chained points, got %d", total)
	}
}

func TestSortVerticesEmpty(t *testing.T) {
	if lines := SortVertices(nil); lines != nil {
		t.Fatalf("expected no polylines, got %v", lines)
	}
}

func wavySampler(amplitude, frequency float64) density.Sampler {
	return density.SamplerFunc(func(p mgl32.Vec3) density.Sample {
		x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
		d := 2.5 - y + amplitude*math.Sin(frequency*z) + amplitude*math.Cos(frequency*x)
		return density.Sample{
			Density: float32(d),
			Gradient: mgl32.Vec3{
				float32(-amplitude * frequency * math.Sin(frequency*x)),
				-1,
				float32(amplitude * frequency * math.Cos(frequency*z)),
			},
		}
	})
}

func sampleBlock(s density.Sampler, origin mgl32.Vec3, count [3]int) *density.Grid {
	grid := &density.Grid{}
	density.SampleGrid(s, origin, mgl32.Vec3{1, 1, 1}, count, grid)
	return grid
}

func orderedFace(grid *density.Grid, f Face) []mgl32.Vec2 {
	var c Contour
	ExtractFace(grid, f, 0, &c)
	var out []mgl32.Vec2
	for _, line := range SortVertices(c.Points) {
		orientByU(c.Points, line)
		for _, idx := range line {
			out = append(out, c.Points[idx])
		}
	}
	return out
}

func TestAbuttingFacesProduceTheSamePolyline(t *testing.T) {
	s := wavySampler(0.6, 1.1)
	count := [3]int{4, 6, 4}
	a := sampleBlock(s, mgl32.Vec3{0, 0, 0}, count)

	cases := []struct {
		name     string
		neighbor mgl32.Vec3
		mine     Face
		theirs   Face
	}{
		{name: "x", neighbor: mgl32.Vec3{4, 0, 0}, mine: PosX, theirs: NegX},
		{name: "z", neighbor: mgl32.Vec3{0, 0, 4}, mine: PosZ, theirs: NegZ},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := sampleBlock(s, tc.neighbor, count)
			mine := orderedFace(a, tc.mine)
			theirs := orderedFace(b, tc.theirs)
			if len(mine) == 0 {
				t.Fatalf("expected the iso-line to cross the face")
			}
			if len(mine) != len(theirs) {
				t.Fatalf("polyline lengths differ: %d vs %d", len(mine), len(theirs))
			}
			for i := range mine {
				if mine[i] != theirs[i] {
					t.Fatalf("point %d differs: %v vs %v", i, mine[i], theirs[i])
				}
			}
		})
	}
}

func TestSkirtTrianglesFaceOutward(t *testing.T) {
	grid := sampleBlock(wavySampler(0.3, 0.5), mgl32.Vec3{-3, 0, 5}, [3]int{8, 6, 8})

	for _, f := range SideFaces {
		t.Run(f.String(), func(t *testing.T) {
			out := mesh.NewVertexData(0)
			added := NewBuilder(0, 4, []Face{f}).Build(grid, out)
			if added == 0 || out.TriangleCount() == 0 {
				t.Fatalf("expected skirt geometry on %s", f)
			}
			plane := out.Positions[0][layouts[f].axis]
			for i, p := range out.Positions {
				if p[layouts[f].axis] != plane {
					t.Fatalf("vertex %d left the face plane: %v", i, p)
				}
			}
			for i := 0; i < out.TriangleCount(); i++ {
				a, b, c := out.Triangle(i)
				n := b.Sub(a).Cross(c.Sub(a))
				if n.Len() < 1e-6 {
					continue
				}
				if n.Dot(f.Outward()) <= 0 {
					t.Fatalf("triangle %d on %s faces %v", i, f, n)
				}
			}
		})
	}
}

func TestBuildSkipsFacesWithoutCrossings(t *testing.T) {
	solid := density.SamplerFunc(func(mgl32.Vec3) density.Sample {
		return density.Sample{Density: 1, Gradient: mgl32.Vec3{0, -1, 0}}
	})
	grid := sampleBlock(solid, mgl32.Vec3{}, [3]int{3, 3, 3})
	out := mesh.NewVertexData(0)
	if n := NewBuilder(0, 2, SideFaces).Build(grid, out); n != 0 {
		t.Fatalf("expected no skirt for a solid block, got %d vertices", n)
	}
}

func TestSaddleUsesAverageCornerValue(t *testing.T) {
	cases := []struct {
		name  string
		solid float32
		want  [2]mgl32.Vec2
	}{
		{name: "separated", solid: 1, want: [2]mgl32.Vec2{{0, 0.5}, {0.5, 0}}},
		{name: "joined", solid: 3, want: [2]mgl32.Vec2{{0.75, 0}, {1, 0.25}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grid := &density.Grid{Scale: mgl32.Vec3{1, 1, 1}}
			grid.Resize([3]int{1, 1, 1})
			// NegX face corners are (x=0, y=j, z=k).
			grid.Set(0, 0, 0, density.Sample{Density: tc.solid})
			grid.Set(0, 0, 1, density.Sample{Density: -1})
			grid.Set(0, 1, 1, density.Sample{Density: tc.solid})
			grid.Set(0, 1, 0, density.Sample{Density: -1})

			var c Contour
			ExtractFace(grid, NegX, 0, &c)
			if c.SegmentCount() != 2 {
				t.Fatalf("expected 2 segments, got %d", c.SegmentCount())
			}
			got := map[mgl32.Vec2]bool{c.Points[0]: true, c.Points[1]: true}
			for _, p := range tc.want {
				if !got[p] {
					t.Fatalf("first segment %v missing %v", c.Points[:2], p)
				}
			}
		})
	}
}

func TestParseFaces(t *testing.T) {
	faces, err := ParseFaces(nil)
	if err != nil || len(faces) != 4 {
		t.Fatalf("expected all side faces by default, got %v (%v)", faces, err)
	}
	faces, err = ParseFaces([]string{"+z", "-x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if faces[0] != PosZ || faces[1] != NegX {
		t.Fatalf("unexpected faces %v", faces)
	}
	if _, err := ParseFaces([]string{"+y"}); err == nil {
		t.Fatalf("expected top face to be rejected")
	}
}

func TestSkirtBottomSitsBelowLowestPoint(t *testing.T) {
	slope := density.SamplerFunc(func(p mgl32.Vec3) density.Sample {
		return density.Sample{Density: 2.3 - p[1] + 0.5*p[2], Gradient: mgl32.Vec3{0, -1, 0.5}}
	})
	grid := sampleBlock(slope, mgl32.Vec3{}, [3]int{4, 6, 4})

	var c Contour
	ExtractFace(grid, NegX, 0, &c)
	if lines := SortVertices(c.Points); len(lines) != 1 {
		t.Fatalf("expected a single polyline, got %d", len(lines))
	}

	const depth = 2
	out := mesh.NewVertexData(0)
	added := NewBuilder(0, depth, []Face{NegX}).Build(grid, out)
	if added < 4 {
		t.Fatalf("expected a polyline and two bottom vertices, got %d vertices", added)
	}
	line := out.Positions[:added-2]
	minY, maxY := line[0][1], line[0][1]
	for _, p := range line[1:] {
		minY = min(minY, p[1])
		maxY = max(maxY, p[1])
	}
	if maxY-minY < 1.5 {
		t.Fatalf("expected a sloped polyline, y spans %v..%v", minY, maxY)
	}
	if math.Abs(float64(minY)-2.3) > 1e-4 {
		t.Fatalf("lowest polyline point at y=%v, want 2.3", minY)
	}

	first, last := out.Positions[added-2], out.Positions[added-1]
	for _, b := range []mgl32.Vec3{first, last} {
		if b[1] != minY-depth {
			t.Fatalf("bottom vertex %v, want y=%v", b, minY-depth)
		}
		if b[0] != 0 {
			t.Fatalf("bottom vertex %v left the face plane", b)
		}
	}
	if first[2] != 0 || last[2] != 4 {
		t.Fatalf("bottom vertices %v and %v do not span the face", first, last)
	}
	if got, want := out.TriangleCount(), len(line); got != want {
		t.Fatalf("expected %d fan triangles, got %d", want, got)
	}
}
