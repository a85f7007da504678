package vegetation

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/mesh"
)

// flatQuad returns an upward facing 10x10 square at height y.
func flatQuad(y float32) *mesh.VertexData {
	m := mesh.NewVertexData(4)
	up := mgl32.Vec3{0, 1, 0}
	a := m.AddVertex(mgl32.Vec3{0, y, 0}, up)
	b := m.AddVertex(mgl32.Vec3{0, y, 10}, up)
	c := m.AddVertex(mgl32.Vec3{10, y, 10}, up)
	d := m.AddVertex(mgl32.Vec3{10, y, 0}, up)
	m.AddTriangle(a, b, c)
	m.AddTriangle(a, c, d)
	return m
}

func grass(densities ...float64) Type {
	return Type{
		Name:      "grass",
		Densities: densities,
		Bounds:    mesh.Box{Min: mgl32.Vec3{-0.5, -0.5, 0}, Max: mgl32.Vec3{0.5, 0.5, 1}},
	}
}

func countingPlacer() (*Placer, *int) {
	p := NewPlacer()
	calls := 0
	p.rotate = func(angle float32, axis mgl32.Vec3) mgl32.Quat {
		calls++
		return mgl32.QuatRotate(angle, axis)
	}
	return p, &calls
}

func TestPlaceCountFollowsDensity(t *testing.T) {
	cases := []struct {
		name    string
		density float64
		want    int
	}{
		{name: "sparse", density: 0.1, want: 10},
		{name: "rounded", density: 0.034, want: 3},
		{name: "none", density: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, calls := countingPlacer()
			got := p.Place(flatQuad(2), grass(tc.density), 0, 10*10)
			if len(got.Items) != tc.want {
				t.Fatalf("expected %d instances, got %d", tc.want, len(got.Items))
			}
			if *calls != tc.want {
				t.Fatalf("expected %d orientation draws, got %d", tc.want, *calls)
			}
		})
	}
}

func TestPlaceUsesDensityOfLOD(t *testing.T) {
	p := NewPlacer()
	typ := grass(0.1, 0.05)
	if n := len(p.Place(flatQuad(0), typ, 1, 100).Items); n != 5 {
		t.Fatalf("expected 5 instances at lod 1, got %d", n)
	}
	if n := len(p.Place(flatQuad(0), typ, 2, 100).Items); n != 0 {
		t.Fatalf("expected no instances past configured levels, got %d", n)
	}
}

func TestPlaceOnEmptyMesh(t *testing.T) {
	p, calls := countingPlacer()
	got := p.Place(mesh.NewVertexData(0), grass(1), 0, 100)
	if !got.Empty() || *calls != 0 {
		t.Fatalf("expected nothing placed on an empty mesh, got %d (%d draws)", len(got.Items), *calls)
	}
	if got.Bounds.Valid() {
		t.Fatalf("expected invalid bounds for an empty placement")
	}
}

func TestPlaceIsRepeatable(t *testing.T) {
	p := NewPlacer()
	m := flatQuad(3)
	first := p.Place(m, grass(0.2), 0, 100)
	second := p.Place(m, grass(0.2), 0, 100)
	if len(first.Items) != len(second.Items) {
		t.Fatalf("instance counts differ: %d vs %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i] != second.Items[i] {
			t.Fatalf("instance %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}

	other := grass(0.2)
	other.SeedOffset = 0x9e3779b9
	shifted := p.Place(m, other, 0, 100)
	same := true
	for i := range first.Items {
		if first.Items[i].Position != shifted.Items[i].Position {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected a different seed offset to move instances")
	}
}

func TestPlacedInstancesSitOnSurfaceFacingNormal(t *testing.T) {
	p := NewPlacer()
	got := p.Place(flatQuad(4), grass(0.3), 0, 100)
	if len(got.Items) != 30 {
		t.Fatalf("expected 30 instances, got %d", len(got.Items))
	}
	for i, inst := range got.Items {
		pos := inst.Position
		if pos[1] < 3.999 || pos[1] > 4.001 {
			t.Fatalf("instance %d off the surface: %v", i, pos)
		}
		if pos[0] < 0 || pos[0] > 10 || pos[2] < 0 || pos[2] > 10 {
			t.Fatalf("instance %d outside the quad: %v", i, pos)
		}
		up := inst.Rotation.Rotate(mgl32.Vec3{0, 0, 1})
		if up.Sub(mgl32.Vec3{0, 1, 0}).Len() > 1e-4 {
			t.Fatalf("instance %d local +Z maps to %v, want surface normal", i, up)
		}
		for _, c := range grass().Bounds.Corners() {
			w := mgl32.TransformCoordinate(c, inst.Matrix())
			for axis := 0; axis < 3; axis++ {
				if w[axis] < got.Bounds.Min[axis]-1e-4 || w[axis] > got.Bounds.Max[axis]+1e-4 {
					t.Fatalf("instance %d corner %v outside buffer bounds %+v", i, w, got.Bounds)
				}
			}
		}
	}
}

func TestSeedFoldsFirstVertex(t *testing.T) {
	m := flatQuad(1)
	if Seed(m, 0) == Seed(m, 1) {
		t.Fatalf("expected offset to change the seed")
	}
	if Seed(flatQuad(1), 7) != Seed(m, 7) {
		t.Fatalf("expected identical meshes to share a seed")
	}
}

func TestTypesFromConfig(t *testing.T) {
	types := TypesFromConfig([]config.VegetationConfig{{
		Name:       "shrub",
		Mesh:       "meshes/shrub.obj",
		Densities:  []float64{0.01, 0.005},
		BoundsMin:  config.Vector3{-1, -1, 0},
		BoundsMax:  config.Vector3{1, 1, 2},
		SeedOffset: 17,
	}})
	if len(types) != 1 {
		t.Fatalf("expected one type, got %d", len(types))
	}
	typ := types[0]
	if typ.Name != "shrub" || typ.SeedOffset != 17 || typ.Density(1) != 0.005 {
		t.Fatalf("unexpected type %+v", typ)
	}
	if typ.Bounds.Max != (mgl32.Vec3{1, 1, 2}) {
		t.Fatalf("unexpected bounds %+v", typ.Bounds)
	}
}
