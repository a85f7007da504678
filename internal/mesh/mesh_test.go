package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCloneDetachesFromWorkBuffer(t *testing.T) {
	work := NewVertexData(4)
	up := mgl32.Vec3{0, 1, 0}
	work.AddTriangle(work.AddVertex(mgl32.Vec3{0, 0, 0}, up), work.AddVertex(mgl32.Vec3{0, 0, 1}, up), work.AddVertex(mgl32.Vec3{1, 0, 0}, up))

	clone := work.Clone()
	work.Reset()
	work.AddVertex(mgl32.Vec3{9, 9, 9}, up)

	if clone.VertexCount() != 3 || clone.TriangleCount() != 1 {
		t.Fatalf("clone changed with the work buffer: %d vertices %d triangles", clone.VertexCount(), clone.TriangleCount())
	}
	if a, _, _ := clone.Triangle(0); a != (mgl32.Vec3{}) {
		t.Fatalf("clone vertex overwritten: %v", a)
	}
	if (*VertexData)(nil).Clone() != nil || !(*VertexData)(nil).Empty() {
		t.Fatalf("nil buffers should stay nil and empty")
	}
}

func TestBoxUnionAndTransform(t *testing.T) {
	if EmptyBox().Valid() {
		t.Fatalf("empty box should be invalid")
	}
	a := EmptyBox().Extend(mgl32.Vec3{0, 0, 0}).Extend(mgl32.Vec3{1, 2, 3})
	if u := EmptyBox().Union(a); u != a {
		t.Fatalf("union with an empty box: %+v", u)
	}
	b := Box{Min: mgl32.Vec3{-1, 1, 1}, Max: mgl32.Vec3{0, 5, 2}}
	if u := a.Union(b); u != (Box{Min: mgl32.Vec3{-1, 0, 0}, Max: mgl32.Vec3{1, 5, 3}}) {
		t.Fatalf("unexpected union %+v", u)
	}

	m := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90)))
	got := a.Transform(m)
	want := Box{Min: mgl32.Vec3{10, 0, -1}, Max: mgl32.Vec3{13, 2, 0}}
	if got.Min.Sub(want.Min).Len() > 1e-5 || got.Max.Sub(want.Max).Len() > 1e-5 {
		t.Fatalf("transformed box %+v, want %+v", got, want)
	}
}
