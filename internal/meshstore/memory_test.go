package meshstore

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/mesh"
	"terrainstream/internal/vegetation"
)

func triangle() *mesh.VertexData {
	m := mesh.NewVertexData(3)
	up := mgl32.Vec3{0, 1, 0}
	a := m.AddVertex(mgl32.Vec3{0, 0, 0}, up)
	b := m.AddVertex(mgl32.Vec3{0, 0, 1}, up)
	c := m.AddVertex(mgl32.Vec3{1, 0, 0}, up)
	m.AddTriangle(a, b, c)
	return m
}

func TestMemoryUploadCopiesAndReleases(t *testing.T) {
	store := NewMemory()
	src := triangle()

	h, err := store.UploadMesh(MeshInfo{Slot: 3, LOD: 1}, src)
	if err != nil {
		t.Fatalf("upload mesh: %v", err)
	}
	if h == "" {
		t.Fatalf("expected a handle")
	}
	src.Positions[0] = mgl32.Vec3{9, 9, 9}

	info, stored, ok := store.Mesh(h)
	if !ok {
		t.Fatalf("expected mesh %s to be stored", h)
	}
	if info.Slot != 3 || info.LOD != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
	if stored.Positions[0] != (mgl32.Vec3{}) {
		t.Fatalf("store kept a reference to the caller's buffer")
	}

	inst := &vegetation.Instances{Items: []vegetation.Instance{{Position: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.QuatIdent()}}}
	ih, err := store.UploadInstances(InstanceInfo{Slot: 3, Type: "grass"}, inst)
	if err != nil {
		t.Fatalf("upload instances: %v", err)
	}
	if ih == h {
		t.Fatalf("expected distinct handles")
	}

	if stats := store.Stats(); stats.Meshes != 1 || stats.Instances != 1 || stats.Uploads != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := ReleaseAll(store, []Handle{h, "", ih}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if stats := store.Stats(); stats.Meshes != 0 || stats.Instances != 0 || stats.Releases != 2 {
		t.Fatalf("unexpected stats after release %+v", stats)
	}
}

func TestMemoryRejectsDoubleRelease(t *testing.T) {
	store := NewMemory()
	h, err := store.UploadMesh(MeshInfo{}, triangle())
	if err != nil {
		t.Fatalf("upload mesh: %v", err)
	}
	if err := store.Release(h); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := store.Release(h); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestMemoryRejectsEmptyUploads(t *testing.T) {
	store := NewMemory()
	if _, err := store.UploadMesh(MeshInfo{}, mesh.NewVertexData(0)); err == nil {
		t.Fatalf("expected empty mesh upload to fail")
	}
	if _, err := store.UploadInstances(InstanceInfo{Type: "grass"}, &vegetation.Instances{}); err == nil {
		t.Fatalf("expected empty instance upload to fail")
	}
}
