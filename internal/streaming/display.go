package streaming

import (
	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/mesh"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/vegetation"
)

// DisplayMesh is a block mesh visible at its slot's current level.
type DisplayMesh struct {
	Slot   int
	LOD    int
	Origin mgl32.Vec3
	Mesh   *mesh.VertexData
	Handle meshstore.Handle
}

// DisplayInstances is a non-empty vegetation buffer of a visible block.
type DisplayInstances struct {
	Slot      int
	Type      int
	Instances *vegetation.Instances
	Handle    meshstore.Handle
}

type Display struct {
	Meshes     []DisplayMesh
	Vegetation []DisplayInstances
}

// ExtractDisplayMeshes lists every non-empty mesh and vegetation buffer at
// each slot's current level. It does not modify the state.
func (s *State) ExtractDisplayMeshes() Display {
	var d Display
	for slot, rec := range s.BlockDataIndices {
		r := &s.Records[rec]
		lod := s.LODLevels[slot]
		m := r.Meshes[lod]
		if m.Empty() {
			continue
		}
		d.Meshes = append(d.Meshes, DisplayMesh{
			Slot:   slot,
			LOD:    lod,
			Origin: s.SlotOrigin(slot),
			Mesh:   m,
			Handle: r.Handles[lod],
		})
		if r.VegetationLOD != lod {
			continue
		}
		for t, in := range r.Vegetation {
			if in.Empty() {
				continue
			}
			d.Vegetation = append(d.Vegetation, DisplayInstances{
				Slot:      slot,
				Type:      t,
				Instances: in,
				Handle:    r.VegetationHandles[t],
			})
		}
	}
	return d
}

// Bounds is the union of every displayed mesh's bounds.
func (d Display) Bounds() mesh.Box {
	box := mesh.EmptyBox()
	for _, m := range d.Meshes {
		box = box.Union(m.Mesh.Bounds())
	}
	return box
}

func (d Display) TriangleCount() int {
	n := 0
	for _, m := range d.Meshes {
		n += m.Mesh.TriangleCount()
	}
	return n
}
