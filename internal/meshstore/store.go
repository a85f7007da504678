// Package meshstore is the boundary between terrain generation and whatever
// owns device-side buffers. Generation uploads finished meshes and instance
// buffers and later hands the returned handles back for release.
package meshstore

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/mesh"
	"terrainstream/internal/vegetation"
)

// Handle identifies one uploaded resource. The zero value is never issued.
type Handle string

var ErrUnknownHandle = errors.New("meshstore: unknown handle")

// MeshInfo locates an uploaded block mesh.
type MeshInfo struct {
	Slot   int
	LOD    int
	Origin mgl32.Vec3
}

// InstanceInfo locates an uploaded vegetation buffer.
type InstanceInfo struct {
	Slot int
	LOD  int
	Type string
	Mesh string
}

// Store receives finished geometry. Implementations must copy what they keep;
// callers may reuse the buffers after an upload returns.
type Store interface {
	UploadMesh(info MeshInfo, m *mesh.VertexData) (Handle, error)
	UploadInstances(info InstanceInfo, in *vegetation.Instances) (Handle, error)
	Release(h Handle) error
}

// ReleaseAll releases every non-zero handle and joins the failures.
func ReleaseAll(s Store, handles []Handle) error {
	var errs []error
	for _, h := range handles {
		if h == "" {
			continue
		}
		if err := s.Release(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
