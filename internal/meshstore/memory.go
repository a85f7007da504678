package meshstore

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"terrainstream/internal/mesh"
	"terrainstream/internal/vegetation"
)

// Memory keeps uploaded resources in process. It backs tests and headless
// runs where no renderer is attached.
type Memory struct {
	mu        sync.RWMutex
	meshes    map[Handle]memoryMesh
	instances map[Handle]memoryInstances
	uploads   int
	releases  int
}

type memoryMesh struct {
	info MeshInfo
	data *mesh.VertexData
}

type memoryInstances struct {
	info  InstanceInfo
	items []vegetation.Instance
}

func NewMemory() *Memory {
	return &Memory{
		meshes:    make(map[Handle]memoryMesh),
		instances: make(map[Handle]memoryInstances),
	}
}

func (m *Memory) UploadMesh(info MeshInfo, data *mesh.VertexData) (Handle, error) {
	if data.Empty() {
		return "", fmt.Errorf("upload mesh for slot %d: no vertices", info.Slot)
	}
	h := Handle(uuid.NewString())
	m.mu.Lock()
	m.meshes[h] = memoryMesh{info: info, data: data.Clone()}
	m.uploads++
	m.mu.Unlock()
	return h, nil
}

func (m *Memory) UploadInstances(info InstanceInfo, in *vegetation.Instances) (Handle, error) {
	if in.Empty() {
		return "", fmt.Errorf("upload %s instances for slot %d: buffer is empty", info.Type, info.Slot)
	}
	dup := make([]vegetation.Instance, len(in.Items))
	copy(dup, in.Items)
	h := Handle(uuid.NewString())
	m.mu.Lock()
	m.instances[h] = memoryInstances{info: info, items: dup}
	m.uploads++
	m.mu.Unlock()
	return h, nil
}

func (m *Memory) Release(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meshes[h]; ok {
		delete(m.meshes, h)
		m.releases++
		return nil
	}
	if _, ok := m.instances[h]; ok {
		delete(m.instances, h)
		m.releases++
		return nil
	}
	return fmt.Errorf("release %q: %w", h, ErrUnknownHandle)
}

// Mesh returns a copy of an uploaded mesh.
func (m *Memory) Mesh(h Handle) (MeshInfo, *mesh.VertexData, bool) {
	m.mu.RLock()
	entry, ok := m.meshes[h]
	m.mu.RUnlock()
	if !ok {
		return MeshInfo{}, nil, false
	}
	return entry.info, entry.data.Clone(), true
}

// Instances returns a copy of an uploaded instance buffer.
func (m *Memory) Instances(h Handle) (InstanceInfo, []vegetation.Instance, bool) {
	m.mu.RLock()
	entry, ok := m.instances[h]
	m.mu.RUnlock()
	if !ok {
		return InstanceInfo{}, nil, false
	}
	dup := make([]vegetation.Instance, len(entry.items))
	copy(dup, entry.items)
	return entry.info, dup, true
}

// Stats reports live resources and lifetime upload and release counts.
type Stats struct {
	Meshes    int
	Instances int
	Uploads   int
	Releases  int
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Meshes:    len(m.meshes),
		Instances: len(m.instances),
		Uploads:   m.uploads,
		Releases:  m.releases,
	}
}
