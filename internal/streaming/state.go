// Package streaming keeps a grid of generated terrain blocks centred on a
// moving reference point. When the point crosses into a neighbouring block
// the grid shifts: records that stay in range move to their new slot,
// records that fall out of range are released and reused for the slots that
// became incident.
package streaming

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"terrainstream/internal/config"
	"terrainstream/internal/mesh"
	"terrainstream/internal/meshstore"
	"terrainstream/internal/vegetation"
)

// Record is the generated data backing one slot. Meshes, Handles and Empty
// are indexed by detail level; a nil mesh with Empty unset means the level
// has not been generated yet.
type Record struct {
	Meshes  []*mesh.VertexData
	Handles []meshstore.Handle
	Empty   []bool
	// InteriorIndices counts the leading indices of each mesh that belong
	// to the isosurface; the rest are skirt triangles.
	InteriorIndices []int

	// Vegetation holds one buffer per vegetation type, placed on the mesh of
	// VegetationLOD. VegetationLOD is -1 before the first placement.
	Vegetation        []*vegetation.Instances
	VegetationHandles []meshstore.Handle
	VegetationLOD     int
}

func newRecord(lods, types int) Record {
	return Record{
		Meshes:            make([]*mesh.VertexData, lods),
		Handles:           make([]meshstore.Handle, lods),
		Empty:             make([]bool, lods),
		InteriorIndices:   make([]int, lods),
		Vegetation:        make([]*vegetation.Instances, types),
		VegetationHandles: make([]meshstore.Handle, types),
		VegetationLOD:     -1,
	}
}

// Generated reports whether level lod has been produced, with or without
// geometry.
func (r *Record) Generated(lod int) bool {
	return r.Meshes[lod] != nil || r.Empty[lod]
}

func (r *Record) resetFlags() {
	for i := range r.Empty {
		r.Empty[i] = false
	}
}

// Params configures a State.
type Params struct {
	ReferenceCenter mgl32.Vec3
	BlockCount      [3]int
	BlockDimensions mgl32.Vec3
	BaseCubeCount   [3]int
	LODDistances    []float64
	UpdateDistance  float32
	VegetationTypes int
}

func ParamsFromConfig(cfg config.TerrainConfig, vegetationTypes int) Params {
	return Params{
		ReferenceCenter: vec3(cfg.ReferenceCenter),
		BlockCount:      [3]int(cfg.BlockCount),
		BlockDimensions: vec3(cfg.BlockDimensions),
		BaseCubeCount:   [3]int(cfg.BaseCubeCount),
		LODDistances:    append([]float64(nil), cfg.LODDistances...),
		UpdateDistance:  float32(cfg.UpdateDistance),
		VegetationTypes: vegetationTypes,
	}
}

func vec3(v config.Vector3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// State is the slot to record mapping of one streamed terrain. It is not
// safe for concurrent use; the Manager serialises access.
type State struct {
	// RealCenter is the world-space center of the center block and
	// SampleOffset its minimum corner.
	RealCenter      mgl32.Vec3
	SampleOffset    mgl32.Vec3
	BlockCount      [3]int
	BlockDimensions mgl32.Vec3
	UpdateDistance  float32

	LODDistances []float64
	LODParams    []LODParams
	LODLevels    []int

	// BlockDataIndices maps each slot to the record backing it.
	BlockDataIndices []int
	Records          []Record

	free     []int
	pending  []int
	queued   []bool
	releases []meshstore.Handle
}

// NewState lays out the grid around p.ReferenceCenter with one fresh record
// per slot, every slot queued for generation.
func NewState(p Params) (*State, error) {
	for axis := 0; axis < 3; axis++ {
		if p.BlockCount[axis] <= 0 {
			return nil, fmt.Errorf("block count %v must be positive on every axis", p.BlockCount)
		}
		if p.BlockDimensions[axis] <= 0 {
			return nil, fmt.Errorf("block dimensions %v must be positive on every axis", p.BlockDimensions)
		}
	}
	for i := 1; i < len(p.LODDistances); i++ {
		if p.LODDistances[i] <= p.LODDistances[i-1] {
			return nil, errors.New("lod distances must be strictly increasing")
		}
	}
	lodParams, err := BuildLODParams(p.BaseCubeCount, p.BlockDimensions, len(p.LODDistances)+1)
	if err != nil {
		return nil, err
	}

	total := p.BlockCount[0] * p.BlockCount[1] * p.BlockCount[2]
	s := &State{
		RealCenter:       p.ReferenceCenter,
		SampleOffset:     p.ReferenceCenter.Sub(p.BlockDimensions.Mul(0.5)),
		BlockCount:       p.BlockCount,
		BlockDimensions:  p.BlockDimensions,
		UpdateDistance:   p.UpdateDistance,
		LODDistances:     append([]float64(nil), p.LODDistances...),
		LODParams:        lodParams,
		LODLevels:        CalculateLODLevels(p.BlockCount, p.BlockDimensions, p.LODDistances),
		BlockDataIndices: make([]int, total),
		Records:          make([]Record, total),
		queued:           make([]bool, total),
	}
	for i := range s.Records {
		s.Records[i] = newRecord(len(lodParams), p.VegetationTypes)
		s.BlockDataIndices[i] = i
		s.queue(i)
	}
	return s, nil
}

func (s *State) SlotCount() int {
	return len(s.BlockDataIndices)
}

func (s *State) LODCount() int {
	return len(s.LODParams)
}

// SlotOrigin returns the world-space minimum corner of the block at slot.
func (s *State) SlotOrigin(slot int) mgl32.Vec3 {
	idx := slot3D(slot, s.BlockCount)
	var out mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		out[axis] = s.SampleOffset[axis] + float32(idx[axis]-s.BlockCount[axis]/2)*s.BlockDimensions[axis]
	}
	return out
}

// Footprint is the horizontal area of one block.
func (s *State) Footprint() float64 {
	return float64(s.BlockDimensions[0]) * float64(s.BlockDimensions[2])
}

// Record returns the record currently backing slot.
func (s *State) Record(slot int) *Record {
	return &s.Records[s.BlockDataIndices[slot]]
}

// Pending returns the queued slots in queue order.
func (s *State) Pending() []int {
	return append([]int(nil), s.pending...)
}

func (s *State) queue(slot int) {
	if s.queued[slot] {
		return
	}
	s.queued[slot] = true
	s.pending = append(s.pending, slot)
}

// takePending removes up to limit slots from the front of the queue. A limit
// of zero or less takes everything.
func (s *State) takePending(limit int) []int {
	n := len(s.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	taken := append([]int(nil), s.pending[:n]...)
	s.pending = append(s.pending[:0], s.pending[n:]...)
	for _, slot := range taken {
		s.queued[slot] = false
	}
	return taken
}

func (s *State) queueRelease(h meshstore.Handle) {
	if h != "" {
		s.releases = append(s.releases, h)
	}
}

// takeReleases hands over every handle queued for release.
func (s *State) takeReleases() []meshstore.Handle {
	out := s.releases
	s.releases = nil
	return out
}

// evict queues every uploaded resource of record for release and drops its
// generated data.
func (s *State) evict(record int) {
	r := &s.Records[record]
	for lod := range r.Meshes {
		s.queueRelease(r.Handles[lod])
		r.Handles[lod] = ""
		r.Meshes[lod] = nil
		r.InteriorIndices[lod] = 0
	}
	s.dropVegetation(r)
}

func (s *State) dropVegetation(r *Record) {
	for t := range r.Vegetation {
		s.queueRelease(r.VegetationHandles[t])
		r.VegetationHandles[t] = ""
		r.Vegetation[t] = nil
	}
	r.VegetationLOD = -1
}

// CheckInvariants verifies the slot to record accounting: every slot maps to
// a distinct record and every other record is on the free list exactly once.
func (s *State) CheckInvariants() error {
	total := s.BlockCount[0] * s.BlockCount[1] * s.BlockCount[2]
	if len(s.BlockDataIndices) != total {
		return fmt.Errorf("%d slot indices for %d slots", len(s.BlockDataIndices), total)
	}
	owner := make([]int, len(s.Records))
	for i := range owner {
		owner[i] = -1
	}
	for slot, rec := range s.BlockDataIndices {
		if rec < 0 || rec >= len(s.Records) {
			return fmt.Errorf("slot %d references record %d out of range", slot, rec)
		}
		if owner[rec] >= 0 {
			return fmt.Errorf("record %d referenced by slots %d and %d", rec, owner[rec], slot)
		}
		owner[rec] = slot
	}
	for _, rec := range s.free {
		if rec < 0 || rec >= len(s.Records) {
			return fmt.Errorf("free record %d out of range", rec)
		}
		switch {
		case owner[rec] == len(s.BlockDataIndices):
			return fmt.Errorf("record %d is on the free list twice", rec)
		case owner[rec] >= 0:
			return fmt.Errorf("record %d is free but referenced by slot %d", rec, owner[rec])
		}
		owner[rec] = len(s.BlockDataIndices)
	}
	for rec, slot := range owner {
		if slot < 0 {
			return fmt.Errorf("record %d is neither referenced nor free", rec)
		}
	}
	for _, slot := range s.pending {
		if !s.queued[slot] {
			return fmt.Errorf("slot %d pending but not flagged", slot)
		}
	}
	return nil
}
