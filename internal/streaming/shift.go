package streaming

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ShiftMapping moves every slot by -Shift blocks. Targets[old] is the slot
// the record at old moves to, or -1 when it leaves the grid.
type ShiftMapping struct {
	Shift   [3]int
	Targets []int
}

// MappingStats summarises one ApplyBlockMapping pass.
type MappingStats struct {
	Shifted  int
	Evicted  int
	Incident int
	Queued   int
}

// CalculateTerrainShiftMapping picks the nearest of the 27 block centers
// around refCenter to position. When that is a neighbour it commits the move
// to refCenter and sampleOffset and returns the slot mapping; otherwise it
// returns nil and leaves both untouched.
func CalculateTerrainShiftMapping(position, blockDimensions mgl32.Vec3, blockCount [3]int, refCenter, sampleOffset *mgl32.Vec3) *ShiftMapping {
	rel := position.Sub(*refCenter)

	var best [3]int
	bestDist := rel.LenSqr()
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				candidate := mgl32.Vec3{
					float32(dx) * blockDimensions[0],
					float32(dy) * blockDimensions[1],
					float32(dz) * blockDimensions[2],
				}
				if d := rel.Sub(candidate).LenSqr(); d < bestDist {
					bestDist = d
					best = [3]int{dx, dy, dz}
				}
			}
		}
	}
	if best == ([3]int{}) {
		return nil
	}

	step := mgl32.Vec3{
		float32(best[0]) * blockDimensions[0],
		float32(best[1]) * blockDimensions[1],
		float32(best[2]) * blockDimensions[2],
	}
	*refCenter = refCenter.Add(step)
	*sampleOffset = sampleOffset.Add(step)

	total := blockCount[0] * blockCount[1] * blockCount[2]
	mapping := &ShiftMapping{Shift: best, Targets: make([]int, total)}
	for slot := range mapping.Targets {
		idx := slot3D(slot, blockCount)
		for axis := 0; axis < 3; axis++ {
			idx[axis] -= best[axis]
		}
		target, _ := slotIndex(idx, blockCount)
		mapping.Targets[slot] = target
	}
	return mapping
}

// CalculateTerrainShiftMapping runs the shift calculation against this
// state's center.
func (s *State) CalculateTerrainShiftMapping(position mgl32.Vec3) *ShiftMapping {
	return CalculateTerrainShiftMapping(position, s.BlockDimensions, s.BlockCount, &s.RealCenter, &s.SampleOffset)
}

// ApplyBlockMapping moves records to their new slots. All shifts are applied
// before any incidence so a record is never handed out and evicted in the
// same pass. Evicted records have their resources queued for release and
// return to the free list; incident slots take a free record with reset
// flags and are queued unconditionally. A shifted record is queued only
// when its new slot's level is neither generated nor known to be empty, or
// when its vegetation was placed for another level.
//
// Running out of free records means the slot accounting is broken and
// panics.
func (s *State) ApplyBlockMapping(m *ShiftMapping) MappingStats {
	var stats MappingStats
	if m == nil {
		return stats
	}
	if len(m.Targets) != len(s.BlockDataIndices) {
		panic(fmt.Sprintf("streaming: mapping covers %d slots, grid has %d", len(m.Targets), len(s.BlockDataIndices)))
	}

	next := make([]int, len(s.BlockDataIndices))
	for i := range next {
		next[i] = -1
	}
	for old, target := range m.Targets {
		if target < 0 {
			continue
		}
		if next[target] >= 0 {
			panic(fmt.Sprintf("streaming: slot %d receives two records", target))
		}
		next[target] = s.BlockDataIndices[old]
		stats.Shifted++
	}

	for old, target := range m.Targets {
		if target >= 0 {
			continue
		}
		rec := s.BlockDataIndices[old]
		s.evict(rec)
		s.free = append(s.free, rec)
		stats.Evicted++
	}

	s.pending = s.pending[:0]
	for i := range s.queued {
		s.queued[i] = false
	}

	for slot, rec := range next {
		if rec >= 0 {
			if s.needsGeneration(slot, rec) {
				s.queue(slot)
				stats.Queued++
			}
			continue
		}
		if len(s.free) == 0 {
			panic(fmt.Sprintf("streaming: no free record for incident slot %d", slot))
		}
		rec = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
		s.Records[rec].resetFlags()
		next[slot] = rec
		s.queue(slot)
		stats.Incident++
		stats.Queued++
	}

	s.BlockDataIndices = next
	return stats
}

// needsGeneration reports whether record rec must be queued to serve slot.
// Vegetation left over from another level on an empty level is dropped
// here since there is nothing to place it on.
func (s *State) needsGeneration(slot, rec int) bool {
	r := &s.Records[rec]
	lod := s.LODLevels[slot]
	if !r.Generated(lod) {
		return true
	}
	if len(r.Vegetation) == 0 || r.VegetationLOD == lod {
		return false
	}
	if r.Empty[lod] {
		s.dropVegetation(r)
		r.VegetationLOD = lod
		return false
	}
	return true
}
