package streaming

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// LODParams is the sampling resolution of a block at one detail level.
type LODParams struct {
	CubeCount [3]int
	CubeScale mgl32.Vec3
}

// BuildLODParams derives per-level resolutions: level l uses base/(l+1) cubes
// per axis. A level that would leave an axis without cubes is a
// configuration error.
func BuildLODParams(base [3]int, blockDimensions mgl32.Vec3, levels int) ([]LODParams, error) {
	if levels < 1 {
		return nil, fmt.Errorf("need at least one detail level, got %d", levels)
	}
	params := make([]LODParams, levels)
	for l := range params {
		var p LODParams
		for axis := 0; axis < 3; axis++ {
			p.CubeCount[axis] = base[axis] / (l + 1)
			if p.CubeCount[axis] < 1 {
				return nil, fmt.Errorf("lod %d: base cube count %v leaves axis %d without cubes", l, base, axis)
			}
			p.CubeScale[axis] = blockDimensions[axis] / float32(p.CubeCount[axis])
		}
		params[l] = p
	}
	return params, nil
}

// SelectLOD returns how many thresholds distance strictly exceeds.
func SelectLOD(distance float32, thresholds []float64) int {
	lod := 0
	for _, t := range thresholds {
		if float64(distance) > t {
			lod++
		}
	}
	return lod
}

// CalculateLODLevels assigns a detail level to every slot from the distance
// between the slot's block center and the center block. Slots keep their
// offset from the reference center across shifts, so the result only
// depends on the grid layout.
func CalculateLODLevels(blockCount [3]int, blockDimensions mgl32.Vec3, thresholds []float64) []int {
	total := blockCount[0] * blockCount[1] * blockCount[2]
	levels := make([]int, total)
	for slot := range levels {
		levels[slot] = SelectLOD(slotOffset(slot, blockCount, blockDimensions).Len(), thresholds)
	}
	return levels
}

// slotOffset is the vector from the center block's center to the slot's
// block center.
func slotOffset(slot int, blockCount [3]int, blockDimensions mgl32.Vec3) mgl32.Vec3 {
	idx := slot3D(slot, blockCount)
	var out mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		out[axis] = float32(idx[axis]-blockCount[axis]/2) * blockDimensions[axis]
	}
	return out
}

func slot3D(slot int, blockCount [3]int) [3]int {
	x := slot % blockCount[0]
	rest := slot / blockCount[0]
	return [3]int{x, rest % blockCount[1], rest / blockCount[1]}
}

func slotIndex(idx [3]int, blockCount [3]int) (int, bool) {
	for axis := 0; axis < 3; axis++ {
		if idx[axis] < 0 || idx[axis] >= blockCount[axis] {
			return -1, false
		}
	}
	return idx[0] + blockCount[0]*(idx[1]+blockCount[1]*idx[2]), true
}
