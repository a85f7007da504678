package skirt

import "github.com/go-gl/mathgl/mgl32"

// SortVertices chains unordered segments into polylines. Segment i joins
// points[2i] and points[2i+1]; segments connect where their endpoints are
// exactly equal. Each returned polyline lists indices into points such that
// consecutive entries are joined by a segment. Chains grow forwards and then
// backwards until nothing else attaches, and the search restarts from the
// first unused segment until every segment belongs to a polyline.
func SortVertices(points []mgl32.Vec2) [][]int {
	segments := len(points) / 2
	if segments == 0 {
		return nil
	}

	ends := make(map[mgl32.Vec2][]int, len(points))
	for i := 0; i < segments*2; i++ {
		ends[points[i]] = append(ends[points[i]], i)
	}
	used := make([]bool, segments)

	// next finds an unused segment touching p and returns the index of its
	// opposite endpoint.
	next := func(p mgl32.Vec2) (int, bool) {
		for _, idx := range ends[p] {
			seg := idx / 2
			if used[seg] {
				continue
			}
			used[seg] = true
			return idx ^ 1, true
		}
		return 0, false
	}

	var lines [][]int
	for s := 0; s < segments; s++ {
		if used[s] {
			continue
		}
		used[s] = true
		line := []int{2 * s, 2*s + 1}

		for {
			idx, ok := next(points[line[len(line)-1]])
			if !ok {
				break
			}
			line = append(line, idx)
		}

		var head []int
		for {
			first := line[0]
			if len(head) > 0 {
				first = head[len(head)-1]
			}
			idx, ok := next(points[first])
			if !ok {
				break
			}
			head = append(head, idx)
		}
		if len(head) > 0 {
			joined := make([]int, 0, len(head)+len(line))
			for i := len(head) - 1; i >= 0; i-- {
				joined = append(joined, head[i])
			}
			line = append(joined, line...)
		}

		lines = append(lines, line)
	}
	return lines
}

// orientByU reverses line in place when it runs towards decreasing u.
func orientByU(points []mgl32.Vec2, line []int) {
	if len(line) < 2 || points[line[0]][0] <= points[line[len(line)-1]][0] {
		return
	}
	for i, j := 0, len(line)-1; i < j; i, j = i+1, j-1 {
		line[i], line[j] = line[j], line[i]
	}
}
