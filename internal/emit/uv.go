package emit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"usd-instancer/internal/scene"
)

var (
	errNoGeometry  = errors.New("mesh has no points or faces")
	errFlatBounds  = errors.New("mesh bounds have no extent")
	errBadTopology = errors.New("face vertex index out of range")
	errShortPoint  = errors.New("point has fewer than three components")
)

// PlanarUVs projects points onto the plane of the two largest bounding box
// axes and returns one coordinate per face corner, normalized to [0,1].
func PlanarUVs(points []scene.Tuple, indices []int64) ([]scene.Tuple, error) {
	if len(points) == 0 || len(indices) == 0 {
		return nil, errNoGeometry
	}
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, p := range points {
		if len(p) < 3 {
			return nil, errShortPoint
		}
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], p[k])
			hi[k] = math.Max(hi[k], p[k])
		}
	}

	// u is the widest axis and v the next widest; ties keep axis order.
	ext := [3]float64{hi[0] - lo[0], hi[1] - lo[1], hi[2] - lo[2]}
	order := []int{0, 1, 2}
	sort.SliceStable(order, func(i, j int) bool { return ext[order[i]] > ext[order[j]] })
	u, v := order[0], order[1]
	if ext[u] <= 0 {
		return nil, errFlatBounds
	}
	spanV := ext[v]
	if spanV <= 0 {
		spanV = 1
	}

	out := make([]scene.Tuple, len(indices))
	for i, idx := range indices {
		if idx < 0 || int(idx) >= len(points) {
			return nil, fmt.Errorf("%w: %d", errBadTopology, idx)
		}
		p := points[idx]
		out[i] = scene.Tuple{(p[u] - lo[u]) / ext[u], (p[v] - lo[v]) / spanV}
	}
	return out, nil
}
