package stack

import (
	"fmt"
	"math"
	"slices"
)

// axisValue is an ordinate on the time or vector axis. Slices without the
// ordering key share the absent value, which sorts first.
type axisValue struct {
	ord Ordinate
	ok  bool
}

func (a axisValue) compare(b axisValue) int {
	switch {
	case a.ok == b.ok && !a.ok:
		return 0
	case !a.ok:
		return -1
	case !b.ok:
		return 1
	}
	return a.ord.Compare(b.ord)
}

// grid is the resolved layout of a complete stack.
type grid struct {
	rows, cols int
	spatial    []float64
	times      []axisValue
	vectors    []axisValue

	// cells holds one slice per grid position, spatial index fastest, then
	// time, then vector.
	cells []*Slice
	shape []int
}

// resolve derives the grid from the accepted slices. It fails with
// ErrInvalidStack unless every (spatial, time, vector) combination is filled
// exactly once and the slice positions are evenly spaced.
func (s *Stack) resolve() (*grid, error) {
	if len(s.entries) == 0 {
		return nil, fmt.Errorf("%w: no slices", ErrInvalidStack)
	}
	if s.ref == nil {
		return nil, fmt.Errorf("%w: only dummy slices", ErrInvalidStack)
	}

	g := &grid{rows: s.ref.Rows, cols: s.ref.Cols}
	for _, e := range s.entries {
		g.spatial = append(g.spatial, e.key.spatial)
		g.times = append(g.times, e.key.time)
		g.vectors = append(g.vectors, e.key.vector)
	}
	slices.Sort(g.spatial)
	g.spatial = slices.Compact(g.spatial)
	g.times = sortedDistinct(g.times)
	g.vectors = sortedDistinct(g.vectors)

	nS, nT, nV := len(g.spatial), len(g.times), len(g.vectors)
	if nS*nT*nV != len(s.entries) {
		return nil, fmt.Errorf("%w: %d slices do not fill %d positions x %d time points x %d vector components",
			ErrInvalidStack, len(s.entries), nS, nT, nV)
	}

	spatialIdx := make(map[float64]int, nS)
	for i, v := range g.spatial {
		spatialIdx[v] = i
	}
	timeIdx := indexOf(g.times)
	vectorIdx := indexOf(g.vectors)

	g.cells = make([]*Slice, len(s.entries))
	for _, e := range s.entries {
		c := spatialIdx[e.key.spatial] + nS*(timeIdx[e.key.time]+nT*vectorIdx[e.key.vector])
		if g.cells[c] != nil {
			return nil, fmt.Errorf("%w: grid position %d filled twice", ErrInvalidStack, c)
		}
		g.cells[c] = e.slice
	}

	if nS > 2 {
		step := g.spatial[1] - g.spatial[0]
		for i := 2; i < nS; i++ {
			d := g.spatial[i] - g.spatial[i-1]
			if math.Abs(d-step) > s.cfg.SpacingTolerance {
				return nil, fmt.Errorf("%w: slice spacing %.4f at position %d differs from %.4f, a slice is missing",
					ErrInvalidStack, d, i, step)
			}
		}
	}

	g.shape = []int{g.rows, g.cols, nS}
	switch {
	case s.cfg.VectorOrder != nil:
		g.shape = append(g.shape, nT, nV)
	case s.cfg.TimeOrder != nil && nT > 1:
		g.shape = append(g.shape, nT)
	}
	return g, nil
}

func sortedDistinct(vals []axisValue) []axisValue {
	slices.SortFunc(vals, axisValue.compare)
	return slices.CompactFunc(vals, func(a, b axisValue) bool { return a.compare(b) == 0 })
}

func indexOf(vals []axisValue) map[axisValue]int {
	idx := make(map[axisValue]int, len(vals))
	for i, v := range vals {
		idx[v] = i
	}
	return idx
}

// Shape returns the dimensions of the assembled volume: rows, columns and
// slice positions, then time points when a time ordering yields more than one,
// then time points and vector components whenever a vector ordering is
// configured.
func (s *Stack) Shape() ([]int, error) {
	g, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return g.shape, nil
}

// Ordered returns the slices in the order their pixels appear in Data.
func (s *Stack) Ordered() ([]*Slice, error) {
	g, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return g.cells, nil
}
