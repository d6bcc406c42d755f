package stack

import (
	"github.com/mrsinham/dcmstack/internal/volume"
)

// Data assembles the voxel array. Each slice lands in the cell given by its
// sorted spatial, time and vector ordinates; dummy cells hold
// Config.Fill().
func (s *Stack) Data() (*volume.Array, error) {
	g, err := s.resolve()
	if err != nil {
		return nil, err
	}

	out := volume.New(g.shape...)
	plane := g.rows * g.cols
	fill := s.cfg.Fill()
	for c, sl := range g.cells {
		base := c * plane
		if sl.IsDummy() {
			for i := base; i < base+plane; i++ {
				out.Data[i] = fill
			}
			continue
		}
		for r := 0; r < g.rows; r++ {
			row := sl.Pixels[r*g.cols : (r+1)*g.cols]
			for col, v := range row {
				out.Data[base+r+g.rows*col] = v
			}
		}
	}
	return out, nil
}
