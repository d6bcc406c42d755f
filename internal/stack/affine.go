package stack

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Affine returns the 4x4 transform from (row, column, slice) voxel indices to
// patient coordinates.
//
// Column 0 steps one row down the image, column 1 one column along it.
// Column 2 is the displacement between the first two slice positions, or the
// unit slice normal when there is only one position. Column 3 is the position
// of the first slice.
func (s *Stack) Affine() (*mat.Dense, error) {
	g, err := s.resolve()
	if err != nil {
		return nil, err
	}
	return g.affine(s.ref), nil
}

func (g *grid) affine(ref *Slice) *mat.Dense {
	rowStep := r3.Scale(ref.PixelSpacing[0], ref.ColumnCosine())
	colStep := r3.Scale(ref.PixelSpacing[1], ref.RowCosine())

	first := g.cells[0]
	var sliceStep r3.Vec
	if len(g.spatial) > 1 {
		sliceStep = r3.Sub(g.cells[1].Origin(), first.Origin())
	} else {
		sliceStep = r3.Unit(ref.Normal())
	}
	origin := first.Origin()

	aff := mat.NewDense(4, 4, nil)
	for j, v := range []r3.Vec{rowStep, colStep, sliceStep, origin} {
		aff.Set(0, j, v.X)
		aff.Set(1, j, v.Y)
		aff.Set(2, j, v.Z)
	}
	aff.Set(3, 3, 1)
	return aff
}
