package volume

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidOrder is returned for a malformed voxel order string.
	ErrInvalidOrder = errors.New("invalid voxel order")
	// ErrShape is returned when the array or affine has the wrong shape.
	ErrShape = errors.New("invalid shape")
)

// Patient-space axis labels, one per direction of the three axis pairs.
const (
	AxisLR = "lr"
	AxisRL = "rl"
	AxisPA = "pa"
	AxisAP = "ap"
	AxisIS = "is"
	AxisSI = "si"
)

// ClosestOrthoPatAxis returns the label of the patient axis closest to dir.
// The coordinate with the largest magnitude picks the axis pair, its sign
// picks the member of the pair. Ties favour x, then y.
func ClosestOrthoPatAxis(dir r3.Vec) string {
	ax, ay, az := math.Abs(dir.X), math.Abs(dir.Y), math.Abs(dir.Z)
	switch {
	case ax >= ay && ax >= az:
		if dir.X < 0 {
			return AxisRL
		}
		return AxisLR
	case ay >= ax && ay >= az:
		if dir.Y < 0 {
			return AxisAP
		}
		return AxisPA
	default:
		if dir.Z < 0 {
			return AxisSI
		}
		return AxisIS
	}
}

// pairOf maps an upper-case axis letter to its axis pair, or -1.
func pairOf(c byte) int {
	switch c {
	case 'L', 'R':
		return 0
	case 'A', 'P':
		return 1
	case 'I', 'S':
		return 2
	}
	return -1
}

// ParseOrder validates a three letter voxel order such as "LAS". Each letter
// must name one member of a distinct axis pair. Case is ignored.
func ParseOrder(order string) ([3]byte, error) {
	var out [3]byte
	up := strings.ToUpper(order)
	if len(up) != 3 {
		return out, fmt.Errorf("%w: %q must contain three characters", ErrInvalidOrder, order)
	}
	var seen [3]bool
	for i := 0; i < 3; i++ {
		p := pairOf(up[i])
		if p < 0 {
			return out, fmt.Errorf("%w: %q is not one of L,R,A,P,I,S", ErrInvalidOrder, up[i])
		}
		if seen[p] {
			return out, fmt.Errorf("%w: %q names the same axis twice", ErrInvalidOrder, order)
		}
		seen[p] = true
		out[i] = up[i]
	}
	return out, nil
}

// AffineOrder returns the voxel order letters of the first three affine
// columns, e.g. "LPI" for the identity.
func AffineOrder(affine mat.Matrix) string {
	var b strings.Builder
	for j := 0; j < 3; j++ {
		b.WriteByte(strings.ToUpper(ClosestOrthoPatAxis(affineColumn(affine, j)))[0])
	}
	return b.String()
}

func affineColumn(affine mat.Matrix, j int) r3.Vec {
	return r3.Vec{X: affine.At(0, j), Y: affine.At(1, j), Z: affine.At(2, j)}
}

// Reorder describes how the first three axes move to reach a voxel order.
// Output axis i is input axis Perm[i], reversed when Flip[i] is set.
type Reorder struct {
	Perm [3]int
	Flip [3]bool
}

// AxisOf returns the output axis that input axis in moved to.
func (r Reorder) AxisOf(in int) int {
	for i, p := range r.Perm {
		if p == in {
			return i
		}
	}
	return -1
}

// PlanReorder works out the permutation and flips that bring the axes of
// affine into order.
func PlanReorder(affine mat.Matrix, order string) (Reorder, error) {
	plan := Reorder{Perm: [3]int{0, 1, 2}}
	want, err := ParseOrder(order)
	if err != nil {
		return plan, err
	}
	if r, c := affine.Dims(); r != 4 || c != 4 {
		return plan, fmt.Errorf("%w: affine is %dx%d, want 4x4", ErrShape, r, c)
	}

	current := AffineOrder(affine)
	byPair := [3]int{-1, -1, -1}
	for j := 0; j < 3; j++ {
		p := pairOf(current[j])
		if byPair[p] >= 0 {
			return plan, fmt.Errorf("%w: affine columns %d and %d both align with the %c axis",
				ErrShape, byPair[p], j, current[j])
		}
		byPair[p] = j
	}

	for i := 0; i < 3; i++ {
		j := byPair[pairOf(want[i])]
		plan.Perm[i] = j
		plan.Flip[i] = current[j] != want[i]
	}
	return plan, nil
}

// ReorderVoxels permutes and flips the first three axes of vox so they follow
// order, and updates the voxel-to-patient affine to match. The returned array
// and affine never share storage with the inputs. perm[i] is the input axis
// that became output axis i.
func ReorderVoxels(vox *Array, affine mat.Matrix, order string) (*Array, *mat.Dense, [3]int, error) {
	if _, err := ParseOrder(order); err != nil {
		return nil, nil, [3]int{0, 1, 2}, err
	}
	if vox == nil || vox.NDim() < 3 {
		return nil, nil, [3]int{0, 1, 2}, fmt.Errorf("%w: voxel array must have at least three dimensions", ErrShape)
	}
	plan, err := PlanReorder(affine, order)
	if err != nil {
		return nil, nil, plan.Perm, err
	}
	return permuteArray(vox, plan.Perm, plan.Flip), permuteAffine(affine, vox.Shape, plan.Perm, plan.Flip), plan.Perm, nil
}

func permuteArray(vox *Array, perm [3]int, flip [3]bool) *Array {
	shape := make([]int, vox.NDim())
	copy(shape, vox.Shape)
	for i := 0; i < 3; i++ {
		shape[i] = vox.Shape[perm[i]]
	}
	out := New(shape...)
	strides := vox.Strides()

	idx := make([]int, len(shape))
	for off := range out.Data {
		out.unravel(off, idx)
		src := 0
		for i, v := range idx {
			if i < 3 {
				if flip[i] {
					v = shape[i] - 1 - v
				}
				src += v * strides[perm[i]]
				continue
			}
			src += v * strides[i]
		}
		out.Data[off] = vox.Data[src]
	}
	return out
}

func permuteAffine(affine mat.Matrix, shape []int, perm [3]int, flip [3]bool) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		out.Set(r, 3, affine.At(r, 3))
	}
	for i := 0; i < 3; i++ {
		src := perm[i]
		for r := 0; r < 4; r++ {
			v := affine.At(r, src)
			if flip[i] && r < 3 {
				// The new origin is the far end of the flipped axis.
				out.Set(r, 3, out.At(r, 3)+v*float64(shape[src]-1))
				v = -v
			}
			out.Set(r, i, v)
		}
	}
	return out
}
