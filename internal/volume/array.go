// Package volume holds N-dimensional voxel arrays and the orientation helpers
// used to move them into a canonical patient-space voxel order.
package volume

import (
	"fmt"
)

// Array is a dense N-D voxel array. Data is laid out with the first axis
// varying fastest, which is the on-disk order of a NIfTI image.
type Array struct {
	Shape []int
	Data  []float64
}

// New allocates a zero-filled array of the given shape.
func New(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Array{Shape: s, Data: make([]float64, n)}
}

// NDim returns the number of axes.
func (a *Array) NDim() int {
	return len(a.Shape)
}

// Len returns the number of voxels.
func (a *Array) Len() int {
	return len(a.Data)
}

// Strides returns the element stride of each axis.
func (a *Array) Strides() []int {
	strides := make([]int, len(a.Shape))
	step := 1
	for i, d := range a.Shape {
		strides[i] = step
		step *= d
	}
	return strides
}

// Offset converts an index tuple into a position in Data.
// It panics when the tuple does not match the array shape.
func (a *Array) Offset(idx ...int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("volume: index has %d axes, array has %d", len(idx), len(a.Shape)))
	}
	off := 0
	step := 1
	for i, d := range a.Shape {
		if idx[i] < 0 || idx[i] >= d {
			panic(fmt.Sprintf("volume: index %d out of range [0,%d) on axis %d", idx[i], d, i))
		}
		off += idx[i] * step
		step *= d
	}
	return off
}

// At returns the voxel at idx.
func (a *Array) At(idx ...int) float64 {
	return a.Data[a.Offset(idx...)]
}

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) {
	a.Data[a.Offset(idx...)] = v
}

// Clone returns a deep copy that shares no storage with a.
func (a *Array) Clone() *Array {
	out := &Array{
		Shape: make([]int, len(a.Shape)),
		Data:  make([]float64, len(a.Data)),
	}
	copy(out.Shape, a.Shape)
	copy(out.Data, a.Data)
	return out
}

// Equal reports whether both arrays have the same shape and voxel values.
func (a *Array) Equal(b *Array) bool {
	if len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// unravel writes the index tuple of offset off into idx.
func (a *Array) unravel(off int, idx []int) {
	for i, d := range a.Shape {
		idx[i] = off % d
		off /= d
	}
}
