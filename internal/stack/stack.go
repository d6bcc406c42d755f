// Package stack assembles independently acquired 2D slices of one series into
// an N-D volume with a voxel-to-patient affine.
//
// Slices are fed one at a time with Add, which rejects geometric mismatches
// and duplicate grid positions. Shape, Affine, Data and Ordered derive their
// results from the current slice set on every call, so the result does not
// depend on the order slices were added in.
//
// A Stack is not safe for concurrent use.
package stack

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSpacingTolerance is the largest deviation, in mm, allowed between
// the spacings of consecutive slice positions.
const DefaultSpacingTolerance = 1e-3

// DefaultDummyFill is the voxel value of dummy cells when Config.DummyFill is
// nil, the int16 maximum.
const DefaultDummyFill = math.MaxInt16

// Config fixes how a Stack orders and validates slices.
type Config struct {
	// AllowDummies accepts slices without pixel geometry as grid fillers.
	AllowDummies bool

	// TimeOrder orders the 4th axis. Nil disables the time axis.
	TimeOrder *Ordering

	// VectorOrder orders the 5th axis. Nil disables the vector axis.
	VectorOrder *Ordering

	// DummyFill is the voxel value written for dummy slices. Nil means
	// DefaultDummyFill.
	DummyFill *float64

	// SpacingTolerance bounds how uneven slice spacing may be; zero means
	// DefaultSpacingTolerance.
	SpacingTolerance float64
}

// DefaultConfig returns a configuration without time or vector ordering.
func DefaultConfig() Config {
	return Config{
		SpacingTolerance: DefaultSpacingTolerance,
	}
}

// Fill returns the voxel value of dummy cells.
func (c Config) Fill() float64 {
	if c.DummyFill == nil {
		return DefaultDummyFill
	}
	return *c.DummyFill
}

// gridKey identifies the grid position of a slice.
type gridKey struct {
	spatial float64
	time    axisValue
	vector  axisValue
}

type entry struct {
	slice *Slice
	key   gridKey
}

// Stack holds the accepted slices of one series.
type Stack struct {
	cfg     Config
	entries []entry
	keys    map[gridKey]struct{}

	// first anchors orientation for every slice; ref is the first slice with
	// pixel geometry; spacing comes from the first slice that carried one.
	first   *Slice
	ref     *Slice
	spacing []float64
}

// New returns an empty stack.
func New(cfg Config) *Stack {
	if cfg.SpacingTolerance <= 0 {
		cfg.SpacingTolerance = DefaultSpacingTolerance
	}
	return &Stack{
		cfg:  cfg,
		keys: make(map[gridKey]struct{}),
	}
}

// Config returns the stack configuration.
func (s *Stack) Config() Config {
	return s.cfg
}

// Len returns the number of accepted slices.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Add checks sl against the slices already held and inserts it. On error the
// stack is left unchanged.
func (s *Stack) Add(sl *Slice) error {
	if sl == nil {
		return fmt.Errorf("%w: nil slice", ErrIncongruentImage)
	}
	if err := s.checkGeometry(sl); err != nil {
		return err
	}
	if err := s.checkCongruent(sl); err != nil {
		return err
	}

	key, err := s.keyOf(sl)
	if err != nil {
		return fmt.Errorf("%s: %w", sl.name(), err)
	}
	if _, taken := s.keys[key]; taken {
		return fmt.Errorf("%w: %s duplicates the grid position of an accepted slice", ErrImageCollision, sl.name())
	}

	s.keys[key] = struct{}{}
	s.entries = append(s.entries, entry{slice: sl, key: key})
	if s.first == nil {
		s.first = sl
	}
	if s.ref == nil && !sl.IsDummy() {
		s.ref = sl
	}
	if s.spacing == nil && len(sl.PixelSpacing) == 2 {
		s.spacing = sl.PixelSpacing
	}
	return nil
}

// checkGeometry validates the slice on its own.
func (s *Stack) checkGeometry(sl *Slice) error {
	if len(sl.Orientation) != 6 {
		return fmt.Errorf("%w: %s has %d orientation values, want 6", ErrIncongruentImage, sl.name(), len(sl.Orientation))
	}
	if len(sl.Position) != 3 {
		return fmt.Errorf("%w: %s has %d position values, want 3", ErrIncongruentImage, sl.name(), len(sl.Position))
	}
	if sl.PixelSpacing != nil && len(sl.PixelSpacing) != 2 {
		return fmt.Errorf("%w: %s has %d pixel spacing values, want 2", ErrIncongruentImage, sl.name(), len(sl.PixelSpacing))
	}
	if sl.IsDummy() {
		if !s.cfg.AllowDummies {
			return fmt.Errorf("%w: %s has no rows or columns and dummies are not allowed", ErrIncongruentImage, sl.name())
		}
		return nil
	}
	if sl.PixelSpacing == nil {
		return fmt.Errorf("%w: %s has no pixel spacing", ErrIncongruentImage, sl.name())
	}
	if len(sl.Pixels) != sl.Rows*sl.Cols {
		return fmt.Errorf("%w: %s has %d pixels for a %dx%d image", ErrIncongruentImage, sl.name(), len(sl.Pixels), sl.Rows, sl.Cols)
	}
	return nil
}

// checkCongruent compares sl against the established geometry. Attributes a
// dummy lacks are not compared.
func (s *Stack) checkCongruent(sl *Slice) error {
	if s.first != nil {
		for i := range sl.Orientation {
			if sl.Orientation[i] != s.first.Orientation[i] {
				return fmt.Errorf("%w: %s orientation %v differs from %v", ErrIncongruentImage, sl.name(), sl.Orientation, s.first.Orientation)
			}
		}
	}
	if s.spacing != nil && sl.PixelSpacing != nil {
		if sl.PixelSpacing[0] != s.spacing[0] || sl.PixelSpacing[1] != s.spacing[1] {
			return fmt.Errorf("%w: %s pixel spacing %v differs from %v", ErrIncongruentImage, sl.name(), sl.PixelSpacing, s.spacing)
		}
	}
	if s.ref != nil && !sl.IsDummy() {
		if sl.Rows != s.ref.Rows {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrIncongruentImage, sl.name(), sl.Rows, s.ref.Rows)
		}
		if sl.Cols != s.ref.Cols {
			return fmt.Errorf("%w: %s has %d columns, want %d", ErrIncongruentImage, sl.name(), sl.Cols, s.ref.Cols)
		}
	}
	return nil
}

// keyOf computes the grid key of sl. The spatial component is the position
// projected on the slice normal.
func (s *Stack) keyOf(sl *Slice) (gridKey, error) {
	var key gridKey
	key.spatial = r3.Dot(sl.Origin(), sl.Normal())

	var err error
	if s.cfg.TimeOrder != nil {
		if key.time, err = resolveAxis(s.cfg.TimeOrder, sl.Meta); err != nil {
			return key, err
		}
	}
	if s.cfg.VectorOrder != nil {
		if key.vector, err = resolveAxis(s.cfg.VectorOrder, sl.Meta); err != nil {
			return key, err
		}
	}
	return key, nil
}

func resolveAxis(o *Ordering, md Metadata) (axisValue, error) {
	ord, ok, err := o.OrdinateOf(md)
	if err != nil {
		return axisValue{}, err
	}
	return axisValue{ord: ord, ok: ok}, nil
}
