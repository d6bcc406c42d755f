package stack

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Metadata gives read access to the descriptive attributes of a slice,
// keyed by attribute name (e.g. "EchoTime").
type Metadata interface {
	// Lookup returns the value stored under key and whether it was present.
	Lookup(key string) (any, bool)
	// Keys returns every key carried by the record.
	Keys() []string
}

// MapMeta is Metadata backed by a plain map.
type MapMeta map[string]any

// Lookup implements Metadata.
func (m MapMeta) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Keys implements Metadata. Keys are returned sorted.
func (m MapMeta) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Slice is one decoded 2D image with the geometry needed to place it in a
// volume. A slice with zero Rows or Cols is a dummy: it has no pixels and only
// fills a grid position.
type Slice struct {
	Rows int
	Cols int

	// PixelSpacing is the distance between row centres then between column
	// centres, in mm. Dummies may leave it nil.
	PixelSpacing []float64

	// Orientation holds the row direction cosine followed by the column
	// direction cosine.
	Orientation []float64

	// Position is the patient-space location of the first transmitted pixel.
	Position []float64

	// Pixels is row-major with Rows*Cols elements.
	Pixels []float64

	Meta Metadata

	// Source names where the slice came from, for error messages.
	Source string
}

// IsDummy reports whether the slice carries no pixel geometry.
func (s *Slice) IsDummy() bool {
	return s.Rows == 0 || s.Cols == 0
}

// RowCosine is the direction in which the column index increases.
func (s *Slice) RowCosine() r3.Vec {
	return r3.Vec{X: s.Orientation[0], Y: s.Orientation[1], Z: s.Orientation[2]}
}

// ColumnCosine is the direction in which the row index increases.
func (s *Slice) ColumnCosine() r3.Vec {
	return r3.Vec{X: s.Orientation[3], Y: s.Orientation[4], Z: s.Orientation[5]}
}

// Normal is the cross-slice direction, RowCosine x ColumnCosine.
func (s *Slice) Normal() r3.Vec {
	return r3.Cross(s.RowCosine(), s.ColumnCosine())
}

// Origin returns Position as a vector.
func (s *Slice) Origin() r3.Vec {
	return r3.Vec{X: s.Position[0], Y: s.Position[1], Z: s.Position[2]}
}

func (s *Slice) name() string {
	if s.Source != "" {
		return s.Source
	}
	return "slice"
}
