package dcmmeta

import (
	"encoding/json"
	"fmt"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

// Version is written into every bundle.
const Version = "0.6"

// ExtensionCode is the NIfTI extension code the bundle is stored under.
const ExtensionCode = 0

// Source is the metadata of one slice.
type Source interface {
	Lookup(key string) (any, bool)
	Keys() []string
}

// Bundle is the merged metadata of the slices making up one volume.
//
// Global holds keys whose value is the same on every slice. PerSlice holds
// the rest as one value per slice; a slice without the key contributes null.
// Per-slice values walk axis SliceDim of the image first, then the time and
// vector axes.
type Bundle struct {
	Version  string           `json:"dcmmeta_version"`
	Shape    []int            `json:"dcmmeta_shape"`
	Affine   [][]float64      `json:"dcmmeta_affine"`
	SliceDim int              `json:"dcmmeta_slice_dim"`
	Global   map[string]any   `json:"global"`
	PerSlice map[string][]any `json:"per_slice"`
}

// Build merges the metadata of the slices in metas, which must be in image
// order. Only keys accepted by keep are retained; a nil keep retains
// everything. Nil entries stand for slices without metadata. SliceDim is set
// to 2.
func Build(metas []Source, keep func(string) bool, shape []int, affine mat.Matrix) (*Bundle, error) {
	if len(metas) == 0 {
		return nil, fmt.Errorf("no slices to bundle")
	}

	b := &Bundle{
		Version:  Version,
		Shape:    append([]int(nil), shape...),
		SliceDim: 2,
		Global:   make(map[string]any),
		PerSlice: make(map[string][]any),
	}
	if affine != nil {
		r, c := affine.Dims()
		b.Affine = make([][]float64, r)
		for i := range b.Affine {
			b.Affine[i] = make([]float64, c)
			for j := range b.Affine[i] {
				b.Affine[i][j] = affine.At(i, j)
			}
		}
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, m := range metas {
		if m == nil {
			continue
		}
		for _, k := range m.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if keep == nil || keep(k) {
				keys = append(keys, k)
			}
		}
	}

	for _, k := range keys {
		vals := make([]any, len(metas))
		constant := true
		for i, m := range metas {
			if m != nil {
				if v, ok := m.Lookup(k); ok {
					vals[i] = v
				}
			}
			if vals[i] == nil || !reflect.DeepEqual(vals[i], vals[0]) {
				constant = false
			}
		}
		if constant {
			b.Global[k] = vals[0]
		} else {
			b.PerSlice[k] = vals
		}
	}
	return b, nil
}

// Marshal encodes the bundle as the JSON payload of the extension.
func (b *Bundle) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata bundle: %w", err)
	}
	return data, nil
}

// Parse decodes an extension payload written by Marshal. Trailing NUL padding
// is ignored. A payload without dcmmeta_slice_dim has its slices along axis 2.
func Parse(data []byte) (*Bundle, error) {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	b := Bundle{SliceDim: 2}
	if err := json.Unmarshal(data[:end], &b); err != nil {
		return nil, fmt.Errorf("decoding metadata bundle: %w", err)
	}
	if b.Version == "" {
		return nil, fmt.Errorf("decoding metadata bundle: missing dcmmeta_version")
	}
	return &b, nil
}

// Lookup returns the value of key for the slice at index i.
func (b *Bundle) Lookup(key string, i int) (any, bool) {
	if v, ok := b.Global[key]; ok {
		return v, true
	}
	vals, ok := b.PerSlice[key]
	if !ok || i < 0 || i >= len(vals) || vals[i] == nil {
		return nil, false
	}
	return vals[i], true
}
