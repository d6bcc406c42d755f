// Package dicom turns DICOM files into stack slices and writes synthetic
// multi-echo MR series.
package dicom

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/dcmstack/internal/dcmmeta"
	"github.com/mrsinham/dcmstack/internal/stack"
	"github.com/mrsinham/dcmstack/internal/util"
)

var (
	// ErrEncapsulated is returned for compressed pixel data, which is not decoded.
	ErrEncapsulated = errors.New("encapsulated pixel data is not supported")

	// ErrNoPixelData is returned when an image with rows and columns has no pixels.
	ErrNoPixelData = errors.New("no pixel data")
)

// skipVRs are value representations never copied into slice metadata.
var skipVRs = map[string]bool{
	"SQ": true, "OB": true, "OW": true, "OF": true, "OD": true, "OL": true, "OV": true, "UN": true,
}

// LoadFile parses a DICOM file into a slice.
func LoadFile(path string) (*stack.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sl, err := FromDataset(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sl.Source = path
	return sl, nil
}

// LoadResult is the outcome of loading one file.
type LoadResult struct {
	Path  string
	Slice *stack.Slice
	Err   error
}

// LoadFiles parses paths with a pool of workers and returns one result per
// path, in input order. Workers <= 0 uses one per CPU. Once ctx is cancelled
// no further file is parsed and the remaining results carry ctx.Err().
func LoadFiles(ctx context.Context, paths []string, workers int) []LoadResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	results := make([]LoadResult, len(paths))
	indexChan := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexChan {
				if err := ctx.Err(); err != nil {
					results[i] = LoadResult{Path: paths[i], Err: err}
					continue
				}
				sl, err := LoadFile(paths[i])
				results[i] = LoadResult{Path: paths[i], Slice: sl, Err: err}
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case indexChan <- i:
		case <-ctx.Done():
			for j := i; j < len(paths); j++ {
				results[j] = LoadResult{Path: paths[j], Err: ctx.Err()}
			}
			break feed
		}
	}
	close(indexChan)
	wg.Wait()

	return results
}

// FromDataset extracts geometry, pixels and metadata from a parsed dataset.
// A dataset without Rows or Columns gives a dummy slice.
func FromDataset(ds dicom.Dataset) (*stack.Slice, error) {
	sl := &stack.Slice{
		Rows: intValue(ds, tag.Rows),
		Cols: intValue(ds, tag.Columns),
	}

	var err error
	if sl.PixelSpacing, err = floatValues(ds, tag.PixelSpacing); err != nil {
		return nil, err
	}
	if sl.Orientation, err = floatValues(ds, tag.ImageOrientationPatient); err != nil {
		return nil, err
	}
	if sl.Position, err = floatValues(ds, tag.ImagePositionPatient); err != nil {
		return nil, err
	}

	if !sl.IsDummy() {
		if sl.Pixels, err = pixelValues(ds, sl.Rows, sl.Cols); err != nil {
			return nil, err
		}
	}
	sl.Meta = datasetMeta(ds)
	return sl, nil
}

// intValue returns the first integer of an element, or 0 when it is absent.
func intValue(ds dicom.Dataset, t tag.Tag) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0]
		}
	case []string:
		if len(v) > 0 {
			n, _ := strconv.Atoi(strings.TrimSpace(v[0]))
			return n
		}
	}
	return 0
}

// floatValues parses a multi-valued DS element. Absent elements give nil.
func floatValues(ds dicom.Dataset, t tag.Tag) ([]float64, error) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid decimal %q: %w", util.KeywordOf(t), s, err)
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: unexpected value type %T", util.KeywordOf(t), elem.Value.GetValue())
}

// pixelValues decodes the first native frame as rows*cols floats, applying
// the signed representation and any rescale.
func pixelValues(ds dicom.Dataset, rows, cols int) ([]float64, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, ErrNoPixelData
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, ErrNoPixelData
	}
	fr := info.Frames[0]
	if fr.Encapsulated {
		return nil, ErrEncapsulated
	}
	if spp := intValue(ds, tag.SamplesPerPixel); spp > 1 {
		return nil, fmt.Errorf("%d samples per pixel, only grayscale images can be stacked", spp)
	}

	n := rows * cols
	signed := intValue(ds, tag.PixelRepresentation) == 1
	out := make([]float64, n)

	var raw int
	switch nf := fr.NativeData.(type) {
	case *frame.NativeFrame[uint8]:
		raw = len(nf.RawData)
		for i := 0; i < n && i < raw; i++ {
			if signed {
				out[i] = float64(int8(nf.RawData[i]))
			} else {
				out[i] = float64(nf.RawData[i])
			}
		}
	case *frame.NativeFrame[uint16]:
		raw = len(nf.RawData)
		for i := 0; i < n && i < raw; i++ {
			if signed {
				out[i] = float64(int16(nf.RawData[i]))
			} else {
				out[i] = float64(nf.RawData[i])
			}
		}
	case *frame.NativeFrame[uint32]:
		raw = len(nf.RawData)
		for i := 0; i < n && i < raw; i++ {
			if signed {
				out[i] = float64(int32(nf.RawData[i]))
			} else {
				out[i] = float64(nf.RawData[i])
			}
		}
	default:
		return nil, fmt.Errorf("unsupported native frame %T", fr.NativeData)
	}
	if raw < n {
		return nil, fmt.Errorf("pixel data holds %d values for a %dx%d image", raw, rows, cols)
	}

	slope, inter := 1.0, 0.0
	if v, err := floatValues(ds, tag.RescaleSlope); err == nil && len(v) == 1 {
		slope = v[0]
	}
	if v, err := floatValues(ds, tag.RescaleIntercept); err == nil && len(v) == 1 {
		inter = v[0]
	}
	if slope != 1 || inter != 0 {
		for i := range out {
			out[i] = out[i]*slope + inter
		}
	}
	return out, nil
}

// Meta is the keyword-addressed metadata of one DICOM file.
type Meta struct {
	values map[string]any
	keys   []string
}

// Lookup returns the value of a DICOM keyword. Keys are matched exactly
// first, then through the case-insensitive keyword registry.
func (m *Meta) Lookup(key string) (any, bool) {
	if v, ok := m.values[key]; ok {
		return v, true
	}
	info, err := util.GetTagByName(key)
	if err != nil {
		return nil, false
	}
	v, ok := m.values[info.Name]
	return v, ok
}

// Keys returns the keywords present, sorted.
func (m *Meta) Keys() []string {
	return m.keys
}

var _ stack.Metadata = (*Meta)(nil)
var _ dcmmeta.Source = (*Meta)(nil)

// datasetMeta copies every public, non-binary, non-sequence element. DS and IS
// become numbers, TM becomes seconds since midnight, and single values are
// unwrapped.
func datasetMeta(ds dicom.Dataset) *Meta {
	m := &Meta{values: make(map[string]any)}
	for _, elem := range ds.Elements {
		if elem == nil || elem.Tag == tag.PixelData || elem.Tag.Group == 0x0002 {
			continue
		}
		if skipVRs[elem.RawValueRepresentation] {
			continue
		}
		keyword := util.KeywordOf(elem.Tag)
		if keyword == "" {
			continue
		}
		if v, ok := convertValue(elem.RawValueRepresentation, elem.Value.GetValue()); ok {
			m.values[keyword] = v
		}
	}
	for k := range m.values {
		m.keys = append(m.keys, k)
	}
	sort.Strings(m.keys)
	return m
}

func convertValue(vr string, raw any) (any, bool) {
	switch v := raw.(type) {
	case []string:
		vals := make([]string, 0, len(v))
		for _, s := range v {
			vals = append(vals, strings.Trim(s, " \x00"))
		}
		if len(vals) == 0 || (len(vals) == 1 && vals[0] == "") {
			return nil, false
		}
		switch vr {
		case "DS":
			if f, ok := parseAll(vals, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }); ok {
				return unwrap(f), true
			}
		case "IS":
			if n, ok := parseAll(vals, strconv.Atoi); ok {
				return unwrap(n), true
			}
		case "TM":
			if f, ok := parseAll(vals, dcmmeta.DcmTimeToSec); ok {
				return unwrap(f), true
			}
		}
		return unwrap(vals), true
	case []int:
		if len(v) == 0 {
			return nil, false
		}
		return unwrap(v), true
	case []float64:
		if len(v) == 0 {
			return nil, false
		}
		return unwrap(v), true
	}
	return nil, false
}

func parseAll[T any](vals []string, parse func(string) (T, error)) ([]T, bool) {
	out := make([]T, len(vals))
	for i, s := range vals {
		v, err := parse(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func unwrap[T any](vals []T) any {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}
