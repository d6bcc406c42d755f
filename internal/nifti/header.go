// Package nifti writes assembled volumes as single-file NIfTI-1 images and
// reads back their header and extensions.
//
// Layout follows nifti1.h: a 348 byte header, a 4 byte extender, optional
// extensions, then voxel data at vox_offset.
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// HeaderSize is the value of sizeof_hdr.
const HeaderSize = 348

// minVoxOffset is the header plus the extender.
const minVoxOffset = HeaderSize + 4

// Datatype codes used by this package.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

// Transform codes.
const (
	XFormUnknown = 0
	XFormScanner = 1
)

// UnitsMM is the spatial unit code for millimetres.
const UnitsMM = 2

var (
	// ErrNotNifti is returned for data that is not a NIfTI-1 single file.
	ErrNotNifti = errors.New("not a NIfTI-1 file")

	magicSingle = [4]byte{'n', '+', '1', 0}
)

// Header is the on-disk NIfTI-1 header.
//
// C to Go: int -> int32, float -> float32, short -> int16, char -> byte.
type Header struct {
	SizeOfHdr      int32
	DataTypeUnused [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	Glmax         int32
	Glmin         int32

	Descrip [80]byte
	AuxFile [24]byte

	QformCode int16
	SformCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SrowX [4]float32
	SrowY [4]float32
	SrowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

// Shape returns the image dimensions recorded in Dim.
func (h *Header) Shape() []int {
	n := int(h.Dim[0])
	if n < 1 || n > 7 {
		return nil
	}
	shape := make([]int, n)
	for i := range shape {
		shape[i] = int(h.Dim[i+1])
	}
	return shape
}

// Sform returns the sform rows as a row-major 3x4 matrix.
func (h *Header) Sform() [3][4]float64 {
	var m [3][4]float64
	for j := 0; j < 4; j++ {
		m[0][j] = float64(h.SrowX[j])
		m[1][j] = float64(h.SrowY[j])
		m[2][j] = float64(h.SrowZ[j])
	}
	return m
}

// Description returns Descrip up to the first NUL.
func (h *Header) Description() string {
	return cString(h.Descrip[:])
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func setCString(dst []byte, s string) {
	// Keep room for the terminating NUL.
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Extension is one header extension.
type Extension struct {
	Code int32
	Data []byte
}

// size is the padded on-disk size including the 8 byte esize/ecode prefix.
func (e Extension) size() int32 {
	n := 8 + len(e.Data)
	if r := n % 16; r != 0 {
		n += 16 - r
	}
	return int32(n)
}

// ReadHeader decodes a little or big endian header from r and returns the
// byte order it was stored in.
func ReadHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		var h Header
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return nil, nil, fmt.Errorf("decoding header: %w", err)
		}
		if h.SizeOfHdr != HeaderSize {
			continue
		}
		if h.Magic != magicSingle {
			return nil, nil, fmt.Errorf("%w: magic %q", ErrNotNifti, strings.TrimRight(string(h.Magic[:]), "\x00"))
		}
		if h.Dim[0] < 1 || h.Dim[0] > 7 {
			return nil, nil, fmt.Errorf("%w: dim[0] = %d", ErrNotNifti, h.Dim[0])
		}
		return &h, order, nil
	}
	return nil, nil, fmt.Errorf("%w: sizeof_hdr is not %d", ErrNotNifti, HeaderSize)
}

// ReadExtensions reads the extender and extensions that follow a header. r
// must be positioned right after the header.
func ReadExtensions(r io.Reader, h *Header, order binary.ByteOrder) ([]Extension, error) {
	var extender [4]byte
	if _, err := io.ReadFull(r, extender[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading extender: %w", err)
	}
	if extender[0] == 0 {
		return nil, nil
	}

	var exts []Extension
	pos := int64(minVoxOffset)
	end := int64(h.VoxOffset)
	for pos+8 <= end {
		var prefix [2]int32
		if err := binary.Read(r, order, &prefix); err != nil {
			return nil, fmt.Errorf("reading extension at %d: %w", pos, err)
		}
		esize, ecode := prefix[0], prefix[1]
		if esize < 16 || esize%16 != 0 || pos+int64(esize) > end {
			return nil, fmt.Errorf("extension at %d has invalid size %d", pos, esize)
		}
		data := make([]byte, esize-8)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading extension at %d: %w", pos, err)
		}
		exts = append(exts, Extension{Code: ecode, Data: data})
		pos += int64(esize)
	}
	return exts, nil
}
