package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/dcmstack/internal/volume"
)

// Image is what gets written: voxels, their RAS voxel-to-world affine and any
// header extensions.
type Image struct {
	Data *volume.Array

	// Affine maps voxel indices to RAS+ millimetres and is stored as the
	// sform.
	Affine mat.Matrix

	Description string
	Extensions  []Extension
}

// LPSToRAS converts a DICOM (LPS+) voxel-to-patient affine to the RAS+ world
// NIfTI uses by negating the x and y rows.
func LPSToRAS(affine mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(affine)
	for j := 0; j < 4; j++ {
		out.Set(0, j, -out.At(0, j))
		out.Set(1, j, -out.At(1, j))
	}
	return out
}

// NewHeader fills a float64 single-file header for img. VoxOffset accounts for
// the image extensions.
func NewHeader(img *Image) (*Header, error) {
	if img.Data == nil {
		return nil, fmt.Errorf("image has no data")
	}
	shape := img.Data.Shape
	if len(shape) < 1 || len(shape) > 7 {
		return nil, fmt.Errorf("cannot store %d dimensions, NIfTI-1 allows 1 to 7", len(shape))
	}
	if img.Affine != nil {
		if r, c := img.Affine.Dims(); r != 4 || c != 4 {
			return nil, fmt.Errorf("affine is %dx%d, want 4x4", r, c)
		}
	}

	h := &Header{
		SizeOfHdr: HeaderSize,
		Regular:   'r',
		Datatype:  DTFloat64,
		Bitpix:    64,
		SclSlope:  1,
		XYZTUnits: UnitsMM,
		Magic:     magicSingle,
	}
	h.Dim[0] = int16(len(shape))
	for i := range h.Pixdim {
		h.Pixdim[i] = 1
	}
	for i := 1; i < len(h.Dim); i++ {
		h.Dim[i] = 1
	}
	for i, n := range shape {
		if n < 1 || n > math.MaxInt16 {
			return nil, fmt.Errorf("dimension %d has extent %d", i, n)
		}
		h.Dim[i+1] = int16(n)
	}

	if img.Affine != nil {
		h.SformCode = XFormScanner
		h.QformCode = XFormUnknown
		rows := []*[4]float32{&h.SrowX, &h.SrowY, &h.SrowZ}
		for i, row := range rows {
			for j := 0; j < 4; j++ {
				row[j] = float32(img.Affine.At(i, j))
			}
		}
		for j := 0; j < 3 && j < len(shape); j++ {
			col := mat.Col(nil, j, img.Affine)
			h.Pixdim[j+1] = float32(math.Sqrt(col[0]*col[0] + col[1]*col[1] + col[2]*col[2]))
		}
	}
	setCString(h.Descrip[:], img.Description)

	off := int32(minVoxOffset)
	for _, e := range img.Extensions {
		off += e.size()
	}
	h.VoxOffset = float32(off)

	var mn, mx float64
	for i, v := range img.Data.Data {
		if i == 0 || v < mn {
			mn = v
		}
		if i == 0 || v > mx {
			mx = v
		}
	}
	h.CalMin, h.CalMax = float32(mn), float32(mx)
	return h, nil
}

// Write encodes img as a little endian single-file NIfTI-1 image.
func Write(w io.Writer, img *Image) error {
	h, err := NewHeader(img)
	if err != nil {
		return err
	}
	if len(img.Data.Data) != img.Data.Len() {
		return fmt.Errorf("data holds %d voxels, shape %v needs %d", len(img.Data.Data), img.Data.Shape, img.Data.Len())
	}

	bw := bufio.NewWriter(w)
	order := binary.LittleEndian
	if err := binary.Write(bw, order, h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	var extender [4]byte
	if len(img.Extensions) > 0 {
		extender[0] = 1
	}
	if _, err := bw.Write(extender[:]); err != nil {
		return fmt.Errorf("writing extender: %w", err)
	}
	for _, e := range img.Extensions {
		if err := writeExtension(bw, order, e); err != nil {
			return err
		}
	}

	var buf [8]byte
	for _, v := range img.Data.Data {
		order.PutUint64(buf[:], math.Float64bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("writing voxels: %w", err)
		}
	}
	return bw.Flush()
}

func writeExtension(w io.Writer, order binary.ByteOrder, e Extension) error {
	size := e.size()
	if err := binary.Write(w, order, [2]int32{size, e.Code}); err != nil {
		return fmt.Errorf("writing extension: %w", err)
	}
	if _, err := w.Write(e.Data); err != nil {
		return fmt.Errorf("writing extension: %w", err)
	}
	pad := make([]byte, int(size)-8-len(e.Data))
	if _, err := w.Write(pad); err != nil {
		return fmt.Errorf("writing extension: %w", err)
	}
	return nil
}

// WriteFile writes img to path.
func WriteFile(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// File is a NIfTI image read back from disk.
type File struct {
	Header     *Header
	Extensions []Extension
	Data       *volume.Array
}

// ReadFile reads a single-file image written by Write. Only float64 data is
// decoded; other datatypes leave Data nil.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	h, order, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	exts, err := ReadExtensions(r, h, order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := &File{Header: h, Extensions: exts}
	if h.Datatype != DTFloat64 {
		return out, nil
	}

	if _, err := f.Seek(int64(h.VoxOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	arr := volume.New(h.Shape()...)
	if err := binary.Read(bufio.NewReader(f), order, arr.Data); err != nil {
		return nil, fmt.Errorf("%s: reading voxels: %w", path, err)
	}
	out.Data = arr
	return out, nil
}
