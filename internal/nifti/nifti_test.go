package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/dcmstack/internal/volume"
)

func TestHeaderSize(t *testing.T) {
	if got := binary.Size(Header{}); got != HeaderSize {
		t.Fatalf("binary.Size(Header{}) = %d, want %d", got, HeaderSize)
	}
}

func testImage() *Image {
	arr := volume.New(2, 3, 4)
	for i := range arr.Data {
		arr.Data[i] = float64(i) - 5
	}
	aff := mat.NewDense(4, 4, []float64{
		-0.5, 0, 0, 10,
		0, 0.75, 0, -20,
		0, 0, 3, 30,
		0, 0, 0, 1,
	})
	return &Image{Data: arr, Affine: aff, Description: "dcmstack test"}
}

func TestNewHeader(t *testing.T) {
	h, err := NewHeader(testImage())
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}
	if !slices.Equal(h.Shape(), []int{2, 3, 4}) {
		t.Errorf("Shape() = %v, want [2 3 4]", h.Shape())
	}
	if h.Dim[4] != 1 {
		t.Errorf("unused dim = %d, want 1", h.Dim[4])
	}
	if h.Pixdim[1] != 0.5 || h.Pixdim[2] != 0.75 || h.Pixdim[3] != 3 {
		t.Errorf("pixdim = %v, want column norms 0.5 0.75 3", h.Pixdim[1:4])
	}
	if h.SformCode != XFormScanner || h.QformCode != XFormUnknown {
		t.Errorf("xform codes = %d/%d", h.SformCode, h.QformCode)
	}
	if h.SrowX[0] != -0.5 || h.SrowZ[3] != 30 {
		t.Errorf("sform rows not copied: %v %v", h.SrowX, h.SrowZ)
	}
	if h.VoxOffset != minVoxOffset {
		t.Errorf("VoxOffset = %v, want %d", h.VoxOffset, minVoxOffset)
	}
	if h.CalMin != -5 || h.CalMax != 18 {
		t.Errorf("cal range = [%v, %v], want [-5, 18]", h.CalMin, h.CalMax)
	}
	if h.Description() != "dcmstack test" {
		t.Errorf("Description() = %q", h.Description())
	}
}

func TestNewHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
	}{
		{"no data", &Image{}},
		{"too many dims", &Image{Data: volume.New(1, 1, 1, 1, 1, 1, 1, 1)}},
		{"bad affine", &Image{Data: volume.New(2, 2, 2), Affine: mat.NewDense(3, 3, nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHeader(tt.img); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	img := testImage()
	payload := []byte(`{"dcmmeta_version":"0.6"}`)
	img.Extensions = []Extension{{Code: 0, Data: payload}}

	path := filepath.Join(t.TempDir(), "out.nii")
	if err := WriteFile(path, img); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if int(f.Header.VoxOffset)%16 != 0 {
		t.Errorf("VoxOffset %v is not a multiple of 16", f.Header.VoxOffset)
	}
	if len(f.Extensions) != 1 {
		t.Fatalf("got %d extensions, want 1", len(f.Extensions))
	}
	if got := bytes.TrimRight(f.Extensions[0].Data, "\x00"); !bytes.Equal(got, payload) {
		t.Errorf("extension payload = %q, want %q", got, payload)
	}
	if !f.Data.Equal(img.Data) {
		t.Error("voxels read back differ from those written")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(f.Header.VoxOffset) + int64(8*img.Data.Len()); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
	t.Logf("✓ wrote %d bytes with vox_offset %v", info.Size(), f.Header.VoxOffset)
}

func TestWrite_NoExtensions(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testImage()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := bytes.NewReader(buf.Bytes())
	h, order, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if order != binary.LittleEndian {
		t.Errorf("byte order = %v, want little endian", order)
	}
	exts, err := ReadExtensions(r, h, order)
	if err != nil || len(exts) != 0 {
		t.Errorf("ReadExtensions = %v, %v; want none", exts, err)
	}
	if buf.Len() != minVoxOffset+8*24 {
		t.Errorf("encoded %d bytes, want %d", buf.Len(), minVoxOffset+8*24)
	}
}

func TestReadHeader_BigEndian(t *testing.T) {
	h, err := NewHeader(testImage())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, h); err != nil {
		t.Fatal(err)
	}
	got, order, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if order != binary.BigEndian || !slices.Equal(got.Shape(), []int{2, 3, 4}) {
		t.Errorf("ReadHeader = %v, %v", got.Shape(), order)
	}
}

func TestReadHeader_NotNifti(t *testing.T) {
	h, _ := NewHeader(testImage())
	h.Magic = [4]byte{'n', 'i', '1', 0}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, h)
	if _, _, err := ReadHeader(&buf); !errors.Is(err, ErrNotNifti) {
		t.Errorf("error = %v, want ErrNotNifti", err)
	}

	garbage := bytes.NewReader(make([]byte, HeaderSize))
	if _, _, err := ReadHeader(garbage); !errors.Is(err, ErrNotNifti) {
		t.Errorf("error = %v, want ErrNotNifti", err)
	}
}

func TestLPSToRAS(t *testing.T) {
	lps := mat.NewDense(4, 4, []float64{
		1, 0, 0, 10,
		0, 1, 0, 20,
		0, 0, 1, 30,
		0, 0, 0, 1,
	})
	ras := LPSToRAS(lps)
	want := mat.NewDense(4, 4, []float64{
		-1, 0, 0, -10,
		0, -1, 0, -20,
		0, 0, 1, 30,
		0, 0, 0, 1,
	})
	if !mat.Equal(ras, want) {
		t.Errorf("LPSToRAS =\n%v", mat.Formatted(ras))
	}
	if lps.At(0, 3) != 10 {
		t.Error("LPSToRAS modified its input")
	}
}
