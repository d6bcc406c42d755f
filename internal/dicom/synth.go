package dicom

import (
	"fmt"
	"hash/fnv"
	"math"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"sync"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mrsinham/dcmstack/internal/util"
)

// mrImageStorage is the MR Image Storage SOP Class UID.
const mrImageStorage = "1.2.840.10008.5.1.4.1.1.4"

// Pixel range of the synthetic 12-bit images.
const (
	bitsStored = 12
	maxPixel   = 1<<bitsStored - 1
)

// SeriesOptions describes a synthetic multi-echo MR series. Every combination
// of slice index and echo time gets one file.
type SeriesOptions struct {
	OutputDir string

	Rows int
	Cols int

	NumSlices int
	// EchoTimes in ms; defaults to a single 20 ms echo.
	EchoTimes []float64

	// PixelSpacing is the row then column spacing in mm; defaults to 1x1.
	PixelSpacing [2]float64
	// SliceSpacing is the distance between slice centres in mm; defaults to 5.
	SliceSpacing float64
	// Orientation is ImageOrientationPatient; the zero value means axial.
	Orientation [6]float64
	// Origin is the position of the first slice.
	Origin [3]float64

	// SkipSlices lists slice indices not written, to produce incomplete series.
	SkipSlices []int

	Seed    int64
	Workers int
	Overlay bool
	Quiet   bool
}

// GeneratedFile records one written file.
type GeneratedFile struct {
	Path           string
	SliceIndex     int
	EchoTime       float64
	Position       [3]float64
	SOPInstanceUID string
	InstanceNumber int
}

// imageTask holds everything needed to write one file.
type imageTask struct {
	index     int
	file      GeneratedFile
	width     int
	height    int
	pixelSeed uint64
	label     string
	overlay   bool
	metadata  []*dicom.Element
}

func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// formatDS renders f as a DICOM decimal string of at most 16 characters.
func formatDS(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for prec := 15; len(s) > 16 && prec > 0; prec-- {
		s = strconv.FormatFloat(f, 'g', prec, 64)
	}
	return s
}

func formatAll(vals ...float64) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = formatDS(v)
	}
	return out
}

func (opts *SeriesOptions) applyDefaults() {
	if len(opts.EchoTimes) == 0 {
		opts.EchoTimes = []float64{20}
	}
	if opts.PixelSpacing == [2]float64{} {
		opts.PixelSpacing = [2]float64{1, 1}
	}
	if opts.SliceSpacing == 0 {
		opts.SliceSpacing = 5
	}
	if opts.Orientation == [6]float64{} {
		opts.Orientation = [6]float64{1, 0, 0, 0, 1, 0}
	}
}

func (opts *SeriesOptions) validate() error {
	if opts.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return fmt.Errorf("image size must be > 0, got %dx%d", opts.Rows, opts.Cols)
	}
	if opts.NumSlices <= 0 {
		return fmt.Errorf("number of slices must be > 0, got %d", opts.NumSlices)
	}
	if opts.PixelSpacing[0] <= 0 || opts.PixelSpacing[1] <= 0 {
		return fmt.Errorf("pixel spacing must be > 0, got %v", opts.PixelSpacing)
	}
	row := r3.Vec{X: opts.Orientation[0], Y: opts.Orientation[1], Z: opts.Orientation[2]}
	col := r3.Vec{X: opts.Orientation[3], Y: opts.Orientation[4], Z: opts.Orientation[5]}
	if math.Abs(r3.Norm(row)-1) > 1e-4 || math.Abs(r3.Norm(col)-1) > 1e-4 || math.Abs(r3.Dot(row, col)) > 1e-4 {
		return fmt.Errorf("orientation %v is not two orthogonal unit vectors", opts.Orientation)
	}
	seen := make(map[float64]bool)
	for _, te := range opts.EchoTimes {
		if seen[te] {
			return fmt.Errorf("echo time %g listed twice", te)
		}
		seen[te] = true
	}
	return nil
}

// GenerateSeries writes one MR DICOM file per (slice, echo) pair. Files are
// named after their echo time and slice position. Pixels are a smooth blob
// plus deterministic noise, so the same options always give the same files.
func GenerateSeries(opts SeriesOptions) ([]GeneratedFile, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(opts.OutputDir)) // hash.Write never returns an error
		seed = int64(h.Sum64())
	}
	if !opts.Quiet {
		fmt.Printf("Using seed: %d\n", seed)
	}
	rng := randv2.New(randv2.NewPCG(uint64(seed), uint64(seed)))

	sex := []string{"M", "F"}[rng.IntN(2)]
	patientName := util.GeneratePatientName(sex, rng)
	patientID := fmt.Sprintf("PID%06d", rng.IntN(900000)+100000)
	birthDate := fmt.Sprintf("%04d%02d%02d", rng.IntN(51)+1950, rng.IntN(12)+1, rng.IntN(28)+1)
	studyUID := util.GenerateDeterministicUID(fmt.Sprintf("%d_study", seed))
	seriesUID := util.GenerateDeterministicUID(fmt.Sprintf("%d_series", seed))
	frameUID := util.GenerateDeterministicUID(fmt.Sprintf("%d_frame", seed))

	row := r3.Vec{X: opts.Orientation[0], Y: opts.Orientation[1], Z: opts.Orientation[2]}
	col := r3.Vec{X: opts.Orientation[3], Y: opts.Orientation[4], Z: opts.Orientation[5]}
	normal := r3.Unit(r3.Cross(row, col))
	origin := r3.Vec{X: opts.Origin[0], Y: opts.Origin[1], Z: opts.Origin[2]}
	orientation := formatAll(opts.Orientation[:]...)

	var tasks []imageTask
	instance := 1
	for e, te := range opts.EchoTimes {
		for s := 0; s < opts.NumSlices; s++ {
			if slices.Contains(opts.SkipSlices, s) {
				continue
			}
			pos := r3.Add(origin, r3.Scale(float64(s)*opts.SliceSpacing, normal))
			position := formatAll(pos.X, pos.Y, pos.Z)
			sliceLocation := r3.Dot(pos, normal)

			sopUID := util.GenerateDeterministicUID(fmt.Sprintf("%d_echo_%d_slice_%d", seed, e, s))
			filename := fmt.Sprintf("TE_%s_SlcPos_%s.dcm", formatDS(te), formatDS(sliceLocation))

			metadata := []*dicom.Element{
				mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
				mustNewElement(tag.PatientName, []string{patientName}),
				mustNewElement(tag.PatientID, []string{patientID}),
				mustNewElement(tag.PatientBirthDate, []string{birthDate}),
				mustNewElement(tag.PatientSex, []string{sex}),
				mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
				mustNewElement(tag.StudyID, []string{"1"}),
				mustNewElement(tag.StudyDate, []string{"20240115"}),
				mustNewElement(tag.StudyTime, []string{"100235.123456"}),
				mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
				mustNewElement(tag.SeriesNumber, []string{"1"}),
				mustNewElement(tag.SeriesDescription, []string{"qT2 multi-echo"}),
				mustNewElement(tag.Modality, []string{"MR"}),
				mustNewElement(tag.Manufacturer, []string{"SIEMENS"}),
				mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
				mustNewElement(tag.SOPClassUID, []string{mrImageStorage}),
				mustNewElement(tag.InstanceNumber, []string{strconv.Itoa(instance)}),
				mustNewElement(tag.AcquisitionTime, []string{fmt.Sprintf("1003%02d", s%60)}),
				mustNewElement(tag.EchoTime, []string{formatDS(te)}),
				mustNewElement(tag.EchoNumbers, []string{strconv.Itoa(e + 1)}),
				mustNewElement(tag.RepetitionTime, []string{"2500"}),
				mustNewElement(tag.MagneticFieldStrength, []string{"3"}),
				mustNewElement(tag.PixelSpacing, formatAll(opts.PixelSpacing[0], opts.PixelSpacing[1])),
				mustNewElement(tag.SliceThickness, []string{formatDS(math.Abs(opts.SliceSpacing))}),
				mustNewElement(tag.SpacingBetweenSlices, []string{formatDS(math.Abs(opts.SliceSpacing))}),
				mustNewElement(tag.ImagePositionPatient, position),
				mustNewElement(tag.ImageOrientationPatient, orientation),
				mustNewElement(tag.SliceLocation, []string{formatDS(sliceLocation)}),
				mustNewElement(tag.FrameOfReferenceUID, []string{frameUID}),
				mustNewElement(tag.Rows, []int{opts.Rows}),
				mustNewElement(tag.Columns, []int{opts.Cols}),
				mustNewElement(tag.BitsAllocated, []int{16}),
				mustNewElement(tag.BitsStored, []int{bitsStored}),
				mustNewElement(tag.HighBit, []int{bitsStored - 1}),
				mustNewElement(tag.PixelRepresentation, []int{0}),
				mustNewElement(tag.SamplesPerPixel, []int{1}),
				mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
			}

			pixelSeedHash := fnv.New64a()
			_, _ = fmt.Fprintf(pixelSeedHash, "%d_pixel_%d_%d", seed, e, s)

			tasks = append(tasks, imageTask{
				index: len(tasks),
				file: GeneratedFile{
					Path:           filepath.Join(opts.OutputDir, filename),
					SliceIndex:     s,
					EchoTime:       te,
					Position:       [3]float64{pos.X, pos.Y, pos.Z},
					SOPInstanceUID: sopUID,
					InstanceNumber: instance,
				},
				width:     opts.Cols,
				height:    opts.Rows,
				pixelSeed: pixelSeedHash.Sum64(),
				label:     fmt.Sprintf("TE%g S%d", te, s),
				overlay:   opts.Overlay,
				metadata:  metadata,
			})
			instance++
		}
	}

	if err := runTasks(tasks, opts.Workers, opts.Quiet); err != nil {
		return nil, err
	}

	files := make([]GeneratedFile, len(tasks))
	for i, task := range tasks {
		files[i] = task.file
	}
	if !opts.Quiet {
		fmt.Printf("✓ %d DICOM files created in: %s/\n", len(files), opts.OutputDir)
	}
	return files, nil
}

// runTasks writes the files with a pool of workers and returns the first error.
func runTasks(tasks []imageTask, workers int, quiet bool) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskChan := make(chan imageTask, len(tasks))
	resultChan := make(chan struct {
		index int
		err   error
	}, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				resultChan <- struct {
					index int
					err   error
				}{task.index, writeImage(task)}
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("generate image %d: %w", result.index, result.err)
		}
		completed++
		if !quiet && (completed%10 == 0 || completed == len(tasks)) {
			fmt.Printf("  Progress: %d/%d (%.0f%%)\n", completed, len(tasks), float64(completed)/float64(len(tasks))*100)
		}
	}
	return firstErr
}

// writeImage renders the pixels of one task and writes the file.
func writeImage(task imageTask) error {
	width, height := task.width, task.height
	rng := randv2.New(randv2.NewPCG(task.pixelSeed, task.pixelSeed))

	nativeFrame := frame.NewNativeFrame[uint16](16, height, width, width*height, 1)
	centerX, centerY := float64(width)/2, float64(height)/2
	maxDist := math.Sqrt(centerX*centerX + centerY*centerY)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-centerX, float64(y)-centerY
			blob := (1 - math.Sqrt(dx*dx+dy*dy)/maxDist) * maxPixel * 0.6
			noise := (rng.Float64() - 0.5) * maxPixel * 0.1
			v := math.Max(0, math.Min(maxPixel, 1024+blob+noise))
			nativeFrame.RawData[y*width+x] = uint16(v)
		}
	}
	if task.overlay {
		drawLabel(nativeFrame.RawData, width, height, task.label, maxPixel)
	}

	pixelData := dicom.PixelDataInfo{
		Frames: []*frame.Frame{{Encapsulated: false, NativeData: nativeFrame}},
	}
	elements := make([]*dicom.Element, len(task.metadata)+1)
	copy(elements, task.metadata)
	elements[len(task.metadata)] = mustNewElement(tag.PixelData, pixelData)

	f, err := os.Create(task.file.Path)
	if err != nil {
		return err
	}
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
