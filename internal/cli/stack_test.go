package cli

import (
	"bytes"
	"context"
	"slices"
	"testing"

	"github.com/mrsinham/dcmstack/internal/config"
	"github.com/mrsinham/dcmstack/internal/dcmmeta"
	"github.com/mrsinham/dcmstack/internal/nifti"
	"github.com/mrsinham/dcmstack/internal/stack"
	"github.com/mrsinham/dcmstack/internal/volume"
)

// axialStack holds three axial 8x6 slices at z = 0, 5 and 10. Every pixel of
// a slice equals its z, as does its SliceLocation.
func axialStack(t *testing.T, cfg *config.Config) *stack.Stack {
	t.Helper()
	st := stack.New(cfg.StackConfig())
	for _, z := range []float64{10, 0, 5} {
		px := make([]float64, 8*6)
		for i := range px {
			px[i] = z
		}
		sl := &stack.Slice{
			Rows:         8,
			Cols:         6,
			PixelSpacing: []float64{1, 1},
			Orientation:  []float64{1, 0, 0, 0, 1, 0},
			Position:     []float64{0, 0, z},
			Pixels:       px,
			Meta:         stack.MapMeta{"SliceLocation": z, "EchoTime": 20.0},
		}
		if err := st.Add(sl); err != nil {
			t.Fatalf("Add(z=%g): %v", z, err)
		}
	}
	return st
}

func embeddedBundle(t *testing.T, img *nifti.Image) *dcmmeta.Bundle {
	t.Helper()
	if len(img.Extensions) != 1 {
		t.Fatalf("got %d extensions, want 1", len(img.Extensions))
	}
	b, err := dcmmeta.Parse(img.Extensions[0].Data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return b
}

func TestStackedImage_MetaFollowsVoxels(t *testing.T) {
	tests := []struct {
		name      string
		order     string
		shape     []int
		sliceDim  int
		locations []float64
	}{
		{"stacked order", "", []int{8, 6, 3}, 2, []float64{0, 5, 10}},
		{"native RAS order", "ARI", []int{8, 6, 3}, 2, []float64{0, 5, 10}},
		{"LAS flips the slice axis", "LAS", []int{6, 8, 3}, 2, []float64{10, 5, 0}},
		{"slice axis moved first", "SAR", []int{3, 8, 6}, 0, []float64{10, 5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Output.VoxelOrder = tt.order
			cfg.Output.EmbedMeta = true

			img, err := stackedImage(axialStack(t, cfg), cfg)
			if err != nil {
				t.Fatalf("stackedImage: %v", err)
			}
			if !slices.Equal(img.Data.Shape, tt.shape) {
				t.Fatalf("file shape = %v, want %v", img.Data.Shape, tt.shape)
			}

			b := embeddedBundle(t, img)
			if !slices.Equal(b.Shape, img.Data.Shape) {
				t.Errorf("bundle shape %v differs from file shape %v", b.Shape, img.Data.Shape)
			}
			if b.SliceDim != tt.sliceDim {
				t.Errorf("SliceDim = %d, want %d", b.SliceDim, tt.sliceDim)
			}
			for r := 0; r < 4; r++ {
				for c := 0; c < 4; c++ {
					if b.Affine[r][c] != img.Affine.At(r, c) {
						t.Fatalf("bundle affine[%d][%d] = %v, file affine has %v", r, c, b.Affine[r][c], img.Affine.At(r, c))
					}
				}
			}

			locs := b.PerSlice["SliceLocation"]
			if len(locs) != len(tt.locations) {
				t.Fatalf("SliceLocation has %d values, want %d", len(locs), len(tt.locations))
			}
			idx := make([]int, 3)
			for k, want := range tt.locations {
				idx[0], idx[1], idx[2] = 0, 0, 0
				idx[tt.sliceDim] = k
				voxel := img.Data.At(idx...)
				if locs[k] != want || voxel != want {
					t.Errorf("file slice %d: SliceLocation %v, voxel %v, want both %v", k, locs[k], voxel, want)
				}
			}
			if _, ok := b.Global["EchoTime"]; !ok {
				t.Error("EchoTime should be global")
			}
		})
	}
}

func TestStackedImage_NoMeta(t *testing.T) {
	cfg := config.DefaultConfig()
	img, err := stackedImage(axialStack(t, cfg), cfg)
	if err != nil {
		t.Fatalf("stackedImage: %v", err)
	}
	if len(img.Extensions) != 0 {
		t.Errorf("got %d extensions without embed_meta", len(img.Extensions))
	}
	if got := volume.AffineOrder(img.Affine); got != "LAS" {
		t.Errorf("default order = %s, want LAS", got)
	}
}

func TestReverseSlices(t *testing.T) {
	cells := make([]*stack.Slice, 6)
	for i := range cells {
		cells[i] = &stack.Slice{Source: string(rune('a' + i))}
	}
	var got []string
	for _, sl := range reverseSlices(cells, 3) {
		got = append(got, sl.Source)
	}
	if want := []string{"c", "b", "a", "f", "e", "d"}; !slices.Equal(got, want) {
		t.Errorf("reverseSlices = %v, want %v", got, want)
	}
}

func TestInfoOrderIsNativeVoxelOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	st := axialStack(t, cfg)
	affine, err := st.Affine()
	if err != nil {
		t.Fatalf("Affine: %v", err)
	}
	order := volume.AffineOrder(nifti.LPSToRAS(affine))

	plan, err := volume.PlanReorder(nifti.LPSToRAS(affine), order)
	if err != nil {
		t.Fatalf("PlanReorder(%s): %v", order, err)
	}
	if plan.Perm != [3]int{0, 1, 2} || plan.Flip != [3]bool{} {
		t.Errorf("reordering to the reported order %s is not a no-op: %+v", order, plan)
	}
}

func TestInfoCommandOrder(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	root := NewRootCmd(&out, &out)
	root.SetArgs([]string{"synth", "-o", dir, "--rows", "8", "--cols", "6", "--slices", "3", "--quiet"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("synth: %v", err)
	}

	out.Reset()
	root = NewRootCmd(&out, &out)
	root.SetArgs([]string{"info", dir})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("Order:  ARI")) {
		t.Errorf("info output should report the RAS voxel order ARI:\n%s", out.String())
	}
}
