package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/mrsinham/dcmstack/internal/dcmmeta"
	"github.com/mrsinham/dcmstack/internal/nifti"
	"github.com/mrsinham/dcmstack/internal/volume"
)

// infoOptions holds the options for the info command.
type infoOptions struct {
	stackFlags
	showMeta bool // print the embedded metadata of NIfTI files
}

func newInfoCmd() *cobra.Command {
	var opts infoOptions

	cmd := &cobra.Command{
		Use:   "info [paths...]",
		Short: "Print the shape and affine of a stack or a NIfTI file",
		Long: `Info stacks the DICOM files under the given paths without writing anything
and prints the resulting shape, voxel order and LPS affine. The voxel order
uses the same RAS letters as stack --voxel-order, so passing it there keeps
the voxels as stacked.

A single .nii argument is read back instead: its header, sform and any
embedded metadata bundle are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && isNifti(args[0]) {
				return printNifti(cmd.OutOrStdout(), args[0], opts.showMeta)
			}
			cfg, err := resolveConfig(cmd, &opts.stackFlags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			st, err := buildStack(cmd.Context(), args, cfg, opts.strict)
			if err != nil {
				return err
			}
			shape, err := st.Shape()
			if err != nil {
				return err
			}
			affine, err := st.Affine()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Slices: %d\n", st.Len())
			fmt.Fprintf(w, "Shape:  %s\n", formatShape(shape))
			fmt.Fprintf(w, "Order:  %s\n", volume.AffineOrder(nifti.LPSToRAS(affine)))
			fmt.Fprintln(w, "Affine (LPS):")
			printMatrix(w, affine)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.showMeta, "show-meta", false, "print embedded metadata of a NIfTI file")
	return cmd
}

func isNifti(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".nii")
}

func printNifti(w io.Writer, path string, showMeta bool) error {
	f, err := nifti.ReadFile(path)
	if err != nil {
		return err
	}
	h := f.Header

	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "Shape:       %s\n", formatShape(h.Shape()))
	fmt.Fprintf(w, "Description: %s\n", h.Description())

	sform := h.Sform()
	affine := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			affine.Set(r, c, sform[r][c])
		}
	}
	affine.Set(3, 3, 1)
	fmt.Fprintf(w, "Order:       %s\n", volume.AffineOrder(affine))
	fmt.Fprintln(w, "Sform (RAS):")
	printMatrix(w, affine)

	for _, ext := range f.Extensions {
		if ext.Code != dcmmeta.ExtensionCode {
			fmt.Fprintf(w, "Extension:   code %d, %d bytes\n", ext.Code, len(ext.Data))
			continue
		}
		bundle, err := dcmmeta.Parse(ext.Data)
		if err != nil {
			return fmt.Errorf("%s: metadata extension: %w", path, err)
		}
		fmt.Fprintf(w, "Metadata:    version %s, %d global keys, %d per-slice keys\n",
			bundle.Version, len(bundle.Global), len(bundle.PerSlice))
		if showMeta {
			printBundle(w, bundle)
		}
	}
	return nil
}

func printBundle(w io.Writer, b *dcmmeta.Bundle) {
	keys := make([]string, 0, len(b.Global))
	for k := range b.Global {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, b.Global[k])
	}

	keys = keys[:0]
	for k := range b.PerSlice {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s (per slice): %v\n", k, b.PerSlice[k])
	}
}

func printMatrix(w io.Writer, m mat.Matrix) {
	fmt.Fprintf(w, "%8.3f\n", mat.Formatted(m, mat.Prefix(""), mat.Squeeze()))
}
