package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mrsinham/dcmstack/internal/config"
	"github.com/mrsinham/dcmstack/internal/dcmmeta"
	"github.com/mrsinham/dcmstack/internal/dicom"
	"github.com/mrsinham/dcmstack/internal/nifti"
	"github.com/mrsinham/dcmstack/internal/stack"
	"github.com/mrsinham/dcmstack/internal/volume"
)

// stackFlags holds the options shared by the stack and info commands.
type stackFlags struct {
	configPath   string   // YAML config file, flags override its values
	timeKey      string   // attribute ordering the time axis
	timeAbs      []string // expected time values in axis order
	vectorKey    string   // attribute ordering the vector axis
	vectorAbs    []string // expected vector values in axis order
	asText       bool     // compare ordering values as text
	allowDummies bool     // accept slices without pixel data
	workers      int      // parallel file decoders
	strict       bool     // fail on the first rejected file instead of skipping it
}

// stackOptions holds the options for the stack command.
type stackOptions struct {
	stackFlags
	output     string   // output .nii path
	voxelOrder string   // three letter voxel order, empty keeps the stacked order
	embedMeta  bool     // embed the metadata bundle as a NIfTI extension
	include    []string // metadata key patterns to keep
	exclude    []string // metadata key patterns to drop
}

func (f *stackFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fl.StringVar(&f.timeKey, "time-key", "", "DICOM keyword ordering the time axis (e.g. EchoTime)")
	fl.StringSliceVar(&f.timeAbs, "time-abs", nil, "expected time-axis values, in order")
	fl.StringVar(&f.vectorKey, "vector-key", "", "DICOM keyword ordering the vector axis")
	fl.StringSliceVar(&f.vectorAbs, "vector-abs", nil, "expected vector-axis values, in order")
	fl.BoolVar(&f.asText, "as-text", false, "compare ordering values as text")
	fl.BoolVar(&f.allowDummies, "allow-dummies", false, "accept slices without pixel data")
	fl.IntVar(&f.workers, "workers", 0, "parallel file decoders (0 = one per CPU)")
	fl.BoolVar(&f.strict, "strict", false, "fail on the first unreadable or rejected file")
}

func newStackCmd() *cobra.Command {
	var opts stackOptions

	cmd := &cobra.Command{
		Use:   "stack [paths...]",
		Short: "Stack DICOM slices into a NIfTI-1 volume",
		Long: `Stack reads every DICOM file under the given paths, sorts the slices into
a grid and writes the volume as a single-file NIfTI-1 image.

Slices are ordered in space along the slice normal. Use --time-key and
--vector-key to add a fourth and fifth axis ordered by a DICOM attribute.`,
		Example: `  dcmstack stack ./series -o volume.nii
  dcmstack stack ./series -o volume.nii --time-key EchoTime --embed-meta`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts.stackFlags)
			if err != nil {
				return err
			}
			applyOutputFlags(cmd, cfg, &opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runStack(cmd, args, cfg, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output NIfTI file (required)")
	cmd.Flags().StringVar(&opts.voxelOrder, "voxel-order", "LAS", "voxel order of the output, empty keeps the stacked order")
	cmd.Flags().BoolVar(&opts.embedMeta, "embed-meta", false, "embed DICOM metadata as a NIfTI extension")
	cmd.Flags().StringSliceVar(&opts.include, "include", nil, "metadata key patterns to keep")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "metadata key patterns to drop (replaces the defaults)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// resolveConfig loads the config file named by --config, or the defaults,
// and applies the ordering flags on top.
func resolveConfig(cmd *cobra.Command, f *stackFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		if _, err := os.Stat(f.configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fl := cmd.Flags()
	if fl.Changed("time-key") {
		cfg.Stack.TimeOrder = orderingFlag(f.timeKey)
	}
	if fl.Changed("vector-key") {
		cfg.Stack.VectorOrder = orderingFlag(f.vectorKey)
	}
	if fl.Changed("time-abs") {
		if cfg.Stack.TimeOrder == nil {
			return nil, errors.New("--time-abs requires --time-key")
		}
		cfg.Stack.TimeOrder.Abs = parseAbs(f.timeAbs, f.asText)
	}
	if fl.Changed("vector-abs") {
		if cfg.Stack.VectorOrder == nil {
			return nil, errors.New("--vector-abs requires --vector-key")
		}
		cfg.Stack.VectorOrder.Abs = parseAbs(f.vectorAbs, f.asText)
	}
	if fl.Changed("as-text") {
		for _, o := range []*config.OrderingConfig{cfg.Stack.TimeOrder, cfg.Stack.VectorOrder} {
			if o != nil {
				o.AsText = f.asText
			}
		}
	}
	if fl.Changed("allow-dummies") {
		cfg.Stack.AllowDummies = f.allowDummies
	}
	if fl.Changed("workers") {
		cfg.Stack.Workers = f.workers
	}
	return cfg, nil
}

func applyOutputFlags(cmd *cobra.Command, cfg *config.Config, opts *stackOptions) {
	fl := cmd.Flags()
	if fl.Changed("voxel-order") {
		cfg.Output.VoxelOrder = opts.voxelOrder
	}
	if fl.Changed("embed-meta") {
		cfg.Output.EmbedMeta = opts.embedMeta
	}
	if fl.Changed("include") {
		cfg.Meta.Include = opts.include
	}
	if fl.Changed("exclude") {
		cfg.Meta.Exclude = opts.exclude
	}
}

func orderingFlag(key string) *config.OrderingConfig {
	if key == "" {
		return nil
	}
	return &config.OrderingConfig{Key: key}
}

// parseAbs turns flag values into ordering values. Numbers stay numbers
// unless asText is set.
func parseAbs(vals []string, asText bool) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		v = strings.TrimSpace(v)
		if !asText {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[i] = f
				continue
			}
		}
		out[i] = v
	}
	return out
}

// buildStack decodes the DICOM files under paths and adds them to a new
// stack. Unreadable or rejected files are logged and skipped unless strict.
func buildStack(ctx context.Context, paths []string, cfg *config.Config, strict bool) (*stack.Stack, error) {
	logger := loggerFromContext(ctx)

	files, err := dicom.CollectFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no DICOM files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Collected files", "count", len(files))

	prog := newProgress(logger)
	results := dicom.LoadFiles(ctx, files, cfg.Stack.Workers)
	st := stack.New(cfg.StackConfig())
	skipped := 0
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := r.Err
		if err == nil {
			err = st.Add(r.Slice)
		}
		if err == nil {
			continue
		}
		if strict {
			return nil, err
		}
		logSkipped(logger, r.Path, err)
		skipped++
	}
	if st.Len() == 0 {
		return nil, fmt.Errorf("none of the %d files could be stacked", len(files))
	}
	msg := fmt.Sprintf("Loaded %d slices from %d files", st.Len(), len(files))
	if skipped > 0 {
		msg += fmt.Sprintf(", skipped %d", skipped)
	}
	prog.done(msg)
	return st, nil
}

func logSkipped(logger *log.Logger, path string, err error) {
	reason := "unreadable"
	switch {
	case errors.Is(err, stack.ErrImageCollision):
		reason = "collision"
	case errors.Is(err, stack.ErrIncongruentImage):
		reason = "incongruent"
	case errors.Is(err, stack.ErrOrdinateNotFound):
		reason = "no ordinate"
	}
	logger.Warn("Skipping file", "path", path, "reason", reason, "err", err)
}

func runStack(cmd *cobra.Command, paths []string, cfg *config.Config, opts stackOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	st, err := buildStack(ctx, paths, cfg, opts.strict)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	img, err := stackedImage(st, cfg)
	if err != nil {
		return err
	}
	logger.Debug("Stacked", "shape", img.Data.Shape, "order", volume.AffineOrder(img.Affine))

	if err := nifti.WriteFile(opts.output, img); err != nil {
		return err
	}
	prog.done("Wrote " + opts.output)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s shape=%s order=%s\n",
		opts.output, formatShape(img.Data.Shape), volume.AffineOrder(img.Affine))
	return err
}

// stackedImage assembles the volume written for st: voxels in the configured
// voxel order, the matching RAS affine and, when enabled, the metadata
// extension with its slices listed in the order they appear in the file.
func stackedImage(st *stack.Stack, cfg *config.Config) (*nifti.Image, error) {
	vox, err := st.Data()
	if err != nil {
		return nil, err
	}
	affine, err := st.Affine()
	if err != nil {
		return nil, err
	}
	img := &nifti.Image{Data: vox, Affine: nifti.LPSToRAS(affine), Description: "dcmstack"}

	sliceDim, reversed := 2, false
	if cfg.Output.VoxelOrder != "" {
		plan, err := volume.PlanReorder(img.Affine, cfg.Output.VoxelOrder)
		if err != nil {
			return nil, err
		}
		reordered, ras, _, err := volume.ReorderVoxels(img.Data, img.Affine, cfg.Output.VoxelOrder)
		if err != nil {
			return nil, err
		}
		img.Data, img.Affine = reordered, ras
		sliceDim = plan.AxisOf(2)
		reversed = plan.Flip[sliceDim]
	}

	if cfg.Output.EmbedMeta {
		ordered, err := st.Ordered()
		if err != nil {
			return nil, err
		}
		if reversed {
			ordered = reverseSlices(ordered, vox.Shape[2])
		}
		ext, err := metaExtension(ordered, cfg, img, sliceDim)
		if err != nil {
			return nil, err
		}
		img.Extensions = append(img.Extensions, ext)
	}
	return img, nil
}

// reverseSlices reverses the spatial order within every run of n slices,
// leaving the time and vector order alone.
func reverseSlices(cells []*stack.Slice, n int) []*stack.Slice {
	out := make([]*stack.Slice, len(cells))
	for b := 0; b+n <= len(cells); b += n {
		for k := 0; k < n; k++ {
			out[b+k] = cells[b+n-1-k]
		}
	}
	return out
}

// metaExtension builds the metadata bundle of ordered, the slices in file
// order, and wraps it as a NIfTI extension.
func metaExtension(ordered []*stack.Slice, cfg *config.Config, img *nifti.Image, sliceDim int) (nifti.Extension, error) {
	keep, err := cfg.KeyFilter()
	if err != nil {
		return nifti.Extension{}, err
	}
	metas := make([]dcmmeta.Source, len(ordered))
	for i, sl := range ordered {
		if sl.Meta != nil {
			metas[i] = sl.Meta
		}
	}
	bundle, err := dcmmeta.Build(metas, keep, img.Data.Shape, img.Affine)
	if err != nil {
		return nifti.Extension{}, err
	}
	bundle.SliceDim = sliceDim
	data, err := bundle.Marshal()
	if err != nil {
		return nifti.Extension{}, err
	}
	return nifti.Extension{Code: dcmmeta.ExtensionCode, Data: data}, nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}
