// Package transform projects one subject image onto an atlas and writes the
// per-region values as a CSV table.
package transform

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/carbocation/pfx"

	"atlastransform/internal/apperr"
	"atlastransform/internal/models"
	"atlastransform/pkg/atlas"
	"atlastransform/pkg/interpolation"
	"atlastransform/pkg/logging"
	"atlastransform/pkg/nifti"
	"atlastransform/pkg/region"
	"atlastransform/pkg/series"
	"atlastransform/pkg/storage"
	"atlastransform/pkg/table"
)

// Params holds everything needed to process one image
type Params struct {
	// ImagePath is the 3D or 4D subject image, a local path or gs:// object
	ImagePath string

	// Atlas selects the atlas and its parameters
	Atlas atlas.Spec

	// OutputDir receives the CSV file; created if missing. Empty means the
	// current directory.
	OutputDir string

	// Strategy names the per-region reduction; empty means mean
	Strategy string

	// IncludeBackground keeps label 0 as a region
	IncludeBackground bool

	// SphereRadius is the radius in mm used with coordinate atlases
	SphereRadius float64

	// SmoothingFWHM is applied to the volumes before sphere extraction
	SmoothingFWHM float64

	// SeriesStyle picks the "ts" or "_ts" marker for 4D input
	SeriesStyle table.SeriesStyle

	// WriteResampled also saves the atlas on the subject grid as NIfTI
	WriteResampled bool

	// Atlases resolves the atlas spec, typically a shared *atlas.Cache
	Atlases atlas.Source

	// Store opens the subject image; nil means a default *storage.Store
	Store storage.Opener

	// Logger receives progress messages; nil discards them
	Logger logging.Logger
}

// Result describes the table that was written
type Result struct {
	OutputPath string
	Rows       int
	Columns    int
	Token      string
	Series     bool

	// ResampledPath is set when the resampled atlas was written
	ResampledPath string
}

// Transformer runs the processing steps for a single image:
// 1. Resolving the atlas
// 2. Loading the subject image
// 3. Splitting it into volumes
// 4. Building regions on the subject grid
// 5. Aggregating every region in every volume
// 6. Writing the table
type Transformer struct {
	params   *Params
	strategy region.Strategy
	log      logging.Logger

	resolved *atlas.Resolved
	img      *models.Image
	vols     series.List
	regions  []region.Region

	// resampled is the atlas on the subject grid, for grid atlases
	resampled *models.LabelVolume
}

// NewTransformer validates params and returns a transformer. Validation
// touches no files, so every configuration error surfaces here.
func NewTransformer(params *Params) (*Transformer, error) {
	const op = "transform.NewTransformer"

	if params.ImagePath == "" {
		return nil, apperr.New(apperr.Config, op, "no input image given")
	}
	if params.Atlases == nil {
		return nil, apperr.New(apperr.Config, op, "no atlas source given")
	}
	if err := params.Atlas.Validate(); err != nil {
		return nil, err
	}
	strategy, err := region.GetStrategy(params.Strategy)
	if err != nil {
		return nil, err
	}
	if _, err := table.ParseSeriesStyle(string(params.SeriesStyle)); err != nil {
		return nil, err
	}
	if params.Atlas.Name == atlas.Power && params.SphereRadius <= 0 {
		return nil, apperr.New(apperr.Config, op, "sphere radius must be positive, got %g", params.SphereRadius)
	}
	if params.SmoothingFWHM < 0 {
		return nil, apperr.New(apperr.Config, op, "smoothing FWHM must not be negative, got %g", params.SmoothingFWHM)
	}

	log := params.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Transformer{
		params:   params,
		strategy: strategy,
		log:      log,
	}, nil
}

// Process validates params and runs the whole pipeline for one image
func Process(ctx context.Context, params Params) (Result, error) {
	tr, err := NewTransformer(&params)
	if err != nil {
		return Result{}, err
	}
	return tr.Process(ctx)
}

// Process runs all steps and returns a description of the written table
func (tr *Transformer) Process(ctx context.Context) (Result, error) {
	tlog := logging.NewTimeLog(tr.log)
	p := tr.params

	// Step 1: Resolve the atlas
	tr.log.Debugf("Step 1: Resolving atlas %v...", p.Atlas)
	resolved, err := p.Atlases.Resolve(ctx, p.Atlas)
	if err != nil {
		return Result{}, err
	}
	tr.resolved = resolved

	// Step 2: Load the subject image
	tr.log.Debugf("Step 2: Loading %s...", p.ImagePath)
	if err := tr.loadImage(ctx); err != nil {
		return Result{}, err
	}

	// Step 3: Split into volumes
	tr.vols = series.Split(tr.img)
	tr.log.Debugf("Step 3: Split %s into %d volume(s) on grid %v", p.ImagePath, len(tr.vols), tr.img.Shape)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Step 4: Build regions on the subject grid
	tr.log.Debugf("Step 4: Building %s regions...", resolved.Kind())
	if err := tr.buildRegions(); err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Step 5: Aggregate
	tr.log.Debugf("Step 5: Aggregating %d regions over %d volume(s)...", len(tr.regions), len(tr.vols))
	t := region.Build(tr.vols, tr.regions, tr.strategy)

	// Step 6: Write the table
	isSeries := series.IsSeries(tr.img)
	out, err := table.Write(t, p.OutputDir, p.ImagePath, resolved.Token, isSeries, p.SeriesStyle)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		OutputPath: out,
		Rows:       len(t.Rows),
		Columns:    len(tr.vols),
		Token:      resolved.Token,
		Series:     isSeries,
	}

	if p.WriteResampled && tr.resampled != nil {
		path, err := tr.writeResampled()
		if err != nil {
			return Result{}, err
		}
		res.ResampledPath = path
	}

	tlog.Infof("Wrote %d x %d table to %s", res.Rows, res.Columns, res.OutputPath)
	return res, nil
}

// loadImage reads the subject image, staging remote objects locally
func (tr *Transformer) loadImage(ctx context.Context) error {
	const op = "transform.loadImage"

	store := tr.params.Store
	if store == nil {
		s := &storage.Store{}
		defer s.Close()
		store = s
	}

	local, cleanup, err := store.Local(ctx, tr.params.ImagePath)
	defer cleanup()
	if err != nil {
		return apperr.Wrap(apperr.Input, op, pfx.Err(err))
	}

	img, err := nifti.Load(local)
	if err != nil {
		return apperr.Wrap(apperr.Input, op, pfx.Err(fmt.Errorf("%s: %w", tr.params.ImagePath, err)))
	}
	tr.img = img
	return nil
}

// buildRegions maps the atlas onto the subject grid. Label atlases are
// resampled, coordinate atlases become spheres around each point.
func (tr *Transformer) buildRegions() error {
	const op = "transform.buildRegions"

	affine, shape, err := tr.vols.Geometry()
	if err != nil {
		return apperr.Wrap(apperr.Input, op, err)
	}

	switch tr.resolved.Kind() {
	case atlas.GridKind:
		lv, err := interpolation.Resample(tr.resolved.Labels, affine, shape)
		if err != nil {
			return err
		}
		tr.resampled = lv
		tr.regions = region.FromLabels(lv, tr.params.IncludeBackground)
		if len(tr.regions) == 0 {
			tr.log.Warningf("Atlas %s does not overlap %s; the table will be empty", tr.resolved.Token, tr.params.ImagePath)
		}

	case atlas.PointKind:
		vi, err := interpolation.NewVoxelIndex(shape, affine)
		if err != nil {
			return apperr.Wrap(apperr.Input, op, err)
		}
		tr.regions = region.FromSpheres(vi, tr.resolved.Points, tr.params.SphereRadius)

		empty := 0
		for _, r := range tr.regions {
			if len(r.Voxels) == 0 {
				empty++
			}
		}
		if empty > 0 {
			tr.log.Warningf("%d of %d spheres fall outside %s and will be reported as nan", empty, len(tr.regions), tr.params.ImagePath)
		}

		if tr.params.SmoothingFWHM > 0 {
			smoothed := make(series.List, len(tr.vols))
			for i, v := range tr.vols {
				smoothed[i] = interpolation.Smooth(v, tr.params.SmoothingFWHM)
			}
			tr.vols = smoothed
		}
	}

	return nil
}

// writeResampled saves the atlas on the subject grid next to the table
func (tr *Transformer) writeResampled() (string, error) {
	dir := tr.params.OutputDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_atlas.nii.gz", table.Stem(tr.params.ImagePath), tr.resolved.Token))
	if err := nifti.WriteLabels(path, tr.resampled); err != nil {
		return "", apperr.Wrap(apperr.Output, "transform.writeResampled", pfx.Err(err))
	}
	return path, nil
}
