package atlas

import (
	"context"
	"fmt"
	"io"

	"github.com/carbocation/pfx"

	"atlastransform/internal/apperr"
	"atlastransform/internal/models"
	"atlastransform/pkg/nifti"
	"atlastransform/pkg/storage"
)

// Kind says whether an atlas is a label grid or a set of sphere centres
type Kind int

const (
	GridKind Kind = iota
	PointKind
)

func (k Kind) String() string {
	if k == PointKind {
		return "points"
	}
	return "grid"
}

// Resolved is a loaded atlas. Exactly one of Labels and Points is set, and
// neither may be modified once returned.
type Resolved struct {
	Spec  Spec
	Token string

	// Labels is the labeled grid in the atlas's own space
	Labels *models.LabelVolume

	// Points are sphere centres in mm, in table order
	Points []models.Point
}

// Kind reports which of Labels and Points is set
func (r *Resolved) Kind() Kind {
	if r.Points != nil {
		return PointKind
	}
	return GridKind
}

// Source resolves a spec into atlas data
type Source interface {
	Resolve(ctx context.Context, spec Spec) (*Resolved, error)
}

// Repository loads atlas assets from a data directory laid out as
//
//	shen_268/shen_<r>mm_268_parcellation.nii.gz
//	craddock_2011/<similarity>corr05_<algorithm>_all.nii.gz
//	power_2011/power_2011.csv
//
// Root may be a local directory or a gs:// prefix.
type Repository struct {
	Root  string
	Store storage.Opener
}

// NewRepository returns a repository reading from root through store
func NewRepository(root string, store storage.Opener) *Repository {
	return &Repository{Root: root, Store: store}
}

// Path returns the location of the asset backing spec
func (r *Repository) Path(spec Spec) string {
	switch spec.Name {
	case Shen:
		return storage.Join(r.Root, "shen_268", fmt.Sprintf("shen_%dmm_268_parcellation.nii.gz", spec.Resolution))
	case Craddock:
		alg := string(spec.Algorithm) + "_"
		if spec.Algorithm == NoAlgorithm {
			alg = ""
		}
		return storage.Join(r.Root, "craddock_2011", fmt.Sprintf("%scorr05_%sall.nii.gz", spec.Similarity, alg))
	default:
		return storage.Join(r.Root, "power_2011", "power_2011.csv")
	}
}

// Resolve validates spec and then loads the asset. Validation failures are
// configuration errors and happen before anything is opened. Read or parse
// failures are input errors.
func (r *Repository) Resolve(ctx context.Context, spec Spec) (*Resolved, error) {
	const op = "atlas.Resolve"

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	out := &Resolved{Spec: spec, Token: spec.Token()}
	p := r.Path(spec)

	if spec.Name == Power {
		points, err := r.loadPoints(ctx, p)
		if err != nil {
			return nil, apperr.Wrap(apperr.Input, op, err)
		}
		out.Points = points
		return out, nil
	}

	frame := 0
	if spec.Name == Craddock {
		frame, _ = ClusterIndex(spec.Clusters)
	}
	lv, err := r.loadLabels(ctx, p, frame)
	if err != nil {
		return nil, apperr.Wrap(apperr.Input, op, err)
	}
	out.Labels = lv
	return out, nil
}

func (r *Repository) loadLabels(ctx context.Context, p string, frame int) (*models.LabelVolume, error) {
	local, cleanup, err := r.Store.Local(ctx, p)
	defer cleanup()
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("atlas %s: %w", p, err))
	}

	lv, err := nifti.LoadLabels(local, frame)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("atlas %s: %w", p, err))
	}
	if !lv.Shape.Valid() || len(lv.Labels) == 0 {
		return nil, pfx.Err(fmt.Errorf("atlas %s: empty label grid %v", p, lv.Shape))
	}
	return lv, nil
}

func (r *Repository) loadPoints(ctx context.Context, p string) ([]models.Point, error) {
	rdr, err := r.Store.Open(ctx, p)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("atlas %s: %w", p, err))
	}
	defer rdr.Close()

	data, err := io.ReadAll(rdr)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("atlas %s: %w", p, err))
	}

	points, err := ParsePoints(data)
	if err != nil {
		return nil, fmt.Errorf("atlas %s: %w", p, err)
	}
	return points, nil
}
