// Package interpolation maps atlases between voxel grids and indexes voxel
// centres for spatial queries.
package interpolation

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"atlastransform/internal/apperr"
	"atlastransform/internal/models"
)

// affineTolerance is how far two affines may differ element-wise and still be
// treated as the same geometry
const affineTolerance = 1e-6

// Resample projects a label atlas onto the grid described by affine and shape
// using nearest-neighbour lookup, so labels are never blended. Target voxels
// that fall outside the atlas are background (0). When the geometry already
// matches, the result is an unchanged copy.
func Resample(atlas *models.LabelVolume, affine models.Affine, shape models.Shape) (*models.LabelVolume, error) {
	const op = "interpolation.Resample"

	if !shape.Valid() {
		return nil, apperr.New(apperr.Input, op, "target shape %v is not a valid grid", shape)
	}
	if !atlas.Shape.Valid() || len(atlas.Labels) != atlas.Shape.Len() {
		return nil, apperr.New(apperr.Input, op, "atlas grid %v holds %d labels", atlas.Shape, len(atlas.Labels))
	}

	if atlas.Shape == shape && atlas.Affine.Equal(affine, affineTolerance) {
		return atlas.Clone(), nil
	}

	inv, err := atlas.Affine.Inverse()
	if err != nil {
		return nil, apperr.Wrap(apperr.Input, op, err)
	}
	if _, err := affine.Inverse(); err != nil {
		return nil, apperr.Wrap(apperr.Input, op, err)
	}

	// Target voxel index -> atlas voxel index
	m := inv.Mul(affine)

	out := models.NewLabelVolume(shape, affine)
	forEachSlice(shape[2], func(z int) {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				src := m.Apply(float64(x), float64(y), float64(z))
				i, j, k := int(math.Round(src.X)), int(math.Round(src.Y)), int(math.Round(src.Z))
				if !atlas.Shape.Contains(i, j, k) {
					continue
				}
				out.Set(x, y, z, atlas.At(i, j, k))
			}
		}
	})

	return out, nil
}

// Labels returns the distinct labels present in lv, ascending. Background is
// included when present.
func Labels(lv *models.LabelVolume) []int {
	seen := make(map[int]struct{})
	for _, l := range lv.Labels {
		seen[l] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// forEachSlice runs fn for every z in [0, n) on up to NumCPU goroutines.
// Each call must only touch its own slice.
func forEachSlice(n int, fn func(z int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for z := 0; z < n; z++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(z int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(z)
		}(z)
	}
	wg.Wait()
}
