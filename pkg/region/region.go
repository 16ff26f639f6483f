// Package region builds atlas regions over a subject grid and reduces voxel
// intensities to one value per region and volume.
package region

import (
	"math"
	"sort"

	"atlastransform/internal/models"
	"atlastransform/pkg/interpolation"
	"atlastransform/pkg/series"
)

// Region is an explicit set of voxels, given as flat indices into the subject
// grid
type Region struct {
	// ID is the atlas label, or the point position for sphere atlases
	ID int

	// Voxels are ascending flat indices; may be empty
	Voxels []int
}

// Row holds the values of one region, one per volume
type Row struct {
	ID     int
	Values []float64
}

// Table is the aggregation result, rows in region order
type Table struct {
	Rows []Row
}

// Columns returns the number of values per row
func (t Table) Columns() int {
	if len(t.Rows) == 0 {
		return 0
	}
	return len(t.Rows[0].Values)
}

// FromLabels returns one region per label present in lv, ascending by label.
// Labels absent from the grid produce no region. Background (0) is skipped
// unless includeBackground is set.
func FromLabels(lv *models.LabelVolume, includeBackground bool) []Region {
	members := make(map[int][]int)
	for idx, label := range lv.Labels {
		if label == 0 && !includeBackground {
			continue
		}
		members[label] = append(members[label], idx)
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Region, len(ids))
	for i, id := range ids {
		out[i] = Region{ID: id, Voxels: members[id]}
	}
	return out
}

// FromSpheres returns one region per centre, in input order. A sphere holds
// every voxel whose centre lies within radius mm, plus the voxel containing
// the centre itself. Spheres may overlap. A centre outside the grid with no
// voxel in reach yields an empty region.
func FromSpheres(vi *interpolation.VoxelIndex, centers []models.Point, radius float64) []Region {
	out := make([]Region, len(centers))
	for i, c := range centers {
		voxels := vi.Within(c, radius)
		if idx, ok := vi.Containing(c); ok {
			voxels = insertSorted(voxels, idx)
		}
		out[i] = Region{ID: i, Voxels: voxels}
	}
	return out
}

// insertSorted adds v to the ascending slice s unless already present
func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Aggregate reduces region r in every volume, in order. An empty region
// yields NaN for each volume.
func Aggregate(vols series.List, r Region, s Strategy) []float64 {
	out := make([]float64, len(vols))
	if len(r.Voxels) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	buf := make([]float64, len(r.Voxels))
	for t, vol := range vols {
		for i, idx := range r.Voxels {
			buf[i] = vol.Data[idx]
		}
		out[t] = s(buf)
	}
	return out
}

// Build aggregates every region in order
func Build(vols series.List, regions []Region, s Strategy) Table {
	t := Table{Rows: make([]Row, len(regions))}
	for i, r := range regions {
		t.Rows[i] = Row{ID: r.ID, Values: Aggregate(vols, r, s)}
	}
	return t
}
