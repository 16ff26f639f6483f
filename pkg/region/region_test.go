package region

import (
	"math"
	"math/rand"
	"testing"

	"atlastransform/internal/apperr"
	"atlastransform/internal/models"
	"atlastransform/pkg/interpolation"
	"atlastransform/pkg/series"
)

func createTestVolumes(shape models.Shape, frames int) series.List {
	list := make(series.List, frames)
	for t := range list {
		vol := models.NewVolume(shape, models.Identity())
		for i := range vol.Data {
			vol.Data[i] = float64(i + 100*t)
		}
		list[t] = vol
	}
	return list
}

func TestStrategies(t *testing.T) {
	values := []float64{3, 4, 0, 12}

	if got := Mean(values); got != 4.75 {
		t.Errorf("Expected mean 4.75, got %g", got)
	}
	// sqrt(9+16+0+144) / 4 = 13 / 4
	if got := ErrorPropagation(values); got != 3.25 {
		t.Errorf("Expected 3.25, got %g", got)
	}

	for name, want := range map[string]float64{"mean": 4.75, "": 4.75, "errprop": 3.25} {
		s, err := GetStrategy(name)
		if err != nil {
			t.Fatalf("GetStrategy(%q) failed: %v", name, err)
		}
		if got := s(values); got != want {
			t.Errorf("%q: expected %g, got %g", name, want, got)
		}
	}

	if _, err := GetStrategy("median"); !apperr.IsKind(err, apperr.Config) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

// TestMeanPermutationInvariant verifies that voxel order does not change a
// region's mean
func TestMeanPermutationInvariant(t *testing.T) {
	vols := createTestVolumes(models.Shape{6, 5, 4}, 3)
	r := Region{ID: 1, Voxels: []int{3, 17, 42, 58, 60, 99, 101}}
	want := Aggregate(vols, r, Mean)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 10; trial++ {
		shuffled := Region{ID: 1, Voxels: append([]int(nil), r.Voxels...)}
		rng.Shuffle(len(shuffled.Voxels), func(i, j int) {
			shuffled.Voxels[i], shuffled.Voxels[j] = shuffled.Voxels[j], shuffled.Voxels[i]
		})

		got := Aggregate(vols, shuffled, Mean)
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-9 {
				t.Fatalf("Trial %d volume %d: expected %g, got %g", trial, i, want[i], got[i])
			}
		}
	}
}

func TestAggregateEmptyRegion(t *testing.T) {
	vols := createTestVolumes(models.Shape{2, 2, 2}, 4)

	got := Aggregate(vols, Region{ID: 7}, Mean)
	if len(got) != 4 {
		t.Fatalf("Expected 4 values, got %d", len(got))
	}
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("Volume %d: expected NaN, got %g", i, v)
		}
	}
}

func TestFromLabels(t *testing.T) {
	lv := models.NewLabelVolume(models.Shape{3, 2, 1}, models.Identity())
	copy(lv.Labels, []int{5, 0, 2, 5, 0, 9})

	regions := FromLabels(lv, false)
	wantIDs := []int{2, 5, 9}
	if len(regions) != len(wantIDs) {
		t.Fatalf("Expected %d regions, got %d", len(wantIDs), len(regions))
	}
	for i, r := range regions {
		if r.ID != wantIDs[i] {
			t.Errorf("Region %d: expected label %d, got %d", i, wantIDs[i], r.ID)
		}
	}
	if v := regions[1].Voxels; len(v) != 2 || v[0] != 0 || v[1] != 3 {
		t.Errorf("Unexpected voxels for label 5: %v", v)
	}

	withBackground := FromLabels(lv, true)
	if len(withBackground) != 4 || withBackground[0].ID != 0 {
		t.Errorf("Expected background as the first region, got %+v", withBackground)
	}
}

// TestBuild3D verifies that a 3D image with N labels gives N rows of one value
func TestBuild3D(t *testing.T) {
	shape := models.Shape{4, 4, 2}
	vols := createTestVolumes(shape, 1)

	lv := models.NewLabelVolume(shape, models.Identity())
	for i := range lv.Labels {
		lv.Labels[i] = i%3 + 1
	}

	table := Build(vols, FromLabels(lv, false), Mean)
	if len(table.Rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(table.Rows))
	}
	if table.Columns() != 1 {
		t.Fatalf("Expected 1 column, got %d", table.Columns())
	}

	// Label 1 covers voxels 0, 3, ..., 30
	var sum float64
	var n int
	for i := 0; i < shape.Len(); i += 3 {
		sum += float64(i)
		n++
	}
	if got := table.Rows[0].Values[0]; math.Abs(got-sum/float64(n)) > 1e-9 {
		t.Errorf("Expected mean %g for label 1, got %g", sum/float64(n), got)
	}
}

func TestBuild4D(t *testing.T) {
	shape := models.Shape{3, 3, 3}
	vols := createTestVolumes(shape, 5)

	regions := []Region{{ID: 1, Voxels: []int{0}}, {ID: 2, Voxels: []int{1, 2}}}
	table := Build(vols, regions, Mean)
	if table.Columns() != 5 {
		t.Fatalf("Expected 5 columns, got %d", table.Columns())
	}
	for tt := 0; tt < 5; tt++ {
		if got := table.Rows[0].Values[tt]; got != float64(100*tt) {
			t.Errorf("Row 1 volume %d: expected %d, got %g", tt, 100*tt, got)
		}
		if got := table.Rows[1].Values[tt]; got != 1.5+float64(100*tt) {
			t.Errorf("Row 2 volume %d: expected %g, got %g", tt, 1.5+float64(100*tt), got)
		}
	}

	if (Table{}).Columns() != 0 {
		t.Error("Expected no columns for an empty table")
	}
}

func TestFromSpheres(t *testing.T) {
	shape := models.Shape{10, 10, 10}
	affine := models.Scaled(2, 2, 2, models.Point{})
	vi, err := interpolation.NewVoxelIndex(shape, affine)
	if err != nil {
		t.Fatalf("NewVoxelIndex failed: %v", err)
	}

	centers := []models.Point{
		{X: 10, Y: 10, Z: 10},
		{X: 11, Y: 11, Z: 11},
		{X: 500, Y: 500, Z: 500},
		{X: 9, Y: 9, Z: 9},
	}
	regions := FromSpheres(vi, centers, 2.5)
	if len(regions) != len(centers) {
		t.Fatalf("Expected %d regions, got %d", len(centers), len(regions))
	}

	for i, r := range regions {
		if r.ID != i {
			t.Errorf("Region %d has ID %d", i, r.ID)
		}
	}

	// Centre voxel plus its six face neighbours at 2mm
	if n := len(regions[0].Voxels); n != 7 {
		t.Errorf("Expected 7 voxels in the first sphere, got %d", n)
	}
	if len(regions[2].Voxels) != 0 {
		t.Errorf("Expected an empty sphere outside the grid, got %v", regions[2].Voxels)
	}

	// The first two spheres overlap
	shared := 0
	for _, a := range regions[0].Voxels {
		for _, b := range regions[1].Voxels {
			if a == b {
				shared++
			}
		}
	}
	if shared == 0 {
		t.Error("Expected overlapping spheres to share voxels")
	}

	for _, r := range regions {
		for i := 1; i < len(r.Voxels); i++ {
			if r.Voxels[i] <= r.Voxels[i-1] {
				t.Fatalf("Region %d voxels not ascending: %v", r.ID, r.Voxels)
			}
		}
	}
}

// TestFromSpheresSmallRadius verifies that the voxel holding the centre is
// kept even when no voxel centre lies within the radius
func TestFromSpheresSmallRadius(t *testing.T) {
	shape := models.Shape{4, 4, 4}
	vi, err := interpolation.NewVoxelIndex(shape, models.Scaled(4, 4, 4, models.Point{}))
	if err != nil {
		t.Fatalf("NewVoxelIndex failed: %v", err)
	}

	regions := FromSpheres(vi, []models.Point{{X: 5, Y: 5, Z: 5}}, 0.5)
	if len(regions[0].Voxels) != 1 || regions[0].Voxels[0] != shape.Index(1, 1, 1) {
		t.Errorf("Expected only voxel (1,1,1), got %v", regions[0].Voxels)
	}
}

func TestInsertSorted(t *testing.T) {
	got := insertSorted([]int{1, 4, 9}, 5)
	want := []int{1, 4, 5, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
	if got := insertSorted([]int{1, 4}, 4); len(got) != 2 {
		t.Errorf("Expected no duplicate, got %v", got)
	}
	if got := insertSorted(nil, 3); len(got) != 1 || got[0] != 3 {
		t.Errorf("Expected [3], got %v", got)
	}
}
