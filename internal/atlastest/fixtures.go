// Package atlastest writes small synthetic atlas data directories for tests.
package atlastest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"atlastransform/internal/models"
	"atlastransform/pkg/nifti"
)

// Origin of every fixture grid, in mm. Fixture atlases span
// [-16, 16) x [-16, 16) x [-12, 12).
var Origin = models.Point{X: -16, Y: -16, Z: -12}

// Extent is the physical size of the fixture field of view in mm
var Extent = [3]float64{32, 32, 24}

// CraddockFrames is the number of volumes in the craddock fixture
const CraddockFrames = 43

// PowerPoints are the sphere centres written to the power fixture
var PowerPoints = []models.Point{
	{X: -8, Y: -8, Z: -4},
	{X: 0, Y: 0, Z: 0},
	{X: 8, Y: 6, Z: 4},
	{X: 100, Y: 100, Z: 100},
}

// ShenLabel is the label of the shen fixture at world position p (mm). The
// grid is cut into 8mm cubes numbered from 1, giving ShenRegions labels.
func ShenLabel(p models.Point) int {
	x := int((p.X - Origin.X) / 8)
	y := int((p.Y - Origin.Y) / 8)
	z := int((p.Z - Origin.Z) / 8)
	return 1 + x + 4*y + 16*z
}

// ShenRegions is the number of labels in the shen fixture
const ShenRegions = 4 * 4 * 3

// CraddockLabel is the label of voxel idx in craddock frame f. The first
// x column of every frame is background.
func CraddockLabel(shape models.Shape, idx, f int) int {
	x, _, _ := shape.Coords(idx)
	if x == 0 {
		return 0
	}
	return 1 + idx%(f+2)
}

// WriteDataDir creates the shen, craddock and power assets under root
func WriteDataDir(t testing.TB, root string) {
	t.Helper()

	for _, res := range []int{1, 2} {
		path := filepath.Join(root, "shen_268", fmt.Sprintf("shen_%dmm_268_parcellation.nii.gz", res))
		if err := writeShen(path, float64(res)); err != nil {
			t.Fatalf("Failed to write shen fixture: %v", err)
		}
	}

	for _, sim := range []string{"t", "s", "random"} {
		for _, alg := range []string{"2level_", "mean_", ""} {
			path := filepath.Join(root, "craddock_2011", fmt.Sprintf("%scorr05_%sall.nii.gz", sim, alg))
			if err := writeCraddock(path); err != nil {
				t.Fatalf("Failed to write craddock fixture: %v", err)
			}
		}
	}

	if err := writePower(filepath.Join(root, "power_2011", "power_2011.csv")); err != nil {
		t.Fatalf("Failed to write power fixture: %v", err)
	}
}

func writeShen(path string, res float64) error {
	shape := models.Shape{int(Extent[0] / res), int(Extent[1] / res), int(Extent[2] / res)}
	affine := models.Scaled(res, res, res, Origin)

	img := &models.Image{Data: make([]float64, shape.Len()), Shape: shape, Frames: 1, Dims: 3, Affine: affine}
	for i := range img.Data {
		x, y, z := shape.Coords(i)
		img.Data[i] = float64(ShenLabel(affine.Apply(float64(x), float64(y), float64(z))))
	}

	return write(path, img)
}

func writeCraddock(path string) error {
	shape := models.Shape{16, 16, 12}
	affine := models.Scaled(2, 2, 2, Origin)

	img := &models.Image{
		Data:   make([]float64, shape.Len()*CraddockFrames),
		Shape:  shape,
		Frames: CraddockFrames,
		Dims:   4,
		Affine: affine,
	}
	for f := 0; f < CraddockFrames; f++ {
		frame := img.Frame(f)
		for i := range frame {
			frame[i] = float64(CraddockLabel(shape, i, f))
		}
	}

	return write(path, img)
}

func writePower(path string) error {
	var b strings.Builder
	b.WriteString("ROI;X;Y;Z\n")
	for i, p := range PowerPoints {
		fmt.Fprintf(&b, "%d;%g;%g;%g\n", i+1, p.X, p.Y, p.Z)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func write(path string, img *models.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return nifti.Write(path, img)
}
