package series

import (
	"testing"

	"atlastransform/internal/models"
)

func createTestImage(shape models.Shape, frames, dims int) *models.Image {
	img := &models.Image{
		Data:   make([]float64, shape.Len()*frames),
		Shape:  shape,
		Frames: frames,
		Dims:   dims,
		Affine: models.Scaled(3, 3, 3, models.Point{X: -90, Y: -126, Z: -72}),
	}
	for i := range img.Data {
		img.Data[i] = float64(i)
	}
	return img
}

func TestIsSeries(t *testing.T) {
	if IsSeries(createTestImage(models.Shape{2, 2, 2}, 1, 3)) {
		t.Error("3D image reported as a series")
	}
	if !IsSeries(createTestImage(models.Shape{2, 2, 2}, 5, 4)) {
		t.Error("4D image not reported as a series")
	}
	// A 4D file with one frame is still a series
	if !IsSeries(createTestImage(models.Shape{2, 2, 2}, 1, 4)) {
		t.Error("Single-frame 4D image not reported as a series")
	}
}

// TestSplitOrder verifies that Split keeps time order and geometry
func TestSplitOrder(t *testing.T) {
	shape := models.Shape{4, 3, 2}
	img := createTestImage(shape, 6, 4)

	list := Split(img)
	if len(list) != 6 {
		t.Fatalf("Expected 6 volumes, got %d", len(list))
	}
	for tt, v := range list {
		if v.Shape != shape || v.Affine != img.Affine {
			t.Errorf("Volume %d lost the image geometry", tt)
		}
		if first := v.Data[0]; first != float64(tt*shape.Len()) {
			t.Errorf("Volume %d: expected first voxel %d, got %g", tt, tt*shape.Len(), first)
		}
	}

	single := Split(createTestImage(shape, 1, 3))
	if len(single) != 1 {
		t.Errorf("Expected 1 volume for a 3D image, got %d", len(single))
	}
}

func TestStackRoundTrip(t *testing.T) {
	img := createTestImage(models.Shape{4, 3, 2}, 5, 4)

	back, err := Stack(Split(img))
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	if back.Shape != img.Shape || back.Frames != img.Frames || back.Dims != 4 || back.Affine != img.Affine {
		t.Fatalf("Geometry mismatch after round trip: %+v", back)
	}
	for i := range img.Data {
		if back.Data[i] != img.Data[i] {
			t.Fatalf("Voxel %d: expected %g, got %g", i, img.Data[i], back.Data[i])
		}
	}
}

func TestStackErrors(t *testing.T) {
	if _, err := Stack(nil); err == nil {
		t.Error("Expected an error for an empty list")
	}

	list := Split(createTestImage(models.Shape{2, 2, 2}, 2, 4))
	list[1] = models.NewVolume(models.Shape{2, 2, 3}, list[0].Affine)
	if _, err := Stack(list); err == nil {
		t.Error("Expected an error for mismatched shapes")
	}

	list = Split(createTestImage(models.Shape{2, 2, 2}, 2, 4))
	list[1] = models.NewVolume(list[0].Shape, models.Identity())
	if _, err := Stack(list); err == nil {
		t.Error("Expected an error for mismatched affines")
	}
}

func TestGeometry(t *testing.T) {
	img := createTestImage(models.Shape{4, 3, 2}, 2, 4)
	affine, shape, err := Split(img).Geometry()
	if err != nil {
		t.Fatalf("Geometry failed: %v", err)
	}
	if affine != img.Affine || shape != img.Shape {
		t.Errorf("Unexpected geometry %v %v", affine, shape)
	}
}
