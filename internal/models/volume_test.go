package models

import (
	"math"
	"testing"
)

// TestShapeIndexRoundTrip verifies that Index and Coords are inverses
func TestShapeIndexRoundTrip(t *testing.T) {
	s := Shape{4, 3, 5}
	if s.Len() != 60 {
		t.Fatalf("Expected 60 voxels, got %d", s.Len())
	}

	for idx := 0; idx < s.Len(); idx++ {
		x, y, z := s.Coords(idx)
		if !s.Contains(x, y, z) {
			t.Fatalf("Coords(%d) = (%d,%d,%d) is outside %v", idx, x, y, z, s)
		}
		if got := s.Index(x, y, z); got != idx {
			t.Errorf("Index(Coords(%d)) = %d", idx, got)
		}
	}

	if s.Contains(4, 0, 0) || s.Contains(0, -1, 0) {
		t.Error("Contains accepted an out-of-bounds voxel")
	}
}

// TestAffineInverse checks that applying an affine and its inverse returns the
// original voxel coordinate
func TestAffineInverse(t *testing.T) {
	a := Affine{
		{-2, 0, 0, 90},
		{0, 2, 0, -126},
		{0, 0, 2, -72},
		{0, 0, 0, 1},
	}

	inv, err := a.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}

	if !a.Mul(inv).Equal(Identity(), 1e-12) {
		t.Errorf("a·a⁻¹ is not the identity: %v", a.Mul(inv))
	}

	p := a.Apply(10, 20, 30)
	if p.X != 70 || p.Y != -86 || p.Z != -12 {
		t.Errorf("Unexpected world coordinate %+v", p)
	}

	back := inv.Apply(p.X, p.Y, p.Z)
	if math.Abs(back.X-10) > 1e-9 || math.Abs(back.Y-20) > 1e-9 || math.Abs(back.Z-30) > 1e-9 {
		t.Errorf("Round trip gave %+v", back)
	}
}

// TestAffineSingular verifies that a degenerate affine is rejected
func TestAffineSingular(t *testing.T) {
	var a Affine
	a[3][3] = 1
	if _, err := a.Inverse(); err == nil {
		t.Error("Expected an error inverting a singular affine")
	}
}

func TestVoxelSize(t *testing.T) {
	a := Scaled(-3, 2, 4, Point{})
	got := a.VoxelSize()
	want := [3]float64{3, 2, 4}
	if got != want {
		t.Errorf("Expected voxel size %v, got %v", want, got)
	}
}

func TestImageFrame(t *testing.T) {
	img := &Image{
		Data:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		Shape:  Shape{2, 2, 1},
		Frames: 2,
		Dims:   4,
		Affine: Identity(),
	}

	f := img.Frame(1)
	if len(f) != 4 || f[0] != 5 || f[3] != 8 {
		t.Errorf("Unexpected frame 1: %v", f)
	}
}
