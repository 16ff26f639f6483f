package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shape is the size of a voxel grid along the x, y and z axes
type Shape [3]int

// Len returns the number of voxels in the grid
func (s Shape) Len() int {
	return s[0] * s[1] * s[2]
}

// Valid reports whether all three dimensions are positive
func (s Shape) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// Index returns the flat offset of voxel (x, y, z). The x axis varies fastest,
// matching the on-disk NIfTI ordering.
func (s Shape) Index(x, y, z int) int {
	return z*s[0]*s[1] + y*s[0] + x
}

// Coords is the inverse of Index
func (s Shape) Coords(idx int) (x, y, z int) {
	plane := s[0] * s[1]
	z = idx / plane
	rem := idx % plane
	y = rem / s[0]
	x = rem % s[0]
	return x, y, z
}

// Contains reports whether (x, y, z) lies inside the grid
func (s Shape) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < s[0] && y < s[1] && z < s[2]
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s[0], s[1], s[2])
}

// Affine maps voxel indices (i, j, k, 1) to physical coordinates in mm
type Affine [4][4]float64

// Identity returns the identity affine (1mm isotropic voxels at the origin)
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Scaled returns a diagonal affine with the given voxel sizes and origin offset
func Scaled(dx, dy, dz float64, origin Point) Affine {
	return Affine{
		{dx, 0, 0, origin.X},
		{0, dy, 0, origin.Y},
		{0, 0, dz, origin.Z},
		{0, 0, 0, 1},
	}
}

// Apply transforms the (possibly fractional) voxel coordinate into physical space
func (a Affine) Apply(i, j, k float64) Point {
	return Point{
		X: a[0][0]*i + a[0][1]*j + a[0][2]*k + a[0][3],
		Y: a[1][0]*i + a[1][1]*j + a[1][2]*k + a[1][3],
		Z: a[2][0]*i + a[2][1]*j + a[2][2]*k + a[2][3],
	}
}

// Mul returns the matrix product a·b
func (a Affine) Mul(b Affine) Affine {
	var out Affine
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[r][k] * b[k][c]
			}
			out[r][c] = sum
		}
	}
	return out
}

// Inverse returns the inverse transform, mapping physical coordinates back to
// voxel indices.
func (a Affine) Inverse() (Affine, error) {
	m := mat.NewDense(4, 4, a.flat())
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Affine{}, fmt.Errorf("affine is not invertible: %w", err)
	}

	var out Affine
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = inv.At(r, c)
		}
	}
	return out, nil
}

// Equal compares two affines element-wise within tol
func (a Affine) Equal(b Affine, tol float64) bool {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(a[r][c]-b[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// VoxelSize returns the length in mm of each voxel edge (the column norms of
// the rotation/zoom block).
func (a Affine) VoxelSize() [3]float64 {
	var out [3]float64
	for c := 0; c < 3; c++ {
		out[c] = math.Sqrt(a[0][c]*a[0][c] + a[1][c]*a[1][c] + a[2][c]*a[2][c])
	}
	return out
}

func (a Affine) flat() []float64 {
	out := make([]float64, 0, 16)
	for r := 0; r < 4; r++ {
		out = append(out, a[r][:]...)
	}
	return out
}

// Point is a location in physical (scanner or template) space, in mm
type Point struct {
	X, Y, Z float64
}

// Volume is a single 3D scalar volume
type Volume struct {
	// Data holds the voxel intensities in x-fastest order
	Data []float64

	// Shape is the voxel grid size
	Shape Shape

	// Affine maps voxel indices to physical coordinates
	Affine Affine
}

// NewVolume allocates a zero-filled volume
func NewVolume(shape Shape, affine Affine) *Volume {
	return &Volume{
		Data:   make([]float64, shape.Len()),
		Shape:  shape,
		Affine: affine,
	}
}

// At returns the intensity at voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Shape.Index(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Shape.Index(x, y, z)] = value
}

// LabelVolume is a categorical 3D grid: each voxel holds an integer region id.
// Label 0 is background.
type LabelVolume struct {
	// Labels holds the region id of every voxel in x-fastest order
	Labels []int

	// Shape is the voxel grid size
	Shape Shape

	// Affine maps voxel indices to physical coordinates
	Affine Affine
}

// NewLabelVolume allocates an all-background label volume
func NewLabelVolume(shape Shape, affine Affine) *LabelVolume {
	return &LabelVolume{
		Labels: make([]int, shape.Len()),
		Shape:  shape,
		Affine: affine,
	}
}

// At returns the label at voxel (x, y, z)
func (lv *LabelVolume) At(x, y, z int) int {
	return lv.Labels[lv.Shape.Index(x, y, z)]
}

// Set stores a label at voxel (x, y, z)
func (lv *LabelVolume) Set(x, y, z int, label int) {
	lv.Labels[lv.Shape.Index(x, y, z)] = label
}

// Clone returns a deep copy
func (lv *LabelVolume) Clone() *LabelVolume {
	out := &LabelVolume{
		Labels: make([]int, len(lv.Labels)),
		Shape:  lv.Shape,
		Affine: lv.Affine,
	}
	copy(out.Labels, lv.Labels)
	return out
}

// Image is a subject image as read from disk: a 3D volume or a 4D time series
// of 3D volumes that share one affine and grid.
type Image struct {
	// Data holds all frames back to back; frame t starts at t*Shape.Len()
	Data []float64

	// Shape is the spatial grid size shared by every frame
	Shape Shape

	// Frames is the number of 3D volumes (1 for 3D images)
	Frames int

	// Dims is the dimensionality declared by the file, 3 or 4
	Dims int

	// Affine maps voxel indices to physical coordinates
	Affine Affine
}

// Frame returns the voxel data of frame t without copying
func (img *Image) Frame(t int) []float64 {
	n := img.Shape.Len()
	return img.Data[t*n : (t+1)*n]
}
