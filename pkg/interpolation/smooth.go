package interpolation

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"atlastransform/internal/models"
)

// Smooth returns a copy of vol convolved with an isotropic Gaussian of the
// given FWHM in mm. Non-finite voxels are zeroed first. A FWHM of 0 returns an
// unsmoothed copy. Edges are handled by mirroring.
func Smooth(vol *models.Volume, fwhm float64) *models.Volume {
	out := &models.Volume{
		Data:   make([]float64, len(vol.Data)),
		Shape:  vol.Shape,
		Affine: vol.Affine,
	}
	for i, v := range vol.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out.Data[i] = v
		}
	}
	if fwhm <= 0 {
		return out
	}

	sigma := fwhm / math.Sqrt(8*math.Log(2))
	vs := vol.Affine.VoxelSize()
	for axis := 0; axis < 3; axis++ {
		if vs[axis] == 0 {
			continue
		}
		kernel := gaussianKernel(sigma / vs[axis])
		if len(kernel) > 1 {
			convolveAxis(out, axis, kernel)
		}
	}
	return out
}

// gaussianKernel returns normalized weights truncated at four standard
// deviations
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// convolveAxis filters every line of vol along axis in place
func convolveAxis(vol *models.Volume, axis int, kernel []float64) {
	shape := vol.Shape
	n := shape[axis]
	radius := len(kernel) / 2

	stride := 1
	for a := 0; a < axis; a++ {
		stride *= shape[a]
	}

	// Iterate lines by the first of the other two axes so that each worker
	// owns a disjoint set of lines
	outer := (axis + 1) % 3
	inner := (axis + 2) % 3
	if outer > inner {
		outer, inner = inner, outer
	}

	forEachSlice(shape[outer], func(o int) {
		line := make([]float64, n)
		window := make([]float64, len(kernel))
		for i := 0; i < shape[inner]; i++ {
			var pos [3]int
			pos[outer], pos[inner] = o, i
			start := shape.Index(pos[0], pos[1], pos[2])

			for k := 0; k < n; k++ {
				line[k] = vol.Data[start+k*stride]
			}
			for k := 0; k < n; k++ {
				for w := range window {
					window[w] = line[mirror(k+w-radius, n)]
				}
				vol.Data[start+k*stride] = floats.Dot(kernel, window)
			}
		}
	})
}

// mirror reflects i into [0, n) about the half-sample boundaries, so the
// edge voxel is repeated: (d c b a | a b c d | d c b a)
func mirror(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
