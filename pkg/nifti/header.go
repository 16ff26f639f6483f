// Package nifti reads and writes single-file NIfTI-1 images (.nii and .nii.gz)
// on top of github.com/henghuang/nifti. The library parses the header and the
// voxel data; this package turns the sform, qform and pixdim fields into a
// voxel-to-mm affine and converts between the library's images and ours.
package nifti

import (
	"fmt"
	"math"
	"os"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"

	"atlastransform/internal/models"
)

const (
	headerSize   = 348
	dataOffset   = 352
	xformUnset   = 0
	xformScanner = 1
)

// NIfTI-1 datatype codes handled by the writer
const (
	DTFloat32 = 16
)

// Header is the library's header with geometry accessors
type Header struct {
	nifti.Nifti1Header
}

// ReadHeader parses the header of a .nii or .nii.gz file
func ReadHeader(path string) (Header, error) {
	if _, err := os.Stat(path); err != nil {
		return Header{}, err
	}

	raw, err := SafelyNiftiHeaderParse(path)
	if err != nil {
		return Header{}, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	h := Header{raw}
	if err := h.check(); err != nil {
		return Header{}, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}
	return h, nil
}

// SafelyNiftiHeaderParse consumes panics emitted by the nifti library, which
// are inappropriate and must be captured in order to turn them into
// recoverable errors.
func SafelyNiftiHeaderParse(path string) (parsedData nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadHeader(path)

	return
}

func (h Header) check() error {
	if h.SizeofHdr != headerSize {
		return fmt.Errorf("not a NIfTI-1 file: sizeof_hdr is %d", h.SizeofHdr)
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return fmt.Errorf("dim[0]=%d is not in range [1, 7]", h.Dim[0])
	}
	return nil
}

// Shape returns the spatial grid size. Missing trailing axes count as 1.
func (h Header) Shape() models.Shape {
	var s models.Shape
	for i := 0; i < 3; i++ {
		s[i] = 1
		if int(h.Dim[0]) > i && h.Dim[i+1] > 0 {
			s[i] = int(h.Dim[i+1])
		}
	}
	return s
}

// Frames returns the length of the fourth (time) axis, 1 for 3D images
func (h Header) Frames() int {
	if h.Dim[0] >= 4 && h.Dim[4] > 0 {
		return int(h.Dim[4])
	}
	return 1
}

// Dims returns the declared dimensionality
func (h Header) Dims() int {
	return int(h.Dim[0])
}

// Affine returns the voxel-to-mm transform. The sform is preferred, then the
// qform; with neither set the pixel spacing alone is used.
func (h Header) Affine() models.Affine {
	switch {
	case h.SformCode > xformUnset:
		return models.Affine{
			{float64(h.SrowX[0]), float64(h.SrowX[1]), float64(h.SrowX[2]), float64(h.SrowX[3])},
			{float64(h.SrowY[0]), float64(h.SrowY[1]), float64(h.SrowY[2]), float64(h.SrowY[3])},
			{float64(h.SrowZ[0]), float64(h.SrowZ[1]), float64(h.SrowZ[2]), float64(h.SrowZ[3])},
			{0, 0, 0, 1},
		}
	case h.QformCode > xformUnset:
		return h.qformAffine()
	default:
		return models.Scaled(h.spacing(1), h.spacing(2), h.spacing(3), models.Point{})
	}
}

func (h Header) spacing(axis int) float64 {
	if d := float64(h.Pixdim[axis]); d > 0 {
		return d
	}
	return 1
}

// qformAffine builds the transform from the quaternion parameters
func (h Header) qformAffine() models.Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// b, c, d describe a 180 degree rotation; renormalize
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	dx, dy, dz := h.spacing(1), h.spacing(2), h.spacing(3)
	if h.Pixdim[0] < 0 {
		dz = -dz
	}

	return models.Affine{
		{(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.QoffsetX)},
		{2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.QoffsetY)},
		{2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - c*c - b*b) * dz, float64(h.QoffsetZ)},
		{0, 0, 0, 1},
	}
}

// newHeader fills in a float32 single-file header for the given geometry
func newHeader(shape models.Shape, frames, dims int, affine models.Affine) nifti.Nifti1Header {
	var h nifti.Nifti1Header
	h.SizeofHdr = headerSize
	h.Regular = 'r'
	h.Dim[0] = int16(dims)
	for i := 0; i < 3; i++ {
		h.Dim[i+1] = int16(shape[i])
	}
	for i := 4; i < 8; i++ {
		h.Dim[i] = 1
	}
	if dims >= 4 {
		h.Dim[4] = int16(frames)
	}

	h.Datatype = DTFloat32
	h.Bitpix = 32

	vs := affine.VoxelSize()
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(vs[i])
	}
	h.Pixdim[4] = 1
	h.VoxOffset = dataOffset
	h.SclSlope = 1
	h.XyztUnits = 2 | 8 // mm, seconds

	h.SformCode = xformScanner
	for c := 0; c < 4; c++ {
		h.SrowX[c] = float32(affine[0][c])
		h.SrowY[c] = float32(affine[1][c])
		h.SrowZ[c] = float32(affine[2][c])
	}
	copy(h.Magic[:], "n+1\x00")

	return h
}
