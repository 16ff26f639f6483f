package nifti

import (
	"fmt"
	"math"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"

	"atlastransform/internal/models"
)

// Load reads a 3D or 4D image. Axes beyond the fourth must be singletons.
func Load(path string) (*models.Image, error) {
	hdr, raw, err := open(path)
	if err != nil {
		return nil, err
	}

	shape := hdr.Shape()
	frames := hdr.Frames()
	img := &models.Image{
		Data:   make([]float64, shape.Len()*frames),
		Shape:  shape,
		Frames: frames,
		Dims:   3,
		Affine: hdr.Affine(),
	}
	if hdr.Dims() >= 4 {
		img.Dims = 4
	}

	n := shape.Len()
	for t := 0; t < frames; t++ {
		readFrame(&raw, shape, t, img.Data[t*n:(t+1)*n])
	}

	return img, nil
}

// LoadLabels reads frame t of an atlas file as a label volume. Values are
// rounded to the nearest integer, so float-encoded label files load cleanly.
// Only the requested frame is converted.
func LoadLabels(path string, t int) (*models.LabelVolume, error) {
	hdr, raw, err := open(path)
	if err != nil {
		return nil, err
	}
	if frames := hdr.Frames(); t < 0 || t >= frames {
		return nil, pfx.Err(fmt.Errorf("%s: frame %d requested but the file has %d", path, t, frames))
	}

	shape := hdr.Shape()
	lv := models.NewLabelVolume(shape, hdr.Affine())
	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				v := float64(raw.GetAt(x, y, z, t))
				if math.IsNaN(v) {
					continue
				}
				lv.Labels[shape.Index(x, y, z)] = int(math.Round(v))
			}
		}
	}

	return lv, nil
}

// open parses the header and voxel data of path and checks that they agree
func open(path string) (Header, nifti.Nifti1Image, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return Header{}, nifti.Nifti1Image{}, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}
	if err := checkDims(hdr); err != nil {
		return Header{}, nifti.Nifti1Image{}, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	raw, err := SafelyLoadImage(path)
	if err != nil {
		return Header{}, nifti.Nifti1Image{}, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	shape := hdr.Shape()
	dims := raw.GetDims()
	for i := 0; i < 3; i++ {
		if dims[i] != shape[i] {
			return Header{}, nifti.Nifti1Image{}, pfx.Err(fmt.Errorf("%s: header declares shape %v but voxel data has %v", path, shape, dims))
		}
	}

	return hdr, raw, nil
}

func readFrame(raw *nifti.Nifti1Image, shape models.Shape, t int, dst []float64) {
	for z := 0; z < shape[2]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[0]; x++ {
				dst[shape.Index(x, y, z)] = float64(raw.GetAt(x, y, z, t))
			}
		}
	}
}

func checkDims(hdr Header) error {
	d := hdr.Dims()
	if d < 3 {
		return fmt.Errorf("expected a 3D or 4D image, got %d dimensions", d)
	}
	for i := 5; i <= d; i++ {
		if hdr.Dim[i] > 1 {
			return fmt.Errorf("%d-dimensional images are not supported", d)
		}
	}
	if !hdr.Shape().Valid() {
		return fmt.Errorf("invalid shape %v", hdr.Shape())
	}
	return nil
}

// SafelyLoadImage consumes panics emitted by the nifti library, which are
// inappropriate and must be captured in order to turn them into recoverable
// errors.
func SafelyLoadImage(path string) (img nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	img.LoadImage(path, true)

	return
}
