// Package series converts between subject images and ordered lists of 3D
// volumes.
package series

import (
	"fmt"

	"atlastransform/internal/models"
)

// List is an ordered sequence of volumes sharing one grid and affine
type List []*models.Volume

// Geometry returns the affine and shape shared by the list, taken from the
// first member. This is the target grid for atlas resampling.
func (l List) Geometry() (models.Affine, models.Shape, error) {
	if len(l) == 0 {
		return models.Affine{}, models.Shape{}, fmt.Errorf("empty volume list")
	}
	return l[0].Affine, l[0].Shape, nil
}

// IsSeries reports whether img is a 4D time series. A file that declares four
// dimensions counts even when it holds a single frame.
func IsSeries(img *models.Image) bool {
	return img.Dims >= 4
}

// Split returns one volume per frame, in time order. A 3D image yields a
// single volume. Volumes share the image's backing array.
func Split(img *models.Image) List {
	out := make(List, img.Frames)
	for t := range out {
		out[t] = &models.Volume{
			Data:   img.Frame(t),
			Shape:  img.Shape,
			Affine: img.Affine,
		}
	}
	return out
}

// Stack joins volumes back into a 4D image. It is the inverse of Split for
// series input.
func Stack(l List) (*models.Image, error) {
	affine, shape, err := l.Geometry()
	if err != nil {
		return nil, err
	}

	n := shape.Len()
	img := &models.Image{
		Data:   make([]float64, 0, n*len(l)),
		Shape:  shape,
		Frames: len(l),
		Dims:   4,
		Affine: affine,
	}
	for t, v := range l {
		if v.Shape != shape || !v.Affine.Equal(affine, 1e-6) {
			return nil, fmt.Errorf("volume %d has grid %v, expected %v with the affine of volume 0", t, v.Shape, shape)
		}
		if len(v.Data) != n {
			return nil, fmt.Errorf("volume %d holds %d voxels, expected %d", t, len(v.Data), n)
		}
		img.Data = append(img.Data, v.Data...)
	}
	return img, nil
}
