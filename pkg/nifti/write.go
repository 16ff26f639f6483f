package nifti

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"
	"github.com/klauspost/compress/gzip"

	"atlastransform/internal/models"
)

// Write stores img as a float32 NIfTI-1 file. A ".gz" suffix selects gzip
// compression.
func Write(path string, img *models.Image) error {
	dims := img.Dims
	if dims != 4 {
		dims = 3
	}
	n := img.Shape.Len()
	return writeFile(path, img.Shape, img.Frames, dims, img.Affine, func(i, t int) float32 {
		return float32(img.Data[t*n+i])
	})
}

// WriteLabels stores a label volume as a 3D float32 NIfTI-1 file
func WriteLabels(path string, lv *models.LabelVolume) error {
	return writeFile(path, lv.Shape, 1, 3, lv.Affine, func(i, _ int) float32 {
		return float32(lv.Labels[i])
	})
}

func writeFile(path string, shape models.Shape, frames, dims int, affine models.Affine, at func(i, t int) float32) error {
	out := nifti.NewImg(shape[0], shape[1], shape[2], frames)
	out.SetNewHeader(newHeader(shape, frames, dims, affine))

	for t := 0; t < frames; t++ {
		for z := 0; z < shape[2]; z++ {
			for y := 0; y < shape[1]; y++ {
				for x := 0; x < shape[0]; x++ {
					out.SetAt(uint32(x), uint32(y), uint32(z), uint32(t), at(shape.Index(x, y, z), t))
				}
			}
		}
	}

	if !strings.HasSuffix(path, ".gz") {
		return safelySave(func() { out.Save(path) })
	}

	// The library writes plain .nii; stage it and compress into place
	staged, err := os.CreateTemp(filepath.Dir(path), "staged-*.nii")
	if err != nil {
		return pfx.Err(err)
	}
	staged.Close()
	defer os.Remove(staged.Name())

	if err := safelySave(func() { out.Save(staged.Name()) }); err != nil {
		return err
	}
	return gzipFile(staged.Name(), path)
}

// safelySave turns panics raised while saving into errors
func safelySave(save func()) (err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	save()

	return
}

func gzipFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return pfx.Err(err)
	}
	defer in.Close()

	f, err := os.Create(dst)
	if err != nil {
		return pfx.Err(err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(f)
	if _, err := io.Copy(gz, in); err != nil {
		return pfx.Err(fmt.Errorf("compressing %s: %w", dst, err))
	}
	return gz.Close()
}
