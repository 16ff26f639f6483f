package region

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"atlastransform/internal/apperr"
)

// Strategy reduces the voxel values of one region in one volume to a single
// number. values is never empty.
type Strategy func(values []float64) float64

// Strategy names accepted by GetStrategy
const (
	MeanName             = "mean"
	ErrorPropagationName = "errprop"
)

// Mean is the arithmetic mean of the voxel values
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// ErrorPropagation combines per-voxel uncertainties as sqrt(sum(x^2)) / n,
// for inputs that hold standard errors rather than intensities
func ErrorPropagation(values []float64) float64 {
	return math.Sqrt(floats.Dot(values, values)) / float64(len(values))
}

// GetStrategy retrieves a strategy by name
func GetStrategy(name string) (Strategy, error) {
	switch name {
	case MeanName, "":
		return Mean, nil
	case ErrorPropagationName:
		return ErrorPropagation, nil
	default:
		return nil, apperr.New(apperr.Config, "region.GetStrategy", "strategy %q not recognized; accepted values: [%s %s]", name, MeanName, ErrorPropagationName)
	}
}
