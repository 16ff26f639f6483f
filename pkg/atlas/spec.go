// Package atlas resolves a named brain atlas and its parameters into either a
// labeled volume or an ordered set of sphere centres.
package atlas

import (
	"fmt"
	"strings"

	"atlastransform/internal/apperr"
)

// Name identifies an atlas family
type Name string

const (
	// Shen is the 268-region Shen functional parcellation
	Shen Name = "shen"

	// Craddock is the Craddock 2011 spectral clustering parcellation family
	Craddock Name = "craddock"

	// Power is the Power 2011 set of 264 coordinates
	Power Name = "power"
)

// Similarity is the measure used to build a Craddock parcellation
type Similarity string

const (
	Temporal         Similarity = "t"
	Spatial          Similarity = "s"
	RandomSimilarity Similarity = "random"
)

// Algorithm is the Craddock group-level clustering method
type Algorithm string

const (
	TwoLevel    Algorithm = "2level"
	GroupMean   Algorithm = "mean"
	NoAlgorithm Algorithm = "none"
)

var (
	names        = []Name{Shen, Craddock, Power}
	resolutions  = []int{1, 2}
	similarities = []Similarity{Temporal, Spatial, RandomSimilarity}
	algorithms   = []Algorithm{TwoLevel, GroupMean, NoAlgorithm}

	// Volume order of the Craddock 4D datasets
	clusterSizes = []int{
		10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
		110, 120, 130, 140, 150, 160, 170, 180, 190, 200,
		210, 220, 230, 240, 250, 260, 270, 280, 290, 300,
		350, 400, 450, 500, 550, 600, 650, 700, 750, 800,
		850, 900, 950,
	}
)

// ClusterSizes returns the supported Craddock cluster counts in dataset order
func ClusterSizes() []int {
	return append([]int(nil), clusterSizes...)
}

// Resolutions returns the supported Shen resolutions in mm
func Resolutions() []int {
	return append([]int(nil), resolutions...)
}

// ClusterIndex returns the position of n in the Craddock dataset
func ClusterIndex(n int) (int, bool) {
	for i, size := range clusterSizes {
		if size == n {
			return i, true
		}
	}
	return 0, false
}

// ParseName maps a user-supplied atlas name to a Name
func ParseName(s string) (Name, error) {
	for _, n := range names {
		if string(n) == strings.ToLower(strings.TrimSpace(s)) {
			return n, nil
		}
	}
	return "", apperr.New(apperr.Config, "atlas.ParseName", "atlas name %q not recognized; accepted values: %v", s, names)
}

// Spec fully determines which atlas asset is loaded. Only the fields of the
// selected family may be set.
type Spec struct {
	Name Name

	// Resolution in mm (shen)
	Resolution int

	// Clusters is the parcel count (craddock)
	Clusters int

	// Similarity measure (craddock)
	Similarity Similarity

	// Algorithm for group clustering (craddock)
	Algorithm Algorithm
}

// ShenSpec selects the Shen 268 parcellation at the given resolution in mm
func ShenSpec(resolution int) Spec {
	return Spec{Name: Shen, Resolution: resolution}
}

// CraddockSpec selects one Craddock 2011 clustering
func CraddockSpec(clusters int, similarity Similarity, algorithm Algorithm) Spec {
	return Spec{Name: Craddock, Clusters: clusters, Similarity: similarity, Algorithm: algorithm}
}

// PowerSpec selects the Power 2011 sphere centres
func PowerSpec() Spec {
	return Spec{Name: Power}
}

// Validate checks the spec against the supported values without touching
// the filesystem. Failures are configuration errors naming the field.
func (s Spec) Validate() error {
	const op = "atlas.Validate"

	switch s.Name {
	case Shen:
		if !containsInt(resolutions, s.Resolution) {
			return apperr.New(apperr.Config, op, "resolution %d is not valid for the shen atlas; accepted values: %v", s.Resolution, resolutions)
		}
		if s.Clusters != 0 || s.Similarity != "" || s.Algorithm != "" {
			return apperr.New(apperr.Config, op, "clusters, similarity and algorithm do not apply to the shen atlas")
		}

	case Craddock:
		if _, ok := ClusterIndex(s.Clusters); !ok {
			return apperr.New(apperr.Config, op, "clusters %d is not valid for the craddock atlas; accepted values: %v", s.Clusters, clusterSizes)
		}
		if !containsSimilarity(s.Similarity) {
			return apperr.New(apperr.Config, op, "similarity %q is not valid for the craddock atlas; accepted values: %v", s.Similarity, similarities)
		}
		if !containsAlgorithm(s.Algorithm) {
			return apperr.New(apperr.Config, op, "algorithm %q is not valid for the craddock atlas; accepted values: %v", s.Algorithm, algorithms)
		}
		if s.Resolution != 0 {
			return apperr.New(apperr.Config, op, "resolution does not apply to the craddock atlas")
		}

	case Power:
		if s.Resolution != 0 || s.Clusters != 0 || s.Similarity != "" || s.Algorithm != "" {
			return apperr.New(apperr.Config, op, "the power atlas takes no parameters")
		}

	default:
		return apperr.New(apperr.Config, op, "atlas name %q not recognized; accepted values: %v", s.Name, names)
	}

	return nil
}

// Token is the atlas identity used in output file names, e.g. "craddock_200"
func (s Spec) Token() string {
	if s.Name == Craddock {
		return fmt.Sprintf("%s_%d", s.Name, s.Clusters)
	}
	return string(s.Name)
}

func (s Spec) String() string {
	switch s.Name {
	case Shen:
		return fmt.Sprintf("shen(%dmm)", s.Resolution)
	case Craddock:
		return fmt.Sprintf("craddock(%d,%s,%s)", s.Clusters, s.Similarity, s.Algorithm)
	default:
		return string(s.Name)
	}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsSimilarity(v Similarity) bool {
	for _, x := range similarities {
		if x == v {
			return true
		}
	}
	return false
}

func containsAlgorithm(v Algorithm) bool {
	for _, x := range algorithms {
		if x == v {
			return true
		}
	}
	return false
}
