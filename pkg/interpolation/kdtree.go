package interpolation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"atlastransform/internal/models"
)

// Point3D is a voxel centre in world coordinates (mm), tagged with the flat
// index of the voxel it belongs to
type Point3D struct {
	X, Y, Z float64
	Index   int
}

// Compare implements the kdtree.Comparable interface
func (p Point3D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point3D)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point3D) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p Point3D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point3D)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// Points3D is a collection of Point3D that satisfies kdtree.Interface
type Points3D []Point3D

func (p Points3D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points3D) Len() int                              { return len(p) }
func (p Points3D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points3D) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points3D: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points3D: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points3D
type pointPlane struct {
	Points3D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points3D[i].X < p.Points3D[j].X
	case 1:
		return p.Points3D[i].Y < p.Points3D[j].Y
	case 2:
		return p.Points3D[i].Z < p.Points3D[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points3D: p.Points3D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points3D[i], p.Points3D[j] = p.Points3D[j], p.Points3D[i]
}

// VoxelIndex answers sphere queries over the voxel centres of one grid
type VoxelIndex struct {
	shape  models.Shape
	affine models.Affine
	inv    models.Affine
	tree   *kdtree.Tree
}

// NewVoxelIndex builds a KD-tree over every voxel centre of the grid
func NewVoxelIndex(shape models.Shape, affine models.Affine) (*VoxelIndex, error) {
	inv, err := affine.Inverse()
	if err != nil {
		return nil, err
	}

	points := make(Points3D, 0, shape.Len())
	for idx := 0; idx < shape.Len(); idx++ {
		x, y, z := shape.Coords(idx)
		w := affine.Apply(float64(x), float64(y), float64(z))
		points = append(points, Point3D{X: w.X, Y: w.Y, Z: w.Z, Index: idx})
	}

	return &VoxelIndex{
		shape:  shape,
		affine: affine,
		inv:    inv,
		tree:   kdtree.New(points, true),
	}, nil
}

// Shape returns the indexed grid size
func (vi *VoxelIndex) Shape() models.Shape {
	return vi.shape
}

// Within returns the flat indices of all voxels whose centre lies at most
// radius mm from center, ascending
func (vi *VoxelIndex) Within(center models.Point, radius float64) []int {
	if radius < 0 || vi.tree.Root == nil {
		return nil
	}

	// Distances are squared
	keeper := kdtree.NewDistKeeper(radius * radius)
	vi.tree.NearestSet(keeper, Point3D{X: center.X, Y: center.Y, Z: center.Z})

	out := make([]int, 0, keeper.Len())
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		out = append(out, item.Comparable.(Point3D).Index)
	}
	sort.Ints(out)
	return out
}

// Containing returns the flat index of the voxel nearest to p, if p maps
// inside the grid
func (vi *VoxelIndex) Containing(p models.Point) (int, bool) {
	v := vi.inv.Apply(p.X, p.Y, p.Z)
	x, y, z := int(math.Round(v.X)), int(math.Round(v.Y)), int(math.Round(v.Z))
	if !vi.shape.Contains(x, y, z) {
		return 0, false
	}
	return vi.shape.Index(x, y, z), true
}
