package vector

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/raster"
)

// Direction codes for cell edges in raster space (rows grow downward).
// Turning right is +1 mod 4, turning left +3.
const (
	east = iota
	south
	west
	north
)

var (
	stepX = [4]int{1, 0, -1, 0}
	stepY = [4]int{0, 1, 0, -1}
)

// Vectorize converts every 4-connected region of equal non-zero class into
// a polygon. Each feature gets {field: class} plus the labeler's extra
// attributes. A grid without non-zero cells yields an empty set.
func Vectorize(cg *raster.ClassGrid, field string, labeler func(class uint8) map[string]any) *FeatureSet {
	fs := NewFeatureSet(cg.CRS)
	if cg.Width == 0 || cg.Height == 0 {
		return fs
	}

	t := newTracer(cg)
	seeds := t.components()
	rings := t.rings(len(seeds))

	for k, seed := range seeds {
		poly := buildPolygon(rings[k])
		if poly == nil {
			continue
		}
		class := cg.Classes[seed]
		props := map[string]any{field: int(class)}
		if labeler != nil {
			for key, v := range labeler(class) {
				props[key] = v
			}
		}
		fs.Add(poly, props)
	}

	zap.L().Debug("vector: vectorized class grid",
		zap.String("field", field),
		zap.Int("regions", len(seeds)),
		zap.Int("features", fs.Len()),
	)
	return fs
}

type tracer struct {
	cg      *raster.ClassGrid
	w, h    int
	label   []int32
	visited []uint8
}

func newTracer(cg *raster.ClassGrid) *tracer {
	return &tracer{
		cg:      cg,
		w:       cg.Width,
		h:       cg.Height,
		label:   make([]int32, len(cg.Classes)),
		visited: make([]uint8, len(cg.Classes)),
	}
}

// components labels 4-connected regions and returns the index of the first
// cell (row-major) of each one.
func (t *tracer) components() []int {
	var seeds []int
	var next int32
	stack := make([]int, 0, 64)

	for i, c := range t.cg.Classes {
		if c == 0 || t.label[i] != 0 {
			continue
		}
		next++
		seeds = append(seeds, i)
		t.label[i] = next
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cx, cy := cur%t.w, cur/t.w
			for d := 0; d < 4; d++ {
				nx, ny := cx+stepX[d], cy+stepY[d]
				if nx < 0 || ny < 0 || nx >= t.w || ny >= t.h {
					continue
				}
				ni := ny*t.w + nx
				if t.label[ni] == 0 && t.cg.Classes[ni] == c {
					t.label[ni] = next
					stack = append(stack, ni)
				}
			}
		}
	}
	return seeds
}

// comp returns the component label at (x, y), 0 outside the grid.
func (t *tracer) comp(x, y int) int32 {
	if x < 0 || y < 0 || x >= t.w || y >= t.h {
		return 0
	}
	return t.label[y*t.w+x]
}

// owner returns the cell on the right of the edge leaving vertex (x, y) in
// direction d, and the cell on its left.
func owner(x, y, d int) (rx, ry, lx, ly int) {
	switch d {
	case east:
		return x, y, x, y - 1
	case south:
		return x - 1, y, x, y
	case west:
		return x - 1, y - 1, x - 1, y
	default:
		return x, y - 1, x - 1, y - 1
	}
}

// start returns the vertex where side d of cell (x, y) begins when the
// boundary is walked with the cell on the right.
func start(x, y, d int) (int, int) {
	switch d {
	case east:
		return x, y
	case south:
		return x + 1, y
	case west:
		return x + 1, y + 1
	default:
		return x, y + 1
	}
}

func (t *tracer) isBoundary(x, y, d int, id int32) bool {
	rx, ry, lx, ly := owner(x, y, d)
	return t.comp(rx, ry) == id && t.comp(lx, ly) != id
}

// rings traces every boundary ring of every component in one row-major
// pass. The result is indexed by component label minus one.
func (t *tracer) rings(n int) [][][]float64 {
	out := make([][][]float64, n)
	for i, id := range t.label {
		if id == 0 {
			continue
		}
		cx, cy := i%t.w, i/t.w
		for d := 0; d < 4; d++ {
			if t.visited[i]&(1<<d) != 0 {
				continue
			}
			// The neighbour across side d lies one step in direction d-1.
			if t.comp(cx+stepX[(d+3)%4], cy+stepY[(d+3)%4]) == id {
				continue
			}
			out[id-1] = append(out[id-1], t.trace(cx, cy, d, id))
		}
	}
	return out
}

// trace walks one ring starting on side d of cell (cx, cy) and returns its
// corner vertices in world coordinates. An edge is identified by its start
// vertex and direction.
func (t *tracer) trace(cx, cy, d int, id int32) []float64 {
	type step struct{ x, y, d int }
	var steps []step

	x, y := start(cx, cy, d)
	x0, y0, d0 := x, y, d
	for {
		rx, ry, _, _ := owner(x, y, d)
		t.visited[ry*t.w+rx] |= 1 << d
		steps = append(steps, step{x, y, d})

		x, y = x+stepX[d], y+stepY[d]
		// A choice only arises where two diagonal cells of the component
		// meet at a corner. Turning left there keeps each ring simple: the
		// rings touch at the corner instead of crossing themselves.
		for _, nd := range [3]int{(d + 3) % 4, d, (d + 1) % 4} {
			if t.isBoundary(x, y, nd, id) {
				d = nd
				break
			}
		}
		if x == x0 && y == y0 && d == d0 {
			break
		}
	}

	gt := t.cg.Transform
	flat := make([]float64, 0, 2*len(steps))
	for i, s := range steps {
		// Only corners are kept; collinear vertices are dropped.
		if steps[(i+len(steps)-1)%len(steps)].d == s.d {
			continue
		}
		wx, wy := gt.Apply(float64(s.x), float64(s.y))
		flat = append(flat, wx, wy)
	}
	return flat
}

// buildPolygon makes the largest ring the shell and the rest holes, shell
// counter-clockwise and holes clockwise.
func buildPolygon(rings [][]float64) *geom.Polygon {
	if len(rings) == 0 {
		return nil
	}
	shell := 0
	areas := make([]float64, len(rings))
	for i, r := range rings {
		areas[i] = flatArea(r)
		if math.Abs(areas[i]) > math.Abs(areas[shell]) {
			shell = i
		}
	}

	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(closeRing(rings[shell], areas[shell] > 0)); err != nil {
		return nil
	}
	for i, r := range rings {
		if i == shell {
			continue
		}
		if err := poly.Push(closeRing(r, areas[i] < 0)); err != nil {
			zap.L().Debug("vector: skipping malformed hole", zap.Error(err))
		}
	}
	return poly
}

func flatArea(flat []float64) float64 {
	n := len(flat) / 2
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return a / 2
}

// closeRing returns a closed linear ring, reversed when keep is false.
func closeRing(flat []float64, keep bool) *geom.LinearRing {
	n := len(flat) / 2
	out := make([]float64, 0, len(flat)+2)
	if keep {
		out = append(out, flat...)
	} else {
		for i := n - 1; i >= 0; i-- {
			out = append(out, flat[2*i], flat[2*i+1])
		}
	}
	out = append(out, out[0], out[1])
	return geom.NewLinearRingFlat(geom.XY, out)
}
