package raster

import (
	"gonum.org/v1/gonum/floats"
)

// Stats summarizes the valid cells of a grid.
type Stats struct {
	Min   float64
	Max   float64
	Mean  float64
	Valid int
	Total int
}

// Stats computes min, max and mean over valid cells, one row at a time.
// It returns ErrEmptyRaster when no cell is valid.
func (g *Grid) Stats() (Stats, error) {
	s := Stats{Total: len(g.Data)}
	var sum float64
	buf := make([]float64, 0, g.Width)

	for r := 0; r < g.Height; r++ {
		buf = buf[:0]
		for _, v := range g.Data[r*g.Width : (r+1)*g.Width] {
			if g.Valid(v) {
				buf = append(buf, float64(v))
			}
		}
		if len(buf) == 0 {
			continue
		}
		lo, hi := floats.Min(buf), floats.Max(buf)
		if s.Valid == 0 || lo < s.Min {
			s.Min = lo
		}
		if s.Valid == 0 || hi > s.Max {
			s.Max = hi
		}
		sum += floats.Sum(buf)
		s.Valid += len(buf)
	}

	if s.Valid == 0 {
		return s, ErrEmptyRaster
	}
	s.Mean = sum / float64(s.Valid)
	return s, nil
}
