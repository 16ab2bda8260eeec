package raster

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Mask marks the cells of a Geometry covered by features.
type Mask struct {
	Geometry
	Cells []bool
}

// NewMask returns an empty mask.
func NewMask(g Geometry) *Mask {
	return &Mask{Geometry: g, Cells: make([]bool, g.Len())}
}

// Count returns the number of marked cells.
func (m *Mask) Count() int {
	n := 0
	for _, c := range m.Cells {
		if c {
			n++
		}
	}
	return n
}

// Rasterize burns every geometry into a new mask.
func Rasterize(g Geometry, geoms []geom.T) *Mask {
	m := NewMask(g)
	for _, gm := range geoms {
		m.Burn(gm)
	}
	return m
}

// Burn marks the cells covered by gm and returns the number of marks made.
// A cell crossed twice is counted twice; use it only as a "hit anything" test.
//
// Polygons cover the cells whose centre lies inside them; a polygon too small
// to contain any centre covers the cells its boundary passes through. Points
// cover the cell containing them and lines every cell they cross.
func (m *Mask) Burn(gm geom.T) int {
	if gm == nil || gm.Empty() {
		return 0
	}

	switch g := gm.(type) {
	case *geom.Point:
		return m.burnCoords(g.FlatCoords(), g.Stride())
	case *geom.MultiPoint:
		return m.burnCoords(g.FlatCoords(), g.Stride())
	case *geom.LineString:
		return m.burnLine(g.FlatCoords(), g.Stride())
	case *geom.LinearRing:
		return m.burnLine(g.FlatCoords(), g.Stride())
	case *geom.MultiLineString:
		n := 0
		for i := 0; i < g.NumLineStrings(); i++ {
			n += m.Burn(g.LineString(i))
		}
		return n
	case *geom.Polygon:
		return m.burnPolygon(g)
	case *geom.MultiPolygon:
		n := 0
		for i := 0; i < g.NumPolygons(); i++ {
			n += m.Burn(g.Polygon(i))
		}
		return n
	case *geom.GeometryCollection:
		n := 0
		for _, child := range g.Geoms() {
			n += m.Burn(child)
		}
		return n
	}
	return 0
}

func (m *Mask) mark(x, y float64) bool {
	col, row, ok := m.Cell(x, y)
	if !ok {
		return false
	}
	m.Cells[m.Index(col, row)] = true
	return true
}

func (m *Mask) burnCoords(flat []float64, stride int) int {
	n := 0
	for i := 0; i+1 < len(flat); i += stride {
		if m.mark(flat[i], flat[i+1]) {
			n++
		}
	}
	return n
}

// burnLine samples each segment at half-cell spacing.
func (m *Mask) burnLine(flat []float64, stride int) int {
	if len(flat) < 2*stride {
		return m.burnCoords(flat, stride)
	}

	step := m.CellSize / 2
	n := 0
	for i := 0; i+stride+1 < len(flat); i += stride {
		x0, y0 := flat[i], flat[i+1]
		x1, y1 := flat[i+stride], flat[i+stride+1]

		length := math.Hypot(x1-x0, y1-y0)
		samples := int(math.Ceil(length / step))
		if samples < 1 {
			samples = 1
		}
		for s := 0; s <= samples; s++ {
			t := float64(s) / float64(samples)
			if m.mark(x0+t*(x1-x0), y0+t*(y1-y0)) {
				n++
			}
		}
	}
	return n
}

func (m *Mask) burnPolygon(p *geom.Polygon) int {
	if p.NumLinearRings() == 0 {
		return 0
	}

	layout := p.Layout()
	shell := p.LinearRing(0).FlatCoords()
	holes := make([][]float64, 0, p.NumLinearRings()-1)
	for i := 1; i < p.NumLinearRings(); i++ {
		holes = append(holes, p.LinearRing(i).FlatCoords())
	}

	b := p.Bounds()
	c0, r0, c1, r1, ok := m.cellRange(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	n := 0
	if ok {
		coord := make(geom.Coord, layout.Stride())
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				x, y := m.Center(col, row)
				coord[0], coord[1] = x, y
				if !xy.IsPointInRing(layout, coord, shell) {
					continue
				}
				inHole := false
				for _, h := range holes {
					if xy.IsPointInRing(layout, coord, h) {
						inHole = true
						break
					}
				}
				if inHole {
					continue
				}
				m.Cells[m.Index(col, row)] = true
				n++
			}
		}
	}

	if n == 0 {
		n = m.burnLine(shell, p.Stride())
	}
	return n
}

// cellRange returns the clamped column/row span of a bounding box.
func (m *Mask) cellRange(minX, minY, maxX, maxY float64) (c0, r0, c1, r1 int, ok bool) {
	e := m.Extent
	if maxX < e.MinX || minX > e.MaxX || maxY < e.MinY || minY > e.MaxY {
		return 0, 0, 0, 0, false
	}
	c0 = clampInt(int(math.Floor((minX-e.MinX)/m.CellSize)), 0, m.Cols-1)
	c1 = clampInt(int(math.Floor((maxX-e.MinX)/m.CellSize)), 0, m.Cols-1)
	r0 = clampInt(int(math.Floor((e.MaxY-maxY)/m.CellSize)), 0, m.Rows-1)
	r1 = clampInt(int(math.Floor((e.MaxY-minY)/m.CellSize)), 0, m.Rows-1)
	return c0, r0, c1, r1, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
