// Package raster implements the small raster engine behind proximity
// suitability: vector burning, Euclidean distance, zonal statistics,
// reclassification and grid I/O.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Extent is an axis-aligned bounding box in map units.
type Extent struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// ExtentFromBounds converts go-geom bounds to an Extent.
func ExtentFromBounds(b *geom.Bounds) Extent {
	return Extent{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}

// Width returns MaxX - MinX.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns MaxY - MinY.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Union returns the smallest extent containing both.
func (e Extent) Union(o Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, o.MinX),
		MinY: math.Min(e.MinY, o.MinY),
		MaxX: math.Max(e.MaxX, o.MaxX),
		MaxY: math.Max(e.MaxY, o.MaxY),
	}
}

// Valid reports whether the extent has finite, ordered coordinates.
func (e Extent) Valid() bool {
	for _, v := range []float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.MaxX >= e.MinX && e.MaxY >= e.MinY
}

// DefaultCellDivisor splits the shorter extent side into this many cells when
// no cell size is configured.
const DefaultCellDivisor = 250

// DefaultCellSize returns the cell size used when none is configured.
func DefaultCellSize(e Extent) float64 {
	side := math.Min(e.Width(), e.Height())
	if side <= 0 {
		side = math.Max(e.Width(), e.Height())
	}
	if side <= 0 {
		return 1
	}
	return side / DefaultCellDivisor
}

// Geometry fixes the cell layout of a raster. Row 0 is the top (MaxY) row.
type Geometry struct {
	Extent   Extent
	CellSize float64
	Cols     int
	Rows     int
}

// NewGeometry lays cells over extent, growing MaxX and MinY so whole cells
// cover the extent. Degenerate extents still get one cell.
func NewGeometry(e Extent, cellSize float64) (Geometry, error) {
	if !e.Valid() {
		return Geometry{}, eris.Errorf("raster: invalid extent %+v", e)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return Geometry{}, eris.Errorf("raster: invalid cell size %v", cellSize)
	}

	fc := cellCount(e.Width(), cellSize)
	fr := cellCount(e.Height(), cellSize)
	if fc > maxCells || fr > maxCells {
		return Geometry{}, eris.Errorf("raster: %.0fx%.0f cells exceeds limit of %d", fc, fr, maxCells)
	}
	cols := max(int(fc), 1)
	rows := max(int(fr), 1)
	if cols > maxCells/rows {
		return Geometry{}, eris.Errorf("raster: %dx%d cells exceeds limit of %d", cols, rows, maxCells)
	}

	e.MaxX = e.MinX + float64(cols)*cellSize
	e.MinY = e.MaxY - float64(rows)*cellSize
	return Geometry{Extent: e, CellSize: cellSize, Cols: cols, Rows: rows}, nil
}

const maxCells = 1 << 28

// cellCount is ceil(length/cellSize), ignoring rounding noise so a side that
// is an exact multiple of the cell size does not gain a column. It stays a
// float so callers can bound it before converting.
func cellCount(length, cellSize float64) float64 {
	n := length / cellSize
	return math.Ceil(n - 1e-9*math.Max(1, n))
}

// Len returns Cols*Rows.
func (g Geometry) Len() int { return g.Cols * g.Rows }

// Index returns the flat index of (col, row).
func (g Geometry) Index(col, row int) int { return row*g.Cols + col }

// Center returns the map coordinate of a cell centre.
func (g Geometry) Center(col, row int) (x, y float64) {
	x = g.Extent.MinX + (float64(col)+0.5)*g.CellSize
	y = g.Extent.MaxY - (float64(row)+0.5)*g.CellSize
	return x, y
}

// edgeTolerance, in cells, absorbs rounding when a point sits on the grid edge.
const edgeTolerance = 1e-6

// Cell returns the cell containing (x, y) and whether it lies in the grid.
// Points on the right and bottom edges belong to the last column and row.
func (g Geometry) Cell(x, y float64) (col, row int, ok bool) {
	fc := (x - g.Extent.MinX) / g.CellSize
	fr := (g.Extent.MaxY - y) / g.CellSize
	if fc < -edgeTolerance || fr < -edgeTolerance ||
		fc > float64(g.Cols)+edgeTolerance || fr > float64(g.Rows)+edgeTolerance {
		return 0, 0, false
	}
	col = clampInt(int(fc), 0, g.Cols-1)
	row = clampInt(int(fr), 0, g.Rows-1)
	return col, row, true
}

// Grid is a single-band float raster.
type Grid struct {
	Geometry
	NoData float64
	Data   []float64
}

// NewGrid allocates a grid filled with fill.
func NewGrid(g Geometry, noData, fill float64) *Grid {
	data := make([]float64, g.Len())
	for i := range data {
		data[i] = fill
	}
	return &Grid{Geometry: g, NoData: noData, Data: data}
}

// At returns the value at (col, row).
func (g *Grid) At(col, row int) float64 {
	return g.Data[g.Index(col, row)]
}

// Set stores v at (col, row).
func (g *Grid) Set(col, row int, v float64) {
	g.Data[g.Index(col, row)] = v
}

// IsNoData reports whether v is the grid's NoData value.
func (g *Grid) IsNoData(v float64) bool {
	return v == g.NoData || math.IsNaN(v)
}
