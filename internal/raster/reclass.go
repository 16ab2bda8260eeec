package raster

// ClassNoData is the NoData value of class rasters.
const ClassNoData = 0

// Classifier maps a value to a class. ok is false when no rule matches.
type Classifier interface {
	Lookup(v float64) (class int, ok bool)
}

// Reclassify maps every data cell of g through c. NoData and unmatched cells
// become ClassNoData.
func Reclassify(g *Grid, c Classifier) *Grid {
	out := NewGrid(g.Geometry, ClassNoData, ClassNoData)
	for i, v := range g.Data {
		if g.IsNoData(v) {
			continue
		}
		if class, ok := c.Lookup(v); ok {
			out.Data[i] = float64(class)
		}
	}
	return out
}

// Histogram counts cells per class, skipping NoData.
func Histogram(g *Grid) map[int]int {
	h := make(map[int]int)
	for _, v := range g.Data {
		if g.IsNoData(v) {
			continue
		}
		h[int(v)]++
	}
	return h
}
