package raster

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyZone is returned when a zone covers no cell with data.
var ErrEmptyZone = errors.New("zone covers no data cells")

// Stats summarises the data cells of a raster or zone.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
}

func summarize(values []float64) Stats {
	mean, std := stat.PopMeanStdDev(values, nil)
	if len(values) == 1 || math.IsNaN(std) {
		std = 0
	}
	return Stats{
		Count:  len(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}

// Statistics summarises every data cell of g. The standard deviation is the
// population deviation.
func Statistics(g *Grid) (Stats, error) {
	values := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !g.IsNoData(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return Stats{}, eris.New("raster: statistics of a raster without data cells")
	}
	return summarize(values), nil
}

// ZonalStatistics summarises the data cells of g under zone. All marked
// cells form a single zone.
func ZonalStatistics(g *Grid, zone *Mask) (Stats, error) {
	if zone.Geometry != g.Geometry {
		return Stats{}, eris.New("raster: zone mask does not match value raster")
	}

	values := make([]float64, 0, zone.Count())
	for i, in := range zone.Cells {
		if in && !g.IsNoData(g.Data[i]) {
			values = append(values, g.Data[i])
		}
	}
	if len(values) == 0 {
		return Stats{}, eris.Wrap(ErrEmptyZone, "raster: zonal statistics")
	}
	return summarize(values), nil
}
