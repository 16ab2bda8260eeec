// Package remap builds the 9-class distance remap table used to turn a
// Euclidean distance raster into proximity suitability scores.
package remap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Classes is the number of suitability classes in a table.
const Classes = 9

// Interval maps distances in [Lower, Upper) to Class.
type Interval struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Class int     `json:"class" yaml:"class"`
}

// Contains reports whether v falls in the half-open interval.
func (iv Interval) Contains(v float64) bool {
	return v >= iv.Lower && v < iv.Upper
}

// Width returns Upper - Lower.
func (iv Interval) Width() float64 {
	return iv.Upper - iv.Lower
}

// Params are the summary statistics a table is derived from.
type Params struct {
	Mean        float64 `json:"mean" yaml:"mean"`
	StdDev      float64 `json:"std_dev" yaml:"std_dev"`
	MaxDistance float64 `json:"max_distance" yaml:"max_distance"`
	Invert      bool    `json:"invert" yaml:"invert"`
}

// Table is an ordered, contiguous set of intervals covering [0, MaxDistance+1).
type Table struct {
	Params    Params     `json:"params" yaml:"params"`
	Intervals []Interval `json:"intervals" yaml:"intervals"`
}

// InvertClass flips a class value on the 1..max scale when invert is set.
func InvertClass(class int, invert bool, max int) int {
	if !invert {
		return class
	}
	return (max + 1) - class
}

// Build derives the remap table from the zonal mean and standard deviation of
// distances under the reference layer and the maximum distance in the raster.
//
// Breaks sit a quarter standard deviation apart starting at the mean. The last
// interval ends at MaxDistance+1 so the farthest cell is always covered. Every
// break is clamped to that bound, so large deviations collapse the upper
// intervals to zero width instead of running past it.
func Build(p Params) (*Table, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	top := p.MaxDistance + 1
	q := p.StdDev / 4

	breaks := make([]float64, Classes+1)
	breaks[0] = 0
	for k := 1; k < Classes; k++ {
		breaks[k] = math.Min(p.Mean+float64(k-1)*q, top)
	}
	breaks[Classes] = top

	t := &Table{Params: p, Intervals: make([]Interval, Classes)}
	for i := 0; i < Classes; i++ {
		t.Intervals[i] = Interval{
			Lower: breaks[i],
			Upper: breaks[i+1],
			Class: InvertClass(Classes-i, p.Invert, Classes),
		}
	}
	return t, nil
}

func (p Params) validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"mean", p.Mean},
		{"std dev", p.StdDev},
		{"max distance", p.MaxDistance},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return eris.Errorf("remap: %s is not finite (%v)", f.name, f.v)
		}
		if f.v < 0 {
			return eris.Errorf("remap: %s must be non-negative (%v)", f.name, f.v)
		}
	}
	if p.MaxDistance < p.Mean {
		return eris.Errorf("remap: max distance %v is below mean %v", p.MaxDistance, p.Mean)
	}
	return nil
}

// Degenerate reports whether the inner intervals collapsed because the
// standard deviation is zero.
func (t *Table) Degenerate() bool {
	return t.Params.StdDev == 0
}

// Inverted returns a copy of the table with every class flipped and the
// boundaries untouched.
func (t *Table) Inverted() *Table {
	out := &Table{Params: t.Params, Intervals: make([]Interval, len(t.Intervals))}
	out.Params.Invert = !t.Params.Invert
	for i, iv := range t.Intervals {
		iv.Class = InvertClass(iv.Class, true, Classes)
		out.Intervals[i] = iv
	}
	return out
}

// Lookup returns the class of the first interval containing v.
func (t *Table) Lookup(v float64) (int, bool) {
	for _, iv := range t.Intervals {
		if iv.Contains(v) {
			return iv.Class, true
		}
	}
	return 0, false
}

// Classes returns the class of each interval in order.
func (t *Table) Classes() []int {
	out := make([]int, len(t.Intervals))
	for i, iv := range t.Intervals {
		out[i] = iv.Class
	}
	return out
}

// String renders the table as [[lower,upper,class],...].
func (t *Table) String() string {
	parts := make([]string, len(t.Intervals))
	for i, iv := range t.Intervals {
		parts[i] = fmt.Sprintf("[%s,%s,%d]", formatBound(iv.Lower), formatBound(iv.Upper), iv.Class)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
