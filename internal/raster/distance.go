package raster

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// DefaultNoData marks cells without a value in float rasters.
const DefaultNoData = -9999.0

// ErrNoSources is returned when the source mask has no marked cell.
var ErrNoSources = errors.New("no source cells")

// DistanceOptions configures EuclideanDistance.
type DistanceOptions struct {
	// Workers bounds the parallel row/column passes. Zero means GOMAXPROCS.
	Workers int
	// Analysis, when set, restricts output: cells outside it become NoData.
	Analysis *Mask
}

// EuclideanDistance returns, for every cell, the straight-line distance from
// its centre to the nearest source cell centre, in map units.
//
// It is an exact separable transform: a lower envelope of parabolas along
// every row, then along every column of the row result.
func EuclideanDistance(ctx context.Context, sources *Mask, opts DistanceOptions) (*Grid, error) {
	if sources.Count() == 0 {
		return nil, eris.Wrap(ErrNoSources, "raster: euclidean distance")
	}
	if opts.Analysis != nil && opts.Analysis.Geometry != sources.Geometry {
		return nil, eris.New("raster: analysis mask does not match source grid")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	geo := sources.Geometry
	sq := make([]float64, geo.Len())
	for i, src := range sources.Cells {
		if !src {
			sq[i] = math.Inf(1)
		}
	}

	// Rows.
	err := parallelBands(ctx, geo.Rows, workers, func(r0, r1 int) {
		buf := newEnvelope(geo.Cols)
		for row := r0; row < r1; row++ {
			line := sq[row*geo.Cols : (row+1)*geo.Cols]
			buf.transform(line)
			copy(line, buf.out)
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "raster: euclidean distance row pass")
	}

	// Columns.
	err = parallelBands(ctx, geo.Cols, workers, func(c0, c1 int) {
		buf := newEnvelope(geo.Rows)
		line := make([]float64, geo.Rows)
		for col := c0; col < c1; col++ {
			for row := 0; row < geo.Rows; row++ {
				line[row] = sq[row*geo.Cols+col]
			}
			buf.transform(line)
			for row := 0; row < geo.Rows; row++ {
				sq[row*geo.Cols+col] = buf.out[row]
			}
		}
	})
	if err != nil {
		return nil, eris.Wrap(err, "raster: euclidean distance column pass")
	}

	out := &Grid{Geometry: geo, NoData: DefaultNoData, Data: sq}
	for i, v := range sq {
		if opts.Analysis != nil && !opts.Analysis.Cells[i] {
			out.Data[i] = DefaultNoData
			continue
		}
		out.Data[i] = math.Sqrt(v) * geo.CellSize
	}
	return out, nil
}

// parallelBands splits [0, n) into contiguous bands and runs fn on each with
// at most workers goroutines.
func parallelBands(ctx context.Context, n, workers int, fn func(lo, hi int)) error {
	bands := workers * 4
	if bands > n {
		bands = n
	}
	if bands < 1 {
		return nil
	}
	size := (n + bands - 1) / bands

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// envelope holds scratch space for the 1-D squared distance transform.
type envelope struct {
	v   []int
	z   []float64
	out []float64
}

func newEnvelope(n int) *envelope {
	return &envelope{v: make([]int, n), z: make([]float64, n+1), out: make([]float64, n)}
}

// transform computes out[q] = min_p (q-p)^2 + f[p]. Infinite f values are
// not sites; if every value is infinite so is the output.
func (e *envelope) transform(f []float64) {
	n := len(f)
	k := -1
	for q := 0; q < n; q++ {
		if math.IsInf(f[q], 1) {
			continue
		}
		if k < 0 {
			k = 0
			e.v[0] = q
			e.z[0] = math.Inf(-1)
			e.z[1] = math.Inf(1)
			continue
		}
		s := intersect(f, e.v[k], q)
		for s <= e.z[k] {
			k--
			s = intersect(f, e.v[k], q)
		}
		k++
		e.v[k] = q
		e.z[k] = s
		e.z[k+1] = math.Inf(1)
	}

	if k < 0 {
		for q := range e.out[:n] {
			e.out[q] = math.Inf(1)
		}
		return
	}

	k = 0
	for q := 0; q < n; q++ {
		for e.z[k+1] < float64(q) {
			k++
		}
		d := float64(q - e.v[k])
		e.out[q] = d*d + f[e.v[k]]
	}
}

// intersect returns the abscissa where the parabolas rooted at p and q meet.
func intersect(f []float64, p, q int) float64 {
	fp, fq := float64(p), float64(q)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}
