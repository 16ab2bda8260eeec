// Package suitability runs the proximity suitability pipeline: a Euclidean
// distance raster from a variable layer, reclassified into nine classes by
// the distance statistics measured under a reference layer.
package suitability

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/proxsuit/internal/layer"
	"github.com/sells-group/proxsuit/internal/raster"
	"github.com/sells-group/proxsuit/internal/remap"
	"github.com/sells-group/proxsuit/internal/scratch"
)

// Request names the inputs and outputs of one run.
type Request struct {
	// Reference is the layer being scored (e.g. residential parcels).
	Reference string
	// Variable is the layer distances are measured from (e.g. parks).
	Variable string
	// Output is the destination class raster (.asc or .tif).
	Output string
	// Invert flips classes so far cells score high.
	Invert bool
	// DistanceOutput optionally saves the distance raster (.asc).
	DistanceOutput string
	// ReportPath optionally writes a YAML run report.
	ReportPath string
}

// Environment is the raster environment of a run. Zero values are derived
// from the input layers.
type Environment struct {
	CellSize float64
	Extent   *raster.Extent
	Mask     string
	Workers  int
}

// Options configures a Pipeline.
type Options struct {
	Env        Environment
	ScratchDir string
	Layers     layer.Options
	Progress   Progressor
}

// Result describes a completed run.
type Result struct {
	RunID      string
	Stage      Stage
	Geometry   raster.Geometry
	Zonal      raster.Stats
	Distance   raster.Stats
	Table      *remap.Table
	Histogram  map[int]int
	ZonalTable string
	Scratch    string
	Output     string
	Elapsed    time.Duration
}

// Pipeline executes runs. A Pipeline is not safe for concurrent Run calls.
type Pipeline struct {
	opts  Options
	stage Stage
	log   *zap.Logger
}

// New returns a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Progress == nil {
		opts.Progress = nopProgressor{}
	}
	return &Pipeline{opts: opts, log: zap.L().With(zap.String("component", "suitability"))}
}

// Stage returns the stage the last run reached.
func (p *Pipeline) Stage() Stage {
	return p.stage
}

func (p *Pipeline) advance(to Stage) {
	p.stage = to
	p.log.Debug("stage reached", zap.String("stage", to.String()))
}

// step runs fn and, when it fails, logs the operation name and its inputs and
// wraps the error in a StepError.
func (p *Pipeline) step(name string, args map[string]any, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		p.log.Error("step failed",
			zap.String("step", name),
			zap.String("stage", p.stage.String()),
			zap.Any("args", args),
			zap.Error(err),
		)
		return &StepError{Step: name, Stage: p.stage, Args: args, Err: err}
	}
	p.log.Debug("step complete",
		zap.String("step", name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Validate checks a request before any work starts.
func (r Request) Validate() error {
	if r.Reference == "" || r.Variable == "" || r.Output == "" {
		return eris.New("suitability: reference, variable and output are required")
	}
	if _, err := raster.FormatFor(r.Output); err != nil {
		return err
	}
	if r.DistanceOutput != "" {
		f, err := raster.FormatFor(r.DistanceOutput)
		if err != nil {
			return err
		}
		if f != raster.FormatASCII {
			return eris.Errorf("suitability: distance output %s must be .asc", r.DistanceOutput)
		}
	}
	return nil
}

type inputs struct {
	reference *layer.Layer
	variable  *layer.Layer
	mask      *layer.Layer
}

// Run executes the pipeline. On failure no output raster is left at
// req.Output and the intermediate zonal table is dropped.
func (p *Pipeline) Run(ctx context.Context, req Request) (_ *Result, err error) {
	p.stage = StageIdle
	start := time.Now()
	prog := p.opts.Progress

	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.New().String(), Output: req.Output}
	log := p.log.With(zap.String("run_id", res.RunID))
	reference, variable, mask := layer.Redact(req.Reference), layer.Redact(req.Variable), layer.Redact(p.opts.Env.Mask)
	log.Info("starting proximity suitability",
		zap.String("reference", reference),
		zap.String("variable", variable),
		zap.String("output", req.Output),
		zap.Bool("invert", req.Invert),
	)

	ws, err := scratch.Open(p.opts.ScratchDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Close() }()
	res.Scratch = ws.Path()

	// Files written so far; removed if the run fails.
	var written []string
	tableCreated := false
	defer func() {
		if err == nil {
			return
		}
		for _, f := range written {
			_ = os.Remove(f)
		}
		if tableCreated {
			if derr := ws.Drop(context.WithoutCancel(ctx), res.ZonalTable); derr != nil {
				log.Warn("could not delete zonal statistics table", zap.String("table", res.ZonalTable), zap.Error(derr))
			}
		}
		prog.Reset()
	}()

	prog.Start("Creating Euclidean Distance raster...", 0, ProgressSteps)

	var in inputs
	err = p.step("LoadLayers", map[string]any{"reference": reference, "variable": variable, "mask": mask}, func() error {
		return p.loadInputs(ctx, req, &in)
	})
	if err != nil {
		return nil, err
	}

	var geo raster.Geometry
	err = p.step("ResolveEnvironment", map[string]any{"cell_size": p.opts.Env.CellSize, "extent": p.opts.Env.Extent}, func() error {
		var gerr error
		geo, gerr = p.resolveGeometry(in)
		return geoprocessing("resolve environment", gerr)
	})
	if err != nil {
		return nil, err
	}
	res.Geometry = geo
	log.Info("raster environment",
		zap.Float64("cell_size", geo.CellSize),
		zap.Int("cols", geo.Cols),
		zap.Int("rows", geo.Rows),
		zap.Any("extent", geo.Extent),
	)

	// Distance.
	prog.Message("Creating Euclidean Distance from Variable Layer")
	var distance *raster.Grid
	err = p.step("EucDistance", map[string]any{"variable": variable, "workers": p.opts.Env.Workers}, func() error {
		sources := raster.Rasterize(geo, geometries(in.variable))
		var analysis *raster.Mask
		if in.mask != nil {
			analysis = raster.Rasterize(geo, geometries(in.mask))
		}
		var derr error
		distance, derr = raster.EuclideanDistance(ctx, sources, raster.DistanceOptions{
			Workers:  p.opts.Env.Workers,
			Analysis: analysis,
		})
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return geoprocessing("euclidean distance", derr)
	})
	if err != nil {
		return nil, err
	}
	p.advance(StageDistanceComputed)

	// Zone.
	prog.Label("Building a single zone from every reference feature...")
	prog.Advance()
	var zone *raster.Mask
	err = p.step("BuildZone", map[string]any{"reference": reference, "features": in.reference.Len()}, func() error {
		zone = raster.Rasterize(geo, geometries(in.reference))
		if zone.Count() == 0 {
			return geoprocessing("build zone", eris.Errorf("reference layer %s covers no raster cell", reference))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	prog.Label("Making reference zone from the single zone mask...")
	prog.Advance()

	// Zonal statistics as table.
	prog.Label("Calculating Zonal Statistics for remap table...")
	prog.Advance()
	res.ZonalTable = scratch.NewTableName("zonal")
	err = p.step("ZonalStatisticsAsTable", map[string]any{"zone_cells": zone.Count(), "table": res.ZonalTable}, func() error {
		stats, zerr := raster.ZonalStatistics(distance, zone)
		if zerr != nil {
			return geoprocessing("zonal statistics", zerr)
		}
		tableCreated = true
		return ws.WriteZonalTable(ctx, res.ZonalTable, []scratch.ZonalRow{{ZoneID: scratch.ZoneAll, Stats: stats}})
	})
	if err != nil {
		return nil, err
	}

	prog.Label("Reading Zonal Statistics table...")
	prog.Advance()
	err = p.step("ReadZonalStatistics", map[string]any{"table": res.ZonalTable, "zone": scratch.ZoneAll}, func() error {
		row, rerr := ws.ReadZonalStatistics(ctx, res.ZonalTable, scratch.ZoneAll)
		if rerr != nil {
			return rerr
		}
		res.Zonal = row.Stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("retrieved zonal statistics",
		zap.Float64("mean", res.Zonal.Mean),
		zap.Float64("std_dev", res.Zonal.StdDev),
		zap.Int("cells", res.Zonal.Count),
	)
	p.advance(StageStatisticsComputed)

	prog.Label("Calculating Statistics for Distance Raster...")
	prog.Advance()
	err = p.step("CalculateStatistics", map[string]any{"cells": geo.Len()}, func() error {
		var serr error
		res.Distance, serr = raster.Statistics(distance)
		return geoprocessing("calculate statistics", serr)
	})
	if err != nil {
		return nil, err
	}

	prog.Label("Retrieving maximum value from value raster...")
	prog.Advance()
	log.Info("maximum raster value used as the final remap bound", zap.Float64("max", res.Distance.Max))

	params := remap.Params{
		Mean:        res.Zonal.Mean,
		StdDev:      res.Zonal.StdDev,
		MaxDistance: res.Distance.Max,
		Invert:      req.Invert,
	}
	err = p.step("BuildRemapTable", map[string]any{"mean": params.Mean, "std_dev": params.StdDev, "max": params.MaxDistance, "invert": params.Invert}, func() error {
		var berr error
		res.Table, berr = remap.Build(params)
		return berr
	})
	if err != nil {
		return nil, err
	}
	if res.Table.Degenerate() {
		log.Warn("zero standard deviation: distances below the mean are class 9, the rest class 1",
			zap.Float64("mean", params.Mean),
			zap.Bool("invert", params.Invert),
		)
	}
	p.advance(StageRemapTableBuilt)

	prog.Label("Starting Data Driven Reclassification...")
	prog.Advance()
	prog.Message("Starting Data Driven Reclassification")
	var classes *raster.Grid
	err = p.step("Reclassify", map[string]any{"remap": res.Table.String()}, func() error {
		classes = raster.Reclassify(distance, res.Table)
		res.Histogram = raster.Histogram(classes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.advance(StageReclassified)

	if req.DistanceOutput != "" {
		err = p.step("SaveDistance", map[string]any{"path": req.DistanceOutput}, func() error {
			if serr := raster.Save(req.DistanceOutput, distance, raster.SaveOptions{PRJ: in.variable.PRJ}); serr != nil {
				return geoprocessing("save distance raster", serr)
			}
			written = append(written, req.DistanceOutput)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if req.ReportPath != "" {
		err = p.step("WriteReport", map[string]any{"path": req.ReportPath}, func() error {
			if werr := WriteReport(req.ReportPath, NewReport(req, res)); werr != nil {
				return werr
			}
			written = append(written, req.ReportPath)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = p.step("Save", map[string]any{"output": req.Output}, func() error {
		return geoprocessing("save output raster", raster.Save(req.Output, classes, raster.SaveOptions{PRJ: in.variable.PRJ}))
	})
	if err != nil {
		return nil, err
	}
	p.advance(StagePersisted)

	prog.Message("Finished Data Driven Reclassification of " + filepath.Base(req.Output))
	prog.Message("Final Reclassification: " + res.Table.String())
	prog.Reset()

	// Failure to delete the intermediate table does not fail the run.
	if derr := ws.Drop(ctx, res.ZonalTable); derr != nil {
		log.Warn("could not delete zonal statistics table", zap.String("table", res.ZonalTable), zap.Error(derr))
	}
	tableCreated = false
	p.advance(StageCleanedUp)

	res.Stage = p.stage
	res.Elapsed = time.Since(start)
	log.Info("proximity suitability complete",
		zap.String("output", req.Output),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// loadInputs reads the reference, variable and optional mask layers
// concurrently.
func (p *Pipeline) loadInputs(ctx context.Context, req Request, in *inputs) error {
	g, gctx := errgroup.WithContext(ctx)
	load := func(src string, dst **layer.Layer) {
		g.Go(func() error {
			l, err := layer.Open(gctx, src, p.opts.Layers)
			if err != nil {
				return geoprocessing("open layer "+layer.Redact(src), err)
			}
			*dst = l
			return nil
		})
	}
	load(req.Reference, &in.reference)
	load(req.Variable, &in.variable)
	if p.opts.Env.Mask != "" {
		load(p.opts.Env.Mask, &in.mask)
	}
	return g.Wait()
}

// resolveGeometry applies the configured extent and cell size, defaulting to
// the union of the input layers and 1/250th of its shorter side.
func (p *Pipeline) resolveGeometry(in inputs) (raster.Geometry, error) {
	var extent raster.Extent
	if p.opts.Env.Extent != nil {
		extent = *p.opts.Env.Extent
	} else {
		rb, vb := in.reference.Bounds(), in.variable.Bounds()
		if rb.IsEmpty() || vb.IsEmpty() {
			return raster.Geometry{}, eris.New("suitability: input layers have no extent")
		}
		extent = raster.ExtentFromBounds(rb).Union(raster.ExtentFromBounds(vb))
	}

	cellSize := p.opts.Env.CellSize
	if cellSize == 0 {
		cellSize = raster.DefaultCellSize(extent)
	}
	return raster.NewGeometry(extent, cellSize)
}

func geometries(l *layer.Layer) []geom.T {
	out := make([]geom.T, 0, l.Len())
	for _, f := range l.Features {
		out = append(out, f.Geometry)
	}
	return out
}
