package suitability

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/proxsuit/internal/layer"
	"github.com/sells-group/proxsuit/internal/raster"
)

// Report is the YAML record of a completed run.
type Report struct {
	RunID      string        `yaml:"run_id"`
	CreatedAt  time.Time     `yaml:"created_at"`
	Inputs     ReportInputs  `yaml:"inputs"`
	Raster     ReportRaster  `yaml:"raster"`
	Zonal      raster.Stats  `yaml:"zonal"`
	Distance   raster.Stats  `yaml:"distance"`
	Remap      []ReportClass `yaml:"remap"`
	Histogram  map[int]int   `yaml:"histogram"`
	Degenerate bool          `yaml:"degenerate,omitempty"`
}

// ReportInputs echoes the request.
type ReportInputs struct {
	Reference string `yaml:"reference"`
	Variable  string `yaml:"variable"`
	Output    string `yaml:"output"`
	Invert    bool   `yaml:"invert"`
}

// ReportRaster describes the raster environment used.
type ReportRaster struct {
	CellSize float64       `yaml:"cell_size"`
	Cols     int           `yaml:"cols"`
	Rows     int           `yaml:"rows"`
	Extent   raster.Extent `yaml:"extent"`
}

// ReportClass is one remap interval.
type ReportClass struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
	Class int     `yaml:"class"`
}

// NewReport builds the report of a run.
func NewReport(req Request, res *Result) *Report {
	r := &Report{
		RunID:     res.RunID,
		CreatedAt: time.Now().UTC(),
		Inputs: ReportInputs{
			Reference: layer.Redact(req.Reference),
			Variable:  layer.Redact(req.Variable),
			Output:    req.Output,
			Invert:    req.Invert,
		},
		Raster: ReportRaster{
			CellSize: res.Geometry.CellSize,
			Cols:     res.Geometry.Cols,
			Rows:     res.Geometry.Rows,
			Extent:   res.Geometry.Extent,
		},
		Zonal:     res.Zonal,
		Distance:  res.Distance,
		Histogram: res.Histogram,
	}
	if res.Table != nil {
		r.Degenerate = res.Table.Degenerate()
		for _, iv := range res.Table.Intervals {
			r.Remap = append(r.Remap, ReportClass{Lower: iv.Lower, Upper: iv.Upper, Class: iv.Class})
		}
	}
	return r
}

// WriteReport marshals r to path.
func WriteReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "suitability: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "suitability: write report %s", path)
	}
	return nil
}
