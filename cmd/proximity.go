package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/proxsuit/internal/config"
	"github.com/sells-group/proxsuit/internal/layer"
	"github.com/sells-group/proxsuit/internal/suitability"
)

var (
	proxInvert      bool
	proxCellSize    float64
	proxExtent      string
	proxMask        string
	proxWorkers     int
	proxDistanceOut string
	proxReport      string
)

var proximityCmd = &cobra.Command{
	Use:   "proximity <reference> <variable> <output> [invert]",
	Short: "Build a proximity suitability raster",
	Long: `Computes the Euclidean distance from every cell to the nearest variable
feature, measures the mean and standard deviation of those distances under the
reference layer, and reclassifies the distance raster into classes 1..9 with
breaks a quarter standard deviation apart. Near cells score 9 unless inverted.

Layers may be shapefiles, zipped shapefiles, GeoJSON files or
postgres://...?layer=schema.table&geom=column URIs. The output is written as an
ESRI ASCII grid (.asc) or GeoTIFF (.tif).`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := proximityRequest(cmd, args)
		if err != nil {
			return err
		}
		opts, err := proximityOptions(cmd, cfg)
		if err != nil {
			return err
		}

		res, err := suitability.New(opts).Run(ctx, req)
		if err != nil {
			if suitability.IsGeoprocessing(err) {
				return eris.Wrap(err, "proximity: geoprocessing failed")
			}
			return eris.Wrap(err, "proximity")
		}

		printSummary(cmd.OutOrStdout(), res)
		return nil
	},
}

// proximityRequest maps arguments onto a request. The optional fourth
// argument is a boolean invert flag and takes precedence over --invert.
func proximityRequest(cmd *cobra.Command, args []string) (suitability.Request, error) {
	req := suitability.Request{
		Reference:      args[0],
		Variable:       args[1],
		Output:         args[2],
		Invert:         proxInvert,
		DistanceOutput: proxDistanceOut,
		ReportPath:     proxReport,
	}
	if len(args) == 4 {
		inv, err := strconv.ParseBool(args[3])
		if err != nil {
			return req, eris.Wrapf(err, "proximity: invert argument %q", args[3])
		}
		req.Invert = inv
	}
	if req.ReportPath == "" && cfg != nil {
		req.ReportPath = cfg.Report.Path
	}
	return req, req.Validate()
}

// proximityOptions merges flags over configuration. Only flags set on the
// command line override config values.
func proximityOptions(cmd *cobra.Command, c *config.Config) (suitability.Options, error) {
	var rc config.RasterConfig
	var opts suitability.Options
	if c != nil {
		rc = c.Raster
		opts.ScratchDir = c.Scratch.Dir
		opts.Layers = layer.Options{TempDir: c.Layer.TempDir}
	}

	flags := cmd.Flags()
	if flags.Changed("cell-size") {
		rc.CellSize = proxCellSize
	}
	if flags.Changed("extent") {
		rc.Extent = proxExtent
	}
	if flags.Changed("mask") {
		rc.Mask = proxMask
	}
	if flags.Changed("workers") {
		rc.Workers = proxWorkers
	}
	if rc.CellSize < 0 {
		return opts, eris.Errorf("proximity: cell size must be positive, got %v", rc.CellSize)
	}

	extent, err := config.ParseExtent(rc.Extent)
	if err != nil {
		return opts, err
	}

	opts.Env = suitability.Environment{
		CellSize: rc.CellSize,
		Extent:   extent,
		Mask:     rc.Mask,
		Workers:  rc.Workers,
	}
	opts.Layers.Connect = layer.PoolConnector
	opts.Progress = suitability.NewLogProgressor(zap.L())
	return opts, nil
}

func printSummary(w io.Writer, res *suitability.Result) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Output:      %s\n", res.Output)
	p.Fprintf(w, "Grid:        %d x %d cells of %.4f\n", res.Geometry.Cols, res.Geometry.Rows, res.Geometry.CellSize)
	p.Fprintf(w, "Zonal:       mean %.4f, std %.4f over %d cells\n", res.Zonal.Mean, res.Zonal.StdDev, res.Zonal.Count)
	p.Fprintf(w, "Max:         %.4f\n", res.Distance.Max)
	p.Fprintf(w, "Remap:       %s\n", res.Table)

	classes := make([]int, 0, len(res.Histogram))
	for c := range res.Histogram {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	for _, c := range classes {
		p.Fprintf(w, "  class %d: %d cells\n", c, res.Histogram[c])
	}
	fmt.Fprintf(w, "Elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
}

func bindProximityFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&proxInvert, "invert", false, "score far cells high (class c becomes 10-c)")
	f.Float64Var(&proxCellSize, "cell-size", 0, "cell size in map units (default: shorter extent side / 250)")
	f.StringVar(&proxExtent, "extent", "", "analysis extent xmin,ymin,xmax,ymax (default: union of both layers)")
	f.StringVar(&proxMask, "mask", "", "analysis mask layer; cells outside it are NoData")
	f.IntVar(&proxWorkers, "workers", 0, "distance transform workers (default: GOMAXPROCS)")
	f.StringVar(&proxDistanceOut, "distance-out", "", "also write the distance raster (.asc)")
	f.StringVar(&proxReport, "report", "", "write a YAML run report")
}

func init() {
	bindProximityFlags(proximityCmd)
	rootCmd.AddCommand(proximityCmd)
}
