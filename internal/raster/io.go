package raster

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff"
)

// Format is an output raster encoding.
type Format string

const (
	FormatASCII Format = "asc"
	FormatTIFF  Format = "tiff"
)

// FormatFor picks the encoding from a destination path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc", ".txt":
		return FormatASCII, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	}
	return "", eris.Errorf("raster: unsupported output format %q (want .asc or .tif)", filepath.Ext(path))
}

// SaveOptions configures Save.
type SaveOptions struct {
	// PRJ is written to a .prj sidecar when non-empty.
	PRJ string
}

// Save writes g to path in the format implied by its extension, together with
// its sidecars (.tfw for TIFF, .prj when known). The raster is written to a
// temporary file and renamed into place, so a failed save leaves no raster at
// path.
func Save(path string, g *Grid, opts SaveOptions) (err error) {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "raster: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	var sidecars []string
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
			for _, s := range sidecars {
				_ = os.Remove(s)
			}
		}
	}()

	bw := bufio.NewWriter(tmp)
	switch format {
	case FormatASCII:
		err = WriteASCII(bw, g)
	case FormatTIFF:
		err = WriteTIFF(bw, g)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return eris.Wrapf(err, "raster: write %s", path)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if format == FormatTIFF {
		wld := base + ".tfw"
		sidecars = append(sidecars, wld)
		if err = os.WriteFile(wld, []byte(WorldFile(g.Geometry)), 0o644); err != nil {
			return eris.Wrapf(err, "raster: write world file %s", wld)
		}
	}
	if opts.PRJ != "" {
		prj := base + ".prj"
		sidecars = append(sidecars, prj)
		if err = os.WriteFile(prj, []byte(opts.PRJ+"\n"), 0o644); err != nil {
			return eris.Wrapf(err, "raster: write projection %s", prj)
		}
	}

	if err = os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "raster: move %s into place", path)
	}
	return nil
}

// WriteASCII encodes g as an ESRI ASCII grid.
func WriteASCII(w io.Writer, g *Grid) error {
	header := fmt.Sprintf("ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\nNODATA_value %s\n",
		g.Cols, g.Rows,
		formatValue(g.Extent.MinX), formatValue(g.Extent.MinY),
		formatValue(g.CellSize), formatValue(g.NoData),
	)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	var sb strings.Builder
	for row := 0; row < g.Rows; row++ {
		sb.Reset()
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				sb.WriteByte(' ')
			}
			v := g.At(col, row)
			if math.IsNaN(v) {
				v = g.NoData
			}
			sb.WriteString(formatValue(v))
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// ReadASCII decodes an ESRI ASCII grid. Both corner and centre registration
// are accepted.
func ReadASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{"nodata_value": DefaultNoData}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: ascii header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: ascii header %s", key)
		}
		header[key] = v
	}

	cols, rows, cs := int(header["ncols"]), int(header["nrows"]), header["cellsize"]
	if cols <= 0 || rows <= 0 || cs <= 0 {
		return nil, eris.Errorf("raster: ascii header missing ncols/nrows/cellsize")
	}

	minX, minY := header["xllcorner"], header["yllcorner"]
	if x, ok := header["xllcenter"]; ok {
		minX = x - cs/2
	}
	if y, ok := header["yllcenter"]; ok {
		minY = y - cs/2
	}

	geo := Geometry{
		Extent:   Extent{MinX: minX, MinY: minY, MaxX: minX + float64(cols)*cs, MaxY: minY + float64(rows)*cs},
		CellSize: cs,
		Cols:     cols,
		Rows:     rows,
	}
	g := &Grid{Geometry: geo, NoData: header["nodata_value"], Data: make([]float64, 0, geo.Len())}

	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		g.Data = append(g.Data, v)
	}
	for len(g.Data) < geo.Len() && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: ascii cell %d", len(g.Data))
		}
		g.Data = append(g.Data, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: read ascii grid")
	}
	if len(g.Data) != geo.Len() {
		return nil, eris.Errorf("raster: ascii grid has %d cells, want %d", len(g.Data), geo.Len())
	}
	return g, nil
}

// WriteTIFF encodes g as a deflate-compressed 8-bit grayscale TIFF. Values
// are rounded and clamped to 0..255 and NoData is written as 0, so it suits
// class rasters.
func WriteTIFF(w io.Writer, g *Grid) error {
	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v := g.At(col, row)
			if g.IsNoData(v) {
				continue
			}
			img.Pix[row*img.Stride+col] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// WorldFile returns the six-line world file georeferencing a raster.
func WorldFile(g Geometry) string {
	x, y := g.Center(0, 0)
	return strings.Join([]string{
		formatValue(g.CellSize),
		"0",
		"0",
		formatValue(-g.CellSize),
		formatValue(x),
		formatValue(y),
	}, "\n") + "\n"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
