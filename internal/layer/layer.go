// Package layer reads vector feature layers (shapefiles, zipped shapefiles,
// GeoJSON and PostGIS tables) into go-geom geometries.
package layer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one geometry with its attribute values.
type Feature struct {
	ID         int
	Geometry   geom.T
	Attributes map[string]string
}

// Layer is an ordered set of features read from one source.
type Layer struct {
	Name     string
	Source   string
	Features []Feature
	// PRJ holds the WKT from a .prj sidecar, when the source had one.
	PRJ string
}

// Len returns the number of features.
func (l *Layer) Len() int {
	return len(l.Features)
}

// Bounds returns the combined XY bounding box of every feature geometry.
func (l *Layer) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range l.Features {
		if f.Geometry == nil || f.Geometry.Empty() {
			continue
		}
		b.Extend(f.Geometry)
	}
	return b
}

// Options configures how sources are opened.
type Options struct {
	// TempDir receives extracted archives. Defaults to os.TempDir().
	TempDir string
	// Connect opens a PostGIS connection for postgres:// sources.
	Connect Connector
}

// Kind identifies the reader used for a source.
type Kind string

const (
	KindShapefile Kind = "shapefile"
	KindZip       Kind = "zip"
	KindGeoJSON   Kind = "geojson"
	KindPostGIS   Kind = "postgis"
)

// Detect classifies a source by scheme or file extension.
func Detect(source string) (Kind, error) {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostGIS, nil
	case strings.HasSuffix(lower, ".shp"):
		return KindShapefile, nil
	case strings.HasSuffix(lower, ".zip"):
		return KindZip, nil
	case strings.HasSuffix(lower, ".geojson"), strings.HasSuffix(lower, ".json"):
		return KindGeoJSON, nil
	}
	return "", eris.Errorf("layer: unsupported source %q", source)
}

// Open reads every feature from source. Empty layers are an error.
func Open(ctx context.Context, source string, opts Options) (*Layer, error) {
	kind, err := Detect(source)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "layer"), zap.String("kind", string(kind)))

	var l *Layer
	switch kind {
	case KindShapefile:
		l, err = ReadShapefile(source)
	case KindZip:
		l, err = readZippedShapefile(source, opts.TempDir)
	case KindGeoJSON:
		l, err = ReadGeoJSON(source)
	case KindPostGIS:
		l, err = openPostGIS(ctx, source, opts.Connect)
	}
	if err != nil {
		return nil, err
	}

	if l.Len() == 0 {
		return nil, eris.Errorf("layer: %s contains no features", Redact(source))
	}

	log.Debug("layer loaded",
		zap.String("name", l.Name),
		zap.Int("features", l.Len()),
	)
	return l, nil
}

// readPRJ returns the contents of the .prj sidecar next to path, if any.
func readPRJ(path string) string {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
