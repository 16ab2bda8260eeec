package layer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefile reads every record of a shapefile. Null and unsupported
// shapes are skipped.
func ReadShapefile(path string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	l := &Layer{Name: layerName(path), Source: path, PRJ: readPRJ(path)}
	var skipped int

	for reader.Next() {
		n, shape := reader.Shape()

		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			attrs[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		l.Features = append(l.Features, Feature{ID: n, Geometry: g, Attributes: attrs})
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return l, nil
}

// shapeToGeom converts a go-shp shape to an XY go-geom geometry. Z and M
// values are dropped. Returns nil for null or unsupported shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})

	case *shp.MultiPoint:
		return multiPoint(s.Points)
	case *shp.MultiPointZ:
		return multiPoint(s.Points)
	case *shp.MultiPointM:
		return multiPoint(s.Points)

	case *shp.PolyLine:
		return multiLineString(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return multiLineString(s.Parts, s.Points)
	case *shp.PolyLineM:
		return multiLineString(s.Parts, s.Points)

	case *shp.Polygon:
		return multiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return multiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return multiPolygon(s.Parts, s.Points)
	}
	return nil
}

func multiPoint(points []shp.Point) geom.T {
	if len(points) == 0 {
		return nil
	}
	return geom.NewMultiPointFlat(geom.XY, flatPoints(points))
}

func multiLineString(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i, part := range splitParts(parts, points) {
		if len(part) < 2 {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(part))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("layer: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// multiPolygon groups shapefile rings into polygons. Clockwise rings start a
// new polygon; counter-clockwise rings are holes of the polygon before them.
func multiPolygon(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("layer: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, part := range splitParts(parts, points) {
		if len(part) < 3 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flatPoints(part))

		if signedArea(part) <= 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("layer: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func splitParts(parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
