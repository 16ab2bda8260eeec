package layer

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// writePolygonShapefile writes one square parcel with a square hole and a
// second solid parcel.
func writePolygonShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "parcels.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 16)}))

	donut := shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}, // clockwise shell
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},     // counter-clockwise hole
	})
	w.Write((*shp.Polygon)(donut))
	require.NoError(t, w.WriteAttribute(0, 0, "donut"))

	solid := shp.NewPolyLine([][]shp.Point{
		{{X: 20, Y: 20}, {X: 20, Y: 25}, {X: 25, Y: 25}, {X: 25, Y: 20}, {X: 20, Y: 20}},
	})
	w.Write((*shp.Polygon)(solid))
	require.NoError(t, w.WriteAttribute(1, 0, "solid"))

	w.Close()
	return path
}

func TestReadShapefile_Polygons(t *testing.T) {
	dir := t.TempDir()
	path := writePolygonShapefile(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parcels.prj"), []byte("PROJCS[\"test\"]\n"), 0o644))

	l, err := ReadShapefile(path)
	require.NoError(t, err)

	assert.Equal(t, "parcels", l.Name)
	assert.Equal(t, `PROJCS["test"]`, l.PRJ)
	require.Equal(t, 2, l.Len())

	assert.Equal(t, "donut", l.Features[0].Attributes["NAME"])
	mp, ok := l.Features[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings(), "hole should attach to its shell")

	b := l.Bounds()
	assert.Equal(t, 0.0, b.Min(0))
	assert.Equal(t, 0.0, b.Min(1))
	assert.Equal(t, 25.0, b.Max(0))
	assert.Equal(t, 25.0, b.Max(1))
}

func TestReadShapefile_Points(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parks.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.NumberField("ID", 8)}))
	for i, p := range []shp.Point{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}} {
		p := p
		w.Write(&p)
		require.NoError(t, w.WriteAttribute(i, 0, i+1))
	}
	w.Close()

	l, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Equal(t, 3, l.Len())

	pt, ok := l.Features[2].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{5, 6}, pt.FlatCoords())
	assert.Equal(t, "3", l.Features[2].Attributes["ID"])
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer: open shapefile")
}

func TestShapeToGeom_PolyLine(t *testing.T) {
	pl := &shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 2},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 1, Y: 1},
			{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 7, Y: 5},
		},
	}
	g := shapeToGeom(pl)
	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings())
	assert.Equal(t, 3, mls.LineString(1).NumCoords())
}

func TestShapeToGeom_Null(t *testing.T) {
	assert.Nil(t, shapeToGeom(nil))
	assert.Nil(t, shapeToGeom(&shp.Null{}))
	assert.Nil(t, shapeToGeom(&shp.PolyLine{}))
}

func TestSignedArea(t *testing.T) {
	ccw := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}
	assert.InDelta(t, 1.0, signedArea(ccw), 1e-12)

	cw := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	assert.InDelta(t, -1.0, signedArea(cw), 1e-12)
}

func TestOpen_ZippedShapefile(t *testing.T) {
	dir := t.TempDir()
	writePolygonShapefile(t, dir)

	zipPath := filepath.Join(t.TempDir(), "parcels.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		src, err := os.Open(filepath.Join(dir, "parcels"+ext))
		require.NoError(t, err)
		dst, err := zw.Create("nested/parcels" + ext)
		require.NoError(t, err)
		_, err = io.Copy(dst, src)
		require.NoError(t, err)
		require.NoError(t, src.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	l, err := Open(context.Background(), zipPath, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, zipPath, l.Source)
}

func TestOpen_ZipWithoutShapefile(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "empty.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	w, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nothing here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	_, err = Open(context.Background(), zipPath, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file found")
}

func TestOpen_GeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parks.geojson")
	doc := `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Central", "acres": 12.5},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "Pocket"},
     "geometry": {"type": "Point", "coordinates": [10, 10]}},
    {"type": "Feature", "properties": {"name": "Unmapped"}, "geometry": null}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	l, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.Equal(t, "Central", l.Features[0].Attributes["name"])
	assert.Equal(t, "12.5", l.Features[0].Attributes["acres"])
	_, ok := l.Features[1].Geometry.(*geom.Point)
	assert.True(t, ok)
}

func TestOpen_EmptyGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	_, err := Open(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no features")
}

func TestDetect(t *testing.T) {
	cases := map[string]Kind{
		"parcels.shp":                             KindShapefile,
		"/data/PARCELS.SHP":                       KindShapefile,
		"parks.zip":                               KindZip,
		"parks.geojson":                           KindGeoJSON,
		"parks.json":                              KindGeoJSON,
		"postgres://u@h/db?layer=public.parks":    KindPostGIS,
		"postgresql://u@h/db?layer=parks&geom=wk": KindPostGIS,
	}
	for src, want := range cases {
		got, err := Detect(src)
		require.NoError(t, err, src)
		assert.Equal(t, want, got, src)
	}

	_, err := Detect("parks.gpkg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source")
}

func TestParsePostGIS(t *testing.T) {
	src, err := ParsePostGIS("postgres://gis:secret@db:5432/city?sslmode=disable&layer=planning.parks&geom=shape")
	require.NoError(t, err)

	assert.Equal(t, "planning", src.Schema)
	assert.Equal(t, "parks", src.Table)
	assert.Equal(t, "shape", src.Column)
	assert.Equal(t, "postgres://gis:secret@db:5432/city?sslmode=disable", src.DSN)
	assert.Equal(t, `SELECT ST_AsBinary("shape") FROM "planning"."parks" WHERE "shape" IS NOT NULL`, src.Query())

	src, err = ParsePostGIS("postgres://db/city?layer=parks")
	require.NoError(t, err)
	assert.Equal(t, "public", src.Schema)
	assert.Equal(t, "geom", src.Column)
}

func TestParsePostGIS_Invalid(t *testing.T) {
	_, err := ParsePostGIS("postgres://db/city")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer=")

	_, err = ParsePostGIS("postgres://db/city?layer=parks;drop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identifier")
}

func TestReadPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pt, err := wkb.Marshal(geom.NewPointFlat(geom.XY, []float64{3, 4}), wkb.NDR)
	require.NoError(t, err)
	line, err := wkb.Marshal(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 5, 5}), wkb.NDR)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT ST_AsBinary\("geom"\) FROM "public"\."parks"`).
		WillReturnRows(pgxmock.NewRows([]string{"st_asbinary"}).
			AddRow(pt).
			AddRow([]byte{0x01, 0x02}).
			AddRow(line))

	src, err := ParsePostGIS("postgres://gis:secret@db/city?layer=parks")
	require.NoError(t, err)

	l, err := ReadPostGIS(context.Background(), mock, src)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.Equal(t, "public.parks", l.Name)
	assert.NotContains(t, l.Source, "secret")
	_, ok := l.Features[1].Geometry.(*geom.LineString)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_PostGISUsesConnector(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pt, err := wkb.Marshal(geom.NewPointFlat(geom.XY, []float64{1, 1}), wkb.NDR)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT ST_AsBinary`).
		WillReturnRows(pgxmock.NewRows([]string{"st_asbinary"}).AddRow(pt))

	var gotDSN string
	released := false
	opts := Options{Connect: func(_ context.Context, dsn string) (Querier, func(), error) {
		gotDSN = dsn
		return mock, func() { released = true }, nil
	}}

	l, err := Open(context.Background(), "postgres://db/city?layer=planning.parks", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "postgres://db/city", gotDSN)
	assert.True(t, released)
}

func TestReadPostGIS_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT ST_AsBinary`).WillReturnError(assert.AnError)

	src, err := ParsePostGIS("postgres://db/city?layer=parks")
	require.NoError(t, err)

	_, err = ReadPostGIS(context.Background(), mock, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer: query public.parks")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://user:xxxxx@db:5432/city?layer=public.parks",
		Redact("postgres://user:s3cret@db:5432/city?layer=public.parks"))
	assert.Equal(t, "postgres://db/city?layer=parks", Redact("postgres://db/city?layer=parks"))
	assert.Equal(t, "/data/parks.shp", Redact("/data/parks.shp"))
}
