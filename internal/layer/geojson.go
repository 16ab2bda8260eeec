package layer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSON reads a GeoJSON FeatureCollection file. Features without a
// geometry are skipped; property values are stringified.
func ReadGeoJSON(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: read %s", path)
	}
	return decodeGeoJSON(data, path)
}

func decodeGeoJSON(data []byte, source string) (*Layer, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "layer: decode geojson %s", source)
	}

	l := &Layer{Name: layerName(source), Source: source}
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				attrs[k] = ""
				continue
			}
			attrs[k] = fmt.Sprint(v)
		}
		l.Features = append(l.Features, Feature{ID: i, Geometry: f.Geometry, Attributes: attrs})
	}
	return l, nil
}
