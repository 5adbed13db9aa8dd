package geospatial

import (
	"context"
	"encoding/json"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ParseGeoJSON reads a GeoJSON FeatureCollection. Columns are the union of
// the feature property names, sorted, lowercased and renamed like shapefile
// fields. A property whose non-null values are all numbers becomes a float
// column; anything else is stored as text. Features with a null or empty
// geometry are skipped.
func ParseGeoJSON(ctx context.Context, path string, rename map[string]string) (*LayerData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read geojson %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, eris.Wrapf(err, "geo: parse geojson %s", path)
	}

	// number marks properties holding at least one number, text those
	// holding any other non-null value.
	number := make(map[string]bool)
	text := make(map[string]bool)
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			switch v.(type) {
			case nil:
			case float64:
				number[k] = true
			default:
				text[k] = true
			}
			if _, ok := number[k]; !ok {
				number[k] = false
			}
		}
	}

	seen := map[string]bool{LayerGeomColumn: true}
	keys := slices.Sorted(maps.Keys(number))
	fields := make([]LayerField, len(keys))
	for i, k := range keys {
		lf, err := layerField(seen, i, k, rename)
		if err != nil {
			return nil, err
		}
		lf.Numeric = number[k] && !text[k]
		fields[i] = lf
	}

	records := make([]layerRecord, len(fc.Features))
	for n, f := range fc.Features {
		attrs := make([]any, len(keys))
		for i, k := range keys {
			attrs[i] = propertyValue(f.Properties[k], fields[i].Numeric)
		}
		records[n] = layerRecord{geometry: f.Geometry, attrs: attrs}
	}

	rows, err := encodeRecords(ctx, records)
	if err != nil {
		return nil, err
	}

	if skipped := len(records) - len(rows); skipped > 0 {
		zap.L().Warn("geo: skipped layer records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return &LayerData{Fields: fields, Rows: rows}, nil
}

// propertyValue converts a decoded JSON property to its column value.
func propertyValue(v any, numeric bool) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		if numeric {
			return t
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(data)
	}
}
