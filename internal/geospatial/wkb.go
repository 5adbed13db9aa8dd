package geospatial

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
)

// EncodeShape converts a shapefile geometry to WKB. Polygons become
// MultiPolygons and polylines MultiLineStrings so every row of a layer has
// the same geometry type. Unsupported or empty shapes return nil, nil.
func EncodeShape(shape shp.Shape) ([]byte, error) {
	var g geom.T

	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		if mls := partsToMultiLineString(s.Parts, s.Points); mls != nil {
			g = mls
		}
	case *shp.Polygon:
		if mp := partsToMultiPolygon(s.Parts, s.Points); mp != nil {
			g = mp
		}
	}
	if g == nil {
		return nil, nil
	}
	return marshalWKB(g)
}

// EncodeGeometry converts a decoded GeoJSON geometry to WKB with the same
// promotion rules as EncodeShape: Polygons become MultiPolygons and
// LineStrings MultiLineStrings. Empty geometries return nil, nil.
func EncodeGeometry(g geom.T) ([]byte, error) {
	if g == nil || g.Empty() {
		return nil, nil
	}

	switch t := g.(type) {
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "geo: promote polygon")
		}
		g = mp
	case *geom.LineString:
		mls := geom.NewMultiLineString(t.Layout())
		if err := mls.Push(t); err != nil {
			return nil, eris.Wrap(err, "geo: promote linestring")
		}
		g = mls
	}
	return marshalWKB(g)
}

func marshalWKB(g geom.T) ([]byte, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode WKB")
	}
	return data, nil
}

// partRange returns the point index range of part i.
func partRange(parts []int32, points []shp.Point, i int) (int32, int32) {
	end := int32(len(points))
	if i+1 < len(parts) {
		end = parts[i+1]
	}
	return parts[i], end
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func partsToMultiLineString(parts []int32, points []shp.Point) *geom.MultiLineString {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY)
	for i := range parts {
		start, end := partRange(parts, points, i)
		if start >= end || end > int32(len(points)) {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geo: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// partsToMultiPolygon turns each ring into its own polygon. Shapefiles do
// not group holes with their shells, so rings are not nested.
func partsToMultiPolygon(parts []int32, points []shp.Point) *geom.MultiPolygon {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for i := range parts {
		start, end := partRange(parts, points, i)
		if end-start < 4 || end > int32(len(points)) {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatPoints(points[start:end]))); err != nil {
			zap.L().Debug("geo: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
