package geospatial

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// defaultPointProps is stored when a point is created without attributes.
var defaultPointProps = json.RawMessage(`{"source":"form"}`)

// NewPoint is the body of POST /points. Points are never updated in place;
// their buffer polygon is derived on read by the point_buffers view.
type NewPoint struct {
	Lon     *float64        `json:"lon"`
	Lat     *float64        `json:"lat"`
	BufferM *float64        `json:"buffer_m,omitempty"`
	UserID  *string         `json:"user_id,omitempty"`
	Props   json.RawMessage `json:"props,omitempty"`
}

// Validate checks the request: lon and lat are required and in range,
// buffer_m must be positive when given, props must be a JSON object.
func (p NewPoint) Validate() error {
	if p.Lon == nil || p.Lat == nil {
		return InvalidInputf("lon and lat are required")
	}
	if *p.Lon < -180 || *p.Lon > 180 {
		return InvalidInputf("lon must be within [-180, 180], got %v", *p.Lon)
	}
	if *p.Lat < -90 || *p.Lat > 90 {
		return InvalidInputf("lat must be within [-90, 90], got %v", *p.Lat)
	}
	if p.BufferM != nil && *p.BufferM <= 0 {
		return InvalidInputf("buffer_m must be positive, got %v", *p.BufferM)
	}
	if len(p.Props) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(p.Props, &obj); err != nil || obj == nil {
			return InvalidInputf("props must be a JSON object")
		}
	}
	return nil
}

// EncodePoint returns the EWKB encoding of a lon/lat point in SRID 4326.
func EncodePoint(lon, lat float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// ZonalStats summarizes a numeric attribute over the geometries that
// intersect a zone. With no matches Count is 0 and the rest are null.
type ZonalStats struct {
	Count int64    `json:"count"`
	Avg   *float64 `json:"avg"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

// Layers names the tables behind each dataset.
type Layers struct {
	Points       string
	PointBuffers string
	BigPoints    string
	Shadows      string
	ShadowValue  string
	Buildings    string
	BuildingRef  string
}

// Tables returns the distinct geometry-bearing tables, in a stable order.
func (l Layers) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range []string{l.PointBuffers, l.Points, l.BigPoints, l.Shadows, l.Buildings} {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether table is one of the configured layers.
func (l Layers) Has(table string) bool {
	for _, t := range l.Tables() {
		if t == table {
			return true
		}
	}
	return false
}
