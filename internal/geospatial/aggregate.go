package geospatial

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/emsv/geovisor/internal/db"
)

// ValidateZone checks that raw is a non-empty GeoJSON Polygon or
// MultiPolygon geometry.
func ValidateZone(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return InvalidInputf("geometry is required")
	}

	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return InvalidInputf("geometry is not valid GeoJSON: %v", err)
	}

	switch z := g.(type) {
	case *geom.Polygon:
		return validatePolygon(z)
	case *geom.MultiPolygon:
		if z.NumPolygons() == 0 {
			return InvalidInputf("geometry multipolygon is empty")
		}
		for i := 0; i < z.NumPolygons(); i++ {
			if err := validatePolygon(z.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return InvalidInputf("geometry must be a Polygon or MultiPolygon, got %T", g)
	}
}

// validatePolygon requires every ring to be closed with at least 4 positions.
func validatePolygon(p *geom.Polygon) error {
	if p.NumLinearRings() == 0 {
		return InvalidInputf("geometry polygon is empty")
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		n := ring.NumCoords()
		if n < 4 {
			return InvalidInputf("geometry ring %d has %d positions, need at least 4", i, n)
		}
		if !ring.Coord(0).Equal(ring.Layout(), ring.Coord(n-1)) {
			return InvalidInputf("geometry ring %d is not closed", i)
		}
	}
	return nil
}

// Zonal computes count, average, minimum and maximum of valueCol over the
// rows of table whose geometry intersects zone. Zero matches is a valid
// answer: Count 0 and null statistics.
func Zonal(ctx context.Context, pool db.Pool, table string, expr GeomExpr, valueCol string, zone json.RawMessage) (ZonalStats, error) {
	if err := ValidateZone(zone); err != nil {
		return ZonalStats{}, err
	}
	return zonal(ctx, pool, table, expr, valueCol, zone)
}

// zonal runs the statistics query for a zone that already passed ValidateZone.
func zonal(ctx context.Context, pool db.Pool, table string, expr GeomExpr, valueCol string, zone json.RawMessage) (ZonalStats, error) {
	p := &Params{}
	zoneSQL := fmt.Sprintf("ST_SetSRID(ST_GeomFromGeoJSON(%s::text), %d)", p.Add(string(zone)), SRID)
	val := "s." + pgx.Identifier{valueCol}.Sanitize()

	sql := fmt.Sprintf(`
		WITH zone AS (
			SELECT %s AS g
		)
		SELECT
			COUNT(*) AS n_features,
			AVG(%[2]s)::float8 AS avg_value,
			MIN(%[2]s)::float8 AS min_value,
			MAX(%[2]s)::float8 AS max_value
		FROM %[3]s s, zone z
		WHERE %[4]s
	`, zoneSQL, val, pgx.Identifier{table}.Sanitize(), Intersects(expr.SQL("s"), "z.g"))

	var st ZonalStats
	err := pool.QueryRow(ctx, sql, p.Args()...).Scan(&st.Count, &st.Avg, &st.Min, &st.Max)
	if err != nil {
		return ZonalStats{}, eris.Wrap(err, "geo: zonal statistics")
	}
	return st, nil
}
