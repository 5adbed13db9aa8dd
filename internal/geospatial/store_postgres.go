package geospatial

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/emsv/geovisor/internal/db"
)

var _ Store = (*PostgresStore)(nil)

// propsFunc renders the jsonb expression holding a row's properties. t is
// the table alias and expr the table's resolved geometry.
type propsFunc func(p *Params, expr GeomExpr) string

// allColumns exposes every column of t except the geometry source column.
func allColumns(p *Params, expr GeomExpr) string {
	return fmt.Sprintf("to_jsonb(t) - %s::text", p.Add(expr.Column))
}

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool           db.Pool
	resolver       *Resolver
	layers         Layers
	defaultBufferM float64
}

// NewPostgresStore creates a new PostgresStore. defaultBufferM is used for
// points inserted without a buffer radius.
func NewPostgresStore(pool db.Pool, resolver *Resolver, layers Layers, defaultBufferM float64) *PostgresStore {
	return &PostgresStore{
		pool:           pool,
		resolver:       resolver,
		layers:         layers,
		defaultBufferM: defaultBufferM,
	}
}

// Buffers implements Store.
func (s *PostgresStore) Buffers(ctx context.Context, q SpatialQuery) (FeatureCollection, error) {
	return s.features(ctx, s.layers.PointBuffers, q, func(_ *Params, _ GeomExpr) string {
		return `jsonb_build_object('id', t.id, 'user_id', t.user_id, 'buffer_m', t.buffer_m::float8)`
	})
}

// InsertPoint implements Store. The id is computed and the row inserted in
// one transaction holding a lock that serializes concurrent inserts.
func (s *PostgresStore) InsertPoint(ctx context.Context, p NewPoint) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	bufferM := s.defaultBufferM
	if p.BufferM != nil {
		bufferM = *p.BufferM
	}
	props := defaultPointProps
	if len(p.Props) > 0 {
		props = p.Props
	}
	wkb, err := EncodePoint(*p.Lon, *p.Lat)
	if err != nil {
		return 0, err
	}

	table := pgx.Identifier{s.layers.Points}.Sanitize()
	insert := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, geom, buffer_m, props)
		VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5::jsonb)
	`, table)

	var id int64
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "LOCK TABLE "+table+" IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return eris.Wrap(err, "geo: lock points")
		}
		if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM "+table).Scan(&id); err != nil {
			return eris.Wrap(err, "geo: next point id")
		}
		if _, err := tx.Exec(ctx, insert, id, p.UserID, wkb, bufferM, string(props)); err != nil {
			return eris.Wrap(err, "geo: insert point")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CountPoints implements Store.
func (s *PostgresStore) CountPoints(ctx context.Context, bbox *orb.Bound) (int64, error) {
	expr, err := s.resolver.Resolve(ctx, s.layers.BigPoints)
	if err != nil {
		return 0, err
	}

	p := &Params{}
	q := SpatialQuery{BBox: bbox}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s t %s",
		pgx.Identifier{s.layers.BigPoints}.Sanitize(), q.Where(p, expr.SQL("t")))

	var n int64
	if err := s.pool.QueryRow(ctx, sql, p.Args()...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "geo: count points")
	}
	return n, nil
}

// PointFeatures implements Store.
func (s *PostgresStore) PointFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error) {
	return s.features(ctx, s.layers.BigPoints, q, allColumns)
}

// ShadowFeatures implements Store.
func (s *PostgresStore) ShadowFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error) {
	col := s.layers.ShadowValue
	return s.features(ctx, s.layers.Shadows, q, func(p *Params, _ GeomExpr) string {
		return fmt.Sprintf("jsonb_build_object(%s::text, t.%s::float8)", p.Add(col), pgx.Identifier{col}.Sanitize())
	})
}

// ShadowZonal implements Store. The zone is validated once, before the
// layer is resolved.
func (s *PostgresStore) ShadowZonal(ctx context.Context, zone json.RawMessage) (ZonalStats, error) {
	if err := ValidateZone(zone); err != nil {
		return ZonalStats{}, err
	}
	expr, err := s.resolver.Resolve(ctx, s.layers.Shadows)
	if err != nil {
		return ZonalStats{}, err
	}
	return zonal(ctx, s.pool, s.layers.Shadows, expr, s.layers.ShadowValue, zone)
}

// BuildingFeatures implements Store.
func (s *PostgresStore) BuildingFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error) {
	return s.features(ctx, s.layers.Buildings, q, allColumns)
}

// BuildingByRef implements Store.
func (s *PostgresStore) BuildingByRef(ctx context.Context, ref string) (Feature, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Feature{}, InvalidInputf("ref is required")
	}
	expr, err := s.resolver.Resolve(ctx, s.layers.Buildings)
	if err != nil {
		return Feature{}, err
	}

	p := &Params{}
	sql := fmt.Sprintf(`
		SELECT ST_AsGeoJSON(%s) AS gjson, %s AS props
		FROM %s t
		WHERE %s
		LIMIT 1
	`, expr.SQL("t"), allColumns(p, expr), pgx.Identifier{s.layers.Buildings}.Sanitize(), s.refMatch(p, ref))

	var gjson *string
	var raw []byte
	err = s.pool.QueryRow(ctx, sql, p.Args()...).Scan(&gjson, &raw)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return Feature{}, NotFoundf("reference not found: %s", ref)
		}
		return Feature{}, eris.Wrap(err, "geo: building by reference")
	}

	props, err := DecodeProperties(raw)
	if err != nil {
		return Feature{}, err
	}
	return NewFeature(geometryOrNull(gjson), props), nil
}

// BuildingGeometry implements Store.
func (s *PostgresStore) BuildingGeometry(ctx context.Context, ref string) (*Feature, error) {
	expr, err := s.resolver.Resolve(ctx, s.layers.Buildings)
	if err != nil {
		return nil, err
	}

	p := &Params{}
	sql := fmt.Sprintf(`
		SELECT ST_AsGeoJSON(%s) AS gjson, t.%s::text AS reference
		FROM %s t
		WHERE %s
		LIMIT 1
	`, expr.SQL("t"), pgx.Identifier{s.layers.BuildingRef}.Sanitize(),
		pgx.Identifier{s.layers.Buildings}.Sanitize(), s.refMatch(p, ref))

	var gjson *string
	var stored string
	err = s.pool.QueryRow(ctx, sql, p.Args()...).Scan(&gjson, &stored)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "geo: building geometry")
	}

	f := NewFeature(geometryOrNull(gjson), Properties{"reference": stored})
	return &f, nil
}

// refMatch is the case-insensitive reference predicate.
func (s *PostgresStore) refMatch(p *Params, ref string) string {
	return fmt.Sprintf("UPPER(t.%s::text) = UPPER(%s)", pgx.Identifier{s.layers.BuildingRef}.Sanitize(), p.Add(ref))
}

// features runs the shared bbox + paging feature query over table.
func (s *PostgresStore) features(ctx context.Context, table string, q SpatialQuery, props propsFunc) (FeatureCollection, error) {
	expr, err := s.resolver.Resolve(ctx, table)
	if err != nil {
		return FeatureCollection{}, err
	}

	p := &Params{}
	propsSQL := props(p, expr)
	sql := fmt.Sprintf(`
		SELECT ST_AsGeoJSON(%s) AS gjson, %s AS props
		FROM %s t
		%s
		%s
	`, expr.SQL("t"), propsSQL, pgx.Identifier{table}.Sanitize(), q.Where(p, expr.SQL("t")), q.Paging(p))

	rows, err := s.pool.Query(ctx, sql, p.Args()...)
	if err != nil {
		return FeatureCollection{}, eris.Wrapf(err, "geo: query features of %s", table)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var gjson *string
		var raw []byte
		if err := rows.Scan(&gjson, &raw); err != nil {
			return FeatureCollection{}, eris.Wrapf(err, "geo: scan feature of %s", table)
		}
		attrs, err := DecodeProperties(raw)
		if err != nil {
			return FeatureCollection{}, err
		}
		out = append(out, NewFeature(geometryOrNull(gjson), attrs))
	}
	if err := rows.Err(); err != nil {
		return FeatureCollection{}, eris.Wrapf(err, "geo: iterate features of %s", table)
	}
	return NewFeatureCollection(out), nil
}
