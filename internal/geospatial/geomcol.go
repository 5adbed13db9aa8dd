package geospatial

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/emsv/geovisor/internal/db"
)

// GeomKind is the storage convention of a table's geometry column.
type GeomKind int

const (
	// GeomNative is a PostGIS geometry column used as is.
	GeomNative GeomKind = iota + 1
	// GeomWKB is a well-known-binary column wrapped in ST_GeomFromWKB.
	GeomWKB
	// GeomWKT is a well-known-text column wrapped in ST_GeomFromText.
	GeomWKT
)

func (k GeomKind) String() string {
	switch k {
	case GeomNative:
		return "native"
	case GeomWKB:
		return "wkb"
	case GeomWKT:
		return "wkt"
	default:
		return "unknown"
	}
}

// Column is one column of a table as reported by information_schema.
type Column struct {
	Name    string
	UDTName string
}

// GeomExpr is the resolved geometry source of a table.
type GeomExpr struct {
	Column string
	Kind   GeomKind
}

// SQL renders the expression yielding a geometry, qualified by alias when
// alias is non-empty.
func (g GeomExpr) SQL(alias string) string {
	col := pgx.Identifier{g.Column}.Sanitize()
	if alias != "" {
		col = alias + "." + col
	}
	switch g.Kind {
	case GeomWKB:
		return fmt.Sprintf("ST_GeomFromWKB(%s, %d)", col, SRID)
	case GeomWKT:
		return fmt.Sprintf("ST_GeomFromText(%s, %d)", col, SRID)
	default:
		return col
	}
}

// geomStrategy pairs a column predicate with the kind it resolves to.
type geomStrategy struct {
	name  string
	kind  GeomKind
	match func(Column) bool
}

// geomStrategies is evaluated in order; the first strategy with a matching
// column wins, and within a strategy the first column in declaration order.
var geomStrategies = []geomStrategy{
	{name: "geometry column", kind: GeomNative, match: func(c Column) bool {
		return c.UDTName == "geometry"
	}},
	{name: "wkb column", kind: GeomWKB, match: func(c Column) bool {
		return c.Name == "geometry"
	}},
	{name: "wkb export column", kind: GeomWKB, match: func(c Column) bool {
		return c.Name == "wkb_geometry"
	}},
	{name: "wkt column", kind: GeomWKT, match: func(c Column) bool {
		return c.Name == "wkt"
	}},
}

// ResolveColumns picks the geometry expression for a table from its
// columns. It fails with an ErrSchema-class error when no strategy matches.
func ResolveColumns(table string, cols []Column) (GeomExpr, error) {
	for _, s := range geomStrategies {
		for _, c := range cols {
			if s.match(c) {
				return GeomExpr{Column: c.Name, Kind: s.kind}, nil
			}
		}
	}
	return GeomExpr{}, SchemaErrorf("no geometry column found in table %q", table)
}

// Resolver resolves and caches the geometry expression of each table.
type Resolver struct {
	pool  db.Pool
	cache *gocache.Cache
	group singleflight.Group
}

// NewResolver creates a Resolver. Entries live for ttl; ttl <= 0 keeps them
// until Invalidate is called.
func NewResolver(pool db.Pool, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Resolver{
		pool:  pool,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// resolveTimeout bounds a shared introspection, which runs detached from
// the cancellation of the caller that started it.
const resolveTimeout = 30 * time.Second

// Resolve returns the geometry expression for table, introspecting its
// schema on the first call. Concurrent callers share one introspection; a
// caller whose ctx ends stops waiting without failing the others.
func (r *Resolver) Resolve(ctx context.Context, table string) (GeomExpr, error) {
	if v, ok := r.cache.Get(table); ok {
		return v.(GeomExpr), nil
	}

	ch := r.group.DoChan(table, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()

		cols, err := r.Columns(qctx, table)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, SchemaErrorf("table %q does not exist or has no columns", table)
		}
		expr, err := ResolveColumns(table, cols)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(table, expr)
		zap.L().Debug("geo: resolved geometry column",
			zap.String("table", table),
			zap.String("column", expr.Column),
			zap.Stringer("kind", expr.Kind),
		)
		return expr, nil
	})

	select {
	case <-ctx.Done():
		return GeomExpr{}, eris.Wrapf(ctx.Err(), "geo: resolve geometry of %s", table)
	case res := <-ch:
		if res.Err != nil {
			return GeomExpr{}, res.Err
		}
		return res.Val.(GeomExpr), nil
	}
}

// Invalidate drops the cached expression of table, e.g. after a reload.
func (r *Resolver) Invalidate(table string) {
	r.cache.Delete(table)
}

// Columns lists the columns of table in declaration order.
func (r *Resolver) Columns(ctx context.Context, table string) ([]Column, error) {
	sql := `
		SELECT column_name, udt_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := r.pool.Query(ctx, sql, table)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: introspect columns of %s", table)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.UDTName); err != nil {
			return nil, eris.Wrap(err, "geo: scan column row")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate column rows")
	}
	return cols, nil
}
