package geospatial

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// SRID is the coordinate reference system of every stored and returned
// geometry (WGS84 longitude/latitude).
const SRID = 4326

// ParseBBox parses "minx,miny,maxx,maxy" into a bound. An empty string means
// no bounding box and returns nil. Anything but exactly four finite floats is
// a client-input error; values are never reordered or clamped.
func ParseBBox(s string) (*orb.Bound, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, InvalidInputf("bbox must be 'minx,miny,maxx,maxy', got %d components", len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, InvalidInputf("bbox component %d is not a number: %q", i+1, p)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, InvalidInputf("bbox component %d is not finite: %q", i+1, p)
		}
		v[i] = f
	}

	return &orb.Bound{
		Min: orb.Point{v[0], v[1]},
		Max: orb.Point{v[2], v[3]},
	}, nil
}

// Params accumulates bind parameters and hands out their $n placeholders.
type Params struct {
	args []any
}

// Add appends v and returns its placeholder.
func (p *Params) Add(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// Args returns the accumulated parameters in placeholder order.
func (p *Params) Args() []any {
	return p.args
}

// Envelope returns an ST_MakeEnvelope call over b with each bound bound as
// a parameter.
func Envelope(p *Params, b orb.Bound) string {
	return fmt.Sprintf("ST_MakeEnvelope(%s, %s, %s, %s, %d)",
		p.Add(b.Min.Lon()), p.Add(b.Min.Lat()), p.Add(b.Max.Lon()), p.Add(b.Max.Lat()), SRID)
}

// Intersects returns the intersection predicate between two geometry
// expressions.
func Intersects(a, b string) string {
	return fmt.Sprintf("ST_Intersects(%s, %s)", a, b)
}

// Page is a limit/offset pair. Values pass through to the database as is,
// so zero or negative limits follow PostgreSQL semantics.
type Page struct {
	Limit  int
	Offset int
}

// SpatialQuery is an optional bounding box plus pagination.
type SpatialQuery struct {
	BBox *orb.Bound
	Page Page
}

// Where returns "WHERE <intersects envelope>" for geomExpr, or "" when the
// query has no bounding box.
func (q SpatialQuery) Where(p *Params, geomExpr string) string {
	if q.BBox == nil {
		return ""
	}
	return "WHERE " + Intersects(geomExpr, Envelope(p, *q.BBox))
}

// Paging returns the LIMIT/OFFSET clause. It is always present.
func (q SpatialQuery) Paging(p *Params) string {
	return fmt.Sprintf("LIMIT %s OFFSET %s", p.Add(q.Page.Limit), p.Add(q.Page.Offset))
}
