package geospatial

import (
	"context"
	"encoding/json"

	"github.com/paulmach/orb"
)

// Store defines the read and write operations over the configured layers.
type Store interface {
	// Buffers returns the buffer polygons of stored points.
	Buffers(ctx context.Context, q SpatialQuery) (FeatureCollection, error)

	// InsertPoint stores a new point and returns its id (max existing + 1).
	InsertPoint(ctx context.Context, p NewPoint) (int64, error)

	// CountPoints counts reference points, optionally inside bbox.
	CountPoints(ctx context.Context, bbox *orb.Bound) (int64, error)

	// PointFeatures returns reference points with every non-geometry column
	// as properties.
	PointFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error)

	// ShadowFeatures returns shadow cells with only the shadow value as
	// property.
	ShadowFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error)

	// ShadowZonal summarizes the shadow value over cells intersecting zone.
	ShadowZonal(ctx context.Context, zone json.RawMessage) (ZonalStats, error)

	// BuildingFeatures returns buildings with every non-geometry column as
	// properties.
	BuildingFeatures(ctx context.Context, q SpatialQuery) (FeatureCollection, error)

	// BuildingByRef returns the building whose reference matches ref,
	// ignoring case. Absent references are ErrNotFound.
	BuildingByRef(ctx context.Context, ref string) (Feature, error)

	// BuildingGeometry returns the building geometry for ref with only the
	// stored reference as property, or nil when no building carries it.
	BuildingGeometry(ctx context.Context, ref string) (*Feature, error)
}
