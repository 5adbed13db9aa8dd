package address

import (
	"context"
	"encoding/json"

	"github.com/emsv/geovisor/internal/geospatial"
)

// BuildingFinder fetches the building geometry carrying a reference.
type BuildingFinder interface {
	BuildingGeometry(ctx context.Context, ref string) (*geospatial.Feature, error)
}

// Result is the answer to an address lookup.
type Result struct {
	Reference string
	// Feature is the matching building; nil when none carries the reference.
	Feature *geospatial.Feature
	// WithFeature records that the building was requested, so a nil Feature
	// is reported as an explicit null.
	WithFeature bool
}

// MarshalJSON renders {"reference"} or {"reference", "feature"}.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.WithFeature {
		return json.Marshal(struct {
			Reference string `json:"reference"`
		}{r.Reference})
	}
	return json.Marshal(struct {
		Reference string              `json:"reference"`
		Feature   *geospatial.Feature `json:"feature"`
	}{r.Reference, r.Feature})
}

// Service answers address lookups against the index and, optionally,
// the buildings layer.
type Service struct {
	index     *Index
	buildings BuildingFinder
}

// NewService creates a Service.
func NewService(index *Index, buildings BuildingFinder) *Service {
	return &Service{index: index, buildings: buildings}
}

// Lookup resolves street and number to a reference. With includeFeature
// the building geometry is attached; a reference with no building yields a
// null feature, not an error.
func (s *Service) Lookup(ctx context.Context, street, number string, includeFeature bool) (Result, error) {
	ref, err := s.index.Lookup(ctx, street, number)
	if err != nil {
		return Result{}, err
	}

	res := Result{Reference: ref, WithFeature: includeFeature}
	if !includeFeature {
		return res, nil
	}

	res.Feature, err = s.buildings.BuildingGeometry(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
