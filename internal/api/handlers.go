package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/emsv/geovisor/internal/geospatial"
)

// maxBodyBytes caps POST bodies; zone polygons are the largest payloads.
const maxBodyBytes = 4 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) buffers(w http.ResponseWriter, r *http.Request) {
	s.collection(w, r, s.limits.Buffers, s.store.Buffers)
}

func (s *Server) pointFeatures(w http.ResponseWriter, r *http.Request) {
	s.collection(w, r, s.limits.Points, s.store.PointFeatures)
}

func (s *Server) shadowFeatures(w http.ResponseWriter, r *http.Request) {
	s.collection(w, r, s.limits.Shadows, s.store.ShadowFeatures)
}

func (s *Server) buildingFeatures(w http.ResponseWriter, r *http.Request) {
	s.collection(w, r, s.limits.Buildings, s.store.BuildingFeatures)
}

type featureQuery func(ctx context.Context, q geospatial.SpatialQuery) (geospatial.FeatureCollection, error)

// collection serves a bbox + paging FeatureCollection endpoint.
func (s *Server) collection(w http.ResponseWriter, r *http.Request, defaultLimit int, query featureQuery) {
	q, err := spatialQuery(r.URL.Query(), defaultLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fc, err := query(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeCollection(w, r, fc)
}

func (s *Server) insertPoint(w http.ResponseWriter, r *http.Request) {
	var req geospatial.NewPoint
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.store.InsertPoint(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool  `json:"ok"`
		ID int64 `json:"id"`
	}{true, id})
}

func (s *Server) countPoints(w http.ResponseWriter, r *http.Request) {
	bbox, err := geospatial.ParseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.store.CountPoints(r.Context(), bbox)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) shadowZonal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.store.ShadowZonal(r.Context(), req.Geometry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) buildingByRef(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("ref") {
		s.fail(w, r, geospatial.InvalidInputf("ref is required"))
		return
	}
	f, err := s.store.BuildingByRef(r.Context(), q.Get("ref"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) addressLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("street") || !q.Has("number") {
		s.fail(w, r, geospatial.InvalidInputf("street and number are required"))
		return
	}
	include, err := boolParam(q, "include_feature")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.addresses.Lookup(r.Context(), q.Get("street"), q.Get("number"), include)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// spatialQuery reads bbox, limit and offset. Limit and offset are only
// required to be integers.
func spatialQuery(q url.Values, defaultLimit int) (geospatial.SpatialQuery, error) {
	bbox, err := geospatial.ParseBBox(q.Get("bbox"))
	if err != nil {
		return geospatial.SpatialQuery{}, err
	}
	limit, err := intParam(q, "limit", defaultLimit)
	if err != nil {
		return geospatial.SpatialQuery{}, err
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		return geospatial.SpatialQuery{}, err
	}
	return geospatial.SpatialQuery{BBox: bbox, Page: geospatial.Page{Limit: limit, Offset: offset}}, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, geospatial.InvalidInputf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(q.Get(name)))
	switch raw {
	case "":
		return false, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, geospatial.InvalidInputf("%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

// decodeBody decodes a JSON request body into v. Malformed JSON and wrong
// field types are client errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return geospatial.InvalidInputf("invalid request body: %v", err)
	}
	return nil
}
