package geospatial

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Properties is the open attribute set of a feature. Values are the JSON
// union: string, json.Number, bool, nil, []any or map[string]any.
type Properties map[string]any

// Feature is a GeoJSON Feature whose geometry is passed through verbatim.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties Properties      `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeature assembles a Feature. A missing geometry serializes as null and
// nil properties as an empty object; null attribute values are kept.
func NewFeature(geometry json.RawMessage, props Properties) Feature {
	if len(geometry) == 0 {
		geometry = json.RawMessage("null")
	}
	if props == nil {
		props = Properties{}
	}
	return Feature{Type: "Feature", Geometry: geometry, Properties: props}
}

// NewFeatureCollection wraps features; nil yields an empty features array.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// DecodeProperties decodes a JSON object of attributes. Numbers stay as
// json.Number so their text survives re-encoding unchanged.
func DecodeProperties(raw []byte) (Properties, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Properties{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var props Properties
	if err := dec.Decode(&props); err != nil {
		return nil, eris.Wrap(err, "geo: decode properties")
	}
	if props == nil {
		props = Properties{}
	}
	return props, nil
}

// geometryOrNull turns a nullable ST_AsGeoJSON result into raw JSON.
func geometryOrNull(gjson *string) json.RawMessage {
	if gjson == nil {
		return nil
	}
	return json.RawMessage(*gjson)
}
