package geospatial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testZone = `{"type":"Polygon","coordinates":[[[-3.74,40.29],[-3.72,40.29],[-3.72,40.31],[-3.74,40.31],[-3.74,40.29]]]}`

func zonalRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"n_features", "avg_value", "min_value", "max_value"})
}

func TestValidateZone(t *testing.T) {
	tests := []struct {
		name    string
		zone    string
		wantErr bool
	}{
		{name: "polygon", zone: testZone},
		{name: "multipolygon", zone: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3],[2,2]]]]}`},
		{name: "empty", zone: "", wantErr: true},
		{name: "null", zone: "null", wantErr: true},
		{name: "point", zone: `{"type":"Point","coordinates":[0,0]}`, wantErr: true},
		{name: "garbage", zone: `{"type":`, wantErr: true},
		{name: "empty polygon", zone: `{"type":"Polygon","coordinates":[]}`, wantErr: true},
		{name: "unclosed ring", zone: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}`, wantErr: true},
		{name: "unclosed triangle", zone: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1]]]}`, wantErr: true},
		{name: "single position ring", zone: `{"type":"Polygon","coordinates":[[[0,0]]]}`, wantErr: true},
		{name: "unclosed hole", zone: `{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,4],[0,0]],[[1,1],[2,1],[2,2],[1,2]]]}`, wantErr: true},
		{name: "multipolygon with unclosed part", zone: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[2,2],[3,2],[3,3]]]]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateZone(json.RawMessage(tt.zone))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestZonal_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WITH zone AS").
		WithArgs(testZone).
		WillReturnRows(zonalRows().AddRow(int64(4), ptr(2.5), ptr(1.0), ptr(4.0)))

	expr := GeomExpr{Column: "geom", Kind: GeomNative}
	st, err := Zonal(context.Background(), mock, "shadows", expr, "shadow_count", json.RawMessage(testZone))
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Count)
	require.NotNil(t, st.Avg)
	assert.Equal(t, 2.5, *st.Avg)
	assert.Equal(t, 1.0, *st.Min)
	assert.Equal(t, 4.0, *st.Max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestZonal_NoMatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM "shadows" s, zone z`).
		WithArgs(testZone).
		WillReturnRows(zonalRows().AddRow(int64(0), (*float64)(nil), (*float64)(nil), (*float64)(nil)))

	expr := GeomExpr{Column: "wkb_geometry", Kind: GeomWKB}
	st, err := Zonal(context.Background(), mock, "shadows", expr, "shadow_count", json.RawMessage(testZone))
	require.NoError(t, err)

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"avg":null,"min":null,"max":null}`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestZonal_InvalidZoneSkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Zonal(context.Background(), mock, "shadows", GeomExpr{Column: "geom", Kind: GeomNative},
		"shadow_count", json.RawMessage(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestZonal_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WITH zone AS").
		WithArgs(testZone).
		WillReturnError(fmt.Errorf("invalid GeoJSON representation"))

	_, err = Zonal(context.Background(), mock, "shadows", GeomExpr{Column: "geom", Kind: GeomNative},
		"shadow_count", json.RawMessage(testZone))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zonal statistics")
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}
