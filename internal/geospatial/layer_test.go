package geospatial

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

func square(x, y float64) *shp.Polygon {
	pts := []shp.Point{{X: x, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}, {X: x + 1, Y: y}, {X: x, Y: y}}
	return &shp.Polygon{
		Box:       shp.BBoxFromPoints(pts),
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
	}
}

// writeTestShapefile writes two building polygons with a reference and a
// numeric height, the first with a blank height.
func writeTestShapefile(t *testing.T) string {
	t.Helper()
	return writeShapefile(t, t.TempDir(), "ABC123", "XYZ789")
}

// writeShapefile writes one square per reference into dir/buildings.shp.
// The writer names the attribute table "buildingsdbf", so it is moved to
// the "buildings.dbf" the reader expects.
func writeShapefile(t *testing.T, dir string, refs ...string) string {
	t.Helper()
	base := filepath.Join(dir, "buildings")

	w, err := shp.Create(base+".shp", shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("REFCAT", 14),
		shp.FloatField("HEIGHT", 10, 2),
	}))

	for i, ref := range refs {
		w.Write(square(float64(i), 40))
		require.NoError(t, w.WriteAttribute(i, 0, ref))
	}
	if len(refs) > 1 {
		require.NoError(t, w.WriteAttribute(1, 1, 12.5))
	}
	w.Close()

	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return base + ".shp"
}

func TestEncodeShape_Polygon(t *testing.T) {
	data, err := EncodeShape(square(-3.7, 40.3))
	require.NoError(t, err)

	g, err := wkb.Unmarshal(data)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestEncodeShape_Point(t *testing.T) {
	data, err := EncodeShape(&shp.Point{X: 1, Y: 2})
	require.NoError(t, err)

	g, err := wkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, g.FlatCoords())
}

func TestEncodeShape_Unsupported(t *testing.T) {
	data, err := EncodeShape(&shp.Null{})
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeShape(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestParseShapefile(t *testing.T) {
	path := writeTestShapefile(t)

	data, err := ParseShapefile(context.Background(), path, map[string]string{"refcat": "reference"})
	require.NoError(t, err)

	assert.Equal(t, []LayerField{
		{Name: "reference", Source: "refcat"},
		{Name: "height", Source: "height", Numeric: true},
	}, data.Fields)
	assert.Equal(t, []string{"reference", "height", "wkb_geometry"}, data.Columns())

	require.Len(t, data.Rows, 2)
	assert.Equal(t, "ABC123", data.Rows[0][0])
	assert.Nil(t, data.Rows[0][1])
	assert.Equal(t, "XYZ789", data.Rows[1][0])
	assert.Equal(t, 12.5, data.Rows[1][1])
	assert.IsType(t, []byte{}, data.Rows[1][2])
}

func TestParseShapefile_DuplicateAfterRename(t *testing.T) {
	path := writeTestShapefile(t)

	_, err := ParseShapefile(context.Background(), path, map[string]string{"refcat": "height"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate layer column "height"`)
}

func TestParseShapefile_MissingAttributes(t *testing.T) {
	path := writeTestShapefile(t)
	require.NoError(t, os.Remove(strings.TrimSuffix(path, ".shp")+".dbf"))

	_, err := ParseShapefile(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shapefile attributes")
}

func TestParseShapefile_AttributeCountMismatch(t *testing.T) {
	path := writeTestShapefile(t)
	short := writeShapefile(t, t.TempDir(), "ABC123")

	data, err := os.ReadFile(strings.TrimSuffix(short, ".shp") + ".dbf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(strings.TrimSuffix(path, ".shp")+".dbf", data, 0o644))

	_, err = ParseShapefile(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 shapes but 1 attribute rows")
}

func TestParseShapefile_Missing(t *testing.T) {
	_, err := ParseShapefile(context.Background(), filepath.Join(t.TempDir(), "nope.shp"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open shapefile")
}

func testLayerData() *LayerData {
	return &LayerData{
		Fields: []LayerField{{Name: "reference", Source: "refcat"}, {Name: "height", Source: "height", Numeric: true}},
		Rows: [][]any{
			{"ABC123", 12.5, []byte{1}},
			{"XYZ789", nil, []byte{1}},
		},
	}
}

func TestLoadLayer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "buildings"`).WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`CREATE TABLE "buildings" \("reference" TEXT, "height" DOUBLE PRECISION, "wkb_geometry" BYTEA NOT NULL\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"buildings"}, []string{"reference", "height", "wkb_geometry"}).
		WillReturnResult(2)
	mock.ExpectExec(`CREATE INDEX "idx_buildings_geom" ON "buildings" USING GIST \(ST_GeomFromWKB\("wkb_geometry", 4326\)\)`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectCommit()

	n, err := LoadLayer(context.Background(), mock, "buildings", testLayerData(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLayer_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE").WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"shadows"}, []string{"reference", "height", "wkb_geometry"}).
		WillReturnError(fmt.Errorf("invalid byte sequence"))
	mock.ExpectRollback()

	_, err = LoadLayer(context.Background(), mock, "shadows", testLayerData(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO shadows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseAttribute(t *testing.T) {
	assert.Nil(t, parseAttribute("   ", false))
	assert.Equal(t, "Sol", parseAttribute("Sol\x00\x00", false))
	assert.Equal(t, 3.0, parseAttribute(" 3 ", true))
	assert.Nil(t, parseAttribute("***", true))
}
