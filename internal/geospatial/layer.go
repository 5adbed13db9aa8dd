package geospatial

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emsv/geovisor/internal/db"
)

// LayerGeomColumn holds the WKB geometry of loaded layers. The resolver
// picks it up through the wkb export convention.
const LayerGeomColumn = "wkb_geometry"

const defaultLayerBatchSize = 50000

// LayerField is one attribute column of a loaded layer.
type LayerField struct {
	Name    string
	Source  string
	Numeric bool
}

// SQLType is the column type used when creating the layer table.
func (f LayerField) SQLType() string {
	if f.Numeric {
		return "DOUBLE PRECISION"
	}
	return "TEXT"
}

// LayerData is a parsed layer file: fields plus rows holding one value per
// field followed by the WKB geometry.
type LayerData struct {
	Fields []LayerField
	Rows   [][]any
}

// Columns returns the COPY column list.
func (d *LayerData) Columns() []string {
	cols := make([]string, 0, len(d.Fields)+1)
	for _, f := range d.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, LayerGeomColumn)
}

// layerRecord is one source feature. Exactly one of shape and geometry is
// set; a record with neither has no usable geometry.
type layerRecord struct {
	shape    shp.Shape
	geometry geom.T
	attrs    []any
}

// ParseLayerFile parses a shapefile or a GeoJSON FeatureCollection, chosen
// by extension.
func ParseLayerFile(ctx context.Context, path string, rename map[string]string) (*LayerData, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ParseShapefile(ctx, path, rename)
	case ".geojson", ".json":
		return ParseGeoJSON(ctx, path, rename)
	default:
		return nil, eris.Errorf("geo: unsupported layer file %s: want .shp, .geojson or .json", path)
	}
}

// ParseShapefile reads every record of the shapefile at path. Field names
// are lowercased and then renamed through rename (source name → column).
// Numeric dBASE fields become float columns; blanks are NULL. Records whose
// geometry cannot be encoded are skipped. The sibling .dbf must exist and
// hold one row per shape.
func ParseShapefile(ctx context.Context, path string, rename map[string]string) (*LayerData, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dbfPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return nil, eris.Wrapf(err, "geo: shapefile attributes %s", dbfPath)
	}

	fields, err := layerFields(reader.Fields(), rename)
	if err != nil {
		return nil, err
	}

	var records []layerRecord
	for reader.Next() {
		_, shape := reader.Shape()
		attrs := make([]any, len(fields))
		for i, f := range fields {
			attrs[i] = parseAttribute(reader.Attribute(i), f.Numeric)
		}
		records = append(records, layerRecord{shape: shape, attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geo: read shapefile %s", path)
	}
	if n := reader.AttributeCount(); n != len(records) {
		return nil, eris.Errorf("geo: shapefile %s has %d shapes but %d attribute rows", path, len(records), n)
	}

	rows, err := encodeRecords(ctx, records)
	if err != nil {
		return nil, err
	}

	if skipped := len(records) - len(rows); skipped > 0 {
		zap.L().Warn("geo: skipped layer records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return &LayerData{Fields: fields, Rows: rows}, nil
}

func layerFields(src []shp.Field, rename map[string]string) ([]LayerField, error) {
	seen := map[string]bool{LayerGeomColumn: true}
	fields := make([]LayerField, len(src))
	for i, f := range src {
		source := strings.TrimRight(f.String(), "\x00")
		lf, err := layerField(seen, i, source, rename)
		if err != nil {
			return nil, err
		}
		lf.Numeric = f.Fieldtype == 'N' || f.Fieldtype == 'F'
		fields[i] = lf
	}
	return fields, nil
}

// layerField lowercases a source attribute name and applies rename. seen
// holds the column names already taken.
func layerField(seen map[string]bool, i int, source string, rename map[string]string) (LayerField, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	name := source
	if to, ok := rename[source]; ok {
		name = to
	}
	if name == "" {
		return LayerField{}, eris.Errorf("geo: layer field %d has no name", i)
	}
	if seen[name] {
		return LayerField{}, eris.Errorf("geo: duplicate layer column %q", name)
	}
	seen[name] = true
	return LayerField{Name: name, Source: source}, nil
}

func parseAttribute(raw string, numeric bool) any {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if val == "" {
		return nil
	}
	if !numeric {
		return val
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	return f
}

// encodeRecords converts geometries to WKB in parallel, keeping record order.
func encodeRecords(ctx context.Context, records []layerRecord) ([][]any, error) {
	encoded := make([][]byte, len(records))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	const chunk = 1024
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gCtx.Err(); err != nil {
					return err
				}
				data, err := records[i].encode()
				if err != nil {
					return eris.Wrapf(err, "geo: record %d", i)
				}
				encoded[i] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(records))
	for i, r := range records {
		if encoded[i] == nil {
			continue
		}
		rows = append(rows, append(r.attrs, encoded[i]))
	}
	return rows, nil
}

func (r layerRecord) encode() ([]byte, error) {
	switch {
	case r.shape != nil:
		return EncodeShape(r.shape)
	case r.geometry != nil:
		return EncodeGeometry(r.geometry)
	default:
		return nil, nil
	}
}

// LoadLayer replaces table with data in one transaction: the table is
// dropped, recreated from the layer fields, filled with COPY and given a
// spatial index on its decoded geometry.
func LoadLayer(ctx context.Context, pool db.Pool, table string, data *LayerData, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultLayerBatchSize
	}
	log := zap.L().With(zap.String("component", "geo.layer"), zap.String("table", table))

	ident := pgx.Identifier{table}.Sanitize()
	defs := make([]string, 0, len(data.Fields)+1)
	for _, f := range data.Fields {
		defs = append(defs, pgx.Identifier{f.Name}.Sanitize()+" "+f.SQLType())
	}
	defs = append(defs, pgx.Identifier{LayerGeomColumn}.Sanitize()+" BYTEA NOT NULL")

	stmts := []string{
		"DROP TABLE IF EXISTS " + ident,
		fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", ")),
	}
	index := fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (ST_GeomFromWKB(%s, %d))",
		pgx.Identifier{"idx_" + table + "_geom"}.Sanitize(), ident, pgx.Identifier{LayerGeomColumn}.Sanitize(), SRID)

	var n int64
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for _, s := range stmts {
			if _, err := tx.Exec(ctx, s); err != nil {
				return eris.Wrapf(err, "geo: prepare layer table %s", table)
			}
		}
		var err error
		n, err = db.CopyFromBatches(ctx, tx, table, data.Columns(), data.Rows, batchSize)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, index); err != nil {
			return eris.Wrapf(err, "geo: index layer table %s", table)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info("layer loaded", zap.Int64("rows", n), zap.Int("columns", len(data.Fields)))
	return n, nil
}
