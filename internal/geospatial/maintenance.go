package geospatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/db"
)

// TableStats holds size and row count information for a layer table.
type TableStats struct {
	TableName  string `json:"table_name"`
	Kind       string `json:"kind"`
	RowCount   int64  `json:"row_count"`
	TotalSize  string `json:"total_size"`
	IndexSize  string `json:"index_size"`
	HasSpatial bool   `json:"has_spatial"`
}

// maintainable drops views from tables; VACUUM and REINDEX reject them.
func maintainable(ctx context.Context, pool db.Pool, tables []string) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		  AND c.relkind IN ('r', 'p', 'm')
		  AND c.relname = ANY($1)`, tables)
	if err != nil {
		return nil, eris.Wrap(err, "geo: list maintainable tables")
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "geo: scan table name")
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate table names")
	}

	var out []string
	for _, t := range tables {
		if found[t] {
			out = append(out, t)
		} else {
			zap.L().Debug("geo: skipping non-table layer", zap.String("table", t))
		}
	}
	return out, nil
}

// VacuumAnalyze runs VACUUM ANALYZE on each layer table to refresh planner
// statistics after bulk loads.
func VacuumAnalyze(ctx context.Context, pool db.Pool, tables []string) error {
	targets, err := maintainable(ctx, pool, tables)
	if err != nil {
		return err
	}
	for _, table := range targets {
		zap.L().Info("geo: vacuum analyze", zap.String("table", table))
		if _, err := pool.Exec(ctx, fmt.Sprintf("VACUUM ANALYZE %s", pgx.Identifier{table}.Sanitize())); err != nil {
			return eris.Wrapf(err, "geo: vacuum analyze %s", table)
		}
	}
	return nil
}

// ReindexLayers rebuilds the indexes of each layer table.
func ReindexLayers(ctx context.Context, pool db.Pool, tables []string) error {
	targets, err := maintainable(ctx, pool, tables)
	if err != nil {
		return err
	}
	for _, table := range targets {
		zap.L().Info("geo: reindex", zap.String("table", table))
		if _, err := pool.Exec(ctx, fmt.Sprintf("REINDEX TABLE %s", pgx.Identifier{table}.Sanitize())); err != nil {
			return eris.Wrapf(err, "geo: reindex %s", table)
		}
	}
	return nil
}

// GetTableStats returns size and row count statistics for the given layer
// tables and views. Names missing from the database are left out.
func GetTableStats(ctx context.Context, pool db.Pool, tables []string) ([]TableStats, error) {
	sql := `
		SELECT
			c.relname AS table_name,
			CASE c.relkind WHEN 'v' THEN 'view' WHEN 'm' THEN 'materialized view' ELSE 'table' END AS kind,
			GREATEST(c.reltuples, 0)::bigint AS row_count,
			pg_size_pretty(pg_total_relation_size(c.oid)) AS total_size,
			pg_size_pretty(pg_indexes_size(c.oid)) AS index_size,
			EXISTS (
				SELECT 1 FROM pg_indexes i
				WHERE i.schemaname = n.nspname AND i.tablename = c.relname
				AND i.indexdef ILIKE '%USING gist%'
			) AS has_spatial
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema()
		  AND c.relname = ANY($1)
		ORDER BY pg_total_relation_size(c.oid) DESC
	`
	rows, err := pool.Query(ctx, sql, tables)
	if err != nil {
		return nil, eris.Wrap(err, "geo: query table stats")
	}
	defer rows.Close()

	var stats []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.TableName, &s.Kind, &s.RowCount, &s.TotalSize, &s.IndexSize, &s.HasSpatial); err != nil {
			return nil, eris.Wrap(err, "geo: scan table stats row")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate table stats rows")
	}
	return stats, nil
}
