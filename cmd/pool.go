package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/config"
	"github.com/emsv/geovisor/internal/geospatial"
	"github.com/emsv/geovisor/internal/resilience"
)

// openPool connects to PostGIS with the configured pool bounds.
func openPool(ctx context.Context, sc config.StoreConfig) (*pgxpool.Pool, error) {
	if sc.DatabaseURL == "" {
		return nil, eris.New("store: no database_url configured (set store.database_url or GEOVISOR_STORE_DATABASE_URL)")
	}

	pcfg, err := pgxpool.ParseConfig(sc.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database_url")
	}
	if sc.MaxConns > 0 {
		pcfg.MaxConns = sc.MaxConns
	}
	if sc.MinConns > 0 {
		pcfg.MinConns = sc.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create connection pool")
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = sc.ConnectAttempts
	retry.OnRetry = resilience.RetryLogger("ping database")
	if err := resilience.Do(ctx, retry, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping database")
	}

	zap.L().Debug("connected to database",
		zap.Int32("max_conns", pcfg.MaxConns),
		zap.Int32("min_conns", pcfg.MinConns),
	)
	return pool, nil
}

// layersFrom maps the layers section of the config to the store's table set.
func layersFrom(lc config.LayersConfig) geospatial.Layers {
	return geospatial.Layers{
		Points:       lc.Points,
		PointBuffers: lc.PointBuffers,
		BigPoints:    lc.BigPoints,
		Shadows:      lc.Shadows,
		ShadowValue:  lc.ShadowValue,
		Buildings:    lc.Buildings,
		BuildingRef:  lc.BuildingRef,
	}
}
