package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emsv/geovisor/internal/address"
	"github.com/emsv/geovisor/internal/api"
	"github.com/emsv/geovisor/internal/geospatial"
	"github.com/emsv/geovisor/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GeoJSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer pool.Close()

		layers := layersFrom(cfg.Layers)
		resolver := geospatial.NewResolver(pool, time.Duration(cfg.Resolver.CacheTTLSecs)*time.Second)
		warmResolver(ctx, resolver, layers)

		store := geospatial.NewPostgresStore(pool, resolver, layers, cfg.Layers.DefaultBufferM)
		addresses := address.NewService(address.NewIndex(pool, cfg.Layers.AddressIndex), store)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.NewHTTPMetrics(reg)
		if err != nil {
			return eris.Wrap(err, "serve: register metrics")
		}

		handler := api.NewRouter(api.Options{
			Store:     store,
			Addresses: addresses,
			Limits: api.Limits{
				Buffers:   cfg.Layers.BuffersLimit,
				Points:    cfg.Layers.PointsLimit,
				Shadows:   cfg.Layers.ShadowsLimit,
				Buildings: cfg.Layers.BuildingsLimit,
			},
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimit:      cfg.Server.RateLimit,
			RateBurst:      cfg.Server.RateBurst,
			Metrics:        m,
			Gatherer:       reg,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSecs) * time.Second,
		}

		// Graceful shutdown
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Strings("allowed_origins", cfg.Server.AllowedOrigins),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		<-done

		return nil
	},
}

// warmResolver resolves every layer up front so schema problems show in the
// startup log. Failures are not fatal; requests report them per layer.
func warmResolver(ctx context.Context, resolver *geospatial.Resolver, layers geospatial.Layers) {
	g, gctx := errgroup.WithContext(ctx)
	for _, table := range layers.Tables() {
		g.Go(func() error {
			expr, err := resolver.Resolve(gctx, table)
			if err != nil {
				zap.L().Warn("layer not servable", zap.String("table", table), zap.Error(err))
				return nil
			}
			zap.L().Info("layer ready",
				zap.String("table", table),
				zap.String("column", expr.Column),
				zap.Stringer("kind", expr.Kind),
			)
			return nil
		})
	}
	_ = g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
