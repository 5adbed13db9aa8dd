package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emsv/geovisor/internal/db"
	"github.com/emsv/geovisor/internal/geospatial"
)

// layerStatus is one line of the status report.
type layerStatus struct {
	Table string
	Rows  int64
	Geom  string
	Err   error
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show layer and address index status",
	Long:  "Resolves the geometry expression of every configured layer and counts its rows.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer pool.Close()

		layers := layersFrom(cfg.Layers)
		statuses := collectStatus(ctx, pool, geospatial.NewResolver(pool, 0), layers.Tables())

		fmt.Printf("%-24s %12s  %s\n", "Layer", "Rows", "Geometry")
		fmt.Println("----------------------------------------------------------------")
		for _, s := range statuses {
			if s.Err != nil {
				fmt.Printf("%-24s %12s  error: %v\n", s.Table, "-", s.Err)
				continue
			}
			fmt.Printf("%-24s %12d  %s\n", s.Table, s.Rows, s.Geom)
		}

		n, err := countRows(ctx, pool, cfg.Layers.AddressIndex)
		if err != nil {
			fmt.Printf("\nAddress index %s: error: %v\n", cfg.Layers.AddressIndex, err)
		} else {
			fmt.Printf("\nAddress index %s: %d entries\n", cfg.Layers.AddressIndex, n)
		}
		return nil
	},
}

// collectStatus inspects the tables concurrently. Per-table failures are
// reported in the result rather than aborting the others.
func collectStatus(ctx context.Context, pool db.Pool, resolver *geospatial.Resolver, tables []string) []layerStatus {
	out := make([]layerStatus, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, table := range tables {
		g.Go(func() error {
			s := layerStatus{Table: table}
			expr, err := resolver.Resolve(gctx, table)
			if err != nil {
				s.Err = err
				out[i] = s
				return nil
			}
			s.Geom = expr.SQL("t")
			s.Rows, s.Err = countRows(gctx, pool, table)
			out[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func countRows(ctx context.Context, pool db.Pool, table string) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n)
	return n, err
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
