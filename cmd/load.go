package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/address"
	"github.com/emsv/geovisor/internal/geospatial"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load datasets into the database",
}

var loadAddressesCmd = &cobra.Command{
	Use:   "addresses <mapping.json|mapping.yaml>",
	Short: "Rebuild the address index from a street/number/reference mapping",
	Long: "Reads a nested street -> number -> reference mapping, normalizes the keys " +
		"and replaces the whole address index with the result.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		mapping, err := address.LoadMapping(args[0])
		if err != nil {
			return err
		}
		entries := address.BuildEntries(mapping)

		pool, err := openPool(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := address.NewIndex(pool, cfg.Layers.AddressIndex).Replace(ctx, entries)
		if err != nil {
			return err
		}

		fmt.Printf("Address index %s rebuilt: %d entries from %d streets\n", cfg.Layers.AddressIndex, n, len(mapping))
		return nil
	},
}

var (
	layerRename    []string
	layerBatchSize int
)

var loadLayerCmd = &cobra.Command{
	Use:   "layer <table> <file.shp|file.geojson>",
	Short: "Replace a layer table with the contents of a shapefile or GeoJSON file",
	Long: "Parses a shapefile or GeoJSON FeatureCollection (chosen by extension), recreates the " +
		"table with one column per attribute plus a WKB geometry column, bulk loads it with " +
		"COPY and indexes the geometry.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		table, path := args[0], args[1]
		if err := cfg.Validate("db"); err != nil {
			return err
		}
		if !layersFrom(cfg.Layers).Has(table) {
			zap.L().Warn("table is not a configured layer; it will not be served", zap.String("table", table))
		}

		rename, err := parseRenames(layerRename)
		if err != nil {
			return err
		}

		start := time.Now()
		data, err := geospatial.ParseLayerFile(ctx, path, rename)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := geospatial.LoadLayer(ctx, pool, table, data, layerBatchSize)
		if err != nil {
			return eris.Wrapf(err, "load layer %s", table)
		}

		expr, err := geospatial.NewResolver(pool, 0).Resolve(ctx, table)
		if err != nil {
			return eris.Wrapf(err, "load layer %s: verify geometry", table)
		}

		fmt.Printf("Layer %s loaded: %d rows, %d attributes, geometry %s in %s\n",
			table, n, len(data.Fields), expr.SQL("t"), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// parseRenames turns src=dst pairs into a rename map keyed by lowercase
// source field name.
func parseRenames(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		src, dst, ok := strings.Cut(p, "=")
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !ok || src == "" || dst == "" {
			return nil, eris.Errorf("invalid --rename %q, want src=dst", p)
		}
		out[strings.ToLower(src)] = dst
	}
	return out, nil
}

func init() {
	loadLayerCmd.Flags().StringSliceVar(&layerRename, "rename", nil, "rename a shapefile field, src=dst (repeatable)")
	loadLayerCmd.Flags().IntVar(&layerBatchSize, "batch-size", 0, "rows per COPY batch (default 50000)")

	loadCmd.AddCommand(loadAddressesCmd)
	loadCmd.AddCommand(loadLayerCmd)
	rootCmd.AddCommand(loadCmd)
}
