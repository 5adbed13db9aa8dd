package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/geospatial"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run layer maintenance tasks",
	Long:  "Run VACUUM ANALYZE and REINDEX on the layer tables, and report their size statistics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("db"); err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer pool.Close()

		vacuum, _ := cmd.Flags().GetBool("vacuum")
		reindex, _ := cmd.Flags().GetBool("reindex")
		stats, _ := cmd.Flags().GetBool("stats")

		// Default: show stats if no specific action requested.
		if !vacuum && !reindex && !stats {
			stats = true
		}

		tables := append(layersFrom(cfg.Layers).Tables(), cfg.Layers.AddressIndex)

		if vacuum {
			if err := geospatial.VacuumAnalyze(ctx, pool, tables); err != nil {
				return eris.Wrap(err, "maintenance vacuum")
			}
			zap.L().Info("VACUUM ANALYZE complete")
		}

		if reindex {
			if err := geospatial.ReindexLayers(ctx, pool, tables); err != nil {
				return eris.Wrap(err, "maintenance reindex")
			}
			zap.L().Info("REINDEX complete")
		}

		if stats {
			tableStats, err := geospatial.GetTableStats(ctx, pool, tables)
			if err != nil {
				return eris.Wrap(err, "maintenance stats")
			}
			fmt.Printf("%-24s %-8s %10s %12s %12s %8s\n", "Table", "Kind", "Rows", "Total Size", "Index Size", "Spatial")
			fmt.Println("------------------------------------------------------------------------------------")
			for _, s := range tableStats {
				spatial := "no"
				if s.HasSpatial {
					spatial = "yes"
				}
				fmt.Printf("%-24s %-8s %10d %12s %12s %8s\n", s.TableName, s.Kind, s.RowCount, s.TotalSize, s.IndexSize, spatial)
			}
		}

		return nil
	},
}

func init() {
	maintenanceCmd.Flags().Bool("vacuum", false, "run VACUUM ANALYZE on layer tables")
	maintenanceCmd.Flags().Bool("reindex", false, "rebuild layer table indexes")
	maintenanceCmd.Flags().Bool("stats", false, "show table size statistics")
	rootCmd.AddCommand(maintenanceCmd)
}
