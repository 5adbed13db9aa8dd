package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geovisor",
	Short: "GeoJSON API over PostGIS layers",
	Long:  "Serves points, buffers, shadows and buildings as GeoJSON, computes zonal statistics and resolves street addresses to building references.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
