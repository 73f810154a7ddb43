package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "heatgrid",
	Short: "Urban heat island feature pipeline",
	Long:  "Builds per-city per-year spatio-temporal feature tables: grid generation, zonal Landsat/GHSL/water/elevation aggregation, rural reference temperatures, and derived heat-island features.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
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
