package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/baseline"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Estimate rural reference temperatures for a city and year",
	Long:  "Computes per-date mean rural land surface temperature over the buffer ring around the city grid and prints the table as JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("baseline"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		year, _ := cmd.Flags().GetInt("year")

		g, _, err := loadGrid(city)
		if err != nil {
			return err
		}
		footprint, err := g.Footprint()
		if err != nil {
			return eris.Wrap(err, "baseline: grid footprint")
		}

		est := baseline.New(newBackend(ctx), baseline.WithMaxCloudCover(cfg.Pipeline.MaxCloudCover))
		rural, err := est.Estimate(ctx, footprint, cfg.Pipeline.BufferKM, year)
		if err != nil {
			return eris.Wrapf(err, "baseline: estimate for %s %d", city, year)
		}

		zap.L().Info("rural reference estimated",
			zap.String("city", city),
			zap.Int("year", year),
			zap.Int("dates", len(rural)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rural)
	},
}

func init() {
	baselineCmd.Flags().String("city", "", "city name matching a saved grid (required)")
	baselineCmd.Flags().Int("year", 0, "calendar year to process (required)")
	_ = baselineCmd.MarkFlagRequired("city")
	_ = baselineCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(baselineCmd)
}
