package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/grid"
)

var gridGenCmd = &cobra.Command{
	Use:   "grid-gen",
	Short: "Generate the analysis grid for a city",
	Long:  "Imports the city boundary from a shapefile, tiles it into square cells, and writes the grid as GeoJSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("grid"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "grid-gen"))

		city, _ := cmd.Flags().GetString("city")
		shapefile, _ := cmd.Flags().GetString("boundary")
		cellSize, _ := cmd.Flags().GetFloat64("cell-size")
		srid, _ := cmd.Flags().GetInt("srid")

		boundary, err := grid.ImportBoundary(shapefile, srid)
		if err != nil {
			return eris.Wrapf(err, "grid-gen: import boundary for %s", city)
		}

		g, err := grid.Generate(boundary, cellSize, srid)
		if err != nil {
			return eris.Wrapf(err, "grid-gen: generate grid for %s", city)
		}

		path := filepath.Join(cfg.Data.GridDir, grid.CityFileName(city))
		if err := grid.Save(g, path); err != nil {
			return eris.Wrapf(err, "grid-gen: save grid for %s", city)
		}

		log.Info("grid generation complete",
			zap.String("city", city),
			zap.Float64("cell_size", cellSize),
			zap.Int("cells", len(g.Cells)),
			zap.String("path", path),
		)
		return nil
	},
}

func init() {
	gridGenCmd.Flags().String("city", "", "city name (required)")
	gridGenCmd.Flags().String("boundary", "", "path to the boundary shapefile (.shp, required)")
	gridGenCmd.Flags().Float64("cell-size", 0.01, "grid cell size in boundary CRS units")
	gridGenCmd.Flags().Int("srid", 4326, "spatial reference id of the boundary")
	_ = gridGenCmd.MarkFlagRequired("city")
	_ = gridGenCmd.MarkFlagRequired("boundary")
	rootCmd.AddCommand(gridGenCmd)
}
