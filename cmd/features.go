package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/baseline"
	"github.com/uhi-lab/heatgrid/internal/feature"
	"github.com/uhi-lab/heatgrid/internal/grid"
	"github.com/uhi-lab/heatgrid/internal/imagery"
	"github.com/uhi-lab/heatgrid/internal/resilience"
	"github.com/uhi-lab/heatgrid/internal/store"
	"github.com/uhi-lab/heatgrid/internal/zonal"
	"github.com/uhi-lab/heatgrid/pkg/earthengine"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the feature table for a city and year",
	Long:  "Aggregates Landsat surface products, GHSL, surface water and elevation over the city grid, joins the rural reference temperatures, derives heat-island features, and persists the result.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("features"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")
		year, _ := cmd.Flags().GetInt("year")
		skipDB, _ := cmd.Flags().GetBool("skip-db")

		log := zap.L().With(
			zap.String("command", "features"),
			zap.String("city", city),
			zap.Int("year", year),
		)

		g, chunks, err := loadGrid(city)
		if err != nil {
			return err
		}
		log.Info("grid loaded", zap.Int("cells", len(g.Cells)), zap.Int("chunks", len(chunks)))

		backend := newBackend(ctx)
		agg := zonal.New(backend,
			zonal.WithWorkers(cfg.Pipeline.Workers),
			zonal.WithRateLimit(cfg.Pipeline.RequestsPerSecond),
		)

		footprint, err := g.Footprint()
		if err != nil {
			return eris.Wrap(err, "features: grid footprint")
		}

		// Variable surface products, one image per Landsat scene.
		scenes, err := resilience.DoVal(ctx, resilience.DefaultConfig(), func(ctx context.Context) ([]imagery.Scene, error) {
			return backend.Scenes(ctx, imagery.LandsatQuery(footprint, year, cfg.Pipeline.MaxCloudCover))
		})
		if err != nil {
			return eris.Wrapf(err, "features: list scenes for %d", year)
		}
		if len(scenes) == 0 {
			return eris.Errorf("features: no Landsat scenes for %s in %d under %v%% cloud cover",
				city, year, cfg.Pipeline.MaxCloudCover)
		}
		log.Info("scenes selected", zap.Int("count", len(scenes)))

		images := make([]imagery.Image, 0, len(scenes))
		for _, s := range scenes {
			images = append(images, imagery.SurfaceImage(s))
		}
		variable, err := agg.AggregateSeries(ctx, images, chunks, cfg.Pipeline.Scale)
		if err != nil {
			return eris.Wrap(err, "features: aggregate surface products")
		}

		statics, err := aggregateStatics(ctx, agg, chunks, year)
		if err != nil {
			return err
		}

		est := baseline.New(backend, baseline.WithMaxCloudCover(cfg.Pipeline.MaxCloudCover))
		rural, err := est.Estimate(ctx, footprint, cfg.Pipeline.BufferKM, year)
		if err != nil {
			return eris.Wrap(err, "features: rural reference")
		}
		log.Info("rural reference estimated", zap.Int("dates", len(rural)))

		assembled, err := feature.Assemble(variable, statics, rural)
		if err != nil {
			return eris.Wrap(err, "features: assemble")
		}
		derived, err := feature.Derive(assembled)
		if err != nil {
			return eris.Wrap(err, "features: derive")
		}

		recs := store.FromTable(derived)
		run := store.NewRun(city, year, len(g.Cells), len(recs))

		if !skipDB {
			if err := persistRun(ctx, run, recs); err != nil {
				return err
			}
		}

		base := fmt.Sprintf("features_%s_%d", city, year)
		csvPath := filepath.Join(cfg.Data.OutputDir, base+".csv")
		if err := store.WriteCSV(csvPath, recs); err != nil {
			return eris.Wrap(err, "features: export csv")
		}
		geoPath := filepath.Join(cfg.Data.OutputDir, base+".geojson")
		if err := store.WriteGeoJSON(geoPath, recs); err != nil {
			return eris.Wrap(err, "features: export geojson")
		}

		log.Info("feature table complete",
			zap.String("run_id", run.ID),
			zap.Int("rows", len(recs)),
			zap.String("csv", csvPath),
			zap.String("geojson", geoPath),
		)
		return nil
	},
}

// loadGrid reads the saved city grid and splits it into request
// chunks.
func loadGrid(city string) (*grid.Grid, []grid.Chunk, error) {
	path := filepath.Join(cfg.Data.GridDir, grid.CityFileName(city))
	g, err := grid.Load(path, 4326)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "load grid for %s", city)
	}
	chunks, err := grid.Split(g.Cells, cfg.Pipeline.ChunkSize)
	if err != nil {
		return nil, nil, eris.Wrap(err, "split grid")
	}
	return g, chunks, nil
}

func newBackend(ctx context.Context) *earthengine.Client {
	return earthengine.NewClient(ctx, cfg.EarthEngine.Project, earthengine.Credentials{
		TokenURL:     cfg.EarthEngine.TokenURL,
		ClientID:     cfg.EarthEngine.ClientID,
		ClientSecret: cfg.EarthEngine.ClientSecret,
	}, earthengine.WithBaseURL(cfg.EarthEngine.BaseURL))
}

// aggregateStatics reduces the snapshot layers over the grid, each at
// its native resolution.
func aggregateStatics(ctx context.Context, agg *zonal.Aggregator, chunks []grid.Chunk, year int) ([]*zonal.Table, error) {
	ghsl, err := imagery.GHSLImage(year)
	if err != nil {
		return nil, err
	}

	var tables []*zonal.Table
	for _, img := range []imagery.Image{ghsl, imagery.WaterImage(), imagery.ElevationImage()} {
		t, err := agg.Aggregate(ctx, img, chunks, img.Product.Scale)
		if err != nil {
			return nil, eris.Wrapf(err, "features: aggregate %s", img.Product.Name)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func persistRun(ctx context.Context, run store.Run, recs []store.FeatureRecord) error {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return eris.Wrap(err, "open store")
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return eris.Wrap(err, "save run")
	}
	if err := st.SaveFeatures(ctx, run.ID, recs); err != nil {
		return eris.Wrap(err, "save features")
	}
	return nil
}

func init() {
	featuresCmd.Flags().String("city", "", "city name matching a saved grid (required)")
	featuresCmd.Flags().Int("year", 0, "calendar year to process (required)")
	featuresCmd.Flags().Bool("skip-db", false, "write exports only, skip the database")
	_ = featuresCmd.MarkFlagRequired("city")
	_ = featuresCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(featuresCmd)
}
