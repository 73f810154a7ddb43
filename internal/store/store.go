package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/uhi-lab/heatgrid/internal/config"
)

// Store persists pipeline runs and their feature records.
type Store interface {
	Migrate(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	SaveFeatures(ctx context.Context, runID string, recs []FeatureRecord) error
	Close() error
}

// Open creates the store selected by the configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
