package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/uhi-lab/heatgrid/internal/db"
)

// PostgresStore implements Store on a pgx pool, bulk-loading feature
// rows over the COPY protocol.
type PostgresStore struct {
	pool   db.Pool
	closer func()
}

// NewPostgres connects a pool to the given Postgres URL.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closer: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used in tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	year       INTEGER NOT NULL,
	cells      INTEGER NOT NULL,
	rows       INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	cell_id         TEXT NOT NULL,
	date            TEXT NOT NULL,
	lst             DOUBLE PRECISION,
	ndvi            DOUBLE PRECISION,
	albedo          DOUBLE PRECISION,
	built_surface   DOUBLE PRECISION,
	building_height DOUBLE PRECISION,
	population      DOUBLE PRECISION,
	water_fraction  DOUBLE PRECISION,
	dist_to_water   DOUBLE PRECISION,
	elevation       DOUBLE PRECISION,
	rural_lst       DOUBLE PRECISION,
	lst_anomaly     DOUBLE PRECISION,
	season          TEXT,
	geom_ewkb       BYTEA,
	PRIMARY KEY (run_id, cell_id, date)
);

CREATE INDEX IF NOT EXISTS idx_features_date ON features(date);
CREATE INDEX IF NOT EXISTS idx_runs_city_year ON runs(city, year);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, city, year, cells, rows, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.City, run.Year, run.Cells, run.Rows, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

var featureColumns = []string{
	"run_id", "cell_id", "date", "lst", "ndvi", "albedo", "built_surface",
	"building_height", "population", "water_fraction", "dist_to_water",
	"elevation", "rural_lst", "lst_anomaly", "season", "geom_ewkb",
}

func (s *PostgresStore) SaveFeatures(ctx context.Context, runID string, recs []FeatureRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		geomBytes, err := encodeGeometry(r)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			runID, r.CellID, r.Date, r.LST, r.NDVI, r.Albedo, r.BuiltSurface,
			r.BuildingHeight, r.Population, r.WaterFraction, r.DistToWater,
			r.Elevation, r.RuralLST, r.LSTAnomaly, r.Season, geomBytes,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "features", featureColumns, rows)
	return err
}
