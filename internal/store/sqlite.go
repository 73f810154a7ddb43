package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	year       INTEGER NOT NULL,
	cells      INTEGER NOT NULL,
	rows       INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	cell_id         TEXT NOT NULL,
	date            TEXT NOT NULL,
	lst             REAL,
	ndvi            REAL,
	albedo          REAL,
	built_surface   REAL,
	building_height REAL,
	population      REAL,
	water_fraction  REAL,
	dist_to_water   REAL,
	elevation       REAL,
	rural_lst       REAL,
	lst_anomaly     REAL,
	season          TEXT,
	geom_ewkb       BLOB,
	PRIMARY KEY (run_id, cell_id, date)
);

CREATE INDEX IF NOT EXISTS idx_features_date ON features(date);
CREATE INDEX IF NOT EXISTS idx_runs_city_year ON runs(city, year);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, city, year, cells, rows, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.City, run.Year, run.Cells, run.Rows, run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) SaveFeatures(ctx context.Context, runID string, recs []FeatureRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin features tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO features (
			run_id, cell_id, date, lst, ndvi, albedo, built_surface,
			building_height, population, water_fraction, dist_to_water,
			elevation, rural_lst, lst_anomaly, season, geom_ewkb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare features insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range recs {
		geomBytes, err := encodeGeometry(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			runID, r.CellID, r.Date, r.LST, r.NDVI, r.Albedo, r.BuiltSurface,
			r.BuildingHeight, r.Population, r.WaterFraction, r.DistToWater,
			r.Elevation, r.RuralLST, r.LSTAnomaly, r.Season, geomBytes,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert feature cell %s date %s", r.CellID, r.Date)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit features")
}

// encodeGeometry serializes a record geometry as EWKB, or nil when the
// record has none.
func encodeGeometry(r FeatureRecord) ([]byte, error) {
	if r.Geometry == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(r.Geometry, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode geometry for cell %s", r.CellID)
	}
	return data, nil
}
