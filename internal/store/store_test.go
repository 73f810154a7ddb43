package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/uhi-lab/heatgrid/internal/config"
	"github.com/uhi-lab/heatgrid/internal/feature"
	"github.com/uhi-lab/heatgrid/internal/imagery"
)

func fp(v float64) *float64 { return &v }

func cellPolygon() *geom.Polygon {
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
	}})
	p.SetSRID(4326)
	return p
}

func sampleRecords() []FeatureRecord {
	return []FeatureRecord{
		{
			CellID:   "0",
			Date:     "2020-07-12",
			LST:      fp(31.2),
			NDVI:     fp(0.41),
			RuralLST: fp(28.0),
			Season:   feature.SeasonSummer,
			Geometry: cellPolygon(),
		},
		{
			CellID: "1",
			Date:   "2020-07-12",
			Season: feature.SeasonSummer,
		},
	}
}

func TestFromTable(t *testing.T) {
	tbl := &feature.Table{
		Columns: []string{imagery.BandLST, feature.ColRuralLST, feature.ColLSTAnomaly},
		Rows: []feature.Row{
			{
				CellID:   "7",
				Date:     "2020-07-12",
				Geometry: cellPolygon(),
				Season:   feature.SeasonSummer,
				Values: map[string]*float64{
					imagery.BandLST:       fp(31.5),
					feature.ColRuralLST:   fp(28.0),
					feature.ColLSTAnomaly: fp(3.5),
					imagery.BandNDVI:      nil,
				},
			},
		},
	}

	recs := FromTable(tbl)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].CellID)
	assert.Equal(t, "2020-07-12", recs[0].Date)
	require.NotNil(t, recs[0].LST)
	assert.InDelta(t, 31.5, *recs[0].LST, 1e-9)
	require.NotNil(t, recs[0].LSTAnomaly)
	assert.InDelta(t, 3.5, *recs[0].LSTAnomaly, 1e-9)
	assert.Nil(t, recs[0].NDVI)
	assert.Equal(t, feature.SeasonSummer, recs[0].Season)
	assert.NotNil(t, recs[0].Geometry)
}

func TestNewRun(t *testing.T) {
	run := NewRun("paris", 2020, 120, 840)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "paris", run.City)
	assert.Equal(t, 2020, run.Year)
	assert.Equal(t, 120, run.Cells)
	assert.Equal(t, 840, run.Rows)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "heatgrid.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	run := NewRun("paris", 2020, 2, 2)
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.SaveFeatures(ctx, run.ID, sampleRecords()))

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM features WHERE run_id = ?`, run.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var lst *float64
	err = s.db.QueryRowContext(ctx,
		`SELECT lst FROM features WHERE run_id = ? AND cell_id = '1'`, run.ID).Scan(&lst)
	require.NoError(t, err)
	assert.Nil(t, lst)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "heatgrid.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
}

func TestPostgresStore_SaveRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	run := NewRun("paris", 2020, 2, 2)
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.ID, run.City, run.Year, run.Cells, run.Rows, run.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresWithPool(mock)
	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFeatures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"features"}, featureColumns).WillReturnResult(2)

	s := NewPostgresWithPool(mock)
	require.NoError(t, s.SaveFeatures(context.Background(), "run-1", sampleRecords()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFeatures_Empty(t *testing.T) {
	s := NewPostgresWithPool(nil)
	require.NoError(t, s.SaveFeatures(context.Background(), "run-1", nil))
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features_paris_2020.geojson")
	require.NoError(t, WriteGeoJSON(path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	// The geometry-less record is skipped.
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "0", fc.Features[0].Properties["cell_id"])
	assert.InDelta(t, 31.2, fc.Features[0].Properties["LST"].(float64), 1e-9)
	assert.Nil(t, fc.Features[0].Properties["Albedo"])
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "features_paris_2020.csv")
	require.NoError(t, WriteCSV(path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "cell_id")
	assert.Contains(t, lines[0], "LST_anomaly")
	assert.Contains(t, lines[1], "31.2")
}
