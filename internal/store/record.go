// Package store persists finalized feature tables: GeoJSON and CSV
// exports plus SQLite and Postgres databases with per-run metadata.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"

	"github.com/uhi-lab/heatgrid/internal/feature"
	"github.com/uhi-lab/heatgrid/internal/imagery"
)

// FeatureRecord is one finalized feature row with the pipeline's fixed
// output schema. Nil pointers are missing values and serialize as
// empty/NULL.
type FeatureRecord struct {
	CellID         string        `csv:"cell_id"`
	Date           string        `csv:"date"`
	LST            *float64      `csv:"LST"`
	NDVI           *float64      `csv:"NDVI"`
	Albedo         *float64      `csv:"Albedo"`
	BuiltSurface   *float64      `csv:"BuiltSurface"`
	BuildingHeight *float64      `csv:"BuildingHeight"`
	Population     *float64      `csv:"Population"`
	WaterFraction  *float64      `csv:"WaterFraction"`
	DistToWater    *float64      `csv:"DistToWater"`
	Elevation      *float64      `csv:"Elevation"`
	RuralLST       *float64      `csv:"RuralLST"`
	LSTAnomaly     *float64      `csv:"LST_anomaly"`
	Season         string        `csv:"season"`
	Geometry       *geom.Polygon `csv:"-"`
}

// FromTable flattens a derived feature table into output records.
func FromTable(t *feature.Table) []FeatureRecord {
	recs := make([]FeatureRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		recs = append(recs, FeatureRecord{
			CellID:         row.CellID,
			Date:           row.Date,
			LST:            row.Values[imagery.BandLST],
			NDVI:           row.Values[imagery.BandNDVI],
			Albedo:         row.Values[imagery.BandAlbedo],
			BuiltSurface:   row.Values[imagery.BandBuiltSurface],
			BuildingHeight: row.Values[feature.ColBuildingHeight],
			Population:     row.Values[imagery.BandPopulation],
			WaterFraction:  row.Values[imagery.BandWaterFraction],
			DistToWater:    row.Values[imagery.BandDistToWater],
			Elevation:      row.Values[imagery.BandElevation],
			RuralLST:       row.Values[feature.ColRuralLST],
			LSTAnomaly:     row.Values[feature.ColLSTAnomaly],
			Season:         row.Season,
			Geometry:       row.Geometry,
		})
	}
	return recs
}

// Run records one pipeline execution.
type Run struct {
	ID        string
	City      string
	Year      int
	Cells     int
	Rows      int
	CreatedAt time.Time
}

// NewRun creates run metadata with a fresh id.
func NewRun(city string, year, cells, rows int) Run {
	return Run{
		ID:        uuid.New().String(),
		City:      city,
		Year:      year,
		Cells:     cells,
		Rows:      rows,
		CreatedAt: time.Now().UTC(),
	}
}
