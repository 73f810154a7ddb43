package store

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// WriteGeoJSON exports feature records as a GeoJSON FeatureCollection.
// Records without geometry are skipped.
func WriteGeoJSON(path string, recs []FeatureRecord) error {
	fc := &geojson.FeatureCollection{}
	for _, r := range recs {
		if r.Geometry == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.CellID,
			Geometry:   r.Geometry,
			Properties: r.properties(),
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "store: marshal feature collection")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: create output dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "store: write %s", path)
	}
	return nil
}

// properties flattens a record into GeoJSON feature properties. Nil
// measurements serialize as JSON null.
func (r FeatureRecord) properties() map[string]any {
	return map[string]any{
		"cell_id":        r.CellID,
		"date":           r.Date,
		"LST":            r.LST,
		"NDVI":           r.NDVI,
		"Albedo":         r.Albedo,
		"BuiltSurface":   r.BuiltSurface,
		"BuildingHeight": r.BuildingHeight,
		"Population":     r.Population,
		"WaterFraction":  r.WaterFraction,
		"DistToWater":    r.DistToWater,
		"Elevation":      r.Elevation,
		"RuralLST":       r.RuralLST,
		"LST_anomaly":    r.LSTAnomaly,
		"season":         r.Season,
	}
}
