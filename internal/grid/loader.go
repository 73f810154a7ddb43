package grid

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// CityFileName returns the canonical grid file name for a place name,
// using the part before the first comma, lowercased.
func CityFileName(placeName string) string {
	city := placeName
	if i := strings.Index(city, ","); i >= 0 {
		city = city[:i]
	}
	city = strings.ToLower(strings.TrimSpace(city))
	return "grid_" + strings.ReplaceAll(city, " ", "_") + ".geojson"
}

// Save writes the grid as a GeoJSON feature collection. Cell ids are
// stored both as the feature id and an "id" property.
func Save(g *Grid, path string) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(g.Cells))}
	for _, c := range g.Cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         c.ID,
			Geometry:   c.Geometry,
			Properties: map[string]interface{}{"id": c.ID},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "grid: marshal feature collection")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "grid: create directory %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "grid: write %s", path)
	}

	zap.L().Info("grid saved",
		zap.String("component", "grid"),
		zap.String("path", path),
		zap.Int("cells", len(g.Cells)),
	)
	return nil
}

// Load reads a grid from a GeoJSON feature collection written by Save
// (or any collection of polygon features carrying an "id" property).
// The srid records the file's reference frame; GeoJSON itself does not
// carry one.
func Load(path string, srid int) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "grid: parse %s", path)
	}

	g := &Grid{Cells: make([]Cell, 0, len(fc.Features)), SRID: srid}
	for i, f := range fc.Features {
		id := f.ID
		if id == "" {
			if v, ok := f.Properties["id"].(string); ok {
				id = v
			}
		}
		if id == "" {
			return nil, eris.Errorf("grid: feature %d in %s has no id", i, path)
		}

		poly, ok := f.Geometry.(*geom.Polygon)
		if !ok {
			return nil, eris.Errorf("grid: feature %q in %s is not a polygon", id, path)
		}
		if srid != 0 {
			poly.SetSRID(srid)
		}
		g.Cells = append(g.Cells, Cell{ID: id, Geometry: poly})
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// ImportBoundary reads a city boundary from a polygon shapefile and
// returns it as a single multipolygon.
func ImportBoundary(shpPath string, srid int) (*geom.MultiPolygon, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	mp := geom.NewMultiPolygon(geom.XY)
	if srid != 0 {
		mp.SetSRID(srid)
	}

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			continue
		}

		for i := int32(0); i < poly.NumParts; i++ {
			start := poly.Parts[i]
			end := int32(len(poly.Points))
			if i+1 < poly.NumParts {
				end = poly.Parts[i+1]
			}

			flat := make([]float64, 0, (end-start)*2)
			for j := start; j < end; j++ {
				flat = append(flat, poly.Points[j].X, poly.Points[j].Y)
			}

			part := geom.NewPolygon(geom.XY)
			if err := part.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				zap.L().Debug("grid: skipping malformed boundary ring",
					zap.Int32("part", i), zap.Error(err))
				continue
			}
			if err := mp.Push(part); err != nil {
				zap.L().Debug("grid: skipping malformed boundary part",
					zap.Int32("part", i), zap.Error(err))
			}
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, eris.Errorf("grid: no polygons in shapefile %s", shpPath)
	}
	return mp, nil
}
