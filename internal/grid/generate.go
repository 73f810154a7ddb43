package grid

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Generate tiles the boundary's bounding box with square cells of
// cellSize units (meters in a projected frame) and keeps the cells that
// intersect the boundary. Cells are emitted column by column (x outer,
// y inner) and receive sequential string ids starting at "0", so the
// same boundary and cell size always produce the same grid.
func Generate(boundary *geom.MultiPolygon, cellSize float64, srid int) (*Grid, error) {
	if boundary == nil || boundary.NumPolygons() == 0 {
		return nil, eris.New("grid: boundary is empty")
	}
	if cellSize <= 0 {
		return nil, eris.Errorf("grid: cell size must be positive, got %v", cellSize)
	}

	b := boundary.Bounds()
	minX, minY := b.Min(0), b.Min(1)
	maxX, maxY := b.Max(0), b.Max(1)

	var cells []Cell
	id := 0
	for x := minX; x < maxX; x += cellSize {
		for y := minY; y < maxY; y += cellSize {
			cell := boxPolygon(x, y, x+cellSize, y+cellSize, srid)
			if !cellIntersectsBoundary(cell, boundary) {
				continue
			}
			cells = append(cells, Cell{ID: strconv.Itoa(id), Geometry: cell})
			id++
		}
	}

	zap.L().Info("grid generated",
		zap.String("component", "grid"),
		zap.Int("cells", len(cells)),
		zap.Float64("cell_size", cellSize),
		zap.Int("srid", srid),
	)

	return &Grid{Cells: cells, SRID: srid}, nil
}

// cellIntersectsBoundary reports whether a rectangular cell intersects
// the boundary. A cell counts as intersecting when one of its corners
// or its center lies inside the boundary, or a boundary vertex lies
// inside the cell. At cell sizes far below the boundary extent this is
// equivalent to exact polygon intersection.
func cellIntersectsBoundary(cell *geom.Polygon, boundary *geom.MultiPolygon) bool {
	cb := cell.Bounds()
	minX, minY := cb.Min(0), cb.Min(1)
	maxX, maxY := cb.Max(0), cb.Max(1)

	if !cb.Overlaps(geom.XY, boundary.Bounds()) {
		return false
	}

	probes := []geom.Coord{
		{minX, minY},
		{maxX, minY},
		{maxX, maxY},
		{minX, maxY},
		{(minX + maxX) / 2, (minY + maxY) / 2},
	}
	for _, p := range probes {
		if multiPolygonContains(boundary, p) {
			return true
		}
	}

	// Boundary vertex falling inside the cell (cell smaller than a
	// boundary concavity).
	for i := 0; i < boundary.NumPolygons(); i++ {
		ring := boundary.Polygon(i).LinearRing(0)
		flat := ring.FlatCoords()
		stride := ring.Stride()
		for j := 0; j+1 < len(flat); j += stride {
			px, py := flat[j], flat[j+1]
			if px >= minX && px <= maxX && py >= minY && py <= maxY {
				return true
			}
		}
	}

	return false
}

// multiPolygonContains reports whether p lies inside the multipolygon,
// honoring interior rings as holes.
func multiPolygonContains(mp *geom.MultiPolygon, p geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
