// Package grid models the city analysis grid: square polygon cells with
// stable ids, partitioned into query-size-bounded chunks for the
// imagery backend.
package grid

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Cell is one grid cell. The id is assigned when the grid is built and
// never reused; the geometry stays in the grid's reference frame for
// the whole run.
type Cell struct {
	ID       string
	Geometry *geom.Polygon
}

// Grid is an ordered sequence of cells sharing one reference frame.
type Grid struct {
	Cells []Cell
	SRID  int
}

// Validate checks that every cell has a non-empty, unique id and a
// geometry.
func (g *Grid) Validate() error {
	seen := make(map[string]struct{}, len(g.Cells))
	for i, c := range g.Cells {
		if c.ID == "" {
			return eris.Errorf("grid: cell %d has empty id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return eris.Errorf("grid: duplicate cell id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Geometry == nil {
			return eris.Errorf("grid: cell %q has no geometry", c.ID)
		}
	}
	return nil
}

// Bounds returns the grid's bounding box as (minX, minY, maxX, maxY).
func (g *Grid) Bounds() (float64, float64, float64, float64, error) {
	if len(g.Cells) == 0 {
		return 0, 0, 0, 0, eris.New("grid: empty grid has no bounds")
	}
	b := geom.NewBounds(geom.XY)
	for _, c := range g.Cells {
		b.Extend(c.Geometry)
	}
	return b.Min(0), b.Min(1), b.Max(0), b.Max(1), nil
}

// Footprint returns the union of all cell bounding boxes as a single
// rectangle polygon. It is a cheap cover of the urban extent used for
// scene filtering, where an exact union is unnecessary.
func (g *Grid) Footprint() (*geom.Polygon, error) {
	minX, minY, maxX, maxY, err := g.Bounds()
	if err != nil {
		return nil, err
	}
	return boxPolygon(minX, minY, maxX, maxY, g.SRID), nil
}

// boxPolygon builds an axis-aligned rectangle polygon.
func boxPolygon(minX, minY, maxX, maxY float64, srid int) *geom.Polygon {
	flat := []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}
	p := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	if srid != 0 {
		p.SetSRID(srid)
	}
	return p
}
