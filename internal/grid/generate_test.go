package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func squareBoundary(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}))
	_ = mp.Push(poly)
	return mp
}

func TestGenerate_CoversSquareBoundary(t *testing.T) {
	g, err := Generate(squareBoundary(0, 0, 5, 5), 1, 3857)
	require.NoError(t, err)

	// A 5x5 boundary tiled at size 1 keeps all 25 interior cells.
	assert.GreaterOrEqual(t, len(g.Cells), 25)
	assert.NoError(t, g.Validate())
	assert.Equal(t, 3857, g.SRID)

	for _, c := range g.Cells {
		b := c.Geometry.Bounds()
		assert.InDelta(t, 1.0, b.Max(0)-b.Min(0), 1e-9)
		assert.InDelta(t, 1.0, b.Max(1)-b.Min(1), 1e-9)
	}
}

func TestGenerate_SequentialIDs(t *testing.T) {
	g, err := Generate(squareBoundary(0, 0, 3, 3), 1, 3857)
	require.NoError(t, err)
	for i, c := range g.Cells {
		assert.Equal(t, i, mustAtoi(t, c.ID))
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(squareBoundary(0, 0, 10, 4), 0.5, 3857)
	require.NoError(t, err)
	b, err := Generate(squareBoundary(0, 0, 10, 4), 0.5, 3857)
	require.NoError(t, err)

	require.Equal(t, len(a.Cells), len(b.Cells))
	for i := range a.Cells {
		assert.Equal(t, a.Cells[i].ID, b.Cells[i].ID)
		assert.Equal(t, a.Cells[i].Geometry.FlatCoords(), b.Cells[i].Geometry.FlatCoords())
	}
}

func TestGenerate_ExcludesCellsOutsideBoundary(t *testing.T) {
	// Boundary occupies the lower-left quarter of a larger extent; the
	// grid must not cover the empty area.
	g, err := Generate(squareBoundary(0, 0, 2, 2), 1, 3857)
	require.NoError(t, err)

	for _, c := range g.Cells {
		b := c.Geometry.Bounds()
		assert.LessOrEqual(t, b.Min(0), 2.0)
		assert.LessOrEqual(t, b.Min(1), 2.0)
	}
}

func TestGenerate_InvalidInputs(t *testing.T) {
	_, err := Generate(nil, 1, 3857)
	assert.Error(t, err)

	_, err = Generate(geom.NewMultiPolygon(geom.XY), 1, 3857)
	assert.Error(t, err)

	_, err = Generate(squareBoundary(0, 0, 5, 5), 0, 3857)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell size")
}

func TestMultiPolygonContains_Holes(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygon(geom.XY)
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
	}))
	_ = poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		4, 4, 6, 4, 6, 6, 4, 6, 4, 4,
	}))
	_ = mp.Push(poly)

	assert.True(t, multiPolygonContains(mp, geom.Coord{1, 1}))
	assert.False(t, multiPolygonContains(mp, geom.Coord{5, 5}), "point in hole")
	assert.False(t, multiPolygonContains(mp, geom.Coord{20, 20}))
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, ch := range s {
		require.True(t, ch >= '0' && ch <= '9', "id %q not numeric", s)
		n = n*10 + int(ch-'0')
	}
	return n
}
