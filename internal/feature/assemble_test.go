package feature

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/uhi-lab/heatgrid/internal/baseline"
	"github.com/uhi-lab/heatgrid/internal/imagery"
	"github.com/uhi-lab/heatgrid/internal/zonal"
)

func fp(v float64) *float64 { return &v }

func cellGeom(i int) *geom.Polygon {
	x := float64(i)
	flat := []float64{x, 0, x + 1, 0, x + 1, 1, x, 1, x, 0}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// variableTable builds an LST/NDVI table with one record per
// (cell, date) pair.
func variableTable(cells int, dates []string) *zonal.Table {
	t := &zonal.Table{
		Layer: "landsat_surface",
		Bands: []string{imagery.BandLST, imagery.BandNDVI},
	}
	for _, date := range dates {
		for i := 0; i < cells; i++ {
			t.Records = append(t.Records, zonal.Record{
				CellID:   fmt.Sprintf("%d", i),
				Date:     date,
				Geometry: cellGeom(i),
				Bands: map[string]*float64{
					imagery.BandLST:  fp(20 + float64(i)),
					imagery.BandNDVI: fp(0.5),
				},
			})
		}
	}
	return t
}

func staticTable(layer, band string, values map[string]*float64) *zonal.Table {
	t := &zonal.Table{Layer: layer, Bands: []string{band}}
	for id, v := range values {
		t.Records = append(t.Records, zonal.Record{
			CellID:   id,
			Geometry: cellGeom(0),
			Bands:    map[string]*float64{band: v},
		})
	}
	return t
}

func TestAssemble_RowCountPreserved(t *testing.T) {
	variable := variableTable(3, []string{"2020-07-12"}) // 3 rows
	static := staticTable("elevation", imagery.BandElevation, map[string]*float64{
		"0": fp(100), "1": fp(120), // only 2 of 3 cells present
	})
	rural := baseline.Table{"2020-07-12": 25}

	table, err := Assemble(variable, []*zonal.Table{static}, rural)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3, "left joins must never drop variable rows")
}

func TestAssemble_StaticValuesRepeatAcrossDates(t *testing.T) {
	variable := variableTable(2, []string{"2020-04-01", "2020-07-12"})
	static := staticTable("elevation", imagery.BandElevation, map[string]*float64{
		"0": fp(100), "1": fp(150),
	})

	table, err := Assemble(variable, []*zonal.Table{static}, baseline.Table{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)

	for _, row := range table.Rows {
		v := row.Values[imagery.BandElevation]
		require.NotNil(t, v, "cell %s date %s", row.CellID, row.Date)
		if row.CellID == "0" {
			assert.InDelta(t, 100, *v, 1e-9)
		} else {
			assert.InDelta(t, 150, *v, 1e-9)
		}
	}
}

func TestAssemble_MissingStaticCellIsNil(t *testing.T) {
	variable := variableTable(2, []string{"2020-07-12"})
	static := staticTable("elevation", imagery.BandElevation, map[string]*float64{"0": fp(100)})

	table, err := Assemble(variable, []*zonal.Table{static}, baseline.Table{})
	require.NoError(t, err)

	for _, row := range table.Rows {
		if row.CellID == "1" {
			assert.Nil(t, row.Values[imagery.BandElevation])
		}
	}
}

func TestAssemble_DuplicateStaticCellAborts(t *testing.T) {
	variable := variableTable(1, []string{"2020-07-12"})
	dup := &zonal.Table{
		Layer: "elevation",
		Bands: []string{imagery.BandElevation},
		Records: []zonal.Record{
			{CellID: "0", Bands: map[string]*float64{imagery.BandElevation: fp(1)}},
			{CellID: "0", Bands: map[string]*float64{imagery.BandElevation: fp(2)}},
		},
	}

	_, err := Assemble(variable, []*zonal.Table{dup}, baseline.Table{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate cell id 0")
	assert.Contains(t, err.Error(), "elevation")
}

func TestAssemble_BaselineJoinOnDate(t *testing.T) {
	variable := variableTable(2, []string{"2020-04-01", "2020-07-12"})
	rural := baseline.Table{"2020-07-12": 29.5} // 2020-04-01 absent

	table, err := Assemble(variable, nil, rural)
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)
	assert.Contains(t, table.Columns, ColRuralLST)

	for _, row := range table.Rows {
		ref := row.Values[ColRuralLST]
		if row.Date == "2020-07-12" {
			require.NotNil(t, ref)
			assert.InDelta(t, 29.5, *ref, 1e-9)
		} else {
			assert.Nil(t, ref, "date without baseline entry must be nil")
		}
	}
}

func TestAssemble_RowCountMatchesVariableTable(t *testing.T) {
	// 3-row variable table + 2-distinct-cell static + 1-date baseline
	// yields exactly 3 rows.
	variable := variableTable(3, []string{"2020-07-12"})
	static := staticTable("population", imagery.BandPopulation, map[string]*float64{
		"0": fp(10), "1": fp(20),
	})
	rural := baseline.Table{"2020-07-12": 25}

	table, err := Assemble(variable, []*zonal.Table{static}, rural)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
}

func TestAssemble_NilVariable(t *testing.T) {
	_, err := Assemble(nil, nil, baseline.Table{})
	assert.Error(t, err)
}
