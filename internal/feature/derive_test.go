package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhi-lab/heatgrid/internal/imagery"
)

func oneRowTable(date string, values map[string]*float64) *Table {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	return &Table{
		Columns: cols,
		Rows:    []Row{{CellID: "0", Date: date, Values: values}},
	}
}

func TestDeriveBuildingHeight(t *testing.T) {
	in := oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandBuildingVolume: fp(200),
		imagery.BandBuiltSurface:   fp(50),
	})

	out := DeriveBuildingHeight(in)
	h := out.Rows[0].Values[ColBuildingHeight]
	require.NotNil(t, h)
	assert.InDelta(t, 4.0, *h, 1e-9)

	// The volume intermediate is dropped from schema and rows.
	assert.NotContains(t, out.Columns, imagery.BandBuildingVolume)
	assert.NotContains(t, out.Rows[0].Values, imagery.BandBuildingVolume)
	assert.Contains(t, out.Columns, ColBuildingHeight)

	// Input untouched.
	assert.Contains(t, in.Rows[0].Values, imagery.BandBuildingVolume)
	assert.NotContains(t, in.Rows[0].Values, ColBuildingHeight)
}

func TestDeriveBuildingHeight_ZeroOrNilSurface(t *testing.T) {
	zero := DeriveBuildingHeight(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandBuildingVolume: fp(200),
		imagery.BandBuiltSurface:   fp(0),
	}))
	assert.Nil(t, zero.Rows[0].Values[ColBuildingHeight], "division by zero must yield nil")

	missing := DeriveBuildingHeight(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandBuildingVolume: fp(200),
		imagery.BandBuiltSurface:   nil,
	}))
	assert.Nil(t, missing.Rows[0].Values[ColBuildingHeight])
}

func TestNormalizeBuiltSurface(t *testing.T) {
	out := NormalizeBuiltSurface(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandBuiltSurface: fp(20000),
	}))
	v := out.Rows[0].Values[imagery.BandBuiltSurface]
	require.NotNil(t, v)
	assert.InDelta(t, 2.0, *v, 1e-9)

	nilOut := NormalizeBuiltSurface(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandBuiltSurface: nil,
	}))
	assert.Nil(t, nilOut.Rows[0].Values[imagery.BandBuiltSurface])
}

func TestNormalizeWaterFraction(t *testing.T) {
	out := NormalizeWaterFraction(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandWaterFraction: fp(75),
	}))
	v := out.Rows[0].Values[imagery.BandWaterFraction]
	require.NotNil(t, v)
	assert.InDelta(t, 0.75, *v, 1e-9)
}

func TestDeriveLSTAnomaly_RoundTrip(t *testing.T) {
	// Urban LST = rural reference + delta for every cell on a date in
	// the baseline: the anomaly must equal delta exactly.
	const ref, delta = 24.0, 3.5
	in := &Table{
		Columns: []string{imagery.BandLST, ColRuralLST},
		Rows: []Row{
			{CellID: "0", Date: "2020-07-12", Values: map[string]*float64{
				imagery.BandLST: fp(ref + delta), ColRuralLST: fp(ref),
			}},
			{CellID: "1", Date: "2020-07-12", Values: map[string]*float64{
				imagery.BandLST: fp(ref + delta), ColRuralLST: fp(ref),
			}},
		},
	}

	out := DeriveLSTAnomaly(in)
	for _, row := range out.Rows {
		a := row.Values[ColLSTAnomaly]
		require.NotNil(t, a, "cell %s", row.CellID)
		assert.InDelta(t, delta, *a, 1e-9)
	}
}

func TestDeriveLSTAnomaly_NoBaselineDate(t *testing.T) {
	out := DeriveLSTAnomaly(oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandLST: fp(30),
		ColRuralLST:     nil,
	}))
	a := out.Rows[0].Values[ColLSTAnomaly]
	assert.Nil(t, a, "anomaly must stay undefined, not default to raw LST or zero")
}

func TestDeriveSeason(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2020-04-15", SeasonSpring},
		{"2020-07-01", SeasonSummer},
		{"2020-10-31", SeasonAutumn},
		{"2020-01-20", SeasonWinter},
		{"2020-12-25", SeasonWinter},
		{"2020-03-01", SeasonSpring},
		{"2020-11-30", SeasonAutumn},
	}
	for _, tc := range cases {
		out, err := DeriveSeason(oneRowTable(tc.date, map[string]*float64{}))
		require.NoError(t, err, tc.date)
		assert.Equal(t, tc.want, out.Rows[0].Season, tc.date)
	}
}

func TestDeriveSeason_TotalOverMonths(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		assert.NotEmpty(t, seasonOf(m))
	}
}

func TestDeriveSeason_UnparsableDateAborts(t *testing.T) {
	_, err := DeriveSeason(oneRowTable("12/07/2020", map[string]*float64{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparsable date")
	assert.Contains(t, err.Error(), "cell 0")
}

func TestDerive_FullPipeline(t *testing.T) {
	in := oneRowTable("2020-07-12", map[string]*float64{
		imagery.BandLST:            fp(30),
		imagery.BandBuildingVolume: fp(200),
		imagery.BandBuiltSurface:   fp(50),
		imagery.BandWaterFraction:  fp(75),
		ColRuralLST:                fp(26),
	})

	out, err := Derive(in)
	require.NoError(t, err)
	row := out.Rows[0]

	require.NotNil(t, row.Values[ColBuildingHeight])
	assert.InDelta(t, 4.0, *row.Values[ColBuildingHeight], 1e-9)
	// Built surface is normalized after the height computation uses
	// the raw value.
	assert.InDelta(t, 50.0/10000, *row.Values[imagery.BandBuiltSurface], 1e-9)
	assert.InDelta(t, 0.75, *row.Values[imagery.BandWaterFraction], 1e-9)
	assert.InDelta(t, 4.0, *row.Values[ColLSTAnomaly], 1e-9)
	assert.Equal(t, SeasonSummer, row.Season)
	assert.NotContains(t, out.Columns, imagery.BandBuildingVolume)
}

func TestDerive_AbortsOnBadDate(t *testing.T) {
	in := oneRowTable("not-a-date", map[string]*float64{imagery.BandLST: fp(30)})
	_, err := Derive(in)
	assert.Error(t, err)
}
