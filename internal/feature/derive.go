package feature

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/uhi-lab/heatgrid/internal/imagery"
)

// Derived column names.
const (
	ColBuildingHeight = "BuildingHeight"
	ColLSTAnomaly     = "LST_anomaly"
)

// Season labels.
const (
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonAutumn = "Autumn"
	SeasonWinter = "Winter"
)

// Derive applies every derivation step in order and returns the final
// table. Steps are pure: each takes an immutable input and returns an
// augmented copy, so a failure is attributable to one step.
func Derive(t *Table) (*Table, error) {
	t = DeriveBuildingHeight(t)
	t = NormalizeBuiltSurface(t)
	t = NormalizeWaterFraction(t)
	t = DeriveLSTAnomaly(t)
	return DeriveSeason(t)
}

// DeriveBuildingHeight adds BuildingHeight = BuildingVolume /
// BuiltSurface and drops the volume column, which is an intermediate,
// not a reported output. A nil or zero built surface yields a nil
// height.
func DeriveBuildingHeight(t *Table) *Table {
	out := t.clone()
	for i := range out.Rows {
		volume := out.Rows[i].Values[imagery.BandBuildingVolume]
		surface := out.Rows[i].Values[imagery.BandBuiltSurface]

		var height *float64
		if volume != nil && surface != nil && *surface != 0 {
			h := *volume / *surface
			height = &h
		}
		out.Rows[i].Values[ColBuildingHeight] = height
	}
	out.Columns = append(out.Columns, ColBuildingHeight)
	out.dropColumn(imagery.BandBuildingVolume)
	return out
}

// NormalizeBuiltSurface converts raw built surface from square meters
// to a per-hectare fraction.
func NormalizeBuiltSurface(t *Table) *Table {
	return scaleColumn(t, imagery.BandBuiltSurface, 1.0/10000)
}

// NormalizeWaterFraction converts water occurrence from percent to a
// 0-1 fraction.
func NormalizeWaterFraction(t *Table) *Table {
	return scaleColumn(t, imagery.BandWaterFraction, 1.0/100)
}

func scaleColumn(t *Table, name string, factor float64) *Table {
	out := t.clone()
	for i := range out.Rows {
		if v := out.Rows[i].Values[name]; v != nil {
			scaled := *v * factor
			out.Rows[i].Values[name] = &scaled
		}
	}
	return out
}

// DeriveLSTAnomaly adds LST_anomaly = LST - RuralLST. Rows whose date
// has no rural reference, or whose LST is missing, keep a nil anomaly;
// the raw LST is never substituted.
func DeriveLSTAnomaly(t *Table) *Table {
	out := t.clone()
	for i := range out.Rows {
		lst := out.Rows[i].Values[imagery.BandLST]
		ref := out.Rows[i].Values[ColRuralLST]

		var anomaly *float64
		if lst != nil && ref != nil {
			d := *lst - *ref
			anomaly = &d
		}
		out.Rows[i].Values[ColLSTAnomaly] = anomaly
	}
	out.Columns = append(out.Columns, ColLSTAnomaly)
	return out
}

// DeriveSeason labels every row with the calendar season of its date.
// Any unparsable date aborts the step; a row never silently defaults
// to a season.
func DeriveSeason(t *Table) (*Table, error) {
	out := t.clone()
	for i := range out.Rows {
		date, err := time.Parse("2006-01-02", out.Rows[i].Date)
		if err != nil {
			return nil, eris.Wrapf(err, "feature: unparsable date %q for cell %s", out.Rows[i].Date, out.Rows[i].CellID)
		}
		out.Rows[i].Season = seasonOf(date.Month())
	}
	return out, nil
}

// seasonOf is a total function of the calendar month.
func seasonOf(m time.Month) string {
	switch {
	case m >= time.March && m <= time.May:
		return SeasonSpring
	case m >= time.June && m <= time.August:
		return SeasonSummer
	case m >= time.September && m <= time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}
