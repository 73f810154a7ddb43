// Package feature merges zonal aggregates into one wide cell-date
// table and derives the modeling columns.
package feature

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/baseline"
	"github.com/uhi-lab/heatgrid/internal/zonal"
)

// ColRuralLST is the per-date rural reference column attached by
// Assemble.
const ColRuralLST = "RuralLST"

// Row is one cell observed on one date. Values holds every feature
// column; nil marks a missing value. Season is filled by the derive
// step.
type Row struct {
	CellID   string
	Date     string
	Geometry *geom.Polygon
	Values   map[string]*float64
	Season   string
}

// Table is the assembled feature table: one row per (cell, date) of
// the variable layer, with static values repeated across each cell's
// dates.
type Table struct {
	Columns []string
	Rows    []Row
}

// clone returns a deep copy so derive steps can transform tables
// without mutating their input.
func (t *Table) clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		values := make(map[string]*float64, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		out.Rows[i] = Row{
			CellID:   r.CellID,
			Date:     r.Date,
			Geometry: r.Geometry,
			Values:   values,
			Season:   r.Season,
		}
	}
	return out
}

// dropColumn removes a column from the schema and from every row.
func (t *Table) dropColumn(name string) {
	cols := t.Columns[:0]
	for _, c := range t.Columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	t.Columns = cols
	for i := range t.Rows {
		delete(t.Rows[i].Values, name)
	}
}

// Assemble merges the time-varying table, each static-layer table and
// the rural baseline into one feature table.
//
// Static tables join on cell id only (their geometry and date are
// discarded); a static table with more than one row per cell id is a
// caller error and aborts the merge. The baseline joins on date; rows
// whose date has no baseline entry get a nil rural reference. The
// output has exactly one row per record of the variable table.
func Assemble(variable *zonal.Table, statics []*zonal.Table, rural baseline.Table) (*Table, error) {
	if variable == nil {
		return nil, eris.New("feature: variable table is required")
	}

	table := &Table{
		Columns: append([]string(nil), variable.Bands...),
		Rows:    make([]Row, 0, len(variable.Records)),
	}
	for _, rec := range variable.Records {
		values := make(map[string]*float64, len(rec.Bands)+8)
		for _, band := range variable.Bands {
			values[band] = rec.Bands[band]
		}
		table.Rows = append(table.Rows, Row{
			CellID:   rec.CellID,
			Date:     rec.Date,
			Geometry: rec.Geometry,
			Values:   values,
		})
	}

	for _, static := range statics {
		byCell := make(map[string]zonal.Record, len(static.Records))
		for _, rec := range static.Records {
			if _, dup := byCell[rec.CellID]; dup {
				return nil, eris.Errorf("feature: static layer %s has duplicate cell id %s", static.Layer, rec.CellID)
			}
			byCell[rec.CellID] = rec
		}

		table.Columns = append(table.Columns, static.Bands...)
		for i := range table.Rows {
			rec, ok := byCell[table.Rows[i].CellID]
			for _, band := range static.Bands {
				if !ok {
					// Left join: the row survives with nil statics.
					table.Rows[i].Values[band] = nil
					continue
				}
				table.Rows[i].Values[band] = rec.Bands[band]
			}
		}
	}

	table.Columns = append(table.Columns, ColRuralLST)
	for i := range table.Rows {
		if v, ok := rural.Reference(table.Rows[i].Date); ok {
			ref := v
			table.Rows[i].Values[ColRuralLST] = &ref
		} else {
			table.Rows[i].Values[ColRuralLST] = nil
		}
	}

	zap.L().Info("feature table assembled",
		zap.String("component", "feature"),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Columns)),
		zap.Int("static_layers", len(statics)),
		zap.Int("baseline_dates", len(rural)),
	)
	return table, nil
}
