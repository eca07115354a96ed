// Package csvimport parses per-station plan tables uploaded by an
// operator: one row per reactor, carrying a temperature and vessel mass
// setpoint plus a variable-length list of (time_min, rate_ul_min) pairs
// that becomes that station's channel plan. Grounded on the original
// dispensing recipe's dispense_rate_ul_min/dispense_time_min pairing
// (original_source/apps/dispensing/dispensing/processes/CoDispense.py);
// no third-party CSV library appears anywhere in the retrieved corpus,
// so this uses the stdlib encoding/csv (see DESIGN.md).
package csvimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fluidctl/internal/station"
)

// Cell is a best-effort coerced table value: a parsed float when the raw
// text looks numeric, otherwise the raw string untouched.
type Cell struct {
	Raw     string
	Float   float64
	IsFloat bool
}

func (c Cell) String() string {
	if c.IsFloat {
		return strconv.FormatFloat(c.Float, 'f', -1, 64)
	}
	return c.Raw
}

func coerce(raw string) Cell {
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Cell{Raw: raw}
	}
	return Cell{Raw: raw, Float: f, IsFloat: true}
}

// Row is one best-effort coerced CSV row, independent of any particular
// table schema.
type Row []Cell

// ReadTable parses r as a headerless CSV table, coercing every cell.
// A short final record (ragged CSV, common in hand-edited recipe
// spreadsheets) is kept as-is rather than rejected.
func ReadTable(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(rec))
		for i, raw := range rec {
			row[i] = coerce(raw)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// StationPlan is one reactor's plan table row, decoded into the shape
// internal/station expects.
type StationPlan struct {
	ReactorIndex int
	TemperatureC float64
	VesselMassG  float64
	Steps        []station.PlanStep
}

// minPlanColumns is reactor_index, temperature_c, vessel_mass_g, plus at
// least one (time_min, rate_ul_min) pair.
const minPlanColumns = 5

// ParseStationPlans reads a plan table with columns
// (reactor_index, temperature_c, vessel_mass_g, time_min, rate_ul_min, time_min, rate_ul_min, ...)
// and returns one StationPlan per row. Rows are best-effort: a row with
// too few columns, or whose leading three columns don't coerce to a
// number, is skipped rather than failing the whole import (an operator's
// hand-edited sheet routinely carries a trailing blank line or a comment
// row).
func ParseStationPlans(r io.Reader) ([]StationPlan, error) {
	rows, err := ReadTable(r)
	if err != nil {
		return nil, err
	}

	plans := make([]StationPlan, 0, len(rows))
	for _, row := range rows {
		if len(row) < minPlanColumns {
			continue
		}
		if !row[0].IsFloat || !row[1].IsFloat || !row[2].IsFloat {
			continue
		}

		plan := StationPlan{
			ReactorIndex: int(row[0].Float),
			TemperatureC: row[1].Float,
			VesselMassG:  row[2].Float,
		}

		pairCols := row[3:]
		for i := 0; i+1 < len(pairCols); i += 2 {
			timeCell, rateCell := pairCols[i], pairCols[i+1]
			if !timeCell.IsFloat || !rateCell.IsFloat {
				continue
			}
			plan.Steps = append(plan.Steps, station.PlanStep{
				RateUlMin: rateCell.Float,
				Minutes:   timeCell.Float,
			})
		}

		plans = append(plans, plan)
	}
	return plans, nil
}
