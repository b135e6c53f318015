// Package tabular reads and writes the engine's tables as delimited text.
// Columns are located by header name, not position, so upstream exports can
// carry extra columns freely. The engine itself never touches files; this
// adapter is the collaborator that hands it typed rows.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"arealloc/core/agegroup"
	"arealloc/core/alloc"
	"arealloc/core/types"
	"arealloc/core/validate"
	"arealloc/internal/errors"
)

// header maps lower-cased column names to positions
type header map[string]int

func readHeader(r *csv.Reader, path string) (header, error) {
	record, err := r.Read()
	if err != nil {
		return nil, errors.Parsing("failed to read header of "+path, err)
	}
	h := make(header, len(record))
	for i, name := range record {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h, nil
}

func (h header) col(record []string, name string) (string, bool) {
	i, ok := h[name]
	if !ok || i >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[i]), true
}

func (h header) require(path string, names ...string) error {
	for _, name := range names {
		if _, ok := h[name]; !ok {
			return errors.Newf(errors.TypeParsing, "%s is missing required column %q", path, name)
		}
	}
	return nil
}

func parseValue(path string, line int, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.TypeParsing, err, "%s line %d: bad numeric value %q", path, line, s)
	}
	return d, nil
}

// LoadUnits reads a unit table. Required columns: unit_id, value.
// Optional columns: age_group, sex, class.
//
// Sex codes are normalized (W becomes F); rows whose sex is neither M nor
// F, such as totals rows, are dropped, as are rows whose age label maps to
// no band. Numeric columns that fail to parse are errors, not drops.
func LoadUnits(path string) ([]types.UnitRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r, path)
	if err != nil {
		return nil, err
	}
	if err := h.require(path, "unit_id", "value"); err != nil {
		return nil, err
	}

	var rows []types.UnitRow
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "%s line %d", path, line)
		}

		unit, _ := h.col(record, "unit_id")
		rawValue, _ := h.col(record, "value")
		value, err := parseValue(path, line, rawValue)
		if err != nil {
			return nil, err
		}

		category, ok := readCategory(h, record)
		if !ok {
			continue
		}
		rows = append(rows, types.UnitRow{
			Unit:     types.UnitID(unit),
			Category: category,
			Value:    value,
		})
	}
	return rows, nil
}

// readCategory assembles the category tuple from optional columns.
// Returns false for rows that must be dropped.
func readCategory(h header, record []string) (types.Category, bool) {
	var c types.Category
	if age, ok := h.col(record, "age_group"); ok && age != "" {
		c.AgeGroup = agegroup.FromLabel(age)
		if c.AgeGroup == agegroup.Unknown {
			return c, false
		}
	}
	if sex, ok := h.col(record, "sex"); ok && sex != "" {
		normalized, ok := agegroup.NormalizeSex(sex)
		if !ok {
			return c, false
		}
		c.Sex = normalized
	}
	if class, ok := h.col(record, "class"); ok {
		c.Class = class
	}
	return c, true
}

// LoadMemberships reads a membership table. Required columns: unit_id,
// zone_id. The weight column is optional; absent or empty weights mean 1.
func LoadMemberships(path string) ([]types.Membership, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r, path)
	if err != nil {
		return nil, err
	}
	if err := h.require(path, "unit_id", "zone_id"); err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	var rows []types.Membership
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "%s line %d", path, line)
		}

		unit, _ := h.col(record, "unit_id")
		zone, _ := h.col(record, "zone_id")
		weight := one
		if raw, ok := h.col(record, "weight"); ok && raw != "" {
			weight, err = parseValue(path, line, raw)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, types.Membership{
			Unit:   types.UnitID(unit),
			Zone:   types.ZoneID(zone),
			Weight: weight,
		})
	}
	return rows, nil
}

// LoadTargets reads a target-total table. Required columns: zone_id, year,
// value. Optional: age_group, sex, class. Totals accumulate per
// (stratum, year), so single-year-of-age rows sum into their band
// automatically. Rows dropped by category normalization (totals rows,
// unknown ages) are excluded from the table.
func LoadTargets(path string) (*alloc.TargetTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r, path)
	if err != nil {
		return nil, err
	}
	if err := h.require(path, "zone_id", "year", "value"); err != nil {
		return nil, err
	}

	table := alloc.NewTargetTable()
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "%s line %d", path, line)
		}

		zone, _ := h.col(record, "zone_id")
		rawYear, _ := h.col(record, "year")
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "%s line %d: bad year %q", path, line, rawYear)
		}
		rawValue, _ := h.col(record, "value")
		value, err := parseValue(path, line, rawValue)
		if err != nil {
			return nil, err
		}

		category, ok := readCategory(h, record)
		if !ok {
			continue
		}

		table.Add(types.TargetKey{
			Stratum: types.StratumKey{Zone: types.ZoneID(zone), Category: category},
			Year:    year,
		}, value)
	}
	return table, nil
}

// LoadBaseline reads an external baseline-total table. Required columns:
// zone_id, value. Optional: age_group, sex, class.
func LoadBaseline(path string) (map[types.StratumKey]decimal.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	h, err := readHeader(r, path)
	if err != nil {
		return nil, err
	}
	if err := h.require(path, "zone_id", "value"); err != nil {
		return nil, err
	}

	baseline := make(map[types.StratumKey]decimal.Decimal)
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "%s line %d", path, line)
		}

		zone, _ := h.col(record, "zone_id")
		rawValue, _ := h.col(record, "value")
		value, err := parseValue(path, line, rawValue)
		if err != nil {
			return nil, err
		}
		category, ok := readCategory(h, record)
		if !ok {
			continue
		}

		key := types.StratumKey{Zone: types.ZoneID(zone), Category: category}
		if prev, dup := baseline[key]; dup {
			return nil, errors.Integrityf("%s line %d: duplicate baseline for stratum %s (%s and %s)",
				path, line, key, prev, value)
		}
		baseline[key] = value
	}
	return baseline, nil
}

// WriteAllocations writes allocated rows as CSV
func WriteAllocations(w io.Writer, rows []types.AllocatedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unit_id", "zone_id", "age_group", "sex", "class", "year", "share", "allocated_value"}); err != nil {
		return err
	}
	for _, row := range rows {
		year := ""
		if row.Year != 0 {
			year = strconv.Itoa(row.Year)
		}
		err := cw.Write([]string{
			string(row.Unit), string(row.Zone),
			row.Category.AgeGroup, row.Category.Sex, row.Category.Class,
			year, row.Share.String(), row.Value.String(),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes a validation report as CSV
func WriteReport(w io.Writer, report *validate.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"zone_id", "age_group", "sex", "class", "year", "expected_total", "actual_total", "discrepancy", "within_tolerance"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		c := row.Key.Stratum.Category
		err := cw.Write([]string{
			string(row.Key.Stratum.Zone),
			c.AgeGroup, c.Sex, c.Class,
			strconv.Itoa(row.Key.Year),
			row.Expected.String(), row.Actual.String(),
			row.Discrepancy.String(),
			fmt.Sprintf("%v", row.WithinTolerance),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
