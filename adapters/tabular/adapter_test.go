package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"arealloc/core/types"
	"arealloc/core/validate"
	"arealloc/internal/errors"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.TrimLeft(body, "\n")), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// TestLoadUnits tests unit rows with category normalization
func TestLoadUnits(t *testing.T) {
	path := writeCSV(t, "units.csv", `
unit_id,age_group,sex,value,extra
35180001,0-17,M,120,ignored
35180001,37,W,80,ignored
35180002,0-17,T,999,ignored
35180003,total,M,999,ignored
`)

	rows, err := LoadUnits(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The totals row (sex T) and the unbandable age row are dropped.
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Category.AgeGroup != "0-17" || rows[0].Category.Sex != "M" {
		t.Errorf("first row category %+v", rows[0].Category)
	}
	// W normalizes to F, single year 37 bands to 18-44.
	if rows[1].Category.AgeGroup != "18-44" || rows[1].Category.Sex != "F" {
		t.Errorf("second row category %+v", rows[1].Category)
	}
	if !rows[1].Value.Equal(dec("80")) {
		t.Errorf("second row value %s, want 80", rows[1].Value)
	}
}

// TestLoadUnitsErrors tests header and value failures
func TestLoadUnitsErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType errors.Type
	}{
		{
			name:     "missing required column",
			body:     "unit_id,population\nA,10\n",
			wantType: errors.TypeParsing,
		},
		{
			name:     "bad numeric value",
			body:     "unit_id,value\nA,ten\n",
			wantType: errors.TypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, "units.csv", tt.body)
			_, err := LoadUnits(path)
			if !errors.IsType(err, tt.wantType) {
				t.Fatalf("expected %s, got %v", tt.wantType, err)
			}
		})
	}
}

// TestLoadMemberships tests the weight default
func TestLoadMemberships(t *testing.T) {
	path := writeCSV(t, "membership.csv", `
unit_id,zone_id,weight
A,Z1,0.125
A,Z2,0.875
B,Z1,
`)

	rows, err := LoadMemberships(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[0].Weight.Equal(dec("0.125")) {
		t.Errorf("weight %s, want 0.125", rows[0].Weight)
	}
	// Empty weight defaults to 1.
	if !rows[2].Weight.Equal(dec("1")) {
		t.Errorf("defaulted weight %s, want 1", rows[2].Weight)
	}
}

// TestLoadTargetsBandsSingleYears tests accumulation into bands
func TestLoadTargetsBandsSingleYears(t *testing.T) {
	path := writeCSV(t, "targets.csv", `
zone_id,year,age_group,sex,value
Z1,2030,16,M,10
Z1,2030,17,M,20
Z1,2030,18,M,30
Z1,2030,17,T,999
`)

	table, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	juvenile := types.TargetKey{
		Stratum: types.StratumKey{Zone: "Z1", Category: types.Category{AgeGroup: "0-17", Sex: "M"}},
		Year:    2030,
	}
	got, ok := table.Get(juvenile)
	if !ok || !got.Equal(dec("30")) {
		t.Errorf("0-17 total %s, want 30 (ages 16 and 17 summed, totals row dropped)", got)
	}

	adult := types.TargetKey{
		Stratum: types.StratumKey{Zone: "Z1", Category: types.Category{AgeGroup: "18-44", Sex: "M"}},
		Year:    2030,
	}
	if got, _ := table.Get(adult); !got.Equal(dec("30")) {
		t.Errorf("18-44 total %s, want 30", got)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 target entries, got %d", table.Len())
	}
}

// TestLoadBaseline tests duplicate-stratum rejection
func TestLoadBaseline(t *testing.T) {
	path := writeCSV(t, "baseline.csv", `
zone_id,value
Z1,1000
Z2,2000
`)

	baseline, err := LoadBaseline(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(baseline) != 2 {
		t.Fatalf("expected 2 strata, got %d", len(baseline))
	}
	if !baseline[types.StratumKey{Zone: "Z1"}].Equal(dec("1000")) {
		t.Errorf("Z1 baseline %s", baseline[types.StratumKey{Zone: "Z1"}])
	}

	dup := writeCSV(t, "dup.csv", `
zone_id,value
Z1,1000
Z1,900
`)
	if _, err := LoadBaseline(dup); !errors.IsType(err, errors.TypeIntegrity) {
		t.Fatalf("expected integrity error for duplicate stratum, got %v", err)
	}
}

// TestWriteAllocations tests the output column layout
func TestWriteAllocations(t *testing.T) {
	rows := []types.AllocatedRow{
		{
			Unit:     "A",
			Zone:     "Z1",
			Category: types.Category{AgeGroup: "0-17", Sex: "F"},
			Year:     2030,
			Share:    dec("0.6"),
			Value:    dec("300"),
		},
		{Unit: "B", Zone: "Z1", Share: dec("0.4"), Value: dec("200")},
	}

	var buf bytes.Buffer
	if err := WriteAllocations(&buf, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "unit_id,zone_id,age_group,sex,class,year,share,allocated_value" {
		t.Errorf("header %q", lines[0])
	}
	if lines[1] != "A,Z1,0-17,F,,2030,0.6,300" {
		t.Errorf("row %q", lines[1])
	}
	// Self-reallocation rows have no year.
	if lines[2] != "B,Z1,,,,,0.4,200" {
		t.Errorf("row %q", lines[2])
	}
}

// TestWriteReport tests the report column layout
func TestWriteReport(t *testing.T) {
	report := &validate.Report{
		Rows: []validate.Row{{
			Key: types.TargetKey{
				Stratum: types.StratumKey{Zone: "Z1"},
				Year:    2030,
			},
			Expected:        dec("500"),
			Actual:          dec("500"),
			Discrepancy:     decimal.Zero,
			WithinTolerance: true,
		}},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if lines[1] != "Z1,,,,2030,500,500,0,true" {
		t.Errorf("row %q", lines[1])
	}
}
