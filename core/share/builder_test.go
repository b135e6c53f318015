package share

import (
	"testing"

	"github.com/shopspring/decimal"

	"arealloc/core/types"
	"arealloc/internal/errors"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func frag(unit, zone, value string) types.Fragment {
	return types.Fragment{
		Unit:   types.UnitID(unit),
		Zone:   types.ZoneID(zone),
		Weight: decimal.NewFromInt(1),
		Value:  dec(value),
	}
}

// TestBuildMagnitudeShares tests value-weighted shares over catchment totals
func TestBuildMagnitudeShares(t *testing.T) {
	fragments := []types.Fragment{
		frag("A", "Z1", "60"),
		frag("B", "Z1", "40"),
	}

	table, err := NewBuilder().Build(fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if !table.Rows[0].Share.Equal(dec("0.6")) {
		t.Errorf("share for A is %s, want 0.6", table.Rows[0].Share)
	}
	if !table.Rows[1].Share.Equal(dec("0.4")) {
		t.Errorf("share for B is %s, want 0.4", table.Rows[1].Share)
	}
	if len(table.Findings) != 0 {
		t.Errorf("unexpected findings: %v", table.Findings)
	}
}

// TestBuildCountDivergesFromMagnitude tests that mode changes shares when values differ
func TestBuildCountDivergesFromMagnitude(t *testing.T) {
	fragments := []types.Fragment{
		frag("A", "Z1", "90"),
		frag("B", "Z1", "10"),
	}

	magnitude, err := (&Builder{Mode: ModeMagnitude, Denominator: DenominatorCatchment}).Build(fragments)
	if err != nil {
		t.Fatalf("magnitude build: %v", err)
	}
	count, err := (&Builder{Mode: ModeCount, Denominator: DenominatorCatchment}).Build(fragments)
	if err != nil {
		t.Fatalf("count build: %v", err)
	}

	if !magnitude.Rows[0].Share.Equal(dec("0.9")) {
		t.Errorf("magnitude share %s, want 0.9", magnitude.Rows[0].Share)
	}
	if !count.Rows[0].Share.Equal(dec("0.5")) {
		t.Errorf("count share %s, want 0.5", count.Rows[0].Share)
	}
}

// TestBuildZeroTotalStratum tests that empty strata never divide by zero
func TestBuildZeroTotalStratum(t *testing.T) {
	fragments := []types.Fragment{
		frag("A", "Z1", "0"),
		frag("B", "Z1", "0"),
		frag("C", "Z2", "100"),
	}

	table, err := NewBuilder().Build(fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.EmptyStrata) != 1 || table.EmptyStrata[0].Zone != "Z1" {
		t.Fatalf("expected Z1 flagged empty, got %v", table.EmptyStrata)
	}
	for _, row := range table.Rows {
		if row.Zone == "Z1" {
			if !row.Empty || !row.Share.IsZero() {
				t.Errorf("empty stratum row not zeroed: %+v", row)
			}
		}
	}
	found := false
	for _, f := range table.Findings {
		if f.Kind == types.FindingEmptyStratum {
			found = true
		}
	}
	if !found {
		t.Error("expected an empty-stratum finding")
	}
}

// TestBuildExternalDenominator tests baseline-backed shares
func TestBuildExternalDenominator(t *testing.T) {
	fragments := []types.Fragment{
		frag("A", "Z1", "50"),
	}
	baseline := map[types.StratumKey]decimal.Decimal{
		{Zone: "Z1"}: dec("200"),
	}

	table, err := (&Builder{
		Mode:        ModeMagnitude,
		Denominator: DenominatorExternal,
		Baseline:    baseline,
	}).Build(fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 50 of a published 200, not 50 of the catchment's 50.
	if !table.Rows[0].Share.Equal(dec("0.25")) {
		t.Errorf("share %s, want 0.25", table.Rows[0].Share)
	}
	if len(table.Findings) != 0 {
		t.Errorf("unexpected findings: %v", table.Findings)
	}
}

// TestBuildExternalMissingBaseline tests that an uncovered stratum is reported
func TestBuildExternalMissingBaseline(t *testing.T) {
	fragments := []types.Fragment{
		frag("A", "Z1", "50"),
		frag("B", "Z2", "50"),
	}
	baseline := map[types.StratumKey]decimal.Decimal{
		{Zone: "Z1"}: dec("100"),
	}

	table, err := (&Builder{
		Mode:        ModeMagnitude,
		Denominator: DenominatorExternal,
		Baseline:    baseline,
	}).Build(fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var missing int
	for _, f := range table.Findings {
		if f.Kind == types.FindingMissingBaseline && f.Stratum.Zone == "Z2" {
			missing++
		}
	}
	if missing != 1 {
		t.Fatalf("expected one missing-baseline finding for Z2, got findings %v", table.Findings)
	}
	for _, row := range table.Rows {
		if row.Zone == "Z2" && !row.Empty {
			t.Errorf("row in uncovered stratum not marked empty: %+v", row)
		}
	}
}

// TestBuildExternalWithoutBaseline tests the misconfiguration error
func TestBuildExternalWithoutBaseline(t *testing.T) {
	_, err := (&Builder{Mode: ModeMagnitude, Denominator: DenominatorExternal}).Build(nil)
	if !errors.IsType(err, errors.TypeInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

// TestBuildStrataSeparated tests that categories partition strata
func TestBuildStrataSeparated(t *testing.T) {
	f1 := frag("A", "Z1", "30")
	f1.Category = types.Category{AgeGroup: "0-17", Sex: "F"}
	f2 := frag("B", "Z1", "70")
	f2.Category = types.Category{AgeGroup: "0-17", Sex: "M"}

	table, err := NewBuilder().Build([]types.Fragment{f1, f2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Each row is alone in its own stratum, so each share is 1.
	one := decimal.NewFromInt(1)
	for _, row := range table.Rows {
		if !row.Share.Equal(one) {
			t.Errorf("row %s share %s, want 1", row.Unit, row.Share)
		}
	}
	if table.Totals.Len() != 2 {
		t.Errorf("expected 2 strata, got %d", table.Totals.Len())
	}
}

// TestParseMode tests mode names
func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeMagnitude},
		{in: "magnitude", want: ModeMagnitude},
		{in: "count", want: ModeCount},
		{in: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
