package alloc

import (
	"testing"

	"github.com/shopspring/decimal"

	"arealloc/core/share"
	"arealloc/core/types"
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

func buildTable(t *testing.T, fragments []types.Fragment) *share.Table {
	t.Helper()
	table, err := share.NewBuilder().Build(fragments)
	if err != nil {
		t.Fatalf("building share table: %v", err)
	}
	return table
}

// TestAllocateProportional tests the canonical 60/40 distribution
func TestAllocateProportional(t *testing.T) {
	table := buildTable(t, []types.Fragment{
		frag("A", "Z1", "60"),
		frag("B", "Z1", "40"),
	})

	targets := NewTargetTable()
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}, Year: 2030}, dec("500"))

	result, err := NewAllocator().Allocate(table, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SelfReallocation {
		t.Error("targeted pass marked as self-reallocation")
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Rows[0].Value.Equal(dec("300")) {
		t.Errorf("A allocated %s, want 300", result.Rows[0].Value)
	}
	if !result.Rows[1].Value.Equal(dec("200")) {
		t.Errorf("B allocated %s, want 200", result.Rows[1].Value)
	}
	if result.Rows[0].Year != 2030 {
		t.Errorf("year %d, want 2030", result.Rows[0].Year)
	}

	sum := result.Rows[0].Value.Add(result.Rows[1].Value)
	if !sum.Equal(dec("500")) {
		t.Errorf("allocated sum %s, want 500", sum)
	}
}

// TestAllocateMultiYear tests that each target year produces its own rows
func TestAllocateMultiYear(t *testing.T) {
	table := buildTable(t, []types.Fragment{
		frag("A", "Z1", "50"),
		frag("B", "Z1", "50"),
	})

	targets := NewTargetTable()
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}, Year: 2030}, dec("100"))
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}, Year: 2040}, dec("200"))

	result, err := NewAllocator().Allocate(table, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(result.Rows))
	}

	byYear := make(map[int]decimal.Decimal)
	for _, row := range result.Rows {
		byYear[row.Year] = byYear[row.Year].Add(row.Value)
	}
	if !byYear[2030].Equal(dec("100")) || !byYear[2040].Equal(dec("200")) {
		t.Errorf("per-year sums %v, want 100 and 200", byYear)
	}
}

// TestAllocateSkippedStratum tests strata without targets
func TestAllocateSkippedStratum(t *testing.T) {
	table := buildTable(t, []types.Fragment{
		frag("A", "Z1", "100"),
		frag("B", "Z2", "100"),
	})

	targets := NewTargetTable()
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}, Year: 2030}, dec("50"))

	result, err := NewAllocator().Allocate(table, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Zone != "Z2" {
		t.Fatalf("expected Z2 skipped, got %v", result.Skipped)
	}
	for _, row := range result.Rows {
		if row.Zone == "Z2" {
			t.Errorf("skipped stratum produced row: %+v", row)
		}
	}
	found := false
	for _, f := range result.Findings {
		if f.Kind == types.FindingMissingTarget && f.Stratum.Zone == "Z2" {
			found = true
		}
	}
	if !found {
		t.Error("expected a missing-target finding for Z2")
	}
}

// TestAllocateUnallocatableTotal tests targets over empty strata
func TestAllocateUnallocatableTotal(t *testing.T) {
	table := buildTable(t, []types.Fragment{
		frag("A", "Z1", "0"),
	})

	targets := NewTargetTable()
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}, Year: 2030}, dec("500"))
	targets.Add(types.TargetKey{Stratum: types.StratumKey{Zone: "Z9"}, Year: 2030}, dec("10"))

	result, err := NewAllocator().Allocate(table, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 0 {
		t.Errorf("expected no allocated rows, got %d", len(result.Rows))
	}
	if len(result.Unallocatable) != 2 {
		t.Fatalf("expected 2 unallocatable targets, got %v", result.Unallocatable)
	}
	var findings int
	for _, f := range result.Findings {
		if f.Kind == types.FindingUnallocatableTotal {
			findings++
		}
	}
	if findings != 2 {
		t.Errorf("expected 2 unallocatable findings, got %d", findings)
	}
}

// TestSelfReallocationExact tests that the identity pass reproduces totals exactly
func TestSelfReallocationExact(t *testing.T) {
	// Values chosen so share computation alone would truncate.
	table := buildTable(t, []types.Fragment{
		frag("A", "Z1", "1"),
		frag("B", "Z1", "1"),
		frag("C", "Z1", "1"),
	})

	result, err := NewAllocator().Allocate(table, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.SelfReallocation {
		t.Error("pass not marked as self-reallocation")
	}

	sum := decimal.Zero
	for _, row := range result.Rows {
		sum = sum.Add(row.Value)
	}
	expected, ok := result.Expected.Get(types.TargetKey{Stratum: types.StratumKey{Zone: "Z1"}})
	if !ok {
		t.Fatal("expected total missing for Z1")
	}
	if !sum.Equal(expected) {
		t.Errorf("self-reallocation drifted: sum %s, expected %s", sum, expected)
	}
	if !sum.Equal(dec("3")) {
		t.Errorf("sum %s, want exactly 3", sum)
	}
}

// TestTargetTableAdd tests that repeated keys accumulate
func TestTargetTableAdd(t *testing.T) {
	targets := NewTargetTable()
	key := types.TargetKey{Stratum: types.StratumKey{Zone: "Z1", Category: types.Category{AgeGroup: "0-17"}}, Year: 2030}

	// Single years of age folding into one band.
	for i := 0; i < 18; i++ {
		targets.Add(key, dec("10"))
	}

	got, ok := targets.Get(key)
	if !ok || !got.Equal(dec("180")) {
		t.Errorf("accumulated %s, want 180", got)
	}
	if targets.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", targets.Len())
	}
}
