// Package alloc applies computed shares to target totals, producing
// reallocated values per fragment per stratum.
package alloc

import (
	"github.com/shopspring/decimal"

	"arealloc/core/determinism"
	"arealloc/core/share"
	"arealloc/core/types"
)

// TargetTable holds externally supplied totals per (stratum, year).
// The engine never owns these figures; they arrive from the caller.
type TargetTable struct {
	m *determinism.StableMap[types.TargetKey, decimal.Decimal]
}

// NewTargetTable creates an empty target table
func NewTargetTable() *TargetTable {
	return &TargetTable{
		m: determinism.NewStableMapWithKeyFunc[types.TargetKey, decimal.Decimal](func(k types.TargetKey) string {
			return k.String()
		}),
	}
}

// Add accumulates a total onto a key, summing with any existing entry.
// Summing lets callers feed single-year-of-age rows and get banded totals.
func (t *TargetTable) Add(key types.TargetKey, total decimal.Decimal) {
	cur, _ := t.m.Get(key)
	t.m.Set(key, cur.Add(total))
}

// Get returns the total for a key
func (t *TargetTable) Get(key types.TargetKey) (decimal.Decimal, bool) {
	return t.m.Get(key)
}

// Len returns the number of entries
func (t *TargetTable) Len() int {
	return t.m.Len()
}

// Range iterates entries in stable key order
func (t *TargetTable) Range(fn func(types.TargetKey, decimal.Decimal) bool) {
	t.m.Range(fn)
}

// Strata returns the distinct strata covered by the table, in stable order
func (t *TargetTable) Strata() []types.StratumKey {
	seen := make(map[types.StratumKey]bool)
	var out []types.StratumKey
	t.m.Range(func(k types.TargetKey, _ decimal.Decimal) bool {
		if !seen[k.Stratum] {
			seen[k.Stratum] = true
			out = append(out, k.Stratum)
		}
		return true
	})
	return out
}

// Result is one allocation pass's output: reallocated rows plus the
// expected totals the validator will check them against.
type Result struct {
	// Mode echoes the share mode the pass ran under
	Mode share.Mode

	// SelfReallocation is true when no external targets were supplied
	SelfReallocation bool

	// Rows are the allocated values
	Rows []types.AllocatedRow

	// Expected maps each (stratum, year) to the total its rows must sum to
	Expected *determinism.StableMap[types.TargetKey, decimal.Decimal]

	// Skipped lists strata present in shares but absent from targets
	Skipped []types.StratumKey

	// Unallocatable lists targets whose stratum has no contributing units
	Unallocatable []types.TargetKey

	// Findings mirror Skipped and Unallocatable for the validation report
	Findings []types.Finding
}

// Allocator multiplies shares by target totals
type Allocator struct{}

// NewAllocator creates an allocator
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate distributes target totals over the share table.
//
// When targets is nil the pass is a self-reallocation: each row's own
// contribution is emitted as its allocated value, which equals
// share × stratum-total without the intermediate division, so per-stratum
// sums reproduce the stratum totals exactly. This identity pass exists to
// generate within-zone percentage statistics.
//
// A stratum present in shares but not in targets is skipped and reported,
// never silently zeroed. A target whose stratum is empty cannot be
// distributed and is reported as unallocatable.
func (a *Allocator) Allocate(table *share.Table, targets *TargetTable) (*Result, error) {
	result := &Result{
		Mode:             table.Mode,
		SelfReallocation: targets == nil,
		Expected: determinism.NewStableMapWithKeyFunc[types.TargetKey, decimal.Decimal](func(k types.TargetKey) string {
			return k.String()
		}),
	}

	if targets == nil {
		a.selfReallocate(table, result)
		return result, nil
	}

	grouped := table.RowsByStratum()
	empty := make(map[types.StratumKey]bool, len(table.EmptyStrata))
	for _, key := range table.EmptyStrata {
		empty[key] = true
	}

	covered := make(map[types.StratumKey]bool)
	targets.Range(func(key types.TargetKey, total decimal.Decimal) bool {
		rows, ok := grouped.Get(key.Stratum)
		if !ok || empty[key.Stratum] {
			result.Unallocatable = append(result.Unallocatable, key)
			result.Findings = append(result.Findings, types.Finding{
				Kind:    types.FindingUnallocatableTotal,
				Stratum: key.Stratum,
				Year:    key.Year,
				Detail:  "target total " + total.String() + " has no contributing units",
			})
			return true
		}

		covered[key.Stratum] = true
		for _, row := range rows {
			result.Rows = append(result.Rows, types.AllocatedRow{
				Unit:     row.Unit,
				Zone:     row.Zone,
				Category: row.Category,
				Year:     key.Year,
				Share:    row.Share,
				Value:    row.Share.Mul(total),
			})
		}
		result.Expected.Set(key, total)
		return true
	})

	grouped.Range(func(key types.StratumKey, _ []share.Row) bool {
		if !covered[key] && !empty[key] {
			result.Skipped = append(result.Skipped, key)
			result.Findings = append(result.Findings, types.Finding{
				Kind:    types.FindingMissingTarget,
				Stratum: key,
				Detail:  "no target total supplied; stratum skipped",
			})
		}
		return true
	})

	return result, nil
}

func (a *Allocator) selfReallocate(table *share.Table, result *Result) {
	for _, row := range table.Rows {
		value := decimal.Zero
		if !row.Empty {
			value = row.Contribution(table.Mode)
		}
		result.Rows = append(result.Rows, types.AllocatedRow{
			Unit:     row.Unit,
			Zone:     row.Zone,
			Category: row.Category,
			Share:    row.Share,
			Value:    value,
		})
	}

	table.Totals.Range(func(key types.StratumKey, total decimal.Decimal) bool {
		result.Expected.Set(types.TargetKey{Stratum: key}, total)
		return true
	})
}
