// Package share computes each fragment's fractional share of its stratum
// total. Shares are the multipliers later applied to target totals, so the
// builder is where stratum totals become final.
package share

import (
	"github.com/shopspring/decimal"

	"arealloc/core/determinism"
	"arealloc/core/types"
	"arealloc/internal/errors"
)

// Mode selects what quantity a fragment contributes to its stratum
type Mode string

const (
	// ModeMagnitude contributes the fragment's value, e.g. population
	ModeMagnitude Mode = "magnitude"

	// ModeCount contributes 1 per fragment, for "how many units" questions
	ModeCount Mode = "count"
)

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMagnitude, ModeCount:
		return Mode(s), nil
	case "":
		return ModeMagnitude, nil
	default:
		return "", errors.Newf(errors.TypeInput, "unknown share mode %q (want magnitude or count)", s)
	}
}

// Denominator selects where stratum totals come from. There is no default:
// the two original demographic workflows disagree on this, so callers must
// choose explicitly.
type Denominator string

const (
	// DenominatorCatchment sums stratum totals from the loaded fragments
	DenominatorCatchment Denominator = "catchment"

	// DenominatorExternal uses a caller-supplied baseline total per stratum,
	// e.g. published census figures
	DenominatorExternal Denominator = "external"
)

// ParseDenominator parses a denominator name
func ParseDenominator(s string) (Denominator, error) {
	switch Denominator(s) {
	case DenominatorCatchment, DenominatorExternal:
		return Denominator(s), nil
	case "":
		return DenominatorCatchment, nil
	default:
		return "", errors.Newf(errors.TypeInput, "unknown denominator %q (want catchment or external)", s)
	}
}

// ShareDriftTolerance bounds |sum(shares) - 1| per stratum, relative,
// when the denominator is derived from the catchment itself.
var ShareDriftTolerance = decimal.New(1, -3) // 1e-3

// Row is one fragment with its computed share attached
type Row struct {
	types.Fragment

	// Share is the fragment's fraction of its stratum total, zero when
	// the stratum is empty
	Share decimal.Decimal `json:"share"`

	// Empty marks rows of strata whose total was zero or unavailable
	Empty bool `json:"empty,omitempty"`
}

// Contribution returns what the row contributed to its stratum total
// under the table's mode.
func (r Row) Contribution(mode Mode) decimal.Decimal {
	if mode == ModeCount {
		return decimal.NewFromInt(1)
	}
	return r.Value
}

// Table is the share table: fragment rows with shares, plus the stratum
// totals they were normalized against.
type Table struct {
	Mode        Mode
	Denominator Denominator
	Rows        []Row

	// Totals holds the denominator used per stratum
	Totals *determinism.StableMap[types.StratumKey, decimal.Decimal]

	// EmptyStrata lists strata whose total was zero or unavailable
	EmptyStrata []types.StratumKey

	// Findings accumulate empty strata, missing baselines, and share drift
	Findings []types.Finding
}

// Builder computes share tables
type Builder struct {
	Mode        Mode
	Denominator Denominator

	// Baseline supplies stratum totals when Denominator is external
	Baseline map[types.StratumKey]decimal.Decimal
}

// NewBuilder creates a magnitude-mode builder over catchment totals
func NewBuilder() *Builder {
	return &Builder{Mode: ModeMagnitude, Denominator: DenominatorCatchment}
}

// Build groups fragments by stratum, computes totals per the configured
// denominator source, and attaches each fragment's share.
//
// A stratum whose total is zero never raises a division error: its rows
// get share 0 and the stratum is flagged empty. With an external
// denominator, strata absent from the baseline are reported as missing
// joins and their rows are likewise emitted at share 0.
func (b *Builder) Build(fragments []types.Fragment) (*Table, error) {
	if b.Denominator == DenominatorExternal && b.Baseline == nil {
		return nil, errors.Input("external denominator requested without a baseline table")
	}

	// Callers that insist on an explicit source check before building;
	// here the empty source means catchment.
	denominator := b.Denominator
	if denominator == "" {
		denominator = DenominatorCatchment
	}

	table := &Table{
		Mode:        b.Mode,
		Denominator: denominator,
		Totals:      stratumMap[decimal.Decimal](),
	}

	// Pass 1: stratum totals. Sum order is fixed by input order; any
	// residual drift is covered by the validator's tolerance, not hidden.
	observed := stratumMap[decimal.Decimal]()
	for _, f := range fragments {
		key := f.Stratum()
		cur, _ := observed.Get(key)
		observed.Set(key, cur.Add(b.contribution(f)))
	}

	missingBaseline := make(map[types.StratumKey]bool)
	observed.Range(func(key types.StratumKey, sum decimal.Decimal) bool {
		switch b.Denominator {
		case DenominatorExternal:
			baseline, ok := b.Baseline[key]
			if !ok {
				missingBaseline[key] = true
				table.Findings = append(table.Findings, types.Finding{
					Kind:    types.FindingMissingBaseline,
					Stratum: key,
					Detail:  "no baseline total; shares for this stratum are undefined",
				})
				table.Totals.Set(key, decimal.Zero)
				return true
			}
			table.Totals.Set(key, baseline)
		default:
			table.Totals.Set(key, sum)
		}
		return true
	})

	// Pass 2: shares.
	shareSums := stratumMap[decimal.Decimal]()
	for _, f := range fragments {
		key := f.Stratum()
		total, _ := table.Totals.Get(key)
		row := Row{Fragment: f}
		if total.IsZero() || missingBaseline[key] {
			row.Empty = true
		} else {
			row.Share = b.contribution(f).Div(total)
			cur, _ := shareSums.Get(key)
			shareSums.Set(key, cur.Add(row.Share))
		}
		table.Rows = append(table.Rows, row)
	}

	table.Totals.Range(func(key types.StratumKey, total decimal.Decimal) bool {
		if total.IsZero() && !missingBaseline[key] {
			table.EmptyStrata = append(table.EmptyStrata, key)
			table.Findings = append(table.Findings, types.Finding{
				Kind:    types.FindingEmptyStratum,
				Stratum: key,
				Detail:  "stratum total is zero; shares emitted as zero",
			})
		} else if missingBaseline[key] {
			table.EmptyStrata = append(table.EmptyStrata, key)
		}
		return true
	})

	// Shares over a catchment-derived total must reproduce 1 per stratum.
	// External baselines legitimately exceed the catchment sum, so the
	// check only applies to catchment totals.
	if denominator == DenominatorCatchment {
		one := decimal.NewFromInt(1)
		shareSums.Range(func(key types.StratumKey, sum decimal.Decimal) bool {
			if sum.Sub(one).Abs().GreaterThan(ShareDriftTolerance) {
				table.Findings = append(table.Findings, types.Finding{
					Kind:    types.FindingShareDrift,
					Stratum: key,
					Detail:  "shares sum to " + sum.String(),
				})
			}
			return true
		})
	}

	return table, nil
}

func (b *Builder) contribution(f types.Fragment) decimal.Decimal {
	if b.Mode == ModeCount {
		// One per row, split fragments included.
		return decimal.NewFromInt(1)
	}
	return f.Value
}

// RowsByStratum groups the table's rows per stratum in stable order
func (t *Table) RowsByStratum() *determinism.StableMap[types.StratumKey, []Row] {
	grouped := stratumMap[[]Row]()
	for _, row := range t.Rows {
		key := row.Stratum()
		cur, _ := grouped.Get(key)
		grouped.Set(key, append(cur, row))
	}
	return grouped
}

func stratumMap[V any]() *determinism.StableMap[types.StratumKey, V] {
	return determinism.NewStableMapWithKeyFunc[types.StratumKey, V](func(k types.StratumKey) string {
		return k.String()
	})
}
