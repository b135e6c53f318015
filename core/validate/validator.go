// Package validate checks conservation: summed reallocated values per
// stratum must reproduce the stratum's expected total within tolerance.
package validate

import (
	"github.com/shopspring/decimal"

	"arealloc/core/alloc"
	"arealloc/core/determinism"
	"arealloc/core/types"
	"arealloc/internal/errors"
)

// Default tolerances. Magnitude sums carry absolute drift from repeated
// decimal division; share sums are checked relative to 1.
var (
	DefaultAbsoluteTolerance = decimal.New(1, -2) // 1e-2
	DefaultShareTolerance    = decimal.New(1, -3) // 1e-3
)

// Options configures a validation pass
type Options struct {
	// AbsoluteTolerance bounds |actual - expected| per stratum total
	AbsoluteTolerance decimal.Decimal

	// Strict escalates out-of-tolerance rows to a fatal conservation
	// error. Used when target totals are authoritative external figures,
	// where silent drift would corrupt downstream reporting.
	Strict bool
}

// DefaultOptions returns advisory validation with default tolerances
func DefaultOptions() Options {
	return Options{AbsoluteTolerance: DefaultAbsoluteTolerance}
}

// Row is one validated stratum total
type Row struct {
	Key             types.TargetKey `json:"key"`
	Expected        decimal.Decimal `json:"expected"`
	Actual          decimal.Decimal `json:"actual"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	WithinTolerance bool            `json:"within_tolerance"`
}

// Report is the validation output. It always accompanies the allocated
// rows so partial results stay usable even when discrepancies exist.
type Report struct {
	Rows     []Row           `json:"rows"`
	Findings []types.Finding `json:"findings,omitempty"`
}

// AddFindings appends findings accumulated by earlier stages
func (r *Report) AddFindings(findings ...types.Finding) {
	r.Findings = append(r.Findings, findings...)
}

// Clean reports whether every row is within tolerance and no findings
// were recorded
func (r *Report) Clean() bool {
	if len(r.Findings) > 0 {
		return false
	}
	for _, row := range r.Rows {
		if !row.WithinTolerance {
			return false
		}
	}
	return true
}

// MaxDiscrepancy returns the largest absolute discrepancy across rows
func (r *Report) MaxDiscrepancy() decimal.Decimal {
	max := decimal.Zero
	for _, row := range r.Rows {
		if d := row.Discrepancy.Abs(); d.GreaterThan(max) {
			max = d
		}
	}
	return max
}

// Validator checks allocation results against expected totals
type Validator struct {
	opts Options
}

// NewValidator creates a validator
func NewValidator(opts Options) *Validator {
	if !opts.AbsoluteTolerance.IsPositive() {
		opts.AbsoluteTolerance = DefaultAbsoluteTolerance
	}
	return &Validator{opts: opts}
}

// Check sums allocated values per (stratum, year) and compares each sum
// against the expected total. Every expected total gets a report row;
// discrepancies are never silently dropped.
//
// In strict mode the first out-of-tolerance row aborts the pass with a
// conservation error carrying full stratum context. The report built so
// far is still returned.
func (v *Validator) Check(result *alloc.Result) (*Report, error) {
	actuals := determinism.NewStableMapWithKeyFunc[types.TargetKey, decimal.Decimal](func(k types.TargetKey) string {
		return k.String()
	})
	for _, row := range result.Rows {
		key := types.TargetKey{Stratum: row.Stratum(), Year: row.Year}
		cur, _ := actuals.Get(key)
		actuals.Set(key, cur.Add(row.Value))
	}

	report := &Report{}
	report.AddFindings(result.Findings...)

	var firstViolation *Row
	result.Expected.Range(func(key types.TargetKey, expected decimal.Decimal) bool {
		actual, _ := actuals.Get(key)
		discrepancy := actual.Sub(expected)
		row := Row{
			Key:             key,
			Expected:        expected,
			Actual:          actual,
			Discrepancy:     discrepancy,
			WithinTolerance: discrepancy.Abs().LessThanOrEqual(v.opts.AbsoluteTolerance),
		}
		report.Rows = append(report.Rows, row)

		if !row.WithinTolerance {
			if v.opts.Strict && firstViolation == nil {
				r := row
				firstViolation = &r
			}
			if !v.opts.Strict {
				report.Findings = append(report.Findings, types.Finding{
					Kind:    types.FindingConservation,
					Stratum: key.Stratum,
					Year:    key.Year,
					Detail:  "expected " + expected.String() + ", got " + actual.String(),
				})
			}
		}
		return true
	})

	if firstViolation != nil {
		err := errors.Conservation("allocated totals drifted beyond tolerance").
			WithContext("stratum", firstViolation.Key.Stratum.String()).
			WithContext("year", firstViolation.Key.Year).
			WithContext("expected", firstViolation.Expected.String()).
			WithContext("actual", firstViolation.Actual.String()).
			WithContext("discrepancy", firstViolation.Discrepancy.String())
		return report, err
	}

	return report, nil
}
