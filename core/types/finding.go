package types

import "fmt"

// FindingKind classifies a non-fatal condition noticed during a pass
type FindingKind string

const (
	// FindingMissingMembership marks a unit with no zone membership;
	// its rows are excluded from allocation
	FindingMissingMembership FindingKind = "missing_membership"

	// FindingMissingTarget marks a stratum present in the share table but
	// absent from the target totals; allocation for it is skipped
	FindingMissingTarget FindingKind = "missing_target"

	// FindingMissingBaseline marks a stratum with no entry in the external
	// baseline table used as the share denominator
	FindingMissingBaseline FindingKind = "missing_baseline"

	// FindingEmptyStratum marks a stratum whose total is zero; its shares
	// are emitted as zero rather than dividing by zero
	FindingEmptyStratum FindingKind = "empty_stratum"

	// FindingUnallocatableTotal marks a target total whose stratum has no
	// contributing units, so the total cannot be distributed
	FindingUnallocatableTotal FindingKind = "unallocatable_total"

	// FindingShareDrift marks a stratum whose shares do not sum to one
	// within tolerance
	FindingShareDrift FindingKind = "share_drift"

	// FindingConservation marks a reallocated total outside tolerance on
	// an advisory path
	FindingConservation FindingKind = "conservation"
)

// Finding is one reportable condition. Findings accumulate into the
// validation report and are surfaced alongside results, never instead
// of them.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	Unit    UnitID      `json:"unit,omitempty"`
	Stratum StratumKey  `json:"stratum,omitempty"`
	Year    int         `json:"year,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// String renders the finding for logs and reports
func (f Finding) String() string {
	s := string(f.Kind)
	if f.Unit != "" {
		s += fmt.Sprintf(" unit=%s", f.Unit)
	}
	if f.Stratum != (StratumKey{}) {
		s += fmt.Sprintf(" stratum=%s", f.Stratum)
	}
	if f.Year != 0 {
		s += fmt.Sprintf(" year=%d", f.Year)
	}
	if f.Detail != "" {
		s += ": " + f.Detail
	}
	return s
}
