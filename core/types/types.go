// Package types defines the core domain vocabulary: units, zone memberships,
// strata, and the row shapes that flow between pipeline stages.
// Quantities are decimal so that repeated runs are bit-reproducible.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnitID identifies the smallest-granularity record being reallocated,
// such as a dissemination area.
type UnitID string

// ZoneID identifies a coarser partition a unit is allocated onto or from,
// such as a forward sortation area or a health region.
type ZoneID string

// Category is the tuple of categorical fields that partition a unit's
// quantity beyond geography. Unused fields are left empty; the zero value
// means the quantity is not cross-classified at all.
type Category struct {
	// AgeGroup is a demographic age band, e.g. "0-17" or "85+"
	AgeGroup string `json:"age_group,omitempty"`

	// Sex is a single-letter sex code, "M" or "F"
	Sex string `json:"sex,omitempty"`

	// Class is a free categorical label, e.g. a marginalization quintile
	Class string `json:"class,omitempty"`
}

// IsZero reports whether no categorical field is set
func (c Category) IsZero() bool {
	return c == Category{}
}

// String returns a stable rendering used for ordering and reports
func (c Category) String() string {
	if c.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s/%s/%s", c.AgeGroup, c.Sex, c.Class)
}

// StratumKey is the composite grouping key over which totals are computed
// and shares are normalized.
type StratumKey struct {
	Zone     ZoneID   `json:"zone"`
	Category Category `json:"category"`
}

// String returns a stable rendering used for ordering and reports
func (k StratumKey) String() string {
	return fmt.Sprintf("%s:%s", k.Zone, k.Category)
}

// TargetKey identifies one externally supplied total: a stratum plus the
// target-axis value it applies to. Year is zero for self-reallocation.
type TargetKey struct {
	Stratum StratumKey `json:"stratum"`
	Year    int        `json:"year"`
}

// String returns a stable rendering used for ordering and reports
func (k TargetKey) String() string {
	return fmt.Sprintf("%s@%04d", k.Stratum, k.Year)
}

// UnitRow is one input record: a unit's base quantity for one category tuple.
// Every unit carries exactly one value per (unit, category) pair.
type UnitRow struct {
	Unit     UnitID          `json:"unit"`
	Category Category        `json:"category"`
	Value    decimal.Decimal `json:"value"`
}

// Membership maps a unit to one zone with a fractional weight in [0,1].
// A unit with a single membership at weight 1 is pure; more than one
// membership makes it a split unit.
type Membership struct {
	Unit   UnitID          `json:"unit"`
	Zone   ZoneID          `json:"zone"`
	Weight decimal.Decimal `json:"weight"`
}

// ZoneWeight is a (zone, weight) pair used when declaring explicit split
// units in configuration.
type ZoneWeight struct {
	Zone   ZoneID          `json:"zone"`
	Weight decimal.Decimal `json:"weight"`
}

// Fragment is one expanded unit row: the portion of a unit's value that
// falls inside a single zone. Pure units produce exactly one fragment at
// weight 1.
type Fragment struct {
	Unit     UnitID          `json:"unit"`
	Zone     ZoneID          `json:"zone"`
	Category Category        `json:"category"`
	Weight   decimal.Decimal `json:"weight"`
	Value    decimal.Decimal `json:"value"`
}

// Stratum returns the grouping key this fragment contributes to
func (f Fragment) Stratum() StratumKey {
	return StratumKey{Zone: f.Zone, Category: f.Category}
}

// AllocatedRow is one engine output row: a fragment's slice of a target
// total, together with the share that produced it.
type AllocatedRow struct {
	Unit     UnitID          `json:"unit"`
	Zone     ZoneID          `json:"zone"`
	Category Category        `json:"category"`
	Year     int             `json:"year,omitempty"`
	Share    decimal.Decimal `json:"share"`
	Value    decimal.Decimal `json:"value"`
}

// Stratum returns the grouping key this row was allocated within
func (r AllocatedRow) Stratum() StratumKey {
	return StratumKey{Zone: r.Zone, Category: r.Category}
}
