// Package split resolves unit-to-zone membership before shares are computed.
// Units whose membership spans more than one zone are expanded into weighted
// fragments; pure units pass through as a single fragment at weight 1.
package split

import (
	"strings"

	"github.com/shopspring/decimal"

	"arealloc/core/determinism"
	"arealloc/core/types"
	"arealloc/internal/errors"
)

// DefaultWeightTolerance bounds |sum(weights) - 1| per unit. Weights beyond
// it indicate malformed membership data and halt the run.
var DefaultWeightTolerance = decimal.New(1, -5) // 1e-5

// Resolver expands unit rows into per-zone fragments
type Resolver struct {
	// WeightTolerance overrides DefaultWeightTolerance when positive
	WeightTolerance decimal.Decimal
}

// NewResolver creates a resolver with default tolerances
func NewResolver() *Resolver {
	return &Resolver{WeightTolerance: DefaultWeightTolerance}
}

type unitCategory struct {
	unit     types.UnitID
	category types.Category
}

// Resolve expands every unit row into one fragment per zone membership,
// each carrying value × weight and the unchanged category tuple.
//
// Units with no membership entry are excluded and reported as findings.
// Weights that do not sum to 1, values conflicting across duplicate
// (unit, category) rows, and fragment sums that fail to reproduce the
// original value are integrity errors: the pass halts, nothing is
// renormalized.
func (r *Resolver) Resolve(units []types.UnitRow, memberships []types.Membership) ([]types.Fragment, []types.Finding, error) {
	tol := r.WeightTolerance
	if !tol.IsPositive() {
		tol = DefaultWeightTolerance
	}

	byUnit, err := indexMemberships(memberships, tol)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[unitCategory]decimal.Decimal, len(units))
	var fragments []types.Fragment
	var findings []types.Finding
	missing := make(map[types.UnitID]bool)

	for _, row := range units {
		if row.Value.IsNegative() {
			return nil, nil, errors.Integrityf("unit %s has negative value %s", row.Unit, row.Value).
				WithContext("unit", string(row.Unit)).
				WithContext("category", row.Category.String())
		}

		key := unitCategory{unit: row.Unit, category: row.Category}
		if prev, dup := seen[key]; dup {
			return nil, nil, errors.Integrityf(
				"unit %s carries duplicate values for category %s: %s and %s",
				row.Unit, row.Category, prev, row.Value).
				WithContext("unit", string(row.Unit)).
				WithContext("category", row.Category.String())
		}
		seen[key] = row.Value

		members, ok := byUnit[row.Unit]
		if !ok {
			if !missing[row.Unit] {
				missing[row.Unit] = true
				findings = append(findings, types.Finding{
					Kind:   types.FindingMissingMembership,
					Unit:   row.Unit,
					Detail: "no zone membership; unit excluded from allocation",
				})
			}
			continue
		}

		total := decimal.Zero
		for _, m := range members {
			frag := types.Fragment{
				Unit:     row.Unit,
				Zone:     m.Zone,
				Category: row.Category,
				Weight:   m.Weight,
				Value:    row.Value.Mul(m.Weight),
			}
			total = total.Add(frag.Value)
			fragments = append(fragments, frag)
		}

		// Post-condition, asserted rather than assumed: expansion must
		// conserve the unit's value. Weight drift multiplies through the
		// value, so the bound scales with it.
		allowed := tol.Mul(decimal.Max(row.Value, decimal.NewFromInt(1)))
		if total.Sub(row.Value).Abs().GreaterThan(allowed) {
			return nil, nil, errors.Integrityf(
				"expansion changed unit %s category %s value from %s to %s",
				row.Unit, row.Category, row.Value, total).
				WithContext("unit", string(row.Unit)).
				WithContext("category", row.Category.String())
		}
	}

	return fragments, findings, nil
}

// indexMemberships groups memberships per unit in zone order and verifies
// the weight invariants up front.
func indexMemberships(memberships []types.Membership, tol decimal.Decimal) (map[types.UnitID][]types.Membership, error) {
	one := decimal.NewFromInt(1)
	byUnit := make(map[types.UnitID][]types.Membership)
	for _, m := range memberships {
		if m.Weight.IsNegative() || m.Weight.GreaterThan(one) {
			return nil, errors.Integrityf("membership weight %s for unit %s zone %s is outside [0,1]",
				m.Weight, m.Unit, m.Zone).
				WithContext("unit", string(m.Unit)).
				WithContext("zone", string(m.Zone))
		}
		byUnit[m.Unit] = append(byUnit[m.Unit], m)
	}

	for unit, members := range byUnit {
		determinism.SortSlice(members, func(a, b types.Membership) bool {
			return a.Zone < b.Zone
		})

		sum := decimal.Zero
		for _, m := range members {
			sum = sum.Add(m.Weight)
		}
		if sum.Sub(one).Abs().GreaterThan(tol) {
			return nil, errors.Integrityf("membership weights for unit %s sum to %s, want 1",
				unit, sum).
				WithContext("unit", string(unit)).
				WithContext("memberships", len(members))
		}
	}

	return byUnit, nil
}

// Dominant collapses each unit's memberships to its highest-weight zone at
// weight 1, the assignment used by the dominant-zone approach. Ties break
// toward the lexicographically smaller zone so repeated runs agree.
func Dominant(memberships []types.Membership) []types.Membership {
	best := determinism.NewStableMap[types.UnitID, types.Membership]()
	for _, m := range memberships {
		cur, ok := best.Get(m.Unit)
		if !ok || m.Weight.GreaterThan(cur.Weight) ||
			(m.Weight.Equal(cur.Weight) && m.Zone < cur.Zone) {
			best.Set(m.Unit, m)
		}
	}

	one := decimal.NewFromInt(1)
	out := make([]types.Membership, 0, best.Len())
	best.Range(func(unit types.UnitID, m types.Membership) bool {
		out = append(out, types.Membership{Unit: unit, Zone: m.Zone, Weight: one})
		return true
	})
	return out
}

// ZoneRule assigns units to a zone by unit-ID prefix. Rules are tried in
// declaration order; explicit split declarations take precedence over rules.
type ZoneRule struct {
	Prefix string
	Zone   types.ZoneID
}

// MembershipsFromRules derives a membership table from prefix rules plus
// explicit per-unit split weights. Units matching neither are left out of
// the table; the resolver reports them as missing memberships.
func MembershipsFromRules(units []types.UnitRow, rules []ZoneRule, splits map[types.UnitID][]types.ZoneWeight) []types.Membership {
	one := decimal.NewFromInt(1)
	var out []types.Membership
	done := make(map[types.UnitID]bool)

	for _, row := range units {
		if done[row.Unit] {
			continue
		}
		done[row.Unit] = true

		if zw, ok := splits[row.Unit]; ok {
			for _, z := range zw {
				out = append(out, types.Membership{Unit: row.Unit, Zone: z.Zone, Weight: z.Weight})
			}
			continue
		}

		for _, rule := range rules {
			if strings.HasPrefix(string(row.Unit), rule.Prefix) {
				out = append(out, types.Membership{Unit: row.Unit, Zone: rule.Zone, Weight: one})
				break
			}
		}
	}
	return out
}
