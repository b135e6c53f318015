// Package plan loads allocation plans from HCL files. A plan names the
// input tables and the knobs for one allocation run: share mode,
// denominator source, zone assignment rules, explicit split weights, and
// tolerance overrides. Everything the engine once would have hard-coded
// lives here instead.
package plan

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"arealloc/core/determinism"
	"arealloc/core/share"
	"arealloc/core/split"
	"arealloc/core/types"
	"arealloc/internal/errors"
)

// File is a parsed plan file
type File struct {
	Plans []Plan `hcl:"plan,block"`
}

// Plan describes one allocation run
type Plan struct {
	// Name labels the plan in output and the run store
	Name string `hcl:"name,label"`

	// Units is the unit table path
	Units string `hcl:"units"`

	// Membership is the membership table path; omit it when zone_rule
	// blocks derive membership from unit IDs
	Membership string `hcl:"membership,optional"`

	// Targets is the target-total table path; omit it for
	// self-reallocation runs. Single-year-of-age rows band automatically.
	Targets string `hcl:"targets,optional"`

	// Baseline is the external baseline-total table path, required when
	// denominator is "external"
	Baseline string `hcl:"baseline,optional"`

	// Mode is the share mode: "magnitude" (default) or "count"
	Mode string `hcl:"mode,optional"`

	// Denominator is the share denominator source: "catchment" or
	// "external". Disaggregation runs must name one explicitly.
	Denominator string `hcl:"denominator,optional"`

	// Strict escalates conservation discrepancies to fatal errors
	Strict bool `hcl:"strict,optional"`

	// ZoneRules assign zones by unit-ID prefix, in declaration order
	ZoneRules []ZoneRule `hcl:"zone_rule,block"`

	// Splits declare units straddling zones with explicit weights
	Splits []Split `hcl:"split,block"`

	// Tolerance overrides the default numeric tolerances
	Tolerance *Tolerance `hcl:"tolerance,block"`
}

// ZoneRule assigns units with a given ID prefix to a zone
type ZoneRule struct {
	Prefix string `hcl:"prefix"`
	Zone   string `hcl:"zone"`
}

// Split declares one unit's explicit zone weights
type Split struct {
	Unit    string             `hcl:"unit,label"`
	Weights map[string]float64 `hcl:"weights"`
}

// Tolerance overrides numeric tolerances for a plan
type Tolerance struct {
	WeightAbsolute    *float64 `hcl:"weight_absolute,optional"`
	MagnitudeAbsolute *float64 `hcl:"magnitude_absolute,optional"`
}

// Load parses a plan file
func Load(path string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Parsing("failed to parse plan file "+path, diags)
	}

	var file File
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &file); diags.HasErrors() {
		return nil, errors.Parsing("failed to decode plan file "+path, diags)
	}

	for i := range file.Plans {
		if err := file.Plans[i].validate(); err != nil {
			return nil, err
		}
	}
	return &file, nil
}

// Find returns the named plan, or the only plan when name is empty
func (f *File) Find(name string) (*Plan, error) {
	if name == "" {
		if len(f.Plans) == 1 {
			return &f.Plans[0], nil
		}
		return nil, errors.Input("plan file defines several plans; name one")
	}
	for i := range f.Plans {
		if f.Plans[i].Name == name {
			return &f.Plans[i], nil
		}
	}
	return nil, errors.NotFound("plan", name)
}

func (p *Plan) validate() error {
	if p.Units == "" {
		return errors.Newf(errors.TypeInput, "plan %q names no unit table", p.Name)
	}
	if p.Membership == "" && len(p.ZoneRules) == 0 && len(p.Splits) == 0 {
		return errors.Newf(errors.TypeInput, "plan %q has neither a membership table nor zone rules", p.Name)
	}
	if _, err := share.ParseMode(p.Mode); err != nil {
		return err
	}
	if _, err := share.ParseDenominator(p.Denominator); err != nil {
		return err
	}
	if p.Denominator == string(share.DenominatorExternal) && p.Baseline == "" {
		return errors.Newf(errors.TypeInput, "plan %q uses an external denominator but names no baseline table", p.Name)
	}
	for _, s := range p.Splits {
		if len(s.Weights) == 0 {
			return errors.Newf(errors.TypeInput, "plan %q declares split unit %s with no weights", p.Name, s.Unit)
		}
	}
	return nil
}

// ShareMode returns the parsed share mode
func (p *Plan) ShareMode() share.Mode {
	mode, _ := share.ParseMode(p.Mode)
	return mode
}

// DenominatorSource returns the plan's denominator source. A plan naming
// none yields the empty source: casual runs treat that as catchment, while
// disaggregation refuses to infer one.
func (p *Plan) DenominatorSource() share.Denominator {
	return share.Denominator(p.Denominator)
}

// Rules returns the plan's prefix rules in declaration order
func (p *Plan) Rules() []split.ZoneRule {
	rules := make([]split.ZoneRule, 0, len(p.ZoneRules))
	for _, r := range p.ZoneRules {
		rules = append(rules, split.ZoneRule{Prefix: r.Prefix, Zone: types.ZoneID(r.Zone)})
	}
	return rules
}

// SplitWeights returns the plan's explicit split weights per unit, each
// unit's zones in sorted order
func (p *Plan) SplitWeights() map[types.UnitID][]types.ZoneWeight {
	if len(p.Splits) == 0 {
		return nil
	}
	out := make(map[types.UnitID][]types.ZoneWeight, len(p.Splits))
	for _, s := range p.Splits {
		var zw []types.ZoneWeight
		determinism.RangeMapSorted(s.Weights, func(zone string, weight float64) bool {
			zw = append(zw, types.ZoneWeight{
				Zone:   types.ZoneID(zone),
				Weight: decimal.NewFromFloat(weight),
			})
			return true
		})
		out[types.UnitID(s.Unit)] = zw
	}
	return out
}

// MagnitudeTolerance returns the plan's magnitude tolerance override,
// or zero when unset
func (p *Plan) MagnitudeTolerance() decimal.Decimal {
	if p.Tolerance == nil || p.Tolerance.MagnitudeAbsolute == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*p.Tolerance.MagnitudeAbsolute)
}

// WeightTolerance returns the plan's weight tolerance override, or zero
// when unset
func (p *Plan) WeightTolerance() decimal.Decimal {
	if p.Tolerance == nil || p.Tolerance.WeightAbsolute == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*p.Tolerance.WeightAbsolute)
}
