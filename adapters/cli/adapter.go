// Package adapter provides a thin wrapper over the core engine for the
// CLI. It loads a plan's tables, dispatches the requested mapping
// approach, renders the result, and optionally persists the run. All
// allocation logic stays in the engine.
package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"arealloc/adapters/plan"
	"arealloc/adapters/storage"
	"arealloc/adapters/tabular"
	"arealloc/core/engine"
	"arealloc/core/output"
	"arealloc/core/split"
	"arealloc/core/types"
	"arealloc/internal/errors"
)

// Approach selects which mapping approach a run uses
type Approach string

const (
	// ApproachProportional splits straddling units fractionally across
	// zones, then allocates
	ApproachProportional Approach = "proportional"

	// ApproachDominant assigns each unit wholly to its highest-weight zone
	ApproachDominant Approach = "dominant"

	// ApproachCount tallies units per stratum instead of magnitudes
	ApproachCount Approach = "count"

	// ApproachProject disaggregates projected totals down to units; the
	// strict conservation path
	ApproachProject Approach = "project"
)

// Adapter drives the engine from plan files
type Adapter struct {
	engine *engine.Engine
	store  storage.Store
	out    io.Writer
	format output.Format

	// defaults used when a plan carries no tolerance block
	weightTol    decimal.Decimal
	magnitudeTol decimal.Decimal

	// forceSelf ignores the plan's target table, turning every run into a
	// self-reallocation for within-zone percentage output
	forceSelf bool

	// showFindings controls whether rendered output includes findings
	showFindings bool
}

// New creates a CLI adapter. store may be nil to skip persistence.
func New(eng *engine.Engine, store storage.Store) *Adapter {
	return &Adapter{
		engine:       eng,
		store:        store,
		out:          os.Stdout,
		format:       output.FormatTable,
		showFindings: true,
	}
}

// SetOutput sets the output writer
func (a *Adapter) SetOutput(w io.Writer) {
	a.out = w
}

// SetFormat sets the output format
func (a *Adapter) SetFormat(f output.Format) {
	a.format = f
}

// SetDefaultTolerances sets the tolerances applied when a plan does not
// override them. Zero values keep the engine defaults.
func (a *Adapter) SetDefaultTolerances(weight, magnitude decimal.Decimal) {
	a.weightTol = weight
	a.magnitudeTol = magnitude
}

// SetForceSelf makes every run a self-reallocation, ignoring the plan's
// target table
func (a *Adapter) SetForceSelf(force bool) {
	a.forceSelf = force
}

// SetShowFindings controls whether rendered output includes findings
func (a *Adapter) SetShowFindings(show bool) {
	a.showFindings = show
}

// Run executes one plan under the given approach, renders the output, and
// persists the run when a store is configured.
func (a *Adapter) Run(ctx context.Context, p *plan.Plan, approach Approach) (*output.RunOutput, error) {
	spec, err := a.buildSpec(p)
	if err != nil {
		return nil, err
	}

	var result *engine.RunResult
	switch approach {
	case ApproachProportional:
		result, err = a.engine.RunProportional(ctx, *spec)
	case ApproachDominant:
		result, err = a.engine.RunDominant(ctx, *spec)
	case ApproachCount:
		result, err = a.engine.Aggregate(ctx, *spec)
	case ApproachProject:
		result, err = a.engine.Disaggregate(ctx, *spec)
	default:
		return nil, errors.Newf(errors.TypeInput, "unknown approach %q", approach)
	}
	if err != nil {
		// A failed conservation check still carries the report naming
		// the stratum that drifted; show it rather than swallowing it.
		if result != nil && result.Report != nil {
			out := a.buildOutput(p, result)
			if rerr := a.render(out); rerr == nil {
				return out, err
			}
		}
		return nil, err
	}

	out := a.buildOutput(p, result)
	if err := a.render(out); err != nil {
		return nil, err
	}

	if a.store != nil {
		if err := a.store.Save(ctx, storage.NewRun(p.Name, out)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// buildOutput assembles the run output envelope
func (a *Adapter) buildOutput(p *plan.Plan, result *engine.RunResult) *output.RunOutput {
	return &output.RunOutput{
		Plan:             p.Name,
		Mode:             string(result.Shares.Mode),
		Denominator:      string(result.Shares.Denominator),
		SelfReallocation: result.Allocation.SelfReallocation,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Rows:             result.Allocation.Rows,
		Report:           result.Report,
	}
}

// render writes the run output in the configured format. With findings
// display off, the rendering hides them; stored runs keep the full report.
func (a *Adapter) render(out *output.RunOutput) error {
	formatter, err := output.NewFormatter(a.format)
	if err != nil {
		return err
	}
	if !a.showFindings && out.Report != nil && len(out.Report.Findings) > 0 {
		trimmed := *out.Report
		trimmed.Findings = nil
		shown := *out
		shown.Report = &trimmed
		out = &shown
	}
	return formatter.Render(a.out, out)
}

// Compare runs the count, dominant, and proportional approaches over the
// same plan so their within-zone statistics can be set side by side.
// All three legs run as self-reallocations; a plan's target table would
// otherwise make the proportional leg incomparable with the other two.
func (a *Adapter) Compare(ctx context.Context, p *plan.Plan) error {
	forced := a.forceSelf
	a.forceSelf = true
	defer func() { a.forceSelf = forced }()

	for _, approach := range []Approach{ApproachCount, ApproachDominant, ApproachProportional} {
		fmt.Fprintf(a.out, "==== approach: %s ====\n", approach)
		if _, err := a.Run(ctx, p, approach); err != nil {
			return err
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

// Export writes the latest run's rows and report to CSV files
func (a *Adapter) Export(out *output.RunOutput, rowsPath, reportPath string) error {
	if rowsPath != "" {
		f, err := os.Create(rowsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := tabular.WriteAllocations(f, out.Rows); err != nil {
			return err
		}
	}
	if reportPath != "" && out.Report != nil {
		f, err := os.Create(reportPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := tabular.WriteReport(f, out.Report); err != nil {
			return err
		}
	}
	return nil
}

// buildSpec loads the plan's tables into a run spec. A membership table
// takes precedence; otherwise membership derives from the plan's zone
// rules and explicit splits.
func (a *Adapter) buildSpec(p *plan.Plan) (*engine.RunSpec, error) {
	units, err := tabular.LoadUnits(p.Units)
	if err != nil {
		return nil, err
	}

	var memberships []types.Membership
	if p.Membership != "" {
		memberships, err = tabular.LoadMemberships(p.Membership)
		if err != nil {
			return nil, err
		}
	} else {
		memberships = split.MembershipsFromRules(units, p.Rules(), p.SplitWeights())
	}

	magnitudeTol := p.MagnitudeTolerance()
	if !magnitudeTol.IsPositive() {
		magnitudeTol = a.magnitudeTol
	}
	weightTol := p.WeightTolerance()
	if !weightTol.IsPositive() {
		weightTol = a.weightTol
	}

	spec := &engine.RunSpec{
		Units:             units,
		Memberships:       memberships,
		Mode:              p.ShareMode(),
		Denominator:       p.DenominatorSource(),
		Strict:            p.Strict,
		AbsoluteTolerance: magnitudeTol,
		WeightTolerance:   weightTol,
	}

	if p.Baseline != "" {
		spec.Baseline, err = tabular.LoadBaseline(p.Baseline)
		if err != nil {
			return nil, err
		}
	}
	if p.Targets != "" && !a.forceSelf {
		spec.Targets, err = tabular.LoadTargets(p.Targets)
		if err != nil {
			return nil, err
		}
	}
	return spec, nil
}
