// Package engine runs the allocation pipeline in its required order:
// split-unit resolution, share computation, allocation, conservation
// validation. Each stage consumes its input and produces a new table;
// no stage mutates another stage's data.
package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arealloc/core/alloc"
	"arealloc/core/share"
	"arealloc/core/split"
	"arealloc/core/types"
	"arealloc/core/validate"
	"arealloc/internal/errors"
)

// RunSpec describes one allocation pass
type RunSpec struct {
	// Units is the base unit table, immutable for the run
	Units []types.UnitRow

	// Memberships maps units to zones with weights
	Memberships []types.Membership

	// Mode selects count or magnitude shares
	Mode share.Mode

	// Denominator selects the share denominator source
	Denominator share.Denominator

	// Baseline supplies external stratum totals when Denominator is external
	Baseline map[types.StratumKey]decimal.Decimal

	// Targets are the totals to distribute; nil runs a self-reallocation
	Targets *alloc.TargetTable

	// Strict escalates conservation discrepancies to a fatal error
	Strict bool

	// AbsoluteTolerance overrides the validator's default when positive
	AbsoluteTolerance decimal.Decimal

	// WeightTolerance overrides the resolver's default when positive
	WeightTolerance decimal.Decimal
}

// RunResult carries every stage's output. The report always accompanies
// the allocated rows, so callers can persist partial results next to the
// discrepancies that qualify them.
type RunResult struct {
	Fragments  []types.Fragment
	Shares     *share.Table
	Allocation *alloc.Result
	Report     *validate.Report
}

// Engine is the allocation pipeline
type Engine struct {
	log       *zap.Logger
	resolver  *split.Resolver
	allocator *alloc.Allocator
}

// New creates an engine. A nil logger disables logging.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:       log,
		resolver:  split.NewResolver(),
		allocator: alloc.NewAllocator(),
	}
}

// Run executes one allocation pass. Stages run strictly in order; a stage
// never starts before its predecessor has fully completed.
func (e *Engine) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if len(spec.Units) == 0 {
		return nil, errors.Input("unit table is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolver := e.resolver
	if spec.WeightTolerance.IsPositive() {
		resolver = &split.Resolver{WeightTolerance: spec.WeightTolerance}
	}
	fragments, resolveFindings, err := resolver.Resolve(spec.Units, spec.Memberships)
	if err != nil {
		return nil, err
	}
	e.log.Info("resolved split units",
		zap.Int("units", len(spec.Units)),
		zap.Int("fragments", len(fragments)),
		zap.Int("findings", len(resolveFindings)))

	builder := &share.Builder{
		Mode:        spec.Mode,
		Denominator: spec.Denominator,
		Baseline:    spec.Baseline,
	}
	table, err := builder.Build(fragments)
	if err != nil {
		return nil, err
	}
	e.log.Info("built share table",
		zap.String("mode", string(table.Mode)),
		zap.String("denominator", string(table.Denominator)),
		zap.Int("strata", table.Totals.Len()),
		zap.Int("empty_strata", len(table.EmptyStrata)))

	allocation, err := e.allocator.Allocate(table, spec.Targets)
	if err != nil {
		return nil, err
	}
	e.log.Info("allocated",
		zap.Bool("self_reallocation", allocation.SelfReallocation),
		zap.Int("rows", len(allocation.Rows)),
		zap.Int("skipped_strata", len(allocation.Skipped)),
		zap.Int("unallocatable_totals", len(allocation.Unallocatable)))

	validator := validate.NewValidator(validate.Options{
		AbsoluteTolerance: spec.AbsoluteTolerance,
		Strict:            spec.Strict,
	})
	report, verr := validator.Check(allocation)
	report.AddFindings(resolveFindings...)
	report.AddFindings(table.Findings...)

	result := &RunResult{
		Fragments:  fragments,
		Shares:     table,
		Allocation: allocation,
		Report:     report,
	}
	if verr != nil {
		// The report still rides along so the caller can see which
		// stratum drifted.
		e.log.Error("conservation check failed", zap.Error(verr))
		return result, verr
	}
	e.log.Info("validated",
		zap.Int("checked_strata", len(report.Rows)),
		zap.Bool("clean", report.Clean()),
		zap.String("max_discrepancy", report.MaxDiscrepancy().String()))

	return result, nil
}

// Aggregate tallies units per stratum: a count-mode self-reallocation over
// the supplied membership, the simplest of the mapping approaches.
func (e *Engine) Aggregate(ctx context.Context, spec RunSpec) (*RunResult, error) {
	spec.Mode = share.ModeCount
	spec.Targets = nil
	spec.Strict = false
	return e.Run(ctx, spec)
}

// RunProportional keeps straddling units fractionally split across every
// overlapping zone, the proportional mapping approach.
func (e *Engine) RunProportional(ctx context.Context, spec RunSpec) (*RunResult, error) {
	return e.Run(ctx, spec)
}

// RunDominant collapses every unit onto its highest-weight zone before
// running a self-reallocation, the dominant-zone mapping approach.
func (e *Engine) RunDominant(ctx context.Context, spec RunSpec) (*RunResult, error) {
	spec.Memberships = split.Dominant(spec.Memberships)
	spec.Targets = nil
	spec.Strict = false
	return e.Run(ctx, spec)
}

// Disaggregate distributes externally authoritative totals down to units.
// Targets are mandatory and conservation failures are fatal on this path.
func (e *Engine) Disaggregate(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if spec.Targets == nil || spec.Targets.Len() == 0 {
		return nil, errors.Input("disaggregation requires a target-total table")
	}
	if spec.Denominator == "" {
		return nil, errors.Input("disaggregation requires an explicit denominator source")
	}
	spec.Strict = true
	return e.Run(ctx, spec)
}
