// Package cmd - allocate command
package cmd

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"arealloc/adapters/cli"
	"arealloc/adapters/plan"
	"arealloc/core/output"
	"arealloc/internal/config"
	"arealloc/internal/logging"

	"go.uber.org/zap"
)

var (
	planName  string
	rowsOut   string
	reportOut string
	noStore   bool
	selfOnly  bool
)

// allocateCmd runs the proportional allocation approach. Plans without a
// target table run as a self-reallocation, producing within-zone
// percentage statistics.
var allocateCmd = &cobra.Command{
	Use:   "allocate [plan-file]",
	Short: "Run proportional allocation for a plan",
	Long: `Run the proportional allocation approach for one plan.

Split units are expanded into weighted fragments, shares are computed per
stratum, and target totals (when the plan names any) are distributed over
the shares. Without targets the pass reallocates each stratum onto itself
to produce within-zone percentages.

Examples:
  arealloc allocate plan.hcl
  arealloc allocate --plan york_durham --out rows.csv plans.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: runAllocate,
}

func init() {
	allocateCmd.Flags().StringVarP(&planName, "plan", "p", "", "plan name when the file defines several")
	allocateCmd.Flags().StringVar(&rowsOut, "out", "", "write allocated rows to a CSV file")
	allocateCmd.Flags().StringVar(&reportOut, "report", "", "write the validation report to a CSV file")
	allocateCmd.Flags().BoolVar(&noStore, "no-store", false, "skip persisting the run")
	allocateCmd.Flags().BoolVar(&selfOnly, "self", false, "ignore the plan's targets and self-reallocate")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	return runApproach(args[0], adapter.ApproachProportional)
}

// runApproach is shared by allocate and project
func runApproach(planFile string, approach adapter.Approach) error {
	ctx := context.Background()

	file, err := plan.Load(planFile)
	if err != nil {
		return err
	}
	p, err := file.Find(planName)
	if err != nil {
		return err
	}

	a, cleanup, err := buildAdapter()
	if err != nil {
		return err
	}
	defer cleanup()

	logging.Info("running plan", zap.String("plan", p.Name), zap.String("approach", string(approach)))
	out, err := a.Run(ctx, p, approach)
	if out != nil {
		// A conservation failure still yields the partial rows and the
		// report naming the drifted stratum; export them for inspection.
		if exportErr := a.Export(out, rowsOut, reportOut); err == nil {
			err = exportErr
		}
	}
	return err
}

// buildAdapter wires the engine, store, and output format
func buildAdapter() (*adapter.Adapter, func(), error) {
	cleanup := func() {}
	var a *adapter.Adapter
	if noStore {
		a = adapter.New(newEngine(), nil)
	} else {
		s, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		a = adapter.New(newEngine(), s)
		cleanup = func() { _ = s.Close() }
	}

	cfg := config.Get()
	format := outputFormat
	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	f, err := output.ParseFormat(format)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	a.SetFormat(f)
	a.SetDefaultTolerances(parseTolerance(cfg.Tolerance.WeightAbsolute), parseTolerance(cfg.Tolerance.MagnitudeAbsolute))
	a.SetForceSelf(selfOnly)
	a.SetShowFindings(cfg.Output.ShowFindings)
	return a, cleanup, nil
}

// parseTolerance reads a configured decimal string; unparseable or empty
// values keep the engine defaults.
func parseTolerance(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
