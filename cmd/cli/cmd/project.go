// Package cmd - project command
package cmd

import (
	"github.com/spf13/cobra"

	"arealloc/adapters/cli"
)

// projectCmd disaggregates projected zone totals down to units. This is
// the strict path: projected totals are authoritative external figures,
// so conservation discrepancies abort the run.
var projectCmd = &cobra.Command{
	Use:   "project [plan-file]",
	Short: "Disaggregate projected zone totals down to units",
	Long: `Distribute externally supplied multi-year projected totals down to
the unit level using base-year shares.

The plan must name a target-total table and an explicit denominator
source. Each (year, age band, sex) stratum is disaggregated independently,
and the summed unit values must reproduce the projected totals exactly
within tolerance; any drift aborts the run.

Examples:
  arealloc project plan.hcl
  arealloc project --plan york_durham --out projected.csv plans.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: runProject,
}

func init() {
	projectCmd.Flags().StringVarP(&planName, "plan", "p", "", "plan name when the file defines several")
	projectCmd.Flags().StringVar(&rowsOut, "out", "", "write projected rows to a CSV file")
	projectCmd.Flags().StringVar(&reportOut, "report", "", "write the validation report to a CSV file")
	projectCmd.Flags().BoolVar(&noStore, "no-store", false, "skip persisting the run")
}

func runProject(cmd *cobra.Command, args []string) error {
	return runApproach(args[0], adapter.ApproachProject)
}
