// Package cmd - compare command
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"arealloc/adapters/plan"
)

// compareCmd runs the three mapping approaches side by side
var compareCmd = &cobra.Command{
	Use:   "compare [plan-file]",
	Short: "Run count, dominant, and proportional approaches side by side",
	Long: `Run all three mapping approaches over the same plan: unit counts
per stratum, dominant-zone population shares, and proportional allocation
across all overlapping zones.

Comparing the three within-zone percentage tables shows how much the
choice of approach moves the picture for each zone.

Example:
  arealloc compare plan.hcl`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVarP(&planName, "plan", "p", "", "plan name when the file defines several")
	compareCmd.Flags().BoolVar(&noStore, "no-store", false, "skip persisting the runs")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	file, err := plan.Load(args[0])
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

	return a.Compare(ctx, p)
}
