// Package cmd - runs command
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsPlan string

// runsCmd lists persisted allocation runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted allocation runs",
	Long: `List runs saved to the configured run store, newest first.

Example:
  arealloc runs --plan york_durham`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().StringVarP(&runsPlan, "plan", "p", "", "only list runs for this plan")
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), runsPlan)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs stored.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAN\tCREATED\tMODE\tROWS\tCLEAN\tMAX DISCREPANCY")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%v\t%s\n",
			run.ID, run.Plan, run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.Mode, run.Rows, run.Clean, run.MaxDiscrepancy)
	}
	return tw.Flush()
}
