// Package output provides output formatting interfaces.
// This package produces human and machine-readable renderings of an
// allocation run; persistence of the rendered bytes belongs to callers.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"arealloc/core/types"
	"arealloc/core/validate"
	"arealloc/internal/errors"
)

// Format represents output format type
type Format string

const (
	// FormatTable is a human-readable table
	FormatTable Format = "table"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"

	// FormatCSV is delimited text for downstream tooling
	FormatCSV Format = "csv"
)

// ParseFormat parses a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatCSV:
		return Format(s), nil
	case "":
		return FormatTable, nil
	default:
		return "", errors.Newf(errors.TypeNotSupported, "unknown output format %q (want table, json, or csv)", s)
	}
}

// RunOutput is the complete output of one allocation run
type RunOutput struct {
	// Plan names the allocation plan that produced this run
	Plan string `json:"plan"`

	// Mode is the share mode the run used
	Mode string `json:"mode"`

	// Denominator is the share denominator source
	Denominator string `json:"denominator"`

	// SelfReallocation marks identity passes run for percentage statistics
	SelfReallocation bool `json:"self_reallocation"`

	// GeneratedAt is the run timestamp, RFC 3339
	GeneratedAt string `json:"generated_at"`

	// Rows are the allocated values
	Rows []types.AllocatedRow `json:"rows"`

	// Report is the validation report for the run
	Report *validate.Report `json:"report"`
}

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render writes the run output
	Render(w io.Writer, out *RunOutput) error
}

// NewFormatter returns the formatter for a format
func NewFormatter(f Format) (Formatter, error) {
	switch f {
	case FormatTable:
		return tableFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatCSV:
		return csvFormatter{}, nil
	default:
		return nil, errors.Newf(errors.TypeNotSupported, "unknown output format %q", f)
	}
}

type jsonFormatter struct{}

func (jsonFormatter) Format() Format { return FormatJSON }

func (jsonFormatter) Render(w io.Writer, out *RunOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type tableFormatter struct{}

func (tableFormatter) Format() Format { return FormatTable }

func (tableFormatter) Render(w io.Writer, out *RunOutput) error {
	fmt.Fprintf(w, "Plan: %s  mode=%s denominator=%s self=%v\n\n",
		out.Plan, out.Mode, out.Denominator, out.SelfReallocation)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tZONE\tCATEGORY\tYEAR\tSHARE\tPCT\tVALUE")
	for _, row := range out.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Unit, row.Zone, row.Category,
			yearLabel(row.Year),
			row.Share.StringFixed(6),
			percent(row.Share),
			row.Value.StringFixed(4))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if out.Report == nil {
		return nil
	}

	fmt.Fprintf(w, "\nConservation (%d strata, max discrepancy %s):\n",
		len(out.Report.Rows), out.Report.MaxDiscrepancy().String())
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATUM\tYEAR\tEXPECTED\tACTUAL\tDISCREPANCY\tOK")
	for _, row := range out.Report.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n",
			row.Key.Stratum, yearLabel(row.Key.Year),
			row.Expected.StringFixed(4), row.Actual.StringFixed(4),
			row.Discrepancy.StringFixed(6), row.WithinTolerance)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(out.Report.Findings) > 0 {
		fmt.Fprintf(w, "\nFindings (%d):\n", len(out.Report.Findings))
		for _, f := range out.Report.Findings {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	return nil
}

type csvFormatter struct{}

func (csvFormatter) Format() Format { return FormatCSV }

func (csvFormatter) Render(w io.Writer, out *RunOutput) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unit_id", "zone_id", "age_group", "sex", "class", "year", "share", "allocated_value"}); err != nil {
		return err
	}
	for _, row := range out.Rows {
		record := []string{
			string(row.Unit),
			string(row.Zone),
			row.Category.AgeGroup,
			row.Category.Sex,
			row.Category.Class,
			yearLabel(row.Year),
			row.Share.String(),
			row.Value.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func yearLabel(year int) string {
	if year == 0 {
		return "-"
	}
	return strconv.Itoa(year)
}

func percent(share decimal.Decimal) string {
	return share.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
