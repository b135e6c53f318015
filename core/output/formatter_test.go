package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"arealloc/core/types"
	"arealloc/core/validate"
)

func sampleRun() *RunOutput {
	return &RunOutput{
		Plan:        "region",
		Mode:        "magnitude",
		Denominator: "catchment",
		GeneratedAt: "2026-08-29T00:00:00Z",
		Rows: []types.AllocatedRow{
			{
				Unit:     "A",
				Zone:     "Z1",
				Category: types.Category{AgeGroup: "0-17", Sex: "F"},
				Year:     2030,
				Share:    decimal.NewFromFloat(0.6),
				Value:    decimal.NewFromInt(300),
			},
		},
		Report: &validate.Report{
			Rows: []validate.Row{{
				Key:             types.TargetKey{Stratum: types.StratumKey{Zone: "Z1", Category: types.Category{AgeGroup: "0-17", Sex: "F"}}, Year: 2030},
				Expected:        decimal.NewFromInt(300),
				Actual:          decimal.NewFromInt(300),
				WithinTolerance: true,
			}},
		},
	}
}

// TestParseFormat tests format names
func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "table", want: FormatTable},
		{in: "json", want: FormatJSON},
		{in: "csv", want: FormatCSV},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

// TestJSONRoundTrip tests that JSON output decodes back
func TestJSONRoundTrip(t *testing.T) {
	f, err := NewFormatter(FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf, sampleRun()); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded RunOutput
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Plan != "region" || len(decoded.Rows) != 1 {
		t.Errorf("decoded %+v", decoded)
	}
	if !decoded.Rows[0].Value.Equal(decimal.NewFromInt(300)) {
		t.Errorf("value %s, want 300", decoded.Rows[0].Value)
	}
}

// TestTableRender tests the human-readable rendering
func TestTableRender(t *testing.T) {
	f, err := NewFormatter(FormatTable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf, sampleRun()); err != nil {
		t.Fatalf("render: %v", err)
	}
	got := buf.String()

	for _, want := range []string{"Plan: region", "UNIT", "60.00%", "Conservation", "Z1:0-17/F/"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

// TestCSVRender tests the delimited rendering
func TestCSVRender(t *testing.T) {
	f, err := NewFormatter(FormatCSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf, sampleRun()); err != nil {
		t.Fatalf("render: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	if lines[1] != "A,Z1,0-17,F,,2030,0.6,300" {
		t.Errorf("row %q", lines[1])
	}
}
