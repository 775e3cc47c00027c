package cli

import (
	"bytes"
	"strings"
	"testing"
)

type testTable struct{}

func (testTable) Header() []string { return []string{"SUBJECT", "NOT AFTER"} }
func (testTable) Rows() [][]string {
	return [][]string{
		{"CN=server", "2027-01-01"},
		{"CN=certwatch test CA, O=acme", "2030-01-01"},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, testTable{}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	// Columns are aligned on the widest cell.
	if strings.Index(lines[0], "NOT AFTER") != strings.Index(lines[1], "2027") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}

	buf.Reset()
	if err := NewFormatter(FormatText).FormatTo(&buf, "plain"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, map[string]int{"days": 3}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"days\": 3\n}\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, testTable{}); err != nil {
		t.Fatal(err)
	}
	want := "SUBJECT,NOT AFTER\nCN=server,2027-01-01\n\"CN=certwatch test CA, O=acme\",2030-01-01\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	if err := NewFormatter(FormatCSV).FormatTo(&buf, 42); err == nil {
		t.Error("expected error for non-table data")
	}
}
