package table

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"atlastransform/internal/apperr"
	"atlastransform/pkg/region"
)

func TestOutputName(t *testing.T) {
	tests := []struct {
		source string
		token  string
		series bool
		style  SeriesStyle
		want   string
	}{
		{"sub-01_bold.nii.gz", "craddock_200", false, Joined, "sub-01_bold_craddock_200.csv"},
		{"/data/sub-01/func/sub-01_bold.nii.gz", "shen", true, Joined, "sub-01_bold_shents.csv"},
		{"sub-01_bold.nii", "shen", true, Separated, "sub-01_bold_shen_ts.csv"},
		{"gs://bucket/dir/scan.nii.gz", "power", false, Separated, "scan_power.csv"},
		{"scan.nii.gz", "power", true, "", "scan_powerts.csv"},
		{"archive.tar", "shen", false, Joined, "archive.tar_shen.csv"},
	}

	for _, tt := range tests {
		if got := OutputName(tt.source, tt.token, tt.series, tt.style); got != tt.want {
			t.Errorf("OutputName(%q, %q, %v, %q) = %q, expected %q", tt.source, tt.token, tt.series, tt.style, got, tt.want)
		}
	}
}

func TestParseSeriesStyle(t *testing.T) {
	for in, want := range map[string]SeriesStyle{"": Joined, "ts": Joined, "_ts": Separated} {
		got, err := ParseSeriesStyle(in)
		if err != nil || got != want {
			t.Errorf("ParseSeriesStyle(%q) = %q, %v; expected %q", in, got, err, want)
		}
	}
	if _, err := ParseSeriesStyle("-ts"); !apperr.IsKind(err, apperr.Config) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := map[float64]string{
		1:      "1.000000000000000000e+00",
		-0.25:  "-2.500000000000000000e-01",
		1234.5: "1.234500000000000000e+03",
	}
	for v, want := range tests {
		if got := FormatValue(v); got != want {
			t.Errorf("FormatValue(%g) = %q, expected %q", v, got, want)
		}
	}
	if got := FormatValue(math.NaN()); got != "nan" {
		t.Errorf("Expected nan, got %q", got)
	}
}

// TestWrite verifies the on-disk layout: no header, one line per region and
// one field per volume
func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	table := region.Table{Rows: []region.Row{
		{ID: 1, Values: []float64{1, 2, 3}},
		{ID: 4, Values: []float64{0.5, math.NaN(), -1}},
	}}

	path, err := Write(table, dir, "/in/sub-02_bold.nii.gz", "shen", true, Joined)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if want := filepath.Join(dir, "sub-02_bold_shents.csv"); path != want {
		t.Errorf("Expected path %q, got %q", want, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), data)
	}
	if want := "1.000000000000000000e+00,2.000000000000000000e+00,3.000000000000000000e+00"; lines[0] != want {
		t.Errorf("Expected first line %q, got %q", want, lines[0])
	}
	if fields := strings.Split(lines[1], ","); len(fields) != 3 || fields[1] != "nan" {
		t.Errorf("Unexpected second line %q", lines[1])
	}
}

func TestWriteUnwritable(t *testing.T) {
	// A regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	_, err := Write(region.Table{}, filepath.Join(blocker, "out"), "a.nii", "shen", false, Joined)
	if !apperr.IsKind(err, apperr.Output) {
		t.Fatalf("Expected output error, got %v", err)
	}
}
