// Package table names and writes region tables as headerless CSV files.
package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"

	"atlastransform/internal/apperr"
	"atlastransform/pkg/region"
)

// SeriesStyle is the marker appended to the atlas token for time series input
type SeriesStyle string

const (
	// Joined gives "<stem>_<token>ts.csv", the form existing consumers expect
	Joined SeriesStyle = "ts"

	// Separated gives "<stem>_<token>_ts.csv"
	Separated SeriesStyle = "_ts"
)

// ParseSeriesStyle accepts "ts" or "_ts"; empty means Joined
func ParseSeriesStyle(s string) (SeriesStyle, error) {
	switch SeriesStyle(s) {
	case Joined, "":
		return Joined, nil
	case Separated:
		return Separated, nil
	default:
		return "", apperr.New(apperr.Config, "table.ParseSeriesStyle", "series suffix %q not recognized; accepted values: [%s %s]", s, Joined, Separated)
	}
}

// Stem strips the directory and any .nii.gz or .nii extension from source
func Stem(source string) string {
	base := filepath.Base(source)
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// OutputName derives the CSV file name for source processed with the atlas
// identified by token
func OutputName(source, token string, series bool, style SeriesStyle) string {
	suffix := ""
	if series {
		suffix = string(style)
		if suffix == "" {
			suffix = string(Joined)
		}
	}
	return fmt.Sprintf("%s_%s%s.csv", Stem(source), token, suffix)
}

// FormatValue renders v in scientific notation with 18 fractional digits.
// NaN is written as "nan".
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(v, 'e', 18, 64)
	}
}

// Write stores t under dir as OutputName(source, token, series, style) and
// returns the path written. One row per region, one column per volume, no
// header. dir is created if missing.
func Write(t region.Table, dir, source, token string, series bool, style SeriesStyle) (string, error) {
	const op = "table.Write"

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperr.Wrap(apperr.Output, op, pfx.Err(err))
	}

	path := filepath.Join(dir, OutputName(source, token, series, style))
	if err := writeFile(path, t); err != nil {
		return "", apperr.Wrap(apperr.Output, op, pfx.Err(fmt.Errorf("%s: %w", path, err)))
	}
	return path, nil
}

func writeFile(path string, t region.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	for _, row := range t.Rows {
		rec := make([]string, len(row.Values))
		for i, v := range row.Values {
			rec[i] = FormatValue(v)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
