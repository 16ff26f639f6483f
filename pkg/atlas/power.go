package atlas

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"

	"atlastransform/internal/models"
)

// powerRow is one line of the coordinate table. Column names are matched
// case-insensitively.
type powerRow struct {
	ROI int     `csv:"roi"`
	X   float64 `csv:"x"`
	Y   float64 `csv:"y"`
	Z   float64 `csv:"z"`
}

// Delimiters accepted from the detector. Signs and decimal points also occur
// at a steady rate in coordinate tables, so they must never win.
const delimiterCandidates = ",\t; |"

// DetermineDelimiter returns the most likely field separator of a CSV-like
// stream, falling back to a comma.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	for _, delim := range d.DetectDelimiter(r, '"') {
		if len(delim) == 1 && strings.ContainsRune(delimiterCandidates, rune(delim[0])) {
			return rune(delim[0])
		}
	}
	return ','
}

// ParsePoints decodes a roi,x,y,z table into sphere centres, in file order
func ParsePoints(data []byte) ([]models.Point, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = DetermineDelimiter(bytes.NewReader(data))
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	rows := []*powerRow{}
	if err := gocsv.UnmarshalCSV(&lowerHeaderReader{Reader: cr}, &rows); err != nil {
		return nil, pfx.Err(err)
	}
	if len(rows) == 0 {
		return nil, pfx.Err(fmt.Errorf("coordinate table has no rows"))
	}

	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	zs := make([]float64, len(rows))
	for i, row := range rows {
		xs[i], ys[i], zs[i] = row.X, row.Y, row.Z
	}

	return stackPoints(xs, ys, zs)
}

// stackPoints zips three parallel coordinate columns
func stackPoints(xs, ys, zs []float64) ([]models.Point, error) {
	if len(xs) != len(ys) || len(xs) != len(zs) {
		return nil, fmt.Errorf("coordinate columns differ in length: x=%d y=%d z=%d", len(xs), len(ys), len(zs))
	}

	out := make([]models.Point, len(xs))
	for i := range xs {
		out[i] = models.Point{X: xs[i], Y: ys[i], Z: zs[i]}
	}
	return out, nil
}

// lowerHeaderReader lowercases the header line so that "ROI,X,Y,Z" and
// "roi,x,y,z" decode alike
type lowerHeaderReader struct {
	*csv.Reader
	seenHeader bool
}

func (r *lowerHeaderReader) Read() ([]string, error) {
	rec, err := r.Reader.Read()
	if err != nil {
		return rec, err
	}
	if !r.seenHeader {
		r.seenHeader = true
		for i := range rec {
			rec[i] = strings.ToLower(strings.TrimSpace(rec[i]))
		}
	}
	return rec, nil
}

func (r *lowerHeaderReader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
