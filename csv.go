package iotanomaly

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Frame is a decoded CSV: a timestamp per row plus every numeric column.
type Frame struct {
	// Columns lists the numeric feature columns in file order.
	Columns []string

	// Values maps a column name to its readings. Unparseable cells are NaN.
	Values map[string][]float64

	// Timestamps holds one time per row; zero marks an unparseable cell.
	Timestamps []time.Time

	// Encoding names the character set the file was decoded with.
	Encoding string

	// SynthesizedTime is set when no timestamp column was found.
	SynthesizedTime bool
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Timestamps)
}

// CSVOptions tunes ReadCSV.
type CSVOptions struct {
	// MaxRows rejects files with more data rows. Zero means unlimited.
	MaxRows int

	// Now anchors synthesized timestamps; defaults to time.Now.
	Now func() time.Time
}

// reservedColumns are never treated as sensor features.
var reservedColumns = map[string]bool{
	"is_anomaly":    true,
	"anomaly_score": true,
	"label":         true,
	"id":            true,
	"index":         true,
}

// ReadCSV decodes a CSV file into a Frame. Input that is not valid UTF-8 is decoded as
// Windows-1252 when it uses that code page's extra characters and as Latin-1 otherwise.
// A column named like a timestamp supplies row times; without one, rows are spaced one
// minute apart ending at Now.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	text, encoding, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, csvError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		if blankRecord(rec) {
			continue
		}
		records = append(records, rec)
		if opts.MaxRows > 0 && len(records) > opts.MaxRows {
			return nil, fmt.Errorf("%w: csv has more than %d rows", ErrTooManyRows, opts.MaxRows)
		}
	}
	if len(records) == 0 {
		return nil, ErrEmptyCSV
	}

	f := &Frame{
		Values:   make(map[string][]float64),
		Encoding: encoding,
	}

	timeCol := timestampColumn(header)
	for j, name := range header {
		if j == timeCol || name == "" || reservedColumns[strings.ToLower(name)] {
			continue
		}
		if _, dup := f.Values[name]; dup {
			continue
		}
		if values, ok := numericColumn(records, j); ok {
			f.Columns = append(f.Columns, name)
			f.Values[name] = values
		}
	}
	if len(f.Columns) == 0 {
		return nil, ErrNoNumericColumns
	}

	f.Timestamps = make([]time.Time, len(records))
	if timeCol >= 0 {
		parsed := 0
		for i, rec := range records {
			if timeCol >= len(rec) {
				continue
			}
			if t, err := ParseTimestamp(rec[timeCol]); err == nil {
				f.Timestamps[i] = t
				parsed++
			}
		}
		if parsed > 0 {
			return f, nil
		}
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	f.SynthesizedTime = true
	start := now().UTC().Truncate(time.Second).Add(-time.Duration(len(records)) * time.Minute)
	for i := range f.Timestamps {
		f.Timestamps[i] = start.Add(time.Duration(i) * time.Minute)
	}
	return f, nil
}

func decodeText(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}

	dec, name := charmap.ISO8859_1.NewDecoder(), "latin-1"
	for _, b := range raw {
		if b >= 0x80 && b <= 0x9f {
			dec, name = charmap.Windows1252.NewDecoder(), "windows-1252"
			break
		}
	}
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("could not decode csv: %w", err)
	}
	return string(out), name, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &CSVError{Line: pe.Line, Cause: pe.Err}
	}
	return &CSVError{Cause: err}
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// timestampColumn returns the index of the column holding row times, or -1.
func timestampColumn(header []string) int {
	best := -1
	for j, name := range header {
		lower := strings.ToLower(name)
		switch {
		case lower == "timestamp":
			return j
		case best < 0 && (strings.Contains(lower, "time") || strings.Contains(lower, "date")):
			best = j
		}
	}
	return best
}

// numericColumn parses column j. It is numeric when most non-empty cells parse as numbers.
func numericColumn(records [][]string, j int) ([]float64, bool) {
	values := make([]float64, len(records))
	parsed, nonEmpty := 0, 0
	for i, rec := range records {
		values[i] = math.NaN()
		if j >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[j])
		if cell == "" {
			continue
		}
		nonEmpty++
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		values[i] = v
		parsed++
	}
	return values, parsed > 0 && parsed*2 > nonEmpty
}

// WriteCSV writes ds with a timestamp column followed by its metrics in sorted order
// and the detection columns.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	names := ds.MetricNames()

	header := append([]string{"timestamp"}, names...)
	header = append(header, "is_anomaly", "anomaly_score")
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for i := 0; i < ds.Len(); i++ {
		rec[0] = ""
		if ts, ok := ds.timeAt(i); ok {
			rec[0] = formatTimestamp(ts)
		}
		for j, name := range names {
			rec[j+1] = formatCell(ds.metricAt(name, i))
		}
		rec[len(names)+1] = "0"
		if ds.anomalyAt(i) {
			rec[len(names)+1] = "1"
		}
		rec[len(names)+2] = formatCell(ds.scoreAt(i))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
