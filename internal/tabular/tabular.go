// Package tabular parses delimited e-wallet exports into ordered,
// header-keyed records.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// MalformedTableError reports a structural problem that blocks the whole
// import: too few lines, unterminated quoting, or a row whose width
// disagrees with the header.
type MalformedTableError struct {
	Line int // 1-based physical line, 0 when unknown
	Err  error
}

func (e *MalformedTableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed table at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed table: %v", e.Err)
}

func (e *MalformedTableError) Unwrap() error { return e.Err }

// MissingHeaderError lists required column names absent from the header row.
type MissingHeaderError struct {
	Missing []string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Record is one data row keyed by column header. Records are immutable and
// preserve the source file order.
type Record struct {
	headers []string
	values  []string
	line    int
}

// Get returns the raw value under the given column header.
func (r Record) Get(header string) (string, bool) {
	for i, h := range r.headers {
		if h == header {
			return r.values[i], true
		}
	}
	return "", false
}

// Line returns the 1-based physical line the record started on.
func (r Record) Line() int { return r.line }

// Parse reads comma-separated text with optional double-quoted fields
// (doubled-quote escaping, embedded commas and newlines) into records in
// file order. The first line is the header row; every data row must match
// its width. A table with no header or no data rows is malformed.
func Parse(text string) ([]Record, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &MalformedTableError{Err: fmt.Errorf("file is empty")}
		}
		return nil, wrapCSVErr(err)
	}
	header = stripBOM(header)

	var out []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapCSVErr(err)
		}
		line, _ := cr.FieldPos(0)
		out = append(out, Record{headers: header, values: rec, line: line})
	}
	if len(out) == 0 {
		return nil, &MalformedTableError{Err: fmt.Errorf("no data rows")}
	}
	return out, nil
}

// Headers reads only the header row, for fail-fast validation before a full
// parse.
func Headers(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &MalformedTableError{Err: fmt.Errorf("file is empty")}
		}
		return nil, wrapCSVErr(err)
	}
	return stripBOM(header), nil
}

// ValidateHeaders checks that every required column is present, reporting
// the exact missing names in required order.
func ValidateHeaders(headers, required []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, want := range required {
		if !present[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return &MissingHeaderError{Missing: missing}
	}
	return nil
}

func wrapCSVErr(err error) error {
	if pe, ok := err.(*csv.ParseError); ok {
		return &MalformedTableError{Line: pe.Line, Err: pe.Err}
	}
	return &MalformedTableError{Err: err}
}

func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	return header
}
