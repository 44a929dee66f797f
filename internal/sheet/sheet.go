// Package sheet reads the first worksheet of an uploaded schedule and looks
// rows up by a key column.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// FormatError reports a workbook that cannot be read.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return "sheet: " + e.Err.Error() }

func (e *FormatError) Unwrap() error { return e.Err }

// Table holds raw cell text of the first worksheet, row by row. Trailing
// empty cells are not stored.
type Table struct {
	Rows [][]string
}

// Row is one schedule row together with the header row it belongs to.
type Row struct {
	Index  int
	Cells  []string
	header []string
}

// Cell returns the trimmed cell at col, or "" past the end of the row.
func (r Row) Cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[col])
}

// Named returns the cell under the header cell whose trimmed text equals
// name.
func (r Row) Named(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for i, h := range r.header {
		if strings.TrimSpace(h) == name {
			return r.Cell(i), true
		}
	}
	return "", false
}

// Open reads up to maxRows rows of the first worksheet. maxRows <= 0 reads
// everything.
func Open(r io.Reader, maxRows int) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Err: errors.New("workbook has no worksheets")}
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	defer rows.Close()

	t := &Table{}
	for rows.Next() {
		if maxRows > 0 && len(t.Rows) >= maxRows {
			break
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &FormatError{Err: fmt.Errorf("row %d: %w", len(t.Rows)+1, err)}
		}
		t.Rows = append(t.Rows, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, &FormatError{Err: err}
	}
	return t, nil
}

// HeaderRow finds the first cell whose trimmed text equals name.
func (t *Table) HeaderRow(name string) (row, col int, ok bool) {
	name = strings.TrimSpace(name)
	for ri, cells := range t.Rows {
		for ci, c := range cells {
			if strings.TrimSpace(c) == name {
				return ri, ci, true
			}
		}
	}
	return 0, 0, false
}

// FindRow returns the first row below the keyColumn header whose cell in
// that column equals keyValue after trimming.
func (t *Table) FindRow(keyColumn, keyValue string) (Row, bool) {
	hr, col, ok := t.HeaderRow(keyColumn)
	if !ok {
		return Row{}, false
	}
	keyValue = strings.TrimSpace(keyValue)
	for ri := hr + 1; ri < len(t.Rows); ri++ {
		r := Row{Index: ri, Cells: t.Rows[ri], header: t.Rows[hr]}
		if r.Cell(col) == keyValue {
			return r, true
		}
	}
	return Row{}, false
}

// Keys lists the non-empty values below the keyColumn header.
func (t *Table) Keys(keyColumn string) ([]string, bool) {
	hr, col, ok := t.HeaderRow(keyColumn)
	if !ok {
		return nil, false
	}
	keys := []string{}
	for _, cells := range t.Rows[hr+1:] {
		if col < len(cells) {
			if v := strings.TrimSpace(cells[col]); v != "" {
				keys = append(keys, v)
			}
		}
	}
	return keys, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006",
}

// ParseDate reads a date cell: an Excel serial day number or one of the
// textual layouts a schedule uses.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// DecimalComma renders a number with a decimal comma and at least one
// fractional digit: "10" becomes "10,0" and "10.5" becomes "10,5". Text that
// is not a number only has its dots replaced.
func DecimalComma(raw string) string {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return strings.ReplaceAll(raw, ".", ",")
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return strings.ReplaceAll(s, ".", ",")
}
