package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
)

// ErrUnsupportedFormat is returned for input files whose extension has no reader.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadCSV loads a delimited text file with a header row. Every value is kept
// as text; empty cells are missing values.
func ReadCSV(name, path string) (tbl *Table, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(file))

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		records = append(records, record)
	}

	return textTable(name, header, records), nil
}

// ReadXLSX loads the first sheet of a workbook. The first row is the header.
func ReadXLSX(name, path string) (tbl *Table, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s of %s is empty", sheet, path)
	}

	return textTable(name, rows[0], rows[1:]), nil
}

func textTable(name string, header []string, records [][]string) *Table {
	cols := make([]Column, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[i] = Column{Name: strings.TrimSpace(h), Kind: KindText}
	}

	t := New(name, cols...)
	t.Rows = make([]Row, 0, len(records))
	for _, rec := range records {
		vals := make([]any, len(cols))
		for i := range cols {
			if i < len(rec) && rec[i] != "" {
				vals[i] = rec[i]
			}
		}
		t.Rows = append(t.Rows, Row{Values: vals})
	}
	return t
}
