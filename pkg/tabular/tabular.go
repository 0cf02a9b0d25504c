// Package tabular turns uploaded CSV and XLSX files into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jromanv/portal-liceo-tecpan-sub000/pkg/textenc"
)

var (
	// ErrEmptyFile means the file carried no data rows.
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnsupportedFormat means the filename extension maps to no parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Format identifies the parser selected for a file.
type Format string

const (
	FormatDelimited   Format = "csv"
	FormatSpreadsheet Format = "xlsx"
)

// Row is one data line keyed by header name. Line 1 is the header so the first data row is line 2.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Has reports whether the row carries the column at all.
func (r Row) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// Table is a parsed upload.
type Table struct {
	Format   Format
	Encoding textenc.Detection
	Headers  []string
	Rows     []Row
}

// MissingColumns returns the required columns absent from the header, in the order given.
func (t *Table) MissingColumns(required ...string) []string {
	present := make(map[string]struct{}, len(t.Headers))
	for _, h := range t.Headers {
		present[h] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// FormatFor maps a filename to its parser by extension.
func FormatFor(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatDelimited, nil
	case ".xlsx", ".xlsm":
		return FormatSpreadsheet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Parse dispatches buf to the delimited or spreadsheet parser based on filename.
func Parse(filename string, buf []byte) (*Table, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, ErrEmptyFile
	}

	switch format {
	case FormatSpreadsheet:
		return ParseSpreadsheet(buf)
	default:
		text, det, err := textenc.Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		table, err := ParseDelimited(text)
		if err != nil {
			return nil, err
		}
		table.Encoding = det
		return table, nil
	}
}

// ParseDelimited parses comma separated text whose first record is the header.
func ParseDelimited(text string) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}

	table, err := build(records)
	if err != nil {
		return nil, err
	}
	table.Format = FormatDelimited
	return table, nil
}

// ParseSpreadsheet reads the first sheet of an XLSX workbook; its first row is the header.
func ParseSpreadsheet(buf []byte) (*Table, error) {
	book, err := excelize.OpenReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	table, err := build(records)
	if err != nil {
		return nil, err
	}
	table.Format = FormatSpreadsheet
	table.Encoding = textenc.Detection{Charset: textenc.UTF8, Confidence: 100}
	return table, nil
}

func build(records [][]string) (*Table, error) {
	// Leading blank lines come before the header.
	for len(records) > 0 && isBlank(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	headers := normalizeHeaders(records[0])
	table := &Table{Headers: headers}
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(record) {
				values[header] = record[i]
			} else {
				values[header] = ""
			}
		}
		table.Rows = append(table.Rows, Row{Line: len(table.Rows) + 2, Values: values})
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}

func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimPrefix(h, "\ufeff")
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return headers
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
