package pricing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hospbill/billing/internal/platform/apperr"
)

var requiredColumns = []string{"entity_type", "identifier", "new_price"}

// ParseUpload reads a price sheet (.csv, or the first sheet of an .xlsx)
// whose first row names the columns.
func ParseUpload(filename string, data []byte) ([]BulkRow, error) {
	var table [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", "":
		table, err = readCSV(data)
	case ".xlsx":
		table, err = readXLSX(data)
	default:
		return nil, apperr.Validation("unsupported file type %q: upload a .csv or .xlsx file", filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return rowsFromTable(table)
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperr.Validation("invalid CSV format: %v", err)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation("failed to parse Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, apperr.Validation("Excel file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func rowsFromTable(table [][]string) ([]BulkRow, error) {
	if len(table) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	cols := make(map[string]int)
	for i, h := range table[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, apperr.Validation("missing required column: %s", c)
		}
	}
	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []BulkRow
	for _, rec := range table[1:] {
		if blank(rec) {
			continue
		}
		out = append(out, BulkRow{
			Row:           len(out) + 2,
			EntityType:    cell(rec, "entity_type"),
			Identifier:    cell(rec, "identifier"),
			NewPrice:      cell(rec, "new_price"),
			EffectiveDate: cell(rec, "effective_date"),
			Reason:        cell(rec, "reason"),
		})
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
