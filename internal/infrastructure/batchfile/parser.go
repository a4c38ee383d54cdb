// Package batchfile parses uploaded batch files into batch items. CSV
// and XLSX are supported; the first row is the header and column names
// are matched case-insensitively with common aliases.
package batchfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

// column aliases mirror what batch customers actually send.
var columnAliases = map[string]string{
	"street_address": "street_address",
	"address":        "street_address",
	"street":         "street_address",
	"city":           "city",
	"county":         "county",
	"parcel_number":  "parcel_number",
	"parcel":         "parcel_number",
	"apn":            "parcel_number",
}

// Parse reads the uploaded file into batch items keyed to their source
// rows. Rows are captured verbatim in RawInput so a rejected item can
// always be traced back to its input.
func Parse(filename string, data []byte) ([]domain.BatchItem, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(data)
	case ".xlsx":
		rows, err = readXLSX(data)
	default:
		return nil, domain.WrapError(domain.ErrValidation, "batch parse",
			fmt.Errorf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(filename)))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("file has no data rows"))
	}

	header := rows[0]
	fields := make(map[int]string, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := columnAliases[key]; ok {
			fields[i] = canonical
		} else {
			fields[i] = key
		}
	}

	items := make([]domain.BatchItem, 0, len(rows)-1)
	for rowIdx, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		raw := make(map[string]string, len(row))
		item := domain.BatchItem{
			RowNumber: rowIdx + 1,
			Status:    domain.ItemPending,
		}
		for colIdx, value := range row {
			name, ok := fields[colIdx]
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			raw[name] = value
			switch name {
			case "street_address":
				item.StreetAddress = value
			case "city":
				item.City = value
			case "county":
				item.County = domain.NormalizeJurisdiction(value)
			case "parcel_number":
				item.ParcelNumber = value
			}
		}
		item.RawInput = raw
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("file has no data rows"))
	}
	return items, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("read csv: %w", err))
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("open xlsx: %w", err))
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("workbook has no sheets"))
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "batch parse", fmt.Errorf("read sheet: %w", err))
	}
	return rows, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
