package batchfile

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
)

func TestParseCSV(t *testing.T) {
	data := []byte("street_address,city,county,parcel_number\n" +
		"1437 Bannock St,Denver,Denver,0163-00-042\n" +
		"31 N Tejon St,Colorado Springs,EL PASO,\n")

	items, err := Parse("upload.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.RowNumber != 1 || first.StreetAddress != "1437 Bannock St" || first.City != "Denver" {
		t.Errorf("first item = %+v", first)
	}
	if first.County != "denver" {
		t.Errorf("county = %q, want normalized %q", first.County, "denver")
	}
	if first.ParcelNumber != "0163-00-042" {
		t.Errorf("parcel = %q", first.ParcelNumber)
	}
	if first.Status != domain.ItemPending {
		t.Errorf("status = %s", first.Status)
	}
	if first.RawInput["street_address"] != "1437 Bannock St" {
		t.Errorf("raw input = %v", first.RawInput)
	}

	if items[1].County != "el paso" {
		t.Errorf("second county = %q, want %q", items[1].County, "el paso")
	}
}

func TestParseCSVColumnAliases(t *testing.T) {
	data := []byte("Address,City,County,APN\n990 Osage St,Denver,Denver,123\n")

	items, err := Parse("upload.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if items[0].StreetAddress != "990 Osage St" {
		t.Errorf("address alias not mapped: %+v", items[0])
	}
	if items[0].ParcelNumber != "123" {
		t.Errorf("apn alias not mapped: %+v", items[0])
	}
}

func TestParseCSVSkipsEmptyRows(t *testing.T) {
	data := []byte("street_address,city,county\n" +
		"1437 Bannock St,Denver,Denver\n" +
		",,\n" +
		"990 Osage St,Denver,Denver\n")

	items, err := Parse("upload.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2 (blank row skipped)", len(items))
	}
}

func TestParseCSVKeepsShortRows(t *testing.T) {
	data := []byte("street_address,city,county\n1437 Bannock St,Denver\n")

	items, err := Parse("upload.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	// Missing county stays empty; validation happens at submission.
	if items[0].County != "" {
		t.Errorf("county = %q, want empty", items[0].County)
	}
}

func TestParseRejectsUnsupportedExtension(t *testing.T) {
	_, err := Parse("upload.pdf", []byte("junk"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation kind", err)
	}
}

func TestParseRejectsHeaderOnlyFile(t *testing.T) {
	_, err := Parse("upload.csv", []byte("street_address,city,county\n"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation kind", err)
	}
}

func TestParseXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]string{
		{"street_address", "city", "county"},
		{"1437 Bannock St", "Denver", "Denver"},
	}
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := book.SetCellValue(sheet, name, cell); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	items, err := Parse("upload.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 || items[0].City != "Denver" {
		t.Errorf("items = %+v", items)
	}
}

func TestParseRejectsCorruptXLSX(t *testing.T) {
	_, err := Parse("upload.xlsx", []byte("not a zip archive"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation kind", err)
	}
}
