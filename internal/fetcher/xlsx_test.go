package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestXLSX(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	path := filepath.Join(t.TempDir(), "feed.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_SkipsHeader(t *testing.T) {
	path := writeTestXLSX(t, "Products", [][]string{
		{"vendor_item_id", "name", "barcode"},
		{"c-1", "Omega 3", "8801234567890"},
		{"c-2", "Vitamin C", ""},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Products", SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c-1", rows[0][0])
	assert.Equal(t, "Vitamin C", rows[1][1])
}

func TestReadXLSX_MissingSheet(t *testing.T) {
	path := writeTestXLSX(t, "Products", [][]string{{"a"}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Nope"})
	assert.Error(t, err)
}

func TestHeader(t *testing.T) {
	path := writeTestXLSX(t, "Products", [][]string{
		{"vendor_item_id", "name"},
		{"c-1", "Omega 3"},
	})

	header, err := Header(path, XLSXOptions{SheetName: "Products"})
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor_item_id", "name"}, header)
}
