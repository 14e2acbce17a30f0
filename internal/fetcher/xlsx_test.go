package fetcher

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// workbook builds an xlsx file with the sheets in order.
func workbook(t *testing.T, sheets ...sheetData) []byte {
	t.Helper()
	wb := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := wb.AddSheet(s.name)
		require.NoError(t, err)
		for _, cells := range s.rows {
			row := sheet.AddRow()
			for _, v := range cells {
				row.AddCell().SetString(v)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return buf.Bytes()
}

type sheetData struct {
	name string
	rows [][]string
}

func TestStreamXLSX_FirstSheet(t *testing.T) {
	data := workbook(t,
		sheetData{"Leads", [][]string{{"name", "website"}, {"Bright Smile", "brightsmile.test"}}},
		sheetData{"Notes", [][]string{{"ignored"}}},
	)
	rows, err := drain(StreamXLSX(context.Background(), data, XLSXOptions{}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "website"}, {"Bright Smile", "brightsmile.test"}}, rows)
}

func TestStreamXLSX_ByName(t *testing.T) {
	data := workbook(t,
		sheetData{"Other", [][]string{{"x"}}},
		sheetData{"Leads", [][]string{{"handle"}, {""}, {"@a"}}},
	)
	rows, err := drain(StreamXLSX(context.Background(), data, XLSXOptions{SheetName: "Leads", SkipBlank: true}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"handle"}, {"@a"}}, rows)
}

func TestStreamXLSX_SheetErrors(t *testing.T) {
	data := workbook(t, sheetData{"Leads", [][]string{{"a"}}})

	_, err := drain(StreamXLSX(context.Background(), data, XLSXOptions{SheetName: "Missing"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = drain(StreamXLSX(context.Background(), data, XLSXOptions{SheetIndex: 3}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestStreamXLSX_NotAWorkbook(t *testing.T) {
	_, err := drain(StreamXLSX(context.Background(), []byte("name,phone\n"), XLSXOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open workbook")
}
