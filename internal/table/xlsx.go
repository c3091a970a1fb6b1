package table

import (
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Staff"

// EncodeXLSX writes the same records as EncodeCSV into a single-sheet
// workbook, with counts stored as numbers.
func EncodeXLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	header := make([]interface{}, 0, Hours+1)
	for _, cell := range t.Header() {
		header = append(header, cell)
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		cells := make([]interface{}, 0, Hours+1)
		cells = append(cells, row.Label)
		for _, c := range row.Counts {
			cells = append(cells, c)
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, axis, &cells); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
