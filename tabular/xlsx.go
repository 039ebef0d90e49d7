package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX parses one sheet of an .xlsx workbook into a Table.
// An empty sheet name selects the first sheet of the workbook.
func ParseXLSX(raw []byte, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyInput
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrInvalidSpreadsheet, sheet, err)
	}
	return fromRecords(rows)
}

// Sheets lists the sheet names of an .xlsx workbook in workbook order.
func Sheets(raw []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
