// Package export writes the field set of a template to a spreadsheet
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/pdf-field-builder/internal/fields"
)

// SheetName is the worksheet holding the fields
const SheetName = "Fields"

var headers = []string{
	"Page", "Name", "Label", "Type", "X", "Y", "Width", "Height",
	"Required", "Default Value", "Font Size", "Font Family", "Font Color", "ID",
}

var columnWidths = []float64{8, 24, 28, 12, 10, 10, 10, 10, 10, 20, 10, 16, 12, 40}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Fields builds a workbook with one row per field, ordered by page and then
// top-to-bottom, left-to-right. The caller closes the file.
func Fields(list []fields.Field) (*excelize.File, error) {
	rows := append([]fields.Field(nil), list...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
		f.SetCellStyle(SheetName, cell, cell, bold)
	}

	for r, fld := range rows {
		values := []any{
			fld.PageNumber, fld.Name, fld.Label, string(fld.Type),
			fld.X, fld.Y, fld.Width, fld.Height,
			fld.Required, fld.DefaultValue, fld.FontSize, fld.FontFamily, fld.FontColor, fld.ID,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(SheetName, col, col, w)
	}
	f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	return f, nil
}

// Filename returns a download name for a template's field export
func Filename(templateName string) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(templateName, "_"), "_")
	if base == "" {
		base = "template"
	}
	return base + "_fields.xlsx"
}
