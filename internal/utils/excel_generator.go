package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"time"

	"trendforge/internal/models"

	"github.com/xuri/excelize/v2"
)

const itemsSheet = "Items"

// ExportHeaders is the column order shared by the CSV and Excel exports.
func ExportHeaders() []string {
	headers := []string{"ID", "Source", "Source Item", "Title", "URL", "Status", "Created At"}
	for _, target := range models.Targets {
		headers = append(headers, string(target))
	}
	return headers
}

// ExportRow flattens an item into the export column order.
func ExportRow(item models.Item) []string {
	row := []string{
		item.ID,
		item.Source,
		item.SourceItemID,
		item.Title,
		item.URL,
		item.Status.String(),
		item.CreateTime.Format("2006-01-02 15:04:05"),
	}
	results := item.ResultMap()
	for _, target := range models.Targets {
		row = append(row, results[target])
	}
	return row
}

// CreateCSVFile writes items to a UTF-8 CSV file with a BOM so spreadsheet
// tools detect the encoding of Chinese text.
func CreateCSVFile(path string, items []models.Item) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString("\xEF\xBB\xBF"); err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(ExportHeaders()); err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write(ExportRow(item)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// CreateExcelFile writes items to an xlsx workbook with an Items sheet and a
// per-source summary sheet.
func CreateExcelFile(path string, items []models.Item) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(itemsSheet)
	if err != nil {
		return err
	}

	headers := ExportHeaders()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0EBF5"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &headers); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(itemsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	for rowIdx, item := range items {
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		row := ExportRow(item)
		if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
			return err
		}
	}

	for i := 1; i <= len(headers); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		width := 18.0
		if i > len(headers)-len(models.Targets) {
			width = 50
		}
		if err := f.SetColWidth(itemsSheet, colName, colName, width); err != nil {
			return err
		}
	}
	if len(items) > 0 {
		firstTarget, _ := excelize.ColumnNumberToName(len(headers) - len(models.Targets) + 1)
		if err := f.SetCellStyle(itemsSheet, firstTarget+"2", fmt.Sprintf("%s%d", lastCol, len(items)+1), wrapStyle); err != nil {
			return err
		}
	}

	if err := createSummarySheet(f, items); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func createSummarySheet(f *excelize.File, items []models.Item) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	perSource := map[string]int{}
	for _, item := range items {
		perSource[item.Source]++
	}
	sources := make([]string, 0, len(perSource))
	for source := range perSource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	rows := [][]interface{}{
		{"Report Generated", time.Now().Format("2006-01-02 15:04:05")},
		{"Total Items", len(items)},
		{},
		{"Source", "Items"},
	}
	for _, source := range sources {
		rows = append(rows, []interface{}{source, perSource[source]})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 20)
}
