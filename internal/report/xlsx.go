package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	transactionsSheet = "Transactions"
)

var columnWidths = []float64{15, 15, 20, 30, 15}

// WriteXLSX writes a workbook with a Summary sheet and a Transactions sheet.
func WriteXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summary := [][]any{
		{"Title", doc.Title},
		{},
		{"Total Income", doc.Income},
		{"Total Expense", doc.Expense},
		{"Balance", doc.Balance},
		{"Savings Rate", doc.SavingsRate},
	}
	if len(doc.Categories) > 0 {
		summary = append(summary, []any{}, []any{"Category", "Amount", "Share"})
		for _, c := range doc.Categories {
			summary = append(summary, []any{c.Name, c.Amount, c.Share})
		}
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "C", 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A6", bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	if _, err := f.NewSheet(transactionsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows := make([][]any, 0, len(doc.Rows)+1)
	rows = append(rows, []any{tableHeader[0], tableHeader[1], tableHeader[2], tableHeader[3], tableHeader[4]})
	for _, r := range doc.Rows {
		rows = append(rows, []any{r.Date, r.Type, r.Category, r.Description, r.Amount})
	}
	if err := writeRows(f, transactionsSheet, rows); err != nil {
		return err
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(transactionsSheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetCellStyle(transactionsSheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
