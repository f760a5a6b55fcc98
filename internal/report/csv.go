package report

import (
	"encoding/csv"
	"fmt"
	"io"
)

var tableHeader = []string{"Date", "Type", "Category", "Description", "Amount"}

// WriteCSV writes the summary block, a blank line and the transaction
// table.
func WriteCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Title", doc.Title},
		{"Total Income", doc.Income},
		{"Total Expense", doc.Expense},
		{"Balance", doc.Balance},
		{},
		tableHeader,
	}
	for _, r := range doc.Rows {
		records = append(records, []string{r.Date, r.Type, r.Category, r.Description, r.Amount})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
