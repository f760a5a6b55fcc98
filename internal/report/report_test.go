package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
)

func sampleSummary() analytics.Summary {
	loc := time.Local
	txs := []core.Transaction{
		{ID: "1", Amount: core.Money{Cents: 300000}, Date: time.Date(2024, 3, 1, 9, 0, 0, 0, loc), Description: "March pay", Category: "Salary", Type: core.Income},
		{ID: "2", Amount: core.Money{Cents: 4550}, Date: time.Date(2024, 3, 2, 12, 0, 0, 0, loc), Description: "<b>lunch</b>", Category: "Food", Type: core.Expense},
		{ID: "3", Amount: core.Money{Cents: 12000}, Date: time.Date(2024, 3, 9, 18, 0, 0, 0, loc), Category: "Transport", Type: core.Expense},
	}
	return analytics.Summarize(txs, analytics.MonthScope(time.Date(2024, 3, 15, 0, 0, 0, 0, loc)))
}

func sampleDoc() Document {
	return Build(sampleSummary(), "en", time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC))
}

func TestBuild(t *testing.T) {
	doc := sampleDoc()
	if doc.Title != "March 2024" {
		t.Fatalf("title = %q", doc.Title)
	}
	if doc.Income != "$3,000.00" || doc.Expense != "$165.50" || doc.Balance != "$2,834.50" {
		t.Fatalf("unexpected totals %s / %s / %s", doc.Income, doc.Expense, doc.Balance)
	}
	if len(doc.Rows) != 3 || doc.Rows[0].Amount != "+$3,000.00" || doc.Rows[1].Amount != "-$45.50" {
		t.Fatalf("unexpected rows %+v", doc.Rows)
	}
	if len(doc.Categories) != 2 || doc.Categories[0].Name != "Transport" {
		t.Fatalf("unexpected categories %+v", doc.Categories)
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		title string
		f     Format
		want  string
	}{
		{"March 2024", XLSX, "March_2024_2024-03-05.xlsx"},
		{"Jan 2, 2024 - Feb 1, 2024", CSV, "Jan_2__2024___Feb_1__2024_2024-03-05.csv"},
		{"2024", HTML, "2024_2024-03-05.html"},
	}
	for _, tt := range tests {
		if got := FileName(tt.title, day, tt.f); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "xlsx", "html"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error for pdf")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleDoc()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// 4 summary lines, header, 3 rows; the empty separator record is skipped by the reader
	if len(records) != 8 {
		t.Fatalf("expected 8 records, got %d: %v", len(records), records)
	}
	if records[4][0] != "Date" || records[5][4] != "+$3,000.00" || records[6][3] != "<b>lunch</b>" {
		t.Fatalf("unexpected table %v", records[4:])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleDoc()); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != summarySheet || sheets[1] != transactionsSheet {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows(transactionsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "Date" || rows[1][4] != "+$3,000.00" {
		t.Fatalf("unexpected transaction rows %v", rows)
	}

	balance, _ := f.GetCellValue(summarySheet, "B5")
	if balance != "$2,834.50" {
		t.Fatalf("balance cell = %q", balance)
	}

	width, _ := f.GetColWidth(transactionsSheet, "D")
	if width != 30 {
		t.Fatalf("description column width = %v, want 30", width)
	}
}

func TestWriteHTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, HTML, sampleDoc()); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<b>lunch</b>") {
		t.Fatal("description must be escaped")
	}
	for _, want := range []string{"<h1>March 2024</h1>", "&lt;b&gt;lunch&lt;/b&gt;", "+$3,000.00", "Generated 2024-04-01 08:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}
